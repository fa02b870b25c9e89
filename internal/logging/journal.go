package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	tick_id          TEXT NOT NULL,
	behavior_id      TEXT NOT NULL,
	decision         TEXT NOT NULL,
	intervention_id  TEXT,
	suggestion_id    TEXT,
	bucket           TEXT,
	explored         INTEGER NOT NULL DEFAULT 0,
	reason           TEXT,
	inputs_json      TEXT,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_log_created ON decision_log(created_at);
`

// #region journal
// Journal appends tick decisions to the decision_log table.
type Journal struct {
	db *sql.DB
}

// NewJournal creates the decision_log table on db if needed.
func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("migrate decision_log: %w", err)
	}
	return &Journal{db: db}, nil
}

// Log writes one decision entry. A zero CreatedAt is stamped with now.
func (j *Journal) Log(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	explored := 0
	if e.Explored {
		explored = 1
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO decision_log (tick_id, behavior_id, decision, intervention_id, suggestion_id, bucket, explored, reason, inputs_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TickID,
		e.BehaviorID,
		string(e.Decision),
		nullIfEmpty(e.InterventionID),
		nullIfEmpty(e.SuggestionID),
		nullIfEmpty(e.Bucket),
		explored,
		nullIfEmpty(e.Reason),
		nullIfEmpty(e.InputsJSON),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT tick_id, behavior_id, decision, COALESCE(intervention_id, ''), COALESCE(suggestion_id, ''),
		        COALESCE(bucket, ''), explored, COALESCE(reason, ''), COALESCE(inputs_json, ''), created_at
		 FROM decision_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var decision, created string
		var explored int
		if err := rows.Scan(&e.TickID, &e.BehaviorID, &decision, &e.InterventionID, &e.SuggestionID,
			&e.Bucket, &explored, &e.Reason, &e.InputsJSON, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Decision = Decision(decision)
		e.Explored = explored != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion journal

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
