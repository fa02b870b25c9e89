package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	source      TEXT NOT NULL,
	dimension   TEXT NOT NULL,
	value       REAL NOT NULL,
	confidence  REAL NOT NULL,
	UNIQUE (ts, source, dimension, value, confidence)
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts);

CREATE TABLE IF NOT EXISTS snapshots (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ts             TEXT NOT NULL,
	confidence     REAL NOT NULL,
	snapshot_json  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS actions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	behavior_id  TEXT NOT NULL,
	ts           TEXT NOT NULL,
	qualifies    INTEGER NOT NULL,
	UNIQUE (behavior_id, ts, qualifies)
);

CREATE TABLE IF NOT EXISTS streaks (
	behavior_id         TEXT PRIMARY KEY,
	current_length      INTEGER NOT NULL,
	best_length         INTEGER NOT NULL,
	last_qualifying_at  TEXT NOT NULL DEFAULT '',
	last_action_at      TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	breaks              INTEGER NOT NULL DEFAULT 0,
	last_break_at       TEXT NOT NULL DEFAULT '',
	last_broken_length  INTEGER NOT NULL DEFAULT 0,
	version             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS efficacy (
	intervention_id  TEXT NOT NULL,
	bucket           TEXT NOT NULL,
	score            REAL NOT NULL,
	sample_count     INTEGER NOT NULL,
	updated_at       TEXT NOT NULL,
	version          INTEGER NOT NULL,
	PRIMARY KEY (intervention_id, bucket)
);

CREATE TABLE IF NOT EXISTS suggestions (
	id               TEXT PRIMARY KEY,
	behavior_id      TEXT NOT NULL,
	intervention_id  TEXT NOT NULL,
	bucket           TEXT NOT NULL,
	explored         INTEGER NOT NULL DEFAULT 0,
	message          TEXT NOT NULL DEFAULT '',
	issued_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_suggestions_issued ON suggestions(issued_at);

CREATE TABLE IF NOT EXISTS correlations (
	correlation_id  TEXT PRIMARY KEY,
	suggestion_id   TEXT NOT NULL,
	FOREIGN KEY (suggestion_id) REFERENCES suggestions(id)
);

CREATE TABLE IF NOT EXISTS feedback_events (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	correlation_id  TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	ts              TEXT NOT NULL,
	UNIQUE (correlation_id, ts, outcome)
);
`
// #endregion schema

// #region store-struct
// SQLite is the durable Store.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)
// #endregion store-struct

// #region constructor
// NewSQLite opens a SQLite database and runs migrations. ":memory:" gives a
// private in-process database.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single connection: SQLite serializes writers anyway, and ":memory:" is
	// per-connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *SQLite) DB() *sql.DB {
	return s.db
}
// #endregion constructor

// #region signals
// PutSignal appends r unless an identical record exists.
func (s *SQLite) PutSignal(ctx context.Context, r signals.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO signals (ts, source, dimension, value, confidence) VALUES (?, ?, ?, ?, ?)`,
		formatTS(r.Timestamp), string(r.Source), string(r.Dimension), r.Value, r.Confidence,
	)
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}
	return n > 0, nil
}

// PutSignals inserts rs in one transaction.
func (s *SQLite) PutSignals(ctx context.Context, rs []signals.Record) ([]bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inserted := make([]bool, len(rs))
	for i, r := range rs {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO signals (ts, source, dimension, value, confidence) VALUES (?, ?, ?, ?, ?)`,
			formatTS(r.Timestamp), string(r.Source), string(r.Dimension), r.Value, r.Confidence,
		)
		if err != nil {
			return nil, fmt.Errorf("insert signal: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert signal: %w", err)
		}
		inserted[i] = n > 0
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// RecentSignals returns signals at or after since, oldest first.
func (s *SQLite) RecentSignals(ctx context.Context, since time.Time) ([]signals.Record, error) {
	return s.querySignals(ctx,
		`SELECT ts, source, dimension, value, confidence FROM signals WHERE ts >= ? ORDER BY ts ASC, id ASC`,
		formatTS(since))
}

// SignalHistory returns up to limit signals, newest first.
func (s *SQLite) SignalHistory(ctx context.Context, limit int) ([]signals.Record, error) {
	return s.querySignals(ctx,
		`SELECT ts, source, dimension, value, confidence FROM signals ORDER BY ts DESC, id DESC LIMIT ?`,
		limit)
}

func (s *SQLite) querySignals(ctx context.Context, query string, args ...any) ([]signals.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []signals.Record
	for rows.Next() {
		var r signals.Record
		var ts, src, dim string
		if err := rows.Scan(&ts, &src, &dim, &r.Value, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		r.Timestamp = parseTS(ts)
		r.Source = signals.Source(src)
		r.Dimension = signals.Dimension(dim)
		out = append(out, r)
	}
	return out, rows.Err()
}
// #endregion signals

// #region snapshots
// PutSnapshot appends a snapshot to the history.
func (s *SQLite) PutSnapshot(ctx context.Context, snap state.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (ts, confidence, snapshot_json) VALUES (?, ?, ?)`,
		formatTS(snap.Timestamp), snap.Confidence, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently stored snapshot or ErrNotFound.
func (s *SQLite) LatestSnapshot(ctx context.Context) (state.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM snapshots ORDER BY ts DESC, id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	var snap state.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return state.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
// #endregion snapshots

// #region actions
// RecordAction appends a unless the same action is already logged.
func (s *SQLite) RecordAction(ctx context.Context, a streak.Action) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO actions (behavior_id, ts, qualifies) VALUES (?, ?, ?)`,
		a.BehaviorID, formatTS(a.At), boolInt(a.Qualifies),
	)
	if err != nil {
		return false, fmt.Errorf("insert action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert action: %w", err)
	}
	return n > 0, nil
}

// ForgetAction deletes a logged action.
func (s *SQLite) ForgetAction(ctx context.Context, a streak.Action) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM actions WHERE behavior_id = ? AND ts = ? AND qualifies = ?`,
		a.BehaviorID, formatTS(a.At), boolInt(a.Qualifies),
	)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return nil
}

// ActionHistory returns up to limit actions, newest first.
func (s *SQLite) ActionHistory(ctx context.Context, limit int) ([]streak.Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT behavior_id, ts, qualifies FROM actions ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []streak.Action
	for rows.Next() {
		var a streak.Action
		var ts string
		var q int
		if err := rows.Scan(&a.BehaviorID, &ts, &q); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.At = parseTS(ts)
		a.Qualifies = q != 0
		out = append(out, a)
	}
	return out, rows.Err()
}
// #endregion actions

// #region streaks
const streakColumns = `behavior_id, current_length, best_length, last_qualifying_at, last_action_at,
	status, breaks, last_break_at, last_broken_length, version`

// GetStreak returns the stored streak or a zero streak.
func (s *SQLite) GetStreak(ctx context.Context, behaviorID string) (streak.State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+streakColumns+` FROM streaks WHERE behavior_id = ?`, behaviorID)
	st, err := scanStreak(row)
	if errors.Is(err, sql.ErrNoRows) {
		return streak.Zero(behaviorID), nil
	}
	if err != nil {
		return streak.State{}, fmt.Errorf("get streak %s: %w", behaviorID, err)
	}
	return st, nil
}

// PutStreak writes st if its Version matches the stored one.
func (s *SQLite) PutStreak(ctx context.Context, st streak.State) (streak.State, error) {
	next := st
	next.Version = st.Version + 1

	var res sql.Result
	var err error
	if st.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO streaks (`+streakColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			next.BehaviorID, next.CurrentLength, next.BestLength, nullableTS(next.LastQualifyingAt),
			nullableTS(next.LastActionAt), string(next.Status), next.Breaks, nullableTS(next.LastBreakAt),
			next.LastBrokenLength, next.Version,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE streaks SET current_length = ?, best_length = ?, last_qualifying_at = ?, last_action_at = ?,
			 status = ?, breaks = ?, last_break_at = ?, last_broken_length = ?, version = ?
			 WHERE behavior_id = ? AND version = ?`,
			next.CurrentLength, next.BestLength, nullableTS(next.LastQualifyingAt), nullableTS(next.LastActionAt),
			string(next.Status), next.Breaks, nullableTS(next.LastBreakAt), next.LastBrokenLength, next.Version,
			next.BehaviorID, st.Version,
		)
	}
	if err != nil {
		return st, fmt.Errorf("put streak %s: %w", st.BehaviorID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return st, fmt.Errorf("put streak %s: %w", st.BehaviorID, err)
	}
	if n == 0 {
		return st, fmt.Errorf("put streak %s at version %d: %w", st.BehaviorID, st.Version, ErrWriteConflict)
	}
	return next, nil
}

// ListStreaks returns every stored streak ordered by behaviour.
func (s *SQLite) ListStreaks(ctx context.Context) ([]streak.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+streakColumns+` FROM streaks ORDER BY behavior_id`)
	if err != nil {
		return nil, fmt.Errorf("list streaks: %w", err)
	}
	defer rows.Close()

	var out []streak.State
	for rows.Next() {
		st, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStreak(sc scanner) (streak.State, error) {
	var st streak.State
	var lastQ, lastA, status, lastB string
	err := sc.Scan(&st.BehaviorID, &st.CurrentLength, &st.BestLength, &lastQ, &lastA,
		&status, &st.Breaks, &lastB, &st.LastBrokenLength, &st.Version)
	if err != nil {
		return streak.State{}, err
	}
	st.LastQualifyingAt = parseTS(lastQ)
	st.LastActionAt = parseTS(lastA)
	st.LastBreakAt = parseTS(lastB)
	st.Status = streak.Status(status)
	return st, nil
}
// #endregion streaks

// #region efficacy
// GetEfficacy returns the record for the pair, ok=false when absent.
func (s *SQLite) GetEfficacy(ctx context.Context, interventionID, bucket string) (feedback.Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT intervention_id, bucket, score, sample_count, updated_at, version
		 FROM efficacy WHERE intervention_id = ? AND bucket = ?`, interventionID, bucket)
	rec, err := scanEfficacy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Neutral(interventionID, bucket), false, nil
	}
	if err != nil {
		return feedback.Record{}, false, fmt.Errorf("get efficacy %s/%s: %w", interventionID, bucket, err)
	}
	return rec, true, nil
}

// PutEfficacy writes r if its Version matches the stored one.
func (s *SQLite) PutEfficacy(ctx context.Context, r feedback.Record) (feedback.Record, error) {
	next := r
	next.Version = r.Version + 1

	var res sql.Result
	var err error
	if r.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO efficacy (intervention_id, bucket, score, sample_count, updated_at, version)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			next.InterventionID, next.Bucket, next.Score, next.SampleCount, formatTS(next.UpdatedAt), next.Version,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE efficacy SET score = ?, sample_count = ?, updated_at = ?, version = ?
			 WHERE intervention_id = ? AND bucket = ? AND version = ?`,
			next.Score, next.SampleCount, formatTS(next.UpdatedAt), next.Version,
			next.InterventionID, next.Bucket, r.Version,
		)
	}
	if err != nil {
		return r, fmt.Errorf("put efficacy %s/%s: %w", r.InterventionID, r.Bucket, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r, fmt.Errorf("put efficacy %s/%s: %w", r.InterventionID, r.Bucket, err)
	}
	if n == 0 {
		return r, fmt.Errorf("put efficacy %s/%s at version %d: %w", r.InterventionID, r.Bucket, r.Version, ErrWriteConflict)
	}
	return next, nil
}

// ListEfficacy returns every record, best score first.
func (s *SQLite) ListEfficacy(ctx context.Context) ([]feedback.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT intervention_id, bucket, score, sample_count, updated_at, version
		 FROM efficacy ORDER BY score DESC, intervention_id, bucket`)
	if err != nil {
		return nil, fmt.Errorf("list efficacy: %w", err)
	}
	defer rows.Close()

	var out []feedback.Record
	for rows.Next() {
		rec, err := scanEfficacy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan efficacy: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanEfficacy(sc scanner) (feedback.Record, error) {
	var rec feedback.Record
	var updated string
	if err := sc.Scan(&rec.InterventionID, &rec.Bucket, &rec.Score, &rec.SampleCount, &updated, &rec.Version); err != nil {
		return feedback.Record{}, err
	}
	rec.UpdatedAt = parseTS(updated)
	return rec, nil
}
// #endregion efficacy

// #region suggestions
// RecordSuggestion stores a suggestion and its command correlation IDs atomically.
func (s *SQLite) RecordSuggestion(ctx context.Context, sg Suggestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO suggestions (id, behavior_id, intervention_id, bucket, explored, message, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.BehaviorID, sg.InterventionID, sg.Bucket, boolInt(sg.Explored), sg.Message, formatTS(sg.IssuedAt),
	)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	for _, cid := range sg.CorrelationIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO correlations (correlation_id, suggestion_id) VALUES (?, ?)`, cid, sg.ID,
		); err != nil {
			return fmt.Errorf("insert correlation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentSuggestions returns suggestions issued at or after since, oldest first.
func (s *SQLite) RecentSuggestions(ctx context.Context, since time.Time) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, behavior_id, intervention_id, bucket, explored, message, issued_at
		 FROM suggestions WHERE issued_at >= ? ORDER BY issued_at ASC, id ASC`, formatTS(since))
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	var out []Suggestion
	for rows.Next() {
		var sg Suggestion
		var explored int
		var issued string
		if err := rows.Scan(&sg.ID, &sg.BehaviorID, &sg.InterventionID, &sg.Bucket, &explored, &sg.Message, &issued); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		sg.Explored = explored != 0
		sg.IssuedAt = parseTS(issued)
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Fetched after the first result set is drained: the pool has one connection.
	if len(out) == 0 {
		return out, nil
	}
	ids := make([]any, len(out))
	byID := make(map[string]int, len(out))
	for i, sg := range out {
		ids[i] = sg.ID
		byID[sg.ID] = i
	}
	crow, err := s.db.QueryContext(ctx,
		`SELECT suggestion_id, correlation_id FROM correlations WHERE suggestion_id IN (`+placeholders(len(ids))+`)
		 ORDER BY rowid`, ids...)
	if err != nil {
		return nil, fmt.Errorf("query correlations: %w", err)
	}
	defer crow.Close()
	for crow.Next() {
		var sid, cid string
		if err := crow.Scan(&sid, &cid); err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		i := byID[sid]
		out[i].CorrelationIDs = append(out[i].CorrelationIDs, cid)
	}
	return out, crow.Err()
}

// ResolveCorrelation maps a command correlation ID, or a suggestion ID, to
// its suggestion.
func (s *SQLite) ResolveCorrelation(ctx context.Context, correlationID string) (feedback.Link, error) {
	var l feedback.Link
	err := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.behavior_id, s.intervention_id, s.bucket
		 FROM suggestions s
		 WHERE s.id = (SELECT suggestion_id FROM correlations WHERE correlation_id = ?)
		    OR s.id = ?
		 LIMIT 1`, correlationID, correlationID,
	).Scan(&l.SuggestionID, &l.BehaviorID, &l.InterventionID, &l.Bucket)
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Link{}, fmt.Errorf("correlation %s: %w", correlationID, ErrNotFound)
	}
	if err != nil {
		return feedback.Link{}, fmt.Errorf("resolve correlation %s: %w", correlationID, err)
	}
	return l, nil
}

// RecordFeedback appends e unless an identical event is already stored.
func (s *SQLite) RecordFeedback(ctx context.Context, e feedback.Event) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feedback_events (correlation_id, outcome, ts) VALUES (?, ?, ?)`,
		e.CorrelationID, string(e.Outcome), formatTS(e.Timestamp),
	)
	if err != nil {
		return false, fmt.Errorf("insert feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert feedback: %w", err)
	}
	return n > 0, nil
}

// ForgetFeedback deletes a recorded feedback event.
func (s *SQLite) ForgetFeedback(ctx context.Context, e feedback.Event) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM feedback_events WHERE correlation_id = ? AND ts = ? AND outcome = ?`,
		e.CorrelationID, formatTS(e.Timestamp), string(e.Outcome),
	)
	if err != nil {
		return fmt.Errorf("delete feedback: %w", err)
	}
	return nil
}
// #endregion suggestions

// #region summary
// Summary counts stored entries.
func (s *SQLite) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM signals),
			(SELECT COUNT(*) FROM signals WHERE source = 'manual'),
			(SELECT COUNT(*) FROM signals WHERE source = 'inferred'),
			(SELECT COUNT(*) FROM actions),
			(SELECT COUNT(*) FROM suggestions),
			(SELECT COUNT(*) FROM feedback_events)`,
	).Scan(&sum.Signals, &sum.ManualSignals, &sum.InferredSignals, &sum.Actions, &sum.Suggestions, &sum.FeedbackEvents)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	return sum, nil
}
// #endregion summary

// #region helpers
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTS(t)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
// #endregion helpers
