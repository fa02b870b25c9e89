package logging

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupJournal(t *testing.T) (*Journal, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	j, err := NewJournal(db)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	return j, db
}

func restoreLogger(t *testing.T) {
	t.Helper()
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
}
// #endregion helpers

// #region journal-tests
func TestJournal_LogAndRecent(t *testing.T) {
	j, _ := setupJournal(t)
	ctx := context.Background()

	first := Entry{
		TickID:         "t1",
		BehaviorID:     "daily_action",
		Decision:       DecisionSelected,
		InterventionID: "low-mood-self-care",
		SuggestionID:   "s1",
		Bucket:         "mood:low|energy:low|focus:unk|streak:none",
		Explored:       true,
		InputsJSON:     `{"epsilon":0.2}`,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := j.Log(ctx, first); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := j.Log(ctx, Entry{TickID: "t2", BehaviorID: "daily_action", Decision: DecisionNone, Reason: "no applicable intervention"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	got, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].TickID != "t2" || got[0].Decision != DecisionNone {
		t.Errorf("expected newest entry first, got %+v", got[0])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("expected zero CreatedAt to be stamped")
	}
	if got[1] != first {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got[1], first)
	}
}

func TestJournal_EmptyFieldsStoredAsNull(t *testing.T) {
	j, db := setupJournal(t)
	if err := j.Log(context.Background(), Entry{TickID: "t", BehaviorID: "b", Decision: DecisionFailed}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	var nulls int
	db.QueryRow(`SELECT COUNT(*) FROM decision_log WHERE intervention_id IS NULL AND inputs_json IS NULL`).Scan(&nulls)
	if nulls != 1 {
		t.Errorf("expected empty optional fields as NULL, got %d matching rows", nulls)
	}
}

func TestJournal_ClosedDB(t *testing.T) {
	j, db := setupJournal(t)
	db.Close()
	if err := j.Log(context.Background(), Entry{TickID: "t", BehaviorID: "b", Decision: DecisionNone}); err == nil {
		t.Fatal("expected error on closed db")
	}
	if _, err := j.Recent(context.Background(), 1); err == nil {
		t.Fatal("expected error on closed db")
	}
}
// #endregion journal-tests

// #region setup-tests
func TestSetup_JSONLevelFilter(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer
	closer, err := setup(Config{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer closer()

	log.Info().Msg("hidden")
	log.Warn().Str("component", "tick").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line past the level filter, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["component"] != "tick" || rec["message"] != "shown" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestSetup_File(t *testing.T) {
	restoreLogger(t)
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	closer, err := setup(Config{Level: "debug", Format: "console", File: path}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.Debug().Msg("to file")
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("expected message in file, got %q", data)
	}
}

func TestSetup_Rejects(t *testing.T) {
	restoreLogger(t)
	if _, err := setup(Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := setup(Config{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
// #endregion setup-tests
