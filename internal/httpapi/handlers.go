package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region ingestion

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type signalsRequest struct {
	Signals []signals.Record `json:"signals"`
}

type signalsResponse struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// handleSignals accepts {"signals": [...]} or a single record. The batch is
// stored atomically, so an invalid record stores nothing.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	var req signalsRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Signals == nil {
		var one signals.Record
		if err := json.Unmarshal(raw, &one); err != nil {
			writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		req.Signals = []signals.Record{one}
	}
	inserted, err := s.eng.IngestSignals(r.Context(), req.Signals)
	if err != nil {
		writeError(w, err)
		return
	}
	var resp signalsResponse
	for _, ok := range inserted {
		if ok {
			resp.Inserted++
		} else {
			resp.Duplicates++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type textRequest struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleSignalText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Text == "" {
		writeError(w, fmt.Errorf("%w: text is required", errBadRequest))
		return
	}
	recs, err := s.eng.IngestText(r.Context(), req.Text, req.Timestamp)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

type checkInRequest struct {
	signals.CheckIn
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

type checkInResponse struct {
	Records    []signals.Record `json:"records"`
	Suggestion string           `json:"suggestion"`
}

// handleCheckIn stores the categorical check-in, runs an optional note
// through text inference and answers with the current coaching message.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	recs, err := s.eng.IngestCheckIn(r.Context(), req.CheckIn, req.Timestamp)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Note != "" {
		inferred, err := s.eng.IngestText(r.Context(), req.Note, req.Timestamp)
		if err != nil {
			writeError(w, err)
			return
		}
		recs = append(recs, inferred...)
	}
	resp := checkInResponse{Records: recs}
	if view, err := s.eng.Coach(r.Context(), s.defaultBehavior()); err == nil {
		resp.Suggestion = view.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

// #endregion ingestion

// #region actions-feedback

type actionRequest struct {
	BehaviorID string    `json:"behavior_id"`
	Success    *bool     `json:"success"`
	At         time.Time `json:"at"`
}

// handleAction logs an action; success defaults to true and decides whether
// the action counts toward the streak.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	a := streak.Action{BehaviorID: req.BehaviorID, At: req.At, Qualifies: true}
	if a.BehaviorID == "" {
		a.BehaviorID = s.defaultBehavior()
	}
	if req.Success != nil {
		a.Qualifies = *req.Success
	}
	res, err := s.eng.RecordAction(r.Context(), a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var ev feedback.Event
	if err := decode(w, r, &ev); err != nil {
		writeError(w, err)
		return
	}
	if ev.CorrelationID == "" {
		writeError(w, fmt.Errorf("%w: correlation_id is required", errBadRequest))
		return
	}
	res, err := s.eng.ApplyFeedback(r.Context(), ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	report, err := s.eng.Tick(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// #endregion actions-feedback

// #region views

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.eng.CurrentState(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type streakResponse struct {
	streak.State
	Tier string `json:"tier"`
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.Streak(r.Context(), r.PathValue("behavior"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streakResponse{State: st, Tier: streak.Tier(st.CurrentLength)})
}

type summaryResponse struct {
	store.Summary
	Streaks []streakResponse `json:"streaks"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.eng.Store().Summary(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("%w: summary: %v", engine.ErrDataUnavailable, err))
		return
	}
	resp := summaryResponse{Summary: sum, Streaks: []streakResponse{}}
	for _, id := range s.eng.Config().Behaviors {
		st, err := s.eng.Streak(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Streaks = append(resp.Streaks, streakResponse{State: st, Tier: streak.Tier(st.CurrentLength)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignalHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := s.eng.Store().SignalHistory(r.Context(), limit)
	if err != nil {
		writeError(w, fmt.Errorf("%w: signal history: %v", engine.ErrDataUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": recs})
}

func (s *Server) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	acts, err := s.eng.Store().ActionHistory(r.Context(), limit)
	if err != nil {
		writeError(w, fmt.Errorf("%w: action history: %v", engine.ErrDataUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": acts})
}

func (s *Server) handleCoach(w http.ResponseWriter, r *http.Request) {
	behavior := r.URL.Query().Get("behavior")
	if behavior == "" {
		behavior = s.defaultBehavior()
	}
	view, err := s.eng.Coach(r.Context(), behavior)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEfficacy(w http.ResponseWriter, r *http.Request) {
	recs, err := s.eng.Store().ListEfficacy(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("%w: efficacy: %v", engine.ErrDataUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"efficacy": recs})
}

// #endregion views

// #region helpers

const defaultLimit = 20

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return 0, fmt.Errorf("%w: limit must be between 1 and 1000", errBadRequest)
	}
	return n, nil
}

func (s *Server) defaultBehavior() string {
	return s.eng.Config().Behaviors[0]
}

// #endregion helpers
