// Package httpapi exposes the engine over HTTP: ingestion, actions, feedback,
// on-demand ticks, read views, Prometheus metrics and the device WebSocket.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/metrics"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
)

const maxBodySize = 1 << 20

// #region server

// Server routes HTTP requests to an engine.
type Server struct {
	eng     *engine.Engine
	devices http.Handler
	handler http.Handler
}

// Option customizes a Server.
type Option func(*Server)

// WithDevices mounts the device WebSocket handler at /ws.
func WithDevices(h http.Handler) Option {
	return func(s *Server) { s.devices = h }
}

// New builds the route table.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{eng: eng}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /signals", s.handleSignals)
	mux.HandleFunc("POST /signals/text", s.handleSignalText)
	mux.HandleFunc("POST /checkin/mood", s.handleCheckIn)
	mux.HandleFunc("POST /action/log", s.handleAction)
	mux.HandleFunc("POST /feedback", s.handleFeedback)
	mux.HandleFunc("POST /tick", s.handleTick)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /streak/{behavior}", s.handleStreak)
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /history/mood", s.handleSignalHistory)
	mux.HandleFunc("GET /history/actions", s.handleActionHistory)
	mux.HandleFunc("GET /coach", s.handleCoach)
	mux.HandleFunc("GET /efficacy", s.handleEfficacy)
	mux.Handle("GET /metrics", metrics.Handler())
	if s.devices != nil {
		mux.Handle("GET /ws", s.devices)
	}
	s.handler = logRequests(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "http").Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// #endregion server

// #region responses

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Str("component", "http").Msg("write response")
	}
}

// statusFor maps engine and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, signals.ErrInvalidSignal),
		errors.Is(err, feedback.ErrUnknownOutcome),
		errors.Is(err, catalog.ErrInvalidCatalog),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUnresolvedFeedback), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrWriteConflict):
		return http.StatusConflict
	case errors.Is(err, engine.ErrDataUnavailable), errors.Is(err, signals.ErrNoInferrer):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("component", "http").Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// #endregion responses

// #region middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the WebSocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().Str("component", "http").Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", rec.status).Dur("took", time.Since(start)).Msg("request")
	})
}

// #endregion middleware
