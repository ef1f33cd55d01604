package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/metrics"
	"github.com/JakeFAU/matchweek-ingest/internal/progress/sinks"
	"github.com/JakeFAU/matchweek-ingest/internal/season"
)

const lookupTimeout = 3 * time.Second

// RunSource exposes the live run snapshot.
type RunSource interface {
	Snapshot() (sinks.RunSnapshot, bool)
}

// LedgerReader looks up the last recorded outcome of a matchweek. Unknown
// keys yield capture.ErrEntryNotFound.
type LedgerReader interface {
	Get(ctx context.Context, season string, matchweek int) (capture.LedgerEntry, error)
}

// Deps holds the optional collaborators of the server. Nil fields disable
// the matching routes with 503.
type Deps struct {
	Runs   RunSource
	Ledger LedgerReader
	// Ready reports whether downstream dependencies are usable.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// Server wires HTTP handlers to the run tracker and ledger.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs/current", s.currentRun)
		r.Get("/ledger/{season}/{matchweek}", s.ledgerEntry)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) currentRun(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run tracking unavailable")
		return
	}
	snap, ok := s.deps.Runs.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no run yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type ledgerEntryDTO struct {
	RunID       string    `json:"run_id"`
	Season      string    `json:"season"`
	Matchweek   int       `json:"matchweek"`
	Status      string    `json:"status"`
	BlobURI     string    `json:"blob_uri,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	MatchCount  int       `json:"match_count"`
	Error       string    `json:"error,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ledgerEntry handles GET /v1/ledger/{season}/{matchweek}. The season may use
// either "2025-26" or an escaped "2025/26".
func (s *Server) ledgerEntry(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	rawSeason, err := url.PathUnescape(chi.URLParam(r, "season"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid season")
		return
	}
	seasonName := season.Normalize(rawSeason)
	mw, err := strconv.Atoi(chi.URLParam(r, "matchweek"))
	if err != nil || mw < 1 {
		writeError(w, http.StatusBadRequest, "matchweek must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()
	entry, err := s.deps.Ledger.Get(ctx, seasonName, mw)
	if errors.Is(err, capture.ErrEntryNotFound) {
		writeError(w, http.StatusNotFound, "no outcome recorded")
		return
	}
	if err != nil {
		s.logger.Error("ledger lookup failed", zap.String("season", seasonName), zap.Int("matchweek", mw), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ledger lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, ledgerEntryDTO{
		RunID:       entry.RunID,
		Season:      entry.Season,
		Matchweek:   entry.Matchweek,
		Status:      string(entry.Status),
		BlobURI:     entry.BlobURI,
		ContentHash: entry.ContentHash,
		MatchCount:  entry.MatchCount,
		Error:       entry.ErrorText,
		RecordedAt:  entry.RecordedAt,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
