package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/refineloop/internal/core/error"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
	maxBodyBytes     = 1 << 20
)

// Runner is the workflow invocation boundary.
type Runner interface {
	Run(ctx context.Context, in model.RunInput) (*model.RunResult, error)
	Stream(ctx context.Context, in model.RunInput) (<-chan model.Event, error)
}

// MemoryPurger drops a scope's long-term memory.
type MemoryPurger interface {
	Purge(ctx context.Context, scopeID string) error
}

// Server serves the refine loop over HTTP. Memory, Audit and Gatherer are optional.
type Server struct {
	Runner   Runner
	Memory   MemoryPurger
	Audit    model.RunAuditRepository
	Gatherer prometheus.Gatherer
}

// chatRequest mirrors model.RunInput; store_memory defaults to true.
type chatRequest struct {
	Message          string       `json:"message"`
	ScopeID          string       `json:"scope_id"`
	AgentDescription string       `json:"agent_description"`
	PriorTurns       []model.Turn `json:"prior_turns"`
	StoreMemory      *bool        `json:"store_memory"`
	MemoryMode       string       `json:"memory_mode"`
}

func (r chatRequest) runInput() model.RunInput {
	store := true
	if r.StoreMemory != nil {
		store = *r.StoreMemory
	}
	return model.RunInput{
		UserMessage:      r.Message,
		ScopeID:          r.ScopeID,
		AgentDescription: r.AgentDescription,
		PriorTurns:       r.PriorTurns,
		StoreMemory:      store,
		MemoryMode:       r.MemoryMode,
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// NewHandler builds the chi router.
func NewHandler(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.Chat)
		r.Post("/chat/stream", s.ChatStream)
		r.Delete("/memory/{scopeID}", s.PurgeMemory)
		r.Get("/scopes/{scopeID}/runs", s.ListRuns)
	})
	return r
}

// Chat handles POST /api/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Runner.Run(r.Context(), req.runInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ChatStream handles POST /api/chat/stream, writing one JSON event per line.
func (s *Server) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := s.Runner.Stream(r.Context(), req.runInput())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			logx.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("stream write failed")
			// keep draining so the run goroutine can finish
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// PurgeMemory handles DELETE /api/memory/{scopeID}.
func (s *Server) PurgeMemory(w http.ResponseWriter, r *http.Request) {
	scopeID := strings.TrimSpace(chi.URLParam(r, "scopeID"))
	if scopeID == "" {
		writeError(w, errx.InvalidInput("scope id is required"))
		return
	}
	if s.Memory == nil {
		writeError(w, errx.New(nil, http.StatusNotImplemented, "memory store is not configured"))
		return
	}
	if err := s.Memory.Purge(r.Context(), scopeID); err != nil {
		writeError(w, err)
		return
	}
	if s.Audit != nil {
		if err := s.Audit.Clear(r.Context(), scopeID); err != nil {
			logx.Warn().Err(err).Str("scope_id", scopeID).Msg("run audit clear failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRuns handles GET /api/scopes/{scopeID}/runs?limit=N.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	scopeID := strings.TrimSpace(chi.URLParam(r, "scopeID"))
	if s.Audit == nil {
		writeError(w, errx.New(nil, http.StatusNotImplemented, "run audit is not configured"))
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errx.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := s.Audit.List(r.Context(), scopeID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope_id": scopeID, "runs": runs})
}

func decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return req, errx.InvalidInput("malformed JSON body")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errx.StatusOf(err)
	resp := errorResponse{Error: errx.SystemErrorMessage}
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		if status < http.StatusInternalServerError && appErr.Err != nil {
			resp.Detail = appErr.Err.Error()
		}
	}
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logx.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
