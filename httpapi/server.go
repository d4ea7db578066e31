package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"pkt.systems/judgerelay/core"
	"pkt.systems/judgerelay/internal/logx"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

const maxBodyBytes = 1 << 20

var errRateLimited = errors.New("rate limit exceeded")

// Server serves the HTTP API.
type Server struct {
	cfg         Config
	coordinator core.Coordinator
	limiter     *RateLimiter
	basePath    string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, coordinator core.Coordinator) *Server {
	return &Server{
		cfg:         cfg,
		coordinator: coordinator,
		limiter:     NewRateLimiter(cfg.SubmitRatePerMinute),
		basePath:    cleanPrefix(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/submit", s.handleSubmit)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.HandleFunc("/api/sources", s.handleSources)
	mux.HandleFunc("/api/sessions", s.handleSessions)

	return mount(s.basePath, withRequestLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	log := pslog.Ctx(r.Context())
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow(clientIP(r)) {
		log.Warn("http submit rate limited", "remote", clientIP(r))
		writeEnvelope(w, http.StatusTooManyRequests, schema.Envelope{Code: schema.CodeUnknownError, Message: errRateLimited.Error()})
		return
	}
	var req schema.SubmitRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		log.Warn("http submit decode failed", "err", err)
		writeError(w, invalidBody(err))
		return
	}
	resp, err := s.coordinator.Submit(r.Context(), req)
	if err != nil {
		logx.WithSubmission(log, req.Submission).Warn("http submit failed", "code", schema.CodeOf(err), "err", err)
		writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, schema.NewEnvelope(resp))
	log.Info("http submit ok", "tab", resp.TabID, "session", resp.SessionID)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	log := pslog.Ctx(r.Context())
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req schema.ProgressRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		log.Warn("http progress decode failed", "err", err)
		writeError(w, invalidBody(err))
		return
	}
	report, err := s.coordinator.RequestProgress(r.Context(), req)
	if err != nil {
		logx.WithTab(r.Context(), req.TabID).Debug("http progress unavailable", "code", schema.CodeOf(err), "err", err)
		writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, schema.NewEnvelope(report))
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sources := s.coordinator.Sources(r.Context())
	if sources == nil {
		sources = []schema.Source{}
	}
	writeEnvelope(w, http.StatusOK, schema.NewEnvelope(sources))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.coordinator.ListSessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []schema.SessionSnapshot{}
	}
	writeEnvelope(w, http.StatusOK, schema.NewEnvelope(sessions))
}

func invalidBody(err error) error {
	return &core.WorkflowError{Code: schema.CodeInvalidRequest, Message: "invalid request body: " + err.Error(), Err: schema.ErrInvalidRequest}
}

// statusForCode maps envelope codes onto HTTP statuses. The envelope stays authoritative.
func statusForCode(code schema.Code) int {
	switch code {
	case schema.CodeSuccess:
		return http.StatusOK
	case schema.CodeInvalidRequest, schema.CodeUnsupportedSource:
		return http.StatusBadRequest
	case schema.CodeProgressUnavailable:
		return http.StatusNotFound
	case schema.CodeUnknownError:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeEnvelope(w http.ResponseWriter, status int, env schema.Envelope) {
	writeJSON(w, status, env)
}

func writeError(w http.ResponseWriter, err error) {
	env := schema.EnvelopeFromError(err)
	writeEnvelope(w, statusForCode(env.Code), env)
}
