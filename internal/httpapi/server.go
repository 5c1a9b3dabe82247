package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/httpapi/middleware"
	"github.com/hamed0406/checkqueue/internal/notify"
	"github.com/hamed0406/checkqueue/internal/probe"
	"github.com/hamed0406/checkqueue/internal/repo"
	"github.com/hamed0406/checkqueue/internal/scheduler"
)

// Hub is the part of the engine the transport needs.
type Hub interface {
	Register(ctx context.Context, client string, obs notify.Observer) error
	Unregister(ctx context.Context, client string, obs notify.Observer) error
	Snapshot(ctx context.Context) (scheduler.Snapshot, error)
}

type Options struct {
	AllowedClients []string
	TrustedProxies []string // empty means RemoteAddr is the client
	SubmitRPM      int
	SubmitBurst    int
	Metrics        http.Handler // nil disables /metrics
}

type Server struct {
	Logger *zap.Logger
	Checks repo.CheckStore
	Hub    Hub
	opts   Options
	valid  *validator.Validate
}

func NewServer(l *zap.Logger, checks repo.CheckStore, hub Hub, opts Options) *Server {
	return &Server{Logger: l, Checks: checks, Hub: hub, opts: opts, valid: validator.New()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.TrustProxies(s.opts.TrustedProxies))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AllowClients(s.opts.AllowedClients, s.Logger))
		r.Get("/api/events", s.handleEvents)
		r.Get("/api/checks", s.handleListChecks)
		r.With(middleware.RateLimit(s.opts.SubmitRPM, s.opts.SubmitBurst)).Post("/api/checks", s.handleSubmit)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Hub.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "engine": snap})
}

type submitPayload struct {
	URL string `json:"url" validate:"required,max=2048"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var p submitPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	p.URL = strings.TrimSpace(p.URL)
	if err := s.valid.Struct(p); err != nil {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if err := checkTarget(p.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client := middleware.ClientIP(r)
	c := &domain.CheckRequest{
		RequestURL:    p.URL,
		RequestClient: client,
		Status:        domain.StatusPending,
	}
	if err := s.Checks.Add(r.Context(), c); err != nil {
		s.Logger.Error("submit_store_error", zap.String("client", client), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	s.Logger.Info("check_submitted",
		zap.String("id", c.ID),
		zap.String("url", c.RequestURL),
		zap.String("client", client),
	)
	writeJSON(w, http.StatusAccepted, c)
}

var errScheme = errors.New("url scheme must be http or https")

func checkTarget(raw string) error {
	u, err := probe.SanitizeURL(raw)
	if err != nil {
		return errors.New("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errScheme
	}
	return nil
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	cs, err := s.Checks.FindByClient(r.Context(), middleware.ClientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
