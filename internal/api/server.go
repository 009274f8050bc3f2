package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageproxy/internal/proxy"
	"github.com/JakeFAU/pageproxy/internal/telemetry"
)

// Fetcher runs one proxied fetch.
type Fetcher interface {
	Fetch(ctx context.Context, request proxy.FetchRequest) proxy.Outcome
	Stages() []proxy.Stage
}

// IDGenerator issues request IDs and vets IDs supplied by callers.
type IDGenerator interface {
	NewID() (string, error)
	Accept(candidate string) (string, bool)
}

// Options tunes the HTTP surface.
type Options struct {
	RequestTimeout time.Duration
	// FailuresAsOK reports terminal fetch failures as 200 envelopes instead of 502.
	FailuresAsOK bool
}

// Server wires HTTP handlers to the fetch orchestrator.
type Server struct {
	router  chi.Router
	fetcher Fetcher
	idGen   IDGenerator
	clock   proxy.Clock
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	fetcher Fetcher,
	idGen IDGenerator,
	clock proxy.Clock,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		fetcher: fetcher,
		idGen:   idGen,
		clock:   clock,
		opts:    opts,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(requestIDMiddleware(idGen, logger))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/", s.fetch)
	r.Get("/api/worker", s.fetch)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	stages := s.fetcher.Stages()
	names := make([]string, 0, len(stages))
	for _, stage := range stages {
		names = append(names, string(stage))
	}
	if len(names) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "strategies": names})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "strategies": names})
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	request := proxy.FetchRequest{
		TargetURL:   strings.TrimSpace(query.Get("url")),
		ExtractText: isSet(query.Get("cheerio")) || isSet(query.Get("text")),
		ClientID:    clientID(r),
	}
	// A client hanging up does not abort an admitted fetch; each strategy
	// bounds itself with its own timeout.
	ctx := context.WithoutCancel(r.Context())
	out := s.fetcher.Fetch(ctx, request)
	s.respond(w, r, out)
}

// clientID is the first X-Forwarded-For entry, or "unknown".
func clientID(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return "unknown"
	}
	first, _, _ := strings.Cut(forwarded, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return "unknown"
	}
	return first
}

func isSet(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
