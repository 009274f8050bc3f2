// Package app builds the long-lived proxy services from configuration and runs
// the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageproxy/internal/api"
	"github.com/JakeFAU/pageproxy/internal/clock/system"
	"github.com/JakeFAU/pageproxy/internal/config"
	"github.com/JakeFAU/pageproxy/internal/extract"
	collyfetcher "github.com/JakeFAU/pageproxy/internal/fetcher/colly"
	"github.com/JakeFAU/pageproxy/internal/fetcher/headless"
	"github.com/JakeFAU/pageproxy/internal/id/uuid"
	"github.com/JakeFAU/pageproxy/internal/orchestrator"
	"github.com/JakeFAU/pageproxy/internal/proxy"
	"github.com/JakeFAU/pageproxy/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// App holds the shared services for one process.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	limiter      *ratelimit.Limiter
	orchestrator *orchestrator.Orchestrator
	apiServer    *api.Server
}

// New validates cfg and wires the rate limiter, strategy chain, orchestrator
// and HTTP surface.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := system.New()
	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests:   cfg.RateLimit.MaxRequests,
		Window:        cfg.RateLimit.Window(),
		SweepInterval: cfg.RateLimit.SweepInterval(),
		StaleWindows:  cfg.RateLimit.StaleWindows,
	}, clock, logger.Named("ratelimit"))

	orch := orchestrator.New(
		limiter,
		extract.New(),
		buildStrategies(cfg, logger),
		orchestrator.Config{Strict: cfg.Render.Strict},
		logger.Named("orchestrator"),
	)

	apiServer := api.NewServer(orch, uuid.New(), clock, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout(),
		FailuresAsOK:   cfg.Server.FailuresAsOK,
	}, logger.Named("api"))

	return &App{
		cfg:          cfg,
		logger:       logger,
		limiter:      limiter,
		orchestrator: orch,
		apiServer:    apiServer,
	}, nil
}

// buildStrategies returns the chain in attempt order. Rendering joins the
// chain only when a browser token is configured.
func buildStrategies(cfg config.Config, logger *zap.Logger) []proxy.Strategy {
	strategies := make([]proxy.Strategy, 0, 2)
	renderCfg := headless.Config{
		Endpoint:          cfg.Render.Endpoint,
		Token:             cfg.Render.Token,
		Timeout:           cfg.Render.Timeout(),
		CloseTimeout:      cfg.Render.CloseTimeout(),
		SessionsPerSecond: cfg.Render.SessionsPerSecond,
		Burst:             cfg.Render.Burst,
	}
	if renderCfg.Enabled() {
		strategies = append(strategies, headless.New(renderCfg, logger.Named("render")))
	} else {
		logger.Warn("render token not set; serving static fetches only")
	}
	strategies = append(strategies, collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Static.UserAgent,
		AcceptLanguage: cfg.Static.AcceptLanguage,
		Timeout:        cfg.Static.Timeout(),
		MaxBodyBytes:   cfg.Static.MaxBodyBytes,
		ErrorBodyChars: cfg.Static.ErrorBodyChars,
	}, logger.Named("static")))
	return strategies
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Orchestrator exposes the fetch pipeline for one-shot use.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP on the configured port until ctx is cancelled, then drains
// in-flight requests.
func (a *App) Run(ctx context.Context) error {
	addr := net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.limiter.Run(ctx)

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started",
			zap.String("addr", ln.Addr().String()),
			zap.Any("strategies", a.orchestrator.Stages()),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Close flushes buffered log entries.
func (a *App) Close() error {
	if err := a.logger.Sync(); err != nil {
		return fmt.Errorf("sync logger: %w", err)
	}
	return nil
}
