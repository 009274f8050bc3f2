// Package headless contains the render strategy, which executes page
// JavaScript in a remote headless browser and returns its visible text.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/pageproxy/internal/proxy"
)

// DefaultEndpoint is the hosted browser service used when none is configured.
const DefaultEndpoint = "wss://production-sfo.browserless.io"

const (
	defaultTimeout      = 15 * time.Second
	defaultCloseTimeout = 5 * time.Second
)

var (
	// ErrRenderDisabled reports that no browser token is configured.
	ErrRenderDisabled = errors.New("render strategy not configured")

	errSessionBudget = errors.New("render session budget exhausted")
)

// Config controls the behavior of the render strategy.
type Config struct {
	Endpoint     string
	Token        string
	Timeout      time.Duration
	CloseTimeout time.Duration
	// SessionsPerSecond paces how often new browser sessions may be opened.
	// Zero disables pacing.
	SessionsPerSecond float64
	Burst             int
}

// Enabled reports whether a token is present.
func (c Config) Enabled() bool {
	return c.Token != ""
}

// Renderer implements proxy.Strategy against a remote Chrome DevTools endpoint.
type Renderer struct {
	cfg    Config
	pacer  *rate.Limiter
	dial   dialer
	logger *zap.Logger
}

// New creates a Renderer backed by chromedp.
func New(cfg Config, logger *zap.Logger) *Renderer {
	return newRenderer(cfg, dialRemote, logger)
}

func newRenderer(cfg Config, dial dialer, logger *zap.Logger) *Renderer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var pacer *rate.Limiter
	if cfg.SessionsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		pacer = rate.NewLimiter(rate.Limit(cfg.SessionsPerSecond), burst)
	}
	return &Renderer{
		cfg:    cfg,
		pacer:  pacer,
		dial:   dial,
		logger: logger,
	}
}

// Stage implements proxy.Strategy.
func (r *Renderer) Stage() proxy.Stage {
	return proxy.StageRender
}

// Attempt implements proxy.Strategy.
func (r *Renderer) Attempt(ctx context.Context, request proxy.FetchRequest) (proxy.Outcome, error) {
	start := time.Now()
	text, err := r.Render(ctx, request.TargetURL)
	if err != nil {
		return proxy.Outcome{}, err
	}
	out := proxy.RenderedText(text)
	out.Duration = time.Since(start)
	return out, nil
}

// Render opens a browser session, waits for the DOM to be parsed and returns
// the collapsed innerText of the document body. The session is always closed
// before Render returns. Failures are returned as *proxy.Failure.
func (r *Renderer) Render(ctx context.Context, targetURL string) (string, error) {
	if !r.cfg.Enabled() {
		return "", proxy.NewFailure(proxy.StageRender, proxy.ReasonConfiguration,
			"browser token is not configured", ErrRenderDisabled)
	}
	if r.pacer != nil && !r.pacer.Allow() {
		return "", proxy.NewFailure(proxy.StageRender, proxy.ReasonTransientQuota,
			"too many browser sessions", errSessionBudget)
	}
	endpoint, err := r.endpointURL()
	if err != nil {
		return "", proxy.NewFailure(proxy.StageRender, proxy.ReasonConfiguration,
			"invalid browser endpoint", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	sess, err := r.dial(ctx, endpoint)
	if err != nil {
		return "", classify(r.redact(fmt.Errorf("open browser session: %w", err)), 0)
	}
	defer r.closeSession(sess, targetURL)

	text, status, err := sess.Text(ctx, targetURL)
	if err != nil {
		return "", classify(r.redact(err), status)
	}
	if failure := documentStatusFailure(status); failure != nil {
		return "", failure
	}
	return text, nil
}

func (r *Renderer) closeSession(sess session, targetURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CloseTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		r.logger.Warn("failed to close browser session", zap.String("url", targetURL), zap.Error(err))
	}
}

func (r *Renderer) endpointURL() (string, error) {
	u, err := url.Parse(r.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("endpoint scheme must be ws or wss, got %q", u.Scheme)
	}
	q := u.Query()
	q.Set("token", r.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
