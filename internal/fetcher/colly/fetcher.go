// Package collyfetcher implements the static fetch strategy using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageproxy/internal/proxy"
)

// DefaultUserAgent impersonates a current desktop Chrome.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const (
	defaultAcceptLanguage = "pt-BR,pt;q=0.9,en;q=0.8"
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultTimeout        = 10 * time.Second
	defaultMaxBodyBytes   = 10 * 1024 * 1024
	defaultErrorBodyChars = 500
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	MaxBodyBytes   int
	// ErrorBodyChars caps how much of a failed response body is kept for diagnostics.
	ErrorBodyChars int
}

// Page is a successfully fetched upstream document.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Fetcher fetches pages with a single plain HTTP GET through Colly.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = defaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ErrorBodyChars <= 0 {
		cfg.ErrorBodyChars = defaultErrorBodyChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
		colly.UserAgent(cfg.UserAgent),
	)
	// Non-2xx responses reach OnResponse so they can be classified here.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Stage implements proxy.Strategy.
func (f *Fetcher) Stage() proxy.Stage {
	return proxy.StageStatic
}

// Attempt implements proxy.Strategy and yields the raw upstream document.
func (f *Fetcher) Attempt(ctx context.Context, request proxy.FetchRequest) (proxy.Outcome, error) {
	page, err := f.Fetch(ctx, request.TargetURL)
	if err != nil {
		return proxy.Outcome{}, err
	}
	out := proxy.RawHTML(string(page.Body), page.ContentType)
	out.Duration = page.Duration
	return out, nil
}

// Fetch executes a single HTTP GET. Failures are returned as *proxy.Failure.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var (
		page     Page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, targetURL, start, &page, &fetchErr)
	if err := f.runCollector(ctx, collector, targetURL, &fetchErr); err != nil {
		failure := classifyTransportError(err)
		f.logger.Debug("static fetch failed", zap.String("url", targetURL), zap.Error(failure))
		return Page{}, failure
	}
	if page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices {
		failure := f.statusFailure(page)
		f.logger.Debug("static fetch upstream error", zap.String("url", targetURL), zap.Int("status", page.StatusCode))
		return Page{}, failure
	}
	if page.ContentType == "" {
		page.ContentType = proxy.DefaultContentType
	}
	return page, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	targetURL string,
	start time.Time,
	result *Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, targetURL, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	targetURL string,
	start time.Time,
	result *Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setBrowserHeaders(targetURL, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		finalURL := targetURL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		*result = Page{
			URL:         finalURL,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) setBrowserHeaders(targetURL string, r *colly.Request) {
	if r.Headers == nil {
		r.Headers = &http.Header{}
	}
	r.Headers.Set("User-Agent", f.cfg.UserAgent)
	r.Headers.Set("Referer", targetURL)
	r.Headers.Set("Accept", defaultAccept)
	r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	r.Headers.Set("Connection", "keep-alive")
	r.Headers.Set("Upgrade-Insecure-Requests", "1")
	r.Headers.Set("Cache-Control", "no-cache")
	r.Headers.Set("Pragma", "no-cache")
}

func (f *Fetcher) statusFailure(page Page) *proxy.Failure {
	reason := proxy.ReasonUpstreamStatus
	switch page.StatusCode {
	case http.StatusTooManyRequests:
		reason = proxy.ReasonTransientQuota
	case http.StatusUnauthorized, http.StatusForbidden:
		reason = proxy.ReasonBlocked
	}
	failure := &proxy.Failure{
		Stage:          proxy.StageStatic,
		Reason:         reason,
		Message:        "upstream returned an error status",
		Detail:         fmt.Sprintf("request failed with status code %d", page.StatusCode),
		UpstreamStatus: page.StatusCode,
		Body:           proxy.Truncate(string(page.Body), f.cfg.ErrorBodyChars),
	}
	return failure
}

func classifyTransportError(err error) *proxy.Failure {
	reason := proxy.ReasonUnknown
	message := "static fetch failed"
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = proxy.ReasonTimeout
		message = "static fetch timed out"
	case errors.As(err, &netErr) && netErr.Timeout():
		reason = proxy.ReasonTimeout
		message = "static fetch timed out"
	case errors.As(err, &netErr):
		reason = proxy.ReasonNetwork
		message = "static fetch network error"
	case errors.Is(err, colly.ErrMissingURL), errors.Is(err, colly.ErrForbiddenURL):
		message = "target url rejected"
	}
	return proxy.NewFailure(proxy.StageStatic, reason, message, err)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
