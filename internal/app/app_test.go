package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pageproxy/internal/config"
	"github.com/JakeFAU/pageproxy/internal/proxy"
)

func validConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 30},
		RateLimit: config.RateLimitConfig{
			MaxRequests:          20,
			WindowSeconds:        60,
			SweepIntervalSeconds: 300,
			StaleWindows:         5,
		},
		Render: config.RenderConfig{
			Endpoint:            "wss://chrome.example.com",
			TimeoutSeconds:      15,
			CloseTimeoutSeconds: 5,
			Burst:               1,
		},
		Static: config.StaticConfig{
			TimeoutSeconds: 5,
			MaxBodyBytes:   1 << 20,
			ErrorBodyChars: 500,
		},
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.RateLimit.MaxRequests = 0
	_, err := New(cfg, nil)
	require.ErrorContains(t, err, "ratelimit.max_requests")
}

func TestNewWithoutTokenServesStaticOnly(t *testing.T) {
	t.Parallel()

	a, err := New(validConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, []proxy.Stage{proxy.StageStatic}, a.Orchestrator().Stages())
	require.NoError(t, a.Close())
}

func TestNewWithTokenRendersFirst(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Render.Token = "secret"
	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []proxy.Stage{proxy.StageRender, proxy.StageStatic}, a.Orchestrator().Stages())
}

func TestHandlerExtractsTextThroughStaticStrategy(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><script>x()</script><p>Hello   world</p></body></html>"))
	}))
	t.Cleanup(upstream.Close)

	a, err := New(validConfig(), nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/?text=1&url="+url.QueryEscape(upstream.URL), nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Hello world", body.Text)
}

func TestServeDrainsOnCancel(t *testing.T) {
	t.Parallel()

	a, err := New(validConfig(), nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeReportsListenerFailure(t *testing.T) {
	t.Parallel()

	a, err := New(validConfig(), nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	err = a.serve(context.Background(), ln)
	require.ErrorContains(t, err, "http server")
}
