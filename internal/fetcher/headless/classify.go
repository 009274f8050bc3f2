package headless

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gobwas/ws"

	"github.com/JakeFAU/pageproxy/internal/proxy"
)

// classify maps a render error to a failure. status is the main document
// status observed before the error, or 0.
func classify(err error, status int) *proxy.Failure {
	var (
		handshake ws.StatusError
		netErr    net.Error
	)
	switch {
	case errors.As(err, &handshake):
		if reason, ok := reasonForStatus(int(handshake)); ok {
			f := proxy.NewFailure(proxy.StageRender, reason, "browser service refused the session", err)
			f.UpstreamStatus = int(handshake)
			return f
		}
		return proxy.NewFailure(proxy.StageRender, proxy.ReasonNetwork, "browser service handshake failed", err)
	case isQuotaOrBlocked(status):
		f := documentStatusFailure(status)
		f.Err = err
		return f
	case errors.Is(err, context.DeadlineExceeded):
		return proxy.NewFailure(proxy.StageRender, proxy.ReasonTimeout, "render timed out", err)
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return proxy.NewFailure(proxy.StageRender, proxy.ReasonTimeout, "render timed out", err)
		}
		return proxy.NewFailure(proxy.StageRender, proxy.ReasonNetwork, "browser service unreachable", err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return proxy.NewFailure(proxy.StageRender, proxy.ReasonTransientQuota, "browser service rate limited", err)
	case strings.Contains(msg, "403"):
		return proxy.NewFailure(proxy.StageRender, proxy.ReasonBlocked, "browser service blocked the session", err)
	}
	return proxy.NewFailure(proxy.StageRender, proxy.ReasonUnknown, "render failed", err)
}

// documentStatusFailure returns a failure when the rendered document itself
// answered with a quota or block status.
func documentStatusFailure(status int) *proxy.Failure {
	reason, ok := reasonForStatus(status)
	if !ok {
		return nil
	}
	f := &proxy.Failure{
		Stage:          proxy.StageRender,
		Reason:         reason,
		Message:        "target page refused the browser",
		Detail:         fmt.Sprintf("document returned status %d", status),
		UpstreamStatus: status,
	}
	return f
}

func isQuotaOrBlocked(status int) bool {
	_, ok := reasonForStatus(status)
	return ok
}

func reasonForStatus(status int) (proxy.Reason, bool) {
	switch status {
	case http.StatusTooManyRequests:
		return proxy.ReasonTransientQuota, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return proxy.ReasonBlocked, true
	default:
		return "", false
	}
}
