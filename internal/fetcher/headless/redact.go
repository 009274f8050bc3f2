package headless

import (
	"net/url"
	"strings"
)

const redactedToken = "REDACTED"

// redactedError hides the browser token in the error text. The wrapped chain
// stays intact for errors.Is and errors.As.
type redactedError struct {
	err  error
	text string
}

func (e *redactedError) Error() string { return e.text }

func (e *redactedError) Unwrap() error { return e.err }

// redact strips the configured token, raw or query-escaped, from err's text.
// Dial errors from chromedp quote the full endpoint URL including the token.
func (r *Renderer) redact(err error) error {
	if err == nil || r.cfg.Token == "" {
		return err
	}
	msg := err.Error()
	clean := strings.NewReplacer(
		r.cfg.Token, redactedToken,
		url.QueryEscape(r.cfg.Token), redactedToken,
	).Replace(msg)
	if clean == msg {
		return err
	}
	return &redactedError{err: err, text: clean}
}
