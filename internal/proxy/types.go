// Package proxy defines core types shared across the fetch pipeline.
package proxy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage identifies which part of the pipeline produced a failure.
type Stage string

// Stage values reported in failures and metrics.
const (
	StageNone   Stage = "none"
	StageRender Stage = "render"
	StageStatic Stage = "staticFetch"
)

// Reason classifies why a fetch or admission failed.
type Reason string

// Reason values. They double as the machine-readable error code returned to callers.
const (
	ReasonMissingInput   Reason = "missing-input"
	ReasonRateLimited    Reason = "rate-limited"
	ReasonConfiguration  Reason = "configuration"
	ReasonTransientQuota Reason = "transient-quota"
	ReasonBlocked        Reason = "upstream-blocked"
	ReasonTimeout        Reason = "timeout"
	ReasonNetwork        Reason = "network"
	ReasonUpstreamStatus Reason = "upstream-status"
	ReasonUnknown        Reason = "unknown"
)

// Recoverable reports whether a failure with this reason always permits
// falling back to the next strategy.
func (r Reason) Recoverable() bool {
	switch r {
	case ReasonTransientQuota, ReasonBlocked, ReasonConfiguration:
		return true
	default:
		return false
	}
}

// FetchRequest captures a single proxied fetch.
type FetchRequest struct {
	TargetURL   string
	ExtractText bool
	ClientID    string
}

// OutcomeKind tags the variant carried by an Outcome.
type OutcomeKind string

// Outcome variants.
const (
	OutcomeRenderedText  OutcomeKind = "rendered-text"
	OutcomeRawHTML       OutcomeKind = "raw-html"
	OutcomeExtractedText OutcomeKind = "extracted-text"
	OutcomeFailure       OutcomeKind = "failure"
)

// DefaultContentType is used when an upstream response does not declare one.
const DefaultContentType = "text/html"

// Outcome is the single result of a fetch. Only the fields that belong to
// Kind are populated.
type Outcome struct {
	Kind        OutcomeKind
	Text        string
	HTML        string
	ContentType string
	Failure     *Failure
	Duration    time.Duration
}

// RenderedText builds a rendered-text outcome.
func RenderedText(text string) Outcome {
	return Outcome{Kind: OutcomeRenderedText, Text: text}
}

// RawHTML builds a raw-html outcome, defaulting the content type.
func RawHTML(html, contentType string) Outcome {
	if strings.TrimSpace(contentType) == "" {
		contentType = DefaultContentType
	}
	return Outcome{Kind: OutcomeRawHTML, HTML: html, ContentType: contentType}
}

// ExtractedText builds an extracted-text outcome.
func ExtractedText(text string) Outcome {
	return Outcome{Kind: OutcomeExtractedText, Text: text}
}

// Failed wraps a failure into an outcome.
func Failed(f *Failure) Outcome {
	return Outcome{Kind: OutcomeFailure, Failure: f}
}

// OK reports whether the outcome carries content.
func (o Outcome) OK() bool {
	return o.Kind != OutcomeFailure
}

// Failure is a classified failure of admission or of a single strategy.
type Failure struct {
	Stage          Stage
	Reason         Reason
	Message        string
	Detail         string
	UpstreamStatus int
	// Body holds a truncated upstream body for diagnostics.
	Body string
	// Previous points at the failure of the strategy attempted before this one.
	Previous *Failure
	// ResetAt is when a rate-limited client may retry.
	ResetAt time.Time
	Err     error
}

// NewFailure builds a Failure whose detail is taken from err when present.
func NewFailure(stage Stage, reason Reason, message string, err error) *Failure {
	f := &Failure{Stage: stage, Reason: reason, Message: message, Err: err}
	if err != nil {
		f.Detail = err.Error()
	}
	return f
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", f.Stage, f.Reason)
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if f.UpstreamStatus != 0 {
		fmt.Fprintf(&b, " (status %d)", f.UpstreamStatus)
	}
	if f.Detail != "" && f.Detail != f.Message {
		b.WriteString(": ")
		b.WriteString(f.Detail)
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from err. Errors that are not classified are
// wrapped as ReasonUnknown for the given stage.
func AsFailure(stage Stage, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		if f.Stage == "" {
			f.Stage = stage
		}
		return f
	}
	return NewFailure(stage, ReasonUnknown, "unexpected fetch error", err)
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
