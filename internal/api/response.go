package api

import (
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageproxy/internal/proxy"
)

// maxDataChars caps the upstream body echoed in an error envelope.
const maxDataChars = 500

type textBody struct {
	Text string `json:"text"`
}

// errorEnvelope is the JSON body of every error response.
type errorEnvelope struct {
	Error    bool           `json:"error"`
	Message  string         `json:"message"`
	Code     string         `json:"code"`
	Stage    string         `json:"stage,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	Status   int            `json:"status,omitempty"`
	Data     string         `json:"data,omitempty"`
	Previous *errorEnvelope `json:"previous,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, out proxy.Outcome) {
	switch out.Kind {
	case proxy.OutcomeRenderedText, proxy.OutcomeExtractedText:
		writeJSON(w, http.StatusOK, textBody{Text: out.Text})
	case proxy.OutcomeRawHTML:
		w.Header().Set("Content-Type", out.ContentType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(out.HTML)); err != nil {
			s.logger.Warn("write upstream body failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
	default:
		s.respondFailure(w, out.Failure)
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, f *proxy.Failure) {
	if f == nil {
		f = &proxy.Failure{Stage: proxy.StageNone, Reason: proxy.ReasonUnknown, Message: "fetch produced no result"}
	}
	status := s.statusFor(f)
	if f.Reason == proxy.ReasonRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(s.retryAfterSeconds(f)))
	}
	writeJSON(w, status, newErrorEnvelope(f))
}

func (s *Server) statusFor(f *proxy.Failure) int {
	switch f.Reason {
	case proxy.ReasonMissingInput:
		return http.StatusBadRequest
	case proxy.ReasonRateLimited:
		return http.StatusTooManyRequests
	}
	if f.Stage == proxy.StageNone {
		return http.StatusInternalServerError
	}
	if s.opts.FailuresAsOK {
		return http.StatusOK
	}
	return http.StatusBadGateway
}

func (s *Server) retryAfterSeconds(f *proxy.Failure) int {
	if f.ResetAt.IsZero() || s.clock == nil {
		return 1
	}
	secs := int(math.Ceil(f.ResetAt.Sub(s.clock.Now()).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func newErrorEnvelope(f *proxy.Failure) *errorEnvelope {
	env := &errorEnvelope{
		Error:   true,
		Message: f.Message,
		Code:    string(f.Reason),
		Detail:  f.Detail,
		Status:  f.UpstreamStatus,
		Data:    proxy.Truncate(f.Body, maxDataChars),
	}
	if f.Stage != proxy.StageNone && f.Stage != "" {
		env.Stage = string(f.Stage)
		env.Message = "Failed to fetch target URL"
		if env.Detail == "" {
			env.Detail = f.Message
		}
	}
	if f.Previous != nil {
		env.Previous = newErrorEnvelope(f.Previous)
	}
	return env
}
