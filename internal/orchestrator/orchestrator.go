// Package orchestrator runs admission and the ordered fetch strategy chain
// for a single request.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageproxy/internal/proxy"
	"github.com/JakeFAU/pageproxy/internal/telemetry"
)

// Config controls fallback behavior.
type Config struct {
	// Strict stops the chain on failures that are not inherently recoverable
	// (timeouts, network errors, unknown errors). By default every failure
	// falls through to the next strategy.
	Strict bool
}

// Orchestrator sequences admission, strategies and text extraction.
type Orchestrator struct {
	limiter    proxy.Admitter
	strategies []proxy.Strategy
	extractor  proxy.TextExtractor
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator. strategies are attempted in order.
func New(
	limiter proxy.Admitter,
	extractor proxy.TextExtractor,
	strategies []proxy.Strategy,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := make([]proxy.Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			chain = append(chain, s)
		}
	}
	return &Orchestrator{
		limiter:    limiter,
		strategies: chain,
		extractor:  extractor,
		cfg:        cfg,
		logger:     logger,
	}
}

// Stages reports the configured chain in attempt order.
func (o *Orchestrator) Stages() []proxy.Stage {
	stages := make([]proxy.Stage, 0, len(o.strategies))
	for _, s := range o.strategies {
		stages = append(stages, s.Stage())
	}
	return stages
}

// Fetch returns exactly one outcome for request. Missing input is reported
// before any quota is consumed.
func (o *Orchestrator) Fetch(ctx context.Context, request proxy.FetchRequest) proxy.Outcome {
	start := time.Now()
	out := o.fetch(ctx, request)
	out.Duration = time.Since(start)
	telemetry.ObserveOutcome(string(out.Kind))
	return out
}

func (o *Orchestrator) fetch(ctx context.Context, request proxy.FetchRequest) proxy.Outcome {
	if strings.TrimSpace(request.TargetURL) == "" {
		return proxy.Failed(&proxy.Failure{
			Stage:   proxy.StageNone,
			Reason:  proxy.ReasonMissingInput,
			Message: "Missing ?url= parameter",
		})
	}

	decision := o.limiter.Admit(request.ClientID)
	if !decision.Allowed {
		o.logger.Info("request rate limited",
			zap.String("client_id", request.ClientID),
			zap.Time("reset_at", decision.ResetAt),
		)
		return proxy.Failed(&proxy.Failure{
			Stage:   proxy.StageNone,
			Reason:  proxy.ReasonRateLimited,
			Message: "Too many requests, slow down.",
			ResetAt: decision.ResetAt,
		})
	}

	if len(o.strategies) == 0 {
		return proxy.Failed(&proxy.Failure{
			Stage:   proxy.StageNone,
			Reason:  proxy.ReasonConfiguration,
			Message: "no fetch strategy configured",
		})
	}

	var previous *proxy.Failure
	for i, strategy := range o.strategies {
		stage := strategy.Stage()
		attemptStart := time.Now()
		out, err := strategy.Attempt(ctx, request)
		elapsed := time.Since(attemptStart)
		if err == nil {
			telemetry.ObserveStrategy(string(stage), "success", elapsed)
			o.logger.Debug("strategy succeeded",
				zap.String("url", request.TargetURL),
				zap.String("stage", string(stage)),
				zap.Duration("duration", elapsed),
			)
			return o.finish(out, request)
		}

		failure := proxy.AsFailure(stage, err)
		failure.Previous = previous
		previous = failure
		telemetry.ObserveStrategy(string(stage), string(failure.Reason), elapsed)
		o.logger.Warn("strategy failed",
			zap.String("url", request.TargetURL),
			zap.String("stage", string(stage)),
			zap.String("reason", string(failure.Reason)),
			zap.Int("upstream_status", failure.UpstreamStatus),
			zap.Duration("duration", elapsed),
			zap.Error(failure),
		)

		if i < len(o.strategies)-1 && !o.continueAfter(failure) {
			o.logger.Info("fallback skipped",
				zap.String("url", request.TargetURL),
				zap.String("stage", string(stage)),
				zap.String("reason", string(failure.Reason)),
			)
			break
		}
	}
	return proxy.Failed(previous)
}

func (o *Orchestrator) continueAfter(f *proxy.Failure) bool {
	if f.Reason.Recoverable() {
		return true
	}
	return !o.cfg.Strict
}

func (o *Orchestrator) finish(out proxy.Outcome, request proxy.FetchRequest) proxy.Outcome {
	if out.Kind == proxy.OutcomeRawHTML && request.ExtractText && o.extractor != nil {
		return proxy.ExtractedText(o.extractor.Extract(out.HTML))
	}
	return out
}
