package gate

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oneagent/coordination/types"
)

// ReasonEvaluatorUnavailable is the verdict reason attached when the external
// evaluator times out or fails. Callers may retry after backoff.
const ReasonEvaluatorUnavailable = "EvaluatorUnavailable"

// Evaluator is the external quality/compliance collaborator. Implementations
// must be side-effect-free with respect to the coordination core and should
// honor context cancellation.
type Evaluator interface {
	// Evaluate scores the content and decides acceptance. evalCtx carries
	// session-scoped context (topic, sender) the evaluator may use.
	Evaluate(ctx context.Context, content string, evalCtx map[string]any) (*types.Verdict, error)
}

// Config holds configuration for the validation gate.
type Config struct {
	// Timeout is the hard deadline for a single evaluator call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// RateLimit is the maximum evaluator calls per second. Zero disables
	// throttling.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`

	// RateBurst is the burst size for the rate limiter.
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:   5 * time.Second,
		RateLimit: 0,
		RateBurst: 1,
	}
}

// Gate wraps the external evaluator with a bounded timeout and a fail-closed
// fallback: on timeout or evaluator failure it returns a reject verdict with
// reason EvaluatorUnavailable. Unvalidated content never clears the gate.
type Gate struct {
	evaluator Evaluator
	config    *Config
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New creates a validation gate around the given evaluator.
func New(evaluator Evaluator, config *Config, logger *zap.Logger) *Gate {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Gate{
		evaluator: evaluator,
		config:    config,
		limiter:   limiter,
		logger:    logger.With(zap.String("component", "validation_gate")),
	}
}

type evalOutcome struct {
	verdict *types.Verdict
	err     error
}

// Validate runs the content through the evaluator and returns the verdict.
// The call never returns an error to the caller: every failure path collapses
// into a reject verdict so the router has exactly one decision to act on.
func (g *Gate) Validate(ctx context.Context, content string, evalCtx map[string]any) *types.Verdict {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.logger.Warn("evaluator rate limit wait aborted", zap.Error(err))
			return g.rejectUnavailable()
		}
	}

	start := time.Now()
	outcome := make(chan evalOutcome, 1)
	go func() {
		v, err := g.evaluator.Evaluate(ctx, content, evalCtx)
		outcome <- evalOutcome{verdict: v, err: err}
	}()

	select {
	case o := <-outcome:
		if o.err != nil {
			g.logger.Warn("evaluator failed, rejecting fail-closed",
				zap.Error(o.err),
				zap.Duration("elapsed", time.Since(start)),
			)
			return g.rejectUnavailable()
		}
		if o.verdict == nil {
			g.logger.Warn("evaluator returned nil verdict, rejecting fail-closed")
			return g.rejectUnavailable()
		}
		return o.verdict
	case <-ctx.Done():
		g.logger.Warn("evaluator timed out, rejecting fail-closed",
			zap.Duration("timeout", g.config.Timeout),
		)
		return g.rejectUnavailable()
	}
}

func (g *Gate) rejectUnavailable() *types.Verdict {
	return &types.Verdict{
		Accepted: false,
		Score:    0,
		Reasons:  []string{ReasonEvaluatorUnavailable},
	}
}

// Unavailable reports whether a verdict is the gate's fail-closed fallback,
// as opposed to a genuine content rejection.
func Unavailable(v *types.Verdict) bool {
	if v == nil || v.Accepted {
		return false
	}
	for _, r := range v.Reasons {
		if r == ReasonEvaluatorUnavailable {
			return true
		}
	}
	return false
}
