package llm

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold   int
	OpenTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, OpenTimeout: 30 * time.Second}
}

// Resilient fails fast while the provider keeps failing. Chat turns and
// classification calls share one breaker since they hit the same backend.
type Resilient struct {
	next    domain.LLMClient
	breaker circuitbreaker.CircuitBreaker[string]
}

var _ domain.LLMClient = (*Resilient)(nil)

func NewResilient(next domain.LLMClient, cfg BreakerConfig) *Resilient {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	return &Resilient{
		next: next,
		breaker: circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.OpenTimeout,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- positive, checked above
			},
		}),
	}
}

func (r *Resilient) StartChat(systemPrompt string) domain.ChatSession {
	return &resilientChat{next: r.next.StartChat(systemPrompt), breaker: r.breaker}
}

func (r *Resilient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return r.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
		return r.next.GenerateJSON(ctx, prompt)
	})
}

// State exposes the breaker state for health reporting.
func (r *Resilient) State() circuitbreaker.State {
	return r.breaker.State()
}

type resilientChat struct {
	next    domain.ChatSession
	breaker circuitbreaker.CircuitBreaker[string]
}

func (c *resilientChat) SendTurn(ctx context.Context, prompt string) (string, error) {
	return c.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
		return c.next.SendTurn(ctx, prompt)
	})
}

func (c *resilientChat) ResetSession() {
	c.next.ResetSession()
}
