package chat

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker around a Generator.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig trips at 80% failures over at least 5 requests and
// tries again after a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "generator",
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Breaker stops calling a failing Generator for a while. While open, every
// call fails immediately with gobreaker.ErrOpenState.
type Breaker struct {
	next Generator
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Generator, cfg BreakerConfig, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Breaker{next: next, cb: cb}
}

// Generate implements Generator.
func (b *Breaker) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
