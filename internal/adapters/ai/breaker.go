package ai

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// BreakerConfig configures the provider circuit breaker
type BreakerConfig struct {
	MaxFailures uint32        // consecutive failures before opening
	Timeout     time.Duration // open state duration before a half-open probe
}

func newBreaker(name string, cfg BreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker[*ChatResponse] {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker[*ChatResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("llm circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.BreakerStateChanges.WithLabelValues(name, to.String()).Inc()
		},
		// Caller cancellations and bad requests are not provider failures
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, errors.ErrInvalidInput)
		},
	})
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return err
}
