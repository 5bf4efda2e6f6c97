package ai_usage

import (
	"context"
	"time"
)

// Recorder receives one row per LLM call. Implementations may buffer.
type Recorder interface {
	Store(ctx context.Context, log *UsageLog) error
}

// Reports aggregates recorded calls for the usage API and metrics
type Reports interface {
	// GetUserDailyCost is the USD spent on behalf of userID during the UTC day of date
	GetUserDailyCost(ctx context.Context, userID string, date time.Time) (float64, error)
	GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]float64, error)
	GetAgentCosts(ctx context.Context, from, to time.Time) (map[string]float64, error)
}

type Repository interface {
	Recorder
	Reports
}
