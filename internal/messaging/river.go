package messaging

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

const JobKindEventDelivery = "event_delivery"

// DeliveryMaxAttempts is the default retry budget for event deliveries.
const DeliveryMaxAttempts = 5

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

func NewRetryPolicy(deliveryMaxAttempts int) *RetryPolicy {
	if deliveryMaxAttempts <= 0 {
		deliveryMaxAttempts = DeliveryMaxAttempts
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: deliveryMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindEventDelivery: {
				MaxAttempts: deliveryMaxAttempts,
				BaseDelay:   15 * time.Second,
				MaxDelay:    15 * time.Minute,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: DeliveryMaxAttempts, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}

// NewWorkers registers the event delivery worker.
func NewWorkers(subs SubscriptionRepository, client *http.Client, signingKey []byte, logger zerolog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[EventDeliveryArgs](workers, EventDeliveryWorker{
		Subscriptions: subs,
		Client:        client,
		SigningKey:    signingKey,
		Logger:        logger,
	})
	return workers
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, deliveryMaxAttempts, maxWorkers int) *river.Config {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	policy := NewRetryPolicy(deliveryMaxAttempts)
	config := &river.Config{
		Workers:     workers,
		RetryPolicy: policy,
		MaxAttempts: policy.Default.MaxAttempts,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Hooks: hooks,
	}
	if logger != nil {
		config.Logger = logger
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, deliveryMaxAttempts, maxWorkers int) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, hooks, deliveryMaxAttempts, maxWorkers))
}
