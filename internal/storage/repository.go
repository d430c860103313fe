package storage

import (
	"context"

	"github.com/trackline/server/internal/domain/issues"
	"github.com/trackline/server/internal/messaging"
)

// Repository groups data access by domain.
type Repository interface {
	Issues() issues.Repository
	Subscriptions() messaging.SubscriptionRepository

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
