package messaging

import (
	"context"
	"time"
)

// Subscription binds a consumer endpoint to an exchange with an AMQP-style
// binding key pattern. Events whose routing key matches the pattern are
// POSTed to the endpoint.
type Subscription struct {
	ID         string
	Exchange   string
	BindingKey string
	Endpoint   string
	Enabled    bool
	CreatedAt  time.Time
}

type SubscriptionRepository interface {
	// ListForExchange returns the enabled subscriptions for an exchange.
	ListForExchange(ctx context.Context, exchange string) ([]Subscription, error)
}
