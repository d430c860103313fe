package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/trackline/server/internal/domain/ids"
	"github.com/trackline/server/internal/messaging"
)

func (r *SubscriptionRepository) ListForExchange(ctx context.Context, exchange string) ([]messaging.Subscription, error) {
	queryer := r.queryer()

	rows, err := queryer.Query(ctx, `
SELECT id, exchange, binding_key, endpoint, enabled, created_at
  FROM event_subscriptions
 WHERE exchange = $1 AND enabled
 ORDER BY created_at
`, exchange)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	items := []messaging.Subscription{}
	for rows.Next() {
		var data struct {
			ID         pgtype.UUID
			Exchange   string
			BindingKey string
			Endpoint   string
			Enabled    bool
			CreatedAt  pgtype.Timestamptz
		}
		if err := rows.Scan(&data.ID, &data.Exchange, &data.BindingKey, &data.Endpoint, &data.Enabled, &data.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub := messaging.Subscription{
			ID:         ids.UUIDToString(data.ID),
			Exchange:   data.Exchange,
			BindingKey: data.BindingKey,
			Endpoint:   data.Endpoint,
			Enabled:    data.Enabled,
		}
		if data.CreatedAt.Valid {
			sub.CreatedAt = data.CreatedAt.Time
		}
		items = append(items, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return items, nil
}

// Create registers a webhook subscription. Used by the subscriptions CLI and
// by tests; the HTTP API does not expose subscription management.
func (r *SubscriptionRepository) Create(ctx context.Context, exchange, bindingKey, endpoint string) (*messaging.Subscription, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
INSERT INTO event_subscriptions (exchange, binding_key, endpoint)
VALUES ($1, $2, $3)
RETURNING id, exchange, binding_key, endpoint, enabled, created_at
`, exchange, bindingKey, endpoint)

	var data struct {
		ID         pgtype.UUID
		Exchange   string
		BindingKey string
		Endpoint   string
		Enabled    bool
		CreatedAt  pgtype.Timestamptz
	}
	if err := row.Scan(&data.ID, &data.Exchange, &data.BindingKey, &data.Endpoint, &data.Enabled, &data.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}

	sub := &messaging.Subscription{
		ID:         ids.UUIDToString(data.ID),
		Exchange:   data.Exchange,
		BindingKey: data.BindingKey,
		Endpoint:   data.Endpoint,
		Enabled:    data.Enabled,
	}
	if data.CreatedAt.Valid {
		sub.CreatedAt = data.CreatedAt.Time
	}
	return sub, nil
}

type subscriptionQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *SubscriptionRepository) queryer() subscriptionQueryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
