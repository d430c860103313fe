package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/trackline/server/internal/domain/ids"
	"github.com/trackline/server/internal/metrics"
)

// RiverPublisher implements the issue service's Publisher by enqueueing an
// event delivery job on the Postgres-backed queue. Once the insert returns,
// the event is durable and will be delivered (with retries) even across a
// process restart. An insert failure propagates to the caller.
type RiverPublisher struct {
	client      *river.Client[pgx.Tx]
	maxAttempts int
}

func NewRiverPublisher(client *river.Client[pgx.Tx], maxAttempts int) *RiverPublisher {
	if maxAttempts <= 0 {
		maxAttempts = DeliveryMaxAttempts
	}
	return &RiverPublisher{client: client, maxAttempts: maxAttempts}
}

func (p *RiverPublisher) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	eventID, err := ids.NewULID()
	if err != nil {
		return fmt.Errorf("mint event id: %w", err)
	}

	args := EventDeliveryArgs{
		EventID:    eventID,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Payload:    body,
		OccurredAt: time.Now().UTC(),
	}
	if _, err := p.client.Insert(ctx, args, &river.InsertOpts{MaxAttempts: p.maxAttempts}); err != nil {
		return fmt.Errorf("enqueue event %s/%s: %w", exchange, routingKey, err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(exchange, routingKey).Inc()
	return nil
}
