package messaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/trackline/server/internal/metrics"
)

// EventDeliveryArgs is the queued form of a published domain event.
type EventDeliveryArgs struct {
	EventID    string          `json:"event_id"`
	Exchange   string          `json:"exchange"`
	RoutingKey string          `json:"routing_key"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (EventDeliveryArgs) Kind() string { return JobKindEventDelivery }

// Envelope is the JSON body POSTed to subscriber endpoints.
type Envelope struct {
	ID         string          `json:"id"`
	Exchange   string          `json:"exchange"`
	RoutingKey string          `json:"routingKey"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// EventDeliveryWorker fans a queued event out to every enabled subscription
// whose binding pattern matches the routing key. A failed endpoint fails the
// job, so the queue's retry policy re-delivers; endpoints must tolerate
// duplicate deliveries.
type EventDeliveryWorker struct {
	river.WorkerDefaults[EventDeliveryArgs]
	Subscriptions SubscriptionRepository
	Client        *http.Client
	SigningKey    []byte
	Logger        zerolog.Logger
}

func (EventDeliveryWorker) Kind() string { return JobKindEventDelivery }

func (w EventDeliveryWorker) Work(ctx context.Context, job *river.Job[EventDeliveryArgs]) error {
	if w.Subscriptions == nil {
		return fmt.Errorf("subscription repository not configured")
	}
	if w.Client == nil {
		return fmt.Errorf("http client not configured")
	}

	args := job.Args
	subs, err := w.Subscriptions.ListForExchange(ctx, args.Exchange)
	if err != nil {
		return fmt.Errorf("list subscriptions for %s: %w", args.Exchange, err)
	}

	matched := subs[:0]
	for _, sub := range subs {
		if MatchBindingKey(sub.BindingKey, args.RoutingKey) {
			matched = append(matched, sub)
		}
	}
	if len(matched) == 0 {
		w.Logger.Debug().
			Str("exchange", args.Exchange).
			Str("routing_key", args.RoutingKey).
			Msg("no matching subscriptions")
		return nil
	}

	body, err := json.Marshal(Envelope{
		ID:         args.EventID,
		Exchange:   args.Exchange,
		RoutingKey: args.RoutingKey,
		OccurredAt: args.OccurredAt,
		Payload:    args.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, sub := range matched {
		g.Go(func() error {
			return w.deliver(ctx, sub, args, body)
		})
	}
	return g.Wait()
}

func (w EventDeliveryWorker) deliver(ctx context.Context, sub Subscription, args EventDeliveryArgs, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tracker-Event", args.RoutingKey)
	req.Header.Set("X-Tracker-Event-ID", args.EventID)
	if len(w.SigningKey) > 0 {
		req.Header.Set("X-Tracker-Signature", SignPayload(w.SigningKey, body))
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		metrics.EventDeliveriesTotal.WithLabelValues(args.Exchange, "error").Inc()
		return fmt.Errorf("deliver to %s: %w", sub.Endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.EventDeliveriesTotal.WithLabelValues(args.Exchange, "error").Inc()
		return fmt.Errorf("deliver to %s: unexpected status %d", sub.Endpoint, resp.StatusCode)
	}

	metrics.EventDeliveriesTotal.WithLabelValues(args.Exchange, "success").Inc()
	w.Logger.Debug().
		Str("endpoint", sub.Endpoint).
		Str("routing_key", args.RoutingKey).
		Str("event_id", args.EventID).
		Msg("event delivered")
	return nil
}

// SignPayload computes the hex HMAC-SHA256 signature sent in
// X-Tracker-Signature. Subscribers verify it with the shared webhook key.
func SignPayload(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
