package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trackline/server/internal/messaging"
	"github.com/trackline/server/internal/storage/postgres"
)

type receivedEvent struct {
	Signature string
	Envelope  messaging.Envelope
	Body      []byte
}

// eventReceiver is a webhook endpoint that records every delivery.
type eventReceiver struct {
	mu     sync.Mutex
	events []receivedEvent
	server *httptest.Server
}

func newEventReceiver(t *testing.T) *eventReceiver {
	t.Helper()

	receiver := &eventReceiver{}
	receiver.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var envelope messaging.Envelope
		require.NoError(t, json.Unmarshal(body, &envelope))

		receiver.mu.Lock()
		receiver.events = append(receiver.events, receivedEvent{
			Signature: r.Header.Get("X-Tracker-Signature"),
			Envelope:  envelope,
			Body:      body,
		})
		receiver.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(receiver.server.Close)
	return receiver
}

func (r *eventReceiver) received() []receivedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receivedEvent(nil), r.events...)
}

func (r *eventReceiver) waitFor(t *testing.T, routingKey string, timeout time.Duration) receivedEvent {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, event := range r.received() {
			if event.Envelope.RoutingKey == routingKey {
				return event
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("no delivery with routing key %s within %s", routingKey, timeout)
	return receivedEvent{}
}

func subscribe(t *testing.T, env *testEnv, exchange, bindingKey, endpoint string) {
	t.Helper()

	subs, ok := env.Repo.Subscriptions().(*postgres.SubscriptionRepository)
	require.True(t, ok)
	_, err := subs.Create(env.Context, exchange, bindingKey, endpoint)
	require.NoError(t, err)
}

func TestIssueCreateDeliversEvents(t *testing.T) {
	env := setupTestEnv(t)

	news := newEventReceiver(t)
	direct := newEventReceiver(t)
	subscribe(t, env, "news", "news.issue.#", news.server.URL)
	subscribe(t, env, "direct-exchange", "project.issue.created", direct.server.URL)

	resp := postJSON(t, env, "/api/v1/issues", agentToken(t, env), map[string]any{
		"title":     "Delivery check",
		"projectId": "events",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	issueID, ok := decodeBody(t, resp)["id"].(string)
	require.True(t, ok)

	newsEvent := news.waitFor(t, "news.issue.create", 30*time.Second)
	require.Equal(t, "news", newsEvent.Envelope.Exchange)
	require.Equal(t, messaging.SignPayload(env.SigningKey, newsEvent.Body), newsEvent.Signature)

	var newsPayload struct {
		Title   string `json:"title"`
		IssueID string `json:"issueId"`
	}
	require.NoError(t, json.Unmarshal(newsEvent.Envelope.Payload, &newsPayload))
	require.Equal(t, "Delivery check", newsPayload.Title)
	require.Equal(t, issueID, newsPayload.IssueID)

	directEvent := direct.waitFor(t, "project.issue.created", 30*time.Second)
	require.Equal(t, "direct-exchange", directEvent.Envelope.Exchange)

	var notification struct {
		UUID string `json:"uuid"`
	}
	require.NoError(t, json.Unmarshal(directEvent.Envelope.Payload, &notification))
	require.Equal(t, issueID, notification.UUID)
}

func TestBindingKeyScopesDeliveries(t *testing.T) {
	env := setupTestEnv(t)
	token := agentToken(t, env)

	deletesOnly := newEventReceiver(t)
	subscribe(t, env, "news", "news.issue.delete", deletesOnly.server.URL)

	resp := postJSON(t, env, "/api/v1/issues", token, map[string]any{
		"title":     "Short lived",
		"projectId": "events",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	issueID, ok := decodeBody(t, resp)["id"].(string)
	require.True(t, ok)

	req, err := http.NewRequest(http.MethodDelete, env.Server.URL+"/api/v1/issues/"+issueID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = env.Server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	event := deletesOnly.waitFor(t, "news.issue.delete", 30*time.Second)
	require.Equal(t, "news", event.Envelope.Exchange)

	// The create event does not match the exact binding and must not arrive.
	for _, got := range deletesOnly.received() {
		require.NotEqual(t, "news.issue.create", got.Envelope.RoutingKey)
	}
}
