package audit

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestLogWritesJSONEntry(t *testing.T) {
	buf := captureOutput(t)
	logger := NewLogger()

	logger.Log(Entry{
		Action:       "issue.delete",
		Actor:        "agent-1",
		ResourceType: "issue",
		ResourceID:   "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Status:       "success",
	})

	line := strings.TrimPrefix(strings.TrimSpace(buf.String()), "[AUDIT] ")
	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	require.Equal(t, "issue.delete", entry.Action)
	require.Equal(t, "agent-1", entry.Actor)
	require.False(t, entry.Timestamp.IsZero())
}

func TestLogFromRequestWithoutClaims(t *testing.T) {
	buf := captureOutput(t)
	logger := NewLogger()

	req := httptest.NewRequest("POST", "/api/v1/issues", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	logger.LogFromRequest(req, "issue.create", "issue", "", "failure", map[string]string{"reason": "validation"})

	line := strings.TrimPrefix(strings.TrimSpace(buf.String()), "[AUDIT] ")
	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	require.Equal(t, "unknown", entry.Actor)
	require.Equal(t, "192.0.2.10:5555", entry.IPAddress)
	require.Equal(t, "failure", entry.Status)
	require.Equal(t, "validation", entry.Details["reason"])
}
