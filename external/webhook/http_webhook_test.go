package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foxseedlab/kikitori/internal/webhook"
	"github.com/stretchr/testify/require"
)

func TestSendSessionSummary_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	require.NoError(t, sender.SendSessionSummary(context.Background(), webhook.SessionWebhookPayload{SessionID: 1}))
}

func TestSendSessionSummary_Success(t *testing.T) {
	var got webhook.SessionWebhookPayload
	var gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	err := sender.SendSessionSummary(context.Background(), webhook.SessionWebhookPayload{
		SchemaVersion: webhook.SessionWebhookSchemaVersion,
		RunID:         "run-1",
		SessionID:     7,
		FinalCount:    1,
		CloseReason:   "stop",
		Captions:      []webhook.SessionWebhookCaption{{Seq: 1, Text: "hello world"}},
		Transcript:    "00:00:01 hello world",
	})
	require.NoError(t, err)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, int64(7), got.SessionID)
	require.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Captions, 1)
	require.Equal(t, "hello world", got.Captions[0].Text)
	require.Equal(t, "00:00:01 hello world", got.Transcript)
}

func TestSendSessionSummary_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	err := sender.SendSessionSummary(context.Background(), webhook.SessionWebhookPayload{SessionID: 1})
	require.ErrorContains(t, err, "status 400")
}
