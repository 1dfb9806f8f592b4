package nlu

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"billing-agent/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m := metrics.New("test", prometheus.NewRegistry())
	return New(Config{BaseURL: srv.URL, Model: "llama3.1", Timeout: 2 * time.Second}, slog.Default(), m)
}

func chatReply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": content},
		})
	}
}

func TestExtractParsesJSON(t *testing.T) {
	client := newTestClient(t, chatReply(`{"intent":"query_bill","slots":{"subscriberNo":"1001","year":2024,"month":10},"missing":[],"ask":""}`))

	result, err := client.Extract(context.Background(), "bill for 1001 october 2024")
	require.NoError(t, err)
	require.Equal(t, "query_bill", result.Intent)
	require.Equal(t, "1001", result.Slots["subscriberNo"])
	require.Empty(t, result.Missing)
}

func TestExtractScansOutermostBraces(t *testing.T) {
	// Models wrap output in prose or fences despite the instructions.
	content := "Sure! Here is the extraction:\n```json\n" +
		`{"intent":"query_bill_detailed","slots":{"subscriberNo":"1001"},"missing":["year","month"],"ask":"Which month and year?"}` +
		"\n```\nLet me know if you need anything else."
	client := newTestClient(t, chatReply(content))

	result, err := client.Extract(context.Background(), "detailed bill 1001")
	require.NoError(t, err)
	require.Equal(t, "query_bill_detailed", result.Intent)
	require.Equal(t, []string{"year", "month"}, result.Missing)
	require.Equal(t, "Which month and year?", result.Ask)
}

func TestExtractNoJSONDegrades(t *testing.T) {
	client := newTestClient(t, chatReply("I am just a language model and cannot help with that."))

	result, err := client.Extract(context.Background(), "???")
	require.NoError(t, err)
	require.Equal(t, "unknown", result.Intent)
	require.Equal(t, CouldNotParse, result.Ask)
	require.Empty(t, result.Slots)
}

func TestExtractMalformedJSONDegrades(t *testing.T) {
	client := newTestClient(t, chatReply(`{"intent": "query_bill", "slots": {`))

	result, err := client.Extract(context.Background(), "bill please")
	require.NoError(t, err)
	require.Equal(t, "unknown", result.Intent)
	require.Equal(t, CouldNotParse, result.Ask)
}

func TestExtractNon200IsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := client.Extract(context.Background(), "bill please")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=404")
}

func TestExtractSendsContract(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		chatReply(`{"intent":"help","slots":{},"missing":[],"ask":""}`)(w, r)
	})

	_, err := client.Extract(context.Background(), "what can you do?")
	require.NoError(t, err)

	require.Equal(t, "llama3.1", captured.Model)
	require.False(t, captured.Stream)
	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	// The intent set and slot names are part of the wire contract.
	for _, fragment := range []string{
		"query_bill, query_bill_detailed, pay_bill, help, unknown",
		"subscriberNo: string",
		"month: integer (1-12)",
	} {
		require.True(t, strings.Contains(captured.Messages[0].Content, fragment), "system prompt missing %q", fragment)
	}
	require.Equal(t, "what can you do?", captured.Messages[1].Content)
}
