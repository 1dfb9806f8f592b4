package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
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
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, slog.Default(), m)
}

var testQuery = Query{SubscriberNo: "1001", Year: 2024, Month: 10}

func TestQueryBillSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query-bill", r.URL.Path)
		require.Equal(t, "1001", r.URL.Query().Get("subscriberNo"))
		require.Equal(t, "2024", r.URL.Query().Get("year"))
		require.Equal(t, "10", r.URL.Query().Get("month"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"subscriberNo":"1001","year":2024,"month":10,"billTotal":480.5,"isPaid":false}`))
	})

	result, err := client.QueryBill(context.Background(), testQuery, false)
	require.NoError(t, err)
	require.Equal(t, "1001", result.SubscriberNo)
	require.Equal(t, 480.5, result.Total)
	require.False(t, result.IsPaid)
	require.Empty(t, result.Items)
}

func TestQueryBillDetailedEndpointAndPaging(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query-bill-detailed", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "5", r.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"subscriberNo":"1001","year":2024,"month":10,"billTotal":100,"isPaid":true,"details":[{"description":"Calls","amount":60,"itemType":"Usage"},{"description":"Data","amount":40}]}`))
	})

	query := testQuery
	query.Page = 2
	query.PageSize = 5
	result, err := client.QueryBill(context.Background(), query, true)
	require.NoError(t, err)
	require.True(t, result.IsPaid)
	require.Len(t, result.Items, 2)
	require.Equal(t, LineItem{Description: "Calls", Amount: 60, ItemType: "Usage"}, result.Items[0])
	require.Equal(t, LineItem{Description: "Data", Amount: 40}, result.Items[1])
}

func TestQueryBillItemKeyPriority(t *testing.T) {
	// "items" wins over later alternates even when both are present.
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"billTotal":10,"isPaid":false,` +
			`"items":[{"description":"First","amount":1}],` +
			`"breakdown":[{"description":"Second","amount":2}]}`))
	})

	result, err := client.QueryBill(context.Background(), testQuery, true)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, "First", result.Items[0].Description)
}

func TestQueryBillStringEncodedNumbers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"subscriberNo":1001,"year":"2024","month":"10","billTotal":"480.50","isPaid":"true","billItems":[{"name":"Roaming","amount":"12.5"}]}`))
	})

	result, err := client.QueryBill(context.Background(), testQuery, false)
	require.NoError(t, err)
	require.Equal(t, "1001", result.SubscriberNo)
	require.Equal(t, 2024, result.Year)
	require.Equal(t, 10, result.Month)
	require.Equal(t, 480.5, result.Total)
	require.True(t, result.IsPaid)
	require.Equal(t, LineItem{Description: "Roaming", Amount: 12.5}, result.Items[0])
}

func TestQueryBillFallsBackToQueryFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"billTotal":50,"isPaid":false}`))
	})

	result, err := client.QueryBill(context.Background(), testQuery, false)
	require.NoError(t, err)
	require.Equal(t, "1001", result.SubscriberNo)
	require.Equal(t, 2024, result.Year)
	require.Equal(t, 10, result.Month)
}

func TestQueryBillRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Daily query limit exceeded", http.StatusTooManyRequests)
	})

	_, err := client.QueryBill(context.Background(), testQuery, false)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestQueryBillUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.QueryBill(context.Background(), testQuery, false)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestQueryBillDecodeFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})

	_, err := client.QueryBill(context.Background(), testQuery, false)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRateLimited)
	require.NotErrorIs(t, err, ErrUnavailable)
}
