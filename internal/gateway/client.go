package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"billing-agent/internal/metrics"

	"log/slog"
)

const (
	endpointSummary  = "/query-bill"
	endpointDetailed = "/query-bill-detailed"
)

var (
	// ErrRateLimited indicates the gateway returned 429 for the subscriber.
	ErrRateLimited = errors.New("billing gateway rate limited")
	// ErrUnavailable indicates an unexpected non-200 gateway status.
	ErrUnavailable = errors.New("billing gateway unavailable")
)

// itemKeys are the alternate field names the gateway has used for line
// items, in pick order.
var itemKeys = []string{"items", "billItems", "breakdown", "details", "lineItems"}

// Query identifies a single bill lookup.
type Query struct {
	SubscriberNo string
	Year         int
	Month        int
	Page         int
	PageSize     int
}

// LineItem is a single bill breakdown entry.
type LineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	ItemType    string  `json:"itemType,omitempty"`
}

// BillResult is the normalized outcome of a successful dispatch.
type BillResult struct {
	SubscriberNo string
	Year         int
	Month        int
	Total        float64
	IsPaid       bool
	Items        []LineItem
}

// Client provides typed access to the billing gateway.
type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds billing gateway client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a billing gateway client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "gateway"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

// QueryBill issues the downstream lookup against the summary or detailed
// endpoint. Rate limiting and unexpected statuses come back as the
// ErrRateLimited / ErrUnavailable sentinels.
func (c *Client) QueryBill(ctx context.Context, query Query, detailed bool) (*BillResult, error) {
	endpoint := endpointSummary
	if detailed {
		endpoint = endpointDetailed
	}

	params := url.Values{}
	params.Set("subscriberNo", query.SubscriberNo)
	params.Set("year", strconv.Itoa(query.Year))
	params.Set("month", strconv.Itoa(query.Month))
	if detailed && query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if detailed && query.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(query.PageSize))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.metrics.GatewayRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer res.Body.Close()

	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	c.metrics.GatewayRequests.WithLabelValues(endpoint, statusLabel).Inc()
	c.metrics.GatewayLatency.WithLabelValues(endpoint, statusLabel).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, res.StatusCode, strings.TrimSpace(string(body)))
	}

	result, err := parseBillResult(body, query)
	if err != nil {
		return nil, fmt.Errorf("decode bill: %w", err)
	}
	return result, nil
}

// parseBillResult normalizes a gateway payload whose fields may arrive as
// strings or numbers depending on the upstream encoder.
func parseBillResult(body []byte, query Query) (*BillResult, error) {
	data, err := decodeMap(body)
	if err != nil {
		return nil, err
	}

	result := &BillResult{
		SubscriberNo: firstString(data, "subscriberNo", "subscriber_no"),
		Year:         int(firstFloat(data, "year")),
		Month:        int(firstFloat(data, "month")),
		Total:        firstFloat(data, "billTotal", "total"),
		IsPaid:       toBool(data["isPaid"]),
		Items:        pickItems(data),
	}
	if result.SubscriberNo == "" {
		result.SubscriberNo = query.SubscriberNo
	}
	if result.Year == 0 {
		result.Year = query.Year
	}
	if result.Month == 0 {
		result.Month = query.Month
	}
	return result, nil
}

// pickItems takes the first present list among the alternate item field
// names, defaulting to an empty sequence.
func pickItems(data map[string]any) []LineItem {
	for _, key := range itemKeys {
		list, ok := data[key].([]any)
		if !ok {
			continue
		}
		items := make([]LineItem, 0, len(list))
		for _, entry := range list {
			raw, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			item := LineItem{
				Description: firstString(raw, "description", "name"),
				Amount:      firstFloat(raw, "amount"),
				ItemType:    firstString(raw, "itemType", "item_type"),
			}
			if item.Description == "" {
				item.Description = "Item"
			}
			items = append(items, item)
		}
		return items
	}
	return []LineItem{}
}

func decodeMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if str := toString(val); str != "" {
				return str
			}
		}
	}
	return ""
}

func firstFloat(data map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if f := toFloat(val); f != 0 {
				return f
			}
		}
	}
	return 0
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func toFloat(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return parsed
		}
		return 0
	case int:
		return float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err == nil {
			return parsed
		}
		return 0
	default:
		return 0
	}
}

func toBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true") || strings.TrimSpace(v) == "1"
	case float64:
		return v != 0
	default:
		return false
	}
}
