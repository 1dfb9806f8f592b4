package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"billing-agent/internal/metrics"

	"log/slog"
)

// CouldNotParse is the canned clarification used when extraction yields nothing usable.
const CouldNotParse = "I couldn't parse your request. Try again."

// systemPrompt is the fixed instruction sent with every extraction call.
// The intent set and slot field names are part of the wire contract.
const systemPrompt = `You are an intent and slot extraction engine for a banking billing assistant.
Return ONLY valid JSON. No markdown. No extra text.

Allowed intents: query_bill, query_bill_detailed, pay_bill, help, unknown.

Slots:
- subscriberNo: string
- year: integer
- month: integer (1-12)
- page: integer (optional)
- pageSize: integer (optional)
- amount: number (optional)

Rules:
- If required info is missing, put missing field names in "missing" and set "ask" to a single short question.
- If user asks "detailed", use query_bill_detailed.
- If user asks to pay, use pay_bill.
- If month/year not provided, ask for them.

Output schema:
{
  "intent": "...",
  "slots": { "subscriberNo": "...", "year": 2024, "month": 10, "page": 1, "pageSize": 5, "amount": 300 },
  "missing": [],
  "ask": ""
}`

// Extraction is the structured result of the extraction capability.
type Extraction struct {
	Intent  string         `json:"intent"`
	Slots   map[string]any `json:"slots"`
	Missing []string       `json:"missing"`
	Ask     string         `json:"ask"`
}

// Client communicates with an Ollama server to extract intent and slots from free text.
type Client struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client
	baseURL    string
	model      string
}

// Config holds extraction client configuration.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// New creates an Ollama extraction client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		logger:     logger.With("component", "nlu"),
		metrics:    metrics,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Extract asks the model for an (intent, slots, missing, ask) tuple.
// A response without a locatable JSON object degrades to an unknown-intent
// extraction; transport and non-200 failures are returned as errors.
func (c *Client) Extract(ctx context.Context, userText string) (*Extraction, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		Stream: false,
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ExtractRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ollama http: %w", err)
	}
	defer resp.Body.Close()

	statusLabel := fmt.Sprintf("%d", resp.StatusCode)
	c.metrics.ExtractLatency.WithLabelValues(statusLabel).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.ExtractRequests.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("ollama request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	c.metrics.ExtractRequests.WithLabelValues("success").Inc()

	result := parseExtraction(chat.Message.Content)
	c.logger.Debug("extraction", "intent", result.Intent, "missing", result.Missing)
	return result, nil
}

// parseExtraction locates the outermost {...} span in the model output and
// parses it. Anything unusable degrades to an unknown-intent extraction.
func parseExtraction(content string) *Extraction {
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return unparseable()
	}

	var out Extraction
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return unparseable()
	}
	if out.Slots == nil {
		out.Slots = map[string]any{}
	}
	return &out
}

func unparseable() *Extraction {
	return &Extraction{
		Intent:  "unknown",
		Slots:   map[string]any{},
		Missing: []string{},
		Ask:     CouldNotParse,
	}
}
