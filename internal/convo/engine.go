package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"billing-agent/internal/gateway"
	"billing-agent/internal/intent"
	"billing-agent/internal/metrics"
	"billing-agent/internal/store"

	"log/slog"
)

// Canned terminal replies.
const (
	helpText = "Commands:\n" +
		"- Use the portal controls (Subscriber/Year/Month) and click Query Bill or Query Detailed\n" +
		"- Or type: 'Show my bill for subscriber 1001 October 2024'\n" +
		"- Pay using the Pay Now button."
	payText           = "Please use the Pay Now button to make a payment."
	notUnderstoodText = "I didn't understand. Try Help, or use the portal Query buttons."
	limitText         = "Daily query limit reached. Please try again later."
	unavailableText   = "The service is temporarily unavailable. Please try again."
)

// warningPrefix marks failure replies so the fallback scan never serves
// them as cached successes.
const warningPrefix = "⚠️ "

// Store is the conversation history the engine reads from and replies into.
type Store interface {
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	Pending(ctx context.Context, conversationID string) ([]store.Message, error)
	MarkProcessed(ctx context.Context, id string) error
	InsertReply(ctx context.Context, conversationID, text string, meta map[string]any) error
	RecentAssistantReplies(ctx context.Context, conversationID string, limit int) ([]store.ReplyRecord, error)
	Listen(ctx context.Context, out chan<- string, ready chan<- struct{}) error
}

// Deduper guards against feed redeliveries.
type Deduper interface {
	SeenMessage(ctx context.Context, id string) (bool, error)
}

// Resolver turns an inbound message into a normalized resolution.
type Resolver interface {
	Resolve(ctx context.Context, text string, meta map[string]any) intent.Resolution
}

// BillingGateway issues the downstream bill lookup.
type BillingGateway interface {
	QueryBill(ctx context.Context, query gateway.Query, detailed bool) (*gateway.BillResult, error)
}

// Engine runs the resolution-validation-dispatch-formatting pipeline over a
// single conversation. One worker goroutine processes messages to
// completion, in arrival order.
type Engine struct {
	store          Store
	dedup          Deduper
	resolver       Resolver
	gateway        BillingGateway
	metrics        *metrics.Metrics
	logger         *slog.Logger
	conversationID string
	fallbackScan   int
}

// New creates a conversation engine instance.
func New(st Store, dedup Deduper, resolver Resolver, gw BillingGateway, metrics *metrics.Metrics, logger *slog.Logger, conversationID string, fallbackScan int) *Engine {
	if fallbackScan <= 0 {
		fallbackScan = 120
	}
	return &Engine{
		store:          st,
		dedup:          dedup,
		resolver:       resolver,
		gateway:        gw,
		metrics:        metrics,
		logger:         logger.With("component", "convo"),
		conversationID: conversationID,
		fallbackScan:   fallbackScan,
	}
}

// Run drains the startup backlog, then blocks on the change feed until ctx
// is cancelled. Messages are handled strictly one at a time.
func (e *Engine) Run(ctx context.Context) error {
	ids := make(chan string, 64)
	ready := make(chan struct{})
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- e.store.Listen(ctx, ids, ready)
	}()

	// The backlog snapshot must wait for the listener registration: a message
	// inserted between the two would be neither notified nor drained.
	select {
	case <-ready:
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("start listener: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}

	pending, err := e.store.Pending(ctx, e.conversationID)
	if err != nil {
		return fmt.Errorf("drain backlog: %w", err)
	}
	for i := range pending {
		e.ProcessMessage(ctx, &pending[i])
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-listenErr:
			return err
		case id := <-ids:
			msg, err := e.store.GetMessage(ctx, id)
			if err != nil {
				e.metrics.Errors.WithLabelValues("load_message").Inc()
				e.logger.Error("load notified message failed", "error", err, "id", id)
				continue
			}
			e.ProcessMessage(ctx, msg)
		}
	}
}

// ProcessMessage filters, deduplicates and handles one inbound message.
// Redelivered ids and non-actionable messages produce no reply.
func (e *Engine) ProcessMessage(ctx context.Context, msg *store.Message) {
	if msg.Role != "user" || msg.Status != "sent" {
		return
	}

	seen, err := e.dedup.SeenMessage(ctx, msg.ID)
	if err != nil {
		// Dedup store trouble should not stall the conversation.
		e.metrics.Errors.WithLabelValues("dedup").Inc()
		e.logger.Warn("dedup check failed", "error", err, "id", msg.ID)
	} else if seen {
		return
	}

	text := strings.TrimSpace(msg.Text)
	uiIntent, _ := msg.Meta["intent"].(string)
	uiIntent = strings.TrimSpace(uiIntent)
	if text == "" && uiIntent != intent.QueryBill && uiIntent != intent.QueryBillDetailed {
		return
	}

	if err := e.store.MarkProcessed(ctx, msg.ID); err != nil {
		e.logger.Warn("mark processed failed", "error", err, "id", msg.ID)
	}

	e.logger.Info("handling message", "id", msg.ID, "ui_intent", uiIntent)
	if err := e.HandleMessage(ctx, msg); err != nil {
		e.metrics.Errors.WithLabelValues("handle").Inc()
		e.logger.Error("message handling failed", "error", err, "id", msg.ID)
	}
}

// HandleMessage runs the state machine for one message. Every path emits at
// most one reply and terminates.
func (e *Engine) HandleMessage(ctx context.Context, msg *store.Message) error {
	resolution := e.resolver.Resolve(ctx, msg.Text, msg.Meta)
	e.metrics.IncomingMessages.WithLabelValues(resolution.Strategy).Inc()

	switch resolution.Intent {
	case intent.Help, intent.Unknown:
		return e.reply(ctx, "help", helpText, nil)
	case intent.PayBill:
		// Payment execution stays on the Pay Now action.
		return e.reply(ctx, "pay", payText, nil)
	case intent.QueryBill, intent.QueryBillDetailed:
	default:
		return e.reply(ctx, "unrecognized", notUnderstoodText, nil)
	}

	// The extraction capability's missing/ask fields are advisory; this
	// validation alone gates dispatch.
	validated, ask := intent.Validate(resolution.Slots)
	if ask != "" {
		return e.reply(ctx, "awaiting_slot", ask, nil)
	}

	detailed := resolution.Intent == intent.QueryBillDetailed
	result, err := e.gateway.QueryBill(ctx, gateway.Query{
		SubscriberNo: validated.SubscriberNo,
		Year:         validated.Year,
		Month:        validated.Month,
		Page:         validated.Page,
		PageSize:     validated.PageSize,
	}, detailed)

	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		return e.replyFromCache(ctx, detailed)
	case errors.Is(err, gateway.ErrUnavailable):
		return e.reply(ctx, "unavailable", warningPrefix+unavailableText, nil)
	case err != nil:
		// The one loud-failure path: surface the cause to the user.
		return e.reply(ctx, "diagnostic", fmt.Sprintf("%sAgent error: %v", warningPrefix, err), nil)
	}

	kind := KindSummary
	if detailed {
		kind = KindDetailed
	}
	text, meta := formatBill(result, detailed)
	return e.reply(ctx, kind, text, meta)
}

// replyFromCache serves the most recent matching successful reply when the
// gateway is rate-limited, or the fixed limit message when none exists.
func (e *Engine) replyFromCache(ctx context.Context, detailed bool) error {
	kind := KindSummary
	if detailed {
		kind = KindDetailed
	}

	replies, err := e.store.RecentAssistantReplies(ctx, e.conversationID, e.fallbackScan)
	if err != nil {
		e.metrics.Errors.WithLabelValues("fallback_scan").Inc()
		e.logger.Error("fallback scan failed", "error", err)
	}

	if cached, ok := latestReplyByKind(replies, kind); ok {
		e.metrics.FallbackLookups.WithLabelValues("hit").Inc()
		return e.reply(ctx, "cached", cached.Text, cached.Meta)
	}

	e.metrics.FallbackLookups.WithLabelValues("miss").Inc()
	return e.reply(ctx, "limit", warningPrefix+limitText, nil)
}

func (e *Engine) reply(ctx context.Context, state, text string, meta map[string]any) error {
	if err := e.store.InsertReply(ctx, e.conversationID, text, meta); err != nil {
		return fmt.Errorf("emit reply: %w", err)
	}
	e.metrics.Replies.WithLabelValues(state).Inc()
	return nil
}
