package intent

import (
	"context"
	"strings"

	"billing-agent/internal/nlu"

	"log/slog"
)

// Canonical intents. Anything else coming back from extraction is treated
// as unrecognized downstream.
const (
	QueryBill         = "query_bill"
	QueryBillDetailed = "query_bill_detailed"
	PayBill           = "pay_bill"
	Help              = "help"
	Unknown           = "unknown"
)

// Resolution strategy names, used as metric labels.
const (
	StrategyNumeric    = "numeric_shortcut"
	StrategyUIBypass   = "ui_bypass"
	StrategyExtraction = "extraction"
)

// Defaults applied by the numeric shortcut: a bare subscriber number is
// queried against the current demo billing period.
const (
	DefaultYear  = 2024
	DefaultMonth = 10
)

// subscriberAliases are the historical meta keys the UI has used for the
// subscriber identifier, in precedence order.
var subscriberAliases = []string{"subscriberNo", "subscriber", "subscriberId", "subscriber_id"}

// Resolution is a normalized (intent, raw slots) pair. Missing and Ask come
// from the extraction capability and are advisory only; the validator is
// authoritative for control flow.
type Resolution struct {
	Intent   string
	Slots    map[string]any
	Missing  []string
	Ask      string
	Strategy string
}

// Extractor is the free-text extraction capability.
type Extractor interface {
	Extract(ctx context.Context, text string) (*nlu.Extraction, error)
}

type strategy struct {
	name    string
	resolve func(ctx context.Context, text string, meta map[string]any) (*Resolution, bool)
}

// Resolver turns an inbound message into a Resolution by walking an ordered
// strategy chain; the first strategy that matches wins.
type Resolver struct {
	logger     *slog.Logger
	extractor  Extractor
	strategies []strategy
}

// NewResolver builds the resolver with its fixed strategy order:
// numeric shortcut, UI bypass, extraction fallback.
func NewResolver(extractor Extractor, logger *slog.Logger) *Resolver {
	r := &Resolver{
		logger:    logger.With("component", "resolver"),
		extractor: extractor,
	}
	r.strategies = []strategy{
		{name: StrategyNumeric, resolve: resolveNumericShortcut},
		{name: StrategyUIBypass, resolve: resolveUIBypass},
		{name: StrategyExtraction, resolve: r.resolveExtraction},
	}
	return r
}

// Resolve never fails: malformed or ambiguous input degrades to Unknown.
func (r *Resolver) Resolve(ctx context.Context, text string, meta map[string]any) Resolution {
	text = strings.TrimSpace(text)
	for _, s := range r.strategies {
		if res, ok := s.resolve(ctx, text, meta); ok {
			res.Strategy = s.name
			if res.Slots == nil {
				res.Slots = map[string]any{}
			}
			return *res
		}
	}
	return Resolution{Intent: Unknown, Slots: map[string]any{}, Ask: nlu.CouldNotParse, Strategy: StrategyExtraction}
}

// resolveNumericShortcut treats a bare 3-12 digit string as a subscriber
// number and skips extraction entirely.
func resolveNumericShortcut(_ context.Context, text string, _ map[string]any) (*Resolution, bool) {
	digits := strings.ReplaceAll(text, " ", "")
	if len(digits) < 3 || len(digits) > 12 || !isDigits(digits) {
		return nil, false
	}
	return &Resolution{
		Intent: QueryBill,
		Slots: map[string]any{
			"subscriberNo": digits,
			"year":         DefaultYear,
			"month":        DefaultMonth,
		},
	}, true
}

// resolveUIBypass trusts a structured intent set by a portal control.
// Only the known slot keys are taken; everything else in meta is ignored.
func resolveUIBypass(_ context.Context, _ string, meta map[string]any) (*Resolution, bool) {
	uiIntent := strings.TrimSpace(coerceString(meta["intent"]))
	if uiIntent != QueryBill && uiIntent != QueryBillDetailed {
		return nil, false
	}
	slots := map[string]any{
		"subscriberNo": uiSubscriber(meta),
		"year":         meta["year"],
		"month":        meta["month"],
		"page":         meta["page"],
		"pageSize":     meta["pageSize"],
		"amount":       meta["amount"],
	}
	return &Resolution{Intent: uiIntent, Slots: slots}, true
}

func (r *Resolver) resolveExtraction(ctx context.Context, text string, _ map[string]any) (*Resolution, bool) {
	extracted, err := r.extractor.Extract(ctx, text)
	if err != nil {
		r.logger.Error("extraction failed", "error", err)
		return &Resolution{Intent: Unknown, Slots: map[string]any{}, Ask: nlu.CouldNotParse}, true
	}

	resolved := strings.TrimSpace(extracted.Intent)
	if resolved == "" {
		resolved = Unknown
	}
	return &Resolution{
		Intent:  resolved,
		Slots:   extracted.Slots,
		Missing: extracted.Missing,
		Ask:     strings.TrimSpace(extracted.Ask),
	}, true
}

// uiSubscriber resolves the subscriber identifier across its alias keys.
func uiSubscriber(meta map[string]any) any {
	for _, key := range subscriberAliases {
		if val, ok := meta[key]; ok {
			if strings.TrimSpace(coerceString(val)) != "" {
				return val
			}
		}
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
