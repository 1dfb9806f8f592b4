package intent

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Clarification prompts, one per required slot, asked in check order.
const (
	AskSubscriber = "What is your subscriber number?"
	AskYear       = "What year would you like to check the bill for?"
	AskMonth      = "Which month would you like to query? (1-12)"
)

// ValidatedSlots is the slot subset required for dispatch. It is only ever
// constructed with all three required fields coerced successfully.
type ValidatedSlots struct {
	SubscriberNo string
	Year         int
	Month        int

	// Optional paging for the detailed endpoint; 0 means absent.
	Page     int
	PageSize int
}

// Validate checks raw slots for a query intent. The check order is fixed:
// subscriberNo, then year, then month. On the first missing field it returns
// a single clarification prompt and stops; the extraction capability's own
// missing list is never consulted here.
func Validate(slots map[string]any) (*ValidatedSlots, string) {
	subscriberNo := coerceString(slots["subscriberNo"])
	if subscriberNo == "" {
		return nil, AskSubscriber
	}

	year, ok := coerceInt(slots["year"])
	if !ok {
		return nil, AskYear
	}

	month, ok := coerceInt(slots["month"])
	if !ok {
		return nil, AskMonth
	}

	validated := &ValidatedSlots{
		SubscriberNo: subscriberNo,
		Year:         year,
		Month:        month,
	}
	if page, ok := coerceInt(slots["page"]); ok && page > 0 {
		validated.Page = page
	}
	if pageSize, ok := coerceInt(slots["pageSize"]); ok && pageSize > 0 {
		validated.PageSize = pageSize
	}
	return validated, ""
}

// coerceString stringifies and trims a slot value; numbers render without
// a trailing fraction when integral.
func coerceString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// coerceInt parses a slot value as an integer from its string form.
func coerceInt(val any) (int, bool) {
	str := coerceString(val)
	if str == "" {
		return 0, false
	}
	if parsed, err := strconv.Atoi(str); err == nil {
		return parsed, true
	}
	// Tolerate integral floats like "10.0" from loosely typed payloads.
	if parsed, err := strconv.ParseFloat(str, 64); err == nil && parsed == float64(int(parsed)) {
		return int(parsed), true
	}
	return 0, false
}
