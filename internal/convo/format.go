package convo

import (
	"fmt"
	"strconv"
	"strings"

	"billing-agent/internal/gateway"
)

// Reply metadata kinds; also the tags the fallback scan matches on.
const (
	KindSummary  = "bill_summary"
	KindDetailed = "bill_detailed"
)

// maxRenderedItems clamps the rendered breakdown; stored metadata always
// carries the full item sequence.
const maxRenderedItems = 20

// formatBill renders a dispatch result into reply text plus its structured
// metadata payload.
func formatBill(result *gateway.BillResult, detailed bool) (string, map[string]any) {
	if detailed {
		return formatDetailed(result)
	}
	return formatSummary(result)
}

func formatSummary(result *gateway.BillResult) (string, map[string]any) {
	text := fmt.Sprintf(
		"Bill for %d/%d (Subscriber %s):\n- Amount Due: %s\n- Status: %s",
		result.Month, result.Year, result.SubscriberNo,
		formatAmount(result.Total), paidLabel(result.IsPaid),
	)

	meta := map[string]any{
		"kind":         KindSummary,
		"subscriberNo": result.SubscriberNo,
		"year":         result.Year,
		"month":        result.Month,
		"total":        result.Total,
		"isPaid":       result.IsPaid,
		"canPay":       !result.IsPaid,
		"payAmount":    result.Total,
	}
	return text, meta
}

func formatDetailed(result *gateway.BillResult) (string, map[string]any) {
	var sb strings.Builder
	fmt.Fprintf(&sb,
		"Bill Detailed for %d/%d (Subscriber %s):\n- Total: %s\n- Status: %s\nBreakdown:\n",
		result.Month, result.Year, result.SubscriberNo,
		formatAmount(result.Total), paidLabel(result.IsPaid),
	)

	if len(result.Items) == 0 {
		sb.WriteString("- (no items)")
	} else {
		rendered := result.Items
		if len(rendered) > maxRenderedItems {
			rendered = rendered[:maxRenderedItems]
		}
		lines := make([]string, len(rendered))
		for i, item := range rendered {
			suffix := ""
			if item.ItemType != "" {
				suffix = fmt.Sprintf(" (%s)", item.ItemType)
			}
			lines[i] = fmt.Sprintf("- %s: %s%s", item.Description, formatAmount(item.Amount), suffix)
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}

	meta := map[string]any{
		"kind":         KindDetailed,
		"subscriberNo": result.SubscriberNo,
		"year":         result.Year,
		"month":        result.Month,
		"total":        result.Total,
		"isPaid":       result.IsPaid,
		"items":        result.Items,
	}
	return sb.String(), meta
}

func formatAmount(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}

func paidLabel(isPaid bool) string {
	if isPaid {
		return "Paid"
	}
	return "Unpaid"
}
