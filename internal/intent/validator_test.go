package intent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateComplete(t *testing.T) {
	validated, ask := Validate(map[string]any{
		"subscriberNo": "1001",
		"year":         float64(2024),
		"month":        float64(10),
	})
	require.Empty(t, ask)
	require.NotNil(t, validated)
	require.Equal(t, "1001", validated.SubscriberNo)
	require.Equal(t, 2024, validated.Year)
	require.Equal(t, 10, validated.Month)
}

func TestValidateCoercesStringNumbers(t *testing.T) {
	validated, ask := Validate(map[string]any{
		"subscriberNo": float64(1001),
		"year":         "2024",
		"month":        " 10 ",
	})
	require.Empty(t, ask)
	require.Equal(t, "1001", validated.SubscriberNo)
	require.Equal(t, 2024, validated.Year)
	require.Equal(t, 10, validated.Month)
}

func TestValidateSubscriberAskedFirst(t *testing.T) {
	// Year and month are present; the empty subscriber still wins.
	_, ask := Validate(map[string]any{
		"subscriberNo": "",
		"year":         float64(2024),
		"month":        float64(10),
	})
	require.Equal(t, AskSubscriber, ask)

	_, ask = Validate(map[string]any{
		"subscriberNo": "   ",
		"year":         float64(2024),
		"month":        float64(10),
	})
	require.Equal(t, AskSubscriber, ask)
}

func TestValidateYearAskedBeforeMonth(t *testing.T) {
	_, ask := Validate(map[string]any{
		"subscriberNo": "1001",
		"year":         nil,
		"month":        nil,
	})
	require.Equal(t, AskYear, ask)
}

func TestValidateMonthAskedLast(t *testing.T) {
	_, ask := Validate(map[string]any{
		"subscriberNo": "1001",
		"year":         float64(2024),
		"month":        "next",
	})
	require.Equal(t, AskMonth, ask)
}

func TestValidateOptionalPaging(t *testing.T) {
	validated, ask := Validate(map[string]any{
		"subscriberNo": "1001",
		"year":         float64(2024),
		"month":        float64(10),
		"page":         float64(2),
		"pageSize":     "5",
	})
	require.Empty(t, ask)
	require.Equal(t, 2, validated.Page)
	require.Equal(t, 5, validated.PageSize)

	validated, _ = Validate(map[string]any{
		"subscriberNo": "1001",
		"year":         float64(2024),
		"month":        float64(10),
		"page":         "soon",
	})
	require.Zero(t, validated.Page)
}
