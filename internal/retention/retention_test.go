package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		qty  int
		unit Unit
	}{
		{"30D", 30, Days},
		{"30d", 30, Days},
		{"2W", 2, Weeks},
		{"6M", 6, Months},
		{"6m", 6, Months},
		{"1Y", 1, Years},
		{" 1y ", 1, Years},
	}
	for _, tc := range cases {
		expr, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.qty, expr.Quantity, tc.in)
		require.Equal(t, tc.unit, expr.Unit, tc.in)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "M6", "6", "M", "6 M", "6MM", "-6M", "1.5Y", "6Q"} {
		_, err := Parse(in)
		require.Error(t, err, in)
	}
}

func TestCutoffUsesCalendarArithmetic(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	expr, err := Parse("6M")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), expr.Cutoff(now))

	expr, err = Parse("1Y")
	require.NoError(t, err)
	require.Equal(t, time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC), expr.Cutoff(now))

	expr, err = Parse("2W")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 6, 17, 12, 0, 0, 0, time.UTC), expr.Cutoff(now))
}

func TestShouldDeleteStrictCutoff(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	expr, err := Parse("1Y")
	require.NoError(t, err)

	cutoff := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)
	require.False(t, ShouldDelete(cutoff, now, expr), "message dated exactly at the cutoff is retained")
	require.True(t, ShouldDelete(cutoff.Add(-time.Second), now, expr))
	require.False(t, ShouldDelete(cutoff.Add(time.Second), now, expr))
}

func TestShouldDeleteNilExpressionDeletesEverything(t *testing.T) {
	now := time.Now()
	require.True(t, ShouldDelete(now.Add(-time.Hour), now, nil))
	require.True(t, ShouldDelete(now, now, nil))
}

func TestRetentionScenario(t *testing.T) {
	// Folder with messages dated 2023-01-01, 2023-06-01 and 2024-06-01,
	// cleaned with 1Y at 2024-07-01: only the first two qualify.
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	expr, err := Parse("1Y")
	require.NoError(t, err)

	require.True(t, ShouldDelete(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), now, expr))
	require.True(t, ShouldDelete(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), now, expr))
	require.False(t, ShouldDelete(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), now, expr))
}
