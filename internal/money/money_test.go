package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	cases := map[string]string{
		"0":          "0",
		"999":        "999",
		"1000":       "1,000",
		"1234567.49": "1,234,567",
		"5850.5":     "5,850",
		"5851.5":     "5,852",
		"-21900":     "-21,900",
	}
	for in, want := range cases {
		require.Equal(t, want, Format(decimal.RequireFromString(in)), in)
	}
}

func TestFormatPercent(t *testing.T) {
	require.Equal(t, "40%", FormatPercent(decimal.RequireFromString("0.4")))
	require.Equal(t, "47%", FormatPercent(decimal.RequireFromString("0.4729")))
	require.Equal(t, "0%", FormatPercent(decimal.Zero))
}

func TestWithin(t *testing.T) {
	a := decimal.RequireFromString("5850.0000001")
	b := decimal.NewFromInt(5850)
	require.True(t, Within(a, b, Unit))
	require.False(t, Within(decimal.NewFromInt(5851), b, Unit))
}

func TestSum(t *testing.T) {
	got := Sum(decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.RequireFromString("0.5"))
	require.True(t, got.Equal(decimal.RequireFromString("3.5")))
	require.True(t, Sum().IsZero())
}
