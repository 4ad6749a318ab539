package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]string{
		"$50":     "50",
		"$50.00":  "50",
		"$49.9":   "49.9",
		" $90.5 ": "90.5",
		"$0":      "0",
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s parsed as %s", in, got)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "50", "$", "$50.123", "USD 50", "$-5", "$5,00", "abc"} {
		_, err := Parse(in)
		assert.True(t, errors.Is(err, ErrInvalid), in)
		assert.False(t, Valid(in), in)
	}
}

func TestSumAvoidsFloatDrift(t *testing.T) {
	total := Sum(0.1, 0.2, 44.7)
	assert.Equal(t, "45", total.String())
	assert.Equal(t, "$45.00", Format(total))
}
