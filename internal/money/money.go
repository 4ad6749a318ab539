// Package money parses the dollar-prefixed amount strings stored on
// subscriptions ("$50", "$50.00") into exact decimals.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalid = errors.New("invalid money amount")

var amountPattern = regexp.MustCompile(`^\$\d+(?:\.\d{1,2})?$`)

// Parse is strict: anything other than a dollar sign followed by digits and
// at most two decimals is rejected instead of being read as zero.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return d, nil
}

func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Format renders d back into the stored form with two decimals.
func Format(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// Sum adds float amounts as decimals so repeated cents do not drift.
func Sum(amounts ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total
}
