package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var nonMonetary = regexp.MustCompile(`[^\d.]`)

// CurrencyForSource maps a source identifier to its ISO currency code. There
// is no FX conversion anywhere in the pipeline; amounts stay in source units.
func CurrencyForSource(source string) string {
	if source == "gcsurplus" {
		return "CAD"
	}
	return "USD"
}

// ParseMoney extracts a monetary amount from display text such as
// "$12,345.00 CAD". Unparseable input yields zero.
func ParseMoney(raw string) decimal.Decimal {
	cleaned := nonMonetary.ReplaceAllString(strings.TrimSpace(raw), "")
	if cleaned == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// ParseMoneyPtr is ParseMoney for nullable fields: empty or unparseable
// input yields nil rather than zero.
func ParseMoneyPtr(raw string) *decimal.Decimal {
	cleaned := nonMonetary.ReplaceAllString(strings.TrimSpace(raw), "")
	if cleaned == "" {
		return nil
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &amount
}
