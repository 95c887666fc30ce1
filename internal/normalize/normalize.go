// Package normalize turns loosely formatted spreadsheet cells into decimals.
//
// Every function here is total: blank cells, spreadsheet error markers and
// text that does not contain a number all normalize to zero instead of
// failing. Callers never need to handle a parse error.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"roas-notifier/internal/types"
)

// ZeroText is what a blank cell is shown as in notifications.
const ZeroText = "0,00"

var errorMarkers = map[string]struct{}{
	"":        {},
	"#DIV/0!": {},
	"#N/A":    {},
	"#VALUE!": {},
	"#REF!":   {},
	"#NAME?":  {},
}

var numberPattern = regexp.MustCompile(`-?\d[\d.,]*`)

// IsBlank reports whether raw is empty or a spreadsheet error marker.
func IsBlank(raw string) bool {
	_, ok := errorMarkers[strings.TrimSpace(raw)]
	return ok
}

// Clean replaces blank and error-marker cells with "0,00" and returns any
// other text untouched.
func Clean(raw string) string {
	if IsBlank(raw) {
		return ZeroText
	}
	return raw
}

// IsDollarValue reports whether raw is a foreign-currency amount: it carries a
// "$" but not the local "R$" marker. Both currencies share the same digit
// grouping, so only the literal markers can tell them apart.
func IsDollarValue(raw string) bool {
	s := strings.TrimSpace(raw)
	return strings.Contains(s, "$") && !strings.Contains(s, "R$")
}

// Classify returns the currency tag of a non-blank cell.
func Classify(raw string) types.Currency {
	if IsBlank(raw) {
		return types.CurrencyUnknown
	}
	if IsDollarValue(raw) {
		return types.CurrencyForeign
	}
	return types.CurrencyLocal
}

// Normalize parses raw into a signed decimal and a currency tag.
func Normalize(raw string) types.NormalizedValue {
	if IsBlank(raw) {
		return types.NormalizedValue{Amount: decimal.Zero, Currency: types.CurrencyUnknown}
	}
	amount, ok := parseAmount(raw)
	if !ok {
		return types.NormalizedValue{Amount: decimal.Zero, Currency: types.CurrencyUnknown}
	}
	return types.NormalizedValue{Amount: amount, Currency: Classify(raw)}
}

// Amount is Normalize without the currency tag.
func Amount(raw string) decimal.Decimal {
	return Normalize(raw).Amount
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	s := stripSymbols(raw)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")

	m := numberPattern.FindString(s)
	if m == "" {
		return decimal.Zero, false
	}
	if strings.HasPrefix(m, "-") {
		negative = true
		m = m[1:]
	}
	m = strings.TrimRight(m, ".,")

	d, err := decimal.NewFromString(canonical(m, strings.Contains(raw, "R$")))
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// canonical rewrites grouped digits into a dot-decimal literal.
//
//	1.234,56 -> 1234.56  (Brazilian grouping)
//	1234,56  -> 1234.56  (decimal comma)
//	1,234.56 -> 1234.56
//	1234.56  -> 1234.56
//
// A single dot with no comma is a decimal point, except in an R$ amount
// where it is followed by exactly three digits: "R$ 1.500" is 1500.
func canonical(s string, local bool) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || (local && len(s)-lastDot-1 == 3) {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

func stripSymbols(raw string) string {
	s := strings.NewReplacer("R$", "", "US$", "", "$", "", "%", "").Replace(raw)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
