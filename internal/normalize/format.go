package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders d with two decimals, "." thousands grouping and a
// decimal comma: 1234.5 -> "1.234,50".
func FormatAmount(d decimal.Decimal) string {
	fixed := d.StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart, frac, _ := strings.Cut(fixed, ".")

	var sb strings.Builder
	sb.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte(',')
	sb.WriteString(frac)
	return sb.String()
}

// FormatBRL prefixes FormatAmount with the local currency marker.
func FormatBRL(d decimal.Decimal) string {
	return "R$ " + FormatAmount(d)
}

// FormatUSD prefixes FormatAmount with the foreign currency marker.
func FormatUSD(d decimal.Decimal) string {
	return "$ " + FormatAmount(d)
}
