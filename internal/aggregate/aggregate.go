// Package aggregate folds matched rows into per-site and per-channel totals.
package aggregate

import (
	"strings"

	"github.com/shopspring/decimal"

	"roas-notifier/internal/normalize"
	"roas-notifier/internal/types"
)

// PlaceholderMarker is what an untouched channel block shows in its marker cell.
const PlaceholderMarker = "R$ 0,00"

// Aggregate sums the matched rows of one site.
//
// Revenue is split by currency and the two totals are never added together.
// Investment and margin are plain sums. With a single contributing row the
// ROAS text is kept exactly as the sheet shows it; with several, the
// normalized ROAS values are summed (the behavior operators are used to,
// even though ROAS is a ratio).
func Aggregate(matches []types.MatchedRow) types.AggregateResult {
	res := types.AggregateResult{
		Investment:     decimal.Zero,
		RevenueLocal:   decimal.Zero,
		RevenueForeign: decimal.Zero,
		Margin:         decimal.Zero,
		ROAS:           normalize.ZeroText,
	}

	for _, m := range matches {
		row := m.Row
		res.Investment = res.Investment.Add(normalize.Amount(row.Investment))

		revenue := normalize.Normalize(row.Revenue)
		if normalize.IsDollarValue(row.Revenue) {
			res.RevenueForeign = res.RevenueForeign.Add(revenue.Amount)
		} else {
			res.RevenueLocal = res.RevenueLocal.Add(revenue.Amount)
		}

		res.Margin = res.Margin.Add(normalize.Amount(row.Margin))
		res.ROASValues = append(res.ROASValues, normalize.Amount(row.ROAS))
		res.Contributing++
	}

	res.Matched = res.Contributing > 0
	switch {
	case res.Contributing == 1:
		res.ROAS = normalize.Clean(strings.TrimSpace(matches[0].Row.ROAS))
	case res.Contributing > 1:
		res.ROAS = normalize.FormatAmount(res.ROASSum())
	}
	return res
}

// ROASValue is the number the ROAS severity band is computed from: the
// single row's value, or the sum across rows.
func ROASValue(res types.AggregateResult) types.NormalizedValue {
	if res.Contributing == 1 {
		return normalize.Normalize(res.ROAS)
	}
	return types.NormalizedValue{Amount: res.ROASSum(), Currency: types.CurrencyLocal}
}

// Combine folds several site results into one channel-wide total.
func Combine(results ...types.AggregateResult) types.AggregateResult {
	total := types.AggregateResult{
		Investment:     decimal.Zero,
		RevenueLocal:   decimal.Zero,
		RevenueForeign: decimal.Zero,
		Margin:         decimal.Zero,
	}
	for _, r := range results {
		total.Investment = total.Investment.Add(r.Investment)
		total.RevenueLocal = total.RevenueLocal.Add(r.RevenueLocal)
		total.RevenueForeign = total.RevenueForeign.Add(r.RevenueForeign)
		total.Margin = total.Margin.Add(r.Margin)
		total.ROASValues = append(total.ROASValues, r.ROASValues...)
		total.Contributing += r.Contributing
		total.Matched = total.Matched || r.Matched
	}
	total.ROAS = normalize.FormatAmount(total.ROASSum())
	return total
}

// ExtractChannels returns one result per populated channel block of row.
// A block is populated when its marker cell is neither blank nor the
// "R$ 0,00" placeholder.
func ExtractChannels(row types.Row, specs []types.ChannelSpec) []types.ChannelResult {
	var out []types.ChannelResult
	for _, spec := range specs {
		marker := strings.TrimSpace(row.Field(spec.MarkerField))
		if marker == "" || marker == PlaceholderMarker {
			continue
		}
		out = append(out, types.ChannelResult{
			Title:  spec.Title,
			Date:   strings.TrimSpace(row.Date),
			Margin: normalize.Clean(row.Field(spec.MarginField)),
			ROAS:   normalize.Clean(row.Field(spec.ROASField)),
		})
	}
	return out
}
