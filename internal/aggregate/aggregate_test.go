package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"

	"roas-notifier/internal/normalize"
	"roas-notifier/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAggregateSingleRowKeepsRawROAS(t *testing.T) {
	res := Aggregate([]types.MatchedRow{{
		Tab: "Março 2024",
		Row: types.Row{
			Date:       "04/03",
			Investment: "R$100,00",
			Revenue:    "R$200,00",
			ROAS:       "2,00",
			Margin:     "50,00",
		},
	}})

	if !res.Investment.Equal(dec("100")) {
		t.Errorf("investment = %s, want 100", res.Investment)
	}
	if !res.RevenueLocal.Equal(dec("200")) {
		t.Errorf("local revenue = %s, want 200", res.RevenueLocal)
	}
	if !res.RevenueForeign.IsZero() {
		t.Errorf("foreign revenue = %s, want 0", res.RevenueForeign)
	}
	if !res.Margin.Equal(dec("50")) {
		t.Errorf("margin = %s, want 50", res.Margin)
	}
	if res.ROAS != "2,00" {
		t.Errorf("ROAS = %q, want 2,00", res.ROAS)
	}
	if !res.Matched || res.Contributing != 1 {
		t.Errorf("expected one contributing row, got %d matched=%v", res.Contributing, res.Matched)
	}
	if got := normalize.ROASBandOf(ROASValue(res)); got != normalize.ROASHigh {
		t.Errorf("ROAS band = %s, want 1.5+", got)
	}
}

func TestAggregateSeparatesCurrencies(t *testing.T) {
	res := Aggregate([]types.MatchedRow{
		{Tab: "a", Row: types.Row{Revenue: "R$ 100,00", ROAS: "1,00"}},
		{Tab: "b", Row: types.Row{Revenue: "$ 50,00", ROAS: "0,50"}},
	})

	if !res.RevenueLocal.Equal(dec("100")) {
		t.Errorf("local revenue = %s, want 100", res.RevenueLocal)
	}
	if !res.RevenueForeign.Equal(dec("50")) {
		t.Errorf("foreign revenue = %s, want 50", res.RevenueForeign)
	}
	if res.ROAS != "1,50" {
		t.Errorf("summed ROAS = %q, want 1,50", res.ROAS)
	}
}

func TestAggregateErrorMarkersCountAsZero(t *testing.T) {
	res := Aggregate([]types.MatchedRow{{Row: types.Row{
		Date:       "04/03",
		Investment: "#DIV/0!",
		Revenue:    "#N/A",
		ROAS:       "#DIV/0!",
		Margin:     "",
	}}})

	if !res.Investment.IsZero() || !res.RevenueLocal.IsZero() || !res.Margin.IsZero() {
		t.Errorf("expected zero totals, got %+v", res)
	}
	if res.ROAS != "0,00" {
		t.Errorf("ROAS = %q, want 0,00", res.ROAS)
	}
	if !res.Reportable() {
		t.Error("a matched row keeps the result reportable")
	}
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate(nil)
	if res.Reportable() {
		t.Error("no matches and zero totals must not be reportable")
	}
	if res.ROAS != "0,00" {
		t.Errorf("ROAS = %q, want 0,00", res.ROAS)
	}
}

func TestCombine(t *testing.T) {
	a := Aggregate([]types.MatchedRow{{Row: types.Row{Investment: "10", Revenue: "R$ 20", ROAS: "2", Margin: "5"}}})
	b := Aggregate([]types.MatchedRow{{Row: types.Row{Investment: "30", Revenue: "$ 40", ROAS: "1,5", Margin: "-2"}}})

	total := Combine(a, b)
	if !total.Investment.Equal(dec("40")) {
		t.Errorf("investment = %s, want 40", total.Investment)
	}
	if !total.RevenueLocal.Equal(dec("20")) || !total.RevenueForeign.Equal(dec("40")) {
		t.Errorf("revenue = %s / %s, want 20 / 40", total.RevenueLocal, total.RevenueForeign)
	}
	if !total.Margin.Equal(dec("3")) {
		t.Errorf("margin = %s, want 3", total.Margin)
	}
	if total.ROAS != "3,50" {
		t.Errorf("ROAS = %q, want 3,50", total.ROAS)
	}
	if total.Contributing != 2 {
		t.Errorf("contributing = %d, want 2", total.Contributing)
	}
}

func TestExtractChannels(t *testing.T) {
	row := types.Row{
		Date: "04/03",
		Extra: map[string]string{
			"FBADS 01": "R$ 120,00",
			"MC R$":    "R$ 30,00",
			"ROAS":     "1,80",
			"GADS":     "R$ 0,00",
			"MC R$ .2": "R$ 5,00",
			"ROAS .2":  "1,10",
		},
	}

	got := ExtractChannels(row, types.DefaultChannels())
	if len(got) != 1 {
		t.Fatalf("expected only the FB ADS block, got %+v", got)
	}
	if got[0].Title != "FB ADS" || got[0].Margin != "R$ 30,00" || got[0].ROAS != "1,80" {
		t.Errorf("unexpected block: %+v", got[0])
	}

	row.Extra["GADS"] = "R$ 15,00"
	row.Extra["ROAS .2"] = ""
	got = ExtractChannels(row, types.DefaultChannels())
	if len(got) != 2 {
		t.Fatalf("expected two blocks, got %+v", got)
	}
	if got[1].Title != "G ADS" || got[1].ROAS != "0,00" {
		t.Errorf("unexpected G ADS block: %+v", got[1])
	}
}
