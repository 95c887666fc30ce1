package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency classifies the monetary unit of a parsed cell.
type Currency string

const (
	CurrencyUnknown Currency = "UNKNOWN"
	CurrencyLocal   Currency = "BRL"
	CurrencyForeign Currency = "USD"
)

// NormalizedValue is a parsed spreadsheet cell.
type NormalizedValue struct {
	Amount   decimal.Decimal
	Currency Currency
}

// Float returns the amount as float64 for threshold checks and metrics.
func (v NormalizedValue) Float() float64 {
	f, _ := v.Amount.Float64()
	return f
}

// DayMonth is a calendar day without a year, the unit rows are matched on.
type DayMonth struct {
	Day   int
	Month time.Month
}

// String renders the day the way the sheets write it: DD/MM.
func (d DayMonth) String() string {
	return fmt.Sprintf("%02d/%02d", d.Day, int(d.Month))
}

// Columns maps the well-known row fields to the header labels used in the sheets.
type Columns struct {
	Date       string `yaml:"date"`
	Investment string `yaml:"investment"`
	Revenue    string `yaml:"revenue"`
	ROAS       string `yaml:"roas"`
	Margin     string `yaml:"margin"`
}

// DefaultColumns returns the header labels of the standard report layout.
func DefaultColumns() Columns {
	return Columns{
		Date:       "Data",
		Investment: "Investimento",
		Revenue:    "Receita",
		ROAS:       "ROAS Geral",
		Margin:     "MC Geral",
	}
}

// Row is one reporting-period record within a tab. Known fields are typed;
// every other column (channel sub-blocks and the like) lives in Extra.
type Row struct {
	Date       string
	Investment string
	Revenue    string
	ROAS       string
	Margin     string
	Extra      map[string]string
}

// NewRow builds a Row from a header-label → cell map.
func NewRow(record map[string]string, cols Columns) Row {
	r := Row{Extra: make(map[string]string, len(record))}
	for label, cell := range record {
		switch label {
		case cols.Date:
			r.Date = cell
		case cols.Investment:
			r.Investment = cell
		case cols.Revenue:
			r.Revenue = cell
		case cols.ROAS:
			r.ROAS = cell
		case cols.Margin:
			r.Margin = cell
		default:
			r.Extra[label] = cell
		}
	}
	return r
}

// Field returns an extra column by its header label.
func (r Row) Field(label string) string {
	if r.Extra == nil {
		return ""
	}
	return r.Extra[label]
}

// HasDate reports whether the date cell carries any text.
func (r Row) HasDate() bool {
	return strings.TrimSpace(r.Date) != ""
}

// TabRef identifies a tab without its contents.
type TabRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tab is one sheet of a tabular source, fetched fresh each run.
type Tab struct {
	ID      string
	Name    string
	Rows    []Row
	Summary *Row // totals row when the sheet has one
}

// MatchedRow is the row selected for the target date within one tab.
type MatchedRow struct {
	Tab string
	Row Row
}

// Site is a tracked entity from the registry.
type Site struct {
	Name          string `json:"name" yaml:"name" mapstructure:"name"`
	SourceLocator string `json:"sheet_url" yaml:"sheet_url" mapstructure:"sheet_url"`
	NotifyLocator string `json:"slack_webhook_url" yaml:"slack_webhook_url" mapstructure:"slack_webhook_url"`
}

// ChannelSpec describes one advertising-channel sub-block of a row.
type ChannelSpec struct {
	Title       string `yaml:"title"`
	MarkerField string `yaml:"marker"`
	MarginField string `yaml:"margin"`
	ROASField   string `yaml:"roas"`
}

// DefaultChannels returns the Facebook and Google Ads blocks of the standard layout.
func DefaultChannels() []ChannelSpec {
	return []ChannelSpec{
		{Title: "FB ADS", MarkerField: "FBADS 01", MarginField: "MC R$", ROASField: "ROAS"},
		{Title: "G ADS", MarkerField: "GADS", MarginField: "MC R$ .2", ROASField: "ROAS .2"},
	}
}

// ChannelResult is the margin/ROAS pair of one populated channel block.
type ChannelResult struct {
	Title  string `json:"titulo"`
	Date   string `json:"data"`
	Margin string `json:"mc"`
	ROAS   string `json:"roas"`
	Tab    string `json:"pagina,omitempty"`
}

// AggregateResult holds per-site (or per-channel) totals for one run.
// Local and foreign revenue are never added together.
type AggregateResult struct {
	Investment     decimal.Decimal   `json:"investimento"`
	RevenueLocal   decimal.Decimal   `json:"receita_real"`
	RevenueForeign decimal.Decimal   `json:"receita_dolar"`
	Margin         decimal.Decimal   `json:"margem"`
	ROAS           string            `json:"roas"`
	ROASValues     []decimal.Decimal `json:"roas_lidos"`
	Contributing   int               `json:"linhas"`
	Matched        bool              `json:"encontrou_registro"`
}

// ROASSum adds every contributing ROAS value.
func (a AggregateResult) ROASSum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range a.ROASValues {
		sum = sum.Add(v)
	}
	return sum
}

// Reportable reports whether the result is worth a notification.
func (a AggregateResult) Reportable() bool {
	return a.RevenueLocal.IsPositive() ||
		a.RevenueForeign.IsPositive() ||
		a.Investment.IsPositive() ||
		a.Matched
}

// LedgerEntry is a persisted "already announced" marker.
type LedgerEntry struct {
	Identity    string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	RunID       string          `json:"run_id,omitempty"`
	ProcessedAt time.Time       `json:"data_processamento"`
}
