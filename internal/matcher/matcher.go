// Package matcher finds the row reported for a given calendar day.
package matcher

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"roas-notifier/internal/types"
)

// layouts are tried in order on the whitespace-stripped date cell. The year,
// when present, is ignored.
var layouts = []string{
	"2/1",
	"2/1/2006",
	"2/1/06",
	"2-1",
	"2-1-2006",
	"2-1-06",
}

// FindRow scans rows from the bottom up and returns the first whose date
// cell names target. The last-entered row for a day wins. Not finding a row
// is a normal outcome, reported by ok.
func FindRow(rows []types.Row, target types.DayMonth) (row types.Row, ok bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].HasDate() {
			continue
		}
		if MatchDate(rows[i].Date, target) {
			return rows[i], true
		}
	}
	return types.Row{}, false
}

// MatchDate reports whether text names target's day and month.
func MatchDate(text string, target types.DayMonth) bool {
	dm, ok := ParseDayMonth(text)
	return ok && dm == target
}

// ParseDayMonth extracts day and month from a date cell.
func ParseDayMonth(text string) (types.DayMonth, bool) {
	s := stripSpace(text)
	if s == "" {
		return types.DayMonth{}, false
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return types.DayMonth{Day: t.Day(), Month: t.Month()}, true
		}
	}

	// Cells such as "05/03 (ter)" or "5/3/2024 00:00" miss every layout; fall
	// back to the first two numeric components.
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' })
	if len(parts) < 2 {
		return types.DayMonth{}, false
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return types.DayMonth{}, false
	}
	month, err := strconv.Atoi(leadingDigits(parts[1]))
	if err != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return types.DayMonth{}, false
	}
	return types.DayMonth{Day: day, Month: time.Month(month)}, true
}

// GroupByDate buckets rows by their raw date text, keeping first-seen order.
// Rows without a date are dropped.
func GroupByDate(rows []types.Row) ([]string, map[string][]types.Row) {
	var order []string
	groups := make(map[string][]types.Row)
	for _, row := range rows {
		if !row.HasDate() {
			continue
		}
		key := strings.TrimSpace(row.Date)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}
	return order, groups
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
