// Package period picks the spreadsheet tabs that cover the current reporting month.
package period

import (
	"strconv"
	"strings"
	"time"

	"roas-notifier/internal/types"
)

// MonthNames are the canonical Portuguese month names, January first. Tab
// names are matched against them in this order.
var MonthNames = [12]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// Selector matches tab names against a configurable month vocabulary.
type Selector struct {
	names [12]string
}

// NewSelector returns a Selector for names. An empty names uses MonthNames.
func NewSelector(names []string) *Selector {
	s := &Selector{names: MonthNames}
	if len(names) == 12 {
		copy(s.names[:], names)
	}
	return s
}

var defaultSelector = NewSelector(nil)

// MonthOf returns the month named in tabName. The first canonical month that
// appears as a substring wins, so "Março e Abril" resolves to March.
func (s *Selector) MonthOf(tabName string) (time.Month, bool) {
	for i, name := range s.names {
		if strings.Contains(tabName, name) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// Select keeps the tabs naming both month and year, in their original order.
func (s *Selector) Select(tabs []types.TabRef, month time.Month, year int) []types.TabRef {
	yearText := strconv.Itoa(year)

	var out []types.TabRef
	for _, tab := range tabs {
		m, ok := s.MonthOf(tab.Name)
		if !ok || m != month {
			continue
		}
		if !strings.Contains(tab.Name, yearText) {
			continue
		}
		out = append(out, tab)
	}
	return out
}

// SelectWithFallback is Select, except that when nothing matches it returns
// the first tab and reports fellBack. An empty tab list yields nothing.
func (s *Selector) SelectWithFallback(tabs []types.TabRef, month time.Month, year int) (selected []types.TabRef, fellBack bool) {
	if selected = s.Select(tabs, month, year); len(selected) > 0 {
		return selected, false
	}
	if len(tabs) == 0 {
		return nil, false
	}
	return tabs[:1], true
}

// SelectCurrentPeriod uses the default Portuguese month names.
func SelectCurrentPeriod(tabs []types.TabRef, month time.Month, year int) []types.TabRef {
	return defaultSelector.Select(tabs, month, year)
}

// SelectWithFallback uses the default Portuguese month names.
func SelectWithFallback(tabs []types.TabRef, month time.Month, year int) ([]types.TabRef, bool) {
	return defaultSelector.SelectWithFallback(tabs, month, year)
}

// Yesterday returns the calendar day before now, in now's location.
func Yesterday(now time.Time) types.DayMonth {
	y := now.AddDate(0, 0, -1)
	return types.DayMonth{Day: y.Day(), Month: y.Month()}
}

// Today returns now as a DayMonth.
func Today(now time.Time) types.DayMonth {
	return types.DayMonth{Day: now.Day(), Month: now.Month()}
}
