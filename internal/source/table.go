package source

import (
	"errors"
	"fmt"
	"strings"

	"roas-notifier/internal/types"
)

var errNoHeader = errors.New("header row could not be detected")

// BuildTab turns a raw cell grid into a Tab.
//
// The header is the first row carrying the date column label, or the first
// non-empty row when none does. Repeated header labels are suffixed " .1",
// " .2" and so on, which is how the second and third channel blocks of a
// sheet are told apart. A row whose date cell starts with "total" becomes the
// tab's Summary instead of a data row.
func BuildTab(id, name string, records [][]string, cols types.Columns) (types.Tab, error) {
	tab := types.Tab{ID: id, Name: name}

	headerIdx := findHeader(records, cols.Date)
	if headerIdx < 0 {
		if len(filterEmptyRows(records)) == 0 {
			return tab, nil
		}
		return tab, fmt.Errorf("tab %q: %w", name, errNoHeader)
	}
	headers := dedupeHeaders(records[headerIdx])

	for _, raw := range filterEmptyRows(records[headerIdx+1:]) {
		cells := padRow(raw, len(headers))
		record := make(map[string]string, len(headers))
		for i, label := range headers {
			if label == "" {
				continue
			}
			record[label] = strings.TrimSpace(cells[i])
		}
		row := types.NewRow(record, cols)

		if isSummary(row.Date) {
			r := row
			tab.Summary = &r
			continue
		}
		tab.Rows = append(tab.Rows, row)
	}
	return tab, nil
}

func findHeader(records [][]string, dateLabel string) int {
	first := -1
	for idx, row := range records {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if first < 0 {
			first = idx
		}
		for _, cell := range row {
			if strings.TrimSpace(cell) == dateLabel {
				return idx
			}
		}
	}
	return first
}

func dedupeHeaders(row []string) []string {
	seen := make(map[string]int, len(row))
	out := make([]string, len(row))
	for i, cell := range row {
		label := strings.TrimSpace(cell)
		if label == "" {
			continue
		}
		n := seen[label]
		seen[label] = n + 1
		if n > 0 {
			label = fmt.Sprintf("%s .%d", label, n)
		}
		out[i] = label
	}
	return out
}

func isSummary(date string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(date)), "total")
}

func cleanRow(row []string) []string {
	var out []string
	for _, cell := range row {
		if s := strings.TrimSpace(cell); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func filterEmptyRows(rows [][]string) [][]string {
	var filtered [][]string
	for _, row := range rows {
		if len(cleanRow(row)) > 0 {
			filtered = append(filtered, row)
		}
	}
	return filtered
}
