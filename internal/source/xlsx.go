package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"roas-notifier/internal/api"
	"roas-notifier/internal/interfaces"
	"roas-notifier/internal/retry"
	"roas-notifier/internal/types"
)

// XLSXSource reads workbooks from local paths or http(s) URLs (for example a
// Google Sheets "export?format=xlsx" link). Tab ids are sheet indexes.
type XLSXSource struct {
	client  *api.Client
	limiter *HostLimiter
	cols    types.Columns
}

func NewXLSXSource(client *api.Client, limiter *HostLimiter, cols types.Columns) *XLSXSource {
	if client == nil {
		client = api.NewClient()
	}
	return &XLSXSource{client: client, limiter: limiter, cols: cols}
}

var _ interfaces.TabularSource = (*XLSXSource)(nil)

func (s *XLSXSource) ListTabs(ctx context.Context, locator string) ([]types.TabRef, error) {
	f, err := s.open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names := f.GetSheetList()
	tabs := make([]types.TabRef, 0, len(names))
	for i, name := range names {
		tabs = append(tabs, types.TabRef{ID: strconv.Itoa(i), Name: name})
	}
	return tabs, nil
}

func (s *XLSXSource) ReadTab(ctx context.Context, locator, tabID string) (types.Tab, error) {
	f, err := s.open(ctx, locator)
	if err != nil {
		return types.Tab{}, err
	}
	defer f.Close()

	name, err := sheetName(f, tabID)
	if err != nil {
		return types.Tab{}, err
	}
	records, err := f.GetRows(name)
	if err != nil {
		return types.Tab{}, fmt.Errorf("failed to read rows from %q: %w", name, err)
	}
	return BuildTab(tabID, name, records, s.cols)
}

// sheetName resolves a tab id, accepting either an index or a sheet name.
func sheetName(f *excelize.File, tabID string) (string, error) {
	names := f.GetSheetList()
	if i, err := strconv.Atoi(tabID); err == nil && i >= 0 && i < len(names) {
		return names[i], nil
	}
	for _, n := range names {
		if n == tabID {
			return n, nil
		}
	}
	return "", fmt.Errorf("sheet %q not found", tabID)
}

func (s *XLSXSource) open(ctx context.Context, locator string) (*excelize.File, error) {
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		if _, err := os.Stat(locator); err != nil {
			return nil, fmt.Errorf("workbook %s: %w", locator, err)
		}
		f, err := excelize.OpenFile(locator)
		if err != nil {
			return nil, fmt.Errorf("failed to open xlsx: %w", err)
		}
		return f, nil
	}

	if err := s.limiter.Wait(ctx, locator); err != nil {
		return nil, err
	}
	resp, err := s.client.GET(ctx, locator)
	if err != nil {
		return nil, asRateLimit("xlsx", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	return f, nil
}

// asRateLimit turns an HTTP 429 into a *retry.RateLimitError and passes
// every other error through.
func asRateLimit(sourceName string, err error) error {
	var se *api.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return &retry.RateLimitError{
			Source:     sourceName,
			StatusCode: se.StatusCode,
			RetryAfter: se.RetryAfter,
			Err:        err,
		}
	}
	return err
}
