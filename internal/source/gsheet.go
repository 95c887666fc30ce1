package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"roas-notifier/internal/api"
	"roas-notifier/internal/interfaces"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/retry"
	"roas-notifier/internal/types"
)

// GSheetSource reads Google Sheets published to the web ("File > Share >
// Publish to web"). The locator is the pubhtml URL; tab ids are sheet gids.
type GSheetSource struct {
	timeout time.Duration
	limiter *HostLimiter
	cache   *Cache
	cols    types.Columns
}

func NewGSheetSource(timeout time.Duration, limiter *HostLimiter, cache *Cache, cols types.Columns) *GSheetSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GSheetSource{timeout: timeout, limiter: limiter, cache: cache, cols: cols}
}

var _ interfaces.TabularSource = (*GSheetSource)(nil)

func (s *GSheetSource) ListTabs(ctx context.Context, locator string) ([]types.TabRef, error) {
	base, err := pubBase(locator)
	if err != nil {
		return nil, err
	}

	var tabs []types.TabRef
	key := MakeKey("gsheet-tabs", base)
	if s.cache.Get(key, &tabs) {
		logger.Debug(ctx, "Tab list served from cache", "tabs", len(tabs))
		return tabs, nil
	}

	body, err := s.fetch(ctx, base)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse published sheet: %w", err)
	}
	tabs = parseTabList(doc)

	if err := s.cache.Set(key, tabs); err != nil {
		logger.Warn(ctx, "Failed to cache tab list", "error", err)
	}
	return tabs, nil
}

func (s *GSheetSource) ReadTab(ctx context.Context, locator, tabID string) (types.Tab, error) {
	base, err := pubBase(locator)
	if err != nil {
		return types.Tab{}, err
	}

	q := url.Values{}
	q.Set("headers", "false")
	q.Set("gid", tabID)
	body, err := s.fetch(ctx, base+"/sheet?"+q.Encode())
	if err != nil {
		return types.Tab{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return types.Tab{}, fmt.Errorf("failed to parse sheet %s: %w", tabID, err)
	}

	return BuildTab(tabID, s.resolveName(ctx, locator, tabID, doc), parseTable(doc), s.cols)
}

// resolveName prefers the name from the tab list, then the page title.
func (s *GSheetSource) resolveName(ctx context.Context, locator, tabID string, doc *goquery.Document) string {
	if tabs, err := s.ListTabs(ctx, locator); err == nil {
		for _, t := range tabs {
			if t.ID == tabID {
				return t.Name
			}
		}
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return tabID
}

func (s *GSheetSource) fetch(ctx context.Context, target string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx, target); err != nil {
		return nil, err
	}

	var (
		body     []byte
		status   int
		fetchErr error
	)

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.SetRequestTimeout(s.timeout)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range api.BrowserHeaders() {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
		fetchErr = err
	})

	if err := c.Visit(target); err != nil && fetchErr == nil {
		fetchErr = err
	}
	c.Wait()

	if status == http.StatusTooManyRequests {
		return nil, &retry.RateLimitError{Source: "gsheet", StatusCode: status, Err: fetchErr}
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("failed to fetch published sheet (status %d): %w", status, fetchErr)
	}
	return body, nil
}

// pubBase reduces any published-sheet URL to ".../pubhtml".
func pubBase(locator string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid sheet locator %q", locator)
	}
	idx := strings.Index(u.Path, "/pubhtml")
	if idx < 0 {
		return "", fmt.Errorf("sheet locator %q is not a published (pubhtml) URL", locator)
	}
	u.Path = u.Path[:idx+len("/pubhtml")]
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func parseTabList(doc *goquery.Document) []types.TabRef {
	var tabs []types.TabRef
	doc.Find("#sheet-menu li").Each(func(_ int, li *goquery.Selection) {
		id, ok := li.Attr("id")
		if !ok {
			return
		}
		gid := strings.TrimPrefix(id, "sheet-button-")
		name := strings.TrimSpace(li.Text())
		if gid == "" || name == "" {
			return
		}
		tabs = append(tabs, types.TabRef{ID: gid, Name: name})
	})
	if len(tabs) > 0 {
		return tabs
	}

	// single-sheet documents have no menu, only the viewport div
	doc.Find("#sheets-viewport > div[id]").Each(func(_ int, div *goquery.Selection) {
		id, _ := div.Attr("id")
		name := strings.TrimSpace(doc.Find("#doc-title").First().Text())
		if name == "" {
			name = id
		}
		tabs = append(tabs, types.TabRef{ID: id, Name: name})
	})
	return tabs
}

func parseTable(doc *goquery.Document) [][]string {
	var records [][]string
	doc.Find("table.waffle").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})
		if len(cells) > 0 {
			records = append(records, cells)
		}
	})
	return records
}
