package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"roas-notifier/internal/api"
	"roas-notifier/internal/retry"
	"roas-notifier/internal/types"
)

func TestBuildTab(t *testing.T) {
	records := [][]string{
		{"", "", ""},
		{"Relatório", "", ""},
		{"Data", "Investimento", "Receita", "ROAS Geral", "MC Geral", "MC R$", "ROAS", "MC R$", "ROAS"},
		{"03/04", "R$ 100,00", "R$ 250,00", "2,50", "R$ 30,00", "10", "1,2", "20", "1,8"},
		{"", "", ""},
		{"04/04", "R$ 50,00"},
		{"Total", "R$ 150,00", "R$ 250,00"},
	}

	tab, err := BuildTab("0", "Abril 2024", records, types.DefaultColumns())
	if err != nil {
		t.Fatalf("BuildTab() error = %v", err)
	}
	if len(tab.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(tab.Rows))
	}

	first := tab.Rows[0]
	if first.Date != "03/04" || first.Investment != "R$ 100,00" || first.ROAS != "2,50" {
		t.Errorf("unexpected first row: %+v", first)
	}
	if got := first.Field("MC R$ .1"); got != "20" {
		t.Errorf("second MC R$ block = %q, want 20", got)
	}
	if got := first.Field("ROAS .1"); got != "1,8" {
		t.Errorf("second ROAS block = %q, want 1,8", got)
	}
	if tab.Rows[1].Revenue != "" {
		t.Errorf("short row should be padded with blanks, got %q", tab.Rows[1].Revenue)
	}
	if tab.Summary == nil || tab.Summary.Investment != "R$ 150,00" {
		t.Errorf("summary row not detected: %+v", tab.Summary)
	}
}

func TestBuildTabEmpty(t *testing.T) {
	tab, err := BuildTab("1", "Vazia", [][]string{{"", " "}}, types.DefaultColumns())
	if err != nil {
		t.Fatalf("BuildTab() error = %v", err)
	}
	if len(tab.Rows) != 0 || tab.Summary != nil {
		t.Errorf("expected empty tab, got %+v", tab)
	}
}

func TestBuildTabFallsBackToFirstRow(t *testing.T) {
	records := [][]string{
		{"Dia", "Investimento"},
		{"03/04", "10"},
	}
	tab, err := BuildTab("0", "x", records, types.DefaultColumns())
	if err != nil {
		t.Fatalf("BuildTab() error = %v", err)
	}
	if len(tab.Rows) != 1 || tab.Rows[0].Field("Dia") != "03/04" {
		t.Errorf("unexpected rows: %+v", tab.Rows)
	}
	if tab.Rows[0].HasDate() {
		t.Error("row without the date column should have no date")
	}
}

func TestRateLimiterBurstThenWait(t *testing.T) {
	rl := NewRateLimiter(2, 20*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("third request should wait for a refill, took %s", elapsed)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestHostLimiterNil(t *testing.T) {
	var h *HostLimiter
	if err := h.Wait(context.Background(), "https://docs.google.com/x"); err != nil {
		t.Errorf("nil limiter should never block, got %v", err)
	}
}

func TestCache(t *testing.T) {
	c := NewCache(t.TempDir(), time.Hour)
	key := MakeKey("gsheet-tabs", "https://example.com/pubhtml")

	var tabs []types.TabRef
	if c.Get(key, &tabs) {
		t.Fatal("empty cache reported a hit")
	}
	want := []types.TabRef{{ID: "0", Name: "Março 2024"}, {ID: "17", Name: "Abril 2024"}}
	if err := c.Set(key, want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !c.Get(key, &tabs) {
		t.Fatal("expected a cache hit")
	}
	if len(tabs) != 2 || tabs[1].Name != "Abril 2024" {
		t.Errorf("cached tabs = %+v", tabs)
	}

	disabled := NewCache(t.TempDir(), 0)
	if err := disabled.Set(key, want); err != nil {
		t.Fatalf("Set() on disabled cache error = %v", err)
	}
	if disabled.Get(key, &tabs) {
		t.Error("disabled cache should never hit")
	}
}

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", "Março 2024")
	rows := [][]any{
		{"Data", "Investimento", "Receita", "ROAS Geral", "MC Geral"},
		{"03/03", "R$ 100,00", "R$ 250,00", "2,50", "R$ 30,00"},
		{"04/03", "R$ 80,00", "R$ 90,00", "1,12", "R$ 5,00"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Março 2024", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.NewSheet("Abril 2024"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	return path
}

func TestXLSXSourceLocalFile(t *testing.T) {
	path := writeWorkbook(t)
	src := NewXLSXSource(nil, nil, types.DefaultColumns())
	ctx := context.Background()

	tabs, err := src.ListTabs(ctx, path)
	if err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}
	if len(tabs) != 2 || tabs[0].Name != "Março 2024" || tabs[1].ID != "1" {
		t.Fatalf("tabs = %+v", tabs)
	}

	tab, err := src.ReadTab(ctx, path, "0")
	if err != nil {
		t.Fatalf("ReadTab() error = %v", err)
	}
	if tab.Name != "Março 2024" || len(tab.Rows) != 2 {
		t.Fatalf("tab = %+v", tab)
	}
	if tab.Rows[0].Revenue != "R$ 250,00" {
		t.Errorf("revenue = %q", tab.Rows[0].Revenue)
	}

	byName, err := src.ReadTab(ctx, path, "Março 2024")
	if err != nil || len(byName.Rows) != 2 {
		t.Errorf("ReadTab by name = %+v, %v", byName, err)
	}

	if _, err := src.ReadTab(ctx, path, "9"); err == nil {
		t.Error("expected an error for a missing sheet")
	}
}

func TestXLSXSourceRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewXLSXSource(api.NewClient(api.WithTimeout(2*time.Second)), nil, types.DefaultColumns())
	_, err := src.ListTabs(context.Background(), srv.URL+"/export?format=xlsx")
	if !retry.IsRateLimit(err) {
		t.Fatalf("error = %v, want a rate limit error", err)
	}
}

const pubhtmlPage = `<html><head><title>Relatório Acme</title></head><body>
<div id="doc-title">Relatório Acme</div>
<ul id="sheet-menu">
  <li id="sheet-button-0"><a href="#">Março 2024</a></li>
  <li id="sheet-button-1885"><a href="#">Abril 2024</a></li>
</ul>
</body></html>`

const sheetPage = `<html><head><title>Março 2024</title></head><body>
<table class="waffle"><tbody>
<tr><td>Data</td><td>Investimento</td><td>Receita</td><td>ROAS Geral</td><td>MC Geral</td></tr>
<tr><td>03/03</td><td>R$ 100,00</td><td>R$ 250,00</td><td>2,50</td><td><div class="softmerge-inner">R$ 30,00</div></td></tr>
<tr><td></td><td></td><td></td><td></td><td></td></tr>
<tr><td>TOTAL</td><td>R$ 100,00</td><td>R$ 250,00</td><td></td><td></td></tr>
</tbody></table>
</body></html>`

func TestGSheetSource(t *testing.T) {
	var listCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/spreadsheets/d/e/abc/pubhtml", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		fmt.Fprint(w, pubhtmlPage)
	})
	mux.HandleFunc("/spreadsheets/d/e/abc/pubhtml/sheet", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("gid") != "0" || r.URL.Query().Get("headers") != "false" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, sheetPage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	locator := srv.URL + "/spreadsheets/d/e/abc/pubhtml?widget=true"
	src := NewGSheetSource(2*time.Second, nil, NewCache(t.TempDir(), time.Hour), types.DefaultColumns())
	ctx := context.Background()

	tabs, err := src.ListTabs(ctx, locator)
	if err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}
	if len(tabs) != 2 || tabs[1].ID != "1885" || tabs[1].Name != "Abril 2024" {
		t.Fatalf("tabs = %+v", tabs)
	}

	tab, err := src.ReadTab(ctx, locator, "0")
	if err != nil {
		t.Fatalf("ReadTab() error = %v", err)
	}
	if tab.Name != "Março 2024" {
		t.Errorf("tab name = %q", tab.Name)
	}
	if len(tab.Rows) != 1 || tab.Rows[0].Margin != "R$ 30,00" {
		t.Errorf("rows = %+v", tab.Rows)
	}
	if tab.Summary == nil {
		t.Error("TOTAL row should be the summary")
	}
	if listCalls != 1 {
		t.Errorf("tab list fetched %d times, want 1 (second lookup is cached)", listCalls)
	}
}

func TestGSheetSourceRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewGSheetSource(2*time.Second, nil, nil, types.DefaultColumns())
	_, err := src.ListTabs(context.Background(), srv.URL+"/spreadsheets/d/e/abc/pubhtml")
	if !retry.IsRateLimit(err) {
		t.Fatalf("error = %v, want a rate limit error", err)
	}
}

func TestPubBase(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://docs.google.com/spreadsheets/d/e/X/pubhtml", "https://docs.google.com/spreadsheets/d/e/X/pubhtml", false},
		{"https://docs.google.com/spreadsheets/d/e/X/pubhtml?gid=1&single=true", "https://docs.google.com/spreadsheets/d/e/X/pubhtml", false},
		{"https://docs.google.com/spreadsheets/d/e/X/pubhtml/sheet?gid=3", "https://docs.google.com/spreadsheets/d/e/X/pubhtml", false},
		{"https://docs.google.com/spreadsheets/d/X/edit#gid=0", "", true},
		{"not a url", "", true},
	}
	for _, tt := range tests {
		got, err := pubBase(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("pubBase(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("pubBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
