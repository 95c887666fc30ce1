package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"roas-notifier/internal/aggregate"
	"roas-notifier/internal/api"
	"roas-notifier/internal/deliverylog"
	"roas-notifier/internal/types"
)

func TestRenderSingleRow(t *testing.T) {
	agg := aggregate.Aggregate([]types.MatchedRow{{Tab: "Março 2024", Row: types.Row{
		Date: "04/03", Investment: "R$100,00", Revenue: "R$200,00", ROAS: "2,00", Margin: "50,00",
	}}})

	msgs := Render("Acme", agg)
	if len(msgs) != 1 {
		t.Fatalf("expected a single message, got %d", len(msgs))
	}
	want := ":bar_chart: Atualização Acme :money_with_wings: :moneybag:\n" +
		"Investimento: *R$ 100,00*\n" +
		"Receita: *R$ 200,00*\n" +
		"ROAS: *2,00*\n" +
		"MC: *R$ 50,00*"
	if msgs[0] != want {
		t.Errorf("message mismatch:\n got: %q\nwant: %q", msgs[0], want)
	}
}

func TestRenderMultipleRowsAddsSummary(t *testing.T) {
	agg := aggregate.Aggregate([]types.MatchedRow{
		{Tab: "Março 2024", Row: types.Row{Investment: "R$ 1.000,00", Revenue: "R$ 900,00", ROAS: "0,90", Margin: "-100,00"}},
		{Tab: "Março 2024 US", Row: types.Row{Investment: "R$ 500,00", Revenue: "$ 300,00", ROAS: "0,60", Margin: "-50,00"}},
	})

	msgs := Render("Acme", agg)
	if len(msgs) != 3 {
		t.Fatalf("expected status, header and summary, got %d", len(msgs))
	}
	if !strings.HasPrefix(msgs[0], ":bar_chart: Atualização Acme :money_with_wings: :warning:\n") {
		t.Errorf("unexpected status line: %q", msgs[0])
	}
	if !strings.Contains(msgs[0], "Receita (R$): *R$ 900,00*\nReceita ($): *$ 300,00*") {
		t.Errorf("both currencies expected: %q", msgs[0])
	}
	if !strings.Contains(msgs[0], "ROAS: *1,50*") {
		t.Errorf("summed ROAS expected: %q", msgs[0])
	}
	if msgs[1] != SummaryHeader {
		t.Errorf("expected summary header, got %q", msgs[1])
	}
	if !strings.Contains(msgs[2], "Investimento total: R$ 1.500,00") ||
		!strings.Contains(msgs[2], "MC total: R$ -150,00") {
		t.Errorf("unexpected summary block: %q", msgs[2])
	}
}

func TestRenderForeignOnlyRevenue(t *testing.T) {
	agg := types.AggregateResult{RevenueForeign: decimal.NewFromInt(50), Contributing: 1, ROAS: "1,20", Matched: true}
	msg := Render("Acme", agg)[0]
	if !strings.Contains(msg, "Receita: *$ 50,00*") {
		t.Errorf("expected foreign revenue line: %q", msg)
	}
}

func TestRenderBatchSummary(t *testing.T) {
	total := types.AggregateResult{
		Investment:     decimal.RequireFromString("1234.5"),
		RevenueLocal:   decimal.NewFromInt(2000),
		RevenueForeign: decimal.NewFromInt(10),
		Margin:         decimal.NewFromInt(300),
		ROASValues:     []decimal.Decimal{decimal.NewFromInt(2), decimal.RequireFromString("0.5")},
	}
	msgs := RenderBatchSummary(total)
	if len(msgs) != 3 || msgs[0] != SummaryHeader || msgs[2] != Separator {
		t.Fatalf("unexpected framing: %q", msgs)
	}
	want := "*Resumo do canal:*\n" +
		"Investimento total: R$ 1.234,50\n" +
		"Receita total em reais: R$ 2.000,00\n" +
		"Receita total em dólares: $ 10,00\n" +
		"ROAS total: 2,50\n" +
		"MC total: R$ 300,00"
	if msgs[1] != want {
		t.Errorf("summary mismatch:\n got: %q\nwant: %q", msgs[1], want)
	}
}

func TestRenderChannels(t *testing.T) {
	msgs := RenderChannels([]types.ChannelResult{
		{Title: "FB ADS", ROAS: "1,80", Margin: "R$ 30,00"},
		{Title: "G ADS", ROAS: "", Margin: ""},
	})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0] != "Atualização FB ADS\nROAS: 1,80\nMC: R$ 30,00" {
		t.Errorf("unexpected FB ADS message: %q", msgs[0])
	}
	if msgs[1] != "Atualização G ADS\nROAS: **\nMC: **" {
		t.Errorf("unexpected G ADS message: %q", msgs[1])
	}

	tagged := RenderChannels([]types.ChannelResult{{Title: "FB ADS", Tab: "Março 2024", ROAS: "1", Margin: "2"}})
	if strings.Contains(tagged[0], "Março") {
		t.Errorf("tab name must not appear in the message: %q", tagged[0])
	}
}

func TestRenderNoDataAndError(t *testing.T) {
	if got := RenderNoData("Acme", "04/03"); got != ":warning: Site Acme não teve dados para o dia 04/03." {
		t.Errorf("RenderNoData = %q", got)
	}
	if got := RenderError("resumo do canal", errors.New("boom")); got != "Erro ao enviar resumo do canal: boom" {
		t.Errorf("RenderError = %q", got)
	}
}

type memAudit struct{ entries []deliverylog.Entry }

func (m *memAudit) Append(e deliverylog.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestSlackNotifier(t *testing.T) {
	var texts []string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		texts = append(texts, body["text"])
		w.WriteHeader(status)
	}))
	defer srv.Close()

	audit := &memAudit{}
	n := NewSlackNotifier(api.NewClient(), srv.URL,
		WithSite("Acme"),
		WithAudit(audit),
	)

	if !n.Send(context.Background(), "hello") {
		t.Error("expected 200 to count as delivered")
	}
	status = http.StatusInternalServerError
	if n.Send(context.Background(), "again") {
		t.Error("expected 500 to count as failed")
	}

	if len(texts) != 2 || texts[0] != "hello" {
		t.Errorf("server saw %v", texts)
	}
	if len(audit.entries) != 2 || !audit.entries[0].OK || audit.entries[1].OK || audit.entries[0].Site != "Acme" {
		t.Errorf("unexpected audit entries: %+v", audit.entries)
	}
}

func TestFactoryFallsBackToDryRun(t *testing.T) {
	f := NewFactory(api.NewClient(), FactoryConfig{})
	if _, ok := f("stdout").(DryRunNotifier); !ok {
		t.Error("non-URL locator should yield a dry-run notifier")
	}
	if _, ok := f("https://hooks.slack.com/services/x").(*SlackNotifier); !ok {
		t.Error("https locator should yield a Slack notifier")
	}
	dry := NewFactory(api.NewClient(), FactoryConfig{DryRun: true})
	if _, ok := dry("https://hooks.slack.com/services/x").(DryRunNotifier); !ok {
		t.Error("dry run should override URL locators")
	}
}

func TestSiteFromContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	audit := &memAudit{}
	f := NewFactory(api.NewClient(), FactoryConfig{Audit: audit})
	ctx := ContextWithSite(context.Background(), "Beta")
	if !f(srv.URL).Send(ctx, "oi") {
		t.Fatal("expected delivery")
	}
	if len(audit.entries) != 1 || audit.entries[0].Site != "Beta" {
		t.Errorf("audit entries = %+v", audit.entries)
	}
}
