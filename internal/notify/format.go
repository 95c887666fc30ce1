// Package notify renders aggregates as chat messages and delivers them.
package notify

import (
	"fmt"
	"strings"

	"roas-notifier/internal/aggregate"
	"roas-notifier/internal/normalize"
	"roas-notifier/internal/types"
)

const (
	// Separator goes between sites of one channel and after each summary.
	Separator = "<==================================:small_blue_diamond:===============================>"
	// SummaryHeader precedes every summary block.
	SummaryHeader = "```========================= RESUMO =========================```"
)

// Render returns the messages announcing one site's aggregate: the status
// line, followed by a summary header and block when more than one row
// contributed.
func Render(siteName string, agg types.AggregateResult) []string {
	roasText := strings.TrimSpace(agg.ROAS)
	if roasText == "" {
		roasText = normalize.ZeroText
	}

	roasEmoji := normalize.ROASBandOf(aggregate.ROASValue(agg)).Emoji()
	marginEmoji := normalize.MarginBandOf(types.NormalizedValue{Amount: agg.Margin}).Emoji()

	var sb strings.Builder
	fmt.Fprintf(&sb, ":bar_chart: Atualização %s %s %s\n", siteName, roasEmoji, marginEmoji)
	fmt.Fprintf(&sb, "Investimento: *%s*\n", normalize.FormatBRL(agg.Investment))
	sb.WriteString(revenueLines(agg))
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "ROAS: *%s*\n", roasText)
	fmt.Fprintf(&sb, "MC: *%s*", normalize.FormatBRL(agg.Margin))

	msgs := []string{sb.String()}
	if agg.Contributing > 1 {
		msgs = append(msgs, SummaryHeader, siteSummary(agg))
	}
	return msgs
}

// revenueLines shows both currencies only when both are present.
func revenueLines(agg types.AggregateResult) string {
	local := agg.RevenueLocal.IsPositive()
	foreign := agg.RevenueForeign.IsPositive()
	switch {
	case local && foreign:
		return fmt.Sprintf("Receita (R$): *%s*\nReceita ($): *%s*",
			normalize.FormatBRL(agg.RevenueLocal), normalize.FormatUSD(agg.RevenueForeign))
	case foreign:
		return fmt.Sprintf("Receita: *%s*", normalize.FormatUSD(agg.RevenueForeign))
	default:
		return fmt.Sprintf("Receita: *%s*", normalize.FormatBRL(agg.RevenueLocal))
	}
}

func siteSummary(agg types.AggregateResult) string {
	return strings.Join([]string{
		"*Resumo do canal:*",
		"Investimento total: " + normalize.FormatBRL(agg.Investment),
		"Receita total (R$): " + normalize.FormatBRL(agg.RevenueLocal),
		"Receita total ($): " + normalize.FormatUSD(agg.RevenueForeign),
		"ROAS total: " + normalize.FormatAmount(agg.ROASSum()),
		"MC total: " + normalize.FormatBRL(agg.Margin),
	}, "\n")
}

// RenderBatchSummary returns the closing messages of one notification
// channel: header, channel totals and separator.
func RenderBatchSummary(total types.AggregateResult) []string {
	block := strings.Join([]string{
		"*Resumo do canal:*",
		"Investimento total: " + normalize.FormatBRL(total.Investment),
		"Receita total em reais: " + normalize.FormatBRL(total.RevenueLocal),
		"Receita total em dólares: " + normalize.FormatUSD(total.RevenueForeign),
		"ROAS total: " + normalize.FormatAmount(total.ROASSum()),
		"MC total: " + normalize.FormatBRL(total.Margin),
	}, "\n")
	return []string{SummaryHeader, block, Separator}
}

// RenderChannels returns one message per populated channel block.
// Missing figures show as "**".
func RenderChannels(blocks []types.ChannelResult) []string {
	msgs := make([]string, 0, len(blocks))
	for _, b := range blocks {
		msgs = append(msgs, fmt.Sprintf("Atualização %s\nROAS: %s\nMC: %s",
			b.Title, orStars(b.ROAS), orStars(b.Margin)))
	}
	return msgs
}

func orStars(s string) string {
	if strings.TrimSpace(s) == "" {
		return "**"
	}
	return s
}

// RenderNoData is posted when a site had no row for the target day.
func RenderNoData(site, dateText string) string {
	return fmt.Sprintf(":warning: Site %s não teve dados para o dia %s.", site, dateText)
}

// RenderError is posted to the channel when building a message failed.
func RenderError(what string, err error) string {
	return fmt.Sprintf("Erro ao enviar %s: %v", what, err)
}
