package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

// ReportInput is everything the report builder consumes: the decision plus
// all four agent envelopes, read-only.
type ReportInput struct {
	Decision     *models.Decision
	QueryContext *models.StructuredQuery
	Pair         string
	News         *models.AgentResult
	Technical    *models.AgentResult
	Fundamental  *models.AgentResult
	Risk         *models.AgentResult
}

// ReportBuilder renders the long-form HTML report. The narrative sections
// come from the reasoning model; the frame, disclaimer, and references are
// assembled deterministically. A failed report never blocks the workflow.
type ReportBuilder struct {
	reasoner llm.Reasoner
}

func NewReportBuilder(reasoner llm.Reasoner) *ReportBuilder {
	return &ReportBuilder{reasoner: reasoner}
}

func (b *ReportBuilder) Name() string { return consts.AgentReport }

func (b *ReportBuilder) Generate(ctx context.Context, in ReportInput, sink models.EventSink) *models.AgentResult {
	emitProgress(sink, consts.AgentReport, "collecting_data", "Collecting all analysis results", 10)

	if b.reasoner == nil {
		return models.FailedResult(consts.AgentReport, fmt.Errorf("no reasoning model configured for report generation"))
	}
	if in.Decision == nil {
		return models.FailedResult(consts.AgentReport, fmt.Errorf("no decision available for report"))
	}

	emitProgress(sink, consts.AgentReport, "generating_content", "Generating report sections", 40)

	raw, err := b.reasoner.Reason(ctx, reportSystemPrompt, reportUserPrompt(in))
	if err != nil {
		return models.FailedResult(consts.AgentReport, err)
	}

	var sections struct {
		ExecutiveSummary  string   `json:"executive_summary"`
		MarketAnalysis    string   `json:"market_analysis"`
		TechnicalAnalysis string   `json:"technical_analysis"`
		RiskAssessment    string   `json:"risk_assessment"`
		KeyTakeaways      []string `json:"key_takeaways"`
	}
	if err := json.Unmarshal(raw, &sections); err != nil {
		return models.FailedResult(consts.AgentReport, fmt.Errorf("decode report sections: %w", err))
	}

	emitProgress(sink, consts.AgentReport, "assembling_html", "Assembling HTML document", 80)

	doc := b.assembleHTML(in, sections.ExecutiveSummary, sections.MarketAnalysis,
		sections.TechnicalAnalysis, sections.RiskAssessment, sections.KeyTakeaways)

	emitProgress(sink, consts.AgentReport, "complete", "Report generated", 100)

	return &models.AgentResult{
		Success: true,
		Agent:   consts.AgentReport,
		HTML:    doc,
		Data: map[string]any{
			"pair":         in.Pair,
			"action":       in.Decision.Action,
			"generated_at": time.Now().UTC().Format(time.RFC3339),
			"word_count":   len(strings.Fields(doc)),
		},
	}
}

const reportDisclaimer = `This report is generated automatically for informational purposes only and does not constitute financial advice. Trading foreign exchange, commodities, and cryptocurrencies carries a high level of risk and may not be suitable for all investors. Past performance is not indicative of future results. Always conduct your own research and consult a licensed financial advisor before trading.`

var actionColors = map[string]string{
	models.ActionBuy:  "#10b981",
	models.ActionSell: "#ef4444",
	models.ActionWait: "#f59e0b",
}

// assembleHTML builds the final document: header, decision banner, the
// model-written sections, takeaways, references, and the fixed disclaimer.
func (b *ReportBuilder) assembleHTML(in ReportInput, execSummary, marketAnalysis, technicalAnalysis, riskAssessment string, takeaways []string) string {
	color, ok := actionColors[in.Decision.Action]
	if !ok {
		color = "#6b7280"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n")
	fmt.Fprintf(&sb, "<title>Trading Analysis Report - %s</title>\n", html.EscapeString(in.Pair))
	sb.WriteString(`<style>
body { font-family: 'Segoe UI', Tahoma, sans-serif; line-height: 1.6; color: #1f2937; max-width: 1000px; margin: 0 auto; padding: 40px; }
.header { text-align: center; border-bottom: 3px solid #e5e7eb; padding-bottom: 20px; margin-bottom: 40px; }
.decision { text-align: center; padding: 20px; border-radius: 8px; color: #ffffff; margin-bottom: 30px; }
.section { margin-bottom: 30px; }
.section h2 { color: #111827; border-bottom: 1px solid #e5e7eb; padding-bottom: 8px; }
.disclaimer { background: #fef3c7; border: 1px solid #f59e0b; border-radius: 8px; padding: 16px; font-size: 13px; }
</style>
</head>
<body>
`)

	fmt.Fprintf(&sb, "<div class=\"header\"><h1>Trading Analysis Report</h1><p>%s &middot; %s</p></div>\n",
		html.EscapeString(in.Pair), time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "<div class=\"decision\" style=\"background:%s\"><h2>%s</h2><p>Confidence: %.0f%%</p></div>\n",
		color, html.EscapeString(in.Decision.Action), in.Decision.Confidence*100)

	writeSection(&sb, "Executive Summary", execSummary)
	writeSection(&sb, "Market Analysis", marketAnalysis)
	writeSection(&sb, "Technical Analysis", technicalAnalysis)
	writeSection(&sb, "Risk Assessment", riskAssessment)

	if tp := in.Decision.TradeParameters; tp != nil {
		sb.WriteString("<div class=\"section\"><h2>Trading Signals</h2><ul>\n")
		fmt.Fprintf(&sb, "<li>Entry Price: %v</li>\n<li>Stop Loss: %v</li>\n<li>Take Profit: %v</li>\n<li>Position Size: %v lots</li>\n",
			tp.EntryPrice, tp.StopLoss, tp.TakeProfit, tp.PositionSize)
		sb.WriteString("</ul></div>\n")
	}

	if len(takeaways) > 0 {
		sb.WriteString("<div class=\"section\"><h2>Key Takeaways</h2><ul>\n")
		for _, t := range takeaways {
			fmt.Fprintf(&sb, "<li>%s</li>\n", html.EscapeString(t))
		}
		sb.WriteString("</ul></div>\n")
	}

	sb.WriteString("<div class=\"section\"><h2>References</h2>\n")
	if len(in.Decision.Sources) == 0 {
		sb.WriteString("<p>No external sources cited in this analysis.</p>\n")
	} else {
		sb.WriteString("<ul>\n")
		for _, src := range in.Decision.Sources {
			fmt.Fprintf(&sb, "<li><a href=\"%s\">%s</a></li>\n",
				html.EscapeString(src.URL), html.EscapeString(src.Title))
		}
		sb.WriteString("</ul>\n")
	}
	sb.WriteString("</div>\n")

	fmt.Fprintf(&sb, "<div class=\"disclaimer\"><strong>Disclaimer:</strong> %s</div>\n", reportDisclaimer)
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// writeSection trusts section bodies from the model to be HTML paragraphs.
func writeSection(sb *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		body = "<p>No content available.</p>"
	}
	fmt.Fprintf(sb, "<div class=\"section\"><h2>%s</h2>%s</div>\n", title, body)
}

const reportSystemPrompt = `You are a financial report writer. You receive a trading decision and all supporting analysis and write professional narrative sections as HTML paragraphs. Respond with JSON only.`

func reportUserPrompt(in ReportInput) string {
	decisionJSON, _ := json.MarshalIndent(in.Decision, "", "  ")

	summaryOf := func(r *models.AgentResult) string {
		if s, ok := r.String("summary"); ok {
			return s
		}
		if r != nil && !r.Success {
			return "analysis failed: " + r.Error
		}
		return "not available"
	}

	return fmt.Sprintf(`Write a trading analysis report for %s.

FINAL DECISION:
%s

AGENT SUMMARIES:
- News: %s
- Technical: %s
- Fundamental: %s
- Risk: %s

OUTPUT FORMAT (JSON):
{
  "executive_summary": "<p>...</p><p>...</p>",
  "market_analysis": "<p>...</p>",
  "technical_analysis": "<p>...</p>",
  "risk_assessment": "<p>...</p>",
  "key_takeaways": ["takeaway 1", "takeaway 2", "takeaway 3"]
}

Write in a professional, objective style with specific numbers from the analysis. Each section body must be valid HTML paragraphs.`,
		in.Pair, decisionJSON,
		summaryOf(in.News), summaryOf(in.Technical), summaryOf(in.Fundamental), summaryOf(in.Risk))
}
