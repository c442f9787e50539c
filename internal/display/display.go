package display

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			MarginTop(1)

	bodyStyle = lipgloss.NewStyle().
			Width(76).
			PaddingLeft(2)

	buyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#10B981")).
			Padding(0, 2)

	sellStyle = buyStyle.
			Background(lipgloss.Color("#EF4444"))

	waitStyle = buyStyle.
			Background(lipgloss.Color("#F59E0B"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981"))
)

func decisionStyle(action string) lipgloss.Style {
	switch action {
	case models.ActionBuy:
		return buyStyle
	case models.ActionSell:
		return sellStyle
	}
	return waitStyle
}

// RenderResult formats a finished analysis for the terminal.
func RenderResult(r *models.Result) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("FxPilot Analysis: %s", r.Pair)))
	b.WriteString("\n")

	if r.Decision != nil {
		banner := fmt.Sprintf("%s  (confidence %.0f%%)", r.Decision.Action, r.Decision.Confidence*100)
		b.WriteString(decisionStyle(r.Decision.Action).Render(banner))
		b.WriteString("\n")

		if r.Decision.Reasoning.Summary != "" {
			b.WriteString(sectionStyle.Render("Reasoning"))
			b.WriteString("\n")
			b.WriteString(bodyStyle.Render(r.Decision.Reasoning.Summary))
			b.WriteString("\n")
		}
		for _, factor := range r.Decision.Reasoning.KeyFactors {
			b.WriteString(bodyStyle.Render("* " + factor))
			b.WriteString("\n")
		}
		if tp := r.Decision.TradeParameters; tp != nil {
			b.WriteString(sectionStyle.Render("Trade Parameters"))
			b.WriteString("\n")
			b.WriteString(bodyStyle.Render(fmt.Sprintf(
				"Entry %.5f | Stop %.5f | Target %.5f | Size %.2f lots",
				tp.EntryPrice, tp.StopLoss, tp.TakeProfit, tp.PositionSize)))
			b.WriteString("\n")
		}
	}

	b.WriteString(sectionStyle.Render("Agents"))
	b.WriteString("\n")
	b.WriteString(renderAgentLine("News", r.AgentResults.News, "summary"))
	b.WriteString(renderAgentLine("Technical", r.AgentResults.Technical, "price_source"))
	b.WriteString(renderAgentLine("Fundamental", r.AgentResults.Fundamental, "outlook"))
	b.WriteString(renderAgentLine("Risk", r.AgentResults.Risk, "summary"))

	if len(r.Metadata.Errors) > 0 {
		b.WriteString(sectionStyle.Render("Degraded Stages"))
		b.WriteString("\n")
		stages := make([]string, 0, len(r.Metadata.Errors))
		for stage := range r.Metadata.Errors {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		for _, stage := range stages {
			b.WriteString(bodyStyle.Render(failStyle.Render(stage) + ": " + r.Metadata.Errors[stage]))
			b.WriteString("\n")
		}
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("run %s | %d steps", r.Metadata.RunID, r.Metadata.Steps)))
	b.WriteString("\n")

	if r.Decision != nil && r.Decision.Disclaimer != "" {
		b.WriteString(dimStyle.Render(r.Decision.Disclaimer))
		b.WriteString("\n")
	}

	return b.String()
}

func renderAgentLine(label string, r *models.AgentResult, detailKey string) string {
	if r == nil {
		return bodyStyle.Render(label+": "+dimStyle.Render("not run")) + "\n"
	}
	if !r.Success {
		return bodyStyle.Render(label+": "+failStyle.Render("failed")+" ("+r.Error+")") + "\n"
	}

	detail := ""
	if v, ok := r.String(detailKey); ok && v != "" {
		detail = " " + dimStyle.Render(truncate(v, 60))
	}
	return bodyStyle.Render(label+": "+okStyle.Render("ok")+detail) + "\n"
}

// RenderEvent turns one stream event into a progress line, or "" for event
// types the live view does not show.
func RenderEvent(ev models.StreamEvent) string {
	switch ev.Type {
	case consts.EventStart:
		query, _ := ev.Data["query"].(string)
		return dimStyle.Render("starting analysis: " + query)
	case consts.EventQueryParsed:
		pair, _ := ev.Data["pair"].(string)
		return okStyle.Render("pair resolved: " + pair)
	case consts.EventAgentStart:
		agent, _ := ev.Data["agent"].(string)
		return dimStyle.Render(agent + " analyst started")
	case consts.EventAgentProgress:
		agent, _ := ev.Data["agent"].(string)
		message, _ := ev.Data["message"].(string)
		return dimStyle.Render(fmt.Sprintf("  %s: %s", agent, message))
	case consts.EventAgentUpdate:
		agent, _ := ev.Data["agent"].(string)
		if success, _ := ev.Data["success"].(bool); !success {
			return failStyle.Render(agent + " analysis failed")
		}
		return okStyle.Render(agent + " analysis complete")
	case consts.EventRiskUpdate:
		if approved, _ := ev.Data["trade_approved"].(bool); approved {
			return okStyle.Render("risk check: trade approved")
		}
		return waitStyle.Render("risk check: trade not approved")
	case consts.EventDecision:
		action, _ := ev.Data["action"].(string)
		return decisionStyle(action).Render("decision: " + action)
	case consts.EventReportUpdate:
		return okStyle.Render("report generated")
	case consts.EventError:
		msg, _ := ev.Data["error"].(string)
		return failStyle.Render("error: " + msg)
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
