package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/dataflows"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

// NewsAnalyst scores market sentiment for a pair from scraped headlines. The
// reasoning model interprets the headlines when available; otherwise a
// keyword scorer produces a lower-confidence sentiment.
type NewsAnalyst struct {
	reasoner llm.Reasoner
	news     *dataflows.NewsService
}

func NewNewsAnalyst(reasoner llm.Reasoner, news *dataflows.NewsService) *NewsAnalyst {
	return &NewsAnalyst{reasoner: reasoner, news: news}
}

func (a *NewsAnalyst) Name() string { return consts.AgentNews }

func (a *NewsAnalyst) Analyze(ctx context.Context, req Request, sink models.EventSink) *models.AgentResult {
	start := time.Now()
	emitProgress(sink, consts.AgentNews, "fetching_headlines", "Fetching headlines for "+req.Pair, 10)

	headlines, err := a.news.GetHeadlines(ctx, newsQuery(req.Pair), 10)
	if err != nil {
		log.Printf("[NewsAnalyst] headline fetch failed for %s: %v", req.Pair, err)
		headlines = nil
	}
	emitProgress(sink, consts.AgentNews, "headlines_fetched",
		fmt.Sprintf("Found %d headlines", len(headlines)), 40)

	var data map[string]any
	if a.reasoner != nil {
		data, err = a.analyzeWithModel(ctx, req.Pair, headlines, sink)
		if err != nil {
			log.Printf("[NewsAnalyst] model analysis failed for %s: %v", req.Pair, err)
		}
	}
	if data == nil {
		if len(headlines) == 0 && err != nil {
			return models.FailedResult(consts.AgentNews, err)
		}
		emitProgress(sink, consts.AgentNews, "keyword_scoring", "Scoring sentiment from keywords", 70)
		data = scoreHeadlines(req.Pair, headlines)
	}

	data["news_count"] = len(headlines)
	data["analysis_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["execution_time"] = time.Since(start).Seconds()

	emitProgress(sink, consts.AgentNews, "complete",
		fmt.Sprintf("News analysis complete in %.2fs", time.Since(start).Seconds()), 100)

	return &models.AgentResult{Success: true, Agent: consts.AgentNews, Data: data}
}

func (a *NewsAnalyst) analyzeWithModel(ctx context.Context, pair string, headlines []dataflows.Headline, sink models.EventSink) (map[string]any, error) {
	emitProgress(sink, consts.AgentNews, "llm_analysis", "Analyzing sentiment with reasoning model", 60)

	raw, err := a.reasoner.Reason(ctx, newsSystemPrompt, newsUserPrompt(pair, headlines))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		SentimentScore float64  `json:"sentiment_score"`
		Sentiment      string   `json:"sentiment"`
		Impact         string   `json:"impact"`
		KeyEvents      []string `json:"key_events"`
		Summary        string   `json:"summary"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode news analysis: %w", err)
	}

	return map[string]any{
		"pair":            pair,
		"headlines":       headlineMaps(headlines),
		"sentiment_score": parsed.SentimentScore,
		"sentiment":       normalizeSentiment(parsed.Sentiment),
		"impact":          parsed.Impact,
		"key_events":      parsed.KeyEvents,
		"summary":         parsed.Summary,
		"data_source":     "llm_analysis",
	}, nil
}

var bullishWords = []string{"rally", "surge", "gain", "rise", "bullish", "strong", "beat", "boost", "record high"}
var bearishWords = []string{"fall", "drop", "slump", "decline", "bearish", "weak", "miss", "fear", "selloff", "record low"}

// scoreHeadlines is the deterministic fallback: count directional keywords
// and map the balance to a score in [-1, 1].
func scoreHeadlines(pair string, headlines []dataflows.Headline) map[string]any {
	var bull, bear int
	for _, h := range headlines {
		title := strings.ToLower(h.Title)
		for _, w := range bullishWords {
			if strings.Contains(title, w) {
				bull++
			}
		}
		for _, w := range bearishWords {
			if strings.Contains(title, w) {
				bear++
			}
		}
	}

	score := 0.0
	if total := bull + bear; total > 0 {
		score = float64(bull-bear) / float64(total)
	}

	sentiment := "neutral"
	if score > 0.2 {
		sentiment = "bullish"
	} else if score < -0.2 {
		sentiment = "bearish"
	}

	summary := fmt.Sprintf("Keyword scan of %d headlines for %s: %d bullish vs %d bearish signals.",
		len(headlines), pair, bull, bear)
	if len(headlines) == 0 {
		summary = "No recent headlines found for " + pair + "."
	}

	return map[string]any{
		"pair":            pair,
		"headlines":       headlineMaps(headlines),
		"sentiment_score": round2(score),
		"sentiment":       sentiment,
		"impact":          "medium",
		"key_events":      []string{},
		"summary":         summary,
		"data_source":     "keyword_fallback",
	}
}

func headlineMaps(headlines []dataflows.Headline) []map[string]any {
	out := make([]map[string]any, 0, len(headlines))
	for _, h := range headlines {
		out = append(out, map[string]any{
			"title":  h.Title,
			"url":    h.URL,
			"source": h.Source,
			"date":   h.PublishedAt.Format("2006-01-02"),
		})
	}
	return out
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish":
		return "bullish"
	case "bearish":
		return "bearish"
	}
	return "neutral"
}

func newsQuery(pair string) string {
	base, quoteCcy, err := dataflows.ParsePair(pair)
	if err != nil {
		return pair + " forex news"
	}
	switch base {
	case "XAU":
		return "gold price news"
	case "XAG":
		return "silver price news"
	case "BTC":
		return "bitcoin price news"
	case "ETH":
		return "ethereum price news"
	}
	return base + "/" + quoteCcy + " forex news"
}

const newsSystemPrompt = `You are a forex news analyst. You receive recent market headlines and score the overall sentiment for a trading pair. Respond with JSON only.`

func newsUserPrompt(pair string, headlines []dataflows.Headline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze current news sentiment for %s.\n\nRECENT HEADLINES:\n", pair)
	if len(headlines) == 0 {
		b.WriteString("(none found)\n")
	}
	for _, h := range headlines {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", h.Source, h.Title, h.PublishedAt.Format("2006-01-02"))
	}
	b.WriteString(`
Score the sentiment from -1.0 (very bearish) to +1.0 (very bullish) and assess the market impact.

OUTPUT FORMAT (JSON):
{
  "sentiment_score": 0.0,
  "sentiment": "bullish|bearish|neutral",
  "impact": "high|medium|low",
  "key_events": ["event 1", "event 2"],
  "summary": "1-2 sentence summary of market sentiment and why"
}

Use ONLY the headlines above. If they are insufficient, say so in the summary and stay neutral.`)
	return b.String()
}
