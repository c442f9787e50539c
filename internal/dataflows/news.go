package dataflows

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// Headline is one scraped news item.
type Headline struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsService scrapes Google News for market headlines about a trading pair.
type NewsService struct {
	client *resty.Client
	cache  *Cache
}

func NewNewsService(cache *Cache) *NewsService {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; fxpilot/1.0)")

	return &NewsService{client: client, cache: cache}
}

// GetHeadlines searches Google News and returns up to maxResults headlines.
func (ns *NewsService) GetHeadlines(ctx context.Context, query string, maxResults int) ([]Headline, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	cacheKey := fmt.Sprintf("news:%s:%d", query, maxResults)
	if cached, ok := ns.cache.Get(cacheKey); ok {
		if headlines, ok := cached.([]Headline); ok {
			return headlines, nil
		}
	}

	searchURL := fmt.Sprintf("https://news.google.com/search?q=%s&hl=en&gl=US&ceid=US:en",
		url.QueryEscape(query))

	var headlines []Headline
	err := WithRetry(DefaultRetryConfig(), func() error {
		resp, err := ns.client.R().SetContext(ctx).Get(searchURL)
		if err != nil {
			return fmt.Errorf("fetch news: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("news HTTP %d", resp.StatusCode())
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
		if err != nil {
			return fmt.Errorf("parse news HTML: %w", err)
		}

		headlines = parseGoogleNews(doc)
		if len(headlines) > maxResults {
			headlines = headlines[:maxResults]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ns.cache.Set(cacheKey, headlines)
	return headlines, nil
}

func parseGoogleNews(doc *goquery.Document) []Headline {
	var headlines []Headline

	doc.Find("article").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3").Text())
		if title == "" {
			title = strings.TrimSpace(s.Find("h4").Text())
		}
		if title == "" {
			return
		}

		href, ok := s.Find("a").First().Attr("href")
		if !ok {
			return
		}

		source := strings.TrimSpace(s.Find("div[data-n-tid]").Text())
		if source == "" {
			source = "Google News"
		}

		timeText, _ := s.Find("time").Attr("datetime")
		publishedAt := parseNewsTime(timeText, strings.TrimSpace(s.Find("time").Text()))

		headlines = append(headlines, Headline{
			Title:       title,
			URL:         cleanGoogleNewsURL(href),
			Source:      source,
			PublishedAt: publishedAt,
		})
	})

	return headlines
}

func cleanGoogleNewsURL(href string) string {
	if strings.Contains(href, "url=") {
		parts := strings.Split(href, "url=")
		if len(parts) > 1 {
			if decoded, err := url.QueryUnescape(parts[1]); err == nil {
				return decoded
			}
		}
	}
	if strings.HasPrefix(href, "./") {
		return "https://news.google.com" + href[1:]
	}
	if strings.HasPrefix(href, "/") {
		return "https://news.google.com" + href
	}
	return href
}

var relativeTimeRe = regexp.MustCompile(`(?i)(\d+)\s*(minute|hour|day)s?\s+ago`)

// parseNewsTime prefers the datetime attribute and falls back to relative
// text like "3 hours ago".
func parseNewsTime(datetimeAttr, relText string) time.Time {
	if datetimeAttr != "" {
		if t, err := time.Parse(time.RFC3339, datetimeAttr); err == nil {
			return t
		}
	}

	now := time.Now().UTC()
	m := relativeTimeRe.FindStringSubmatch(relText)
	if m == nil {
		return now
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return now
	}
	switch strings.ToLower(m[2]) {
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	}
	return now
}
