package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"boardroom/internal/models"
)

const (
	// DefaultWebSearchLimit caps results handed to the prompt
	DefaultWebSearchLimit = 3

	duckDuckGoLiteURL = "https://lite.duckduckgo.com/lite/"

	// statuteSite scopes the first search pass to the Kentucky legislature
	statuteSite = "apps.legislature.ky.gov"
)

// WebSearcher finds statute references on the public web
type WebSearcher interface {
	// SearchStatutes searches Kentucky statute sources for a query
	SearchStatutes(ctx context.Context, query string, limit int) ([]models.WebSearchResult, error)
}

// DuckDuckGoSearcher scrapes the DuckDuckGo Lite HTML endpoint. Lite serves
// plain markup without scripts, which keeps the parse simple; still, the
// parser tolerates layout drift by returning fewer results rather than
// failing.
type DuckDuckGoSearcher struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

// NewDuckDuckGoSearcher creates a statute searcher against DuckDuckGo Lite
func NewDuckDuckGoSearcher(logger *log.Logger) *DuckDuckGoSearcher {
	return &DuckDuckGoSearcher{
		endpoint: duckDuckGoLiteURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// SearchStatutes runs a site-scoped search first and falls back to a broader
// statute query when the scoped pass comes back empty
func (s *DuckDuckGoSearcher) SearchStatutes(ctx context.Context, query string, limit int) ([]models.WebSearchResult, error) {
	if limit <= 0 {
		limit = DefaultWebSearchLimit
	}

	scoped := fmt.Sprintf("site:%s %s", statuteSite, query)
	results, err := s.search(ctx, scoped, limit)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	s.logger.Printf("scoped statute search empty, broadening: %q", query)
	return s.search(ctx, "Kentucky Revised Statutes "+query, limit)
}

func (s *DuckDuckGoSearcher) search(ctx context.Context, query string, limit int) ([]models.WebSearchResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; boardroom/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	results := parseLiteResults(doc)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// parseLiteResults walks the lite markup collecting result links and their
// snippets. Links carry class "result-link", snippets sit in cells with class
// "result-snippet" directly after their link.
func parseLiteResults(doc *html.Node) []models.WebSearchResult {
	var results []models.WebSearchResult

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				link := resolveLink(attrValue(n, "href"))
				title := strings.TrimSpace(nodeText(n))
				if link != "" && title != "" {
					results = append(results, models.WebSearchResult{Title: title, URL: link})
				}
			case n.Data == "td" && hasClass(n, "result-snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = strings.TrimSpace(nodeText(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// resolveLink unwraps DuckDuckGo's redirect links (uddg query parameter) and
// normalizes protocol-relative URLs
func resolveLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attrValue(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
