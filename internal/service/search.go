package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/om01deshmukh/Atheron-AI/internal/config"
)

// SearchService scrapes DuckDuckGo's HTML endpoint for web results used to
// ground answers with current data. Best-effort: any failure yields an
// empty result list, never an error surfaced to the chat flow.
type SearchService struct {
	httpClient *http.Client
	baseURL    string
	cache      *searchCache
}

func NewSearchService() *SearchService {
	return &SearchService{
		httpClient: &http.Client{Timeout: config.SearchTimeout},
		baseURL:    "https://html.duckduckgo.com/html/",
		cache:      newSearchCache(config.SearchCacheDuration),
	}
}

type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

func (s *SearchService) SearchWeb(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if cached := s.cache.Get(query); cached != nil {
		return clip(cached, maxResults), nil
	}

	reqURL := s.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Atheron/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	results := ParseResults(doc)
	s.cache.Set(query, results)
	return clip(results, maxResults), nil
}

// SearchPapers narrows the query to academic publishers.
func (s *SearchService) SearchPapers(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	academic := query + " research paper site:arxiv.org OR site:pubmed.ncbi.nlm.nih.gov OR site:nature.com OR site:science.org"
	return s.SearchWeb(ctx, academic, maxResults)
}

// ParseResults extracts result entries from a DuckDuckGo HTML results page.
func ParseResults(doc *goquery.Document) []SearchResult {
	var results []SearchResult
	doc.Find(".result").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find(".result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		results = append(results, SearchResult{
			Title:       strings.TrimSpace(link.Text()),
			URL:         resolveRedirect(href),
			Description: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
		})
	})
	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func clip(results []SearchResult, max int) []SearchResult {
	if max > 0 && len(results) > max {
		return results[:max]
	}
	return results
}

type searchCache struct {
	mu      sync.RWMutex
	entries map[string]searchEntry
	ttl     time.Duration
}

type searchEntry struct {
	results  []SearchResult
	cachedAt time.Time
}

func newSearchCache(ttl time.Duration) *searchCache {
	return &searchCache{entries: make(map[string]searchEntry), ttl: ttl}
}

func (c *searchCache) Get(query string) []SearchResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[query]
	if !ok || time.Since(e.cachedAt) > c.ttl {
		return nil
	}
	return e.results
}

func (c *searchCache) Set(query string, results []SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = searchEntry{results: results, cachedAt: time.Now()}
}
