// Package websearch scrapes web search results for queries the document
// index cannot answer. Used as secondary prompt context only; retrieval from
// the index always comes first.
package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultEndpoint = "https://html.duckduckgo.com/html/"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Client queries the DuckDuckGo HTML endpoint, which serves static markup
// without requiring an API key.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxResults int
}

// NewClient creates a web search client returning at most maxResults hits.
func NewClient(maxResults int) *Client {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Client{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxResults: maxResults,
	}
}

// NewClientWithEndpoint is used by tests to point at a local server.
func NewClientWithEndpoint(endpoint string, maxResults int) *Client {
	c := NewClient(maxResults)
	c.endpoint = endpoint
	return c
}

// Search fetches and parses search results for the query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	u := c.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	results := parseResults(string(body))
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}
	return results, nil
}

// FormatContext renders results the way retrieved chunks are rendered, so
// the model treats them as labeled supporting material.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent information from web search:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "[Web: %s]\n%s\n", r.Title, r.Snippet)
	}
	return b.String()
}

// parseResults walks the DuckDuckGo result markup: each hit is a node with
// class "result", titles live under "result__title" anchors and snippets
// under "result__snippet".
func parseResults(page string) []Result {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "result") {
			r := Result{
				Title:   textOfClass(n, "result__title"),
				Link:    hrefOfClass(n, "result__title"),
				Snippet: textOfClass(n, "result__snippet"),
			}
			if r.Title != "" && r.Link != "" {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func findClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func textOfClass(n *html.Node, class string) string {
	node := findClass(n, class)
	if node == nil {
		return ""
	}
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(node)
	return strings.TrimSpace(b.String())
}

func hrefOfClass(n *html.Node, class string) string {
	node := findClass(n, class)
	if node == nil {
		return ""
	}
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					return attr.Val
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if href := find(c); href != "" {
				return href
			}
		}
		return ""
	}
	return find(node)
}
