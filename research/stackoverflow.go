package research

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"time"
)

// StackOverflowProvider queries the Stack Exchange search API for
// relevant Stack Overflow questions.
type StackOverflowProvider struct {
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// NewStackOverflow creates a Q&A-site provider. endpoint defaults to
// the public Stack Exchange API; maxResults defaults to 3.
func NewStackOverflow(endpoint string, maxResults int) *StackOverflowProvider {
	if endpoint == "" {
		endpoint = "https://api.stackexchange.com/2.3/search/excerpts"
	}
	if maxResults == 0 {
		maxResults = 3
	}
	return &StackOverflowProvider{
		endpoint:   endpoint,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *StackOverflowProvider) Name() string { return "stackoverflow" }

func (p *StackOverflowProvider) Search(ctx context.Context, query string) ([]Snippet, error) {
	params := url.Values{}
	params.Set("order", "desc")
	params.Set("sort", "relevance")
	params.Set("q", query)
	params.Set("site", "stackoverflow")
	params.Set("pagesize", fmt.Sprintf("%d", p.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB max
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stackexchange returned status %d", resp.StatusCode)
	}

	var out struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Excerpt string `json:"excerpt"`
		} `json:"items"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var snippets []Snippet
	for _, item := range out.Items {
		if len(snippets) >= p.maxResults {
			break
		}
		snippets = append(snippets, Snippet{
			Source:  "stackoverflow",
			Title:   html.UnescapeString(item.Title),
			URL:     item.Link,
			Excerpt: html.UnescapeString(item.Excerpt),
		})
	}
	return snippets, nil
}
