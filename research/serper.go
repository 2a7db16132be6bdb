package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SerperProvider queries the Serper web-search API
// (https://google.serper.dev/search).
type SerperProvider struct {
	endpoint   string
	apiKey     string
	maxResults int
	httpClient *http.Client
}

// NewSerper creates a web-search provider. endpoint defaults to the
// public Serper API; maxResults defaults to 3.
func NewSerper(endpoint, apiKey string, maxResults int) *SerperProvider {
	if endpoint == "" {
		endpoint = "https://google.serper.dev/search"
	}
	if maxResults == 0 {
		maxResults = 3
	}
	return &SerperProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *SerperProvider) Name() string { return "web" }

func (p *SerperProvider) Search(ctx context.Context, query string) ([]Snippet, error) {
	body, err := json.Marshal(map[string]any{"q": query, "num": p.maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB max
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper returned status %d", resp.StatusCode)
	}

	var out struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var snippets []Snippet
	for _, r := range out.Organic {
		if len(snippets) >= p.maxResults {
			break
		}
		snippets = append(snippets, Snippet{
			Source:  "web",
			Title:   r.Title,
			URL:     r.Link,
			Excerpt: r.Snippet,
		})
	}
	return snippets, nil
}
