// Package research gathers external grounding context for test-case
// synthesis. Provider failures are never fatal: a provider that errors
// or times out simply contributes no snippets.
package research

import (
	"context"
	"time"

	"ticket-triage/logger"
)

// Snippet is a short externally-sourced excerpt used as grounding
// context for test-case synthesis.
type Snippet struct {
	Source  string `json:"source"` // "web" or "stackoverflow"
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

// Provider answers a search query with ranked snippets.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Snippet, error)
}

// Runner queries each configured provider in turn with an independent
// timeout and merges the results.
type Runner struct {
	providers   []Provider
	timeout     time.Duration
	maxSnippets int
	log         logger.Logger
}

// NewRunner creates a research runner. timeout bounds each provider
// call; maxSnippets caps the merged result (0 means 6).
func NewRunner(providers []Provider, timeout time.Duration, maxSnippets int, log logger.Logger) *Runner {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if maxSnippets == 0 {
		maxSnippets = 6
	}
	return &Runner{
		providers:   providers,
		timeout:     timeout,
		maxSnippets: maxSnippets,
		log:         log,
	}
}

// Search derives a query from the root cause and collects snippets from
// every provider. Never returns an error: degraded providers yield
// fewer snippets, possibly none.
func (r *Runner) Search(ctx context.Context, rootCause string) []Snippet {
	query := BuildQuery(rootCause)
	if query == "" {
		return nil
	}

	var all []Snippet
	for _, p := range r.providers {
		pctx, cancel := context.WithTimeout(ctx, r.timeout)
		snippets, err := p.Search(pctx, query)
		cancel()
		if err != nil {
			r.log.Warn("research.provider_failed",
				logger.String("provider", p.Name()),
				logger.Err(err),
			)
			continue
		}
		all = append(all, snippets...)
	}

	if len(all) > r.maxSnippets {
		all = all[:r.maxSnippets]
	}
	r.log.Debug("research.done",
		logger.String("query", query),
		logger.Int("snippets", len(all)),
	)
	return all
}
