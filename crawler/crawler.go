// Package crawler walks a documentation site breadth-first, extracts page
// text, chunks it, embeds the chunks and upserts them into a hosted vector
// index.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ticket-triage/llm"
	"ticket-triage/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Indexer receives embedded chunks. *VectorIndex satisfies it.
type Indexer interface {
	Upsert(ctx context.Context, vectors []Vector) error
}

// Config holds crawl settings.
type Config struct {
	StartURL string
	// MaxPages caps the crawl so a link cycle cannot run forever.
	MaxPages     int
	LinksPerPage int
	Delay        time.Duration
	ChunkSize    int
	FetchTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 500
	}
	if c.LinksPerPage <= 0 {
		c.LinksPerPage = 10
	}
	if c.Delay <= 0 {
		c.Delay = time.Second
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 500
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
}

// Crawler drives the BFS crawl.
type Crawler struct {
	cfg      Config
	client   *http.Client
	embedder llm.Embedder
	index    Indexer
	status   *StatusFile
	log      logger.Logger
	hosts    map[string]bool
}

// New creates a crawler rooted at cfg.StartURL. Only pages on the start
// URL's host (and its www variant) are followed.
func New(cfg Config, embedder llm.Embedder, index Indexer, status *StatusFile, log logger.Logger) (*Crawler, error) {
	cfg.applyDefaults()
	if log == nil {
		log = logger.Nop()
	}

	start, err := url.Parse(cfg.StartURL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("invalid start url %q", cfg.StartURL)
	}
	hosts := map[string]bool{start.Host: true, "www." + start.Host: true}

	return &Crawler{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.FetchTimeout},
		embedder: embedder,
		index:    index,
		status:   status,
		log:      log,
		hosts:    hosts,
	}, nil
}

// Run crawls until the page cap is reached, the queue drains, or ctx is
// cancelled. Per-page failures are logged and skipped.
func (c *Crawler) Run(ctx context.Context) (*Status, error) {
	st := &Status{
		Status:    "running",
		MaxPages:  c.cfg.MaxPages,
		StartedAt: time.Now().UTC(),
	}
	c.writeStatus(st)

	queue := []string{c.cfg.StartURL}
	visited := map[string]bool{c.cfg.StartURL: true}

	for len(queue) > 0 && st.PagesScraped < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			st.Status = "cancelled"
			c.writeStatus(st)
			return st, err
		}

		current := queue[0]
		queue = queue[1:]

		st.CurrentURL = current
		st.QueueLength = len(queue)
		c.writeStatus(st)

		body, err := c.fetch(ctx, current)
		if err != nil {
			c.log.Warn("crawl.fetch_failed", logger.String("url", current), logger.Err(err))
			continue
		}

		page, err := Extract(body, current)
		if err != nil {
			c.log.Warn("crawl.extract_failed", logger.String("url", current), logger.Err(err))
			continue
		}
		st.PagesScraped++

		stored, err := c.embedAndStore(ctx, page)
		if err != nil {
			c.log.Warn("crawl.store_failed", logger.String("url", current), logger.Err(err))
		}
		st.VectorsStored += stored

		c.log.Info("crawl.page_done",
			logger.String("url", current),
			logger.Int("pages", st.PagesScraped),
			logger.Int("vectors", stored),
		)

		if st.PagesScraped < c.cfg.MaxPages {
			links := Links(body, current, func(u string) bool {
				return ValidDocURL(u, c.hosts) && !visited[u]
			})
			if len(links) > c.cfg.LinksPerPage {
				links = links[:c.cfg.LinksPerPage]
			}
			for _, link := range links {
				visited[link] = true
				queue = append(queue, link)
			}
		}

		select {
		case <-ctx.Done():
		case <-time.After(c.cfg.Delay):
		}
	}

	st.Status = "completed"
	st.CurrentURL = ""
	st.QueueLength = len(queue)
	c.writeStatus(st)
	c.log.Info("crawl.done",
		logger.Int("pages", st.PagesScraped),
		logger.Int("vectors", st.VectorsStored),
	)
	return st, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// embedAndStore chunks a page, embeds the chunks and upserts them. Returns
// the number of vectors stored.
func (c *Crawler) embedAndStore(ctx context.Context, page *Page) (int, error) {
	chunks := chunkText(page.Text, c.cfg.ChunkSize)
	if len(chunks) == 0 {
		return 0, nil
	}

	embeddings, err := c.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}

	vectors := make([]Vector, 0, len(chunks))
	for i, chunk := range chunks {
		vectors = append(vectors, buildVector(page, i, chunk, embeddings[i]))
	}
	if err := c.index.Upsert(ctx, vectors); err != nil {
		return 0, err
	}
	return len(vectors), nil
}

func (c *Crawler) writeStatus(st *Status) {
	if err := c.status.Write(st); err != nil {
		c.log.Warn("crawl.status_write_failed", logger.Err(err))
	}
}
