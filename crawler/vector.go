package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const upsertBatchSize = 100

// Vector is one embedded chunk ready for the index.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata"`
}

// VectorIndexConfig configures the hosted vector index client.
type VectorIndexConfig struct {
	// BaseURL is the index endpoint, e.g. https://myindex-abc123.svc.pinecone.io
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// VectorIndex upserts embedded chunks into a Pinecone-style REST index.
type VectorIndex struct {
	cfg    VectorIndexConfig
	client *http.Client
}

// NewVectorIndex creates the index client.
func NewVectorIndex(cfg VectorIndexConfig) *VectorIndex {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &VectorIndex{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Upsert writes vectors to the index in batches.
func (v *VectorIndex) Upsert(ctx context.Context, vectors []Vector) error {
	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		if err := v.upsertBatch(ctx, vectors[start:end]); err != nil {
			return fmt.Errorf("upsert batch %d: %w", start/upsertBatchSize+1, err)
		}
	}
	return nil
}

func (v *VectorIndex) upsertBatch(ctx context.Context, batch []Vector) error {
	payload, err := json.Marshal(map[string]any{"vectors": batch})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(v.cfg.BaseURL, "/")+"/vectors/upsert", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", v.cfg.APIKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("index returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// vectorID derives a stable index ID from the page URL and chunk position.
var idSanitizer = strings.NewReplacer(
	"https://", "", "http://", "",
	"/", "_", ":", "_", "?", "_", "&", "_", "=", "_",
)

func vectorID(pageURL string, chunkIndex int) string {
	id := fmt.Sprintf("%s_%d", idSanitizer.Replace(pageURL), chunkIndex)
	if len(id) > 100 {
		id = id[:100]
	}
	return id
}

// buildVector assembles one index entry with its bounded metadata.
func buildVector(p *Page, chunkIndex int, chunk string, embedding []float32) Vector {
	return Vector{
		ID:     vectorID(p.URL, chunkIndex),
		Values: embedding,
		Metadata: map[string]any{
			"url":          p.URL,
			"title":        clip(p.Title, 500),
			"section":      clip(p.Section, 200),
			"last_updated": clip(p.LastUpdated, 50),
			"chunk_index":  chunkIndex,
			"text":         clip(chunk, 1000),
		},
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
