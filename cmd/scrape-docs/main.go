// Command scrape-docs crawls a documentation site, embeds its content and
// loads the vectors into a hosted index for retrieval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticket-triage/crawler"
	"ticket-triage/llm"
	"ticket-triage/logger"
)

func main() {
	var (
		startURL   = flag.String("start-url", "", "documentation root URL to crawl")
		maxPages   = flag.Int("max-pages", 500, "maximum number of pages to crawl")
		delay      = flag.Duration("delay", time.Second, "pause between page fetches")
		chunkSize  = flag.Int("chunk-size", 500, "approximate tokens per chunk")
		statusPath = flag.String("status-file", "scraper_status.json", "progress file path ('' disables)")
		indexURL   = flag.String("index-url", os.Getenv("VECTOR_INDEX_URL"), "vector index endpoint")
		logLevel   = flag.String("log-level", "info", "log level (debug|info|warn|error)")
	)
	flag.Parse()

	log := logger.NewConsole(logger.ParseLevel(*logLevel), true)

	if *startURL == "" {
		fail(log, "missing -start-url")
	}
	openaiKey := os.Getenv("OPENAI_API_KEY")
	if openaiKey == "" {
		fail(log, "OPENAI_API_KEY is not set")
	}
	indexKey := os.Getenv("VECTOR_INDEX_API_KEY")
	if *indexURL == "" || indexKey == "" {
		fail(log, "vector index endpoint and VECTOR_INDEX_API_KEY are required")
	}

	embedder := llm.NewOpenAI(llm.OpenAIConfig{APIKey: openaiKey}, log)
	index := crawler.NewVectorIndex(crawler.VectorIndexConfig{
		BaseURL: *indexURL,
		APIKey:  indexKey,
	})

	c, err := crawler.New(crawler.Config{
		StartURL:  *startURL,
		MaxPages:  *maxPages,
		Delay:     *delay,
		ChunkSize: *chunkSize,
	}, embedder, index, crawler.NewStatusFile(*statusPath), log)
	if err != nil {
		fail(log, err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := c.Run(ctx)
	if err != nil {
		log.Warn("crawl interrupted", logger.Err(err))
	}
	fmt.Printf("crawl %s: %d pages, %d vectors\n", st.Status, st.PagesScraped, st.VectorsStored)
}

func fail(log logger.Logger, msg string) {
	log.Error(msg)
	os.Exit(1)
}
