package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ticket-triage/analysis"
	"ticket-triage/api"
	"ticket-triage/bulk"
	"ticket-triage/llm"
	"ticket-triage/logger"
	"ticket-triage/research"
	"ticket-triage/store"
	"ticket-triage/zendesk"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	level := logger.ParseLevel(cfg.Logger.Level)
	var loggers []logger.Logger
	loggers = append(loggers, logger.NewConsole(level, cfg.Logger.Console.Color))

	if cfg.Logger.Structured.Enabled {
		structLog, err := logger.NewStructured(cfg.Logger.Structured.Path, level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init structured logger: %v\n", err)
			os.Exit(1)
		}
		loggers = append(loggers, structLog)
	}

	var log logger.Logger
	if len(loggers) == 1 {
		log = loggers[0]
	} else {
		log = logger.Multi(loggers...)
	}
	defer log.Close()

	log.Info("triage.starting", logger.String("config", *configPath))

	// Resolve credentials
	openaiKey := cfg.OpenAI.APIKey
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}
	if openaiKey == "" {
		log.Error("OPENAI_API_KEY is required (set in config or environment)")
		os.Exit(1)
	}

	zendeskEmail := cfg.Zendesk.Email
	if zendeskEmail == "" {
		zendeskEmail = os.Getenv("ZENDESK_EMAIL")
	}
	zendeskToken := cfg.Zendesk.APIToken
	if zendeskToken == "" {
		zendeskToken = os.Getenv("ZENDESK_API_TOKEN")
	}
	if cfg.Zendesk.BaseURL == "" || zendeskEmail == "" || zendeskToken == "" {
		log.Error("zendesk base_url, email and api_token are required (set in config or environment)")
		os.Exit(1)
	}

	// Initialize store
	var dataStore store.Store
	switch cfg.Store.Type {
	case "mysql":
		dataStore, err = store.NewMySQLStore(store.MySQLConfig{
			DSN:             cfg.Store.MySQL.DSN,
			MaxOpenConns:    cfg.Store.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MySQL.MaxIdleConns,
			ConnMaxLifetime: ParseDuration(cfg.Store.MySQL.ConnMaxLifetime, 5*time.Minute),
		}, log)
	default:
		dbPath := cfg.Store.SQLite.Path
		if dir := filepath.Dir(dbPath); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		dataStore, err = store.NewSQLiteStore(dbPath, log)
	}
	if err != nil {
		log.Error("store.init_failed", logger.Err(err))
		os.Exit(1)
	}
	defer dataStore.Close()

	// Initialize components
	auth := base64.StdEncoding.EncodeToString([]byte(zendeskEmail + "/token:" + zendeskToken))
	tickets := zendesk.New(zendesk.Config{
		BaseURL:    cfg.Zendesk.BaseURL,
		Auth:       auth,
		Timeout:    ParseDuration(cfg.Zendesk.Timeout, 30*time.Second),
		RetryCount: cfg.Zendesk.RetryCount,
	}, log)

	model := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL:    cfg.OpenAI.BaseURL,
		APIKey:     openaiKey,
		Model:      cfg.OpenAI.Model,
		EmbedModel: cfg.OpenAI.EmbedModel,
		Timeout:    ParseDuration(cfg.OpenAI.Timeout, 90*time.Second),
	}, log)

	fields := zendesk.NewFieldMapper(cfg.Zendesk.FieldCSV)

	// Research providers are optional; without any the engine skips the
	// research phase.
	var providers []research.Provider
	serperKey := cfg.Research.SerperAPIKey
	if serperKey == "" {
		serperKey = os.Getenv("SERPER_API_KEY")
	}
	if serperKey != "" {
		providers = append(providers, research.NewSerper("", serperKey, 0))
	}
	if cfg.Research.StackOverflow.Enabled {
		providers = append(providers, research.NewStackOverflow("", 0))
	}
	var researcher analysis.Researcher
	if len(providers) > 0 {
		researcher = research.NewRunner(providers,
			ParseDuration(cfg.Research.Timeout, 10*time.Second),
			cfg.Research.MaxSnippets, log)
	}

	engine := analysis.NewEngine(tickets, model, researcher, dataStore, fields, log, analysis.EngineConfig{
		TriageTimeout:      ParseDuration(cfg.Analysis.TriageTimeout, 60*time.Second),
		SynthesisTimeout:   ParseDuration(cfg.Analysis.SynthesisTimeout, 90*time.Second),
		TriageMaxTokens:    cfg.Analysis.TriageMaxTokens,
		SynthesisMaxTokens: cfg.Analysis.SynthesisMaxTokens,
		Temperature:        cfg.Analysis.Temperature,
		StructuredOutput:   cfg.Analysis.StructuredOutput,
	})

	var priority api.PriorityRunner
	if cfg.Priority.Enabled {
		priority = analysis.NewPriorityAnalyzer(tickets, model, dataStore, fields, log, analysis.PriorityConfig{
			Timeout:   ParseDuration(cfg.Priority.Timeout, 60*time.Second),
			MaxTokens: cfg.Priority.MaxTokens,
		})
	}

	var bulkJobs api.BulkJobs
	var bulkMgr *bulk.Manager
	if cfg.Bulk.Enabled {
		bulkMgr = bulk.NewManager(dataStore, func(ctx context.Context, ticketID string) error {
			_, err := engine.Analyze(ctx, ticketID)
			return err
		}, log, bulk.Config{
			TicketDelay: ParseDuration(cfg.Bulk.TicketDelay, 500*time.Millisecond),
			MaxActive:   cfg.Bulk.MaxActive,
		})
		bulkJobs = bulkMgr
	}

	// Resolve API auth token
	apiToken := cfg.API.AuthToken
	if apiToken == "" {
		apiToken = os.Getenv("API_AUTH_TOKEN")
	}

	apiServer := api.NewServer(dataStore, engine, priority, bulkJobs, log, apiToken)

	server := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Synchronous analysis holds the response open for two model
		// calls plus research, so the write timeout is generous.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server
	fatalCh := make(chan error, 1)
	go func() {
		log.Info("api.listening", logger.String("addr", cfg.API.Listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api.listen_failed", logger.Err(err))
			fatalCh <- err
		}
	}()

	log.Info("triage.ready",
		logger.String("model", cfg.OpenAI.Model),
		logger.Bool("priority", cfg.Priority.Enabled),
		logger.Bool("bulk", cfg.Bulk.Enabled),
		logger.String("listen", cfg.API.Listen),
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("triage.shutdown", logger.String("signal", sig.String()))
	case err := <-fatalCh:
		log.Error("triage.fatal", logger.Err(err))
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	server.Shutdown(ctx)
	if bulkMgr != nil {
		bulkMgr.Stop()
	}

	log.Info("triage.stopped")
}
