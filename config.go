package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the ticket triage service.
type Config struct {
	Zendesk  ZendeskConfig  `yaml:"zendesk"`
	OpenAI   OpenAICfg      `yaml:"openai"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Priority PriorityCfg    `yaml:"priority"`
	Research ResearchConfig `yaml:"research"`
	Bulk     BulkConfig     `yaml:"bulk"`
	Store    StoreConfig    `yaml:"store"`
	Logger   LoggerConfig   `yaml:"logger"`
	API      APIConfig      `yaml:"api"`
}

type ZendeskConfig struct {
	BaseURL    string `yaml:"base_url"`
	Email      string `yaml:"email"`
	APIToken   string `yaml:"api_token"`
	Timeout    string `yaml:"timeout"`
	RetryCount int    `yaml:"retry_count"`
	FieldCSV   string `yaml:"field_csv"`
}

type OpenAICfg struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	Timeout    string `yaml:"timeout"`
}

// AnalysisConfig tunes the triage and test-case synthesis pipeline.
type AnalysisConfig struct {
	StructuredOutput   bool    `yaml:"structured_output"`
	TriageTimeout      string  `yaml:"triage_timeout"`
	SynthesisTimeout   string  `yaml:"synthesis_timeout"`
	TriageMaxTokens    int     `yaml:"triage_max_tokens"`
	SynthesisMaxTokens int     `yaml:"synthesis_max_tokens"`
	Temperature        float64 `yaml:"temperature"`
}

type PriorityCfg struct {
	Enabled   bool   `yaml:"enabled"`
	Timeout   string `yaml:"timeout"`
	MaxTokens int    `yaml:"max_tokens"`
}

type ResearchConfig struct {
	SerperAPIKey  string           `yaml:"serper_api_key"`
	StackOverflow StackOverflowCfg `yaml:"stackoverflow"`
	Timeout       string           `yaml:"timeout"`
	MaxSnippets   int              `yaml:"max_snippets"`
}

type StackOverflowCfg struct {
	Enabled bool `yaml:"enabled"`
}

type BulkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TicketDelay string `yaml:"ticket_delay"`
	MaxActive   int    `yaml:"max_active"`
}

type StoreConfig struct {
	Type   string    `yaml:"type"`
	SQLite SQLiteCfg `yaml:"sqlite"`
	MySQL  MySQLCfg  `yaml:"mysql"`
}

type SQLiteCfg struct {
	Path string `yaml:"path"`
}

type MySQLCfg struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type LoggerConfig struct {
	Level      string        `yaml:"level"`
	Console    ConsoleLogCfg `yaml:"console"`
	Structured StructLogCfg  `yaml:"structured"`
}

type ConsoleLogCfg struct {
	Enabled bool `yaml:"enabled"`
	Color   bool `yaml:"color"`
}

type StructLogCfg struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type APIConfig struct {
	Listen    string `yaml:"listen"`
	AuthToken string `yaml:"auth_token"`
}

// LoadConfig reads and parses the config file, expanding environment variables.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand ${ENV_VAR} references
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Zendesk.Timeout == "" {
		c.Zendesk.Timeout = "30s"
	}
	if c.Zendesk.RetryCount == 0 {
		c.Zendesk.RetryCount = 3
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}
	if c.OpenAI.Timeout == "" {
		c.OpenAI.Timeout = "90s"
	}
	if c.Analysis.TriageTimeout == "" {
		c.Analysis.TriageTimeout = "60s"
	}
	if c.Analysis.SynthesisTimeout == "" {
		c.Analysis.SynthesisTimeout = "90s"
	}
	if c.Priority.Timeout == "" {
		c.Priority.Timeout = "60s"
	}
	if c.Research.Timeout == "" {
		c.Research.Timeout = "10s"
	}
	if c.Bulk.TicketDelay == "" {
		c.Bulk.TicketDelay = "500ms"
	}
	if c.Bulk.MaxActive == 0 {
		c.Bulk.MaxActive = 3
	}
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "./data/triage.db"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Structured.Enabled && c.Logger.Structured.Path == "" {
		c.Logger.Structured.Path = "./logs/triage.ndjson"
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
}

// ParseDuration parses a duration string, returning a fallback on error.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
