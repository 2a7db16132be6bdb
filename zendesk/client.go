package zendesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ticket-triage/logger"
)

// Sentinel errors for non-retryable fetch failures.
var (
	ErrAuth     = errors.New("zendesk: authentication failed")
	ErrNotFound = errors.New("zendesk: ticket not found")
)

// Comment is a single entry in a ticket's comment thread.
type Comment struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomField is one entry of a ticket's custom_fields array.
type CustomField struct {
	ID    int64 `json:"id"`
	Value any   `json:"value"`
}

// Ticket holds the subset of ticket metadata the analyzers consume.
type Ticket struct {
	ID           int64         `json:"id"`
	Subject      string        `json:"subject"`
	Status       string        `json:"status"`
	Priority     string        `json:"priority"`
	RequesterID  int64         `json:"requester_id"`
	CreatedAt    time.Time     `json:"created_at"`
	CustomFields []CustomField `json:"custom_fields"`
}

// Config holds Zendesk API client configuration.
type Config struct {
	BaseURL    string
	Auth       string // base64 "email/token:apitoken" pair for Basic auth
	Timeout    time.Duration
	RetryCount int
}

// Client fetches tickets and comments from the Zendesk REST API.
type Client struct {
	baseURL    string
	auth       string
	httpClient *http.Client
	log        logger.Logger
	retryCount int
}

// New creates a Zendesk API client.
func New(cfg Config, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retryCount := cfg.RetryCount
	if retryCount == 0 {
		retryCount = 3
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		auth:       cfg.Auth,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		retryCount: retryCount,
	}
}

// Comments fetches the full comment thread for a ticket, internal notes included.
func (c *Client) Comments(ctx context.Context, ticketID string) ([]Comment, error) {
	var out struct {
		Comments []Comment `json:"comments"`
	}
	url := fmt.Sprintf("%s/api/v2/tickets/%s/comments.json", c.baseURL, ticketID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("fetch comments for ticket %s: %w", ticketID, err)
	}
	return out.Comments, nil
}

// Ticket fetches ticket metadata including custom fields.
func (c *Client) Ticket(ctx context.Context, ticketID string) (*Ticket, error) {
	var out struct {
		Ticket Ticket `json:"ticket"`
	}
	url := fmt.Sprintf("%s/api/v2/tickets/%s.json", c.baseURL, ticketID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("fetch ticket %s: %w", ticketID, err)
	}
	return &out.Ticket, nil
}

// getJSON performs an authenticated GET with bounded retry. Auth and
// not-found responses fail immediately; server errors and transport
// failures retry with exponential backoff (1s, 2s, 4s).
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for i := 0; i < c.retryCount; i++ {
		if i > 0 {
			delay := time.NewTimer(time.Duration(1<<(i-1)) * time.Second)
			select {
			case <-ctx.Done():
				delay.Stop()
				return ctx.Err()
			case <-delay.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Basic "+c.auth)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("zendesk.retry", logger.Int("attempt", i+1), logger.Err(err))
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20)) // 4MB max
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("status %d: %w", resp.StatusCode, ErrAuth)
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		}

		lastErr = fmt.Errorf("zendesk returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
		c.log.Warn("zendesk.retry", logger.Int("attempt", i+1), logger.Err(lastErr))
	}

	return fmt.Errorf("failed after %d attempts: %w", c.retryCount, lastErr)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
