package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-triage/llm"
	"ticket-triage/logger"
	"ticket-triage/store"
	"ticket-triage/zendesk"
)

// PriorityConfig tunes the planning analyzer.
type PriorityConfig struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

func (c *PriorityConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1000
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.2
	}
}

// PriorityAnalyzer extracts planning signals (blockers, churn risk,
// escalations, revenue impact) from a ticket and stores them.
type PriorityAnalyzer struct {
	tickets TicketSource
	llm     llm.Client
	store   store.Store
	fields  *zendesk.FieldMapper
	log     logger.Logger
	cfg     PriorityConfig
}

// NewPriorityAnalyzer builds a PriorityAnalyzer. fields may be nil.
func NewPriorityAnalyzer(tickets TicketSource, client llm.Client, st store.Store, fields *zendesk.FieldMapper, log logger.Logger, cfg PriorityConfig) *PriorityAnalyzer {
	cfg.applyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &PriorityAnalyzer{tickets: tickets, llm: client, store: st, fields: fields, log: log, cfg: cfg}
}

// Analyze runs the planning analysis for one ticket and stores the result.
func (a *PriorityAnalyzer) Analyze(ctx context.Context, ticketID string) (*store.TicketPriority, error) {
	log := a.log.WithFields(logger.String("ticket_id", ticketID))

	ticket, err := a.tickets.Ticket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetch ticket: %w", err)
	}
	comments, err := a.tickets.Comments(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}
	conversation := zendesk.StructuredConversation(ticket, comments)
	if conversation == "" {
		return nil, ErrNoConversation
	}

	var metadata string
	if a.fields != nil {
		metadata = zendesk.FormatFieldsForPrompt(a.fields.Map(ticket.CustomFields))
	}

	pctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	raw, err := a.llm.Complete(pctx, llm.Request{
		Prompt:      BuildPriorityPrompt(conversation, metadata),
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("priority completion: %w", err)
	}

	pr, err := ParsePriority(raw)
	if err != nil {
		if errors.Is(err, ErrUnparseable) {
			log.Warn("priority.unparseable", logger.String("head", truncateRunes(raw, 200)))
		}
		return nil, fmt.Errorf("parse priority response: %w", err)
	}

	rec := &store.TicketPriority{
		TicketID:         ticketID,
		ClearDescription: pr.ClearDescription,
		AITheme:          pr.AITheme,
		ProductArea:      pr.ProductArea,
		IsBlocker:        pr.IsBlocker,
		IsChurnRisk:      pr.IsChurnRisk,
		IsEscalation:     pr.IsEscalation,
		IsRevenueImpact:  pr.IsRevenueImpact,
		SignalDetails:    pr.SignalDetails,
		PriorityScore:    pr.PriorityScore,
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.store.UpsertPriority(storeCtx, rec); err != nil {
		return nil, fmt.Errorf("store priority: %w", err)
	}

	log.Info("priority.complete",
		logger.String("product_area", rec.ProductArea),
		logger.String("score", rec.PriorityScore),
		logger.Bool("blocker", rec.IsBlocker),
	)
	return rec, nil
}
