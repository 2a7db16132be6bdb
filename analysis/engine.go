package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-triage/llm"
	"ticket-triage/logger"
	"ticket-triage/research"
	"ticket-triage/store"
	"ticket-triage/zendesk"
)

// unavailableSentinel fills test-case fields when synthesis fails after a
// successful triage, so the run still completes with the triage stored.
const unavailableSentinel = "unavailable"

// ErrNoConversation is returned when a ticket has no public comments to
// analyze.
var ErrNoConversation = errors.New("analysis: ticket has no public comments")

// TicketSource fetches ticket data. *zendesk.Client satisfies it.
type TicketSource interface {
	Ticket(ctx context.Context, ticketID string) (*zendesk.Ticket, error)
	Comments(ctx context.Context, ticketID string) ([]zendesk.Comment, error)
}

// Researcher gathers external context for a root cause. *research.Runner
// satisfies it.
type Researcher interface {
	Search(ctx context.Context, rootCause string) []research.Snippet
}

// EngineConfig tunes the analysis pipeline.
type EngineConfig struct {
	TriageTimeout      time.Duration
	SynthesisTimeout   time.Duration
	TriageMaxTokens    int
	SynthesisMaxTokens int
	Temperature        float64
	// StructuredOutput requests JSON responses and falls back to the
	// section parser when the JSON cannot be repaired.
	StructuredOutput bool
}

func (c *EngineConfig) applyDefaults() {
	if c.TriageTimeout <= 0 {
		c.TriageTimeout = 60 * time.Second
	}
	if c.SynthesisTimeout <= 0 {
		c.SynthesisTimeout = 90 * time.Second
	}
	if c.TriageMaxTokens <= 0 {
		c.TriageMaxTokens = 800
	}
	if c.SynthesisMaxTokens <= 0 {
		c.SynthesisMaxTokens = 2500
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.2
	}
}

// Engine runs the full ticket analysis pipeline.
type Engine struct {
	tickets    TicketSource
	llm        llm.Client
	researcher Researcher
	store      store.Store
	fields     *zendesk.FieldMapper
	log        logger.Logger
	cfg        EngineConfig
}

// NewEngine builds an Engine. researcher and fields may be nil; research and
// field context are then skipped.
func NewEngine(tickets TicketSource, client llm.Client, researcher Researcher, st store.Store, fields *zendesk.FieldMapper, log logger.Logger, cfg EngineConfig) *Engine {
	cfg.applyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		tickets:    tickets,
		llm:        client,
		researcher: researcher,
		store:      st,
		fields:     fields,
		log:        log,
		cfg:        cfg,
	}
}

// Analyze runs the pipeline for one ticket and stores the resulting record.
// Fetch and triage failures abort the run with nothing persisted. Synthesis
// failures degrade: the triage is stored with test-case fields marked
// unavailable.
func (e *Engine) Analyze(ctx context.Context, ticketID string) (*store.AnalysisRecord, error) {
	log := e.log.WithFields(logger.String("ticket_id", ticketID))
	started := time.Now()

	ticket, err := e.tickets.Ticket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetch ticket: %w", err)
	}
	comments, err := e.tickets.Comments(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}
	conversation := zendesk.StructuredConversation(ticket, comments)
	if conversation == "" {
		return nil, ErrNoConversation
	}

	var metadata string
	if e.fields != nil {
		metadata = zendesk.FormatFieldsForPrompt(e.fields.Map(ticket.CustomFields))
	}

	tr, err := e.triage(ctx, conversation, metadata, log)
	if err != nil {
		return nil, err
	}

	if tr.TestCaseNeeded && RootCauseUnidentified(tr.RootCause) {
		log.Info("analysis.override", logger.String("root_cause", tr.RootCause))
		tr.TestCaseNeeded = false
		if tr.TestCaseNeededReason == "" {
			tr.TestCaseNeededReason = triageOverrideNote
		} else {
			tr.TestCaseNeededReason += "\n" + triageOverrideNote
		}
	}

	rec := &store.AnalysisRecord{
		TicketID:             ticketID,
		IssueDescription:     tr.IssueDescription,
		RootCause:            tr.RootCause,
		IssueTheme:           tr.IssueTheme,
		RootCauseTheme:       tr.RootCauseTheme,
		TestCaseNeeded:       tr.TestCaseNeeded,
		TestCaseNeededReason: tr.TestCaseNeededReason,
	}

	if tr.TestCaseNeeded {
		var snippets []research.Snippet
		if e.researcher != nil {
			snippets = e.researcher.Search(ctx, tr.RootCause)
		}
		tc := e.synthesize(ctx, tr, snippets, log)
		rec.RegressionTestNeeded = tc.RegressionTestNeeded
		rec.RegressionTestReason = tc.RegressionReason
		rec.TestCaseTitle = tc.Title
		rec.TestCaseDescription = tc.Description
		rec.TestCaseSteps = tc.Steps
	}

	// Writes survive a caller that gives up mid-run.
	storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.UpsertSummary(storeCtx, rec); err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}

	log.Info("analysis.complete",
		logger.Bool("test_case_needed", rec.TestCaseNeeded),
		logger.String("root_cause_theme", rec.RootCauseTheme),
		logger.Duration("duration", time.Since(started)),
	)
	return rec, nil
}

// triage runs phase one. A transport error is fatal; an unparseable response
// fails closed into an empty triage with test case generation suppressed.
func (e *Engine) triage(ctx context.Context, conversation, metadata string, log logger.Logger) (*TriageResult, error) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.TriageTimeout)
	defer cancel()

	raw, err := e.llm.Complete(tctx, llm.Request{
		Prompt:      BuildTriagePrompt(conversation, metadata, e.cfg.StructuredOutput),
		MaxTokens:   e.cfg.TriageMaxTokens,
		Temperature: e.cfg.Temperature,
		JSONMode:    e.cfg.StructuredOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("triage completion: %w", err)
	}

	if e.cfg.StructuredOutput {
		if tr, err := ParseTriageJSON(raw); err == nil {
			return tr, nil
		}
		log.Debug("analysis.triage_json_fallback")
	}
	tr, err := ParseTriage(raw)
	if err != nil {
		log.Warn("analysis.triage_unparseable", logger.String("head", truncateRunes(raw, 200)))
		return &TriageResult{TestCaseNeededReason: "Analysis response could not be parsed."}, nil
	}
	return tr, nil
}

// synthesize runs phase three. It never fails the run: transport or parse
// errors return a result with every field marked unavailable.
func (e *Engine) synthesize(ctx context.Context, tr *TriageResult, snippets []research.Snippet, log logger.Logger) *TestCaseResult {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.SynthesisTimeout)
	defer cancel()

	raw, err := e.llm.Complete(sctx, llm.Request{
		Prompt:      BuildTestCasePrompt(tr, snippets, e.cfg.StructuredOutput),
		MaxTokens:   e.cfg.SynthesisMaxTokens,
		Temperature: e.cfg.Temperature,
		JSONMode:    e.cfg.StructuredOutput,
	})
	if err != nil {
		log.Warn("analysis.synthesis_failed", logger.Err(err))
		return unavailableTestCase()
	}

	if e.cfg.StructuredOutput {
		if tc, err := ParseTestCaseJSON(raw); err == nil {
			return tc
		}
		log.Debug("analysis.synthesis_json_fallback")
	}
	tc, err := ParseTestCase(raw)
	if err != nil {
		log.Warn("analysis.synthesis_unparseable", logger.String("head", truncateRunes(raw, 200)))
		return unavailableTestCase()
	}
	return tc
}

func unavailableTestCase() *TestCaseResult {
	return &TestCaseResult{
		RegressionReason: unavailableSentinel,
		Title:            unavailableSentinel,
		Description:      unavailableSentinel,
	}
}
