package analysis

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"ticket-triage/llm"
	"ticket-triage/research"
	"ticket-triage/store"
	"ticket-triage/zendesk"
)

type fakeTickets struct {
	tickets  map[string]*zendesk.Ticket
	comments map[string][]zendesk.Comment
	err      error
}

func (f *fakeTickets) Ticket(_ context.Context, id string) (*zendesk.Ticket, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tickets[id], nil
}

func (f *fakeTickets) Comments(_ context.Context, id string) ([]zendesk.Comment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.comments[id], nil
}

type fakeLLM struct {
	responses []string
	errs      []error
	requests  []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

type fakeResearcher struct {
	calls    int
	snippets []research.Snippet
}

func (f *fakeResearcher) Search(_ context.Context, _ string) []research.Snippet {
	f.calls++
	return f.snippets
}

type fakeStore struct {
	store.Store
	summaries map[string]*store.AnalysisRecord
	upserts   int
	err       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{summaries: make(map[string]*store.AnalysisRecord)}
}

func (s *fakeStore) UpsertSummary(_ context.Context, rec *store.AnalysisRecord) error {
	if s.err != nil {
		return s.err
	}
	s.upserts++
	s.summaries[rec.TicketID] = rec
	return nil
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{
		tickets: map[string]*zendesk.Ticket{
			"100": {ID: 100, RequesterID: 7},
			"200": {ID: 200, RequesterID: 7},
		},
		comments: map[string][]zendesk.Comment{
			"100": {
				{AuthorID: 7, Body: "Our pipeline drops rows on large batches.", Public: true},
				{AuthorID: 9, Body: "Confirmed, buffer overflow in the serializer.", Public: false},
			},
			"200": {
				{AuthorID: 7, Body: "Sync is slow sometimes.", Public: true},
			},
		},
	}
}

const engineTriageYes = `Issue Description:
Pipeline drops rows on large batches.

Root Cause:
Serializer buffer overflow truncates oversized rows.

Issue Theme:
Row Loss

Root Cause Theme:
Buffer Overflow

Test Case Needed:
Yes
Specific cause, testable fix.`

const engineTriageNo = `Issue Description:
Sync is intermittently slow.

Root Cause:
Root cause not identified

Issue Theme:
Sync Latency

Root Cause Theme:
Root Cause Not Identified

Test Case Needed:
No
Root cause is not clear.`

const engineTestCase = `Regression Test Needed:
Yes
The fix must stay covered.

Test Case Title:
Verify oversized rows survive serialization

Test Case Description:
Validates rows beyond the buffer size are delivered intact.

Test Case Steps:
1. Insert a row larger than the batch buffer.
2. Run a sync and compare source and destination.`

func TestEngineAnalyzeFullRecord(t *testing.T) {
	client := &fakeLLM{responses: []string{engineTriageYes, engineTestCase}}
	researcher := &fakeResearcher{snippets: []research.Snippet{{Source: "stackoverflow", Title: "Buffer overflow", Excerpt: "resize the buffer"}}}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, researcher, st, nil, nil, EngineConfig{})
	rec, err := eng.Analyze(context.Background(), "100")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !rec.TestCaseNeeded {
		t.Error("expected test case needed")
	}
	if rec.TestCaseTitle != "Verify oversized rows survive serialization" {
		t.Errorf("title = %q", rec.TestCaseTitle)
	}
	if rec.RegressionTestNeeded == nil || !*rec.RegressionTestNeeded {
		t.Error("expected regression needed true")
	}
	if len(rec.TestCaseSteps) != 2 {
		t.Errorf("steps = %v", rec.TestCaseSteps)
	}
	if researcher.calls != 1 {
		t.Errorf("research calls = %d", researcher.calls)
	}
	if len(client.requests) != 2 {
		t.Fatalf("llm calls = %d", len(client.requests))
	}
	if !strings.Contains(client.requests[1].Prompt, "resize the buffer") {
		t.Error("synthesis prompt should carry research snippets")
	}
	if st.summaries["100"] == nil {
		t.Fatal("record not stored")
	}
}

func TestEngineAnalyzeRepeatProducesSameRecord(t *testing.T) {
	client := &fakeLLM{responses: []string{engineTriageYes, engineTestCase, engineTriageYes, engineTestCase}}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, nil, st, nil, nil, EngineConfig{})
	first, err := eng.Analyze(context.Background(), "100")
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	second, err := eng.Analyze(context.Background(), "100")
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("reanalyzing the same ticket should yield the same record:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if st.upserts != 2 {
		t.Errorf("upserts = %d, each run must write through", st.upserts)
	}
	if stored := st.summaries["100"]; !reflect.DeepEqual(stored, second) {
		t.Errorf("stored record should match the last run: %+v", stored)
	}
}

func TestEngineAnalyzeNoTestCaseSkipsLaterPhases(t *testing.T) {
	client := &fakeLLM{responses: []string{engineTriageNo}}
	researcher := &fakeResearcher{}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, researcher, st, nil, nil, EngineConfig{})
	rec, err := eng.Analyze(context.Background(), "200")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.TestCaseNeeded {
		t.Error("expected test case not needed")
	}
	if rec.TestCaseTitle != "" || rec.RegressionTestNeeded != nil {
		t.Errorf("test case fields should stay empty: %+v", rec)
	}
	if len(client.requests) != 1 {
		t.Errorf("llm calls = %d, synthesis must not run", len(client.requests))
	}
	if researcher.calls != 0 {
		t.Errorf("research calls = %d, research must not run", researcher.calls)
	}
	if st.summaries["200"] == nil {
		t.Fatal("record not stored")
	}
}

func TestEngineOverridesTestCaseWhenRootCauseUnknown(t *testing.T) {
	triage := strings.Replace(engineTriageYes,
		"Serializer buffer overflow truncates oversized rows.",
		"Root cause not identified", 1)
	client := &fakeLLM{responses: []string{triage}}
	researcher := &fakeResearcher{}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, researcher, st, nil, nil, EngineConfig{})
	rec, err := eng.Analyze(context.Background(), "100")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.TestCaseNeeded {
		t.Error("override should force test case needed to false")
	}
	if !strings.Contains(rec.TestCaseNeededReason, "deferring test case") {
		t.Errorf("reason should note the override, got %q", rec.TestCaseNeededReason)
	}
	if len(client.requests) != 1 || researcher.calls != 0 {
		t.Error("later phases must not run after the override")
	}
}

func TestEngineTriageTransportErrorIsFatal(t *testing.T) {
	client := &fakeLLM{errs: []error{llm.ErrUnavailable}}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, nil, st, nil, nil, EngineConfig{})
	if _, err := eng.Analyze(context.Background(), "100"); !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if st.upserts != 0 {
		t.Error("nothing should be stored on triage failure")
	}
}

func TestEngineTriageUnparseableFailsClosed(t *testing.T) {
	client := &fakeLLM{responses: []string{"complete gibberish with no sections"}}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, nil, st, nil, nil, EngineConfig{})
	rec, err := eng.Analyze(context.Background(), "100")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.TestCaseNeeded {
		t.Error("unparseable triage must fail closed")
	}
	if rec.IssueDescription != "" || rec.RootCause != "" {
		t.Errorf("triage fields should be empty: %+v", rec)
	}
	if st.summaries["100"] == nil {
		t.Fatal("fail-closed record should still be stored")
	}
}

func TestEngineSynthesisFailureDegrades(t *testing.T) {
	client := &fakeLLM{
		responses: []string{engineTriageYes, ""},
		errs:      []error{nil, llm.ErrUnavailable},
	}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, nil, st, nil, nil, EngineConfig{})
	rec, err := eng.Analyze(context.Background(), "100")
	if err != nil {
		t.Fatalf("Analyze should not fail on synthesis error: %v", err)
	}
	if rec.TestCaseTitle != "unavailable" || rec.TestCaseDescription != "unavailable" {
		t.Errorf("test case fields should be marked unavailable: %+v", rec)
	}
	if rec.RegressionTestNeeded != nil {
		t.Error("regression should stay unknown")
	}
	if rec.RootCause == "" {
		t.Error("triage result must survive synthesis failure")
	}
	if st.summaries["100"] == nil {
		t.Fatal("record not stored")
	}
}

func TestEngineSynthesisUnparseableDegrades(t *testing.T) {
	client := &fakeLLM{responses: []string{engineTriageYes, "no sections here"}}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, nil, st, nil, nil, EngineConfig{})
	rec, err := eng.Analyze(context.Background(), "100")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.TestCaseTitle != "unavailable" {
		t.Errorf("title = %q", rec.TestCaseTitle)
	}
}

func TestEngineNoPublicComments(t *testing.T) {
	tickets := newFakeTickets()
	tickets.comments["100"] = nil
	eng := NewEngine(tickets, &fakeLLM{}, nil, newFakeStore(), nil, nil, EngineConfig{})
	if _, err := eng.Analyze(context.Background(), "100"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("expected ErrNoConversation, got %v", err)
	}
}

func TestEngineFetchErrorIsFatal(t *testing.T) {
	tickets := newFakeTickets()
	tickets.err = zendesk.ErrNotFound
	st := newFakeStore()
	eng := NewEngine(tickets, &fakeLLM{}, nil, st, nil, nil, EngineConfig{})
	if _, err := eng.Analyze(context.Background(), "100"); !errors.Is(err, zendesk.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if st.upserts != 0 {
		t.Error("nothing should be stored on fetch failure")
	}
}

func TestEngineStructuredOutputWithFallback(t *testing.T) {
	client := &fakeLLM{responses: []string{engineTriageNo}}
	st := newFakeStore()

	eng := NewEngine(newFakeTickets(), client, nil, st, nil, nil, EngineConfig{StructuredOutput: true})
	rec, err := eng.Analyze(context.Background(), "200")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !client.requests[0].JSONMode {
		t.Error("structured mode should request JSON")
	}
	if rec.RootCause != "Root cause not identified" {
		t.Errorf("section fallback should still parse, got %q", rec.RootCause)
	}
}
