package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ticket-triage/logger"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func boolPtr(v bool) *bool { return &v }

func sampleRecord(ticketID string) *AnalysisRecord {
	return &AnalysisRecord{
		TicketID:             ticketID,
		IssueDescription:     "loads stall after schema change",
		RootCause:            "mapper does not handle dropped columns",
		IssueTheme:           "Pipeline Failure",
		RootCauseTheme:       "Schema Handling",
		TestCaseNeeded:       true,
		TestCaseNeededReason: "clear reproducible defect",
		RegressionTestNeeded: boolPtr(true),
		RegressionTestReason: "core load path",
		TestCaseTitle:        "Dropped column during incremental load",
		TestCaseDescription:  "verify loads continue when a source column is dropped",
		TestCaseSteps:        []string{"create pipeline", "drop source column", "run sync", "verify load"},
	}
}

func TestUpsertSummaryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("48213")
	if err := s.UpsertSummary(ctx, rec); err != nil {
		t.Fatalf("UpsertSummary() error = %v", err)
	}

	got, err := s.GetSummary(ctx, "48213")
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetSummary() = nil, want record")
	}
	if got.RootCause != rec.RootCause || got.TestCaseNeeded != rec.TestCaseNeeded {
		t.Errorf("got %+v", got)
	}
	if got.RegressionTestNeeded == nil || !*got.RegressionTestNeeded {
		t.Errorf("RegressionTestNeeded = %v, want true", got.RegressionTestNeeded)
	}
	if len(got.TestCaseSteps) != 4 || got.TestCaseSteps[1] != "drop source column" {
		t.Errorf("TestCaseSteps = %v", got.TestCaseSteps)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestUpsertSummaryKeepsSingleRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleRecord("100")
	if err := s.UpsertSummary(ctx, first); err != nil {
		t.Fatalf("first upsert error = %v", err)
	}
	created := first.CreatedAt

	second := sampleRecord("100")
	second.RootCause = "revised diagnosis"
	second.RegressionTestNeeded = nil
	if err := s.UpsertSummary(ctx, second); err != nil {
		t.Fatalf("second upsert error = %v", err)
	}

	all, err := s.RecentSummaries(ctx, 50)
	if err != nil {
		t.Fatalf("RecentSummaries() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("rows = %d, want 1", len(all))
	}
	got := all[0]
	if got.RootCause != "revised diagnosis" {
		t.Errorf("RootCause = %q, want updated value", got.RootCause)
	}
	if got.RegressionTestNeeded != nil {
		t.Errorf("RegressionTestNeeded = %v, want nil (unknown)", *got.RegressionTestNeeded)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v -> %v", created, got.CreatedAt)
	}
}

func TestGetSummaryMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetSummary(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetSummary() = %+v, want nil", got)
	}
}

func TestRecentSummariesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if err := s.UpsertSummary(ctx, sampleRecord(id)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, err := s.RecentSummaries(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSummaries() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].TicketID != "3" || got[1].TicketID != "2" {
		t.Errorf("order = [%s %s], want newest first", got[0].TicketID, got[1].TicketID)
	}
}

func TestSearchSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleRecord("7001")
	a.RootCause = "oauth token expired mid sync"
	b := sampleRecord("7002")
	b.RootCause = "disk full on worker"
	for _, rec := range []*AnalysisRecord{a, b} {
		if err := s.UpsertSummary(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.SearchSummaries(ctx, "oauth", 20)
	if err != nil {
		t.Fatalf("SearchSummaries() error = %v", err)
	}
	if len(got) != 1 || got[0].TicketID != "7001" {
		t.Errorf("search by root cause = %+v", got)
	}

	got, err = s.SearchSummaries(ctx, "7002", 20)
	if err != nil {
		t.Fatalf("SearchSummaries() error = %v", err)
	}
	if len(got) != 1 || got[0].TicketID != "7002" {
		t.Errorf("search by ticket id = %+v", got)
	}
}

func TestUpsertPriority(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &TicketPriority{
		TicketID:         "55",
		ClearDescription: "customer cannot load into BigQuery",
		AITheme:          "Destination Failure",
		ProductArea:      "Destinations",
		IsBlocker:        true,
		SignalDetails:    "blocker: production load stopped",
		PriorityScore:    "Critical",
	}
	if err := s.UpsertPriority(ctx, p); err != nil {
		t.Fatalf("UpsertPriority() error = %v", err)
	}

	p.PriorityScore = "High"
	if err := s.UpsertPriority(ctx, p); err != nil {
		t.Fatalf("second UpsertPriority() error = %v", err)
	}

	got, err := s.GetPriority(ctx, "55")
	if err != nil {
		t.Fatalf("GetPriority() error = %v", err)
	}
	if got == nil || got.PriorityScore != "High" || !got.IsBlocker {
		t.Errorf("GetPriority() = %+v", got)
	}
}

func TestBulkJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &BulkJob{
		ID:        "job-1",
		Status:    JobPending,
		Total:     2,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateBulkJob(ctx, job); err != nil {
		t.Fatalf("CreateBulkJob() error = %v", err)
	}

	started := time.Now().UTC()
	job.Status = JobRunning
	job.StartedAt = &started
	job.Processed = 1
	job.Succeeded = 1
	job.Results = []TicketResult{{TicketID: "1", Status: "success"}}
	if err := s.UpdateBulkJob(ctx, job); err != nil {
		t.Fatalf("UpdateBulkJob() error = %v", err)
	}

	got, err := s.GetBulkJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetBulkJob() error = %v", err)
	}
	if got.Status != JobRunning || got.Processed != 1 {
		t.Errorf("GetBulkJob() = %+v", got)
	}
	if got.StartedAt == nil || got.FinishedAt != nil {
		t.Errorf("StartedAt = %v, FinishedAt = %v", got.StartedAt, got.FinishedAt)
	}
	if len(got.Results) != 1 || got.Results[0].Status != "success" {
		t.Errorf("Results = %+v", got.Results)
	}

	jobs, err := s.ListBulkJobs(ctx, 10)
	if err != nil {
		t.Fatalf("ListBulkJobs() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Errorf("ListBulkJobs() = %+v", jobs)
	}
}

func TestGetBulkJobMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetBulkJob(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetBulkJob() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetBulkJob() = %+v, want nil", got)
	}
}
