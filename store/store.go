package store

import (
	"context"
	"time"
)

// AnalysisRecord is the durable result of a ticket analysis run, one
// row per ticket_id.
type AnalysisRecord struct {
	ID                   int64     `json:"id"`
	TicketID             string    `json:"ticket_id"`
	IssueDescription     string    `json:"issue_description"`
	RootCause            string    `json:"root_cause"`
	IssueTheme           string    `json:"issue_theme"`
	RootCauseTheme       string    `json:"root_cause_theme"`
	TestCaseNeeded       bool      `json:"test_case_needed"`
	TestCaseNeededReason string    `json:"test_case_needed_reason"`
	RegressionTestNeeded *bool     `json:"regression_test_needed"` // nil = unknown
	RegressionTestReason string    `json:"regression_test_needed_reason"`
	TestCaseTitle        string    `json:"test_case_title"`
	TestCaseDescription  string    `json:"test_case_description"`
	TestCaseSteps        []string  `json:"test_case_steps"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TicketPriority holds the priority-analysis signals for a ticket, one
// row per ticket_id.
type TicketPriority struct {
	ID               int64     `json:"id"`
	TicketID         string    `json:"ticket_id"`
	ClearDescription string    `json:"clear_description"`
	AITheme          string    `json:"ai_theme"`
	ProductArea      string    `json:"product_area"`
	IsBlocker        bool      `json:"is_blocker"`
	IsChurnRisk      bool      `json:"is_churn_risk"`
	IsEscalation     bool      `json:"is_escalation"`
	IsRevenueImpact  bool      `json:"is_revenue_impact"`
	SignalDetails    string    `json:"signal_details"`
	PriorityScore    string    `json:"priority_score"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BulkJobStatus represents the lifecycle state of a bulk analysis job.
type BulkJobStatus string

const (
	JobPending   BulkJobStatus = "pending"
	JobRunning   BulkJobStatus = "running"
	JobCompleted BulkJobStatus = "completed"
	JobCancelled BulkJobStatus = "cancelled"
	JobFailed    BulkJobStatus = "failed"
)

// TicketResult records the per-ticket outcome inside a bulk job.
type TicketResult struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// BulkJob tracks the progress of a multi-ticket analysis run.
type BulkJob struct {
	ID         string         `json:"id"`
	Status     BulkJobStatus  `json:"status"`
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Results    []TicketResult `json:"results"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
}

// Store defines the persistence interface for ticket-triage.
type Store interface {
	// UpsertSummary inserts or replaces the analysis record for the
	// record's ticket_id. Concurrent runs for the same ticket are
	// last-write-wins; created_at survives updates.
	UpsertSummary(ctx context.Context, rec *AnalysisRecord) error
	GetSummary(ctx context.Context, ticketID string) (*AnalysisRecord, error)
	RecentSummaries(ctx context.Context, limit int) ([]*AnalysisRecord, error)
	SearchSummaries(ctx context.Context, query string, limit int) ([]*AnalysisRecord, error)

	UpsertPriority(ctx context.Context, p *TicketPriority) error
	GetPriority(ctx context.Context, ticketID string) (*TicketPriority, error)

	CreateBulkJob(ctx context.Context, job *BulkJob) error
	UpdateBulkJob(ctx context.Context, job *BulkJob) error
	GetBulkJob(ctx context.Context, id string) (*BulkJob, error)
	ListBulkJobs(ctx context.Context, limit int) ([]*BulkJob, error)

	Close() error
}
