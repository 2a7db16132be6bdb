package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ticket-triage/logger"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite via modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewSQLiteStore opens a SQLite database and initializes the schema.
func NewSQLiteStore(dbPath string, log logger.Logger) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info("store.sqlite.opened", logger.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS ticket_summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id TEXT NOT NULL UNIQUE,
    issue_description TEXT NOT NULL DEFAULT '',
    root_cause TEXT NOT NULL DEFAULT '',
    issue_theme TEXT NOT NULL DEFAULT '',
    root_cause_theme TEXT NOT NULL DEFAULT '',
    test_case_needed BOOLEAN NOT NULL DEFAULT 0,
    test_case_needed_reason TEXT NOT NULL DEFAULT '',
    regression_test_needed BOOLEAN,
    regression_test_needed_reason TEXT NOT NULL DEFAULT '',
    test_case_title TEXT NOT NULL DEFAULT '',
    test_case_description TEXT NOT NULL DEFAULT '',
    test_case_steps TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_summaries_ticket_id ON ticket_summaries(ticket_id);
CREATE INDEX IF NOT EXISTS idx_summaries_updated_at ON ticket_summaries(updated_at);

CREATE TABLE IF NOT EXISTS ticket_priorities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id TEXT NOT NULL UNIQUE,
    clear_description TEXT NOT NULL DEFAULT '',
    ai_theme TEXT NOT NULL DEFAULT '',
    product_area TEXT NOT NULL DEFAULT 'Other',
    is_blocker BOOLEAN NOT NULL DEFAULT 0,
    is_churn_risk BOOLEAN NOT NULL DEFAULT 0,
    is_escalation BOOLEAN NOT NULL DEFAULT 0,
    is_revenue_impact BOOLEAN NOT NULL DEFAULT 0,
    signal_details TEXT NOT NULL DEFAULT '',
    priority_score TEXT NOT NULL DEFAULT 'Medium',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_priorities_ticket_id ON ticket_priorities(ticket_id);

CREATE TABLE IF NOT EXISTS bulk_jobs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'pending',
    total INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    results TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    started_at DATETIME,
    finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_bulk_jobs_created_at ON bulk_jobs(created_at);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) UpsertSummary(ctx context.Context, rec *AnalysisRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	steps, err := marshalSteps(rec.TestCaseSteps)
	if err != nil {
		return err
	}
	regression := nullBool(rec.RegressionTestNeeded)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ticket_summaries (ticket_id, issue_description, root_cause, issue_theme, root_cause_theme, test_case_needed, test_case_needed_reason, regression_test_needed, regression_test_needed_reason, test_case_title, test_case_description, test_case_steps, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ticket_id) DO UPDATE SET
		   issue_description=excluded.issue_description,
		   root_cause=excluded.root_cause,
		   issue_theme=excluded.issue_theme,
		   root_cause_theme=excluded.root_cause_theme,
		   test_case_needed=excluded.test_case_needed,
		   test_case_needed_reason=excluded.test_case_needed_reason,
		   regression_test_needed=excluded.regression_test_needed,
		   regression_test_needed_reason=excluded.regression_test_needed_reason,
		   test_case_title=excluded.test_case_title,
		   test_case_description=excluded.test_case_description,
		   test_case_steps=excluded.test_case_steps,
		   updated_at=excluded.updated_at`,
		rec.TicketID, rec.IssueDescription, rec.RootCause, rec.IssueTheme, rec.RootCauseTheme,
		rec.TestCaseNeeded, rec.TestCaseNeededReason, regression, rec.RegressionTestReason,
		rec.TestCaseTitle, rec.TestCaseDescription, steps, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

const summaryColumns = `id, ticket_id, issue_description, root_cause, issue_theme, root_cause_theme, test_case_needed, test_case_needed_reason, regression_test_needed, regression_test_needed_reason, test_case_title, test_case_description, test_case_steps, created_at, updated_at`

func (s *SQLiteStore) GetSummary(ctx context.Context, ticketID string) (*AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM ticket_summaries WHERE ticket_id = ?`, ticketID)

	rec, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) RecentSummaries(ctx context.Context, limit int) ([]*AnalysisRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM ticket_summaries ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

func (s *SQLiteStore) SearchSummaries(ctx context.Context, query string, limit int) ([]*AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM ticket_summaries
		 WHERE ticket_id LIKE ? OR issue_description LIKE ? OR root_cause LIKE ?
		 ORDER BY updated_at DESC LIMIT ?`,
		pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search summaries: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

func (s *SQLiteStore) UpsertPriority(ctx context.Context, p *TicketPriority) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_priorities (ticket_id, clear_description, ai_theme, product_area, is_blocker, is_churn_risk, is_escalation, is_revenue_impact, signal_details, priority_score, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ticket_id) DO UPDATE SET
		   clear_description=excluded.clear_description,
		   ai_theme=excluded.ai_theme,
		   product_area=excluded.product_area,
		   is_blocker=excluded.is_blocker,
		   is_churn_risk=excluded.is_churn_risk,
		   is_escalation=excluded.is_escalation,
		   is_revenue_impact=excluded.is_revenue_impact,
		   signal_details=excluded.signal_details,
		   priority_score=excluded.priority_score,
		   updated_at=excluded.updated_at`,
		p.TicketID, p.ClearDescription, p.AITheme, p.ProductArea,
		p.IsBlocker, p.IsChurnRisk, p.IsEscalation, p.IsRevenueImpact,
		p.SignalDetails, p.PriorityScore, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert priority: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPriority(ctx context.Context, ticketID string) (*TicketPriority, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ticket_id, clear_description, ai_theme, product_area, is_blocker, is_churn_risk, is_escalation, is_revenue_impact, signal_details, priority_score, created_at, updated_at
		 FROM ticket_priorities WHERE ticket_id = ?`, ticketID)

	p, err := scanPriority(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) CreateBulkJob(ctx context.Context, job *BulkJob) error {
	results, err := marshalResults(job.Results)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bulk_jobs (id, status, total, processed, succeeded, failed, results, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.Total, job.Processed, job.Succeeded, job.Failed,
		results, job.CreatedAt, nullTime(job.StartedAt), nullTime(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert bulk job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateBulkJob(ctx context.Context, job *BulkJob) error {
	results, err := marshalResults(job.Results)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE bulk_jobs SET status=?, total=?, processed=?, succeeded=?, failed=?, results=?, started_at=?, finished_at=?
		 WHERE id=?`,
		string(job.Status), job.Total, job.Processed, job.Succeeded, job.Failed,
		results, nullTime(job.StartedAt), nullTime(job.FinishedAt), job.ID,
	)
	if err != nil {
		return fmt.Errorf("update bulk job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBulkJob(ctx context.Context, id string) (*BulkJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, total, processed, succeeded, failed, results, created_at, started_at, finished_at
		 FROM bulk_jobs WHERE id = ?`, id)

	job, err := scanBulkJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (s *SQLiteStore) ListBulkJobs(ctx context.Context, limit int) ([]*BulkJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, total, processed, succeeded, failed, results, created_at, started_at, finished_at
		 FROM bulk_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bulk jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*BulkJob
	for rows.Next() {
		job, err := scanBulkJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bulk job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.log.Info("store.sqlite.closing")
	return s.db.Close()
}

// scan helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSummary(row scannable) (*AnalysisRecord, error) {
	var rec AnalysisRecord
	var regression sql.NullBool
	var stepsStr string
	err := row.Scan(
		&rec.ID, &rec.TicketID, &rec.IssueDescription, &rec.RootCause,
		&rec.IssueTheme, &rec.RootCauseTheme, &rec.TestCaseNeeded, &rec.TestCaseNeededReason,
		&regression, &rec.RegressionTestReason, &rec.TestCaseTitle, &rec.TestCaseDescription,
		&stepsStr, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if regression.Valid {
		rec.RegressionTestNeeded = &regression.Bool
	}
	if err := json.Unmarshal([]byte(stepsStr), &rec.TestCaseSteps); err != nil {
		return nil, fmt.Errorf("unmarshal test_case_steps: %w", err)
	}
	return &rec, nil
}

func collectSummaries(rows *sql.Rows) ([]*AnalysisRecord, error) {
	var recs []*AnalysisRecord
	for rows.Next() {
		rec, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanPriority(row scannable) (*TicketPriority, error) {
	var p TicketPriority
	err := row.Scan(
		&p.ID, &p.TicketID, &p.ClearDescription, &p.AITheme, &p.ProductArea,
		&p.IsBlocker, &p.IsChurnRisk, &p.IsEscalation, &p.IsRevenueImpact,
		&p.SignalDetails, &p.PriorityScore, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanBulkJob(row scannable) (*BulkJob, error) {
	var job BulkJob
	var status, resultsStr string
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&job.ID, &status, &job.Total, &job.Processed, &job.Succeeded, &job.Failed,
		&resultsStr, &job.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = BulkJobStatus(status)
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if err := json.Unmarshal([]byte(resultsStr), &job.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	return &job, nil
}

func marshalSteps(steps []string) (string, error) {
	if steps == nil {
		steps = []string{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("marshal test_case_steps: %w", err)
	}
	return string(b), nil
}

func marshalResults(results []TicketResult) (string, error) {
	if results == nil {
		results = []TicketResult{}
	}
	b, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(b), nil
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
