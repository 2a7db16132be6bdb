package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ticket-triage/logger"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig holds connection settings for the MySQL store.
type MySQLConfig struct {
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// MySQLStore implements Store using MySQL.
type MySQLStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewMySQLStore opens a MySQL database and initializes the schema.
func NewMySQLStore(cfg MySQLConfig, log logger.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info("store.mysql.opened")
	return s, nil
}

func (s *MySQLStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticket_summaries (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    ticket_id VARCHAR(64) NOT NULL,
    issue_description TEXT NOT NULL,
    root_cause TEXT NOT NULL,
    issue_theme VARCHAR(255) NOT NULL DEFAULT '',
    root_cause_theme VARCHAR(255) NOT NULL DEFAULT '',
    test_case_needed BOOLEAN NOT NULL DEFAULT 0,
    test_case_needed_reason TEXT NOT NULL,
    regression_test_needed BOOLEAN,
    regression_test_needed_reason TEXT NOT NULL,
    test_case_title VARCHAR(512) NOT NULL DEFAULT '',
    test_case_description TEXT NOT NULL,
    test_case_steps LONGTEXT NOT NULL,
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    UNIQUE KEY uniq_summaries_ticket_id (ticket_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS ticket_priorities (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    ticket_id VARCHAR(64) NOT NULL,
    clear_description TEXT NOT NULL,
    ai_theme VARCHAR(255) NOT NULL DEFAULT '',
    product_area VARCHAR(64) NOT NULL DEFAULT 'Other',
    is_blocker BOOLEAN NOT NULL DEFAULT 0,
    is_churn_risk BOOLEAN NOT NULL DEFAULT 0,
    is_escalation BOOLEAN NOT NULL DEFAULT 0,
    is_revenue_impact BOOLEAN NOT NULL DEFAULT 0,
    signal_details TEXT NOT NULL,
    priority_score VARCHAR(16) NOT NULL DEFAULT 'Medium',
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    UNIQUE KEY uniq_priorities_ticket_id (ticket_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS bulk_jobs (
    id VARCHAR(64) PRIMARY KEY,
    status VARCHAR(32) NOT NULL DEFAULT 'pending',
    total INT NOT NULL DEFAULT 0,
    processed INT NOT NULL DEFAULT 0,
    succeeded INT NOT NULL DEFAULT 0,
    failed INT NOT NULL DEFAULT 0,
    results LONGTEXT NOT NULL,
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    started_at DATETIME(3),
    finished_at DATETIME(3)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			// CREATE INDEX has no IF NOT EXISTS on MySQL; tolerate reruns.
			if strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *MySQLStore) UpsertSummary(ctx context.Context, rec *AnalysisRecord) error {
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
		 ON DUPLICATE KEY UPDATE
		   issue_description=VALUES(issue_description),
		   root_cause=VALUES(root_cause),
		   issue_theme=VALUES(issue_theme),
		   root_cause_theme=VALUES(root_cause_theme),
		   test_case_needed=VALUES(test_case_needed),
		   test_case_needed_reason=VALUES(test_case_needed_reason),
		   regression_test_needed=VALUES(regression_test_needed),
		   regression_test_needed_reason=VALUES(regression_test_needed_reason),
		   test_case_title=VALUES(test_case_title),
		   test_case_description=VALUES(test_case_description),
		   test_case_steps=VALUES(test_case_steps),
		   updated_at=VALUES(updated_at)`,
		rec.TicketID, rec.IssueDescription, rec.RootCause, rec.IssueTheme, rec.RootCauseTheme,
		rec.TestCaseNeeded, rec.TestCaseNeededReason, regression, rec.RegressionTestReason,
		rec.TestCaseTitle, rec.TestCaseDescription, steps, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetSummary(ctx context.Context, ticketID string) (*AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM ticket_summaries WHERE ticket_id = ?`, ticketID)

	rec, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *MySQLStore) RecentSummaries(ctx context.Context, limit int) ([]*AnalysisRecord, error) {
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

func (s *MySQLStore) SearchSummaries(ctx context.Context, query string, limit int) ([]*AnalysisRecord, error) {
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

func (s *MySQLStore) UpsertPriority(ctx context.Context, p *TicketPriority) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_priorities (ticket_id, clear_description, ai_theme, product_area, is_blocker, is_churn_risk, is_escalation, is_revenue_impact, signal_details, priority_score, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   clear_description=VALUES(clear_description),
		   ai_theme=VALUES(ai_theme),
		   product_area=VALUES(product_area),
		   is_blocker=VALUES(is_blocker),
		   is_churn_risk=VALUES(is_churn_risk),
		   is_escalation=VALUES(is_escalation),
		   is_revenue_impact=VALUES(is_revenue_impact),
		   signal_details=VALUES(signal_details),
		   priority_score=VALUES(priority_score),
		   updated_at=VALUES(updated_at)`,
		p.TicketID, p.ClearDescription, p.AITheme, p.ProductArea,
		p.IsBlocker, p.IsChurnRisk, p.IsEscalation, p.IsRevenueImpact,
		p.SignalDetails, p.PriorityScore, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert priority: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetPriority(ctx context.Context, ticketID string) (*TicketPriority, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ticket_id, clear_description, ai_theme, product_area, is_blocker, is_churn_risk, is_escalation, is_revenue_impact, signal_details, priority_score, created_at, updated_at
		 FROM ticket_priorities WHERE ticket_id = ?`, ticketID)

	p, err := scanPriority(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *MySQLStore) CreateBulkJob(ctx context.Context, job *BulkJob) error {
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

func (s *MySQLStore) UpdateBulkJob(ctx context.Context, job *BulkJob) error {
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

func (s *MySQLStore) GetBulkJob(ctx context.Context, id string) (*BulkJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, total, processed, succeeded, failed, results, created_at, started_at, finished_at
		 FROM bulk_jobs WHERE id = ?`, id)

	job, err := scanBulkJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (s *MySQLStore) ListBulkJobs(ctx context.Context, limit int) ([]*BulkJob, error) {
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

func (s *MySQLStore) Close() error {
	s.log.Info("store.mysql.closing")
	return s.db.Close()
}
