// Package bulk runs multi-ticket analysis jobs in the background, persisting
// progress so jobs survive inspection across requests.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticket-triage/logger"
	"ticket-triage/store"
)

// ErrBusy is returned by Submit when the active-job limit is reached.
var ErrBusy = errors.New("too many active bulk jobs")

// ProcessFunc analyzes a single ticket. The bulk manager calls it once per
// ticket ID in a job.
type ProcessFunc func(ctx context.Context, ticketID string) error

// Config holds bulk manager configuration.
type Config struct {
	// TicketDelay is the pause between tickets within a job, keeping the
	// upstream APIs off their rate limits.
	TicketDelay time.Duration
	// MaxActive bounds how many jobs run concurrently.
	MaxActive int
}

// Manager owns background bulk-analysis jobs. Each job processes its tickets
// sequentially; cancellation takes effect after the current ticket finishes.
type Manager struct {
	store   store.Store
	process ProcessFunc
	log     logger.Logger
	cfg     Config

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewManager creates a bulk job manager.
func NewManager(st store.Store, process ProcessFunc, log logger.Logger, cfg Config) *Manager {
	if cfg.TicketDelay <= 0 {
		cfg.TicketDelay = 500 * time.Millisecond
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 3
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		store:   st,
		process: process,
		log:     log,
		cfg:     cfg,
		active:  make(map[string]context.CancelFunc),
	}
}

// Submit creates a bulk job for the given ticket IDs and starts processing it
// in the background. Returns the persisted job in its pending state.
func (m *Manager) Submit(ctx context.Context, ticketIDs []string) (*store.BulkJob, error) {
	if len(ticketIDs) == 0 {
		return nil, fmt.Errorf("bulk job needs at least one ticket")
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, fmt.Errorf("bulk manager is stopped")
	}
	if len(m.active) >= m.cfg.MaxActive {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (limit %d)", ErrBusy, m.cfg.MaxActive)
	}

	job := &store.BulkJob{
		ID:        "job-" + uuid.New().String()[:8],
		Status:    store.JobPending,
		Total:     len(ticketIDs),
		CreatedAt: time.Now().UTC(),
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	m.active[job.ID] = cancel
	m.mu.Unlock()

	if err := m.store.CreateBulkJob(ctx, job); err != nil {
		m.release(job.ID)
		return nil, fmt.Errorf("create bulk job: %w", err)
	}

	m.log.Info("bulk.submitted",
		logger.String("job_id", job.ID),
		logger.Int("tickets", job.Total),
	)

	// The worker owns job from here on; callers get a detached snapshot so
	// encoding the response cannot race with progress updates.
	snapshot := *job
	m.wg.Add(1)
	go m.run(jobCtx, job, ticketIDs)
	return &snapshot, nil
}

// Cancel requests cancellation of a running or pending job. The job stops
// after the ticket currently being processed.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	cancel, ok := m.active[jobID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s is not active", jobID)
	}
	cancel()
	m.log.Info("bulk.cancel_requested", logger.String("job_id", jobID))
	return nil
}

// Job returns the persisted state of a job, or nil if it does not exist.
func (m *Manager) Job(ctx context.Context, jobID string) (*store.BulkJob, error) {
	return m.store.GetBulkJob(ctx, jobID)
}

// Stop cancels all active jobs and waits for them to wind down.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	for _, cancel := range m.active {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
	m.log.Info("bulk.stopped")
}

func (m *Manager) run(ctx context.Context, job *store.BulkJob, ticketIDs []string) {
	defer m.wg.Done()
	defer m.release(job.ID)
	defer func() {
		if r := recover(); r != nil {
			job.Status = store.JobFailed
			m.finish(job)
			m.log.Error("bulk.panic",
				logger.String("job_id", job.ID),
				logger.Any("panic", r),
			)
		}
	}()

	log := m.log.WithFields(logger.String("job_id", job.ID))

	now := time.Now().UTC()
	job.Status = store.JobRunning
	job.StartedAt = &now
	m.persist(job)

	for i, ticketID := range ticketIDs {
		if ctx.Err() != nil {
			job.Status = store.JobCancelled
			m.finish(job)
			log.Info("bulk.cancelled", logger.Int("processed", job.Processed))
			return
		}

		err := m.process(ctx, ticketID)
		job.Processed++
		if err != nil {
			job.Failed++
			job.Results = append(job.Results, store.TicketResult{
				TicketID: ticketID,
				Status:   "failed",
				Error:    err.Error(),
			})
			log.Warn("bulk.ticket_failed",
				logger.String("ticket_id", ticketID),
				logger.Err(err),
			)
		} else {
			job.Succeeded++
			job.Results = append(job.Results, store.TicketResult{
				TicketID: ticketID,
				Status:   "succeeded",
			})
		}
		m.persist(job)

		if i < len(ticketIDs)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(m.cfg.TicketDelay):
			}
		}
	}

	if ctx.Err() != nil {
		job.Status = store.JobCancelled
	} else {
		job.Status = store.JobCompleted
	}
	m.finish(job)
	log.Info("bulk.completed",
		logger.Int("succeeded", job.Succeeded),
		logger.Int("failed", job.Failed),
	)
}

func (m *Manager) finish(job *store.BulkJob) {
	now := time.Now().UTC()
	job.FinishedAt = &now
	m.persist(job)
}

// persist writes job progress with its own context; job state must outlive
// any request that spawned it.
func (m *Manager) persist(job *store.BulkJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.UpdateBulkJob(ctx, job); err != nil {
		m.log.Error("bulk.persist_failed",
			logger.String("job_id", job.ID),
			logger.Err(err),
		)
	}
}

func (m *Manager) release(jobID string) {
	m.mu.Lock()
	if cancel, ok := m.active[jobID]; ok {
		cancel()
		delete(m.active, jobID)
	}
	m.mu.Unlock()
}
