package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ticket-triage/store"
)

type memJobStore struct {
	store.Store
	mu   sync.Mutex
	jobs map[string]*store.BulkJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*store.BulkJob)}
}

func (s *memJobStore) CreateBulkJob(_ context.Context, job *store.BulkJob) error {
	return s.UpdateBulkJob(nil, job)
}

func (s *memJobStore) UpdateBulkJob(_ context.Context, job *store.BulkJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *job
	snapshot.Results = append([]store.TicketResult(nil), job.Results...)
	s.jobs[job.ID] = &snapshot
	return nil
}

func (s *memJobStore) GetBulkJob(_ context.Context, id string) (*store.BulkJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id], nil
}

func waitForStatus(t *testing.T, st *memJobStore, jobID string, want store.BulkJobStatus) *store.BulkJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, _ := st.GetBulkJob(nil, jobID)
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := st.GetBulkJob(nil, jobID)
	t.Fatalf("job %s never reached %s, last state: %+v", jobID, want, job)
	return nil
}

func TestManagerRunsJobToCompletion(t *testing.T) {
	st := newMemJobStore()
	var mu sync.Mutex
	var processed []string
	process := func(_ context.Context, ticketID string) error {
		mu.Lock()
		processed = append(processed, ticketID)
		mu.Unlock()
		if ticketID == "bad" {
			return errors.New("boom")
		}
		return nil
	}

	m := NewManager(st, process, nil, Config{TicketDelay: time.Millisecond})
	t.Cleanup(m.Stop)

	job, err := m.Submit(context.Background(), []string{"1", "bad", "3"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != store.JobPending || job.Total != 3 {
		t.Errorf("initial job state: %+v", job)
	}

	final := waitForStatus(t, st, job.ID, store.JobCompleted)
	if final.Processed != 3 || final.Succeeded != 2 || final.Failed != 1 {
		t.Errorf("counts: %+v", final)
	}
	if len(final.Results) != 3 {
		t.Fatalf("results: %v", final.Results)
	}
	if final.Results[1].Status != "failed" || final.Results[1].Error != "boom" {
		t.Errorf("failed result: %+v", final.Results[1])
	}
	if final.StartedAt == nil || final.FinishedAt == nil {
		t.Error("timestamps should be set")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 3 || processed[0] != "1" || processed[2] != "3" {
		t.Errorf("tickets should run in order: %v", processed)
	}
}

func TestSubmitReturnsDetachedJob(t *testing.T) {
	st := newMemJobStore()
	release := make(chan struct{})
	process := func(_ context.Context, _ string) error {
		<-release
		return nil
	}

	m := NewManager(st, process, nil, Config{TicketDelay: time.Millisecond})
	t.Cleanup(m.Stop)

	job, err := m.Submit(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Encode the returned job repeatedly while the worker updates its own
	// copy; Submit must hand back a snapshot the worker never touches.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if _, err := json.Marshal(job); err != nil {
				t.Errorf("marshal returned job: %v", err)
				return
			}
		}
	}()
	waitForStatus(t, st, job.ID, store.JobRunning)
	close(release)
	<-done

	final := waitForStatus(t, st, job.ID, store.JobCompleted)
	if final.Processed != 2 {
		t.Errorf("processed = %d", final.Processed)
	}
	if job.Status != store.JobPending || job.Processed != 0 || job.StartedAt != nil {
		t.Errorf("returned job should stay in its pending snapshot: %+v", job)
	}
}

func TestManagerCancelStopsAfterCurrentTicket(t *testing.T) {
	st := newMemJobStore()
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	count := 0
	process := func(_ context.Context, _ string) error {
		mu.Lock()
		count++
		first := count == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		return nil
	}

	m := NewManager(st, process, nil, Config{TicketDelay: time.Millisecond})
	t.Cleanup(m.Stop)

	job, err := m.Submit(context.Background(), []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started
	if err := m.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	final := waitForStatus(t, st, job.ID, store.JobCancelled)
	if final.Processed != 1 {
		t.Errorf("processed = %d, the in-flight ticket should finish and no more", final.Processed)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("process calls = %d", count)
	}
}

func TestManagerCancelUnknownJob(t *testing.T) {
	m := NewManager(newMemJobStore(), func(context.Context, string) error { return nil }, nil, Config{})
	t.Cleanup(m.Stop)
	if err := m.Cancel("job-nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestManagerRejectsEmptyJob(t *testing.T) {
	m := NewManager(newMemJobStore(), func(context.Context, string) error { return nil }, nil, Config{})
	t.Cleanup(m.Stop)
	if _, err := m.Submit(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty ticket list")
	}
}

func TestManagerActiveJobLimit(t *testing.T) {
	st := newMemJobStore()
	release := make(chan struct{})
	process := func(_ context.Context, _ string) error {
		<-release
		return nil
	}

	m := NewManager(st, process, nil, Config{TicketDelay: time.Millisecond, MaxActive: 1})
	t.Cleanup(func() {
		close(release)
		m.Stop()
	})

	if _, err := m.Submit(context.Background(), []string{"1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := m.Submit(context.Background(), []string{"2"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestManagerStopCancelsJobs(t *testing.T) {
	st := newMemJobStore()
	process := func(ctx context.Context, _ string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return nil
		}
	}

	m := NewManager(st, process, nil, Config{TicketDelay: time.Second})
	job, err := m.Submit(context.Background(), []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	final, _ := st.GetBulkJob(nil, job.ID)
	if final == nil {
		t.Fatal("job never persisted")
	}
	if final.Status != store.JobCancelled && final.Status != store.JobCompleted {
		t.Errorf("status after Stop = %s", final.Status)
	}
}
