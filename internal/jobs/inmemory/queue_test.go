package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/budget-sync/internal/banksync"
	"github.com/dvloznov/budget-sync/internal/jobs"
)

func stopQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestQueue_CompletesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)

	done := make(chan struct{})
	err := q.Start(context.Background(), func(ctx context.Context, job *jobs.SyncJob) error {
		defer close(done)
		job.Result = &banksync.SyncResult{RunID: "run-1"}
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.SyncJob{Trigger: jobs.TriggerAPI}
	if err := q.PublishSync(context.Background(), job); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}
	if job.JobID == "" || job.Status != jobs.JobStatusPending || job.CreatedAt.IsZero() {
		t.Errorf("publish should assign ID, status and time: %+v", job)
	}

	<-done
	stopQueue(t, q)

	got, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.JobStatusCompleted || got.Result == nil || got.Result.RunID != "run-1" {
		t.Errorf("unexpected job: %+v", got)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("expected start and completion times")
	}
}

func TestQueue_FailedJobIsNotRetried(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)

	var calls int32
	done := make(chan struct{})
	_ = q.Start(context.Background(), func(ctx context.Context, job *jobs.SyncJob) error {
		atomic.AddInt32(&calls, 1)
		close(done)
		return errors.New("invariant violated")
	})

	job := &jobs.SyncJob{Trigger: jobs.TriggerSchedule}
	if err := q.PublishSync(context.Background(), job); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}
	<-done
	stopQueue(t, q)

	got, _ := store.GetJob(context.Background(), job.JobID)
	if got.Status != jobs.JobStatusFailed || got.Error != "invariant violated" {
		t.Errorf("unexpected job: %+v", got)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestQueue_HandlerPanicFailsJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)

	started := make(chan struct{})
	_ = q.Start(context.Background(), func(ctx context.Context, job *jobs.SyncJob) error {
		close(started)
		panic("boom")
	})

	job := &jobs.SyncJob{}
	_ = q.PublishSync(context.Background(), job)
	<-started
	stopQueue(t, q)

	got, _ := store.GetJob(context.Background(), job.JobID)
	if got.Status != jobs.JobStatusFailed {
		t.Errorf("expected failed job after panic, got %s", got.Status)
	}
}

func TestQueue_RunsOneJobAtATime(t *testing.T) {
	q := NewQueue(3, NewStore())

	var running, maxRunning int32
	var wg sync.WaitGroup
	wg.Add(3)
	_ = q.Start(context.Background(), func(ctx context.Context, job *jobs.SyncJob) error {
		defer wg.Done()
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := q.PublishSync(context.Background(), &jobs.SyncJob{}); err != nil {
			t.Fatalf("PublishSync() error = %v", err)
		}
	}
	wg.Wait()
	stopQueue(t, q)

	if m := atomic.LoadInt32(&maxRunning); m != 1 {
		t.Errorf("max concurrent runs = %d, want 1", m)
	}
}

func TestQueue_FullAndClosed(t *testing.T) {
	q := NewQueue(1, NewStore())

	// Not started, so the first job occupies the only slot.
	if err := q.PublishSync(context.Background(), &jobs.SyncJob{}); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}
	if err := q.PublishSync(context.Background(), &jobs.SyncJob{}); !errors.Is(err, jobs.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.PublishSync(context.Background(), &jobs.SyncJob{}); !errors.Is(err, jobs.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, jobs.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed from Start, got %v", err)
	}
}

func TestQueue_StartTwice(t *testing.T) {
	q := NewQueue(1, nil)
	handler := func(ctx context.Context, job *jobs.SyncJob) error { return nil }
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := q.Start(context.Background(), handler); err == nil {
		t.Error("expected error starting twice")
	}
	stopQueue(t, q)
}
