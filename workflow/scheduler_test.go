package workflow

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// memoryLocks lets one holder per job name, like the redis lock.
type memoryLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	released int32
}

func (m *memoryLocks) acquire(ctx context.Context, job string, ttl time.Duration) (jobLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[job] {
		return nil, ErrJobLocked
	}
	m.held[job] = true
	return releaseFunc(func() {
		m.mu.Lock()
		delete(m.held, job)
		m.mu.Unlock()
		atomic.AddInt32(&m.released, 1)
	}), nil
}

type releaseFunc func()

func (f releaseFunc) Release(ctx context.Context) error {
	f()
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestScheduler(jobs ...Job) (*Scheduler, *memoryLocks) {
	locks := &memoryLocks{held: map[string]bool{}}
	return &Scheduler{Jobs: jobs, Logger: quietLogger(), JobTimeout: time.Second, lock: locks.acquire}, locks
}

func TestRunOnceUnknownJob(t *testing.T) {
	s, _ := newTestScheduler()
	if err := s.RunOnce(context.Background(), "nope"); err == nil {
		t.Fatalf("expected an error for an unknown job")
	}
}

func TestRunOnceRunsJobAndReleasesLock(t *testing.T) {
	var calls int32
	s, locks := newTestScheduler(Job{Name: "a", Interval: time.Hour, Run: func(ctx context.Context, logger *logrus.Logger) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}})
	if err := s.RunOnce(context.Background(), "a"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if locks.released != 1 || len(locks.held) != 0 {
		t.Fatalf("lock not released")
	}
}

func TestRunOnceReturnsJobError(t *testing.T) {
	boom := errors.New("boom")
	s, locks := newTestScheduler(Job{Name: "a", Run: func(ctx context.Context, logger *logrus.Logger) error {
		return boom
	}})
	if err := s.RunOnce(context.Background(), "a"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if locks.released != 1 {
		t.Fatalf("lock should be released after a failure")
	}
}

func TestLockedJobIsSkipped(t *testing.T) {
	var calls int32
	s, locks := newTestScheduler(Job{Name: "a", Run: func(ctx context.Context, logger *logrus.Logger) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}})
	locks.held["a"] = true
	if err := s.RunOnce(context.Background(), "a"); err != nil {
		t.Fatalf("a locked job is not an error: %v", err)
	}
	if calls != 0 {
		t.Fatalf("locked job should not run")
	}
}

func TestJobTimeout(t *testing.T) {
	s, _ := newTestScheduler(Job{Name: "slow", Run: func(ctx context.Context, logger *logrus.Logger) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	s.JobTimeout = 20 * time.Millisecond
	err := s.RunOnce(context.Background(), "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	var calls int32
	s, _ := newTestScheduler(Job{Name: "tick", Interval: 5 * time.Millisecond, Run: func(ctx context.Context, logger *logrus.Logger) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(40 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop")
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected the job to run repeatedly, got %d", calls)
	}
}

func TestConcurrentRunsOfOneJob(t *testing.T) {
	var running, maxRunning int32
	s, _ := newTestScheduler(Job{Name: "a", Run: func(ctx context.Context, logger *logrus.Logger) error {
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
	}})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunOnce(context.Background(), "a")
		}()
	}
	wg.Wait()
	if maxRunning != 1 {
		t.Fatalf("job ran %d times concurrently", maxRunning)
	}
}

func TestPublishBackoff(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second, MaxBackoff: time.Minute}
	cases := map[int]time.Duration{
		1: 5 * time.Second,
		2: 10 * time.Second,
		3: 20 * time.Second,
		4: 40 * time.Second,
		5: time.Minute,
		9: time.Minute,
	}
	for attempt, want := range cases {
		if got := d.publishBackoff(attempt); got != want {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, want)
		}
	}
}
