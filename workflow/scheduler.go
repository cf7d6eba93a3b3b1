package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"github.com/sirupsen/logrus"
)

// Job is a named maintenance task run on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, logger *logrus.Logger) error
}

type Scheduler struct {
	Jobs       []Job
	Logger     *logrus.Logger
	JobTimeout time.Duration

	// lock overrides the job lock, nil uses acquireJobLock
	lock func(ctx context.Context, job string, ttl time.Duration) (jobLock, error)
}

const defaultJobTimeout = 30 * time.Minute

func NewScheduler(logger *logrus.Logger, jobs ...Job) *Scheduler {
	timeout := config.GetSettings().Cron.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	return &Scheduler{Jobs: jobs, Logger: logger, JobTimeout: timeout}
}

// DefaultJobs are the jobs run by cmd/cron.
func DefaultJobs(s *config.Settings) []Job {
	interval := func(d time.Duration, fallback time.Duration) time.Duration {
		if d > 0 {
			return d
		}
		return fallback
	}
	return []Job{
		{Name: JobCollectiveMinimumAdmins, Interval: interval(s.Cron.MinimumAdminsInterval, 24*time.Hour), Run: RunCollectiveMinimumAdmins},
		{Name: JobHostMonthlyReport, Interval: interval(s.Cron.HostMonthlyReportInterval, 24*time.Hour), Run: RunHostMonthlyReport},
		{Name: JobExpirePersonalTokens, Interval: interval(s.Cron.ExpirePersonalTokensInterval, time.Hour), Run: RunExpirePersonalTokens},
		{Name: JobRequeueDeadActivities, Interval: time.Hour, Run: RunRequeueDeadActivities},
	}
}

func (s *Scheduler) job(name string) (Job, bool) {
	for _, j := range s.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

// RunOnce runs the named job a single time.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	j, ok := s.job(name)
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.runJob(ctx, j)
}

// Run starts every job on its own ticker and blocks until ctx is cancelled.
// Each job also runs once at startup.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.Jobs {
		if j.Interval <= 0 {
			continue
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			ticker := time.NewTicker(j.Interval)
			defer ticker.Stop()
			for {
				_ = s.runJob(ctx, j)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}(j)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j Job) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger := s.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	entry := logger.WithField("job", j.Name)

	lockFn := s.lock
	if lockFn == nil {
		lockFn = acquireJobLock
	}
	// the lock outlives the run so a slow job is never run twice
	lock, err := lockFn(ctx, j.Name, s.JobTimeout+time.Minute)
	if errors.Is(err, ErrJobLocked) {
		entry.Info("job is already running, skipped")
		return nil
	}
	if err != nil {
		entry.WithError(err).Error("acquire job lock")
		return err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			entry.WithError(err).Warn("release job lock")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.JobTimeout)
	defer cancel()

	start := time.Now()
	err = j.Run(runCtx, logger)
	entry = entry.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		entry.WithError(err).Error("job failed")
		return err
	}
	entry.Info("job finished")
	return nil
}
