package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/workflow"
)

// cron runs the maintenance jobs.
//
//	go run ./cmd/cron                                      run every job on its interval
//	go run ./cmd/cron -once -job collective-minimum-admins run one job and exit
//
// Jobs hold a lock for the length of a run, so several cron processes can
// run side by side.
func main() {
	job := flag.String("job", "", "only run this job")
	once := flag.Bool("once", false, "run the selected job(s) a single time and exit")
	dispatch := flag.Bool("dispatch", true, "also publish pending activities while running")
	flag.Parse()

	settings := config.GetSettings()
	config.ConfigureLogger(settings)
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	if settings.Redis.Address != "" {
		config.ConnectRedisWithRetry()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := workflow.DefaultJobs(settings)
	scheduler := workflow.NewScheduler(logger, jobs...)

	if *once {
		names := []string{*job}
		if *job == "" {
			names = names[:0]
			for _, j := range jobs {
				names = append(names, j.Name)
			}
		}
		failed := false
		for _, name := range names {
			if err := scheduler.RunOnce(ctx, name); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	if *job != "" {
		selected := []workflow.Job{}
		for _, j := range jobs {
			if j.Name == *job {
				selected = append(selected, j)
			}
		}
		if len(selected) == 0 {
			fmt.Fprintf(os.Stderr, "unknown job %q\n", *job)
			os.Exit(1)
		}
		scheduler.Jobs = selected
	}

	if *dispatch {
		dispatcher := workflow.NewOutboxDispatcher(config.GetDB(), logger)
		go dispatcher.Run(ctx)
	}

	logger.WithField("jobs", len(scheduler.Jobs)).Info("cron started")
	scheduler.Run(ctx)
	logger.Info("cron stopped")
}
