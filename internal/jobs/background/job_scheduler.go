package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"magicbag/internal/services"
)

const pollJobName = "marketplace-poll"

// JobScheduler runs the marketplace poll on a fixed interval.
type JobScheduler struct {
	scheduler gocron.Scheduler
	poller    services.PollService
	interval  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	pollJob    gocron.Job
	lastReport *services.PollReport
	lastErr    error
	runs       int
}

// JobStatus describes the poll job for the status endpoint.
type JobStatus struct {
	Name       string               `json:"name"`
	Interval   string               `json:"interval"`
	Runs       int                  `json:"runs"`
	LastRun    *time.Time           `json:"last_run,omitempty"`
	NextRun    *time.Time           `json:"next_run,omitempty"`
	LastError  string               `json:"last_error,omitempty"`
	LastReport *services.PollReport `json:"last_report,omitempty"`
}

// NewJobScheduler registers the poll job. The first run starts as soon as
// the scheduler is started; later runs are skipped while one is in progress.
func NewJobScheduler(poller services.PollService, interval time.Duration, logger *slog.Logger) (*JobScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobScheduler{
		scheduler: scheduler,
		poller:    poller,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	job, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(js.runPoll, ctx),
		gocron.WithName(pollJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create poll job: %w", err)
	}
	js.pollJob = job

	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler", slog.Duration("interval", js.interval))
	js.scheduler.Start()
}

// Stop cancels an in-flight poll and waits for the scheduler to shut down.
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	js.cancel()
	return js.scheduler.Shutdown()
}

// RunNow queues an immediate poll. It is dropped if a poll is already running.
func (js *JobScheduler) RunNow() error {
	js.mu.RLock()
	job := js.pollJob
	js.mu.RUnlock()
	return job.RunNow()
}

func (js *JobScheduler) runPoll(ctx context.Context) {
	report, err := js.poller.PollOnce(ctx)

	js.mu.Lock()
	defer js.mu.Unlock()
	js.runs++
	js.lastErr = err
	if err != nil {
		js.logger.Error("scheduled poll failed", slog.Any("error", err))
		return
	}
	js.lastReport = report
}

// Status returns information about the poll job
func (js *JobScheduler) Status() JobStatus {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := JobStatus{
		Name:       pollJobName,
		Interval:   js.interval.String(),
		Runs:       js.runs,
		LastReport: js.lastReport,
	}
	if js.lastErr != nil {
		status.LastError = js.lastErr.Error()
	}
	if t, err := js.pollJob.LastRun(); err == nil && !t.IsZero() {
		status.LastRun = &t
	}
	if t, err := js.pollJob.NextRun(); err == nil && !t.IsZero() {
		status.NextRun = &t
	}
	return status
}
