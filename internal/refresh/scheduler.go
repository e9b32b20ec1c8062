package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"flickrheat/pkg/activity"
	"flickrheat/pkg/config"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/ratelimit"
	"flickrheat/pkg/snapshot"
)

// DefaultSchedule refreshes once a day at midnight UTC
const DefaultSchedule = "@daily"

// Summary counts the outcome of one refresh run
type Summary struct {
	Started   time.Time
	Duration  time.Duration
	Succeeded int
	Failed    int
	Errors    map[string]error
}

// Scheduler recomputes snapshots for a fixed user list on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	schedule  string
	usernames []string
	workers   int
	mode      activity.Mode
	leveling  string

	computer Computer
	store    snapshot.Store
	opts     PoolOptions
	clock    clockwork.Clock
	logger   logger.Logger

	mu      sync.Mutex
	running bool
	last    Summary
}

// NewScheduler validates the schedule and user list from cfg
func NewScheduler(cfg config.RefreshConfig, activityCfg config.ActivityConfig, computer Computer, store snapshot.Store, opts PoolOptions) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("refresh requires a snapshot store")
	}
	usernames := make([]string, 0, len(cfg.Usernames))
	for _, u := range cfg.Usernames {
		if u = snapshot.Key(u); u != "" {
			usernames = append(usernames, u)
		}
	}
	if len(usernames) == 0 {
		return nil, errors.New("refresh requires at least one username")
	}

	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}
	mode, err := activity.ParseMode(activityCfg.Mode, activity.ModeUpload)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		schedule:  schedule,
		usernames: usernames,
		workers:   cfg.Workers,
		mode:      mode,
		leveling:  activityCfg.Leveling,
		computer:  computer,
		store:     store,
		opts:      opts,
		clock:     opts.Clock,
		logger:    opts.Logger.WithField("component", "refresh"),
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.WarnWithFields("Scheduled refresh skipped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return s, nil
}

// NewSchedulerFromConfig wires a scheduler with the configured pacing
func NewSchedulerFromConfig(cfg *config.Config, computer Computer, store snapshot.Store, token *oauth1.AccessToken, log logger.Logger) (*Scheduler, error) {
	return NewScheduler(cfg.Refresh, cfg.Activity, computer, store, PoolOptions{
		Token:       token,
		RateLimiter: ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Logger:      log,
	})
}

func (s *Scheduler) Start() {
	logger.LogComponentStart("refresh", map[string]interface{}{
		"schedule": s.schedule,
		"users":    len(s.usernames),
		"workers":  s.workers,
	})
	s.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.LogComponentStop("refresh", "stopped")
}

// ErrAlreadyRunning is returned when a run overlaps the previous one
var ErrAlreadyRunning = errors.New("refresh already running")

// RunOnce refreshes every configured user for the current year. A failed
// job is recorded in the summary and does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Summary{}, ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	summary := Summary{Started: s.clock.Now(), Errors: map[string]error{}}
	year := summary.Started.UTC().Year()

	pool := NewWorkerPool(ctx, s.workers, s.computer, s.store, s.opts)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, u := range s.usernames {
			job := Job{Username: u, Year: year, Mode: s.mode, Leveling: s.leveling}
			if err := pool.Submit(job); err != nil {
				return
			}
		}
	}()

	for result := range pool.Results() {
		if result.Success {
			summary.Succeeded++
			continue
		}
		summary.Failed++
		summary.Errors[result.Job.Username] = result.Error
	}
	summary.Duration = s.clock.Since(summary.Started)

	s.logger.InfoWithFields("Refresh run finished", map[string]interface{}{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"duration":  summary.Duration,
	})

	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()
	return summary, nil
}

// LastRun returns the summary of the most recent completed run
func (s *Scheduler) LastRun() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) Usernames() []string {
	return append([]string(nil), s.usernames...)
}
