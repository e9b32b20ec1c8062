package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"flickrheat/pkg/activity"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/metrics"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/ratelimit"
	"flickrheat/pkg/snapshot"
)

// Job recomputes one user's heatmap and stores it as a snapshot
type Job struct {
	Username string
	Year     int
	Mode     activity.Mode
	Leveling string
}

// Result is the outcome of one Job
type Result struct {
	Job      Job
	Success  bool
	Error    error
	Duration time.Duration
	Photos   int
}

// Computer produces heatmaps; *activity.Service satisfies it
type Computer interface {
	Heatmap(ctx context.Context, req activity.Request, token *oauth1.AccessToken, progress activity.ProgressFunc) (activity.Heatmap, error)
}

// WorkerPool runs refresh jobs on a fixed number of workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	computer    Computer
	store       snapshot.Store
	token       *oauth1.AccessToken
	rateLimiter ratelimit.Limiter
	clock       clockwork.Clock
	logger      logger.Logger
}

// PoolOptions are the optional collaborators of a WorkerPool
type PoolOptions struct {
	Token       *oauth1.AccessToken
	RateLimiter ratelimit.Limiter
	Clock       clockwork.Clock
	Logger      logger.Logger
}

// NewWorkerPool creates a pool whose jobs are cancelled with ctx
func NewWorkerPool(ctx context.Context, numWorkers int, computer Computer, store snapshot.Store, opts PoolOptions) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = ratelimit.Unlimited{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		computer:    computer,
		store:       store,
		token:       opts.Token,
		rateLimiter: opts.RateLimiter,
		clock:       opts.Clock,
		logger:      opts.Logger.WithField("component", "refresh"),
	}
}

func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting refresh workers", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for in-flight jobs, then closes Results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit queues job, blocking while the queue is full
func (wp *WorkerPool) Submit(job Job) error {
	if wp.ctx.Err() != nil {
		return fmt.Errorf("refresh pool is shutting down")
	}
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("refresh pool is shutting down")
	}
}

func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := wp.clock.Now()
	result := Result{Job: job}
	fields := map[string]interface{}{
		"worker_id": workerID,
		"username":  job.Username,
		"year":      job.Year,
	}

	defer func() {
		metrics.RefreshJobsTotal.WithLabelValues(metrics.Status(result.Error)).Inc()
	}()

	if err := wp.ctx.Err(); err != nil {
		result.Error = err
		return result
	}
	if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
		result.Error = err
		return result
	}

	hm, err := wp.computer.Heatmap(wp.ctx, activity.Request{
		Identifier: job.Username,
		Year:       job.Year,
		Mode:       job.Mode,
		Leveling:   job.Leveling,
	}, wp.token, nil)
	if err != nil {
		result.Error = fmt.Errorf("compute heatmap: %w", err)
		result.Duration = wp.clock.Since(start)
		fields["error"] = err.Error()
		wp.logger.ErrorWithFields("Refresh job failed", fields)
		return result
	}
	result.Photos = hm.TotalPhotos

	snap := snapshot.FromHeatmap(job.Username, hm, wp.clock.Now())
	if err := wp.store.Put(wp.ctx, snap); err != nil {
		result.Error = fmt.Errorf("save snapshot: %w", err)
		result.Duration = wp.clock.Since(start)
		fields["error"] = err.Error()
		wp.logger.ErrorWithFields("Refresh snapshot save failed", fields)
		return result
	}

	result.Success = true
	result.Duration = wp.clock.Since(start)
	fields["photos"] = result.Photos
	fields["partial"] = hm.Partial
	fields["duration"] = result.Duration
	wp.logger.DebugWithFields("Refresh job completed", fields)
	return result
}

// QueueSize is the number of jobs waiting for a worker
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}
