package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/cache"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/env"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobDelayedKey    = "job_delayed"
	JobStatsKey      = "job_stats"

	// Job settings
	DefaultMaxAttempts = 3
	DefaultBackoff     = 60 * time.Second
	DefaultJobTimeout  = 2 * time.Minute
	JobTTL             = 24 * time.Hour // Jobs expire after 24 hours
)

// ErrAttemptInterrupted is reported to the terminal handler when the last
// attempt of a job never finished.
var ErrAttemptInterrupted = errors.New("attempt interrupted")

// Handler executes one attempt of a job. Errors that apperr classifies as
// non-retryable end the job immediately.
type Handler func(ctx context.Context, job *Job) error

// TerminalHandler is called once per job that failed its last attempt.
type TerminalHandler func(ctx context.Context, job *Job, err error)

// Options tunes a Queue. Zero values fall back to the defaults.
type Options struct {
	Workers       int
	MaxAttempts   int
	Backoff       time.Duration
	JobTimeout    time.Duration
	StuckAfter    time.Duration
	SweepInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}
	if o.StuckAfter <= 0 {
		o.StuckAfter = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	return o
}

// OptionsFromEnv reads the queue settings from the environment.
func OptionsFromEnv() Options {
	return Options{
		Workers:     env.GetEnvInt("JOBQUEUE_WORKERS", 5),
		MaxAttempts: env.GetEnvInt("WEBHOOK_MAX_ATTEMPTS", DefaultMaxAttempts),
		Backoff:     env.GetEnvDuration("WEBHOOK_RETRY_BACKOFF", DefaultBackoff),
		JobTimeout:  env.GetEnvDuration("JOBQUEUE_JOB_TIMEOUT", DefaultJobTimeout),
	}
}

// promoteScript moves due job ids from the delayed set to the pending list
// in one step, so a crash cannot drop or duplicate a retry.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// Queue manages background jobs using Redis
type Queue struct {
	client     *redis.Client
	opts       Options
	workers    int
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool

	handlersMu sync.RWMutex
	handlers   map[JobType]Handler
	onTerminal TerminalHandler

	now func() time.Time
}

// NewQueue creates a new job queue on the shared Redis client
func NewQueue(opts Options) *Queue {
	return NewQueueWithClient(cache.GetClient(), opts)
}

// NewQueueWithClient creates a job queue on the given client
func NewQueueWithClient(client *redis.Client, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		client:     client,
		opts:       opts,
		workers:    opts.Workers,
		workerPool: make(chan struct{}, opts.Workers),
		stopCh:     make(chan struct{}),
		handlers:   make(map[JobType]Handler),
		now:        time.Now,
	}
}

// Register binds a handler to a job type.
func (q *Queue) Register(jobType JobType, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

// OnTerminalFailure sets the callback for jobs that exhausted their attempts.
func (q *Queue) OnTerminalFailure(h TerminalHandler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.onTerminal = h
}

// MaxAttempts is the attempt budget given to new jobs.
func (q *Queue) MaxAttempts() int { return q.opts.MaxAttempts }

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[JobQueue] Starting %d workers (max attempts %d, backoff %s)", q.workers, q.opts.MaxAttempts, q.opts.Backoff)

	// Initialize worker pool
	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}

	// Start workers
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Delayed retries become runnable once their backoff has passed
	q.wg.Add(1)
	go q.delayedPromoter(time.Second)

	// Start stuck-processing sweeper (recovers jobs stuck in processing due to crashes)
	q.wg.Add(1)
	go q.stuckSweeper(q.opts.StuckAfter, q.opts.SweepInterval)
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()

	// Drain the pool so a later Start begins with a clean slate
	for len(q.workerPool) > 0 {
		<-q.workerPool
	}
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) delayedPromoter(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(ctx, q.now()); err != nil {
				log.Errorf("[JobQueue] Promoting delayed jobs failed: %v", err)
			}
		}
	}
}

// PromoteDue moves delayed jobs whose retry time is at or before now back to
// the pending queue. It returns the number of promoted jobs.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{JobDelayedKey, JobQueueKey},
		strconv.FormatInt(now.UnixMilli(), 10), 100,
	).Int()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Debugf("[JobQueue] Promoted %d delayed jobs", n)
	}
	return n, nil
}

// stuckSweeper periodically scans the processing list and requeues jobs stuck for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			if _, err := q.SweepStuck(ctx, q.now(), maxAge); err != nil {
				log.Errorf("[JobQueue] Sweeper error: %v", err)
			}
		}
	}
}

// SweepStuck requeues jobs that have been processing for longer than maxAge.
// The interrupted attempt still counts against the job's budget, so a job
// that was on its last attempt goes to the terminal handler instead.
func (q *Queue) SweepStuck(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			// Job data missing or corrupt; remove from processing list
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Sweeper could not load job %s: %v", id, err)
			}
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		if job.Status != JobStatusProcessing {
			// Clean up stray entry
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		// Determine when processing started
		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}

		if job.Attempts >= job.MaxAttempts {
			// The interrupted attempt was the last one
			log.Errorf("[JobQueue] Stuck job %s (type=%s) used its last attempt, failing it", job.ID, job.Type)
			cause := apperr.Permanent("jobqueue", ErrAttemptInterrupted)
			job.MarkAsFailed(now, cause.Error())
			q.updateJob(ctx, job)
			q.updateJobStats(ctx, JobStatusFailed, 1)
			q.removeFromProcessing(ctx, job.ID)
			if _, onTerminal := q.handlerFor(job.Type); onTerminal != nil {
				onTerminal(ctx, job, cause)
			}
			continue
		}

		log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, now.Sub(started))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.updateJob(ctx, job)
		// Move from processing back to pending
		_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
		if err := q.client.RPush(ctx, JobQueueKey, id).Err(); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
			// Acquire worker slot
			<-q.workerPool

			// Try to get a job from the queue
			job, err := q.dequeueJob(ctx, time.Second)
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
					time.Sleep(time.Second)
				}
				// Release worker slot and retry
				q.workerPool <- struct{}{}
				continue
			}

			log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
			q.processJob(ctx, job)

			// Release worker slot
			q.workerPool <- struct{}{}
		}
	}
}

// EnqueueJob adds a new job to the queue
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := q.now()
	job := &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Status:      JobStatusPending,
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
		MaxAttempts: q.opts.MaxAttempts,
	}

	// Store job data
	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := JobKeyPrefix + job.ID

	// Use a pipeline for atomic operations
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, jobKey, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Transient("jobqueue.Enqueue", fmt.Errorf("failed to enqueue job: %w", err))
	}

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, nil
}

// RunOnce promotes due retries and processes at most one pending job on the
// calling goroutine. It reports whether a job was processed.
func (q *Queue) RunOnce(ctx context.Context) (bool, error) {
	if _, err := q.PromoteDue(ctx, q.now()); err != nil {
		return false, err
	}
	job, err := q.dequeueJob(ctx, 0)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	q.processJob(ctx, job)
	return true, nil
}

// dequeueJob gets the next job from the queue. A zero timeout does not block.
func (q *Queue) dequeueJob(ctx context.Context, timeout time.Duration) (*Job, error) {
	// Move job from pending queue to processing queue atomically
	var (
		jobID string
		err   error
	)
	if timeout > 0 {
		jobID, err = q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, timeout).Result()
	} else {
		jobID, err = q.client.RPopLPush(ctx, JobQueueKey, JobProcessingKey).Result()
	}
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		// Job data not found or invalid, remove from processing queue
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job data not found for ID %s: %w", jobID, err)
	}
	return job, nil
}

func (q *Queue) handlerFor(t JobType) (Handler, TerminalHandler) {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	return q.handlers[t], q.onTerminal
}

// processJob runs one attempt of a job and decides between completion,
// a delayed retry and terminal failure.
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing(q.now())
	q.updateJob(ctx, job)

	handler, onTerminal := q.handlerFor(job.Type)

	var err error
	if handler == nil {
		err = apperr.Permanent("jobqueue", fmt.Errorf("unknown job type: %s", job.Type))
	} else {
		err = q.runHandler(ctx, handler, job)
	}

	if err == nil {
		log.Infof("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted(q.now())
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		// Remove completed job from Redis entirely
		q.removeCompletedJob(ctx, job.ID)
		q.removeFromProcessing(ctx, job.ID)
		return
	}

	log.Errorf("[JobQueue] Job %s attempt %d/%d failed: %v", job.ID, job.Attempts, job.MaxAttempts, err)
	job.MarkAsFailed(q.now(), err.Error())

	if apperr.IsRetryable(err) && job.IsRetryable() {
		at := q.now().Add(q.opts.Backoff)
		log.Infof("[JobQueue] Retrying job %s at %s (Attempt %d/%d)", job.ID, at.Format(time.RFC3339), job.Attempts+1, job.MaxAttempts)
		job.MarkAsRetrying(q.now(), at)
		q.updateJob(ctx, job)
		q.removeFromProcessing(ctx, job.ID)
		if zerr := q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(at.UnixMilli()), Member: job.ID}).Err(); zerr != nil {
			log.Errorf("[JobQueue] Failed to schedule retry of job %s: %v", job.ID, zerr)
		}
		return
	}

	log.Errorf("[JobQueue] Job %s permanently failed after %d attempts", job.ID, job.Attempts)
	q.updateJob(ctx, job)
	q.updateJobStats(ctx, JobStatusFailed, 1)
	q.removeFromProcessing(ctx, job.ID)
	if onTerminal != nil {
		onTerminal(ctx, job, err)
	}
}

func (q *Queue) runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, q.opts.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = apperr.Permanent("jobqueue", fmt.Errorf("job %s panicked: %v", job.ID, r))
		}
	}()
	return handler(ctx, job)
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}

	jobKey := JobKeyPrefix + job.ID
	if err := q.client.Set(ctx, jobKey, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// removeFromProcessing removes a job from the processing queue
func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing queue: %v", jobID, err)
	}
}

// removeCompletedJob completely removes a completed job from Redis
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	jobKey := JobKeyPrefix + jobID
	if err := q.client.Del(ctx, jobKey).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove completed job %s from Redis: %v", jobID, err)
	}
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobKey := JobKeyPrefix + jobID
	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64)
	for status, count := range stats {
		if countInt, err := strconv.ParseInt(count, 10, 64); err == nil {
			result[JobStatus(status)] = countInt
		}
	}

	return result, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

// GetDelayedSize returns the number of jobs waiting for a retry
func (q *Queue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobDelayedKey).Result()
}
