package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
)

// testClock is a settable clock shared by the queue under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestQueue(t *testing.T, opts Options) (*Queue, *redis.Client, *testClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &testClock{t: time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)}
	q := NewQueueWithClient(client, opts)
	q.now = clock.Now
	return q, client, clock
}

// drain runs queued jobs until none is runnable at the current clock.
func drain(t *testing.T, q *Queue) int {
	t.Helper()
	n := 0
	for {
		ran, err := q.RunOnce(context.Background())
		require.NoError(t, err)
		if !ran {
			return n
		}
		n++
	}
}

func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueueWithClient(nil, Options{Workers: tt.workers})

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.Equal(t, DefaultMaxAttempts, queue.MaxAttempts())
			assert.Equal(t, DefaultBackoff, queue.opts.Backoff)
			assert.False(t, queue.running)
		})
	}
}

func TestQueue_CompletesJob(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	var got *WebhookJobPayload
	q.Register(JobTypeWebhookProcess, func(ctx context.Context, job *Job) error {
		p, err := WebhookJobPayloadFromMap(job.Payload)
		got = p
		return err
	})

	job, err := q.EnqueueJob(ctx, JobTypeWebhookProcess, WebhookJobPayload{RequestID: "req-1", Type: "invoice"}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, 3, job.MaxAttempts)

	assert.Equal(t, 1, drain(t, q))
	require.NotNil(t, got)
	assert.Equal(t, "req-1", got.RequestID)

	_, err = q.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, redis.Nil, "completed jobs are removed")

	processing, _ := q.GetProcessingSize(ctx)
	assert.Zero(t, processing)
	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusCompleted])
	assert.Equal(t, int64(1), stats[JobStatusPending])
}

func TestQueue_RetriesWithFixedBackoff(t *testing.T) {
	q, _, clock := newTestQueue(t, Options{})
	ctx := context.Background()

	var calls int32
	q.Register(JobTypeWebhookProcess, func(ctx context.Context, job *Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return apperr.Transient("test", errors.New("gateway down"))
		}
		return nil
	})

	job, err := q.EnqueueJob(ctx, JobTypeWebhookProcess, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, drain(t, q))
	delayed, _ := q.GetDelayedSize(ctx)
	assert.Equal(t, int64(1), delayed)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, clock.Now().Add(60*time.Second), *stored.NextRunAt)

	clock.Advance(59 * time.Second)
	assert.Zero(t, drain(t, q), "backoff has not elapsed")

	clock.Advance(time.Second)
	assert.Equal(t, 1, drain(t, q))

	clock.Advance(60 * time.Second)
	assert.Equal(t, 1, drain(t, q))

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	_, err = q.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestQueue_TerminalFailureAfterMaxAttempts(t *testing.T) {
	q, _, clock := newTestQueue(t, Options{})
	ctx := context.Background()

	var calls int32
	q.Register(JobTypeWebhookProcess, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still failing")
	})

	var terminal []*Job
	q.OnTerminalFailure(func(ctx context.Context, job *Job, err error) {
		terminal = append(terminal, job)
		assert.EqualError(t, err, "still failing")
	})

	job, err := q.EnqueueJob(ctx, JobTypeWebhookProcess, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		drain(t, q)
		clock.Advance(DefaultBackoff)
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "no fourth attempt")
	require.Len(t, terminal, 1)
	assert.Equal(t, 3, terminal[0].Attempts)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, "still failing", stored.ErrorMsg)

	delayed, _ := q.GetDelayedSize(ctx)
	assert.Zero(t, delayed)
	stats, _ := q.GetJobStats(ctx)
	assert.Equal(t, int64(1), stats[JobStatusFailed])
}

func TestQueue_NonRetryableErrorFailsImmediately(t *testing.T) {
	tests := []struct {
		name    string
		jobType JobType
		handler Handler
	}{
		{
			name:    "permanent error",
			jobType: JobTypeWebhookProcess,
			handler: func(ctx context.Context, job *Job) error {
				return apperr.Permanent("test", errors.New("unknown webhook type"))
			},
		},
		{
			name:    "validation error",
			jobType: JobTypeWebhookProcess,
			handler: func(ctx context.Context, job *Job) error {
				return apperr.Validation("test", "bad payload")
			},
		},
		{
			name:    "panic",
			jobType: JobTypeWebhookProcess,
			handler: func(ctx context.Context, job *Job) error {
				panic("boom")
			},
		},
		{
			name:    "unregistered job type",
			jobType: JobType("nobody_handles_this"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _, _ := newTestQueue(t, Options{})
			ctx := context.Background()
			if tt.handler != nil {
				q.Register(tt.jobType, tt.handler)
			}

			var terminalAttempts int
			q.OnTerminalFailure(func(ctx context.Context, job *Job, err error) {
				terminalAttempts = job.Attempts
				assert.False(t, apperr.IsRetryable(err))
			})

			_, err := q.EnqueueJob(ctx, tt.jobType, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, drain(t, q))

			assert.Equal(t, 1, terminalAttempts)
			delayed, _ := q.GetDelayedSize(ctx)
			assert.Zero(t, delayed)
		})
	}
}

func TestQueue_HandlerGetsDeadline(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{JobTimeout: time.Second})

	var hasDeadline bool
	q.Register(JobTypeWebhookProcess, func(ctx context.Context, job *Job) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	_, err := q.EnqueueJob(context.Background(), JobTypeWebhookProcess, nil)
	require.NoError(t, err)
	drain(t, q)
	assert.True(t, hasDeadline)
}

func TestQueue_SweepStuckRequeuesOldProcessingJobs(t *testing.T) {
	q, client, clock := newTestQueue(t, Options{})
	ctx := context.Background()

	started := clock.Now().Add(-15 * time.Minute)
	stuck := &Job{ID: "stuck", Type: JobTypeWebhookProcess, Status: JobStatusProcessing, ProcessedAt: &started, Attempts: 1, MaxAttempts: 3}
	recent := clock.Now().Add(-time.Minute)
	busy := &Job{ID: "busy", Type: JobTypeWebhookProcess, Status: JobStatusProcessing, ProcessedAt: &recent, Attempts: 1, MaxAttempts: 3}
	q.updateJob(ctx, stuck)
	q.updateJob(ctx, busy)
	require.NoError(t, client.LPush(ctx, JobProcessingKey, "stuck", "busy", "orphan").Err())

	n, err := q.SweepStuck(ctx, clock.Now(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{"busy"}, client.LRange(ctx, JobProcessingKey, 0, -1).Val())
	assert.Equal(t, []string{"stuck"}, client.LRange(ctx, JobQueueKey, 0, -1).Val())

	recovered, err := q.GetJob(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, recovered.Status)
	assert.Equal(t, 1, recovered.Attempts)
}

func TestQueue_SweepStuckFailsJobOnLastAttempt(t *testing.T) {
	q, client, clock := newTestQueue(t, Options{})
	ctx := context.Background()

	var calls int32
	q.Register(JobTypeWebhookProcess, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	var terminal []error
	q.OnTerminalFailure(func(ctx context.Context, job *Job, err error) {
		terminal = append(terminal, err)
		assert.Equal(t, "last", job.ID)
	})

	started := clock.Now().Add(-15 * time.Minute)
	last := &Job{ID: "last", Type: JobTypeWebhookProcess, Status: JobStatusProcessing, ProcessedAt: &started, Attempts: 3, MaxAttempts: 3}
	q.updateJob(ctx, last)
	require.NoError(t, client.LPush(ctx, JobProcessingKey, "last").Err())

	n, err := q.SweepStuck(ctx, clock.Now(), 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Zero(t, drain(t, q))
	assert.Zero(t, atomic.LoadInt32(&calls), "no fourth attempt")
	require.Len(t, terminal, 1)
	assert.ErrorIs(t, terminal[0], ErrAttemptInterrupted)
	assert.False(t, apperr.IsRetryable(terminal[0]))

	assert.Empty(t, client.LRange(ctx, JobProcessingKey, 0, -1).Val())
	assert.Empty(t, client.LRange(ctx, JobQueueKey, 0, -1).Val())

	stored, err := q.GetJob(ctx, "last")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	stats, _ := q.GetJobStats(ctx)
	assert.Equal(t, int64(1), stats[JobStatusFailed])
}

func TestQueue_StartStopProcessesJobs(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{Workers: 2})

	done := make(chan string, 1)
	q.Register(JobTypeWebhookProcess, func(ctx context.Context, job *Job) error {
		p, _ := WebhookJobPayloadFromMap(job.Payload)
		done <- p.RequestID
		return nil
	})

	q.Start()
	defer q.Stop()

	_, err := q.EnqueueJob(context.Background(), JobTypeWebhookProcess, WebhookJobPayload{RequestID: "req-async"}.ToMap())
	require.NoError(t, err)

	select {
	case id := <-done:
		assert.Equal(t, "req-async", id)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed by the workers")
	}
}
