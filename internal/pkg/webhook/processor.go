package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/billing"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/jobqueue"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/metrics"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/observability"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/result"
)

const (
	MessageProcessed        = "webhook processed"
	MessageAlreadyProcessed = "webhook already processed"
)

// enqueueGrace is how long a stored delivery may wait for its first attempt
// before a redelivery may schedule it again. The row's job must be gone too.
const enqueueGrace = 2 * time.Minute

// Reconciler applies the gateway state of one payment locally.
type Reconciler interface {
	ReconcileInvoicePayment(ctx context.Context, paymentID string) (*billing.Outcome, error)
	ReconcilePlanPayment(ctx context.Context, paymentID string) (*billing.Outcome, error)
}

// Enqueuer schedules background jobs and looks them up again.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobqueue.Job, error)
}

// IngestInput is one inbound delivery as received by the intake route.
type IngestInput struct {
	RequestID string
	Type      string
	Payload   []byte
}

// Processor turns at-least-once gateway deliveries into exactly-once local
// state changes. Ingest stores and deduplicates, Process runs as a queue job.
type Processor struct {
	repo        repository.WebhookRequestRepository
	reconciler  Reconciler
	queue       Enqueuer
	maxAttempts int
	now         func() time.Time
	tracer      trace.Tracer
}

func NewProcessor(repo repository.WebhookRequestRepository, reconciler Reconciler, queue Enqueuer) *Processor {
	return &Processor{
		repo:        repo,
		reconciler:  reconciler,
		queue:       queue,
		maxAttempts: jobqueue.DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		tracer:      observability.Tracer("webhook"),
	}
}

// Register wires the processor into a job queue as the handler of webhook
// jobs and as its terminal failure callback. The queue's attempt limit
// becomes the per-request limit.
func (p *Processor) Register(q *jobqueue.Queue) {
	p.maxAttempts = q.MaxAttempts()
	q.Register(jobqueue.JobTypeWebhookProcess, p.HandleJob)
	q.OnTerminalFailure(p.HandleTerminalFailure)
}

// Ingest stores a delivery unless its request id is already known and
// schedules processing. It reports whether the delivery was new.
func (p *Processor) Ingest(ctx context.Context, in IngestInput) (*models.WebhookRequest, bool, error) {
	requestID := strings.TrimSpace(in.RequestID)
	webhookType := strings.ToLower(strings.TrimSpace(in.Type))
	if requestID == "" {
		return nil, false, apperr.Validation("webhook.Ingest", "request id is required")
	}
	if webhookType == "" {
		return nil, false, apperr.Validation("webhook.Ingest", "webhook type is required")
	}
	if !json.Valid(in.Payload) {
		return nil, false, apperr.Validation("webhook.Ingest", "payload is not valid JSON")
	}

	created, stored, err := p.repo.CreateIfNotExists(ctx, &models.WebhookRequest{
		RequestID: requestID,
		Type:      webhookType,
		Payload:   datatypes.JSON(in.Payload),
		Status:    models.WebhookStatusPending,
	})
	if err != nil {
		return nil, false, apperr.Transient("webhook.Ingest", err)
	}

	// A pending row that never saw an attempt and has no job left was stored
	// by a delivery whose enqueue was lost; this redelivery schedules it again.
	stale := stored.Status == models.WebhookStatusPending && stored.Attempts == 0 &&
		p.now().Sub(stored.CreatedAt) >= enqueueGrace && !p.hasLiveJob(ctx, stored)
	if !created && !stale {
		log.Infow("[Webhook] Duplicate delivery ignored",
			"request_id", requestID, "type", stored.Type, "status", stored.Status)
		metrics.ObserveWebhook(stored.Type, metrics.OutcomeDuplicate)
		return stored, false, nil
	}

	if err := p.enqueue(ctx, stored); err != nil {
		return stored, created, err
	}
	if created {
		metrics.ObserveWebhook(stored.Type, metrics.OutcomeIngested)
	}
	return stored, created, nil
}

func (p *Processor) enqueue(ctx context.Context, req *models.WebhookRequest) error {
	job, err := p.queue.EnqueueJob(ctx, jobqueue.JobTypeWebhookProcess, jobqueue.WebhookJobPayload{
		RequestID: req.RequestID,
		Type:      req.Type,
	}.ToMap())
	if err != nil {
		return apperr.Transient("webhook.enqueue", err)
	}
	if err := p.repo.SetJobID(ctx, req.RequestID, job.ID); err != nil {
		// The job runs anyway; only lost-job detection is weakened.
		log.Warnw("[Webhook] Could not record job id",
			"request_id", req.RequestID, "job_id", job.ID, "error", err)
	} else {
		req.JobID = &job.ID
	}
	log.Infow("[Webhook] Processing scheduled", "request_id", req.RequestID, "type", req.Type, "job_id", job.ID)
	return nil
}

// hasLiveJob reports whether the job recorded on req may still run. When the
// queue cannot answer, the job is assumed alive.
func (p *Processor) hasLiveJob(ctx context.Context, req *models.WebhookRequest) bool {
	if req.JobID == nil || *req.JobID == "" {
		return false
	}
	job, err := p.queue.GetJob(ctx, *req.JobID)
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		log.Warnw("[Webhook] Could not look up job",
			"request_id", req.RequestID, "job_id", *req.JobID, "error", err)
		return true
	}
	return !job.IsDone()
}

// Process runs one attempt for a stored delivery: it counts the attempt,
// dispatches by type to the matching reconciler and marks the request
// processed on success. Errors are returned for the queue's retry policy.
func (p *Processor) Process(ctx context.Context, requestID string, attempt int) result.Result[*billing.Outcome] {
	started := p.now()

	ctx, span := p.tracer.Start(ctx, "webhook.Process", trace.WithAttributes(
		attribute.String("webhook.request_id", requestID),
		attribute.Int("webhook.attempt", attempt),
	))
	defer span.End()

	req, err := p.repo.MarkAttempt(ctx, requestID, started)
	if apperr.IsKind(err, apperr.KindConflict) && req != nil {
		// The row is terminal already; a redundant job must not touch it.
		if req.Status == models.WebhookStatusProcessed {
			metrics.ObserveWebhook(req.Type, metrics.OutcomeDuplicate)
			return result.Success[*billing.Outcome](nil, MessageAlreadyProcessed)
		}
		return p.fail(span, req, "", attempt, apperr.Permanent("webhook.Process", err))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result.FromError[*billing.Outcome](err)
	}
	defer metrics.ObserveWebhookDuration(req.Type, started)
	span.SetAttributes(attribute.String("webhook.type", req.Type))

	if p.maxAttempts > 0 && req.Attempts > p.maxAttempts {
		return p.fail(span, req, "", attempt, apperr.Permanent("webhook.Process",
			fmt.Errorf("attempt %d exceeds the limit of %d", req.Attempts, p.maxAttempts)))
	}

	n, err := ParseNotification(req.Payload)
	if err != nil {
		return p.fail(span, req, "", attempt, err)
	}
	paymentID := n.PaymentID()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	var outcome *billing.Outcome
	switch req.Type {
	case models.WebhookTypePlan:
		outcome, err = p.reconciler.ReconcilePlanPayment(ctx, paymentID)
	case models.WebhookTypeInvoice:
		outcome, err = p.reconciler.ReconcileInvoicePayment(ctx, paymentID)
	default:
		err = apperr.Permanent("webhook.Process", fmt.Errorf("unknown webhook type %q", req.Type))
	}
	if err != nil {
		return p.fail(span, req, paymentID, attempt, err)
	}

	response, err := json.Marshal(outcome)
	if err != nil {
		return p.fail(span, req, paymentID, attempt, err)
	}
	err = p.repo.MarkProcessed(ctx, requestID, datatypes.JSON(response), p.now())
	if apperr.IsKind(err, apperr.KindConflict) {
		// A concurrent job finished first; the reconciler is idempotent.
		metrics.ObserveWebhook(req.Type, metrics.OutcomeDuplicate)
		return result.Success(outcome, MessageAlreadyProcessed)
	}
	if err != nil {
		return p.fail(span, req, paymentID, attempt, apperr.Transient("webhook.Process", err))
	}

	log.Infow("[Webhook] Processed",
		"request_id", requestID, "type", req.Type, "payment_id", paymentID,
		"attempt", attempt, "applied", outcome != nil && outcome.Applied)
	metrics.ObserveWebhook(req.Type, metrics.OutcomeProcessed)
	return result.Success(outcome, MessageProcessed)
}

func (p *Processor) fail(span trace.Span, req *models.WebhookRequest, paymentID string, attempt int, err error) result.Result[*billing.Outcome] {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Warnw("[Webhook] Processing attempt failed",
		"request_id", req.RequestID, "type", req.Type, "payment_id", paymentID,
		"attempt", attempt, "retryable", apperr.IsRetryable(err), "error", err)
	metrics.ObserveWebhook(req.Type, metrics.OutcomeRetry)
	return result.FromError[*billing.Outcome](err)
}

// HandleFailure is the terminal failure handler: the request is marked
// failed with the last error and no automatic retry happens afterwards.
func (p *Processor) HandleFailure(ctx context.Context, requestID string, cause error) error {
	message := "processing failed"
	if cause != nil {
		message = cause.Error()
	}

	err := p.repo.MarkFailed(ctx, requestID, message, p.now())
	if apperr.IsKind(err, apperr.KindConflict) {
		return nil
	}
	if err != nil {
		log.Errorw("[Webhook] Could not record terminal failure",
			"request_id", requestID, "error", err, "severity", "critical")
		return err
	}

	webhookType := ""
	attempts := 0
	if stored, gerr := p.repo.GetByRequestID(ctx, requestID); gerr == nil {
		webhookType = stored.Type
		attempts = stored.Attempts
	}
	log.Errorw("[Webhook] Processing permanently failed, manual replay required",
		"request_id", requestID, "type", webhookType, "attempts", attempts,
		"error", message, "severity", "critical")
	metrics.ObserveWebhook(webhookType, metrics.OutcomeTerminal)
	return nil
}

// HandleJob adapts Process to the job queue.
func (p *Processor) HandleJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.WebhookJobPayloadFromMap(job.Payload)
	if err != nil || payload.RequestID == "" {
		return apperr.Permanent("webhook.HandleJob", fmt.Errorf("job %s carries no request id", job.ID))
	}
	return p.Process(ctx, payload.RequestID, job.Attempts).Err()
}

// HandleTerminalFailure adapts HandleFailure to the job queue.
func (p *Processor) HandleTerminalFailure(ctx context.Context, job *jobqueue.Job, cause error) {
	if job.Type != jobqueue.JobTypeWebhookProcess {
		return
	}
	payload, err := jobqueue.WebhookJobPayloadFromMap(job.Payload)
	if err != nil || payload.RequestID == "" {
		log.Errorw("[Webhook] Terminal failure of a job without request id",
			"job_id", job.ID, "error", cause, "severity", "critical")
		return
	}
	_ = p.HandleFailure(ctx, payload.RequestID, cause)
}

// Replay re-runs a failed delivery under a new request id. The failed row
// stays failed; the replay gets its own attempt budget.
func (p *Processor) Replay(ctx context.Context, requestID string) (*models.WebhookRequest, error) {
	original, err := p.repo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if original.Status != models.WebhookStatusFailed {
		return nil, apperr.Conflict("webhook.Replay", "only failed requests can be replayed, %q is %s", requestID, original.Status)
	}

	n, err := p.repo.CountReplays(ctx, requestID)
	if err != nil {
		return nil, err
	}
	replayOf := original.RequestID
	created, stored, err := p.repo.CreateIfNotExists(ctx, &models.WebhookRequest{
		RequestID: fmt.Sprintf("%s#replay-%d", original.RequestID, n+1),
		Type:      original.Type,
		Payload:   original.Payload,
		Status:    models.WebhookStatusPending,
		ReplayOf:  &replayOf,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, apperr.Conflict("webhook.Replay", "replay %q is already in progress", stored.RequestID)
	}

	if err := p.enqueue(ctx, stored); err != nil {
		return nil, err
	}
	log.Infow("[Webhook] Replay scheduled", "request_id", stored.RequestID, "replay_of", requestID)
	metrics.ObserveWebhook(stored.Type, metrics.OutcomeReplayed)
	return stored, nil
}
