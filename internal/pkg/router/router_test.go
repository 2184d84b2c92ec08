package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/gateway"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/jobqueue"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/metrics"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/webhook"
)

const adminToken = "s3cret-admin"

type fakeWebhooks struct {
	mu        sync.Mutex
	seen      map[string]bool
	ingested  []webhook.IngestInput
	ingestErr error
	replayErr error
	replayed  []string
}

func (f *fakeWebhooks) Ingest(ctx context.Context, in webhook.IngestInput) (*models.WebhookRequest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ingestErr != nil {
		return nil, false, f.ingestErr
	}
	f.ingested = append(f.ingested, in)
	created := !f.seen[in.RequestID]
	f.seen[in.RequestID] = true
	return &models.WebhookRequest{RequestID: in.RequestID, Type: in.Type, Status: models.WebhookStatusPending}, created, nil
}

func (f *fakeWebhooks) Replay(ctx context.Context, requestID string) (*models.WebhookRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replayErr != nil {
		return nil, f.replayErr
	}
	f.replayed = append(f.replayed, requestID)
	return &models.WebhookRequest{RequestID: requestID + "#replay-1", ReplayOf: &requestID, Status: models.WebhookStatusPending}, nil
}

type stubRequests struct {
	repository.WebhookRequestRepository
	rows []models.WebhookRequest
}

func (s *stubRequests) ListByStatus(ctx context.Context, webhookStatus string, limit int) ([]models.WebhookRequest, error) {
	var out []models.WebhookRequest
	for _, r := range s.rows {
		if r.Status == webhookStatus && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRequests) GetByRequestID(ctx context.Context, requestID string) (*models.WebhookRequest, error) {
	for _, r := range s.rows {
		if r.RequestID == requestID {
			cp := r
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("stub", "webhook request %q not found", requestID)
}

type testApp struct {
	app      *fiber.App
	webhooks *fakeWebhooks
	redis    *redis.Client
}

func newTestApp(t *testing.T, mutate func(*Dependencies)) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ta := &testApp{webhooks: &fakeWebhooks{seen: map[string]bool{}}, redis: client}
	deps := Dependencies{
		Webhooks: ta.webhooks,
		WebhookRequests: &stubRequests{rows: []models.WebhookRequest{
			{RequestID: "req-failed", Type: "invoice", Status: models.WebhookStatusFailed, Attempts: 3},
			{RequestID: "req-done", Type: "plan", Status: models.WebhookStatusProcessed, Attempts: 1},
		}},
		Queue: repository.NewQueueRepositoryWithClient(client),
		HealthChecks: map[string]HealthCheck{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		},
		AdminToken: adminToken,
	}
	if mutate != nil {
		mutate(&deps)
	}

	ta.app = fiber.New()
	InstallRouter(ta.app, deps)
	return ta
}

func (ta *testApp) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp.StatusCode, body
}

func webhookRequest(path, body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func adminRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	return req
}

func TestHealthz(t *testing.T) {
	ta := newTestApp(t, nil)
	code, body := ta.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	failing := newTestApp(t, func(d *Dependencies) {
		d.HealthChecks["database"] = func(ctx context.Context) error { return errors.New("connection refused") }
	})
	code, body = failing.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "connection refused", checks["database"])
	assert.Equal(t, "ok", checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Register()
	metrics.ObserveWebhook(models.WebhookTypeInvoice, metrics.OutcomeIngested)

	ta := newTestApp(t, nil)
	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "easybudget_webhook_requests_total")
}

func TestWebhookIntake(t *testing.T) {
	ta := newTestApp(t, nil)
	body := `{"action":"payment.updated","type":"payment","data":{"id":"987"}}`

	code, resp := ta.do(t, webhookRequest("/webhooks/mercadopago/invoice", body, map[string]string{"x-request-id": "req-1"}))
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "req-1", resp["request_id"])
	assert.Equal(t, false, resp["duplicate"])

	code, resp = ta.do(t, webhookRequest("/webhooks/mercadopago/invoice", body, map[string]string{"x-request-id": "req-1"}))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["duplicate"])

	require.Len(t, ta.webhooks.ingested, 2)
	assert.Equal(t, "invoice", ta.webhooks.ingested[0].Type)
	assert.JSONEq(t, body, string(ta.webhooks.ingested[0].Payload))
}

func TestWebhookIntake_DerivesRequestIDWithoutHeader(t *testing.T) {
	ta := newTestApp(t, nil)
	code, resp := ta.do(t, webhookRequest("/webhooks/mercadopago/plan", `{"action":"payment.created","data":{"id":42}}`, nil))
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "plan:payment.created:42", resp["request_id"])

	code, resp = ta.do(t, webhookRequest("/webhooks/mercadopago/plan", `{"id":9001,"action":"payment.updated","data":{"id":42}}`, nil))
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "plan:payment.updated:42:9001", resp["request_id"])
}

func TestWebhookIntake_RejectsInvalidPayload(t *testing.T) {
	ta := newTestApp(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"broken json", `{"data":`},
		{"missing data id", `{"action":"payment.updated","data":{}}`},
		{"missing data", `{"action":"payment.updated"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ta.do(t, webhookRequest("/webhooks/mercadopago/invoice", tt.body, nil))
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "invalid_payload", resp["error"])
		})
	}
	assert.Empty(t, ta.webhooks.ingested)
}

func TestWebhookIntake_StoreUnavailable(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.webhooks.ingestErr = apperr.Transient("webhook.Ingest", errors.New("too many connections"))

	code, resp := ta.do(t, webhookRequest("/webhooks/mercadopago/invoice", `{"data":{"id":"1"}}`, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "timeout", resp["error"])
}

func TestWebhookIntake_Signature(t *testing.T) {
	const secret = "whsec"
	ta := newTestApp(t, func(d *Dependencies) { d.WebhookSecret = secret })
	body := `{"action":"payment.updated","data":{"id":"987"}}`

	valid := "ts=1704908010,v1=" + gateway.Sign(secret, "987", "req-1", "1704908010")
	code, _ := ta.do(t, webhookRequest("/webhooks/mercadopago/invoice", body, map[string]string{"x-request-id": "req-1", "x-signature": valid}))
	assert.Equal(t, http.StatusCreated, code)

	forged := "ts=1704908010,v1=" + gateway.Sign("other", "987", "req-2", "1704908010")
	code, resp := ta.do(t, webhookRequest("/webhooks/mercadopago/invoice", body, map[string]string{"x-request-id": "req-2", "x-signature": forged}))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_signature", resp["error"])

	code, _ = ta.do(t, webhookRequest("/webhooks/mercadopago/invoice", body, map[string]string{"x-request-id": "req-3"}))
	assert.Equal(t, http.StatusUnauthorized, code)

	assert.Len(t, ta.webhooks.ingested, 1)
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	ta := newTestApp(t, nil)

	code, _ := ta.do(t, httptest.NewRequest(http.MethodPost, "/admin/webhooks/req-failed/replay", nil))
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodPost, "/admin/webhooks/req-failed/replay", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	code, _ = ta.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, code)

	req = httptest.NewRequest(http.MethodGet, "/admin/queue", nil)
	req.Header.Set("X-API-Key", adminToken)
	code, _ = ta.do(t, req)
	assert.Equal(t, http.StatusOK, code)

	closed := newTestApp(t, func(d *Dependencies) { d.AdminToken = "" })
	code, _ = closed.do(t, adminRequest(http.MethodGet, "/admin/queue"))
	assert.Equal(t, http.StatusServiceUnavailable, code)

	assert.Empty(t, ta.webhooks.replayed)
}

func TestAdminReplay(t *testing.T) {
	ta := newTestApp(t, nil)

	code, resp := ta.do(t, adminRequest(http.MethodPost, "/admin/webhooks/req-failed/replay"))
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "req-failed#replay-1", resp["request_id"])
	assert.Equal(t, "req-failed", resp["replay_of"])

	code, _ = ta.do(t, adminRequest(http.MethodPost, "/admin/webhooks/req-failed%23replay-1/replay"))
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, []string{"req-failed", "req-failed#replay-1"}, ta.webhooks.replayed)
}

func TestAdminReplay_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not failed", apperr.Conflict("webhook.Replay", "only failed requests can be replayed"), http.StatusConflict},
		{"unknown", apperr.NotFound("webhook", "webhook request not found"), http.StatusNotFound},
		{"store down", errors.New("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, nil)
			ta.webhooks.replayErr = tt.err
			code, _ := ta.do(t, adminRequest(http.MethodPost, "/admin/webhooks/req-1/replay"))
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestAdminWebhooks_List(t *testing.T) {
	ta := newTestApp(t, nil)

	code, resp := ta.do(t, adminRequest(http.MethodGet, "/admin/webhooks"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "failed", resp["status"])
	assert.Equal(t, float64(1), resp["count"])

	code, resp = ta.do(t, adminRequest(http.MethodGet, "/admin/webhooks?status=processed"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["count"])

	code, _ = ta.do(t, adminRequest(http.MethodGet, "/admin/webhooks?status=bogus"))
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = ta.do(t, adminRequest(http.MethodGet, "/admin/webhooks/req-done"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "processed", resp["status"])

	code, _ = ta.do(t, adminRequest(http.MethodGet, "/admin/webhooks/missing"))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminQueue(t *testing.T) {
	ta := newTestApp(t, nil)
	ctx := context.Background()

	q := jobqueue.NewQueueWithClient(ta.redis, jobqueue.Options{})
	job, err := q.EnqueueJob(ctx, jobqueue.JobTypeWebhookProcess, jobqueue.WebhookJobPayload{RequestID: "req-1", Type: "invoice"}.ToMap())
	require.NoError(t, err)
	_, err = q.EnqueueJob(ctx, jobqueue.JobTypeWebhookProcess, jobqueue.WebhookJobPayload{RequestID: "req-2", Type: "plan"}.ToMap())
	require.NoError(t, err)

	code, resp := ta.do(t, adminRequest(http.MethodGet, "/admin/queue"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), resp["pending"])
	assert.Equal(t, float64(0), resp["processing"])
	assert.Equal(t, float64(2), resp["jobs"])

	code, resp = ta.do(t, adminRequest(http.MethodGet, "/admin/queue/keys"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), resp["count"])

	code, _ = ta.do(t, adminRequest(http.MethodDelete, "/admin/queue/keys/job_queue"))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ta.do(t, adminRequest(http.MethodDelete, "/admin/queue/keys/"+jobqueue.JobKeyPrefix+job.ID))
	assert.Equal(t, http.StatusOK, code)
	code, _ = ta.do(t, adminRequest(http.MethodDelete, "/admin/queue/keys/"+jobqueue.JobKeyPrefix+job.ID))
	assert.Equal(t, http.StatusNotFound, code)
}
