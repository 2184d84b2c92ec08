package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/env"
)

const defaultMercadoPagoAPIBaseURL = "https://api.mercadopago.com"

// Client returns the authoritative state of a payment from the gateway.
type Client interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	GetMerchantOrder(ctx context.Context, orderID string) (*MerchantOrder, error)
}

// Payment is the subset of the gateway payment resource the reconcilers use.
type Payment struct {
	ID                FlexibleID      `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	PaymentMethodID   string          `json:"payment_method_id"`
	PreferenceID      string          `json:"preference_id"`
	DateCreated       *time.Time      `json:"date_created"`
	DateApproved      *time.Time      `json:"date_approved"`
	DateLastUpdated   *time.Time      `json:"date_last_updated"`
	Order             struct {
		ID   FlexibleID `json:"id"`
		Type string     `json:"type"`
	} `json:"order"`
}

// LastUpdated is the best available timestamp of the payment's current state.
func (p *Payment) LastUpdated() *time.Time {
	switch {
	case p.DateLastUpdated != nil:
		return p.DateLastUpdated
	case p.DateApproved != nil:
		return p.DateApproved
	default:
		return p.DateCreated
	}
}

// TransactionDate is the approval date, or the creation date while pending.
func (p *Payment) TransactionDate() *time.Time {
	if p.DateApproved != nil {
		return p.DateApproved
	}
	return p.DateCreated
}

type MerchantOrder struct {
	ID                FlexibleID      `json:"id"`
	Status            string          `json:"status"`
	OrderStatus       string          `json:"order_status"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	LastUpdated       *time.Time      `json:"last_updated"`
	ExternalReference string          `json:"external_reference"`
}

// FlexibleID accepts ids sent either as JSON numbers or strings.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		s = ""
	}
	*f = FlexibleID(s)
	return nil
}

func (f FlexibleID) String() string { return string(f) }

// MercadoPagoClient talks to the MercadoPago REST API. Calls go through a
// circuit breaker so a gateway outage fails jobs fast instead of piling up
// slow requests.
type MercadoPagoClient struct {
	APIBaseURL  string
	AccessToken string
	HTTPClient  *http.Client

	breaker *gobreaker.CircuitBreaker
}

func NewMercadoPagoClient(baseURL, accessToken string, httpClient *http.Client) *MercadoPagoClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultMercadoPagoAPIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &MercadoPagoClient{
		APIBaseURL:  strings.TrimRight(baseURL, "/"),
		AccessToken: strings.TrimSpace(accessToken),
		HTTPClient:  httpClient,
		breaker:     newBreaker("mercadopago"),
	}
}

func NewMercadoPagoClientFromEnv() *MercadoPagoClient {
	return NewMercadoPagoClient(
		env.GetEnv("MERCADOPAGO_API_BASE_URL", defaultMercadoPagoAPIBaseURL),
		env.GetEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
		&http.Client{Timeout: env.GetEnvDuration("MERCADOPAGO_HTTP_TIMEOUT", 15*time.Second)},
	)
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only infrastructure failures count against the gateway.
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.IsKind(err, apperr.KindTransient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("[Gateway] Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})
}

// BreakerState exposes the breaker state for health reporting.
func (c *MercadoPagoClient) BreakerState() string {
	return c.breaker.State().String()
}

func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, apperr.Validation("gateway.GetPayment", "payment id is required")
	}
	var out Payment
	if err := c.get(ctx, "/v1/payments/"+id, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = FlexibleID(id)
	}
	return &out, nil
}

func (c *MercadoPagoClient) GetMerchantOrder(ctx context.Context, orderID string) (*MerchantOrder, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, apperr.Validation("gateway.GetMerchantOrder", "merchant order id is required")
	}
	var out MerchantOrder
	if err := c.get(ctx, "/merchant_orders/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *MercadoPagoClient) get(ctx context.Context, path string, out interface{}) error {
	if c.AccessToken == "" {
		return apperr.Permanent("gateway", errors.New("MERCADOPAGO_ACCESS_TOKEN is not configured"))
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, path)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Transient("gateway", err)
	}
	if err != nil {
		return err
	}

	raw, _ := body.([]byte)
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Permanent("gateway", fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func (c *MercadoPagoClient) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+path, nil)
	if err != nil {
		return nil, apperr.Permanent("gateway", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperr.Transient("gateway", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.NotFound("gateway", "%s not found", path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperr.Transient("gateway", fmt.Errorf("request %s failed: status=%d body=%s", path, resp.StatusCode, string(body)))
	default:
		return nil, apperr.Permanent("gateway", fmt.Errorf("request %s failed: status=%d body=%s", path, resp.StatusCode, string(body)))
	}
}
