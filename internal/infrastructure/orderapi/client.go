package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/domain/errors"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const (
	configPath = "/api/orders/payments/config"
	intentPath = "/api/orders/payments/create-intent"
	orderPath  = "/api/orders/purchase"

	maxBodyBytes = 1 << 20
)

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client talks to the order service. Config and intent calls share a
// circuit breaker; order creation never goes through it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *logger.Logger
}

func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}

	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "orders-payments",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Order service breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			monitoring.RecordBreakerState(name, to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, context.Canceled)
		},
	})

	return c
}

// BreakerState reports the config/intent breaker: "closed", "half-open" or "open".
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

type configResponse struct {
	PublishableKey string `json:"publishableKey"`
}

func (c *Client) FetchConfig(ctx context.Context) (checkout.PaymentConfig, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, "config", http.MethodGet, configPath, nil, "")
	})
	if err != nil {
		return checkout.PaymentConfig{}, fmt.Errorf("%w: %v", errors.ErrConfigUnavailable, err)
	}

	var resp configResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return checkout.PaymentConfig{}, fmt.Errorf("%w: decode: %v", errors.ErrConfigUnavailable, err)
	}
	if resp.PublishableKey == "" {
		return checkout.PaymentConfig{}, fmt.Errorf("%w: empty publishable key", errors.ErrConfigUnavailable)
	}

	return checkout.PaymentConfig{PublishableKey: resp.PublishableKey}, nil
}

type intentRequest struct {
	Provider     string `json:"provider"`
	AmountFiat   int64  `json:"amountFiat"`
	CurrencyFiat string `json:"currencyFiat"`
}

type intentResponse struct {
	ClientSecret string `json:"clientSecret"`
	PaymentID    string `json:"paymentId"`
}

func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, credential string) (checkout.PaymentIntent, error) {
	if amountMinor < 1 {
		return checkout.PaymentIntent{}, fmt.Errorf("%w: amount must be positive, got %d", errors.ErrIntentCreationFailed, amountMinor)
	}

	payload, err := json.Marshal(intentRequest{
		Provider:     checkout.ProviderStripe,
		AmountFiat:   amountMinor,
		CurrencyFiat: currency,
	})
	if err != nil {
		return checkout.PaymentIntent{}, fmt.Errorf("%w: %v", errors.ErrIntentCreationFailed, err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, "create_intent", http.MethodPost, intentPath, payload, credential)
	})
	if err != nil {
		return checkout.PaymentIntent{}, fmt.Errorf("%w: %w", errors.ErrIntentCreationFailed, err)
	}

	var resp intentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return checkout.PaymentIntent{}, fmt.Errorf("%w: decode: %v", errors.ErrIntentCreationFailed, err)
	}
	if resp.ClientSecret == "" {
		return checkout.PaymentIntent{}, fmt.Errorf("%w: no client secret in response", errors.ErrIntentCreationFailed)
	}

	return checkout.PaymentIntent{
		ClientSecret: resp.ClientSecret,
		PaymentID:    resp.PaymentID,
		AmountMinor:  amountMinor,
		Currency:     currency,
	}, nil
}

// orderRequest is the purchase body. Items marshal their product ids in the
// JSON type the cart stored them with.
type orderRequest struct {
	Items     []checkout.OrderItem `json:"items"`
	PaymentID string               `json:"paymentId"`
}

// CreateOrder records the order for a confirmed payment. It is called at
// most once per payment and never retried.
func (c *Client) CreateOrder(ctx context.Context, submission checkout.OrderSubmission, credential string) error {
	items := submission.Items
	if items == nil {
		items = []checkout.OrderItem{}
	}

	payload, err := json.Marshal(orderRequest{Items: items, PaymentID: submission.PaymentID})
	if err != nil {
		return &checkout.OrderCreationError{Err: err}
	}

	if _, err := c.do(ctx, "purchase", http.MethodPost, orderPath, payload, credential); err != nil {
		var statusErr *statusError
		if stderrors.As(err, &statusErr) {
			return &checkout.OrderCreationError{Status: statusErr.status, Detail: statusErr.body}
		}
		return &checkout.OrderCreationError{Err: err}
	}
	return nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, payload []byte, credential string) ([]byte, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		monitoring.ObserveUpstreamCall("orders", endpoint, outcome, time.Since(start))
	}()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	outcome = strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("Order service returned error", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, &statusError{status: resp.StatusCode, body: string(body)}
	}
	return body, nil
}
