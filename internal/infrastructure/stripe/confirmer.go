package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const secretSeparator = "_secret_"

type Options struct {
	SecretKey string
	ReturnURL string
	Timeout   time.Duration
	// Backends overrides the Stripe API endpoints, used in tests.
	Backends *stripe.Backends
}

// Confirmer confirms payment intents with Stripe on the shopper's behalf.
type Confirmer struct {
	api       *client.API
	returnURL string
	timeout   time.Duration
	logger    *logger.Logger
}

func NewConfirmer(opts Options, log *logger.Logger) *Confirmer {
	api := &client.API{}
	api.Init(opts.SecretKey, opts.Backends)

	return &Confirmer{
		api:       api,
		returnURL: opts.ReturnURL,
		timeout:   opts.Timeout,
		logger:    log,
	}
}

func (c *Confirmer) Confirm(ctx context.Context, intent checkout.PaymentIntent, paymentMethod string) (checkout.Confirmation, error) {
	id, err := PaymentIntentID(intent.ClientSecret)
	if err != nil {
		return checkout.Confirmation{}, &checkout.ProviderError{Err: err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if paymentMethod != "" {
		params.PaymentMethod = stripe.String(paymentMethod)
	}
	if c.returnURL != "" {
		params.ReturnURL = stripe.String(c.returnURL)
	}

	start := time.Now()
	pi, err := c.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		monitoring.ObserveUpstreamCall("stripe", "confirm", "error", time.Since(start))
		c.logger.Warn("Payment confirmation failed", "payment_id", id, "error", err)
		return checkout.Confirmation{}, toProviderError(err)
	}
	monitoring.ObserveUpstreamCall("stripe", "confirm", string(pi.Status), time.Since(start))

	return toConfirmation(pi), nil
}

// Retrieve asks Stripe for the current status of a payment. It is how a
// payment left in requires_action or processing gets resolved: the status
// always comes from the provider, never from the shopper's browser.
func (c *Confirmer) Retrieve(ctx context.Context, paymentID string) (checkout.Confirmation, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	start := time.Now()
	pi, err := c.api.PaymentIntents.Get(paymentID, params)
	if err != nil {
		monitoring.ObserveUpstreamCall("stripe", "retrieve", "error", time.Since(start))
		c.logger.Warn("Payment lookup failed", "payment_id", paymentID, "error", err)
		return checkout.Confirmation{}, toProviderError(err)
	}
	monitoring.ObserveUpstreamCall("stripe", "retrieve", string(pi.Status), time.Since(start))

	return toConfirmation(pi), nil
}

func toConfirmation(pi *stripe.PaymentIntent) checkout.Confirmation {
	confirmation := checkout.Confirmation{
		PaymentID: pi.ID,
		Status:    toPaymentStatus(pi.Status),
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		confirmation.NextActionURL = pi.NextAction.RedirectToURL.URL
	}
	return confirmation
}

// PaymentIntentID extracts the intent id from a client secret of the form
// "pi_123_secret_abc".
func PaymentIntentID(clientSecret string) (string, error) {
	idx := strings.Index(clientSecret, secretSeparator)
	if idx <= 0 {
		return "", fmt.Errorf("malformed client secret")
	}
	return clientSecret[:idx], nil
}

func toProviderError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &checkout.ProviderError{
			Message: stripeErr.Msg,
			Code:    string(stripeErr.Code),
			Err:     err,
		}
	}
	return &checkout.ProviderError{Err: err}
}

func toPaymentStatus(status stripe.PaymentIntentStatus) checkout.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return checkout.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return checkout.PaymentStatusProcessing
	case stripe.PaymentIntentStatusRequiresAction:
		return checkout.PaymentStatusRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return checkout.PaymentStatusRequiresPaymentMethod
	case stripe.PaymentIntentStatusCanceled:
		return checkout.PaymentStatusCanceled
	default:
		return checkout.PaymentStatus(status)
	}
}
