package use_cases

import (
	"context"
	stderrors "errors"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/domain/errors"
	"github.com/yuzvak/checkout-service/internal/pkg/generator"
)

var reconciliationIDs = generator.NewIDGenerator()

func (o *CheckoutOrchestrator) loadConfig(token uint64) {
	config, err := o.deps.Config.FetchConfig(o.ctx)
	o.post(configLoadedEvent{token: token, config: config, err: err})
}

func (o *CheckoutOrchestrator) newIntentContext() context.Context {
	ctx, cancel := context.WithCancel(o.ctx)
	o.intentCancel = cancel
	return ctx
}

func (o *CheckoutOrchestrator) cancelIntent() {
	if o.intentCancel != nil {
		o.intentCancel()
		o.intentCancel = nil
	}
}

func (o *CheckoutOrchestrator) createIntent(ctx context.Context, token uint64, amountMinor int64, currency string) {
	intent, err := o.deps.Intents.CreateIntent(ctx, amountMinor, currency, o.credential)
	if err == nil {
		intent.AmountMinor = amountMinor
		intent.Currency = currency
	}
	o.post(intentCreatedEvent{token: token, intent: intent, err: err})
}

// confirmPayment is not cancelled by teardown: once the provider call is
// made, abandoning it midway leaves the charge state unknown.
func (o *CheckoutOrchestrator) confirmPayment(token uint64, intent checkout.PaymentIntent, paymentMethod string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), o.settings.ConfirmTimeout)
	defer cancel()

	confirmation, err := o.deps.Confirmer.Confirm(ctx, intent, paymentMethod)
	if !o.post(paymentConfirmedEvent{token: token, confirmation: confirmation, err: err}) && err == nil {
		o.log.Warn("Payment confirmed after checkout session closed",
			"payment_id", intent.PaymentID,
			"status", confirmation.Status)
	}
}

// retrievePayment looks the payment up with the provider. It is read-only,
// so teardown may cancel it.
func (o *CheckoutOrchestrator) retrievePayment(token uint64, paymentID string) {
	ctx, cancel := context.WithTimeout(o.ctx, o.settings.ConfirmTimeout)
	defer cancel()

	confirmation, err := o.deps.Confirmer.Retrieve(ctx, paymentID)
	o.post(paymentRetrievedEvent{token: token, confirmation: confirmation, err: err})
}

// createOrder submits the order exactly once. A failure is logged in full
// and recorded for reconciliation here, so the record survives teardown.
func (o *CheckoutOrchestrator) createOrder(token uint64, submission checkout.OrderSubmission, amountMinor int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), o.settings.OrderTimeout)
	defer cancel()

	err := o.deps.Orders.CreateOrder(ctx, submission, o.credential)
	if err != nil {
		recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(o.ctx), o.settings.ClearTimeout)
		o.recordOrderFailure(recordCtx, submission, amountMinor, err)
		cancelRecord()
	}
	o.post(orderCreatedEvent{token: token, submission: submission, err: err})
}

func (o *CheckoutOrchestrator) recordOrderFailure(ctx context.Context, submission checkout.OrderSubmission, amountMinor int64, cause error) {
	detail := cause.Error()
	var orderErr *checkout.OrderCreationError
	if stderrors.As(cause, &orderErr) && orderErr.Detail != "" {
		detail = orderErr.Detail
	}

	o.log.Error("Order creation failed after payment",
		"error", cause,
		"payment_id", submission.PaymentID,
		"items", submission.Items,
		"identity", o.identity.String(),
		"amount_minor", amountMinor,
		"currency", o.settings.Currency,
		"detail", detail,
	)

	if o.deps.Reconciliations == nil {
		return
	}

	rec := &ports.Reconciliation{
		ID:          reconciliationIDs.GenerateReconciliationID().String(),
		SessionID:   o.id,
		CartKey:     o.identity.Key(),
		Submission:  submission,
		AmountMinor: amountMinor,
		Currency:    o.settings.Currency,
		Detail:      detail,
		CreatedAt:   o.clock.Now(),
	}
	if err := o.deps.Reconciliations.Record(ctx, rec); err != nil {
		if stderrors.Is(err, errors.ErrReconciliationExists) {
			o.log.Warn("Reconciliation already recorded", "payment_id", submission.PaymentID)
			return
		}
		o.log.Error("Failed to record reconciliation", "error", err, "payment_id", submission.PaymentID)
	}
}

// clearCart deletes the persisted cart entry. It runs on the loop goroutine
// so the clear is finished before the redirect is published.
func (o *CheckoutOrchestrator) clearCart() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), o.settings.ClearTimeout)
	defer cancel()

	if err := o.deps.Carts.Clear(ctx, o.identity); err != nil {
		o.log.Error("Failed to clear cart after order", "error", err)
	}
}
