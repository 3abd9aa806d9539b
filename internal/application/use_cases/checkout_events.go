package use_cases

import (
	stderrors "errors"
	"fmt"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/cart"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/domain/errors"
)

type event interface {
	isEvent()
}

type startEvent struct {
	snapshot cart.Snapshot
}

type cartChangedEvent struct {
	snapshot cart.Snapshot
	reply    chan error
}

type submitEvent struct {
	clientSecret  string
	paymentMethod string
	reply         chan error
}

type resolveEvent struct {
	paymentID string
	reply     chan error
}

type configLoadedEvent struct {
	token  uint64
	config checkout.PaymentConfig
	err    error
}

type intentCreatedEvent struct {
	token  uint64
	intent checkout.PaymentIntent
	err    error
}

type paymentConfirmedEvent struct {
	token        uint64
	confirmation checkout.Confirmation
	err          error
}

type paymentRetrievedEvent struct {
	token        uint64
	confirmation checkout.Confirmation
	err          error
}

type orderCreatedEvent struct {
	token      uint64
	submission checkout.OrderSubmission
	err        error
}

func (startEvent) isEvent()            {}
func (cartChangedEvent) isEvent()      {}
func (submitEvent) isEvent()           {}
func (resolveEvent) isEvent()          {}
func (configLoadedEvent) isEvent()     {}
func (intentCreatedEvent) isEvent()    {}
func (paymentConfirmedEvent) isEvent() {}
func (paymentRetrievedEvent) isEvent() {}
func (orderCreatedEvent) isEvent()     {}

func (o *CheckoutOrchestrator) run() {
	defer close(o.done)

	for {
		select {
		case <-o.ctx.Done():
			o.teardown()
			return
		case ev := <-o.events:
			if o.ctx.Err() != nil {
				o.teardown()
				return
			}
			o.handle(ev)
		}
	}
}

func (o *CheckoutOrchestrator) teardown() {
	o.cancelIntent()
	for {
		select {
		case ev := <-o.events:
			replyClosed(ev)
		default:
			o.publish()
			o.log.Debug("Checkout session closed", "state", o.state.Kind)
			return
		}
	}
}

func replyClosed(ev event) {
	switch e := ev.(type) {
	case cartChangedEvent:
		e.reply <- errors.ErrSessionClosed
	case submitEvent:
		e.reply <- errors.ErrSessionClosed
	case resolveEvent:
		e.reply <- errors.ErrSessionClosed
	}
}

func (o *CheckoutOrchestrator) handle(ev event) {
	switch e := ev.(type) {
	case startEvent:
		o.onStart(e.snapshot)
	case cartChangedEvent:
		e.reply <- o.onCartChanged(e.snapshot)
	case submitEvent:
		e.reply <- o.onSubmit(e.clientSecret, e.paymentMethod)
	case resolveEvent:
		e.reply <- o.onResolve(e.paymentID)
	case configLoadedEvent:
		if o.isStale(e.token, "config") {
			return
		}
		o.onConfigLoaded(e.config, e.err)
	case intentCreatedEvent:
		if o.isStale(e.token, "intent") {
			return
		}
		o.onIntentCreated(e.intent, e.err)
	case paymentConfirmedEvent:
		if o.isStale(e.token, "confirmation") {
			return
		}
		o.onPaymentConfirmed(e.confirmation, e.err)
	case paymentRetrievedEvent:
		if o.isStale(e.token, "payment lookup") {
			return
		}
		o.onPaymentRetrieved(e.confirmation, e.err)
	case orderCreatedEvent:
		if o.isStale(e.token, "order") {
			return
		}
		o.onOrderCreated(e.submission, e.err)
	}
}

func (o *CheckoutOrchestrator) isStale(token uint64, effect string) bool {
	if token == o.token && o.ctx.Err() == nil {
		return false
	}
	o.log.Debug("Discarding stale effect result", "effect", effect, "token", token, "current_token", o.token)
	return true
}

// transition moves to next and publishes the new view. Moves not allowed
// by the state graph are logged and dropped.
func (o *CheckoutOrchestrator) transition(next checkout.State) bool {
	if !checkout.CanTransition(o.state.Kind, next.Kind) {
		o.log.Error("Rejected checkout transition", "from", o.state.Kind, "to", next.Kind)
		return false
	}

	o.state = next
	o.publish()

	if o.deps.Transitions != nil {
		o.deps.Transitions.Record(ports.Transition{SessionID: o.id, State: next, At: o.clock.Now()})
	}
	o.log.Info("Checkout transition", "state", next.Kind, "reason", next.Reason)
	return true
}

func (o *CheckoutOrchestrator) onStart(snapshot cart.Snapshot) {
	o.snapshot = snapshot
	if !snapshot.Checkoutable() {
		o.transition(checkout.EmptyCart())
		return
	}

	o.transition(checkout.State{Kind: checkout.KindLoadingConfig, Message: checkout.MessagePreparing})
	o.token++
	go o.loadConfig(o.token)
}

func (o *CheckoutOrchestrator) onConfigLoaded(config checkout.PaymentConfig, err error) {
	if err == nil && config.PublishableKey == "" {
		err = fmt.Errorf("%w: empty publishable key", errors.ErrConfigUnavailable)
	}
	if err != nil {
		o.log.Warn("Failed to load payment config", "error", err)
		o.transition(checkout.Failed(checkout.ReasonConfigUnavailable, checkout.MessageConfigUnavailable))
		return
	}

	o.config = config
	o.beginIntent()
}

// beginIntent requests an intent for the current snapshot total. Any intent
// held or requested before is superseded.
func (o *CheckoutOrchestrator) beginIntent() {
	o.supersedeIntent()

	amount := cart.ToMinorUnits(o.snapshot.Total())
	o.pendingAmount = amount
	if !o.transition(checkout.State{Kind: checkout.KindCreatingIntent, Message: checkout.MessagePreparing}) {
		return
	}

	if amount < 1 {
		o.log.Warn("Cart total rounds to zero minor units", "total", o.snapshot.Total().String())
		o.transition(checkout.Failed(checkout.ReasonIntentCreationFailed, checkout.MessageIntentFailed))
		return
	}

	o.token++
	go o.createIntent(o.newIntentContext(), o.token, amount, o.settings.Currency)
}

func (o *CheckoutOrchestrator) supersedeIntent() {
	o.cancelIntent()
	if o.intent != nil {
		o.superseded[o.intent.ClientSecret] = struct{}{}
		o.intent = nil
	}
}

func (o *CheckoutOrchestrator) onIntentCreated(intent checkout.PaymentIntent, err error) {
	o.cancelIntent()

	if err == nil && intent.ClientSecret == "" {
		err = fmt.Errorf("%w: empty client secret", errors.ErrIntentCreationFailed)
	}
	if err != nil {
		o.log.Warn("Failed to create payment intent", "error", err, "amount_minor", o.pendingAmount)
		o.transition(checkout.Failed(checkout.ReasonIntentCreationFailed, checkout.MessageIntentFailed))
		return
	}

	o.intent = &intent
	o.transition(checkout.State{Kind: checkout.KindAwaitingConfirmation})
}

func (o *CheckoutOrchestrator) onCartChanged(snapshot cart.Snapshot) error {
	switch o.state.Kind {
	case checkout.KindIdle:
		o.snapshot = snapshot
		return nil
	case checkout.KindLoadingConfig, checkout.KindCreatingIntent, checkout.KindAwaitingConfirmation:
	default:
		// From confirmation onward the order is built from the snapshot the
		// shopper paid for.
		return nil
	}

	if !snapshot.Checkoutable() {
		o.token++
		o.supersedeIntent()
		o.snapshot = snapshot
		o.transition(checkout.EmptyCart())
		return nil
	}

	previous := o.pendingAmount
	o.snapshot = snapshot
	if o.state.Is(checkout.KindLoadingConfig) {
		o.publish()
		return nil
	}

	if cart.ToMinorUnits(snapshot.Total()) == previous {
		o.publish()
		return nil
	}

	o.log.Info("Cart total changed, replacing payment intent",
		"previous_amount_minor", previous,
		"amount_minor", cart.ToMinorUnits(snapshot.Total()))
	o.beginIntent()
	return nil
}

func (o *CheckoutOrchestrator) onSubmit(clientSecret, paymentMethod string) error {
	if _, ok := o.superseded[clientSecret]; ok {
		return errors.ErrStaleIntent
	}
	if !o.state.Is(checkout.KindAwaitingConfirmation) || o.intent == nil {
		return errors.ErrNotAwaitingConfirmation
	}
	if clientSecret != o.intent.ClientSecret {
		return errors.ErrStaleIntent
	}

	if !o.transition(checkout.State{Kind: checkout.KindConfirmingPayment, Message: checkout.MessageProcessing}) {
		return errors.ErrNotAwaitingConfirmation
	}
	o.token++
	go o.confirmPayment(o.token, *o.intent, paymentMethod)
	return nil
}

func (o *CheckoutOrchestrator) onPaymentConfirmed(confirmation checkout.Confirmation, err error) {
	if err != nil {
		message := checkout.MessagePaymentFailed
		var providerErr *checkout.ProviderError
		if stderrors.As(err, &providerErr) && providerErr.Message != "" {
			message = providerErr.Message
		}
		o.log.Warn("Payment confirmation failed", "error", err, "payment_id", o.intent.PaymentID)
		o.transition(checkout.Failed(checkout.ReasonPaymentDeclined, message))
		return
	}

	o.applyPaymentStatus(confirmation)
}

// applyPaymentStatus acts on what the provider reported. Only a succeeded
// payment leads to an order; intermediate statuses park the session until
// the shopper asks for resolution.
func (o *CheckoutOrchestrator) applyPaymentStatus(confirmation checkout.Confirmation) {
	paymentID := confirmation.PaymentID
	if paymentID == "" {
		paymentID = o.intent.PaymentID
	}

	switch {
	case confirmation.Status == checkout.PaymentStatusSucceeded:
		o.awaitResolve = false
		o.nextAction = ""
		o.beginOrder(paymentID)
	case confirmation.Status.IsFailure():
		o.awaitResolve = false
		o.nextAction = ""
		o.log.Warn("Payment ended without a charge", "payment_id", paymentID, "status", confirmation.Status)
		o.transition(checkout.Failed(checkout.ReasonPaymentDeclined, checkout.MessagePaymentFailed))
	default:
		o.awaitResolve = true
		o.nextAction = confirmation.NextActionURL
		o.transition(checkout.State{
			Kind:    checkout.KindConfirmingPayment,
			Message: fmt.Sprintf("Payment status: %s", confirmation.Status),
		})
	}
}

func (o *CheckoutOrchestrator) onResolve(paymentID string) error {
	if !o.state.Is(checkout.KindConfirmingPayment) || !o.awaitResolve {
		return errors.ErrNotAwaitingResolution
	}
	if o.intent == nil || paymentID != o.intent.PaymentID {
		return errors.ErrPaymentMismatch
	}

	o.awaitResolve = false
	o.publish()
	o.token++
	go o.retrievePayment(o.token, paymentID)
	return nil
}

// onPaymentRetrieved applies the provider's answer to a resolution request.
// A failed lookup says nothing about the payment, so the session keeps
// waiting and the shopper may ask again.
func (o *CheckoutOrchestrator) onPaymentRetrieved(confirmation checkout.Confirmation, err error) {
	if err != nil {
		o.log.Warn("Payment lookup failed, still awaiting resolution", "error", err, "payment_id", o.intent.PaymentID)
		o.awaitResolve = true
		o.publish()
		return
	}
	o.applyPaymentStatus(confirmation)
}

func (o *CheckoutOrchestrator) beginOrder(paymentID string) {
	if !o.transition(checkout.State{Kind: checkout.KindCreatingOrder, Message: checkout.MessageCreatingOrder}) {
		return
	}

	submission := checkout.NewOrderSubmission(paymentID, o.snapshot)
	o.token++
	go o.createOrder(o.token, submission, cart.ToMinorUnits(o.snapshot.Total()))
}

func (o *CheckoutOrchestrator) onOrderCreated(submission checkout.OrderSubmission, err error) {
	if err != nil {
		o.transition(checkout.Failed(checkout.ReasonOrderCreationFailedAfterPayment, checkout.MessageOrderFailedSupport))
		return
	}

	if !o.transition(checkout.State{Kind: checkout.KindSucceeded, Message: checkout.MessageRedirecting}) {
		return
	}

	o.clearCart()

	redirect := checkout.Redirect{Location: o.settings.SuccessRedirect, Replace: true, FullReload: true}
	if o.deps.Navigator != nil {
		o.deps.Navigator.Navigate(o.ctx, o.id, redirect)
	}
	o.redirect = &redirect
	o.publish()
	o.log.Info("Checkout completed", "payment_id", submission.PaymentID, "redirect", o.redirect.Location)
}
