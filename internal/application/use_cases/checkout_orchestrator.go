package use_cases

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/cart"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/domain/errors"
	"github.com/yuzvak/checkout-service/internal/domain/user"
	"github.com/yuzvak/checkout-service/internal/pkg/clock"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

type CheckoutDependencies struct {
	Config    ports.PaymentConfigClient
	Intents   ports.IntentClient
	Confirmer ports.PaymentConfirmer
	Orders    ports.OrderClient
	Carts     ports.CartKeyspace

	// Optional.
	Reconciliations ports.ReconciliationRepository
	Transitions     ports.TransitionRecorder
	Navigator       ports.Navigator
}

type CheckoutSettings struct {
	Currency        string
	SuccessRedirect string
	ConfirmTimeout  time.Duration
	OrderTimeout    time.Duration
	ClearTimeout    time.Duration
}

func (s CheckoutSettings) withDefaults() CheckoutSettings {
	if s.Currency == "" {
		s.Currency = "SEK"
	}
	if s.SuccessRedirect == "" {
		s.SuccessRedirect = "/horoscope"
	}
	if s.ConfirmTimeout <= 0 {
		s.ConfirmTimeout = 30 * time.Second
	}
	if s.OrderTimeout <= 0 {
		s.OrderTimeout = 10 * time.Second
	}
	if s.ClearTimeout <= 0 {
		s.ClearTimeout = 5 * time.Second
	}
	return s
}

// View is the published, read-only picture of a checkout session.
// ClientSecret is only set while awaiting confirmation. AwaitingResolution
// and NextActionURL are set while a confirmed payment waits for the provider
// to settle it.
type View struct {
	SessionID          string
	State              checkout.State
	PublishableKey     string
	ClientSecret       string
	PaymentID          string
	AwaitingResolution bool
	NextActionURL      string
	AmountMinor        int64
	Currency           string
	Total              decimal.Decimal
	ItemCount          int
	Redirect           *checkout.Redirect
	Closed             bool
	Version            uint64
	UpdatedAt          time.Time
}

// CheckoutOrchestrator drives one checkout attempt. All state is owned by a
// single loop goroutine; effects run concurrently and report back through
// events tagged with the token that was current when they started.
type CheckoutOrchestrator struct {
	id         string
	identity   cart.Identity
	credential string

	deps     CheckoutDependencies
	settings CheckoutSettings
	log      *logger.Logger
	clock    clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	done   chan struct{}
	start  sync.Once

	view     atomic.Pointer[View]
	viewMu   sync.Mutex
	changed  chan struct{}
	lastSeen atomic.Int64

	// loop-owned
	state         checkout.State
	snapshot      cart.Snapshot
	config        checkout.PaymentConfig
	intent        *checkout.PaymentIntent
	pendingAmount int64
	superseded    map[string]struct{}
	token         uint64
	intentCancel  context.CancelFunc
	awaitResolve  bool
	nextAction    string
	redirect      *checkout.Redirect
	version       uint64
}

func NewCheckoutOrchestrator(
	id string,
	session user.Session,
	deps CheckoutDependencies,
	settings CheckoutSettings,
	log *logger.Logger,
	clk clock.Clock,
) *CheckoutOrchestrator {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	identity := user.ResolveCartIdentity(session)
	ctx, cancel := context.WithCancel(context.Background())

	o := &CheckoutOrchestrator{
		id:         id,
		identity:   identity,
		credential: session.Token,
		deps:       deps,
		settings:   settings.withDefaults(),
		log:        log.With("checkout_session", id, "cart_key", identity.Key()),
		clock:      clk,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan event, 16),
		done:       make(chan struct{}),
		changed:    make(chan struct{}),
		state:      checkout.Idle(),
		superseded: make(map[string]struct{}),
	}
	o.touch()
	o.publish()
	go o.run()
	return o
}

func (o *CheckoutOrchestrator) ID() string {
	return o.id
}

func (o *CheckoutOrchestrator) Identity() cart.Identity {
	return o.identity
}

// Start begins the attempt with the given cart snapshot. Only the first call
// has an effect.
func (o *CheckoutOrchestrator) Start(snapshot cart.Snapshot) {
	o.start.Do(func() {
		o.post(startEvent{snapshot: snapshot})
	})
}

// CartChanged feeds a fresh cart snapshot into the attempt.
func (o *CheckoutOrchestrator) CartChanged(ctx context.Context, snapshot cart.Snapshot) error {
	o.touch()
	return o.request(ctx, func(reply chan error) event {
		return cartChangedEvent{snapshot: snapshot, reply: reply}
	})
}

// Submit hands the payment form result to the orchestrator. The client
// secret must be the one currently exposed by the view.
func (o *CheckoutOrchestrator) Submit(ctx context.Context, clientSecret, paymentMethod string) error {
	o.touch()
	return o.request(ctx, func(reply chan error) event {
		return submitEvent{clientSecret: clientSecret, paymentMethod: paymentMethod, reply: reply}
	})
}

// Resolve asks the provider for the current status of a payment that
// confirmation left in an intermediate status, typically after the shopper
// returns from a 3-D Secure redirect. The outcome is published to the view.
func (o *CheckoutOrchestrator) Resolve(ctx context.Context, paymentID string) error {
	o.touch()
	return o.request(ctx, func(reply chan error) event {
		return resolveEvent{paymentID: paymentID, reply: reply}
	})
}

// Close tears the attempt down and waits for the loop to exit. Results of
// in-flight effects are discarded.
func (o *CheckoutOrchestrator) Close() {
	o.cancel()
	<-o.done
}

func (o *CheckoutOrchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *CheckoutOrchestrator) View() View {
	return *o.view.Load()
}

// Await blocks until the published view satisfies pred, the session ends, or
// ctx is done.
func (o *CheckoutOrchestrator) Await(ctx context.Context, pred func(View) bool) (View, error) {
	for {
		o.viewMu.Lock()
		v := *o.view.Load()
		changed := o.changed
		o.viewMu.Unlock()

		if pred(v) {
			return v, nil
		}
		if v.Closed {
			return v, errors.ErrSessionClosed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// LastSeen is the last time a caller interacted with the session.
func (o *CheckoutOrchestrator) LastSeen() time.Time {
	return time.Unix(0, o.lastSeen.Load()).UTC()
}

func (o *CheckoutOrchestrator) touch() {
	o.lastSeen.Store(o.clock.Now().UnixNano())
}

func (o *CheckoutOrchestrator) Touch() {
	o.touch()
}

func (o *CheckoutOrchestrator) request(ctx context.Context, build func(chan error) event) error {
	if o.ctx.Err() != nil {
		return errors.ErrSessionClosed
	}
	reply := make(chan error, 1)
	select {
	case o.events <- build(reply):
	case <-o.ctx.Done():
		return errors.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		select {
		case err := <-reply:
			return err
		default:
			return errors.ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an effect result to the loop. It reports false when the
// session was torn down before the result could be delivered.
func (o *CheckoutOrchestrator) post(ev event) bool {
	select {
	case o.events <- ev:
		return true
	case <-o.ctx.Done():
		return false
	}
}

func (o *CheckoutOrchestrator) publish() {
	v := &View{
		SessionID:   o.id,
		State:       o.state,
		Currency:    o.settings.Currency,
		Total:       o.snapshot.Total(),
		ItemCount:   o.snapshot.ItemCount(),
		AmountMinor: cart.ToMinorUnits(o.snapshot.Total()),
		Redirect:    o.redirect,
		Closed:      o.ctx.Err() != nil,
		UpdatedAt:   o.clock.Now(),
	}
	v.PublishableKey = o.config.PublishableKey
	if o.intent != nil {
		v.PaymentID = o.intent.PaymentID
		v.AmountMinor = o.intent.AmountMinor
		if o.state.Is(checkout.KindAwaitingConfirmation) {
			v.ClientSecret = o.intent.ClientSecret
		}
	}
	if o.awaitResolve && o.state.Is(checkout.KindConfirmingPayment) {
		v.AwaitingResolution = true
		v.NextActionURL = o.nextAction
	}

	o.viewMu.Lock()
	o.version++
	v.Version = o.version
	o.view.Store(v)
	close(o.changed)
	o.changed = make(chan struct{})
	o.viewMu.Unlock()
}
