package use_cases

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/cart"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/domain/user"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const awaitTimeout = 2 * time.Second

// callLog records the order in which collaborators were called.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type fakeConfigClient struct {
	log    *callLog
	config checkout.PaymentConfig
	err    error
}

func (f *fakeConfigClient) FetchConfig(ctx context.Context) (checkout.PaymentConfig, error) {
	f.log.add("config")
	return f.config, f.err
}

type intentCall struct {
	ctx         context.Context
	amountMinor int64
	currency    string
	credential  string
}

type fakeIntentClient struct {
	log *callLog

	mu      sync.Mutex
	calls   []intentCall
	respond func(call intentCall, n int) (checkout.PaymentIntent, error)
}

func (f *fakeIntentClient) CreateIntent(ctx context.Context, amountMinor int64, currency, credential string) (checkout.PaymentIntent, error) {
	f.log.add("intent")
	call := intentCall{ctx: ctx, amountMinor: amountMinor, currency: currency, credential: credential}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	n := len(f.calls)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(call, n)
	}
	return defaultIntent(n), nil
}

func (f *fakeIntentClient) recorded() []intentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]intentCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func defaultIntent(n int) checkout.PaymentIntent {
	return checkout.PaymentIntent{
		ClientSecret: fmt.Sprintf("pi_%d_secret_abc", n),
		PaymentID:    fmt.Sprintf("pi_%d", n),
	}
}

type fakeConfirmer struct {
	log *callLog

	mu       sync.Mutex
	intents  []checkout.PaymentIntent
	methods  []string
	respond  func(ctx context.Context, intent checkout.PaymentIntent) (checkout.Confirmation, error)
	released chan struct{}
	lookups  []string
	retrieve func(ctx context.Context, paymentID string) (checkout.Confirmation, error)
}

func (f *fakeConfirmer) Confirm(ctx context.Context, intent checkout.PaymentIntent, paymentMethod string) (checkout.Confirmation, error) {
	f.log.add("confirm")
	f.mu.Lock()
	f.intents = append(f.intents, intent)
	f.methods = append(f.methods, paymentMethod)
	respond := f.respond
	f.mu.Unlock()

	if f.released != nil {
		<-f.released
	}
	if respond != nil {
		return respond(ctx, intent)
	}
	return checkout.Confirmation{PaymentID: intent.PaymentID, Status: checkout.PaymentStatusSucceeded}, nil
}

func (f *fakeConfirmer) Retrieve(ctx context.Context, paymentID string) (checkout.Confirmation, error) {
	f.log.add("retrieve")
	f.mu.Lock()
	f.lookups = append(f.lookups, paymentID)
	retrieve := f.retrieve
	f.mu.Unlock()

	if retrieve != nil {
		return retrieve(ctx, paymentID)
	}
	return checkout.Confirmation{PaymentID: paymentID, Status: checkout.PaymentStatusSucceeded}, nil
}

// reports makes Retrieve answer with the given statuses in order, repeating
// the last one once they run out.
func (f *fakeConfirmer) reports(statuses ...checkout.PaymentStatus) {
	var mu sync.Mutex
	f.retrieve = func(_ context.Context, paymentID string) (checkout.Confirmation, error) {
		mu.Lock()
		defer mu.Unlock()
		status := statuses[0]
		if len(statuses) > 1 {
			statuses = statuses[1:]
		}
		return checkout.Confirmation{PaymentID: paymentID, Status: status}, nil
	}
}

func (f *fakeConfirmer) lookedUp() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lookups))
	copy(out, f.lookups)
	return out
}

func (f *fakeConfirmer) confirmed() []checkout.PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]checkout.PaymentIntent, len(f.intents))
	copy(out, f.intents)
	return out
}

type fakeOrderClient struct {
	log *callLog

	mu          sync.Mutex
	submissions []checkout.OrderSubmission
	credentials []string
	err         error
}

func (f *fakeOrderClient) CreateOrder(ctx context.Context, submission checkout.OrderSubmission, credential string) error {
	f.log.add("order")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, submission)
	f.credentials = append(f.credentials, credential)
	return f.err
}

func (f *fakeOrderClient) submitted() []checkout.OrderSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]checkout.OrderSubmission, len(f.submissions))
	copy(out, f.submissions)
	return out
}

type fakeCartStore struct {
	log *callLog

	mu      sync.Mutex
	carts   map[string]cart.Snapshot
	cleared []cart.Identity
	readErr error
	err     error
}

func newFakeCartStore(log *callLog) *fakeCartStore {
	return &fakeCartStore{log: log, carts: make(map[string]cart.Snapshot)}
}

func (f *fakeCartStore) put(identity cart.Identity, snapshot cart.Snapshot) {
	f.mu.Lock()
	f.carts[identity.Key()] = snapshot
	f.mu.Unlock()
}

func (f *fakeCartStore) Snapshot(ctx context.Context, identity cart.Identity) (cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return cart.Snapshot{}, f.readErr
	}
	return f.carts[identity.Key()], nil
}

func (f *fakeCartStore) Clear(ctx context.Context, identity cart.Identity) error {
	f.log.add("clear")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, identity)
	if f.err != nil {
		return f.err
	}
	delete(f.carts, identity.Key())
	return nil
}

func (f *fakeCartStore) clears() []cart.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]cart.Identity, len(f.cleared))
	copy(out, f.cleared)
	return out
}

type fakeNavigator struct {
	log *callLog

	mu        sync.Mutex
	redirects []checkout.Redirect
}

func (f *fakeNavigator) Navigate(ctx context.Context, sessionID string, redirect checkout.Redirect) {
	f.log.add("redirect")
	f.mu.Lock()
	f.redirects = append(f.redirects, redirect)
	f.mu.Unlock()
}

func (f *fakeNavigator) navigated() []checkout.Redirect {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]checkout.Redirect, len(f.redirects))
	copy(out, f.redirects)
	return out
}

type fakeReconciliations struct {
	mu      sync.Mutex
	records []*ports.Reconciliation
}

func (f *fakeReconciliations) Record(ctx context.Context, rec *ports.Reconciliation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeReconciliations) List(ctx context.Context, limit, offset int) ([]*ports.Reconciliation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, nil
}

func (f *fakeReconciliations) recorded() []*ports.Reconciliation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*ports.Reconciliation, len(f.records))
	copy(out, f.records)
	return out
}

type fakeTransitions struct {
	mu    sync.Mutex
	kinds []checkout.Kind
}

func (f *fakeTransitions) Record(t ports.Transition) {
	f.mu.Lock()
	f.kinds = append(f.kinds, t.State.Kind)
	f.mu.Unlock()
}

func (f *fakeTransitions) recorded() []checkout.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]checkout.Kind, len(f.kinds))
	copy(out, f.kinds)
	return out
}

type harness struct {
	calls        *callLog
	config       *fakeConfigClient
	intents      *fakeIntentClient
	confirmer    *fakeConfirmer
	orders       *fakeOrderClient
	carts        *fakeCartStore
	navigator    *fakeNavigator
	reconciled   *fakeReconciliations
	transitions  *fakeTransitions
	settings     CheckoutSettings
	orchestrator *CheckoutOrchestrator
}

func newHarness() *harness {
	calls := &callLog{}
	return &harness{
		calls:       calls,
		config:      &fakeConfigClient{log: calls, config: checkout.PaymentConfig{PublishableKey: "pk_test_123"}},
		intents:     &fakeIntentClient{log: calls},
		confirmer:   &fakeConfirmer{log: calls},
		orders:      &fakeOrderClient{log: calls},
		carts:       newFakeCartStore(calls),
		navigator:   &fakeNavigator{log: calls},
		reconciled:  &fakeReconciliations{},
		transitions: &fakeTransitions{},
		settings:    CheckoutSettings{Currency: "SEK", SuccessRedirect: "/horoscope"},
	}
}

func (h *harness) deps() CheckoutDependencies {
	return CheckoutDependencies{
		Config:          h.config,
		Intents:         h.intents,
		Confirmer:       h.confirmer,
		Orders:          h.orders,
		Carts:           h.carts,
		Reconciliations: h.reconciled,
		Transitions:     h.transitions,
		Navigator:       h.navigator,
	}
}

func (h *harness) start(t *testing.T, session user.Session, snapshot cart.Snapshot) *CheckoutOrchestrator {
	t.Helper()
	o := NewCheckoutOrchestrator("session-1", session, h.deps(), h.settings, logger.NewNop(), nil)
	t.Cleanup(o.Close)
	h.orchestrator = o
	o.Start(snapshot)
	return o
}

func awaitKind(t *testing.T, o *CheckoutOrchestrator, kind checkout.Kind) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), awaitTimeout)
	defer cancel()

	v, err := o.Await(ctx, func(v View) bool { return v.State.Is(kind) })
	require.NoError(t, err, "waiting for %s, last state %s", kind, v.State.Kind)
	return v
}

func awaitView(t *testing.T, o *CheckoutOrchestrator, pred func(View) bool) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), awaitTimeout)
	defer cancel()

	v, err := o.Await(ctx, pred)
	require.NoError(t, err, "last state %s", v.State.Kind)
	return v
}

func item(id string, price string, qty int) cart.LineItem {
	return cart.LineItem{ID: id, Name: "Sign " + id, UnitPrice: decimal.RequireFromString(price), Qty: qty}
}

func snapshotOf(items ...cart.LineItem) cart.Snapshot {
	return cart.NewSnapshot(items)
}
