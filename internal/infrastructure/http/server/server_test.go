package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzvak/checkout-service/internal/application/commands"
	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/application/use_cases"
	"github.com/yuzvak/checkout-service/internal/config"
	"github.com/yuzvak/checkout-service/internal/domain/cart"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/domain/notification"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/handlers"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

type stubPayments struct {
	mu            sync.Mutex
	intents       int
	requireAction bool
	lookups       int
}

func (s *stubPayments) FetchConfig(ctx context.Context) (checkout.PaymentConfig, error) {
	return checkout.PaymentConfig{PublishableKey: "pk_test_123"}, nil
}

func (s *stubPayments) CreateIntent(ctx context.Context, amountMinor int64, currency, credential string) (checkout.PaymentIntent, error) {
	s.mu.Lock()
	s.intents++
	n := s.intents
	s.mu.Unlock()
	return checkout.PaymentIntent{ClientSecret: fmt.Sprintf("pi_%d_secret_abc", n), PaymentID: fmt.Sprintf("pi_%d", n)}, nil
}

func (s *stubPayments) Confirm(ctx context.Context, intent checkout.PaymentIntent, paymentMethod string) (checkout.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requireAction {
		return checkout.Confirmation{
			PaymentID:     intent.PaymentID,
			Status:        checkout.PaymentStatusRequiresAction,
			NextActionURL: "https://hooks.stripe.test/3ds/" + intent.PaymentID,
		}, nil
	}
	return checkout.Confirmation{PaymentID: intent.PaymentID, Status: checkout.PaymentStatusSucceeded}, nil
}

func (s *stubPayments) Retrieve(ctx context.Context, paymentID string) (checkout.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	return checkout.Confirmation{PaymentID: paymentID, Status: checkout.PaymentStatusSucceeded}, nil
}

func (s *stubPayments) lookedUp() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *stubPayments) CreateOrder(ctx context.Context, submission checkout.OrderSubmission, credential string) error {
	return nil
}

type stubCarts struct {
	mu    sync.Mutex
	carts map[string]cart.Snapshot
}

func (s *stubCarts) put(identity cart.Identity, snapshot cart.Snapshot) {
	s.mu.Lock()
	s.carts[identity.Key()] = snapshot
	s.mu.Unlock()
}

func (s *stubCarts) Snapshot(ctx context.Context, identity cart.Identity) (cart.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[identity.Key()], nil
}

func (s *stubCarts) Clear(ctx context.Context, identity cart.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, identity.Key())
	return nil
}

type stubReconciliations struct {
	records []*ports.Reconciliation
}

func (s *stubReconciliations) Record(ctx context.Context, rec *ports.Reconciliation) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *stubReconciliations) List(ctx context.Context, limit, offset int) ([]*ports.Reconciliation, error) {
	return s.records, nil
}

type stubHistory struct {
	transitions map[string][]ports.Transition
}

func (s *stubHistory) History(ctx context.Context, sessionID string) ([]ports.Transition, error) {
	return s.transitions[sessionID], nil
}

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

type testEnv struct {
	server   *Server
	handler  http.Handler
	payments *stubPayments
	carts    *stubCarts
	registry *use_cases.SessionRegistry
	recs     *stubReconciliations
	history  *stubHistory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, config.ServerConfig{Port: 8080, ExposeSupport: true})
}

func newTestEnvWith(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()
	log := logger.NewNop()
	payments := &stubPayments{}
	carts := &stubCarts{carts: make(map[string]cart.Snapshot)}
	recs := &stubReconciliations{}
	history := &stubHistory{transitions: make(map[string][]ports.Transition)}

	deps := use_cases.CheckoutDependencies{
		Config:          payments,
		Intents:         payments,
		Confirmer:       payments,
		Orders:          payments,
		Carts:           carts,
		Reconciliations: recs,
	}
	registry := use_cases.NewSessionRegistry(carts, deps, use_cases.CheckoutSettings{}, use_cases.RegistryLimits{
		SessionTTL:        time.Minute,
		TerminalRetention: time.Minute,
	}, nil, log)
	t.Cleanup(registry.CloseAll)

	checkoutHandler := handlers.NewCheckoutHandler(
		commands.NewStartCheckoutHandler(registry, log),
		commands.NewConfirmPaymentHandler(registry, log),
		commands.NewResolvePaymentHandler(registry, log),
		commands.NewCheckoutSessionHandler(registry, log),
		log,
	)

	srv := NewServer(cfg, Handlers{
		Health:        handlers.NewHealthHandler(okPinger{}, okPinger{}, registry, log),
		Checkout:      checkoutHandler,
		Notifications: handlers.NewNotificationHandler(notification.NewQueue(time.Minute, nil), nil, log),
		Support:       handlers.NewSupportHandler(recs, history, log),
	}, log)

	return &testEnv{server: srv, handler: srv.Handler(), payments: payments, carts: carts, registry: registry, recs: recs, history: history}
}

func (e *testEnv) do(t *testing.T, method, path, email string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("Authorization", "Bearer token-"+email)
		req.Header.Set("X-User-Email", email)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) commands.CheckoutResponse {
	t.Helper()
	var view commands.CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view), rec.Body.String())
	return view
}

// pollUntil long-polls the session until pred holds.
func (e *testEnv) pollUntil(t *testing.T, id, email string, pred func(commands.CheckoutResponse) bool) commands.CheckoutResponse {
	t.Helper()
	var version uint64
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		path := fmt.Sprintf("/api/checkout/sessions/%s", id)
		if version > 0 {
			path += fmt.Sprintf("?after=%d&wait=1s", version)
		}
		rec := e.do(t, http.MethodGet, path, email, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		view := decodeView(t, rec)
		if pred(view) {
			return view
		}
		version = view.Version
	}
	t.Fatal("condition not reached")
	return commands.CheckoutResponse{}
}

func lineItem(id string, price string, qty int) cart.LineItem {
	return cart.LineItem{ID: id, Name: "Sign " + id, UnitPrice: decimal.RequireFromString(price), Qty: qty}
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	email := "ann@example.com"
	env.carts.put(cart.OwnerIdentity(email), cart.NewSnapshot([]cart.LineItem{lineItem("1", "10.0", 2)}))

	rec := env.do(t, http.MethodPost, "/api/checkout/sessions", email, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeView(t, rec)
	require.NotEmpty(t, started.SessionID)

	ready := env.pollUntil(t, started.SessionID, email, func(v commands.CheckoutResponse) bool {
		return v.State == checkout.KindAwaitingConfirmation
	})
	assert.Equal(t, "pk_test_123", ready.PublishableKey)
	assert.Equal(t, "pi_1_secret_abc", ready.ClientSecret)
	assert.Equal(t, int64(2000), ready.AmountMinor)
	assert.Equal(t, "SEK", ready.Currency)

	rec = env.do(t, http.MethodPost, "/api/checkout/sessions/"+started.SessionID+"/confirm", email, handlers.ConfirmPaymentRequest{
		ClientSecret:  ready.ClientSecret,
		PaymentMethod: "pm_card_visa",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	done := env.pollUntil(t, started.SessionID, email, func(v commands.CheckoutResponse) bool {
		return v.State == checkout.KindSucceeded && v.Redirect != nil
	})
	assert.Equal(t, "/horoscope", done.Redirect.Location)
	assert.True(t, done.Redirect.FullReload)
	assert.Empty(t, done.ClientSecret)

	snapshot, _ := env.carts.Snapshot(context.Background(), cart.OwnerIdentity(email))
	assert.True(t, snapshot.IsEmpty())
}

func TestResolveAsksTheProvider(t *testing.T) {
	env := newTestEnv(t)
	env.payments.requireAction = true
	email := "ann@example.com"
	env.carts.put(cart.OwnerIdentity(email), cart.NewSnapshot([]cart.LineItem{lineItem("1", "10.0", 1)}))

	started := decodeView(t, env.do(t, http.MethodPost, "/api/checkout/sessions", email, nil))
	path := "/api/checkout/sessions/" + started.SessionID
	ready := env.pollUntil(t, started.SessionID, email, func(v commands.CheckoutResponse) bool {
		return v.State == checkout.KindAwaitingConfirmation
	})

	rec := env.do(t, http.MethodPost, path+"/confirm", email, handlers.ConfirmPaymentRequest{
		ClientSecret:  ready.ClientSecret,
		PaymentMethod: "pm_card_threeDSecure2Required",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	parked := env.pollUntil(t, started.SessionID, email, func(v commands.CheckoutResponse) bool {
		return v.AwaitingResolution
	})
	assert.Equal(t, checkout.KindConfirmingPayment, parked.State)
	assert.Equal(t, "https://hooks.stripe.test/3ds/pi_1", parked.NextActionURL)

	rec = env.do(t, http.MethodPost, path+"/resolve", email, handlers.ResolvePaymentRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, path+"/resolve", email, handlers.ResolvePaymentRequest{PaymentID: "pi_1"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	done := env.pollUntil(t, started.SessionID, email, func(v commands.CheckoutResponse) bool {
		return v.State == checkout.KindSucceeded
	})
	assert.Empty(t, done.NextActionURL)
	assert.Equal(t, 1, env.payments.lookedUp())
}

func TestSessionAccessRules(t *testing.T) {
	env := newTestEnv(t)
	email := "ann@example.com"
	env.carts.put(cart.OwnerIdentity(email), cart.NewSnapshot([]cart.LineItem{lineItem("1", "10.0", 1)}))

	started := decodeView(t, env.do(t, http.MethodPost, "/api/checkout/sessions", email, nil))
	path := "/api/checkout/sessions/" + started.SessionID

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/checkout/sessions/not-an-id", email, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/checkout/sessions/0b0c9a57-52ad-4f1a-9a3e-3d2a6c1d2f00", email, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, "bob@example.com", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, "", nil).Code)

	rec := env.do(t, http.MethodPost, path+"/confirm", email, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.pollUntil(t, started.SessionID, email, func(v commands.CheckoutResponse) bool {
		return v.State == checkout.KindAwaitingConfirmation
	})
	rec = env.do(t, http.MethodPost, path+"/confirm", email, handlers.ConfirmPaymentRequest{
		ClientSecret:  "pi_9_secret_old",
		PaymentMethod: "pm_card_visa",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, path+"/resolve", email, map[string]string{"paymentId": "pi_1", "status": "succeeded"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, env.payments.lookedUp())

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, email, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, email, nil).Code)
	assert.Equal(t, 0, env.registry.Len())
}

func TestRefreshPicksUpNewTotal(t *testing.T) {
	env := newTestEnv(t)
	env.carts.put(cart.GuestIdentity(), cart.NewSnapshot([]cart.LineItem{lineItem("1", "10.0", 1)}))

	started := decodeView(t, env.do(t, http.MethodPost, "/api/checkout/sessions", "", nil))
	env.pollUntil(t, started.SessionID, "", func(v commands.CheckoutResponse) bool {
		return v.State == checkout.KindAwaitingConfirmation
	})

	env.carts.put(cart.GuestIdentity(), cart.NewSnapshot([]cart.LineItem{lineItem("1", "10.0", 3)}))
	rec := env.do(t, http.MethodPost, "/api/checkout/sessions/"+started.SessionID+"/refresh", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := env.pollUntil(t, started.SessionID, "", func(v commands.CheckoutResponse) bool {
		return v.State == checkout.KindAwaitingConfirmation && v.AmountMinor == 3000
	})
	assert.Equal(t, "pi_2_secret_abc", view.ClientSecret)
}

func TestEmptyCartStartsAsEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	started := decodeView(t, env.do(t, http.MethodPost, "/api/checkout/sessions", "", nil))
	view := env.pollUntil(t, started.SessionID, "", func(v commands.CheckoutResponse) bool {
		return v.State == checkout.KindEmptyCart
	})
	assert.Equal(t, checkout.MessageEmptyCart, view.Message)
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/notifications", "ann@example.com", notification.CartReplaced{
		OldProduct: "Aries", NewProduct: "Leo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/notifications", "", map[string]string{"newProduct": "Leo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var list struct {
		Items []notification.Notification `json:"items"`
	}
	rec = env.do(t, http.MethodGet, "/api/notifications", "ann@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, `Cart updated: "Aries" replaced with "Leo"`, list.Items[0].Message)

	rec = env.do(t, http.MethodGet, "/api/notifications", "bob@example.com", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Items)
}

func TestSupportReconciliations(t *testing.T) {
	env := newTestEnv(t)
	env.recs.records = append(env.recs.records, &ports.Reconciliation{
		ID:          "rec-1",
		SessionID:   "session-1",
		CartKey:     "guest_cart",
		Submission:  checkout.OrderSubmission{PaymentID: "pi_1", Items: []checkout.OrderItem{{ProductID: "1", Quantity: 2}}},
		AmountMinor: 2000,
		Currency:    "SEK",
		Detail:      "boom",
	})

	rec := env.do(t, http.MethodGet, "/api/support/reconciliations?limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	var list struct {
		Items []handlers.ReconciliationResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "pi_1", list.Items[0].PaymentID)
	assert.Equal(t, "boom", list.Items[0].Detail)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/support/reconciliations?limit=0", "", nil).Code)
}

func TestSupportSessionHistory(t *testing.T) {
	env := newTestEnv(t)
	id := "0b0c9a57-52ad-4f1a-9a3e-3d2a6c1d2f00"
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.history.transitions[id] = []ports.Transition{
		{SessionID: id, State: checkout.State{Kind: checkout.KindLoadingConfig}, At: at},
		{SessionID: id, State: checkout.Failed(checkout.ReasonConfigUnavailable, checkout.MessageConfigUnavailable), At: at.Add(time.Second)},
	}

	rec := env.do(t, http.MethodGet, "/api/support/sessions/"+id+"/transitions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list struct {
		Items []handlers.TransitionResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, checkout.KindFailed, list.Items[1].State)
	assert.Equal(t, checkout.ReasonConfigUnavailable, list.Items[1].Reason)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/support/sessions/9b0c9a57-52ad-4f1a-9a3e-3d2a6c1d2f00/transitions", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/support/sessions/nope/transitions", "", nil).Code)
}

func TestSupportRoutesStayInternal(t *testing.T) {
	t.Run("hidden by default", func(t *testing.T) {
		env := newTestEnvWith(t, config.ServerConfig{Port: 8080})
		rec := env.do(t, http.MethodGet, "/api/support/reconciliations", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("moved to the internal listener", func(t *testing.T) {
		env := newTestEnvWith(t, config.ServerConfig{Port: 8080, MetricsAddr: ":9090", ExposeSupport: true})
		rec := env.do(t, http.MethodGet, "/api/support/reconciliations", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		internal := env.server.SupportHandler()
		require.NotNil(t, internal)
		rec = httptest.NewRecorder()
		internal.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/support/reconciliations", nil))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("shopper routes keep cors", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health handlers.HealthData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "UP", health.ServicesStatus.Database)
	assert.Equal(t, "UP", health.ServicesStatus.Redis)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
