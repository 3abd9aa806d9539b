package stripe

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

func TestPaymentIntentID(t *testing.T) {
	id, err := PaymentIntentID("pi_3Abc_secret_xyz")
	require.NoError(t, err)
	assert.Equal(t, "pi_3Abc", id)

	_, err = PaymentIntentID("nonsense")
	assert.Error(t, err)

	_, err = PaymentIntentID("_secret_xyz")
	assert.Error(t, err)
}

func TestToPaymentStatus(t *testing.T) {
	assert.Equal(t, checkout.PaymentStatusSucceeded, toPaymentStatus(stripe.PaymentIntentStatusSucceeded))
	assert.Equal(t, checkout.PaymentStatusRequiresAction, toPaymentStatus(stripe.PaymentIntentStatusRequiresAction))
	assert.Equal(t, checkout.PaymentStatusCanceled, toPaymentStatus(stripe.PaymentIntentStatusCanceled))
	assert.Equal(t, checkout.PaymentStatus("requires_capture"), toPaymentStatus(stripe.PaymentIntentStatusRequiresCapture))
}

func TestToProviderError(t *testing.T) {
	err := toProviderError(&stripe.Error{Msg: "Your card was declined.", Code: stripe.ErrorCodeCardDeclined})

	var providerErr *checkout.ProviderError
	require.True(t, stderrors.As(err, &providerErr))
	assert.Equal(t, "Your card was declined.", providerErr.Message)
	assert.Equal(t, "card_declined", providerErr.Code)

	err = toProviderError(stderrors.New("connection reset"))
	require.True(t, stderrors.As(err, &providerErr))
	assert.Empty(t, providerErr.Message)
}

func newTestConfirmer(t *testing.T, handler http.HandlerFunc) *Confirmer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	return NewConfirmer(Options{
		SecretKey: "sk_test_123",
		ReturnURL: "https://shop.example/checkout",
		Backends:  &stripe.Backends{API: backend, Connect: backend, Uploads: backend},
	}, logger.NewNop())
}

func TestConfirmer_Confirm(t *testing.T) {
	var form url.Values
	var path string
	c := newTestConfirmer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"succeeded"}`))
	})

	got, err := c.Confirm(context.Background(), checkout.PaymentIntent{ClientSecret: "pi_1_secret_abc"}, "pm_card_visa")
	require.NoError(t, err)

	assert.Equal(t, "/v1/payment_intents/pi_1/confirm", path)
	assert.Equal(t, "pm_card_visa", form.Get("payment_method"))
	assert.Equal(t, "https://shop.example/checkout", form.Get("return_url"))
	assert.Equal(t, checkout.Confirmation{PaymentID: "pi_1", Status: checkout.PaymentStatusSucceeded}, got)
}

func TestConfirmer_RequiresActionCarriesRedirect(t *testing.T) {
	c := newTestConfirmer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"requires_action",
			"next_action":{"type":"redirect_to_url","redirect_to_url":{"url":"https://hooks.stripe.com/3d_secure/pi_1","return_url":"https://shop.example/checkout"}}}`))
	})

	got, err := c.Confirm(context.Background(), checkout.PaymentIntent{ClientSecret: "pi_1_secret_abc"}, "pm_card_threeDSecure2Required")
	require.NoError(t, err)

	assert.Equal(t, checkout.Confirmation{
		PaymentID:     "pi_1",
		Status:        checkout.PaymentStatusRequiresAction,
		NextActionURL: "https://hooks.stripe.com/3d_secure/pi_1",
	}, got)
}

func TestConfirmer_Retrieve(t *testing.T) {
	var method, path string
	c := newTestConfirmer(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"succeeded"}`))
	})

	got, err := c.Retrieve(context.Background(), "pi_1")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, method)
	assert.Equal(t, "/v1/payment_intents/pi_1", path)
	assert.Equal(t, checkout.Confirmation{PaymentID: "pi_1", Status: checkout.PaymentStatusSucceeded}, got)
}

func TestConfirmer_RetrieveUnknownPayment(t *testing.T) {
	c := newTestConfirmer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent: 'pi_x'"}}`))
	})

	_, err := c.Retrieve(context.Background(), "pi_x")

	var providerErr *checkout.ProviderError
	require.True(t, stderrors.As(err, &providerErr))
	assert.Equal(t, "resource_missing", providerErr.Code)
}

func TestConfirmer_Declined(t *testing.T) {
	c := newTestConfirmer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := c.Confirm(context.Background(), checkout.PaymentIntent{ClientSecret: "pi_1_secret_abc"}, "pm_card_visa")

	var providerErr *checkout.ProviderError
	require.True(t, stderrors.As(err, &providerErr))
	assert.Equal(t, "Your card was declined.", providerErr.Message)
	assert.Equal(t, "card_declined", providerErr.Code)
}

func TestConfirmer_MalformedSecret(t *testing.T) {
	called := false
	c := newTestConfirmer(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.Confirm(context.Background(), checkout.PaymentIntent{ClientSecret: "garbage"}, "pm_card_visa")

	var providerErr *checkout.ProviderError
	assert.True(t, stderrors.As(err, &providerErr))
	assert.False(t, called)
}
