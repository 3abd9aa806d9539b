package ports

import (
	"context"

	"github.com/yuzvak/checkout-service/internal/domain/checkout"
)

type PaymentConfigClient interface {
	FetchConfig(ctx context.Context) (checkout.PaymentConfig, error)
}

type IntentClient interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, credential string) (checkout.PaymentIntent, error)
}

// PaymentConfirmer confirms an intent with the provider and looks up the
// current status of a payment. Provider-reported failures come back as
// *checkout.ProviderError.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, intent checkout.PaymentIntent, paymentMethod string) (checkout.Confirmation, error)
	Retrieve(ctx context.Context, paymentID string) (checkout.Confirmation, error)
}

// OrderClient records an order for a confirmed payment. Callers must not
// retry a failed call with the same payment id.
type OrderClient interface {
	CreateOrder(ctx context.Context, submission checkout.OrderSubmission, credential string) error
}
