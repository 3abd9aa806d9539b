package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/yuzvak/checkout-service/internal/domain/cart"
	domainErrors "github.com/yuzvak/checkout-service/internal/domain/errors"
)

const ProviderStripe = "stripe"

type PaymentConfig struct {
	PublishableKey string `json:"publishableKey"`
}

// PaymentIntent is bound to exactly one amount and currency. A changed cart
// total needs a new intent.
type PaymentIntent struct {
	ClientSecret string
	PaymentID    string
	AmountMinor  int64
	Currency     string
}

type PaymentStatus string

const (
	PaymentStatusSucceeded             PaymentStatus = "succeeded"
	PaymentStatusProcessing            PaymentStatus = "processing"
	PaymentStatusRequiresAction        PaymentStatus = "requires_action"
	PaymentStatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentStatusCanceled              PaymentStatus = "canceled"
)

// IsFailure reports statuses that end the payment without a charge.
func (s PaymentStatus) IsFailure() bool {
	return s == PaymentStatusCanceled || s == PaymentStatusRequiresPaymentMethod
}

// Confirmation is what the provider reports for a payment, after a confirm
// call or a lookup. NextActionURL is where the shopper completes an extra
// step such as 3-D Secure; it is only set with requires_action.
type Confirmation struct {
	PaymentID     string
	Status        PaymentStatus
	NextActionURL string
}

// ProviderError is a provider-reported failure. Message is shown to the
// shopper as-is when non-empty.
type ProviderError struct {
	Message string
	Code    string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error: %s", e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider error: %v", e.Err)
	}
	return "provider error"
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// OrderCreationError carries the order service's response for a rejected
// order. Detail is the raw response body.
type OrderCreationError struct {
	Status int
	Detail string
	Err    error
}

func (e *OrderCreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order creation failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("order creation failed (status %d): %s", e.Status, e.Detail)
}

func (e *OrderCreationError) Unwrap() []error {
	if e.Err != nil {
		return []error{domainErrors.ErrOrderCreationFailed, e.Err}
	}
	return []error{domainErrors.ErrOrderCreationFailed}
}

// OrderItem is one purchase line. The product id goes out as a JSON number
// when NumericID is set and as a string otherwise.
type OrderItem struct {
	ProductID string
	Quantity  int
	NumericID bool
}

type orderItemJSON struct {
	ProductID json.RawMessage `json:"productId"`
	Quantity  int             `json:"quantity"`
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	id := json.RawMessage(i.ProductID)
	if !i.NumericID || !isJSONNumber(i.ProductID) {
		quoted, err := json.Marshal(i.ProductID)
		if err != nil {
			return nil, err
		}
		id = quoted
	}
	return json.Marshal(orderItemJSON{ProductID: id, Quantity: i.Quantity})
}

func (i *OrderItem) UnmarshalJSON(data []byte) error {
	var raw orderItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := bytes.TrimSpace(raw.ProductID)
	if len(id) > 0 && id[0] == '"' {
		var s string
		if err := json.Unmarshal(id, &s); err != nil {
			return err
		}
		*i = OrderItem{ProductID: s, Quantity: raw.Quantity}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(id, &n); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	*i = OrderItem{ProductID: n.String(), Quantity: raw.Quantity, NumericID: true}
	return nil
}

func isJSONNumber(s string) bool {
	var n json.Number
	return s != "" && json.Unmarshal([]byte(s), &n) == nil
}

type OrderSubmission struct {
	PaymentID string      `json:"paymentId"`
	Items     []OrderItem `json:"items"`
}

func NewOrderSubmission(paymentID string, snapshot cart.Snapshot) OrderSubmission {
	items := make([]OrderItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		items = append(items, OrderItem{ProductID: item.ID, Quantity: item.Qty, NumericID: item.NumericID})
	}
	return OrderSubmission{PaymentID: paymentID, Items: items}
}

func (o OrderSubmission) ProductIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Redirect is the navigation the client performs once checkout succeeds.
// FullReload forces the destination to re-read persisted cart state.
type Redirect struct {
	Location   string `json:"location"`
	Replace    bool   `json:"replace"`
	FullReload bool   `json:"fullReload"`
}
