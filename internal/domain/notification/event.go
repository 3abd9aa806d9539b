package notification

import (
	"errors"
	"fmt"
)

const KindCartReplaced = "cart-replaced"

var ErrInvalidEvent = errors.New("invalid cart-replaced event")

// CartReplaced is published when adding a product replaced what was in the
// cart. CartKey is optional; events without one are shown to every shopper.
type CartReplaced struct {
	OldProduct    string `json:"oldProduct"`
	NewProduct    string `json:"newProduct"`
	IsSameProduct bool   `json:"isSameProduct"`
	CartKey       string `json:"cartKey,omitempty"`
}

func (e CartReplaced) Validate() error {
	if e.OldProduct == "" {
		return fmt.Errorf("%w: oldProduct is required", ErrInvalidEvent)
	}
	if !e.IsSameProduct && e.NewProduct == "" {
		return fmt.Errorf("%w: newProduct is required", ErrInvalidEvent)
	}
	return nil
}

func (e CartReplaced) Message() string {
	if e.IsSameProduct {
		return fmt.Sprintf("Only one horoscope per purchase. Cart already contains %q.", e.OldProduct)
	}
	return fmt.Sprintf("Cart updated: %q replaced with %q", e.OldProduct, e.NewProduct)
}
