package commands

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuzvak/checkout-service/internal/application/use_cases"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
)

type CheckoutResponse struct {
	SessionID          string             `json:"sessionId"`
	State              checkout.Kind      `json:"state"`
	Reason             checkout.Reason    `json:"reason,omitempty"`
	Message            string             `json:"message,omitempty"`
	PublishableKey     string             `json:"publishableKey,omitempty"`
	ClientSecret       string             `json:"clientSecret,omitempty"`
	PaymentID          string             `json:"paymentId,omitempty"`
	AwaitingResolution bool               `json:"awaitingResolution,omitempty"`
	NextActionURL      string             `json:"nextActionUrl,omitempty"`
	AmountMinor        int64              `json:"amountMinor"`
	Currency           string             `json:"currency"`
	Total              decimal.Decimal    `json:"total"`
	ItemCount          int                `json:"itemCount"`
	Redirect           *checkout.Redirect `json:"redirect,omitempty"`
	Closed             bool               `json:"closed,omitempty"`
	Version            uint64             `json:"version"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func NewCheckoutResponse(v use_cases.View) *CheckoutResponse {
	return &CheckoutResponse{
		SessionID:          v.SessionID,
		State:              v.State.Kind,
		Reason:             v.State.Reason,
		Message:            v.State.Message,
		PublishableKey:     v.PublishableKey,
		ClientSecret:       v.ClientSecret,
		PaymentID:          v.PaymentID,
		AwaitingResolution: v.AwaitingResolution,
		NextActionURL:      v.NextActionURL,
		AmountMinor:        v.AmountMinor,
		Currency:           v.Currency,
		Total:              v.Total,
		ItemCount:          v.ItemCount,
		Redirect:           v.Redirect,
		Closed:             v.Closed,
		Version:            v.Version,
		UpdatedAt:          v.UpdatedAt,
	}
}
