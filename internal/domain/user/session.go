package user

import (
	"github.com/yuzvak/checkout-service/internal/domain/cart"
)

// Session is what the auth layer tells us about the current shopper. All
// fields are optional.
type Session struct {
	Token   string
	Email   string
	Subject string
}

func (s Session) Authenticated() bool {
	return s.Token != ""
}

// ResolveCartIdentity picks the persisted cart for a session.
// Precedence: email, then subject identifier, then the guest cart.
func ResolveCartIdentity(s Session) cart.Identity {
	switch {
	case s.Email != "":
		return cart.OwnerIdentity(s.Email)
	case s.Subject != "":
		return cart.OwnerIdentity(s.Subject)
	default:
		return cart.GuestIdentity()
	}
}
