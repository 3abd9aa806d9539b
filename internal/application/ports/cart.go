package ports

import (
	"context"

	"github.com/yuzvak/checkout-service/internal/domain/cart"
)

type CartReader interface {
	Snapshot(ctx context.Context, identity cart.Identity) (cart.Snapshot, error)
}

// CartKeyspace is the persisted cart storage. Clear deletes the entry
// directly and is idempotent.
type CartKeyspace interface {
	Clear(ctx context.Context, identity cart.Identity) error
}
