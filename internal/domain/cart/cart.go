package cart

import (
	"github.com/shopspring/decimal"
)

// LineItem is one cart line. NumericID records that the storefront wrote the
// id as a JSON number, so it can be sent on in the same form.
type LineItem struct {
	ID        string          `json:"id"`
	NumericID bool            `json:"-"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Qty)))
}

// Snapshot is a read-only view of the cart at one point in time.
type Snapshot struct {
	Items []LineItem
}

func NewSnapshot(items []LineItem) Snapshot {
	copied := make([]LineItem, len(items))
	copy(copied, items)
	return Snapshot{Items: copied}
}

func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0 || !s.Total().IsPositive()
}

// Checkoutable reports whether the cart can be paid for: non-empty, positive
// total and every line with at least one unit.
func (s Snapshot) Checkoutable() bool {
	if s.IsEmpty() {
		return false
	}
	for _, item := range s.Items {
		if item.Qty < 1 {
			return false
		}
	}
	return true
}

func (s Snapshot) ItemCount() int {
	return len(s.Items)
}
