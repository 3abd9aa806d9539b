package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/yuzvak/checkout-service/internal/domain/cart"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

// CartStore reads and clears the persisted carts. Each cart is a JSON array
// of line items stored under cart.Identity.Key().
type CartStore struct {
	client *redis.Client
	logger *logger.Logger
}

func NewCartStore(conn *Connection, log *logger.Logger) *CartStore {
	return &CartStore{
		client: conn.GetClient(),
		logger: log,
	}
}

// storedItem is the persisted shape: price is a plain JSON number and id is
// either a number or a string, kept as written.
type storedItem struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Price json.Number     `json:"price"`
	Qty   int             `json:"qty"`
}

func (s *CartStore) Snapshot(ctx context.Context, identity cart.Identity) (cart.Snapshot, error) {
	data, err := s.client.Get(ctx, identity.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.NewSnapshot(nil), nil
	}
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("redis get failed: %w", err)
	}

	items, err := decodeItems(data)
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("decode cart %s: %w", identity.Key(), err)
	}
	return cart.NewSnapshot(items), nil
}

func (s *CartStore) Save(ctx context.Context, identity cart.Identity, snapshot cart.Snapshot) error {
	stored := make([]storedItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		id, err := encodeID(item)
		if err != nil {
			return err
		}
		stored = append(stored, storedItem{
			ID:    id,
			Name:  item.Name,
			Price: json.Number(item.UnitPrice.String()),
			Qty:   item.Qty,
		})
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.client.Set(ctx, identity.Key(), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Clear removes the cart entry. Clearing a missing cart is not an error.
func (s *CartStore) Clear(ctx context.Context, identity cart.Identity) error {
	if err := s.client.Del(ctx, identity.Key()).Err(); err != nil {
		monitoring.RecordCartClear("failure")
		return fmt.Errorf("redis delete failed: %w", err)
	}
	monitoring.RecordCartClear("success")
	s.logger.Debug("Cart cleared", "cart_key", identity.Key())
	return nil
}

func decodeItems(data []byte) ([]cart.LineItem, error) {
	var stored []storedItem
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	items := make([]cart.LineItem, 0, len(stored))
	for i, s := range stored {
		id, numeric, err := decodeID(s.ID)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		price := decimal.Zero
		if s.Price != "" {
			price, err = decimal.NewFromString(s.Price.String())
			if err != nil {
				return nil, fmt.Errorf("item %d price: %w", i, err)
			}
		}
		items = append(items, cart.LineItem{ID: id, NumericID: numeric, Name: s.Name, UnitPrice: price, Qty: s.Qty})
	}
	return items, nil
}

func decodeID(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, errors.New("missing id")
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", false, err
		}
		return id, false, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false, err
	}
	return n.String(), true, nil
}

func encodeID(item cart.LineItem) (json.RawMessage, error) {
	if item.NumericID {
		var n json.Number
		if err := json.Unmarshal([]byte(item.ID), &n); err == nil {
			return json.RawMessage(item.ID), nil
		}
	}
	return json.Marshal(item.ID)
}
