package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/domain/errors"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
)

const defaultListLimit = 50

type ReconciliationRepository struct {
	db *sql.DB
}

func NewReconciliationRepository(conn *Connection) *ReconciliationRepository {
	return &ReconciliationRepository{
		db: conn.GetDB(),
	}
}

// Record stores a captured payment whose order failed. A second record for
// the same payment id is rejected with ErrReconciliationExists.
func (r *ReconciliationRepository) Record(ctx context.Context, rec *ports.Reconciliation) error {
	items, err := json.Marshal(rec.Submission.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO order_reconciliations
			(id, session_id, payment_id, cart_key, product_ids, items, amount_minor, currency, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = monitoring.InstrumentExec(ctx, r.db, "INSERT", "order_reconciliations", query,
		rec.ID,
		rec.SessionID,
		rec.Submission.PaymentID,
		rec.CartKey,
		pq.Array(rec.Submission.ProductIDs()),
		string(items),
		rec.AmountMinor,
		rec.Currency,
		rec.Detail,
		createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrReconciliationExists
		}
		return fmt.Errorf("insert reconciliation: %w", err)
	}
	return nil
}

func (r *ReconciliationRepository) List(ctx context.Context, limit, offset int) ([]*ports.Reconciliation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, session_id, payment_id, cart_key, items, amount_minor, currency, detail, created_at
		FROM order_reconciliations
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`

	rows, err := monitoring.InstrumentQuery(ctx, r.db, "SELECT", "order_reconciliations", query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ports.Reconciliation
	for rows.Next() {
		var (
			rec   ports.Reconciliation
			items []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.Submission.PaymentID, &rec.CartKey, &items,
			&rec.AmountMinor, &rec.Currency, &rec.Detail, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		var orderItems []checkout.OrderItem
		if err := json.Unmarshal(items, &orderItems); err != nil {
			return nil, fmt.Errorf("unmarshal items of %s: %w", rec.ID, err)
		}
		rec.Submission.Items = orderItems
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ProductIDs returns the product ids recorded for a payment.
func (r *ReconciliationRepository) ProductIDs(ctx context.Context, paymentID string) ([]string, error) {
	query := `SELECT product_ids FROM order_reconciliations WHERE payment_id = $1`

	var ids []string
	row := monitoring.InstrumentQueryRow(ctx, r.db, "SELECT", "order_reconciliations", query, paymentID)
	if err := row.Scan(pq.Array(&ids)); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}
