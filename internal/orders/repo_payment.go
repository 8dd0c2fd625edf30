package orders

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-checkout-core/internal/postgres"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, order_id, amount::text, status, payment_method, COALESCE(transaction_id, ''),
	gateway_detail, created_at, updated_at`

func scanPayment(row pgx.Row, p *Payment) error {
	return row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.Method, &p.TransactionID,
		&p.GatewayDetail, &p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) CreatePayment(ctx context.Context, p *Payment) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var txn *string
	if p.TransactionID != "" {
		txn = &p.TransactionID
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, amount, status, payment_method, transaction_id, gateway_detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		p.ID, p.OrderID, p.Amount, p.Status, p.Method, txn, p.GatewayDetail,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment for order %s: %w", p.OrderID, postgres.Classify(err))
	}
	return nil
}

func (r *Repo) GetPayment(ctx context.Context, id string) (*Payment, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var p Payment
	if err := scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id), &p); err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, postgres.Classify(err))
	}
	return &p, nil
}

func (r *Repo) ListPaymentsByOrder(ctx context.Context, orderID string) ([]Payment, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	rows, err := r.DB.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id=$1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, postgres.Classify(err)
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		var p Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, postgres.Classify(err)
		}
		out = append(out, p)
	}
	return out, postgres.Classify(rows.Err())
}

func (r *Repo) UpdatePaymentStatus(ctx context.Context, id string, from, to PaymentStatus, transactionID string) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	ct, err := r.DB.Exec(ctx, `
		UPDATE payments
		SET status=$3, transaction_id=COALESCE(NULLIF($4, ''), transaction_id), updated_at=NOW()
		WHERE id=$1 AND status=$2
		  AND ($4 = '' OR transaction_id IS NULL OR transaction_id = $4)`, id, from, to, transactionID)
	if err != nil {
		return postgres.Classify(err)
	}
	if ct.RowsAffected() == 0 {
		return r.casMiss(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id=$1)`, "payment", id)
	}
	return nil
}
