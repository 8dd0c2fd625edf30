package orders

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-checkout-core/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const returnColumns = `id, order_id, user_id, reason, status, refund_amount::text, created_at, updated_at`

func scanReturn(row pgx.Row, rt *Return) error {
	return row.Scan(&rt.ID, &rt.OrderID, &rt.UserID, &rt.Reason, &rt.Status, &rt.RefundAmount, &rt.CreatedAt, &rt.UpdatedAt)
}

func (r *Repo) CreateReturn(ctx context.Context, rt *Return) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	err := r.DB.QueryRow(ctx, `
		INSERT INTO returns (id, order_id, user_id, reason, status, refund_amount)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		rt.ID, rt.OrderID, rt.UserID, rt.Reason, rt.Status, rt.RefundAmount,
	).Scan(&rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert return for order %s: %w", rt.OrderID, postgres.Classify(err))
	}
	return nil
}

func (r *Repo) GetReturn(ctx context.Context, id string) (*Return, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var rt Return
	if err := scanReturn(r.DB.QueryRow(ctx, `SELECT `+returnColumns+` FROM returns WHERE id=$1`, id), &rt); err != nil {
		return nil, fmt.Errorf("return %s: %w", id, postgres.Classify(err))
	}
	return &rt, nil
}

func (r *Repo) ListReturns(ctx context.Context, f ReturnFilter) ([]Return, int, error) {
	f.Page = f.Page.Normalize()
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var total int
	if err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM returns
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)`,
		f.UserID, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, postgres.Classify(err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT `+returnColumns+` FROM returns
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`,
		f.UserID, string(f.Status), f.Page.Limit, f.Page.Offset())
	if err != nil {
		return nil, 0, postgres.Classify(err)
	}
	defer rows.Close()

	out := []Return{}
	for rows.Next() {
		var rt Return
		if err := scanReturn(rows, &rt); err != nil {
			return nil, 0, postgres.Classify(err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, postgres.Classify(err)
	}
	return out, total, nil
}

func (r *Repo) RefundedTotal(ctx context.Context, orderID, excludeID string) (decimal.Decimal, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(refund_amount), 0)::text FROM returns
		WHERE order_id=$1 AND id::text <> $2 AND status IN ($3, $4)`,
		orderID, excludeID, ReturnApproved, ReturnSettled).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("refunds for order %s: %w", orderID, postgres.Classify(err))
	}
	return sum, nil
}

func (r *Repo) UpdateReturn(ctx context.Context, id string, from, to ReturnStatus, refund decimal.NullDecimal) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	ct, err := r.DB.Exec(ctx, `
		UPDATE returns
		SET status=$3, refund_amount=COALESCE($4, refund_amount), updated_at=NOW()
		WHERE id=$1 AND status=$2`, id, from, to, refund)
	if err != nil {
		return postgres.Classify(err)
	}
	if ct.RowsAffected() == 0 {
		return r.casMiss(ctx, `SELECT EXISTS(SELECT 1 FROM returns WHERE id=$1)`, "return", id)
	}
	return nil
}
