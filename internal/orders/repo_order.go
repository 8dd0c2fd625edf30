package orders

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/postgres"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, user_id, order_number, COALESCE(idempotency_key, ''), total_amount::text, status,
	payment_method, shipping_address, billing_address, created_at, updated_at`

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.IdempotencyKey, &o.TotalAmount, &o.Status,
		&o.PaymentMethod, &o.ShippingAddress, &o.BillingAddress, &o.CreatedAt, &o.UpdatedAt)
}

func (r *Repo) CreateOrder(ctx context.Context, o *Order) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var idem *string
	if o.IdempotencyKey != "" {
		idem = &o.IdempotencyKey
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, order_number, idempotency_key, total_amount, status,
			payment_method, shipping_address, billing_address)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.OrderNumber, idem, o.TotalAmount, o.Status,
		o.PaymentMethod, o.ShippingAddress, o.BillingAddress,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.OrderNumber, postgres.Classify(err))
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if err := r.DB.QueryRow(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price_at_time)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING created_at`,
			it.ID, o.ID, it.ProductID, it.Quantity, it.PriceAtTime,
		).Scan(&it.CreatedAt); err != nil {
			return fmt.Errorf("insert order item %s: %w", it.ProductID, postgres.Classify(err))
		}
	}
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) LockOrder(ctx context.Context, id string) (*Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *Repo) FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error) {
	o, err := r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 AND idempotency_key=$2`, userID, key)
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) getOrder(ctx context.Context, q string, args ...any) (*Order, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var o Order
	if err := scanOrder(r.DB.QueryRow(ctx, q, args...), &o); err != nil {
		return nil, fmt.Errorf("order: %w", postgres.Classify(err))
	}
	return &o, nil
}

func (r *Repo) attachItems(ctx context.Context, list []*Order) error {
	if len(list) == 0 {
		return nil
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	ids := make([]string, 0, len(list))
	byID := make(map[string]*Order, len(list))
	for _, o := range list {
		ids = append(ids, o.ID)
		byID[o.ID] = o
		o.Items = []OrderItem{}
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price_at_time::text, created_at
		FROM order_items WHERE order_id = ANY($1::uuid[])
		ORDER BY created_at, id`, ids)
	if err != nil {
		return postgres.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.PriceAtTime, &it.CreatedAt); err != nil {
			return postgres.Classify(err)
		}
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return postgres.Classify(rows.Err())
}

func (r *Repo) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	f.Page = f.Page.Normalize()
	lctx, cancel := r.ctx(ctx)
	defer cancel()

	var total int
	if err := r.DB.QueryRow(lctx, `
		SELECT COUNT(*) FROM orders
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)`,
		f.UserID, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, postgres.Classify(err)
	}

	rows, err := r.DB.Query(lctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`,
		f.UserID, string(f.Status), f.Page.Limit, f.Page.Offset())
	if err != nil {
		return nil, 0, postgres.Classify(err)
	}
	out := []Order{}
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			rows.Close()
			return nil, 0, postgres.Classify(err)
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, postgres.Classify(err)
	}

	ptrs := make([]*Order, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := r.attachItems(ctx, ptrs); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) UpdateOrderStatus(ctx context.Context, id string, from, to Status) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=NOW()
		WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return postgres.Classify(err)
	}
	if ct.RowsAffected() == 0 {
		return r.casMiss(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, "order", id)
	}
	return nil
}

// casMiss explains a compare-and-swap that touched no row.
func (r *Repo) casMiss(ctx context.Context, existsQ, what, id string) error {
	var exists bool
	if err := r.DB.QueryRow(ctx, existsQ, id).Scan(&exists); err != nil {
		return postgres.Classify(err)
	}
	if !exists {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, what, id)
	}
	return fmt.Errorf("%w: %s %s was modified concurrently", apperr.ErrConflict, what, id)
}
