package orders

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/postgres"
	"github.com/google/uuid"
)

func (r *Repo) GetCartByUser(ctx context.Context, userID string) (*Cart, error) {
	return r.loadCart(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id=$1`, userID)
}

// NOWAIT turns a concurrent checkout of the same cart into an immediate
// lock_not_available, classified as Conflict.
func (r *Repo) LockCartByUser(ctx context.Context, userID string) (*Cart, error) {
	return r.loadCart(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id=$1 FOR UPDATE NOWAIT`, userID)
}

func (r *Repo) loadCart(ctx context.Context, q, userID string) (*Cart, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var c Cart
	if err := r.DB.QueryRow(ctx, q, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("cart for user %s: %w", userID, postgres.Classify(err))
	}

	rows, err := r.DB.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.created_at, `+productColumns+`
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1
		ORDER BY ci.created_at, ci.id`, c.ID)
	if err != nil {
		return nil, postgres.Classify(err)
	}
	defer rows.Close()

	c.Items = []CartItem{}
	for rows.Next() {
		var it CartItem
		var p Product
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt,
			&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, postgres.Classify(err)
		}
		it.Product = &p
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classify(err)
	}
	return &c, nil
}

func (r *Repo) EnsureCart(ctx context.Context, userID string) (*Cart, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	c := Cart{Items: []CartItem{}}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING id, user_id, created_at, updated_at`, uuid.NewString(), userID,
	).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, postgres.Classify(err)
	}
	return &c, nil
}

// AddCartItem keeps one row per (cart, product); repeated adds accumulate.
func (r *Repo) AddCartItem(ctx context.Context, cartID, productID string, qty int) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity) VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		uuid.NewString(), cartID, productID, qty)
	return postgres.Classify(err)
}

func (r *Repo) SetCartItemQuantity(ctx context.Context, cartID, itemID string, qty int) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	ct, err := r.DB.Exec(ctx, `UPDATE cart_items SET quantity=$3 WHERE id=$2 AND cart_id=$1`, cartID, itemID, qty)
	if err != nil {
		return postgres.Classify(err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart item %s", apperr.ErrNotFound, itemID)
	}
	return nil
}

func (r *Repo) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE id=$2 AND cart_id=$1`, cartID, itemID)
	if err != nil {
		return postgres.Classify(err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart item %s", apperr.ErrNotFound, itemID)
	}
	return nil
}

func (r *Repo) ClearCart(ctx context.Context, cartID string) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return postgres.Classify(err)
}
