// Package cart is the Cart Aggregate: one cart per user, at most one line
// per product, created on first add and emptied by checkout or Clear.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/sirupsen/logrus"
)

type Service struct {
	store orders.Store
	log   logrus.FieldLogger
}

func NewService(store orders.Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log}
}

// GetCart returns the user's cart with products resolved, or nil when the
// user never added anything. A missing cart is not an error.
func (s *Service) GetCart(ctx context.Context, userID string) (*orders.Cart, error) {
	c, err := s.store.Carts().GetCartByUser(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// AddItem adds qty of productID, accumulating onto an existing line. The
// stock check is advisory; stock is only taken at checkout.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (*orders.Cart, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperr.ErrValidation)
	}
	if productID == "" {
		return nil, fmt.Errorf("%w: product_id is required", apperr.ErrValidation)
	}

	var out *orders.Cart
	err := s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		p, err := tx.Products().GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if p.Stock < qty {
			return fmt.Errorf("%w: %s has %d left", apperr.ErrInsufficientStock, p.Name, p.Stock)
		}
		c, err := tx.Carts().EnsureCart(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Carts().AddCartItem(ctx, c.ID, productID, qty); err != nil {
			return err
		}
		out, err = tx.Carts().GetCartByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "product_id": productID, "qty": qty}).Debug("cart item added")
	return out, nil
}

// UpdateItem sets the quantity of one line of the user's cart.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, qty int) (*orders.Cart, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperr.ErrValidation)
	}
	return s.mutateItem(ctx, userID, itemID, func(ctx context.Context, carts orders.CartRepo, cartID string) error {
		return carts.SetCartItemQuantity(ctx, cartID, itemID, qty)
	})
}

// RemoveItem deletes one line of the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*orders.Cart, error) {
	return s.mutateItem(ctx, userID, itemID, func(ctx context.Context, carts orders.CartRepo, cartID string) error {
		return carts.DeleteCartItem(ctx, cartID, itemID)
	})
}

// Items are addressed by id but always within the caller's own cart, so an
// item of another user reads as not found.
func (s *Service) mutateItem(ctx context.Context, userID, itemID string, fn func(context.Context, orders.CartRepo, string) error) (*orders.Cart, error) {
	var out *orders.Cart
	err := s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		c, err := tx.Carts().GetCartByUser(ctx, userID)
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: cart item %s", apperr.ErrNotFound, itemID)
		}
		if err != nil {
			return err
		}
		if err := fn(ctx, tx.Carts(), c.ID); err != nil {
			return err
		}
		out, err = tx.Carts().GetCartByUser(ctx, userID)
		return err
	})
	return out, err
}

// Clear empties the user's cart. Clearing a missing cart is a no-op.
func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.store.Carts().GetCartByUser(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.store.Carts().ClearCart(ctx, c.ID)
}

type Validation struct {
	Valid  bool         `json:"valid"`
	Errors []string     `json:"errors,omitempty"`
	Cart   *orders.Cart `json:"cart"`
}

// Validate compares every line against current stock. It reserves nothing,
// so a later checkout can still fail.
func (s *Service) Validate(ctx context.Context, userID string) (Validation, error) {
	c, err := s.GetCart(ctx, userID)
	if err != nil {
		return Validation{}, err
	}
	if c == nil {
		return Validation{Valid: true}, nil
	}
	v := Validation{Valid: true, Cart: c}
	for _, it := range c.Items {
		if it.Product == nil || it.Product.Stock < it.Quantity {
			v.Valid = false
			v.Errors = append(v.Errors, "Insufficient stock for "+productName(it))
		}
	}
	return v, nil
}

func productName(it orders.CartItem) string {
	if it.Product != nil && it.Product.Name != "" {
		return it.Product.Name
	}
	return it.ProductID
}
