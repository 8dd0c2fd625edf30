package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductRepo is the Inventory Store. DecrementStock is a single conditional
// update and returns apperr.ErrInsufficientStock when stock < qty.
type ProductRepo interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
}

// CartRepo reads return carts with items and their products resolved.
// A user without a cart yields apperr.ErrNotFound.
type CartRepo interface {
	GetCartByUser(ctx context.Context, userID string) (*Cart, error)
	// LockCartByUser is GetCartByUser holding the cart row for the rest of the
	// transaction; a cart locked elsewhere fails with apperr.ErrConflict.
	LockCartByUser(ctx context.Context, userID string) (*Cart, error)
	EnsureCart(ctx context.Context, userID string) (*Cart, error)
	AddCartItem(ctx context.Context, cartID, productID string, qty int) error
	SetCartItemQuantity(ctx context.Context, cartID, itemID string, qty int) error
	DeleteCartItem(ctx context.Context, cartID, itemID string) error
	ClearCart(ctx context.Context, cartID string) error
}

type OrderRepo interface {
	// CreateOrder inserts the order row and its items.
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	// LockOrder reads the order row (without items) FOR UPDATE.
	LockOrder(ctx context.Context, id string) (*Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error)
	// UpdateOrderStatus is a compare-and-swap on status; a lost race is
	// apperr.ErrConflict.
	UpdateOrderStatus(ctx context.Context, id string, from, to Status) error
}

type PaymentRepo interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]Payment, error)
	// UpdatePaymentStatus swaps status from -> to and records transactionID
	// when it is non-empty. A payment already holding a different
	// transaction id is left alone and reported as apperr.ErrConflict.
	UpdatePaymentStatus(ctx context.Context, id string, from, to PaymentStatus, transactionID string) error
}

type ReturnRepo interface {
	CreateReturn(ctx context.Context, r *Return) error
	GetReturn(ctx context.Context, id string) (*Return, error)
	ListReturns(ctx context.Context, f ReturnFilter) ([]Return, int, error)
	// RefundedTotal sums the refunds held by the order's approved and settled
	// returns, leaving out excludeID.
	RefundedTotal(ctx context.Context, orderID, excludeID string) (decimal.Decimal, error)
	// UpdateReturn swaps status from -> to and sets refund when Valid.
	UpdateReturn(ctx context.Context, id string, from, to ReturnStatus, refund decimal.NullDecimal) error
}

type Repos interface {
	Products() ProductRepo
	Carts() CartRepo
	Orders() OrderRepo
	Payments() PaymentRepo
	Returns() ReturnRepo
}

// Store hands out repositories bound to the shared pool, and runs fn with
// repositories bound to one transaction. fn's error rolls everything back.
type Store interface {
	Repos
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
}
