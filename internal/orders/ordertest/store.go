// Package ordertest provides an in-memory orders.Store. Transactions are
// serialized and applied copy-on-commit, so a failing fn leaves no trace,
// which is the same all-or-nothing contract the Postgres store gives.
package ordertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu    sync.Mutex
	state *state
	clock time.Time
	fail  map[string]failure
	txs   int
	stock []string
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		state: newState(),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		fail:  map[string]failure{},
	}
}

type cartRow struct {
	ID, UserID           string
	CreatedAt, UpdatedAt time.Time
}

type state struct {
	products  map[string]orders.Product
	carts     map[string]cartRow // by cart id
	cartItems map[string]orders.CartItem
	orders    map[string]orders.Order
	payments  map[string]orders.Payment
	returns   map[string]orders.Return
}

func newState() *state {
	return &state{
		products:  map[string]orders.Product{},
		carts:     map[string]cartRow{},
		cartItems: map[string]orders.CartItem{},
		orders:    map[string]orders.Order{},
		payments:  map[string]orders.Payment{},
		returns:   map[string]orders.Return{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = v
	}
	for k, v := range st.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.returns {
		c.returns[k] = v
	}
	return c
}

func copyOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem{}, o.Items...)
	o.Payments = nil
	return o
}

type failure struct {
	n   int
	err error
}

// FailOn makes the next call of the named repository method return err.
func (s *Store) FailOn(method string, err error) { s.FailOnNth(method, 1, err) }

// FailOnNth makes the nth call from now of the named method return err.
func (s *Store) FailOnNth(method string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = failure{n: n, err: err}
}

func (s *Store) injected(method string) error {
	f, ok := s.fail[method]
	if !ok {
		return nil
	}
	f.n--
	if f.n > 0 {
		s.fail[method] = f
		return nil
	}
	delete(s.fail, method)
	return f.err
}

func (s *Store) now() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// StockCalls lists every stock change in call order, rolled back or not,
// as "-<product id>" for a decrement and "+<product id>" for a restock.
func (s *Store) StockCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stock...)
}

// Transactions reports how many InTx calls ran.
func (s *Store) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++

	work := s.state.clone()
	if err := fn(ctx, &view{store: s, tx: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	s.state = work
	return nil
}

func (s *Store) Products() orders.ProductRepo { return &view{store: s} }
func (s *Store) Carts() orders.CartRepo       { return &view{store: s} }
func (s *Store) Orders() orders.OrderRepo     { return &view{store: s} }
func (s *Store) Payments() orders.PaymentRepo { return &view{store: s} }
func (s *Store) Returns() orders.ReturnRepo   { return &view{store: s} }

// view implements every repository. tx is nil outside a transaction, in
// which case each call locks the store on its own.
type view struct {
	store *Store
	tx    *state
}

func (v *view) Products() orders.ProductRepo { return v }
func (v *view) Carts() orders.CartRepo       { return v }
func (v *view) Orders() orders.OrderRepo     { return v }
func (v *view) Payments() orders.PaymentRepo { return v }
func (v *view) Returns() orders.ReturnRepo   { return v }

func (v *view) with(method string, fn func(st *state) error) error {
	if v.tx == nil {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	if err := v.store.injected(method); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	return fn(v.store.state)
}

// ---- seeding and inspection helpers ----

// AddProduct stores p, assigning an id and SKU when empty.
func (s *Store) AddProduct(p orders.Product) orders.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.SKU == "" {
		p.SKU = "SKU-" + p.ID[:8]
	}
	if p.Name == "" {
		p.Name = "product " + p.ID[:8]
	}
	p.CreatedAt, p.UpdatedAt = s.now(), s.clock
	s.state.products[p.ID] = p
	return p
}

func (s *Store) Product(id string) orders.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.products[id]
}

func (s *Store) SetPrice(id string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.state.products[id]
	p.Price = price
	s.state.products[id] = p
}

func (s *Store) SetOrderStatus(id string, status orders.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.state.orders[id]
	o.Status = status
	s.state.orders[id] = o
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.payments)
}

// ---- ProductRepo ----

func (v *view) GetProduct(_ context.Context, id string) (*orders.Product, error) {
	var out *orders.Product
	err := v.with("GetProduct", func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (v *view) DecrementStock(_ context.Context, id string, qty int) error {
	return v.with("DecrementStock", func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
		}
		if p.Stock < qty {
			return fmt.Errorf("%w: product %s", apperr.ErrInsufficientStock, id)
		}
		p.Stock -= qty
		st.products[id] = p
		v.store.stock = append(v.store.stock, "-"+id)
		return nil
	})
}

func (v *view) IncrementStock(_ context.Context, id string, qty int) error {
	return v.with("IncrementStock", func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
		}
		p.Stock += qty
		st.products[id] = p
		v.store.stock = append(v.store.stock, "+"+id)
		return nil
	})
}

// ---- CartRepo ----

func (st *state) cartOf(userID string) (cartRow, bool) {
	for _, c := range st.carts {
		if c.UserID == userID {
			return c, true
		}
	}
	return cartRow{}, false
}

func (st *state) resolveCart(c cartRow) *orders.Cart {
	out := &orders.Cart{ID: c.ID, UserID: c.UserID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt, Items: []orders.CartItem{}}
	for _, it := range st.cartItems {
		if it.CartID != c.ID {
			continue
		}
		p := st.products[it.ProductID]
		it.Product = &p
		out.Items = append(out.Items, it)
	}
	sort.Slice(out.Items, func(i, j int) bool {
		if out.Items[i].CreatedAt.Equal(out.Items[j].CreatedAt) {
			return out.Items[i].ID < out.Items[j].ID
		}
		return out.Items[i].CreatedAt.Before(out.Items[j].CreatedAt)
	})
	return out
}

func (v *view) GetCartByUser(_ context.Context, userID string) (*orders.Cart, error) {
	var out *orders.Cart
	err := v.with("GetCartByUser", func(st *state) error {
		c, ok := st.cartOf(userID)
		if !ok {
			return fmt.Errorf("%w: cart for user %s", apperr.ErrNotFound, userID)
		}
		out = st.resolveCart(c)
		return nil
	})
	return out, err
}

func (v *view) LockCartByUser(ctx context.Context, userID string) (*orders.Cart, error) {
	if err := v.with("LockCartByUser", func(*state) error { return nil }); err != nil {
		return nil, err
	}
	return v.GetCartByUser(ctx, userID)
}

func (v *view) EnsureCart(_ context.Context, userID string) (*orders.Cart, error) {
	var out *orders.Cart
	err := v.with("EnsureCart", func(st *state) error {
		c, ok := st.cartOf(userID)
		now := v.store.now()
		if !ok {
			c = cartRow{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
		}
		c.UpdatedAt = now
		st.carts[c.ID] = c
		out = &orders.Cart{ID: c.ID, UserID: c.UserID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt, Items: []orders.CartItem{}}
		return nil
	})
	return out, err
}

func (v *view) AddCartItem(_ context.Context, cartID, productID string, qty int) error {
	return v.with("AddCartItem", func(st *state) error {
		if _, ok := st.products[productID]; !ok {
			return fmt.Errorf("%w: product %s", apperr.ErrNotFound, productID)
		}
		for id, it := range st.cartItems {
			if it.CartID == cartID && it.ProductID == productID {
				it.Quantity += qty
				st.cartItems[id] = it
				return nil
			}
		}
		id := uuid.NewString()
		st.cartItems[id] = orders.CartItem{ID: id, CartID: cartID, ProductID: productID, Quantity: qty, CreatedAt: v.store.now()}
		return nil
	})
}

func (v *view) SetCartItemQuantity(_ context.Context, cartID, itemID string, qty int) error {
	return v.with("SetCartItemQuantity", func(st *state) error {
		it, ok := st.cartItems[itemID]
		if !ok || it.CartID != cartID {
			return fmt.Errorf("%w: cart item %s", apperr.ErrNotFound, itemID)
		}
		it.Quantity = qty
		st.cartItems[itemID] = it
		return nil
	})
}

func (v *view) DeleteCartItem(_ context.Context, cartID, itemID string) error {
	return v.with("DeleteCartItem", func(st *state) error {
		it, ok := st.cartItems[itemID]
		if !ok || it.CartID != cartID {
			return fmt.Errorf("%w: cart item %s", apperr.ErrNotFound, itemID)
		}
		delete(st.cartItems, itemID)
		return nil
	})
}

func (v *view) ClearCart(_ context.Context, cartID string) error {
	return v.with("ClearCart", func(st *state) error {
		for id, it := range st.cartItems {
			if it.CartID == cartID {
				delete(st.cartItems, id)
			}
		}
		return nil
	})
}

// ---- OrderRepo ----

func (v *view) CreateOrder(_ context.Context, o *orders.Order) error {
	return v.with("CreateOrder", func(st *state) error {
		for _, other := range st.orders {
			if other.OrderNumber == o.OrderNumber {
				return fmt.Errorf("%w: order number %s", apperr.ErrConflict, o.OrderNumber)
			}
			if o.IdempotencyKey != "" && other.UserID == o.UserID && other.IdempotencyKey == o.IdempotencyKey {
				return fmt.Errorf("%w: idempotency key %s", apperr.ErrConflict, o.IdempotencyKey)
			}
		}
		now := v.store.now()
		o.CreatedAt, o.UpdatedAt = now, now
		for i := range o.Items {
			o.Items[i].OrderID = o.ID
			o.Items[i].CreatedAt = now
		}
		st.orders[o.ID] = copyOrder(*o)
		return nil
	})
}

func (v *view) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	var out *orders.Order
	err := v.with("GetOrder", func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return fmt.Errorf("order: %w", apperr.ErrNotFound)
		}
		c := copyOrder(o)
		out = &c
		return nil
	})
	return out, err
}

func (v *view) LockOrder(_ context.Context, id string) (*orders.Order, error) {
	var out *orders.Order
	err := v.with("LockOrder", func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return fmt.Errorf("order: %w", apperr.ErrNotFound)
		}
		c := copyOrder(o)
		c.Items = nil
		out = &c
		return nil
	})
	return out, err
}

func (v *view) FindOrderByIdempotencyKey(_ context.Context, userID, key string) (*orders.Order, error) {
	var out *orders.Order
	err := v.with("FindOrderByIdempotencyKey", func(st *state) error {
		for _, o := range st.orders {
			if o.UserID == userID && o.IdempotencyKey == key {
				c := copyOrder(o)
				out = &c
				return nil
			}
		}
		return fmt.Errorf("order: %w", apperr.ErrNotFound)
	})
	return out, err
}

func (v *view) ListOrders(_ context.Context, f orders.OrderFilter) ([]orders.Order, int, error) {
	f.Page = f.Page.Normalize()
	var out []orders.Order
	var total int
	err := v.with("ListOrders", func(st *state) error {
		all := []orders.Order{}
		for _, o := range st.orders {
			if (f.UserID == "" || o.UserID == f.UserID) && (f.Status == "" || o.Status == f.Status) {
				all = append(all, copyOrder(o))
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
		total = len(all)
		out = page(all, f.Page)
		return nil
	})
	return out, total, err
}

func (v *view) UpdateOrderStatus(_ context.Context, id string, from, to orders.Status) error {
	return v.with("UpdateOrderStatus", func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
		}
		if o.Status != from {
			return fmt.Errorf("%w: order %s was modified concurrently", apperr.ErrConflict, id)
		}
		o.Status = to
		o.UpdatedAt = v.store.now()
		st.orders[id] = o
		return nil
	})
}

// ---- PaymentRepo ----

func (v *view) CreatePayment(_ context.Context, p *orders.Payment) error {
	return v.with("CreatePayment", func(st *state) error {
		if _, ok := st.orders[p.OrderID]; !ok {
			return fmt.Errorf("%w: order %s", apperr.ErrNotFound, p.OrderID)
		}
		now := v.store.now()
		p.CreatedAt, p.UpdatedAt = now, now
		st.payments[p.ID] = *p
		return nil
	})
}

func (v *view) GetPayment(_ context.Context, id string) (*orders.Payment, error) {
	var out *orders.Payment
	err := v.with("GetPayment", func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
		}
		out = &p
		return nil
	})
	return out, err
}

func (v *view) ListPaymentsByOrder(_ context.Context, orderID string) ([]orders.Payment, error) {
	out := []orders.Payment{}
	err := v.with("ListPaymentsByOrder", func(st *state) error {
		for _, p := range st.payments {
			if p.OrderID == orderID {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (v *view) UpdatePaymentStatus(_ context.Context, id string, from, to orders.PaymentStatus, transactionID string) error {
	return v.with("UpdatePaymentStatus", func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return fmt.Errorf("%w: payment %s", apperr.ErrNotFound, id)
		}
		if p.Status != from {
			return fmt.Errorf("%w: payment %s was modified concurrently", apperr.ErrConflict, id)
		}
		if transactionID != "" && p.TransactionID != "" && p.TransactionID != transactionID {
			return fmt.Errorf("%w: payment %s holds another transaction", apperr.ErrConflict, id)
		}
		p.Status = to
		if transactionID != "" {
			p.TransactionID = transactionID
		}
		p.UpdatedAt = v.store.now()
		st.payments[id] = p
		return nil
	})
}

// ---- ReturnRepo ----

func (v *view) CreateReturn(_ context.Context, r *orders.Return) error {
	return v.with("CreateReturn", func(st *state) error {
		if _, ok := st.orders[r.OrderID]; !ok {
			return fmt.Errorf("%w: order %s", apperr.ErrNotFound, r.OrderID)
		}
		now := v.store.now()
		r.CreatedAt, r.UpdatedAt = now, now
		st.returns[r.ID] = *r
		return nil
	})
}

func (v *view) GetReturn(_ context.Context, id string) (*orders.Return, error) {
	var out *orders.Return
	err := v.with("GetReturn", func(st *state) error {
		r, ok := st.returns[id]
		if !ok {
			return fmt.Errorf("return %s: %w", id, apperr.ErrNotFound)
		}
		out = &r
		return nil
	})
	return out, err
}

func (v *view) ListReturns(_ context.Context, f orders.ReturnFilter) ([]orders.Return, int, error) {
	f.Page = f.Page.Normalize()
	var out []orders.Return
	var total int
	err := v.with("ListReturns", func(st *state) error {
		all := []orders.Return{}
		for _, r := range st.returns {
			if (f.UserID == "" || r.UserID == f.UserID) && (f.Status == "" || r.Status == f.Status) {
				all = append(all, r)
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
		total = len(all)
		out = page(all, f.Page)
		return nil
	})
	return out, total, err
}

func (v *view) RefundedTotal(_ context.Context, orderID, excludeID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := v.with("RefundedTotal", func(st *state) error {
		for id, r := range st.returns {
			if r.OrderID != orderID || id == excludeID || !r.RefundAmount.Valid {
				continue
			}
			if r.Status == orders.ReturnApproved || r.Status == orders.ReturnSettled {
				sum = sum.Add(r.RefundAmount.Decimal)
			}
		}
		return nil
	})
	return sum, err
}

func (v *view) UpdateReturn(_ context.Context, id string, from, to orders.ReturnStatus, refund decimal.NullDecimal) error {
	return v.with("UpdateReturn", func(st *state) error {
		r, ok := st.returns[id]
		if !ok {
			return fmt.Errorf("%w: return %s", apperr.ErrNotFound, id)
		}
		if r.Status != from {
			return fmt.Errorf("%w: return %s was modified concurrently", apperr.ErrConflict, id)
		}
		r.Status = to
		if refund.Valid {
			r.RefundAmount = refund
		}
		r.UpdatedAt = v.store.now()
		st.returns[id] = r
		return nil
	})
}

func page[T any](all []T, p orders.Page) []T {
	start := p.Offset()
	if start >= len(all) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
