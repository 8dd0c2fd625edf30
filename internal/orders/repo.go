package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

// Repo implements every repository interface over a pool or a transaction.
type Repo struct {
	DB      postgres.DBTX
	Timeout time.Duration
}

func (r *Repo) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	t := r.Timeout
	if t <= 0 {
		t = defaultQueryTimeout
	}
	return context.WithTimeout(ctx, t)
}

func (r *Repo) Products() ProductRepo { return r }
func (r *Repo) Carts() CartRepo       { return r }
func (r *Repo) Orders() OrderRepo     { return r }
func (r *Repo) Payments() PaymentRepo { return r }
func (r *Repo) Returns() ReturnRepo   { return r }

type PGStore struct {
	*Repo
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PGStore {
	return &PGStore{Repo: &Repo{DB: pool, Timeout: queryTimeout}, pool: pool}
}

// InTx runs at READ COMMITTED: stock safety comes from the conditional
// decrement, which Postgres re-checks after waiting on the row lock.
func (s *PGStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error {
	return postgres.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &Repo{DB: tx, Timeout: s.Timeout})
	})
}

const productColumns = `p.id, p.sku, p.name, p.description, p.price::text, p.stock, p.created_at, p.updated_at`

func scanProduct(row pgx.Row, p *Product) error {
	return row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var p Product
	row := r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id=$1`, id)
	if err := scanProduct(row, &p); err != nil {
		return nil, fmt.Errorf("product %s: %w", id, postgres.Classify(err))
	}
	return &p, nil
}

// DecrementStock checks and writes in one statement so two concurrent
// checkouts cannot both pass the check.
func (r *Repo) DecrementStock(ctx context.Context, id string, qty int) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return postgres.Classify(err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// zero rows: either missing product or not enough stock
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, id).Scan(&exists); err != nil {
		return postgres.Classify(err)
	}
	if !exists {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
	}
	return fmt.Errorf("%w: product %s", apperr.ErrInsufficientStock, id)
}

func (r *Repo) IncrementStock(ctx context.Context, id string, qty int) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	ct, err := r.DB.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id=$1`, id, qty)
	if err != nil {
		return postgres.Classify(err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
	}
	return nil
}
