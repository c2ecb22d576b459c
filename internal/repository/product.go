package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-fulfillment/internal/domain/product"
)

const (
	getProductSQL = `SELECT id, name, price, category, active FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, category, active
	FROM products WHERE id = ANY($1) AND active ORDER BY id`

	listProductsSQL = `SELECT id, name, price, category, active
	FROM products WHERE active ORDER BY id`

	upsertProductSQL = `INSERT INTO products (id, name, price, category, active)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
	category = EXCLUDED.category, active = EXCLUDED.active`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Put inserts or replaces p.
func (r *ProductRepository) Put(ctx context.Context, p product.Product) error {
	_, err := r.db.q(ctx).Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Category, p.Active)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// GetByID returns the product, active or not.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query product %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[product.Product])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan product %q", id)
	}
	return &p, nil
}

// GetByIDs returns the active products among ids. Unknown IDs are skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.collect(ctx, getProductsByIDsSQL, ids)
}

// List implements product.Repository.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	return r.collect(ctx, listProductsSQL)
}

func (r *ProductRepository) collect(ctx context.Context, sql string, args ...any) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByPos[product.Product])
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}
