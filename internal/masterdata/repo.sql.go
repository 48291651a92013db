package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads branch and product reference data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetBranch loads a branch by id.
func (r *Repository) GetBranch(ctx context.Context, id int64) (Branch, error) {
	if r == nil {
		return Branch{}, errors.New("masterdata repository not initialised")
	}
	var b Branch
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, address, is_active, created_at, updated_at
FROM branches WHERE id=$1`, id).Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, ErrBranchNotFound
		}
		return Branch{}, err
	}
	return b, nil
}

// BranchExists reports whether an active branch with the id exists.
func (r *Repository) BranchExists(ctx context.Context, id int64) (bool, error) {
	if r == nil {
		return false, errors.New("masterdata repository not initialised")
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM branches WHERE id=$1 AND is_active)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	if r == nil {
		return Product{}, errors.New("masterdata repository not initialised")
	}
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, unit, min_stock_level, cost_price, sell_price, is_active, created_at, updated_at
FROM products WHERE id=$1`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.MinStockLevel, &p.CostPrice, &p.SellPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ProductExists reports whether an active product with the id exists.
func (r *Repository) ProductExists(ctx context.Context, id int64) (bool, error) {
	if r == nil {
		return false, errors.New("masterdata repository not initialised")
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1 AND is_active)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ListActiveProducts returns products for scanning jobs.
func (r *Repository) ListActiveProducts(ctx context.Context) ([]Product, error) {
	if r == nil {
		return nil, errors.New("masterdata repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, unit, min_stock_level, cost_price, sell_price, is_active, created_at, updated_at
FROM products WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.MinStockLevel, &p.CostPrice, &p.SellPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListActiveBranches returns branches for scanning jobs.
func (r *Repository) ListActiveBranches(ctx context.Context) ([]Branch, error) {
	if r == nil {
		return nil, errors.New("masterdata repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, address, is_active, created_at, updated_at
FROM branches WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var branches []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}
