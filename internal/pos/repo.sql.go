package pos

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads committed sales. Sale rows are written by the movement
// engine inside the deduction transaction; this side only queries them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSale loads a sale with its lines and batch consumptions.
func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	var sale Sale
	err := r.pool.QueryRow(ctx, `SELECT id, branch_id, actor_id, total, created_at
FROM sales WHERE id = $1`, id).Scan(&sale.ID, &sale.BranchID, &sale.ActorID, &sale.Total, &sale.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return Sale{}, err
	}
	lines, err := r.saleLines(ctx, sale.ID)
	if err != nil {
		return Sale{}, err
	}
	sale.Lines = lines
	return sale, nil
}

func (r *Repository) saleLines(ctx context.Context, saleID uuid.UUID) ([]SaleLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, qty, unit_price
FROM sale_lines WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []SaleLine
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Qty, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range lines {
		consumed, err := r.lineConsumptions(ctx, lines[i].ID)
		if err != nil {
			return nil, err
		}
		lines[i].Consumed = consumed
	}
	return lines, nil
}

func (r *Repository) lineConsumptions(ctx context.Context, saleLineID int64) ([]SaleConsumption, error) {
	rows, err := r.pool.Query(ctx, `SELECT batch_id, batch_number, qty, unit_cost
FROM sale_consumptions WHERE sale_line_id = $1 ORDER BY batch_id`, saleLineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var consumed []SaleConsumption
	for rows.Next() {
		var c SaleConsumption
		if err := rows.Scan(&c.BatchID, &c.BatchNumber, &c.Qty, &c.UnitCost); err != nil {
			return nil, err
		}
		consumed = append(consumed, c)
	}
	return consumed, rows.Err()
}

// ListSales returns sale headers matching the filter, newest first.
func (r *Repository) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error) {
	query := `SELECT id, branch_id, actor_id, total, created_at FROM sales WHERE 1=1`
	args := make([]any, 0, 5)
	idx := 1
	if filter.BranchID != 0 {
		query += ` AND branch_id = $` + strconv.Itoa(idx)
		args = append(args, filter.BranchID)
		idx++
	}
	if !filter.From.IsZero() {
		query += ` AND created_at >= $` + strconv.Itoa(idx)
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		query += ` AND created_at < $` + strconv.Itoa(idx)
		args = append(args, filter.To)
		idx++
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(idx) + ` OFFSET $` + strconv.Itoa(idx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var sale Sale
		if err := rows.Scan(&sale.ID, &sale.BranchID, &sale.ActorID, &sale.Total, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}
