package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const batchColumns = `id, branch_id, product_id, batch_number, expiry_date, quantity, unit_cost, status, received_at`

// WithTx executes the callback inside a repeatable-read transaction.
// Retryable conflicts surface as shared.ErrConcurrentModification.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return shared.ClassifyPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return shared.ClassifyPgError(err)
	}
	return nil
}

// GetLine loads the aggregate for a branch/product pair.
func (r *Repository) GetLine(ctx context.Context, branchID, productID int64) (InventoryLine, error) {
	if r == nil {
		return InventoryLine{}, errors.New("inventory repository not initialised")
	}
	var line InventoryLine
	err := r.pool.QueryRow(ctx, `SELECT branch_id, product_id, quantity, custom_price, updated_at
FROM inventory_lines WHERE branch_id=$1 AND product_id=$2`, branchID, productID).
		Scan(&line.BranchID, &line.ProductID, &line.Quantity, &line.CustomPrice, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InventoryLine{BranchID: branchID, ProductID: productID}, nil
		}
		return InventoryLine{}, err
	}
	return line, nil
}

// ListBatches returns every batch for a branch/product pair, FIFO ordered.
func (r *Repository) ListBatches(ctx context.Context, branchID, productID int64) ([]Batch, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM inventory_batches
WHERE branch_id=$1 AND product_id=$2
ORDER BY expiry_date ASC, received_at ASC, id ASC`, branchID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// ExpiredActiveBatches lists ACTIVE batches whose expiry date is strictly
// before asOf.
func (r *Repository) ExpiredActiveBatches(ctx context.Context, asOf time.Time) ([]Batch, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM inventory_batches
WHERE status='ACTIVE' AND expiry_date < $1
ORDER BY branch_id ASC, product_id ASC, expiry_date ASC, id ASC`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// ListLineKeys returns every (branch, product) pair that has a line row.
func (r *Repository) ListLineKeys(ctx context.Context) ([]shared.LineKey, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT branch_id, product_id FROM inventory_lines ORDER BY branch_id, product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []shared.LineKey
	for rows.Next() {
		var k shared.LineKey
		if err := rows.Scan(&k.BranchID, &k.ProductID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListBelowMinStock reports lines under their product minimum stock level.
func (r *Repository) ListBelowMinStock(ctx context.Context) ([]LowStockEntry, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT l.branch_id, l.product_id, p.name, l.quantity, p.min_stock_level
FROM inventory_lines l
JOIN products p ON p.id = l.product_id
WHERE p.is_active AND l.quantity < p.min_stock_level
ORDER BY l.branch_id, l.product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LowStockEntry
	for rows.Next() {
		var e LowStockEntry
		if err := rows.Scan(&e.BranchID, &e.ProductID, &e.ProductName, &e.Quantity, &e.MinStock); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) LockLine(ctx context.Context, branchID, productID int64) (InventoryLine, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_lines (branch_id, product_id, quantity, updated_at)
VALUES ($1, $2, 0, NOW())
ON CONFLICT (branch_id, product_id) DO NOTHING`, branchID, productID)
	if err != nil {
		return InventoryLine{}, err
	}
	var line InventoryLine
	err = r.tx.QueryRow(ctx, `SELECT branch_id, product_id, quantity, custom_price, updated_at
FROM inventory_lines WHERE branch_id=$1 AND product_id=$2 FOR UPDATE`, branchID, productID).
		Scan(&line.BranchID, &line.ProductID, &line.Quantity, &line.CustomPrice, &line.UpdatedAt)
	if err != nil {
		return InventoryLine{}, err
	}
	return line, nil
}

func (r *txRepository) ActiveBatches(ctx context.Context, branchID, productID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM inventory_batches
WHERE branch_id=$1 AND product_id=$2 AND status='ACTIVE'
ORDER BY expiry_date ASC, received_at ASC, id ASC`, branchID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *txRepository) GetBatch(ctx context.Context, branchID, productID int64, batchNumber string) (Batch, error) {
	var b Batch
	err := r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM inventory_batches
WHERE branch_id=$1 AND product_id=$2 AND batch_number=$3`, branchID, productID, batchNumber).
		Scan(&b.ID, &b.BranchID, &b.ProductID, &b.BatchNumber, &b.ExpiryDate, &b.Quantity, &b.UnitCost, &b.Status, &b.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (r *txRepository) UpsertBatch(ctx context.Context, batch Batch) (Batch, error) {
	var out Batch
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_batches (branch_id, product_id, batch_number, expiry_date, quantity, unit_cost, status, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8, NOW()))
ON CONFLICT (branch_id, product_id, batch_number) DO UPDATE
SET quantity = inventory_batches.quantity + EXCLUDED.quantity,
    unit_cost = EXCLUDED.unit_cost,
    status = 'ACTIVE'
RETURNING `+batchColumns,
		batch.BranchID, batch.ProductID, batch.BatchNumber, batch.ExpiryDate, batch.Quantity,
		batch.UnitCost, string(batch.Status), nullTime(batch.ReceivedAt)).
		Scan(&out.ID, &out.BranchID, &out.ProductID, &out.BatchNumber, &out.ExpiryDate, &out.Quantity, &out.UnitCost, &out.Status, &out.ReceivedAt)
	if err != nil {
		return Batch{}, err
	}
	return out, nil
}

func (r *txRepository) AddBatchQuantity(ctx context.Context, batchID, delta int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_batches SET quantity = quantity + $2
WHERE id=$1 AND quantity + $2 >= 0`, batchID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: batch %d delta %d", ErrInsufficientStock, batchID, delta)
	}
	return nil
}

func (r *txRepository) SetBatchStatus(ctx context.Context, batchID int64, status BatchStatus) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_batches SET status=$2 WHERE id=$1`, batchID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *txRepository) ZeroBatch(ctx context.Context, batchID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_batches SET quantity=0 WHERE id=$1`, batchID)
	return err
}

func (r *txRepository) RecomputeLine(ctx context.Context, branchID, productID int64) (InventoryLine, error) {
	var line InventoryLine
	err := r.tx.QueryRow(ctx, `UPDATE inventory_lines SET
quantity = GREATEST(0,
	COALESCE((SELECT SUM(quantity) FROM inventory_batches
		WHERE branch_id=$1 AND product_id=$2 AND status='ACTIVE'), 0)
	+ COALESCE((SELECT SUM(delta) FROM inventory_adjustments
		WHERE branch_id=$1 AND product_id=$2), 0)),
updated_at = NOW()
WHERE branch_id=$1 AND product_id=$2
RETURNING branch_id, product_id, quantity, custom_price, updated_at`, branchID, productID).
		Scan(&line.BranchID, &line.ProductID, &line.Quantity, &line.CustomPrice, &line.UpdatedAt)
	if err != nil {
		return InventoryLine{}, err
	}
	return line, nil
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj AdjustInput) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_adjustments (branch_id, product_id, delta, reason, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,NOW())`, adj.BranchID, adj.ProductID, adj.Delta, adj.Reason, adj.ActorID)
	return err
}

func (r *txRepository) InsertSale(ctx context.Context, sale SaleRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sales (id, branch_id, actor_id, total, created_at)
VALUES ($1,$2,$3,$4,$5)`, sale.ID, sale.BranchID, sale.ActorID, sale.Total, sale.CreatedAt)
	return err
}

func (r *txRepository) InsertSaleLine(ctx context.Context, line SaleLineRecord) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_lines (sale_id, product_id, qty, unit_price)
VALUES ($1,$2,$3,$4) RETURNING id`, line.SaleID, line.ProductID, line.Qty, line.UnitPrice).Scan(&id)
	return id, err
}

func (r *txRepository) InsertSaleConsumptions(ctx context.Context, saleLineID int64, consumed []BatchConsumption) error {
	for _, c := range consumed {
		if _, err := r.tx.Exec(ctx, `INSERT INTO sale_consumptions (sale_line_id, batch_id, batch_number, qty, unit_cost)
VALUES ($1,$2,$3,$4,$5)`, saleLineID, c.BatchID, c.BatchNumber, c.Qty, c.UnitCost); err != nil {
			return err
		}
	}
	return nil
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.BranchID, &b.ProductID, &b.BatchNumber, &b.ExpiryDate, &b.Quantity, &b.UnitCost, &b.Status, &b.ReceivedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
