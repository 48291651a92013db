package transfer

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes the transfer header and its items in one transaction.
func (r *Repository) Insert(ctx context.Context, transfer Transfer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO stock_transfers (id, source_branch_id, target_branch_id, status, note, requested_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())`,
		transfer.ID, transfer.SourceBranchID, transfer.TargetBranchID, string(transfer.Status), transfer.Note, transfer.RequestedBy)
	if err != nil {
		return err
	}
	for _, item := range transfer.Items {
		_, err = tx.Exec(ctx, `INSERT INTO stock_transfer_items (transfer_id, product_id, qty, batch_number)
VALUES ($1,$2,$3,$4)`, transfer.ID, item.ProductID, item.Qty, item.BatchNumber)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Get loads one transfer with its items.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Transfer, error) {
	var t Transfer
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, source_branch_id, target_branch_id, status, note, requested_by, approved_by, created_at, updated_at
FROM stock_transfers WHERE id = $1`, id).Scan(
		&t.ID, &t.SourceBranchID, &t.TargetBranchID, &status, &t.Note, &t.RequestedBy, &t.ApprovedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound
	}
	if err != nil {
		return Transfer{}, err
	}
	t.Status = Status(status)

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, qty, batch_number
FROM stock_transfer_items WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.BatchNumber); err != nil {
			return Transfer{}, err
		}
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}

// List returns transfer headers matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Transfer, error) {
	query := `SELECT id, source_branch_id, target_branch_id, status, note, requested_by, approved_by, created_at, updated_at
FROM stock_transfers WHERE 1=1`
	args := make([]any, 0, 4)
	idx := 1
	if filter.BranchID != 0 {
		query += ` AND (source_branch_id = $` + strconv.Itoa(idx) + ` OR target_branch_id = $` + strconv.Itoa(idx) + `)`
		args = append(args, filter.BranchID)
		idx++
	}
	if filter.Status != "" {
		query += ` AND status = $` + strconv.Itoa(idx)
		args = append(args, string(filter.Status))
		idx++
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(idx) + ` OFFSET $` + strconv.Itoa(idx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []Transfer
	for rows.Next() {
		var t Transfer
		var status string
		if err := rows.Scan(&t.ID, &t.SourceBranchID, &t.TargetBranchID, &status, &t.Note, &t.RequestedBy, &t.ApprovedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = Status(status)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// ClaimStatus flips status atomically; zero affected rows means the
// transfer was not in the expected state (or does not exist).
func (r *Repository) ClaimStatus(ctx context.Context, id uuid.UUID, from, to Status, actorID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_transfers
SET status = $3, approved_by = $4, updated_at = NOW()
WHERE id = $1 AND status = $2`, id, string(from), string(to), actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}
