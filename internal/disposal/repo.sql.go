package disposal

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists disposal requests in PostgreSQL. disposal_items
// carries a partial unique index on batch_id while the claim is held, so
// re-running the sweep or racing two requests over the same batch can
// never duplicate a disposal; terminal requests release their claims.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes the header and items in one transaction. Items that
// conflict on batch_id are skipped; a request whose items all conflict is
// rolled back entirely.
func (r *Repository) Insert(ctx context.Context, disposal Disposal) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO disposals (id, branch_id, reason, status, requested_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())`,
		disposal.ID, disposal.BranchID, disposal.Reason, string(disposal.Status), disposal.RequestedBy)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, item := range disposal.Items {
		tag, err := tx.Exec(ctx, `INSERT INTO disposal_items (disposal_id, batch_id, product_id, batch_number, qty, claimed)
VALUES ($1,$2,$3,$4,$5,TRUE)
ON CONFLICT (batch_id) WHERE claimed DO NOTHING`,
			disposal.ID, item.BatchID, item.ProductID, item.BatchNumber, item.Qty)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	if inserted == 0 {
		return 0, nil
	}
	return inserted, tx.Commit(ctx)
}

// ReleaseBatchClaims frees the batch claims of a terminal request so the
// batches can be requested again later.
func (r *Repository) ReleaseBatchClaims(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE disposal_items SET claimed = FALSE WHERE disposal_id = $1`, id)
	return err
}

// Get loads one disposal with its items.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Disposal, error) {
	var d Disposal
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, branch_id, reason, status, requested_by, approved_by, created_at, updated_at
FROM disposals WHERE id = $1`, id).Scan(
		&d.ID, &d.BranchID, &d.Reason, &status, &d.RequestedBy, &d.ApprovedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Disposal{}, ErrNotFound
	}
	if err != nil {
		return Disposal{}, err
	}
	d.Status = Status(status)

	rows, err := r.pool.Query(ctx, `SELECT id, batch_id, product_id, batch_number, qty
FROM disposal_items WHERE disposal_id = $1 ORDER BY id`, id)
	if err != nil {
		return Disposal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item DisposalItem
		if err := rows.Scan(&item.ID, &item.BatchID, &item.ProductID, &item.BatchNumber, &item.Qty); err != nil {
			return Disposal{}, err
		}
		d.Items = append(d.Items, item)
	}
	return d, rows.Err()
}

// List returns disposal headers matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Disposal, error) {
	query := `SELECT id, branch_id, reason, status, requested_by, approved_by, created_at, updated_at
FROM disposals WHERE 1=1`
	args := make([]any, 0, 4)
	idx := 1
	if filter.BranchID != 0 {
		query += ` AND branch_id = $` + strconv.Itoa(idx)
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

	var disposals []Disposal
	for rows.Next() {
		var d Disposal
		var status string
		if err := rows.Scan(&d.ID, &d.BranchID, &d.Reason, &status, &d.RequestedBy, &d.ApprovedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Status = Status(status)
		disposals = append(disposals, d)
	}
	return disposals, rows.Err()
}

// ClaimStatus flips status atomically; zero affected rows means the
// request was not in the expected state.
func (r *Repository) ClaimStatus(ctx context.Context, id uuid.UUID, from, to Status, actorID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE disposals
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
