package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the movement engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLine(ctx context.Context, branchID, productID int64) (InventoryLine, error)
	ListBatches(ctx context.Context, branchID, productID int64) ([]Batch, error)
	ExpiredActiveBatches(ctx context.Context, asOf time.Time) ([]Batch, error)
	ListLineKeys(ctx context.Context) ([]shared.LineKey, error)
	ListBelowMinStock(ctx context.Context) ([]LowStockEntry, error)
}

// TxRepository exposes transactional operations used by the engine. All
// writers lock the inventory line row first; batch mutations for the same
// key happen under that lock.
type TxRepository interface {
	// LockLine creates the line row when absent and acquires its row lock.
	LockLine(ctx context.Context, branchID, productID int64) (InventoryLine, error)
	ActiveBatches(ctx context.Context, branchID, productID int64) ([]Batch, error)
	GetBatch(ctx context.Context, branchID, productID int64, batchNumber string) (Batch, error)
	// UpsertBatch inserts the batch or tops up quantity on an existing
	// (branch, product, batch_number) row, reactivating it.
	UpsertBatch(ctx context.Context, batch Batch) (Batch, error)
	// AddBatchQuantity applies a signed delta; it fails instead of taking
	// a batch below zero.
	AddBatchQuantity(ctx context.Context, batchID, delta int64) error
	SetBatchStatus(ctx context.Context, batchID int64, status BatchStatus) error
	ZeroBatch(ctx context.Context, batchID int64) error
	// RecomputeLine rebuilds the aggregate from ACTIVE batch sums plus the
	// adjustment ledger, clamped at zero, and returns the result.
	RecomputeLine(ctx context.Context, branchID, productID int64) (InventoryLine, error)
	InsertAdjustment(ctx context.Context, adj AdjustInput) error
	InsertSale(ctx context.Context, sale SaleRecord) error
	InsertSaleLine(ctx context.Context, line SaleLineRecord) (int64, error)
	InsertSaleConsumptions(ctx context.Context, saleLineID int64, consumed []BatchConsumption) error
}

// SaleRecord is the persisted sale header.
type SaleRecord struct {
	ID        uuid.UUID
	BranchID  int64
	ActorID   int64
	Total     decimal.Decimal
	CreatedAt time.Time
}

// SaleLineRecord is one persisted sale line.
type SaleLineRecord struct {
	SaleID    uuid.UUID
	ProductID int64
	Qty       int64
	UnitPrice decimal.Decimal
}

// LowStockEntry reports a line under its product minimum.
type LowStockEntry struct {
	BranchID    int64  `json:"branch_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	MinStock    int64  `json:"min_stock"`
}
