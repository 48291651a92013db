package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStatus enumerates batch lifecycle states.
type BatchStatus string

const (
	// BatchActive counts toward the branch aggregate and is eligible for sale.
	BatchActive BatchStatus = "ACTIVE"
	// BatchOnHold is excluded from sale and from the aggregate.
	BatchOnHold BatchStatus = "ON_HOLD"
	// BatchRejected marks stock refused at receiving or recalled.
	BatchRejected BatchStatus = "REJECTED"
	// BatchExpired marks stock flagged by the expiry sweep.
	BatchExpired BatchStatus = "EXPIRED"
)

// IsValid checks if the status is a known state.
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchActive, BatchOnHold, BatchRejected, BatchExpired:
		return true
	default:
		return false
	}
}

// Batch is an expiry-dated lot of one product at one branch. A batch
// belongs to exactly one (branch, product) pair at a time; transfers
// re-home or split it, they never share it. Quantity reaching zero keeps
// the row for history.
type Batch struct {
	ID          int64           `json:"id"`
	BranchID    int64           `json:"branch_id"`
	ProductID   int64           `json:"product_id"`
	BatchNumber string          `json:"batch_number"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	Quantity    int64           `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Status      BatchStatus     `json:"status"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// InventoryLine is the per-branch, per-product aggregate. Its quantity is
// always recomputed from ACTIVE batch sums plus the adjustment ledger,
// never trusted independently.
type InventoryLine struct {
	BranchID    int64            `json:"branch_id"`
	ProductID   int64            `json:"product_id"`
	Quantity    int64            `json:"quantity"`
	CustomPrice *decimal.Decimal `json:"custom_price,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ReceiveInput describes a stock receipt.
type ReceiveInput struct {
	BranchID    int64
	ProductID   int64
	BatchNumber string
	ExpiryDate  time.Time
	Qty         int64
	UnitCost    decimal.Decimal
	ActorID     int64
}

// AdjustInput describes a direct aggregate correction not tied to a batch
// (shrinkage, damage, count reconciliation). Reason is mandatory.
type AdjustInput struct {
	BranchID  int64
	ProductID int64
	Delta     int64
	Reason    string
	ActorID   int64
}

// SellInput describes a multi-line sale. All lines commit or none do.
type SellInput struct {
	BranchID int64
	ActorID  int64
	Items    []SellItem
}

// SellItem is one sale line. UnitPrice is resolved by the caller (branch
// custom price or product sell price) at the moment of sale. A non-empty
// BatchNumber pins the whole line to that batch instead of FIFO.
type SellItem struct {
	ProductID   int64
	Qty         int64
	UnitPrice   decimal.Decimal
	BatchNumber string
}

// BatchConsumption records how much of one batch a deduction took, with
// the cost captured from the batch rather than the current product cost.
type BatchConsumption struct {
	BatchID     int64           `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Qty         int64           `json:"qty_from_batch"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	ReceivedAt  time.Time       `json:"-"`
}

// ItemConsumption groups consumptions per sold product.
type ItemConsumption struct {
	ProductID int64              `json:"product_id"`
	Qty       int64              `json:"qty"`
	Batches   []BatchConsumption `json:"batches"`
}

// SaleResult reports a committed sale.
type SaleResult struct {
	SaleID        uuid.UUID         `json:"sale_id"`
	BranchID      int64             `json:"branch_id"`
	ItemsConsumed []ItemConsumption `json:"items_consumed"`
	Lines         []InventoryLine   `json:"lines"`
	Total         decimal.Decimal   `json:"total"`
	CreatedAt     time.Time         `json:"created_at"`
}

// BatchRef names a batch within a branch for disposal execution.
type BatchRef struct {
	ProductID   int64
	BatchNumber string
}

// TransferStockInput describes the two-sided movement executed when a
// transfer is approved. Stock leaves the source only here, never at
// transfer creation.
type TransferStockInput struct {
	TransferID     uuid.UUID
	SourceBranchID int64
	TargetBranchID int64
	ActorID        int64
	Items          []TransferStockItem
}

// TransferStockItem moves qty units of a product; when BatchNumber is set
// the named batch is moved to preserve expiry provenance.
type TransferStockItem struct {
	ProductID   int64
	Qty         int64
	BatchNumber string
}

var (
	// ErrInsufficientStock indicates the requested deduction exceeds the
	// ACTIVE quantity at the branch. The whole enclosing operation fails.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrNoActiveInventory indicates zero ACTIVE batches exist for a
	// requested line, distinct from partial insufficiency.
	ErrNoActiveInventory = errors.New("inventory: no active inventory")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrReasonRequired indicates an adjustment without a reason.
	ErrReasonRequired = errors.New("inventory: adjustment reason required")
	// ErrBatchNotFound indicates a named batch does not exist at the branch.
	ErrBatchNotFound = errors.New("inventory: batch not found")
	// ErrInvalidStatus indicates an unknown batch status.
	ErrInvalidStatus = errors.New("inventory: invalid batch status")
)
