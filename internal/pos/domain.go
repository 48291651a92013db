package pos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is a committed point-of-sale transaction.
type Sale struct {
	ID        uuid.UUID       `json:"id"`
	BranchID  int64           `json:"branch_id"`
	ActorID   int64           `json:"actor_id"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	Lines     []SaleLine      `json:"lines"`
}

// SaleLine is one sold product within a sale.
type SaleLine struct {
	ID        int64             `json:"id"`
	ProductID int64             `json:"product_id"`
	Qty       int64             `json:"qty"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Consumed  []SaleConsumption `json:"consumed"`
}

// SaleConsumption records which batch a sold unit came from, with the
// batch cost at the time of sale.
type SaleConsumption struct {
	BatchID     int64           `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Qty         int64           `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// CreateSaleInput describes a sale request before pricing.
type CreateSaleInput struct {
	BranchID int64
	ActorID  int64
	Items    []SaleItemInput
}

// SaleItemInput is one requested sale line. Price is resolved server
// side, never taken from the client. BatchNumber optionally pins the
// line to a specific batch instead of FIFO.
type SaleItemInput struct {
	ProductID   int64
	Qty         int64
	BatchNumber string
}

// SaleFilter narrows sale listings.
type SaleFilter struct {
	BranchID int64
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

var (
	// ErrSaleNotFound indicates an unknown sale id.
	ErrSaleNotFound = errors.New("pos: sale not found")
	// ErrProductInactive indicates a sale line references a product no
	// longer sold.
	ErrProductInactive = errors.New("pos: product is inactive")
	// ErrEmptySale indicates a sale without lines.
	ErrEmptySale = errors.New("pos: sale requires at least one item")
)
