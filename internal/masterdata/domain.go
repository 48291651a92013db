package masterdata

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Branch represents a pharmacy branch.
type Branch struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product represents a product entity. Reference data owned outside the
// stock subsystem; only the price fields change after creation.
type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	MinStockLevel int64           `json:"min_stock_level"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

var (
	// ErrBranchNotFound indicates a referenced branch does not exist.
	ErrBranchNotFound = errors.New("masterdata: branch not found")
	// ErrProductNotFound indicates a referenced product does not exist.
	ErrProductNotFound = errors.New("masterdata: product not found")
)
