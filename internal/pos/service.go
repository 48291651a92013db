package pos

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
)

// MovementPort is the slice of the stock movement engine the POS needs.
type MovementPort interface {
	Sell(ctx context.Context, input inventory.SellInput) (inventory.SaleResult, error)
	GetLine(ctx context.Context, branchID, productID int64) (inventory.InventoryLine, error)
}

// CatalogPort exposes product lookups.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
}

// SaleReader reads committed sales.
type SaleReader interface {
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error)
}

// Service is the point-of-sale layer. It resolves prices and validates
// the request, then hands the whole sale to the movement engine, which is
// the only code path that deducts stock.
type Service struct {
	movements MovementPort
	catalog   CatalogPort
	sales     SaleReader
}

// NewService builds Service.
func NewService(movements MovementPort, catalog CatalogPort, sales SaleReader) *Service {
	return &Service{movements: movements, catalog: catalog, sales: sales}
}

// CreateSale prices and commits a sale. The unit price per line is the
// branch custom price when one is set, otherwise the product sell price.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (inventory.SaleResult, error) {
	if len(input.Items) == 0 {
		return inventory.SaleResult{}, ErrEmptySale
	}
	items := make([]inventory.SellItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return inventory.SaleResult{}, inventory.ErrInvalidQuantity
		}
		price, err := s.resolvePrice(ctx, input.BranchID, item.ProductID)
		if err != nil {
			return inventory.SaleResult{}, err
		}
		items = append(items, inventory.SellItem{
			ProductID:   item.ProductID,
			Qty:         item.Qty,
			UnitPrice:   price,
			BatchNumber: item.BatchNumber,
		})
	}
	return s.movements.Sell(ctx, inventory.SellInput{
		BranchID: input.BranchID,
		ActorID:  input.ActorID,
		Items:    items,
	})
}

func (s *Service) resolvePrice(ctx context.Context, branchID, productID int64) (decimal.Decimal, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if !product.IsActive {
		return decimal.Zero, ErrProductInactive
	}
	line, err := s.movements.GetLine(ctx, branchID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if line.CustomPrice != nil {
		return *line.CustomPrice, nil
	}
	return product.SellPrice, nil
}

// GetSale returns one sale with its lines and batch consumptions.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.sales.GetSale(ctx, id)
}

// ListSales returns sales matching the filter, newest first.
func (s *Service) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.sales.ListSales(ctx, filter)
}
