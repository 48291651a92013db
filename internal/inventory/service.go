package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MasterPort exposes the master-data lookups the engine validates against.
type MasterPort interface {
	BranchExists(ctx context.Context, id int64) (bool, error)
	ProductExists(ctx context.Context, id int64) (bool, error)
}

// MetricsPort counts committed movements and rejected stock operations.
type MetricsPort interface {
	CountMovement(movementType string)
	CountConflict(kind string)
}

// Service is the stock movement engine. Every mutation runs in a single
// transaction that locks the affected inventory lines, mutates batches and
// the adjustment ledger, then recomputes the aggregates before commit.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	master  MasterPort
	cache   *SnapshotCache
	metrics MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, master MasterPort, cache *SnapshotCache, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, master: master, cache: cache, metrics: metrics}
}

func (s *Service) countMovement(movementType string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CountMovement(movementType)
}

// countConflict maps a movement failure onto the conflict counter. Errors
// that are not stock conflicts are not counted.
func (s *Service) countConflict(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, shared.ErrConcurrentModification):
		s.metrics.CountConflict("concurrent_modification")
	case errors.Is(err, ErrInsufficientStock):
		s.metrics.CountConflict("insufficient_stock")
	case errors.Is(err, ErrNoActiveInventory):
		s.metrics.CountConflict("no_active_inventory")
	}
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, log)
}

func (s *Service) checkBranch(ctx context.Context, id int64) error {
	ok, err := s.master.BranchExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return masterdata.ErrBranchNotFound
	}
	return nil
}

func (s *Service) checkProduct(ctx context.Context, id int64) error {
	ok, err := s.master.ProductExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return masterdata.ErrProductNotFound
	}
	return nil
}

// Receive books a stock receipt into a batch. Receiving the same batch
// number again tops up the existing batch and reactivates it.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Batch, InventoryLine, error) {
	if input.Qty <= 0 {
		return Batch{}, InventoryLine{}, ErrInvalidQuantity
	}
	if input.BatchNumber == "" {
		return Batch{}, InventoryLine{}, errors.New("inventory: batch number required")
	}
	if input.ExpiryDate.IsZero() {
		return Batch{}, InventoryLine{}, errors.New("inventory: expiry date required")
	}
	if input.UnitCost.IsNegative() {
		return Batch{}, InventoryLine{}, errors.New("inventory: unit cost must not be negative")
	}
	if err := s.checkBranch(ctx, input.BranchID); err != nil {
		return Batch{}, InventoryLine{}, err
	}
	if err := s.checkProduct(ctx, input.ProductID); err != nil {
		return Batch{}, InventoryLine{}, err
	}

	var (
		batch Batch
		line  InventoryLine
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockLine(ctx, input.BranchID, input.ProductID); err != nil {
			return err
		}
		var err error
		batch, err = tx.UpsertBatch(ctx, Batch{
			BranchID:    input.BranchID,
			ProductID:   input.ProductID,
			BatchNumber: input.BatchNumber,
			ExpiryDate:  input.ExpiryDate,
			Quantity:    input.Qty,
			UnitCost:    input.UnitCost,
			Status:      BatchActive,
			ReceivedAt:  time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		line, err = tx.RecomputeLine(ctx, input.BranchID, input.ProductID)
		return err
	})
	if err != nil {
		s.countConflict(err)
		return Batch{}, InventoryLine{}, err
	}

	s.countMovement("receive")
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "inventory.receive",
		Entity:   "inventory_batch",
		EntityID: strconv.FormatInt(batch.ID, 10),
		Meta: map[string]any{
			"branch_id":    input.BranchID,
			"product_id":   input.ProductID,
			"batch_number": input.BatchNumber,
			"qty":          input.Qty,
		},
	})
	_ = s.cache.Bump(ctx)
	return batch, line, nil
}

// Sell deducts stock for a multi-line sale and records it. Deduction is
// FIFO by earliest expiry per product; all lines commit or none do.
func (s *Service) Sell(ctx context.Context, input SellInput) (SaleResult, error) {
	if len(input.Items) == 0 {
		return SaleResult{}, errors.New("inventory: sale requires at least one item")
	}
	if err := s.checkBranch(ctx, input.BranchID); err != nil {
		return SaleResult{}, err
	}
	keys := make([]shared.LineKey, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return SaleResult{}, ErrInvalidQuantity
		}
		if item.UnitPrice.IsNegative() {
			return SaleResult{}, errors.New("inventory: unit price must not be negative")
		}
		if err := s.checkProduct(ctx, item.ProductID); err != nil {
			return SaleResult{}, err
		}
		keys = append(keys, shared.LineKey{BranchID: input.BranchID, ProductID: item.ProductID})
	}
	keys = shared.SortLineKeys(keys)

	result := SaleResult{
		SaleID:    uuid.New(),
		BranchID:  input.BranchID,
		CreatedAt: time.Now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, key := range keys {
			if _, err := tx.LockLine(ctx, key.BranchID, key.ProductID); err != nil {
				return err
			}
		}

		total := decimal.Zero
		result.ItemsConsumed = result.ItemsConsumed[:0]
		for _, item := range input.Items {
			consumed, err := consumeStock(ctx, tx, input.BranchID, item.ProductID, item.Qty, item.BatchNumber)
			if err != nil {
				return fmt.Errorf("product %d: %w", item.ProductID, err)
			}
			result.ItemsConsumed = append(result.ItemsConsumed, ItemConsumption{
				ProductID: item.ProductID,
				Qty:       item.Qty,
				Batches:   consumed,
			})
			total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Qty)))
		}

		result.Lines = result.Lines[:0]
		for _, key := range keys {
			line, err := tx.RecomputeLine(ctx, key.BranchID, key.ProductID)
			if err != nil {
				return err
			}
			result.Lines = append(result.Lines, line)
		}

		result.Total = total
		if err := tx.InsertSale(ctx, SaleRecord{
			ID:        result.SaleID,
			BranchID:  input.BranchID,
			ActorID:   input.ActorID,
			Total:     total,
			CreatedAt: result.CreatedAt,
		}); err != nil {
			return err
		}
		for i, item := range input.Items {
			lineID, err := tx.InsertSaleLine(ctx, SaleLineRecord{
				SaleID:    result.SaleID,
				ProductID: item.ProductID,
				Qty:       item.Qty,
				UnitPrice: item.UnitPrice,
			})
			if err != nil {
				return err
			}
			if err := tx.InsertSaleConsumptions(ctx, lineID, result.ItemsConsumed[i].Batches); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.countConflict(err)
		return SaleResult{}, err
	}

	s.countMovement("sale")
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "inventory.sell",
		Entity:   "sale",
		EntityID: result.SaleID.String(),
		Meta: map[string]any{
			"branch_id": input.BranchID,
			"items":     len(input.Items),
			"total":     result.Total,
		},
	})
	_ = s.cache.Bump(ctx)
	return result, nil
}

// Adjust applies a signed correction to a line through the adjustment
// ledger. It never touches batches; the aggregate absorbs the delta and
// stays clamped at zero.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (InventoryLine, error) {
	if input.Delta == 0 {
		return InventoryLine{}, ErrInvalidQuantity
	}
	if input.Reason == "" {
		return InventoryLine{}, ErrReasonRequired
	}
	if err := s.checkBranch(ctx, input.BranchID); err != nil {
		return InventoryLine{}, err
	}
	if err := s.checkProduct(ctx, input.ProductID); err != nil {
		return InventoryLine{}, err
	}

	var line InventoryLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockLine(ctx, input.BranchID, input.ProductID)
		if err != nil {
			return err
		}
		// The ledger stores the effective delta. A write-off past zero
		// clamps at the current quantity; the excess is discarded, not
		// carried against future receipts.
		effective := input
		if effective.Delta < -current.Quantity {
			effective.Delta = -current.Quantity
		}
		if err := tx.InsertAdjustment(ctx, effective); err != nil {
			return err
		}
		line, err = tx.RecomputeLine(ctx, input.BranchID, input.ProductID)
		return err
	})
	if err != nil {
		s.countConflict(err)
		return InventoryLine{}, err
	}

	s.countMovement("adjustment")
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "inventory.adjust",
		Entity:   "inventory_line",
		EntityID: fmt.Sprintf("%d:%d", input.BranchID, input.ProductID),
		Meta: map[string]any{
			"delta":  input.Delta,
			"reason": input.Reason,
		},
		NewValues: map[string]any{"quantity": line.Quantity},
	})
	_ = s.cache.Bump(ctx)
	return line, nil
}

// UpdateBatchStatus moves a batch between lifecycle states (hold, reject,
// reactivate). The owning line is recomputed in the same transaction.
func (s *Service) UpdateBatchStatus(ctx context.Context, branchID, productID, batchID int64, status BatchStatus, actorID int64) (InventoryLine, error) {
	if !status.IsValid() {
		return InventoryLine{}, ErrInvalidStatus
	}
	var line InventoryLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockLine(ctx, branchID, productID); err != nil {
			return err
		}
		if err := tx.SetBatchStatus(ctx, batchID, status); err != nil {
			return err
		}
		var err error
		line, err = tx.RecomputeLine(ctx, branchID, productID)
		return err
	})
	if err != nil {
		return InventoryLine{}, err
	}

	s.recordAudit(ctx, shared.AuditLog{
		ActorID:   actorID,
		Action:    "inventory.batch_status",
		Entity:    "inventory_batch",
		EntityID:  strconv.FormatInt(batchID, 10),
		NewValues: map[string]any{"status": string(status)},
	})
	_ = s.cache.Bump(ctx)
	return line, nil
}

// MarkBatchExpired flags one batch as expired and drops it out of the
// aggregate. Marking an already expired batch is a no-op.
func (s *Service) MarkBatchExpired(ctx context.Context, branchID, productID, batchID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockLine(ctx, branchID, productID); err != nil {
			return err
		}
		if err := tx.SetBatchStatus(ctx, batchID, BatchExpired); err != nil {
			return err
		}
		_, err := tx.RecomputeLine(ctx, branchID, productID)
		return err
	})
	if err != nil {
		s.countConflict(err)
		return err
	}
	s.countMovement("expiry")
	_ = s.cache.Bump(ctx)
	return nil
}

// DisposeBatches zeroes out the named batches at a branch and returns what
// was destroyed. Batches already at zero are skipped, so re-running a
// disposal changes nothing.
func (s *Service) DisposeBatches(ctx context.Context, branchID int64, refs []BatchRef, actorID int64, reason string) ([]BatchConsumption, error) {
	if len(refs) == 0 {
		return nil, errors.New("inventory: disposal requires at least one batch")
	}
	if reason == "" {
		return nil, ErrReasonRequired
	}
	keys := make([]shared.LineKey, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, shared.LineKey{BranchID: branchID, ProductID: ref.ProductID})
	}
	keys = shared.SortLineKeys(keys)

	var destroyed []BatchConsumption
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, key := range keys {
			if _, err := tx.LockLine(ctx, key.BranchID, key.ProductID); err != nil {
				return err
			}
		}
		destroyed = destroyed[:0]
		for _, ref := range refs {
			batch, err := tx.GetBatch(ctx, branchID, ref.ProductID, ref.BatchNumber)
			if err != nil {
				return err
			}
			if batch.Quantity == 0 {
				continue
			}
			if err := tx.ZeroBatch(ctx, batch.ID); err != nil {
				return err
			}
			destroyed = append(destroyed, BatchConsumption{
				BatchID:     batch.ID,
				BatchNumber: batch.BatchNumber,
				Qty:         batch.Quantity,
				UnitCost:    batch.UnitCost,
				ExpiryDate:  batch.ExpiryDate,
			})
		}
		for _, key := range keys {
			if _, err := tx.RecomputeLine(ctx, key.BranchID, key.ProductID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.countConflict(err)
		return nil, err
	}

	s.countMovement("disposal")
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "inventory.dispose",
		Entity:   "inventory_branch",
		EntityID: strconv.FormatInt(branchID, 10),
		Meta: map[string]any{
			"reason":  reason,
			"batches": len(destroyed),
		},
	})
	_ = s.cache.Bump(ctx)
	return destroyed, nil
}

// TransferStock executes the stock side of an approved transfer: deduct at
// the source, materialise the consumed batch slices at the target with
// their batch number, expiry, cost and received time intact. Both branches
// move in one transaction with locks taken in canonical key order.
func (s *Service) TransferStock(ctx context.Context, input TransferStockInput) ([]ItemConsumption, error) {
	if input.SourceBranchID == input.TargetBranchID {
		return nil, errors.New("inventory: source and target branch must differ")
	}
	if len(input.Items) == 0 {
		return nil, errors.New("inventory: transfer requires at least one item")
	}
	keys := make([]shared.LineKey, 0, 2*len(input.Items))
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
		keys = append(keys,
			shared.LineKey{BranchID: input.SourceBranchID, ProductID: item.ProductID},
			shared.LineKey{BranchID: input.TargetBranchID, ProductID: item.ProductID},
		)
	}
	keys = shared.SortLineKeys(keys)

	var moved []ItemConsumption
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, key := range keys {
			if _, err := tx.LockLine(ctx, key.BranchID, key.ProductID); err != nil {
				return err
			}
		}
		moved = moved[:0]
		for _, item := range input.Items {
			consumed, err := consumeStock(ctx, tx, input.SourceBranchID, item.ProductID, item.Qty, item.BatchNumber)
			if err != nil {
				return fmt.Errorf("product %d: %w", item.ProductID, err)
			}
			for _, c := range consumed {
				if _, err := tx.UpsertBatch(ctx, Batch{
					BranchID:    input.TargetBranchID,
					ProductID:   item.ProductID,
					BatchNumber: c.BatchNumber,
					ExpiryDate:  c.ExpiryDate,
					Quantity:    c.Qty,
					UnitCost:    c.UnitCost,
					Status:      BatchActive,
					ReceivedAt:  c.ReceivedAt,
				}); err != nil {
					return err
				}
			}
			moved = append(moved, ItemConsumption{ProductID: item.ProductID, Qty: item.Qty, Batches: consumed})
		}
		for _, key := range keys {
			if _, err := tx.RecomputeLine(ctx, key.BranchID, key.ProductID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.countConflict(err)
		return nil, err
	}

	s.countMovement("transfer")
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "inventory.transfer",
		Entity:   "stock_transfer",
		EntityID: input.TransferID.String(),
		Meta: map[string]any{
			"source_branch_id": input.SourceBranchID,
			"target_branch_id": input.TargetBranchID,
			"items":            len(input.Items),
		},
	})
	_ = s.cache.Bump(ctx)
	return moved, nil
}

// consumeStock deducts qty from the batches of one line. An empty batch
// number plans FIFO across the ACTIVE batches; a named batch must be
// ACTIVE and cover the whole quantity by itself.
func consumeStock(ctx context.Context, tx TxRepository, branchID, productID, qty int64, batchNumber string) ([]BatchConsumption, error) {
	if batchNumber != "" {
		batch, err := tx.GetBatch(ctx, branchID, productID, batchNumber)
		if err != nil {
			return nil, err
		}
		if batch.Status != BatchActive {
			return nil, ErrNoActiveInventory
		}
		if batch.Quantity < qty {
			return nil, ErrInsufficientStock
		}
		if err := tx.AddBatchQuantity(ctx, batch.ID, -qty); err != nil {
			return nil, err
		}
		return []BatchConsumption{{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Qty:         qty,
			UnitCost:    batch.UnitCost,
			ExpiryDate:  batch.ExpiryDate,
			ReceivedAt:  batch.ReceivedAt,
		}}, nil
	}

	batches, err := tx.ActiveBatches(ctx, branchID, productID)
	if err != nil {
		return nil, err
	}
	consumed, err := planConsumption(batches, qty)
	if err != nil {
		return nil, err
	}
	for _, c := range consumed {
		if err := tx.AddBatchQuantity(ctx, c.BatchID, -c.Qty); err != nil {
			return nil, err
		}
	}
	return consumed, nil
}

// GetLine returns the aggregate for one (branch, product), served from the
// versioned cache when available.
func (s *Service) GetLine(ctx context.Context, branchID, productID int64) (InventoryLine, error) {
	if err := s.checkBranch(ctx, branchID); err != nil {
		return InventoryLine{}, err
	}
	if err := s.checkProduct(ctx, productID); err != nil {
		return InventoryLine{}, err
	}
	key, err := s.cache.BuildKey(ctx, "inventory", "line",
		strconv.FormatInt(branchID, 10), strconv.FormatInt(productID, 10))
	if err != nil {
		return InventoryLine{}, err
	}
	var line InventoryLine
	err = s.cache.FetchJSON(ctx, key, &line, func(ctx context.Context) (interface{}, error) {
		return s.repo.GetLine(ctx, branchID, productID)
	})
	return line, err
}

// ListBatches returns all batches for one (branch, product) in FIFO order.
func (s *Service) ListBatches(ctx context.Context, branchID, productID int64) ([]Batch, error) {
	if err := s.checkBranch(ctx, branchID); err != nil {
		return nil, err
	}
	if err := s.checkProduct(ctx, productID); err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, "inventory", "batches",
		strconv.FormatInt(branchID, 10), strconv.FormatInt(productID, 10))
	if err != nil {
		return nil, err
	}
	var batches []Batch
	err = s.cache.FetchJSON(ctx, key, &batches, func(ctx context.Context) (interface{}, error) {
		return s.repo.ListBatches(ctx, branchID, productID)
	})
	return batches, err
}

// ExpiredActiveBatches lists ACTIVE batches whose expiry date has passed.
func (s *Service) ExpiredActiveBatches(ctx context.Context, asOf time.Time) ([]Batch, error) {
	return s.repo.ExpiredActiveBatches(ctx, asOf)
}

// LowStock lists lines sitting at or under their product minimum.
func (s *Service) LowStock(ctx context.Context) ([]LowStockEntry, error) {
	return s.repo.ListBelowMinStock(ctx)
}

// Reconcile recomputes every inventory line from its batches and ledger.
// Lines are processed concurrently, each in its own locking transaction.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	keys, err := s.repo.ListLineKeys(ctx)
	if err != nil {
		return 0, err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				if _, err := tx.LockLine(ctx, key.BranchID, key.ProductID); err != nil {
					return err
				}
				_, err := tx.RecomputeLine(ctx, key.BranchID, key.ProductID)
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	_ = s.cache.Bump(ctx)
	return len(keys), nil
}
