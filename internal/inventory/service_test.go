package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	batches     map[int64]*Batch
	adjustments map[shared.LineKey]int64
	lines       map[shared.LineKey]InventoryLine
	sales       []SaleRecord
	saleLines   []SaleLineRecord
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		batches:     make(map[int64]*Batch),
		adjustments: make(map[shared.LineKey]int64),
		lines:       make(map[shared.LineKey]InventoryLine),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Serialize transactions, then snapshot so a failing fn rolls
	// everything back, like the real transaction does.
	r.mu.Lock()
	defer r.mu.Unlock()
	batches := make(map[int64]*Batch, len(r.batches))
	for id, b := range r.batches {
		cp := *b
		batches[id] = &cp
	}
	adjustments := make(map[shared.LineKey]int64, len(r.adjustments))
	for k, v := range r.adjustments {
		adjustments[k] = v
	}
	lines := make(map[shared.LineKey]InventoryLine, len(r.lines))
	for k, v := range r.lines {
		lines[k] = v
	}
	sales := len(r.sales)
	saleLines := len(r.saleLines)

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.batches = batches
		r.adjustments = adjustments
		r.lines = lines
		r.sales = r.sales[:sales]
		r.saleLines = r.saleLines[:saleLines]
		return err
	}
	return nil
}

func (r *memoryRepo) GetLine(ctx context.Context, branchID, productID int64) (InventoryLine, error) {
	key := shared.LineKey{BranchID: branchID, ProductID: productID}
	if line, ok := r.lines[key]; ok {
		return line, nil
	}
	return InventoryLine{BranchID: branchID, ProductID: productID}, nil
}

func (r *memoryRepo) ListBatches(ctx context.Context, branchID, productID int64) ([]Batch, error) {
	var out []Batch
	for _, b := range r.batches {
		if b.BranchID == branchID && b.ProductID == productID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memoryRepo) ExpiredActiveBatches(ctx context.Context, asOf time.Time) ([]Batch, error) {
	var out []Batch
	for _, b := range r.batches {
		if b.Status == BatchActive && b.ExpiryDate.Before(asOf) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListLineKeys(ctx context.Context) ([]shared.LineKey, error) {
	keys := make([]shared.LineKey, 0, len(r.lines))
	for k := range r.lines {
		keys = append(keys, k)
	}
	return shared.SortLineKeys(keys), nil
}

func (r *memoryRepo) ListBelowMinStock(ctx context.Context) ([]LowStockEntry, error) {
	return nil, nil
}

func (tx *memoryTx) LockLine(ctx context.Context, branchID, productID int64) (InventoryLine, error) {
	key := shared.LineKey{BranchID: branchID, ProductID: productID}
	if _, ok := tx.repo.lines[key]; !ok {
		tx.repo.lines[key] = InventoryLine{BranchID: branchID, ProductID: productID}
	}
	return tx.repo.lines[key], nil
}

func (tx *memoryTx) ActiveBatches(ctx context.Context, branchID, productID int64) ([]Batch, error) {
	var out []Batch
	for _, b := range tx.repo.batches {
		if b.BranchID == branchID && b.ProductID == productID && b.Status == BatchActive {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetBatch(ctx context.Context, branchID, productID int64, batchNumber string) (Batch, error) {
	for _, b := range tx.repo.batches {
		if b.BranchID == branchID && b.ProductID == productID && b.BatchNumber == batchNumber {
			return *b, nil
		}
	}
	return Batch{}, ErrBatchNotFound
}

func (tx *memoryTx) UpsertBatch(ctx context.Context, batch Batch) (Batch, error) {
	for _, b := range tx.repo.batches {
		if b.BranchID == batch.BranchID && b.ProductID == batch.ProductID && b.BatchNumber == batch.BatchNumber {
			b.Quantity += batch.Quantity
			b.UnitCost = batch.UnitCost
			b.Status = BatchActive
			return *b, nil
		}
	}
	tx.repo.nextID++
	batch.ID = tx.repo.nextID
	tx.repo.batches[batch.ID] = &batch
	return batch, nil
}

func (tx *memoryTx) AddBatchQuantity(ctx context.Context, batchID, delta int64) error {
	b, ok := tx.repo.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	if b.Quantity+delta < 0 {
		return ErrInsufficientStock
	}
	b.Quantity += delta
	return nil
}

func (tx *memoryTx) SetBatchStatus(ctx context.Context, batchID int64, status BatchStatus) error {
	b, ok := tx.repo.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	b.Status = status
	return nil
}

func (tx *memoryTx) ZeroBatch(ctx context.Context, batchID int64) error {
	b, ok := tx.repo.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	b.Quantity = 0
	return nil
}

func (tx *memoryTx) RecomputeLine(ctx context.Context, branchID, productID int64) (InventoryLine, error) {
	key := shared.LineKey{BranchID: branchID, ProductID: productID}
	var sum int64
	for _, b := range tx.repo.batches {
		if b.BranchID == branchID && b.ProductID == productID && b.Status == BatchActive {
			sum += b.Quantity
		}
	}
	sum += tx.repo.adjustments[key]
	if sum < 0 {
		sum = 0
	}
	line := tx.repo.lines[key]
	line.BranchID = branchID
	line.ProductID = productID
	line.Quantity = sum
	line.UpdatedAt = time.Now()
	tx.repo.lines[key] = line
	return line, nil
}

func (tx *memoryTx) InsertAdjustment(ctx context.Context, adj AdjustInput) error {
	key := shared.LineKey{BranchID: adj.BranchID, ProductID: adj.ProductID}
	tx.repo.adjustments[key] += adj.Delta
	return nil
}

func (tx *memoryTx) InsertSale(ctx context.Context, sale SaleRecord) error {
	tx.repo.sales = append(tx.repo.sales, sale)
	return nil
}

func (tx *memoryTx) InsertSaleLine(ctx context.Context, line SaleLineRecord) (int64, error) {
	tx.repo.saleLines = append(tx.repo.saleLines, line)
	tx.repo.nextID++
	return tx.repo.nextID, nil
}

func (tx *memoryTx) InsertSaleConsumptions(ctx context.Context, saleLineID int64, consumed []BatchConsumption) error {
	return nil
}

type allowAllMaster struct{}

func (allowAllMaster) BranchExists(ctx context.Context, id int64) (bool, error)  { return true, nil }
func (allowAllMaster) ProductExists(ctx context.Context, id int64) (bool, error) { return true, nil }

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, allowAllMaster{}, nil, nil)
}

func receive(t *testing.T, svc *Service, branch, product int64, number string, expiry time.Time, qty int64) Batch {
	t.Helper()
	batch, _, err := svc.Receive(context.Background(), ReceiveInput{
		BranchID:    branch,
		ProductID:   product,
		BatchNumber: number,
		ExpiryDate:  expiry,
		Qty:         qty,
		UnitCost:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	return batch
}

func lineQty(t *testing.T, repo *memoryRepo, branch, product int64) int64 {
	t.Helper()
	line, err := repo.GetLine(context.Background(), branch, product)
	require.NoError(t, err)
	return line.Quantity
}

func TestReceiveCreatesAndTopsUpBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	b1 := receive(t, svc, 1, 10, "LOT-A", day(90), 40)
	require.Equal(t, int64(40), b1.Quantity)
	require.Equal(t, int64(40), lineQty(t, repo, 1, 10))

	// Same batch number tops up, does not duplicate.
	b2 := receive(t, svc, 1, 10, "LOT-A", day(90), 10)
	require.Equal(t, b1.ID, b2.ID)
	require.Equal(t, int64(50), b2.Quantity)
	require.Equal(t, int64(50), lineQty(t, repo, 1, 10))

	_, _, err := svc.Receive(context.Background(), ReceiveInput{
		BranchID: 1, ProductID: 10, BatchNumber: "LOT-B", ExpiryDate: day(90), Qty: 0,
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSellConsumesFIFOAcrossBatches(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "BX", day(30), 50)
	receive(t, svc, 1, 10, "BY", day(60), 30)

	result, err := svc.Sell(context.Background(), SellInput{
		BranchID: 1,
		Items:    []SellItem{{ProductID: 10, Qty: 60, UnitPrice: decimal.NewFromInt(25)}},
	})
	require.NoError(t, err)
	require.Len(t, result.ItemsConsumed, 1)
	consumed := result.ItemsConsumed[0].Batches
	require.Len(t, consumed, 2)
	require.Equal(t, "BX", consumed[0].BatchNumber)
	require.Equal(t, int64(50), consumed[0].Qty)
	require.Equal(t, "BY", consumed[1].BatchNumber)
	require.Equal(t, int64(10), consumed[1].Qty)
	require.Equal(t, int64(20), lineQty(t, repo, 1, 10))
	require.True(t, result.Total.Equal(decimal.NewFromInt(1500)))
	require.Len(t, repo.sales, 1)
}

func TestSellNamedBatchOverridesFIFO(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "BX", day(30), 50)
	receive(t, svc, 1, 10, "BY", day(60), 30)

	// Pinning the later-expiring batch skips the FIFO order.
	result, err := svc.Sell(context.Background(), SellInput{
		BranchID: 1,
		Items:    []SellItem{{ProductID: 10, Qty: 20, UnitPrice: decimal.NewFromInt(25), BatchNumber: "BY"}},
	})
	require.NoError(t, err)
	consumed := result.ItemsConsumed[0].Batches
	require.Len(t, consumed, 1)
	require.Equal(t, "BY", consumed[0].BatchNumber)
	require.Equal(t, int64(20), consumed[0].Qty)
	require.Equal(t, int64(60), lineQty(t, repo, 1, 10))

	// A pinned batch must cover the line by itself, even when FIFO
	// across all batches could.
	_, err = svc.Sell(context.Background(), SellInput{
		BranchID: 1,
		Items:    []SellItem{{ProductID: 10, Qty: 15, UnitPrice: decimal.NewFromInt(25), BatchNumber: "BY"}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Sell(context.Background(), SellInput{
		BranchID: 1,
		Items:    []SellItem{{ProductID: 10, Qty: 1, UnitPrice: decimal.NewFromInt(25), BatchNumber: "NOPE"}},
	})
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestSellRollsBackWholeSaleOnShortage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "LOT-A", day(30), 50)
	receive(t, svc, 1, 20, "LOT-B", day(30), 5)

	_, err := svc.Sell(context.Background(), SellInput{
		BranchID: 1,
		Items: []SellItem{
			{ProductID: 10, Qty: 10, UnitPrice: decimal.NewFromInt(10)},
			{ProductID: 20, Qty: 6, UnitPrice: decimal.NewFromInt(10)},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// First line must not have been deducted.
	require.Equal(t, int64(50), lineQty(t, repo, 1, 10))
	require.Equal(t, int64(5), lineQty(t, repo, 1, 20))
	require.Empty(t, repo.sales)
}

func TestSellExactTotalThenEmpty(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "LOT-A", day(30), 8)

	_, err := svc.Sell(context.Background(), SellInput{
		BranchID: 1,
		Items:    []SellItem{{ProductID: 10, Qty: 8, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), lineQty(t, repo, 1, 10))

	// The batch is drained but still ACTIVE; selling again reports
	// insufficiency, not absence.
	_, err = svc.Sell(context.Background(), SellInput{
		BranchID: 1,
		Items:    []SellItem{{ProductID: 10, Qty: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestSellNoActiveInventory(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Sell(context.Background(), SellInput{
		BranchID: 1,
		Items:    []SellItem{{ProductID: 10, Qty: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.ErrorIs(t, err, ErrNoActiveInventory)
}

func TestAdjustRequiresReasonAndClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "LOT-A", day(30), 10)

	_, err := svc.Adjust(context.Background(), AdjustInput{BranchID: 1, ProductID: 10, Delta: -3})
	require.ErrorIs(t, err, ErrReasonRequired)

	line, err := svc.Adjust(context.Background(), AdjustInput{BranchID: 1, ProductID: 10, Delta: -3, Reason: "damage"})
	require.NoError(t, err)
	require.Equal(t, int64(7), line.Quantity)

	// Over-correction clamps the aggregate, it does not go negative.
	line, err = svc.Adjust(context.Background(), AdjustInput{BranchID: 1, ProductID: 10, Delta: -100, Reason: "count"})
	require.NoError(t, err)
	require.Equal(t, int64(0), line.Quantity)
}

func TestAdjustOverdrawDoesNotSwallowLaterReceipts(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "LOT-A", day(30), 10)

	line, err := svc.Adjust(context.Background(), AdjustInput{BranchID: 1, ProductID: 10, Delta: -100, Reason: "count"})
	require.NoError(t, err)
	require.Equal(t, int64(0), line.Quantity)

	// The write-off stopped at the stock on hand; the clamped excess is
	// discarded, so new stock counts in full.
	receive(t, svc, 1, 10, "LOT-B", day(60), 40)
	require.Equal(t, int64(40), lineQty(t, repo, 1, 10))
}

func TestUpdateBatchStatusDropsFromAggregate(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	batch := receive(t, svc, 1, 10, "LOT-A", day(30), 10)
	receive(t, svc, 1, 10, "LOT-B", day(60), 5)

	line, err := svc.UpdateBatchStatus(context.Background(), 1, 10, batch.ID, BatchOnHold, 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), line.Quantity)

	line, err = svc.UpdateBatchStatus(context.Background(), 1, 10, batch.ID, BatchActive, 1)
	require.NoError(t, err)
	require.Equal(t, int64(15), line.Quantity)

	_, err = svc.UpdateBatchStatus(context.Background(), 1, 10, batch.ID, BatchStatus("BROKEN"), 1)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestMarkBatchExpired(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	batch := receive(t, svc, 1, 10, "LOT-A", day(-1), 10)
	receive(t, svc, 1, 10, "LOT-B", day(60), 5)

	require.NoError(t, svc.MarkBatchExpired(context.Background(), 1, 10, batch.ID))
	require.Equal(t, int64(5), lineQty(t, repo, 1, 10))

	// Already expired: marking again changes nothing.
	require.NoError(t, svc.MarkBatchExpired(context.Background(), 1, 10, batch.ID))
	require.Equal(t, int64(5), lineQty(t, repo, 1, 10))
}

func TestTransferStockMovesFIFOSlices(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "BX", day(30), 50)
	receive(t, svc, 1, 10, "BY", day(60), 30)

	moved, err := svc.TransferStock(context.Background(), TransferStockInput{
		SourceBranchID: 1,
		TargetBranchID: 2,
		Items:          []TransferStockItem{{ProductID: 10, Qty: 60}},
	})
	require.NoError(t, err)
	require.Len(t, moved, 1)
	require.Equal(t, int64(20), lineQty(t, repo, 1, 10))
	require.Equal(t, int64(60), lineQty(t, repo, 2, 10))

	// Batch identity is preserved at the target.
	target, err := repo.ListBatches(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, target, 2)
	byNumber := map[string]Batch{}
	for _, b := range target {
		byNumber[b.BatchNumber] = b
	}
	require.Equal(t, int64(50), byNumber["BX"].Quantity)
	require.True(t, byNumber["BX"].ExpiryDate.Equal(day(30)))
	require.Equal(t, int64(10), byNumber["BY"].Quantity)
	require.True(t, byNumber["BY"].ExpiryDate.Equal(day(60)))
}

func TestTransferStockNamedBatchSplit(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "BX", day(30), 50)

	_, err := svc.TransferStock(context.Background(), TransferStockInput{
		SourceBranchID: 1,
		TargetBranchID: 2,
		Items:          []TransferStockItem{{ProductID: 10, Qty: 20, BatchNumber: "BX"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(30), lineQty(t, repo, 1, 10))
	require.Equal(t, int64(20), lineQty(t, repo, 2, 10))

	_, err = svc.TransferStock(context.Background(), TransferStockInput{
		SourceBranchID: 1,
		TargetBranchID: 2,
		Items:          []TransferStockItem{{ProductID: 10, Qty: 31, BatchNumber: "BX"}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.TransferStock(context.Background(), TransferStockInput{
		SourceBranchID: 1,
		TargetBranchID: 2,
		Items:          []TransferStockItem{{ProductID: 10, Qty: 1, BatchNumber: "NOPE"}},
	})
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestTransferStockFailsAtomically(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "BX", day(30), 50)
	receive(t, svc, 1, 20, "BZ", day(30), 5)

	_, err := svc.TransferStock(context.Background(), TransferStockInput{
		SourceBranchID: 1,
		TargetBranchID: 2,
		Items: []TransferStockItem{
			{ProductID: 10, Qty: 10},
			{ProductID: 20, Qty: 6},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, int64(50), lineQty(t, repo, 1, 10))
	require.Equal(t, int64(5), lineQty(t, repo, 1, 20))
	require.Equal(t, int64(0), lineQty(t, repo, 2, 10))
}

func TestDisposeBatchesIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "LOT-A", day(-1), 10)

	destroyed, err := svc.DisposeBatches(context.Background(), 1, []BatchRef{{ProductID: 10, BatchNumber: "LOT-A"}}, 1, "Expired Stock")
	require.NoError(t, err)
	require.Len(t, destroyed, 1)
	require.Equal(t, int64(10), destroyed[0].Qty)
	require.Equal(t, int64(0), lineQty(t, repo, 1, 10))

	// Re-running destroys nothing further.
	destroyed, err = svc.DisposeBatches(context.Background(), 1, []BatchRef{{ProductID: 10, BatchNumber: "LOT-A"}}, 1, "Expired Stock")
	require.NoError(t, err)
	require.Empty(t, destroyed)
}

func TestReconcileRebuildsEveryLine(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	receive(t, svc, 1, 10, "LOT-A", day(30), 10)
	receive(t, svc, 2, 20, "LOT-B", day(30), 7)

	// Simulate drift.
	repo.lines[shared.LineKey{BranchID: 1, ProductID: 10}] = InventoryLine{BranchID: 1, ProductID: 10, Quantity: 999}

	count, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, int64(10), lineQty(t, repo, 1, 10))
	require.Equal(t, int64(7), lineQty(t, repo, 2, 20))
}

type recordingMetrics struct {
	movements map[string]int
	conflicts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{movements: make(map[string]int), conflicts: make(map[string]int)}
}

func (m *recordingMetrics) CountMovement(movementType string) { m.movements[movementType]++ }
func (m *recordingMetrics) CountConflict(kind string)         { m.conflicts[kind]++ }

func TestMovementsAndConflictsAreCounted(t *testing.T) {
	repo := newMemoryRepo()
	metrics := newRecordingMetrics()
	svc := NewService(repo, nil, allowAllMaster{}, nil, metrics)
	ctx := context.Background()

	receive(t, svc, 1, 10, "LOT-A", day(30), 10)
	require.Equal(t, 1, metrics.movements["receive"])

	_, err := svc.Sell(ctx, SellInput{BranchID: 1, Items: []SellItem{
		{ProductID: 10, Qty: 4, UnitPrice: decimal.NewFromInt(50)},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, metrics.movements["sale"])

	_, err = svc.Sell(ctx, SellInput{BranchID: 1, Items: []SellItem{
		{ProductID: 10, Qty: 100, UnitPrice: decimal.NewFromInt(50)},
	}})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 1, metrics.conflicts["insufficient_stock"])
	require.Equal(t, 1, metrics.movements["sale"])

	_, err = svc.Adjust(ctx, AdjustInput{BranchID: 1, ProductID: 10, Delta: -2, Reason: "shrinkage"})
	require.NoError(t, err)
	require.Equal(t, 1, metrics.movements["adjustment"])
}
