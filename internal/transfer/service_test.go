package transfer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

type memoryRepo struct {
	transfers map[uuid.UUID]Transfer
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{transfers: make(map[uuid.UUID]Transfer)}
}

func (r *memoryRepo) Insert(ctx context.Context, transfer Transfer) error {
	r.transfers[transfer.ID] = transfer
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Transfer, error) {
	transfer, ok := r.transfers[id]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	return transfer, nil
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]Transfer, error) {
	var out []Transfer
	for _, t := range r.transfers {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memoryRepo) ClaimStatus(ctx context.Context, id uuid.UUID, from, to Status, actorID int64) error {
	transfer, ok := r.transfers[id]
	if !ok || transfer.Status != from {
		return ErrInvalidState
	}
	transfer.Status = to
	transfer.ApprovedBy = &actorID
	r.transfers[id] = transfer
	return nil
}

type fakeMovements struct {
	calls []inventory.TransferStockInput
	err   error
}

func (f *fakeMovements) TransferStock(ctx context.Context, input inventory.TransferStockInput) ([]inventory.ItemConsumption, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	var moved []inventory.ItemConsumption
	for _, item := range input.Items {
		moved = append(moved, inventory.ItemConsumption{ProductID: item.ProductID, Qty: item.Qty})
	}
	return moved, nil
}

type fakeMaster struct {
	branches map[int64]bool
}

func (f *fakeMaster) BranchExists(ctx context.Context, id int64) (bool, error) {
	return f.branches[id], nil
}

type fakeApprovals struct {
	logs []shared.ApprovalLog
}

func (f *fakeApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeApprovals) List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, log := range f.logs {
		if log.Module == module && log.RefID == ref {
			out = append(out, log)
		}
	}
	return out, nil
}

type fakeIdempotency struct {
	keys map[string]bool
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

type testEnv struct {
	svc       *Service
	repo      *memoryRepo
	movements *fakeMovements
	approvals *fakeApprovals
	idem      *fakeIdempotency
}

func newTestEnv() *testEnv {
	repo := newMemoryRepo()
	movements := &fakeMovements{}
	approvals := &fakeApprovals{}
	idem := &fakeIdempotency{keys: map[string]bool{}}
	master := &fakeMaster{branches: map[int64]bool{1: true, 2: true}}
	svc := NewService(slog.Default(), repo, movements, master, approvals, idem)
	return &testEnv{svc: svc, repo: repo, movements: movements, approvals: approvals, idem: idem}
}

func createTransfer(t *testing.T, env *testEnv) Transfer {
	t.Helper()
	transfer, err := env.svc.Create(context.Background(), CreateInput{
		SourceBranchID: 1,
		TargetBranchID: 2,
		ActorID:        7,
		Items:          []CreateItemInput{{ProductID: 10, Qty: 5}},
	})
	require.NoError(t, err)
	return transfer
}

func TestCreateTransferValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.Create(ctx, CreateInput{SourceBranchID: 1, TargetBranchID: 1, Items: []CreateItemInput{{ProductID: 10, Qty: 5}}})
	require.ErrorIs(t, err, ErrSameBranch)

	_, err = env.svc.Create(ctx, CreateInput{SourceBranchID: 1, TargetBranchID: 2})
	require.ErrorIs(t, err, ErrEmptyTransfer)

	_, err = env.svc.Create(ctx, CreateInput{SourceBranchID: 1, TargetBranchID: 9, Items: []CreateItemInput{{ProductID: 10, Qty: 5}}})
	require.ErrorIs(t, err, masterdata.ErrBranchNotFound)

	_, err = env.svc.Create(ctx, CreateInput{SourceBranchID: 1, TargetBranchID: 2, Items: []CreateItemInput{{ProductID: 10, Qty: 0}}})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

func TestCreateTransferStartsInTransitWithoutMovingStock(t *testing.T) {
	env := newTestEnv()

	transfer := createTransfer(t, env)
	require.Equal(t, StatusInTransit, transfer.Status)
	require.Empty(t, env.movements.calls)
	require.Len(t, env.approvals.logs, 1)
	require.Equal(t, shared.ApprovalSubmit, env.approvals.logs[0].Action)
}

func TestCreateTransferIdempotencyKey(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	input := CreateInput{
		SourceBranchID: 1,
		TargetBranchID: 2,
		ActorID:        7,
		IdempotencyKey: "req-1",
		Items:          []CreateItemInput{{ProductID: 10, Qty: 5}},
	}

	_, err := env.svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestApproveMovesStockAndCompletes(t *testing.T) {
	env := newTestEnv()
	transfer := createTransfer(t, env)

	approved, moved, err := env.svc.Approve(context.Background(), transfer.ID, 9, "ok")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, int64(9), *approved.ApprovedBy)
	require.Len(t, moved, 1)
	require.Len(t, env.movements.calls, 1)
	require.Equal(t, transfer.ID, env.movements.calls[0].TransferID)

	// Second approval must not move stock again.
	_, _, err = env.svc.Approve(context.Background(), transfer.ID, 9, "again")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Len(t, env.movements.calls, 1)
}

func TestApproveInsufficientStockKeepsTransferApprovable(t *testing.T) {
	env := newTestEnv()
	transfer := createTransfer(t, env)
	env.movements.err = inventory.ErrInsufficientStock

	_, _, err := env.svc.Approve(context.Background(), transfer.ID, 9, "")
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	got, err := env.svc.Get(context.Background(), transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, got.Status)

	// Stock arrives later; the same transfer can now complete.
	env.movements.err = nil
	approved, _, err := env.svc.Approve(context.Background(), transfer.ID, 9, "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, approved.Status)
}

func TestRejectTransfer(t *testing.T) {
	env := newTestEnv()
	transfer := createTransfer(t, env)

	rejected, err := env.svc.Reject(context.Background(), transfer.ID, 9, "not needed")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Empty(t, env.movements.calls)

	_, _, err = env.svc.Approve(context.Background(), transfer.ID, 9, "")
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = env.svc.Reject(context.Background(), transfer.ID, 9, "")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestHistory(t *testing.T) {
	env := newTestEnv()
	transfer := createTransfer(t, env)

	_, _, err := env.svc.Approve(context.Background(), transfer.ID, 9, "ok")
	require.NoError(t, err)

	history, err := env.svc.History(context.Background(), transfer.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, shared.ApprovalSubmit, history[0].Action)
	require.Equal(t, shared.ApprovalApprove, history[1].Action)

	_, err = env.svc.History(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
