package disposal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

const approvalModule = "disposal"

// StockPort is the slice of the stock movement engine disposals need.
type StockPort interface {
	ListBatches(ctx context.Context, branchID, productID int64) ([]inventory.Batch, error)
	DisposeBatches(ctx context.Context, branchID int64, refs []inventory.BatchRef, actorID int64, reason string) ([]inventory.BatchConsumption, error)
	ExpiredActiveBatches(ctx context.Context, asOf time.Time) ([]inventory.Batch, error)
	MarkBatchExpired(ctx context.Context, branchID, productID, batchID int64) error
}

// MasterPort exposes branch validation.
type MasterPort interface {
	BranchExists(ctx context.Context, id int64) (bool, error)
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// Service manages disposal requests. Stock only leaves the system when a
// request is approved; approval of an already completed request is a
// no-op so retried approvals cannot destroy stock twice.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	stock     StockPort
	master    MasterPort
	approvals ApprovalPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, stock StockPort, master MasterPort, approvals ApprovalPort) *Service {
	return &Service{logger: logger, repo: repo, stock: stock, master: master, approvals: approvals}
}

// Create registers a manual disposal request in PENDING state. Each item
// snapshots the batch quantity at request time.
func (s *Service) Create(ctx context.Context, input CreateInput) (Disposal, error) {
	if input.Reason == "" {
		return Disposal{}, ErrReasonRequired
	}
	if len(input.Items) == 0 {
		return Disposal{}, ErrNoBatches
	}
	ok, err := s.master.BranchExists(ctx, input.BranchID)
	if err != nil {
		return Disposal{}, err
	}
	if !ok {
		return Disposal{}, masterdata.ErrBranchNotFound
	}

	disposal := Disposal{
		ID:          uuid.New(),
		BranchID:    input.BranchID,
		Reason:      input.Reason,
		Status:      StatusPending,
		RequestedBy: input.ActorID,
	}
	for _, item := range input.Items {
		batch, err := s.findBatch(ctx, input.BranchID, item.ProductID, item.BatchNumber)
		if err != nil {
			return Disposal{}, err
		}
		disposal.Items = append(disposal.Items, DisposalItem{
			BatchID:     batch.ID,
			ProductID:   batch.ProductID,
			BatchNumber: batch.BatchNumber,
			Qty:         batch.Quantity,
		})
	}

	inserted, err := s.repo.Insert(ctx, disposal)
	if err != nil {
		return Disposal{}, err
	}
	if inserted == 0 {
		return Disposal{}, ErrBatchAlreadyRequested
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   disposal.ID,
		ActorID: input.ActorID,
		Action:  shared.ApprovalSubmit,
		Note:    input.Reason,
	})
	return s.repo.Get(ctx, disposal.ID)
}

func (s *Service) findBatch(ctx context.Context, branchID, productID int64, batchNumber string) (inventory.Batch, error) {
	batches, err := s.stock.ListBatches(ctx, branchID, productID)
	if err != nil {
		return inventory.Batch{}, err
	}
	for _, batch := range batches {
		if batch.BatchNumber == batchNumber {
			return batch, nil
		}
	}
	return inventory.Batch{}, inventory.ErrBatchNotFound
}

// Approve destroys the remaining stock of every batch in the request. A
// request that is already COMPLETED is returned unchanged.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actorID int64, note string) (Disposal, []inventory.BatchConsumption, error) {
	disposal, err := s.repo.Get(ctx, id)
	if err != nil {
		return Disposal{}, nil, err
	}
	if disposal.Status == StatusCompleted {
		return disposal, nil, nil
	}
	if !disposal.Status.CanApprove() {
		return Disposal{}, nil, ErrInvalidState
	}

	if err := s.repo.ClaimStatus(ctx, id, StatusPending, StatusCompleted, actorID); err != nil {
		return Disposal{}, nil, err
	}

	refs := make([]inventory.BatchRef, 0, len(disposal.Items))
	for _, item := range disposal.Items {
		refs = append(refs, inventory.BatchRef{ProductID: item.ProductID, BatchNumber: item.BatchNumber})
	}
	destroyed, err := s.stock.DisposeBatches(ctx, disposal.BranchID, refs, actorID, disposal.Reason)
	if err != nil {
		if revertErr := s.repo.ClaimStatus(ctx, id, StatusCompleted, StatusPending, actorID); revertErr != nil {
			s.logger.Error("release disposal claim",
				slog.String("disposal_id", id.String()), slog.Any("error", revertErr))
		}
		return Disposal{}, nil, err
	}

	if err := s.repo.ReleaseBatchClaims(ctx, id); err != nil {
		s.logger.Warn("release disposal claims",
			slog.String("disposal_id", id.String()), slog.Any("error", err))
	}

	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   id,
		ActorID: actorID,
		Action:  shared.ApprovalApprove,
		Note:    note,
	})
	disposal, err = s.repo.Get(ctx, id)
	if err != nil {
		return Disposal{}, nil, err
	}
	return disposal, destroyed, nil
}

// Reject declines a pending request; the batches keep their stock and
// their claims are released so a later request can pick them up again.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID int64, note string) (Disposal, error) {
	disposal, err := s.repo.Get(ctx, id)
	if err != nil {
		return Disposal{}, err
	}
	if !disposal.Status.CanReject() {
		return Disposal{}, ErrInvalidState
	}
	if err := s.repo.ClaimStatus(ctx, id, StatusPending, StatusRejected, actorID); err != nil {
		return Disposal{}, err
	}
	if err := s.repo.ReleaseBatchClaims(ctx, id); err != nil {
		s.logger.Warn("release disposal claims",
			slog.String("disposal_id", id.String()), slog.Any("error", err))
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   id,
		ActorID: actorID,
		Action:  shared.ApprovalReject,
		Note:    note,
	})
	return s.repo.Get(ctx, id)
}

// Get returns one disposal request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Disposal, error) {
	return s.repo.Get(ctx, id)
}

// History returns the approval trail of a disposal request.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.approvals.List(ctx, approvalModule, id)
}

// List returns disposal requests matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Disposal, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}
