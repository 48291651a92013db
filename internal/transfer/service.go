package transfer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

const approvalModule = "transfer"

// MovementPort is the slice of the stock movement engine approvals use.
type MovementPort interface {
	TransferStock(ctx context.Context, input inventory.TransferStockInput) ([]inventory.ItemConsumption, error)
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

// IdempotencyPort guards retried create requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service manages the transfer workflow. Creating a transfer reserves
// nothing; the stock check and movement happen at approval, and an
// approval that cannot be covered fails outright instead of moving a
// partial quantity.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	movements   MovementPort
	master      MasterPort
	approvals   ApprovalPort
	idempotency IdempotencyPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, movements MovementPort, master MasterPort, approvals ApprovalPort, idempotency IdempotencyPort) *Service {
	return &Service{logger: logger, repo: repo, movements: movements, master: master, approvals: approvals, idempotency: idempotency}
}

// Create registers a transfer request in IN_TRANSIT state.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if input.SourceBranchID == input.TargetBranchID {
		return Transfer{}, ErrSameBranch
	}
	if len(input.Items) == 0 {
		return Transfer{}, ErrEmptyTransfer
	}
	for _, branchID := range []int64{input.SourceBranchID, input.TargetBranchID} {
		ok, err := s.master.BranchExists(ctx, branchID)
		if err != nil {
			return Transfer{}, err
		}
		if !ok {
			return Transfer{}, masterdata.ErrBranchNotFound
		}
	}
	transfer := Transfer{
		ID:             uuid.New(),
		SourceBranchID: input.SourceBranchID,
		TargetBranchID: input.TargetBranchID,
		Status:         StatusInTransit,
		Note:           input.Note,
		RequestedBy:    input.ActorID,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return Transfer{}, inventory.ErrInvalidQuantity
		}
		transfer.Items = append(transfer.Items, TransferItem{
			ProductID:   item.ProductID,
			Qty:         item.Qty,
			BatchNumber: item.BatchNumber,
		})
	}

	if input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, approvalModule); err != nil {
			return Transfer{}, err
		}
	}
	if err := s.repo.Insert(ctx, transfer); err != nil {
		if input.IdempotencyKey != "" {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Transfer{}, err
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   transfer.ID,
		ActorID: input.ActorID,
		Action:  shared.ApprovalSubmit,
		Note:    input.Note,
	})
	return transfer, nil
}

// Approve executes the transfer. The status row is claimed first so two
// concurrent approvals cannot both move stock; if the movement then fails
// the claim is released and the transfer stays approvable.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actorID int64, note string) (Transfer, []inventory.ItemConsumption, error) {
	transfer, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, nil, err
	}
	if !transfer.Status.CanApprove() {
		return Transfer{}, nil, ErrInvalidState
	}

	if err := s.repo.ClaimStatus(ctx, id, StatusInTransit, StatusCompleted, actorID); err != nil {
		return Transfer{}, nil, err
	}

	items := make([]inventory.TransferStockItem, 0, len(transfer.Items))
	for _, item := range transfer.Items {
		items = append(items, inventory.TransferStockItem{
			ProductID:   item.ProductID,
			Qty:         item.Qty,
			BatchNumber: item.BatchNumber,
		})
	}
	moved, err := s.movements.TransferStock(ctx, inventory.TransferStockInput{
		TransferID:     id,
		SourceBranchID: transfer.SourceBranchID,
		TargetBranchID: transfer.TargetBranchID,
		ActorID:        actorID,
		Items:          items,
	})
	if err != nil {
		if revertErr := s.repo.ClaimStatus(ctx, id, StatusCompleted, StatusInTransit, actorID); revertErr != nil {
			s.logger.Error("release transfer claim",
				slog.String("transfer_id", id.String()), slog.Any("error", revertErr))
		}
		return Transfer{}, nil, err
	}

	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   id,
		ActorID: actorID,
		Action:  shared.ApprovalApprove,
		Note:    note,
	})
	transfer, err = s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, nil, err
	}
	return transfer, moved, nil
}

// Reject declines an in-transit transfer. No stock moves.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID int64, note string) (Transfer, error) {
	transfer, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if !transfer.Status.CanReject() {
		return Transfer{}, ErrInvalidState
	}
	if err := s.repo.ClaimStatus(ctx, id, StatusInTransit, StatusRejected, actorID); err != nil {
		return Transfer{}, err
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

// Get returns one transfer.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// History returns the approval trail of a transfer.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.approvals.List(ctx, approvalModule, id)
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Transfer, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != "" {
		switch filter.Status {
		case StatusInTransit, StatusCompleted, StatusRejected:
		default:
			return nil, errors.New("transfer: unknown status filter")
		}
	}
	return s.repo.List(ctx, filter)
}
