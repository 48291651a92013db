package transfer

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the transfer lifecycle. A transfer is created already
// in transit; stock keeps sitting at the source until approval executes
// the movement.
type Status string

const (
	// StatusInTransit is the initial state after creation.
	StatusInTransit Status = "IN_TRANSIT"
	// StatusCompleted means the stock movement was executed.
	StatusCompleted Status = "COMPLETED"
	// StatusRejected means the transfer was declined; stock never moved.
	StatusRejected Status = "REJECTED"
)

// CanApprove reports whether the transfer may be approved.
func (s Status) CanApprove() bool { return s == StatusInTransit }

// CanReject reports whether the transfer may be rejected.
func (s Status) CanReject() bool { return s == StatusInTransit }

// Transfer is a branch-to-branch stock movement request.
type Transfer struct {
	ID             uuid.UUID      `json:"id"`
	SourceBranchID int64          `json:"source_branch_id"`
	TargetBranchID int64          `json:"target_branch_id"`
	Status         Status         `json:"status"`
	Note           string         `json:"note,omitempty"`
	RequestedBy    int64          `json:"requested_by"`
	ApprovedBy     *int64         `json:"approved_by,omitempty"`
	Items          []TransferItem `json:"items"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TransferItem is one requested product movement. BatchNumber pins the
// movement to a specific batch; empty means FIFO at approval time.
type TransferItem struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	Qty         int64  `json:"qty"`
	BatchNumber string `json:"batch_number,omitempty"`
}

// CreateInput describes a new transfer request.
type CreateInput struct {
	SourceBranchID int64
	TargetBranchID int64
	Note           string
	ActorID        int64
	IdempotencyKey string
	Items          []CreateItemInput
}

// CreateItemInput is one requested line.
type CreateItemInput struct {
	ProductID   int64
	Qty         int64
	BatchNumber string
}

// Filter narrows transfer listings.
type Filter struct {
	BranchID int64
	Status   Status
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates an unknown transfer id.
	ErrNotFound = errors.New("transfer: not found")
	// ErrInvalidState indicates an approve or reject on a transfer that
	// already left IN_TRANSIT.
	ErrInvalidState = errors.New("transfer: invalid state for operation")
	// ErrSameBranch indicates source and target are the same branch.
	ErrSameBranch = errors.New("transfer: source and target branch must differ")
	// ErrEmptyTransfer indicates a transfer without items.
	ErrEmptyTransfer = errors.New("transfer: at least one item required")
)
