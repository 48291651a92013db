package disposal

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the disposal request lifecycle.
type Status string

const (
	// StatusPending awaits an approval decision.
	StatusPending Status = "PENDING"
	// StatusCompleted means the batches were destroyed.
	StatusCompleted Status = "COMPLETED"
	// StatusRejected means the request was declined and stock kept.
	StatusRejected Status = "REJECTED"
)

// CanApprove reports whether the request may be approved.
func (s Status) CanApprove() bool { return s == StatusPending }

// CanReject reports whether the request may be rejected.
func (s Status) CanReject() bool { return s == StatusPending }

// SweepReason is the reason stamped on requests raised by the expiry
// sweep. The sweep recognises its own requests by it.
const SweepReason = "Expired Stock"

// Disposal is a request to destroy specific batches at one branch.
type Disposal struct {
	ID          uuid.UUID      `json:"id"`
	BranchID    int64          `json:"branch_id"`
	Reason      string         `json:"reason"`
	Status      Status         `json:"status"`
	RequestedBy int64          `json:"requested_by"`
	ApprovedBy  *int64         `json:"approved_by,omitempty"`
	Items       []DisposalItem `json:"items"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DisposalItem names one batch to destroy. Qty snapshots the batch
// quantity at request time; the whole remaining batch is destroyed at
// approval. A batch can appear in at most one disposal request ever,
// which is what makes the sweep re-runnable.
type DisposalItem struct {
	ID          int64  `json:"id"`
	BatchID     int64  `json:"batch_id"`
	ProductID   int64  `json:"product_id"`
	BatchNumber string `json:"batch_number"`
	Qty         int64  `json:"qty"`
}

// CreateInput describes a manual disposal request.
type CreateInput struct {
	BranchID int64
	Reason   string
	ActorID  int64
	Items    []CreateItemInput
}

// CreateItemInput names one batch by product and batch number.
type CreateItemInput struct {
	ProductID   int64
	BatchNumber string
}

// Filter narrows disposal listings.
type Filter struct {
	BranchID int64
	Status   Status
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates an unknown disposal id.
	ErrNotFound = errors.New("disposal: not found")
	// ErrInvalidState indicates a decision on a rejected request.
	ErrInvalidState = errors.New("disposal: invalid state for operation")
	// ErrReasonRequired indicates a request without a reason.
	ErrReasonRequired = errors.New("disposal: reason required")
	// ErrNoBatches indicates a request without batches.
	ErrNoBatches = errors.New("disposal: at least one batch required")
	// ErrBatchAlreadyRequested indicates a batch already sits in another
	// disposal request.
	ErrBatchAlreadyRequested = errors.New("disposal: batch already requested for disposal")
)
