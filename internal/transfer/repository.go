package transfer

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort abstracts transfer persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, transfer Transfer) error
	Get(ctx context.Context, id uuid.UUID) (Transfer, error)
	List(ctx context.Context, filter Filter) ([]Transfer, error)
	// ClaimStatus flips the transfer from one status to another and
	// stamps the approver. It reports ErrInvalidState when the transfer
	// is not in the expected status, which makes approval race-free.
	ClaimStatus(ctx context.Context, id uuid.UUID, from, to Status, actorID int64) error
}
