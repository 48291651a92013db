package disposal

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort abstracts disposal persistence for the service and the
// expiry sweep.
type RepositoryPort interface {
	// Insert writes the request with its items. Items whose batch is
	// claimed by an open request elsewhere are silently skipped; when
	// every item is skipped nothing is written and inserted reports zero.
	Insert(ctx context.Context, disposal Disposal) (inserted int, err error)
	Get(ctx context.Context, id uuid.UUID) (Disposal, error)
	List(ctx context.Context, filter Filter) ([]Disposal, error)
	ClaimStatus(ctx context.Context, id uuid.UUID, from, to Status, actorID int64) error
	// ReleaseBatchClaims frees the batch claims of a terminal request so
	// the same batches can be requested again.
	ReleaseBatchClaims(ctx context.Context, id uuid.UUID) error
}
