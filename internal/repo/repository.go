package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/checkqueue/internal/domain"
)

var ErrNotFound = errors.New("check request not found")

// CheckStore persists check requests. Swap in any DB adapter.
type CheckStore interface {
	// Add stores a new request, assigning ID and CreatedAt when empty.
	Add(ctx context.Context, c *domain.CheckRequest) error
	// FindByStatus returns matching records in insertion order. A nil
	// clients slice disables the client filter; an empty one matches nothing.
	FindByStatus(ctx context.Context, status domain.Status, clients []string) ([]*domain.CheckRequest, error)
	FindByClient(ctx context.Context, client string) ([]*domain.CheckRequest, error)
	// UpdateStatus sets only the status field of every listed record.
	UpdateStatus(ctx context.Context, status domain.Status, ids ...string) error
	// Overwrite replaces the whole record. Returns ErrNotFound for unknown IDs.
	Overwrite(ctx context.Context, c *domain.CheckRequest) error
	// DegradeQueuedForClient moves the client's queued records back to pending.
	DegradeQueuedForClient(ctx context.Context, client string) (int64, error)
	// ResetAllUnfinished moves every non-terminal record to pending.
	ResetAllUnfinished(ctx context.Context) (int64, error)
}
