package repo

import (
	"context"
	"time"
)

// AlertRecord holds last-known state and the last time we sent a notification
// for a URL. Failing is whether its last finished check failed, LastSentAt is
// the last time we sent a notification (used for cooldown).
type AlertRecord struct {
	URL        string
	Failing    bool
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlert returns nil, nil if there's no record yet.
	GetAlert(ctx context.Context, url string) (*AlertRecord, error)
	// SetAlert upserts the record. If sentAt.IsZero() we store NULL for last_sent_at.
	SetAlert(ctx context.Context, url string, failing bool, sentAt time.Time) error
}

// Store is everything serve needs from one backend.
type Store interface {
	CheckStore
	AlertStore
}
