package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/checkqueue/internal/repo"
)

var _ repo.AlertStore = (*Store)(nil)

func (s *Store) GetAlert(ctx context.Context, url string) (*repo.AlertRecord, error) {
	const q = `SELECT failing, last_sent_at FROM alert_state WHERE url=$1`
	r := repo.AlertRecord{URL: url}
	var lastSent *time.Time
	err := s.pool.QueryRow(ctx, q, url).Scan(&r.Failing, &lastSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert state: %w", err)
	}
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, url string, failing bool, sentAt time.Time) error {
	const q = `
		INSERT INTO alert_state (url, failing, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (url)
		DO UPDATE SET failing=EXCLUDED.failing, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	if _, err := s.pool.Exec(ctx, q, url, failing, ts); err != nil {
		return fmt.Errorf("set alert state: %w", err)
	}
	return nil
}
