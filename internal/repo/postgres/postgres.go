package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/repo"
)

var _ repo.CheckStore = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS check_requests (
  id             TEXT PRIMARY KEY,
  request_url    TEXT NOT NULL,
  request_client TEXT NOT NULL,
  status         TEXT NOT NULL,
  ip             TEXT NULL,
  status_code    INTEGER NULL,
  content_length BIGINT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_check_requests_status_client ON check_requests (status, request_client);
CREATE INDEX IF NOT EXISTS idx_check_requests_client ON check_requests (request_client, created_at);

CREATE TABLE IF NOT EXISTS alert_state (
  url          TEXT PRIMARY KEY,
  failing      BOOLEAN NOT NULL,
  last_sent_at TIMESTAMPTZ NULL
);
`

const selectColumns = `id, request_url, request_client, status, ip, status_code, content_length, created_at`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the check_requests and alert_state tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, c *domain.CheckRequest) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO check_requests (id, request_url, request_client, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.RequestURL, c.RequestClient, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check request: %w", err)
	}
	return nil
}

func (s *Store) FindByStatus(ctx context.Context, status domain.Status, clients []string) ([]*domain.CheckRequest, error) {
	if clients == nil {
		return s.query(ctx,
			`SELECT `+selectColumns+` FROM check_requests WHERE status = $1 ORDER BY created_at, id`,
			string(status))
	}
	if len(clients) == 0 {
		return []*domain.CheckRequest{}, nil
	}
	return s.query(ctx,
		`SELECT `+selectColumns+` FROM check_requests
		  WHERE status = $1 AND request_client = ANY($2)
		  ORDER BY created_at, id`,
		string(status), clients)
}

func (s *Store) FindByClient(ctx context.Context, client string) ([]*domain.CheckRequest, error) {
	return s.query(ctx,
		`SELECT `+selectColumns+` FROM check_requests WHERE request_client = $1 ORDER BY created_at, id`,
		client)
}

func (s *Store) UpdateStatus(ctx context.Context, status domain.Status, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE check_requests SET status = $1 WHERE id = ANY($2)`,
		string(status), ids)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (s *Store) Overwrite(ctx context.Context, c *domain.CheckRequest) error {
	var (
		ip     *string
		code   *int
		length *int64
	)
	if c.IP != "" {
		ip = &c.IP
	}
	if c.Status == domain.StatusSuccess {
		code = &c.StatusCode
		length = &c.ContentLength
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE check_requests
		    SET request_url = $2, request_client = $3, status = $4,
		        ip = $5, status_code = $6, content_length = $7, created_at = $8
		  WHERE id = $1`,
		c.ID, c.RequestURL, c.RequestClient, string(c.Status), ip, code, length, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("overwrite check request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) DegradeQueuedForClient(ctx context.Context, client string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE check_requests SET status = $1 WHERE request_client = $2 AND status = $3`,
		string(domain.StatusPending), client, string(domain.StatusQueued))
	if err != nil {
		return 0, fmt.Errorf("degrade queued: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ResetAllUnfinished(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE check_requests SET status = $1 WHERE status NOT IN ($2, $3)`,
		string(domain.StatusPending), string(domain.StatusSuccess), string(domain.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("reset unfinished: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*domain.CheckRequest, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query check requests: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.CheckRequest, 0)
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCheck(row pgx.Row) (*domain.CheckRequest, error) {
	var (
		c      domain.CheckRequest
		status string
		ip     *string
		code   *int32
		length *int64
	)
	if err := row.Scan(&c.ID, &c.RequestURL, &c.RequestClient, &status, &ip, &code, &length, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("scan check request: %w", err)
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("check request %s: %w", c.ID, err)
	}
	c.Status = st
	if ip != nil {
		c.IP = *ip
	}
	if code != nil {
		c.StatusCode = int(*code)
	}
	if length != nil {
		c.ContentLength = *length
	}
	return &c, nil
}
