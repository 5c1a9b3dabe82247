package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/repo"
)

type Store struct {
	mu     sync.RWMutex
	byID   map[string]*domain.CheckRequest
	order  []string
	alerts map[string]repo.AlertRecord
}

func New() *Store {
	return &Store{
		byID:   make(map[string]*domain.CheckRequest),
		order:  make([]string, 0, 128),
		alerts: make(map[string]repo.AlertRecord),
	}
}

func (m *Store) Add(ctx context.Context, c *domain.CheckRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	if _, exists := m.byID[c.ID]; !exists {
		m.order = append(m.order, c.ID)
	}
	m.byID[c.ID] = c.Clone()
	return nil
}

func (m *Store) FindByStatus(ctx context.Context, status domain.Status, clients []string) ([]*domain.CheckRequest, error) {
	var allow map[string]struct{}
	if clients != nil {
		allow = make(map[string]struct{}, len(clients))
		for _, c := range clients {
			allow[c] = struct{}{}
		}
	}
	return m.filter(func(c *domain.CheckRequest) bool {
		if c.Status != status {
			return false
		}
		if allow == nil {
			return true
		}
		_, ok := allow[c.RequestClient]
		return ok
	}), nil
}

func (m *Store) FindByClient(ctx context.Context, client string) ([]*domain.CheckRequest, error) {
	return m.filter(func(c *domain.CheckRequest) bool {
		return c.RequestClient == client
	}), nil
}

func (m *Store) UpdateStatus(ctx context.Context, status domain.Status, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if c, ok := m.byID[id]; ok {
			c.Status = status
		}
	}
	return nil
}

func (m *Store) Overwrite(ctx context.Context, c *domain.CheckRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; !ok {
		return repo.ErrNotFound
	}
	m.byID[c.ID] = c.Clone()
	return nil
}

func (m *Store) DegradeQueuedForClient(ctx context.Context, client string) (int64, error) {
	return m.update(func(c *domain.CheckRequest) bool {
		return c.RequestClient == client && c.Status == domain.StatusQueued
	}, domain.StatusPending), nil
}

func (m *Store) ResetAllUnfinished(ctx context.Context) (int64, error) {
	return m.update(func(c *domain.CheckRequest) bool {
		return !c.Status.Terminal()
	}, domain.StatusPending), nil
}

func (m *Store) filter(keep func(*domain.CheckRequest) bool) []*domain.CheckRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.CheckRequest, 0)
	for _, id := range m.order {
		if c := m.byID[id]; keep(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (m *Store) update(match func(*domain.CheckRequest) bool, status domain.Status) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.byID {
		if match(c) {
			c.Status = status
			n++
		}
	}
	return n
}

func (m *Store) GetAlert(ctx context.Context, url string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[url]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) SetAlert(ctx context.Context, url string, failing bool, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := repo.AlertRecord{URL: url, Failing: failing}
	if !sentAt.IsZero() {
		r.LastSentAt = &sentAt
	}
	m.alerts[url] = r
	return nil
}

var _ repo.Store = (*Store)(nil)
