package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/notify"
	"github.com/hamed0406/checkqueue/internal/repo/memory"
	"github.com/hamed0406/checkqueue/internal/scheduler"
)

// ---- test helpers ----

type fakeHub struct {
	mu           sync.Mutex
	observers    map[string]notify.Observer
	unregistered []string
	registered   chan notify.Observer
	err          error
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		observers:  make(map[string]notify.Observer),
		registered: make(chan notify.Observer, 4),
	}
}

func (h *fakeHub) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

func (h *fakeHub) Register(_ context.Context, client string, obs notify.Observer) error {
	h.mu.Lock()
	if h.err != nil {
		h.mu.Unlock()
		return h.err
	}
	h.observers[client] = obs
	h.mu.Unlock()
	h.registered <- obs
	return nil
}

func (h *fakeHub) Unregister(_ context.Context, client string, obs notify.Observer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.observers[client] == obs {
		delete(h.observers, client)
	}
	h.unregistered = append(h.unregistered, client)
	return nil
}

func (h *fakeHub) Snapshot(context.Context) (scheduler.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return scheduler.Snapshot{}, h.err
	}
	s := scheduler.Snapshot{IPLimit: 3, CheckingCap: 20}
	for c := range h.observers {
		s.Observers = append(s.Observers, c)
	}
	return s, nil
}

func (h *fakeHub) unregisteredClients() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.unregistered...)
}

func setupServer(t *testing.T, allowed []string) (*httptest.Server, *memory.Store, *fakeHub) {
	t.Helper()
	store := memory.New()
	hub := newFakeHub()
	srv := NewServer(zap.NewNop(), store, hub, Options{
		AllowedClients: allowed,
		// very high rate limits to avoid flakiness in tests
		SubmitRPM:   10_000,
		SubmitBurst: 10_000,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("checkqueue_observers 0\n"))
		}),
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store, hub
}

func postCheck(t *testing.T, base, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(base+"/api/checks", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ---- tests ----

func TestSubmitCheck_OK_Invalid(t *testing.T) {
	ts, store, _ := setupServer(t, []string{"127.0."})

	// 1) scheme-less host is accepted and stored as pending for the caller
	resp := postCheck(t, ts.URL, `{"url":"example.com:443"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created domain.CheckRequest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, "127.0.0.1", created.RequestClient)

	stored, err := store.FindByStatus(context.Background(), domain.StatusPending, nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "example.com:443", stored[0].RequestURL)

	// 2) bad inputs are 400
	for _, body := range []string{`{"url":"ftp://bad"}`, `{"url":"  "}`, `{"url":"https://"}`, `not json`} {
		resp := postCheck(t, ts.URL, body)
		assert.Equalf(t, http.StatusBadRequest, resp.StatusCode, "body %s", body)
	}
}

func TestListChecks_OnlyCallersRecords(t *testing.T) {
	ts, store, _ := setupServer(t, []string{"127.0."})
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, &domain.CheckRequest{RequestURL: "a.example", RequestClient: "127.0.0.1"}))
	require.NoError(t, store.Add(ctx, &domain.CheckRequest{RequestURL: "b.example", RequestClient: "10.0.0.5"}))

	resp, err := http.Get(ts.URL + "/api/checks")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []domain.CheckRequest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "a.example", list[0].RequestURL)
}

func TestAllowList_RefusesUnlistedClients(t *testing.T) {
	ts, _, hub := setupServer(t, []string{"10.0."})

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, hub.registered)

	// health and metrics stay reachable
	for _, path := range []string{"/healthz", "/metrics"} {
		r, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		r.Body.Close()
		assert.Equalf(t, http.StatusOK, r.StatusCode, "path %s", path)
	}
}

func TestHealth_ReportsEngineState(t *testing.T) {
	ts, _, hub := setupServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status string             `json:"status"`
		Engine scheduler.Snapshot `json:"engine"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 3, body.Engine.IPLimit)

	hub.setErr(errors.New("engine stopped"))
	resp2, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}
