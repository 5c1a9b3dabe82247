package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/notify"
	"github.com/hamed0406/checkqueue/internal/repo/memory"
)

type sseFrame struct {
	name string
	data string
}

// readFrame reads one "event:/data:" block.
func readFrame(t *testing.T, br *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return f
		case strings.HasPrefix(line, "event: "):
			f.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEvents_WelcomeReplayThenLiveUpdates(t *testing.T) {
	ts, store, hub := setupServer(t, []string{"127.0."})
	ctx := context.Background()
	existing := &domain.CheckRequest{RequestURL: "a.example", RequestClient: "127.0.0.1", Status: domain.StatusSuccess, StatusCode: 200}
	require.NoError(t, store.Add(ctx, existing))

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	br := bufio.NewReader(resp.Body)

	welcome := readFrame(t, br)
	assert.Equal(t, notify.EventMessage, welcome.name)
	assert.JSONEq(t, `{"message":"Welcome to the Universe!"}`, welcome.data)

	replay := readFrame(t, br)
	assert.Equal(t, notify.EventDataUpdate, replay.name)
	var recs []domain.CheckRequest
	require.NoError(t, json.Unmarshal([]byte(replay.data), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, existing.ID, recs[0].ID)

	var obs notify.Observer
	select {
	case obs = <-hub.registered:
	case <-time.After(time.Second):
		t.Fatal("observer never registered")
	}
	live := *existing
	live.Status = domain.StatusInProgress
	require.NoError(t, obs.Send(notify.EventDataUpdate, []domain.CheckRequest{live}))

	update := readFrame(t, br)
	assert.Equal(t, notify.EventDataUpdate, update.name)
	assert.Contains(t, update.data, `"status":"in_progress"`)

	resp.Body.Close()
	require.Eventually(t, func() bool {
		return len(hub.unregisteredClients()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"127.0.0.1"}, hub.unregisteredClients())
}

func TestEvents_RegisterFailureIs503(t *testing.T) {
	ts, _, hub := setupServer(t, nil)
	hub.setErr(context.Canceled)

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSSEObserver_DropsWhenFull(t *testing.T) {
	obs := newSSEObserver()
	for i := 0; i < observerBuffer; i++ {
		require.NoError(t, obs.Send(notify.EventDataUpdate, []domain.CheckRequest{}))
	}
	assert.ErrorIs(t, obs.Send(notify.EventDataUpdate, []domain.CheckRequest{}), errObserverFull)
}

func TestEvents_HandlerExitsOnCancel(t *testing.T) {
	hub := newFakeHub()
	srv := NewServer(zap.NewNop(), memory.New(), hub, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.RemoteAddr = "127.0.0.1:5150"
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleEvents(rec, req)
		close(done)
	}()
	<-hub.registered
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}
	assert.Contains(t, rec.Body.String(), "event: message")
	assert.Equal(t, []string{"127.0.0.1"}, hub.unregisteredClients())
}
