package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/httpapi/middleware"
	"github.com/hamed0406/checkqueue/internal/notify"
)

const (
	// sseWriteTimeout bounds a single write so a stalled client cannot pin
	// the handler past shutdown.
	sseWriteTimeout = 5 * time.Second

	observerBuffer = 256

	welcomeMessage = "Welcome to the Universe!"
)

var errObserverFull = errors.New("observer buffer full")

type sseEvent struct {
	name string
	data []byte
}

// sseObserver queues events for one SSE connection. Send never blocks; a
// client that falls behind loses updates.
type sseObserver struct {
	ch chan sseEvent
}

func newSSEObserver() *sseObserver {
	return &sseObserver{ch: make(chan sseEvent, observerBuffer)}
}

func (o *sseObserver) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	select {
	case o.ch <- sseEvent{name: event, data: data}:
		return nil
	default:
		return errObserverFull
	}
}

// handleEvents is the observer connection for the caller's address. It sends
// a welcome message, replays every record the client owns as one
// data_update batch, then streams live transitions until the client leaves.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	client := middleware.ClientIP(r)
	obs := newSSEObserver()

	if err := s.Hub.Register(ctx, client, obs); err != nil {
		s.Logger.Warn("observer_register_error", zap.String("client", client), zap.Error(err))
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		// the request context is gone by now
		uctx, cancel := context.WithTimeout(context.Background(), sseWriteTimeout)
		defer cancel()
		if err := s.Hub.Unregister(uctx, client, obs); err != nil {
			s.Logger.Warn("observer_unregister_error", zap.String("client", client), zap.Error(err))
		}
	}()
	s.Logger.Info("connection_accepted", zap.String("client", client))

	rc := http.NewResponseController(w)
	deadlinesSupported := true
	write := func(ev sseEvent) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	welcome, _ := json.Marshal(map[string]string{"message": welcomeMessage})
	if err := write(sseEvent{name: notify.EventMessage, data: welcome}); err != nil {
		return
	}

	existing, err := s.Checks.FindByClient(ctx, client)
	if err != nil {
		s.Logger.Warn("observer_replay_error", zap.String("client", client), zap.Error(err))
	}
	replay := make([]domain.CheckRequest, 0, len(existing))
	for _, c := range existing {
		replay = append(replay, *c)
	}
	data, err := json.Marshal(replay)
	if err != nil {
		return
	}
	if err := write(sseEvent{name: notify.EventDataUpdate, data: data}); err != nil {
		return
	}

	for {
		select {
		case ev := <-obs.ch:
			if err := write(ev); err != nil {
				s.Logger.Debug("observer_write_error", zap.String("client", client), zap.Error(err))
				return
			}
		case <-ctx.Done():
			s.Logger.Info("connection_closed", zap.String("client", client))
			return
		}
	}
}
