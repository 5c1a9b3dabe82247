package notify

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/checkqueue/internal/domain"
)

// Event names understood by observers.
const (
	EventDataUpdate = "data_update"
	EventMessage    = "message"
)

// Observer is a live connection for one client address. Send must not block
// for long; it is called from the scheduling loop.
type Observer interface {
	Send(event string, payload any) error
}

// Notifier delivers a human-readable message (Slack and friends).
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Sink receives every published transition, off the scheduling loop.
type Sink interface {
	Publish(ctx context.Context, rec domain.CheckRequest) error
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}

// LogNotifier writes alerts to the service log.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Send(_ context.Context, title, text string) error {
	n.Logger.Warn("alert", zap.String("title", title), zap.String("text", text))
	return nil
}

type Sinks []Sink

func (s Sinks) Publish(ctx context.Context, rec domain.CheckRequest) error {
	var err error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		err = multierr.Append(err, sink.Publish(ctx, rec))
	}
	return err
}
