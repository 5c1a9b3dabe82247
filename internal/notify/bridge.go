package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/metrics"
	"github.com/hamed0406/checkqueue/internal/repo"
)

const sinkTimeout = 10 * time.Second

// Bridge persists a transition and forwards it to whoever is watching.
// Publish runs on the scheduling loop; sinks run in their own goroutines.
type Bridge struct {
	store    repo.CheckStore
	registry *Registry
	sink     Sink
	logger   *zap.Logger
	metrics  *metrics.Collector
	wg       sync.WaitGroup
}

func NewBridge(store repo.CheckStore, registry *Registry, sink Sink, logger *zap.Logger, m *metrics.Collector) *Bridge {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Bridge{
		store:    store,
		registry: registry,
		sink:     sink,
		logger:   logger,
		metrics:  m,
	}
}

func (b *Bridge) Registry() *Registry { return b.registry }

// Publish overwrites the stored record and forwards it as a one-element
// data_update batch. Nothing here fails the transition: errors are logged.
func (b *Bridge) Publish(ctx context.Context, rec *domain.CheckRequest) {
	if err := b.store.Overwrite(ctx, rec); err != nil {
		b.metrics.RecordStoreError("overwrite")
		b.logger.Warn("bridge_persist_error",
			zap.String("id", rec.ID),
			zap.String("status", string(rec.Status)),
			zap.Error(err),
		)
	}
	b.metrics.RecordTransition(string(rec.Status))

	snapshot := *rec
	b.Forward(rec.RequestClient, []domain.CheckRequest{snapshot})

	if b.sink != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			sctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := b.sink.Publish(sctx, snapshot); err != nil {
				b.logger.Warn("bridge_sink_error", zap.String("id", snapshot.ID), zap.Error(err))
			}
		}()
	}
}

// Forward delivers records to client's observer if one is registered.
// A failing or panicking observer is logged and otherwise ignored.
func (b *Bridge) Forward(client string, records []domain.CheckRequest) {
	obs, ok := b.registry.Get(client)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bridge_deliver_panic",
				zap.String("client", client),
				zap.Any("panic", r),
			)
		}
	}()
	if err := obs.Send(EventDataUpdate, records); err != nil {
		b.logger.Debug("bridge_deliver_error",
			zap.String("client", client),
			zap.Int("records", len(records)),
			zap.Error(err),
		)
	}
}

// Wait blocks until in-flight sink deliveries finish.
func (b *Bridge) Wait() { b.wg.Wait() }
