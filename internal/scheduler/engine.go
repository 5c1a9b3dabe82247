package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/metrics"
	"github.com/hamed0406/checkqueue/internal/notify"
	"github.com/hamed0406/checkqueue/internal/probe"
	"github.com/hamed0406/checkqueue/internal/repo"
)

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrStopped        = errors.New("engine stopped")
)

const eventBuffer = 256

// Engine drains pending checks from the store and probes them under the
// global and per-IP limits.
//
// One goroutine (the loop) owns the backlog, the in-flight set, the set of
// checks awaiting DNS and the observer registry. Resolutions, probes and
// observer (un)registrations report back through the events channel, so
// none of that state needs a lock.
type Engine struct {
	logger   *zap.Logger
	store    repo.CheckStore
	resolver probe.HostResolver
	prober   probe.Prober
	bridge   *notify.Bridge
	metrics  *metrics.Collector
	clock    clockwork.Clock
	cfg      Config

	events chan any
	done   chan struct{}

	// loop-owned
	backlog   []*domain.CheckRequest
	inflight  []*domain.CheckRequest
	resolving map[string]string // check ID -> client

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type resolvedEvent struct {
	rec *domain.CheckRequest
	err error
}

type probedEvent struct {
	id      string
	outcome probe.Outcome
}

type registerEvent struct {
	client string
	obs    notify.Observer
	ack    chan struct{} // closed once obs is live; may be nil
}

type unregisterEvent struct {
	client string
	obs    notify.Observer
}

type snapshotEvent struct {
	reply chan Snapshot
}

// Snapshot is a point-in-time view of the loop-owned state.
type Snapshot struct {
	Backlog     []string `json:"backlog"`
	InFlight    []string `json:"in_flight"`
	Resolving   int      `json:"resolving"`
	Observers   []string `json:"observers"`
	IPLimit     int      `json:"ip_limit"`
	CheckingCap int      `json:"checking_limit"`
}

func NewEngine(
	logger *zap.Logger,
	store repo.CheckStore,
	resolver probe.HostResolver,
	prober probe.Prober,
	bridge *notify.Bridge,
	cfg Config,
	opts ...Option,
) *Engine {
	e := &Engine{
		logger:    logger.With(zap.String("component", "engine")),
		store:     store,
		resolver:  resolver,
		prober:    prober,
		bridge:    bridge,
		clock:     clockwork.NewRealClock(),
		cfg:       cfg.withDefaults(),
		events:    make(chan any, eventBuffer),
		done:      make(chan struct{}),
		resolving: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start resets every unfinished check to pending, then starts the loop.
// Start is non-blocking.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	n, err := e.store.ResetAllUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("reset unfinished: %w", err)
	}
	e.logger.Info("engine_recovered", zap.Int64("reset", n))

	loopCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	go func() {
		defer close(e.done)
		e.run(loopCtx)
	}()

	e.logger.Info("engine_started",
		zap.Int("checking_limit", e.cfg.CheckingLimit),
		zap.Int("ip_limit", e.cfg.IPLimit),
		zap.Duration("pull_interval", e.cfg.PullInterval),
		zap.Duration("service_interval", e.cfg.ServiceInterval),
	)
	return nil
}

// Stop cancels the loop and waits for outstanding resolutions, probes and
// sink deliveries. Checks cut short stay in_progress in the store and are
// reset on the next Start. Safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasRunning := e.started && !e.stopped
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if wasRunning && e.cancel != nil {
		<-e.done
	}
	e.wg.Wait()
	e.bridge.Wait()
}

// Register makes obs the live observer for client, replacing any other.
// It returns once the loop has installed obs, so every transition published
// afterwards reaches it.
func (e *Engine) Register(ctx context.Context, client string, obs notify.Observer) error {
	ack := make(chan struct{})
	if err := e.send(ctx, registerEvent{client: client, obs: obs, ack: ack}); err != nil {
		return err
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// Unregister drops obs if it is still client's observer and degrades the
// client's queued checks back to pending.
func (e *Engine) Unregister(ctx context.Context, client string, obs notify.Observer) error {
	return e.send(ctx, unregisterEvent{client: client, obs: obs})
}

func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := e.send(ctx, snapshotEvent{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-e.done:
		return Snapshot{}, ErrStopped
	}
}

func (e *Engine) send(ctx context.Context, ev any) error {
	select {
	case e.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// deliver hands a background result back to the loop.
func (e *Engine) deliver(ctx context.Context, ev any) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

func (e *Engine) run(ctx context.Context) {
	pull := e.clock.NewTicker(e.cfg.PullInterval)
	defer pull.Stop()
	service := e.clock.NewTicker(e.cfg.ServiceInterval)
	defer service.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine_stopped",
				zap.Int("backlog", len(e.backlog)),
				zap.Int("in_flight", len(e.inflight)),
			)
			return
		case <-pull.Chan():
			e.pull(ctx)
		case <-service.Chan():
			e.service(ctx)
		case ev := <-e.events:
			e.handle(ctx, ev)
		}
	}
}

// pull moves pending checks of connected clients to queued and starts
// resolving their hosts. A check joins the backlog once its resolution
// completes, so completion order decides backlog order.
func (e *Engine) pull(ctx context.Context) {
	clients := e.bridge.Registry().Clients()
	if len(clients) == 0 {
		return
	}
	found, err := e.store.FindByStatus(ctx, domain.StatusPending, clients)
	if err != nil {
		e.metrics.RecordStoreError("find_by_status")
		e.logger.Warn("engine_pull_error", zap.Error(err))
		return
	}

	pulled := make([]*domain.CheckRequest, 0, len(found))
	ids := make([]string, 0, len(found))
	for _, c := range found {
		if e.tracked(c.ID) {
			continue
		}
		pulled = append(pulled, c)
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := e.store.UpdateStatus(ctx, domain.StatusQueued, ids...); err != nil {
		// leave them pending; the next pull retries
		e.metrics.RecordStoreError("update_status")
		e.logger.Warn("engine_queue_error", zap.Int("count", len(ids)), zap.Error(err))
		return
	}

	for _, c := range pulled {
		c.Status = domain.StatusQueued
		e.resolving[c.ID] = c.RequestClient
		e.resolve(ctx, c)
	}
	e.logger.Debug("engine_pulled", zap.Int("count", len(pulled)))
}

func (e *Engine) resolve(ctx context.Context, c *domain.CheckRequest) {
	host := probe.Host(c.RequestURL)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ip, err := e.resolver.Resolve(ctx, host)
		c.IP = ip
		e.deliver(ctx, resolvedEvent{rec: c, err: err})
	}()
}

// service refills the in-flight set and dispatches a probe for every entry
// not yet in_progress. The mark happens before dispatch, so an entry is
// never probed twice.
func (e *Engine) service(ctx context.Context) {
	var admitted int
	e.inflight, e.backlog, admitted = Admit(e.inflight, e.backlog, e.cfg.Limits)

	kept := e.inflight[:0]
	for _, c := range e.inflight {
		if c.Status == domain.StatusInProgress {
			kept = append(kept, c)
			continue
		}
		if !e.advance(c, domain.StatusInProgress) {
			// never dispatched, so it must not hold a slot
			continue
		}
		kept = append(kept, c)
		e.bridge.Publish(ctx, c)
		e.dispatch(ctx, c)
	}
	e.inflight = kept
	if admitted > 0 {
		e.logger.Debug("engine_admitted",
			zap.Int("admitted", admitted),
			zap.Int("in_flight", len(e.inflight)),
			zap.Int("backlog", len(e.backlog)),
		)
	}
	e.metrics.SetQueueSizes(len(e.backlog), len(e.inflight))
}

func (e *Engine) dispatch(ctx context.Context, c *domain.CheckRequest) {
	id, target := c.ID, c.RequestURL
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		out := e.prober.Probe(ctx, target)
		e.deliver(ctx, probedEvent{id: id, outcome: out})
	}()
}

func (e *Engine) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case resolvedEvent:
		e.onResolved(ev)
	case probedEvent:
		e.onProbed(ctx, ev)
	case registerEvent:
		e.bridge.Registry().Set(ev.client, ev.obs)
		e.metrics.SetObservers(e.bridge.Registry().Len())
		e.logger.Info("observer_registered", zap.String("client", ev.client))
		if ev.ack != nil {
			close(ev.ack)
		}
	case unregisterEvent:
		e.onUnregister(ctx, ev)
	case snapshotEvent:
		ev.reply <- e.snapshot()
	default:
		e.logger.Error("engine_unknown_event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (e *Engine) onResolved(ev resolvedEvent) {
	if _, ok := e.resolving[ev.rec.ID]; !ok {
		// owner disconnected while resolving
		return
	}
	delete(e.resolving, ev.rec.ID)
	if ev.err != nil {
		class := probe.ClassUnclassified
		var re *probe.ResolveError
		if errors.As(ev.err, &re) {
			class = re.Class
		}
		e.metrics.RecordResolveError(class)
		e.logger.Debug("engine_resolve_error",
			zap.String("id", ev.rec.ID),
			zap.String("url", ev.rec.RequestURL),
			zap.String("class", class),
			zap.Error(ev.err),
		)
	}
	e.backlog = append(e.backlog, ev.rec)
}

func (e *Engine) onProbed(ctx context.Context, ev probedEvent) {
	idx := -1
	for i, c := range e.inflight {
		if c.ID == ev.id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	c := e.inflight[idx]
	e.inflight = append(e.inflight[:idx], e.inflight[idx+1:]...)

	out := ev.outcome
	e.metrics.RecordProbe(out.Success(), out.Latency)
	next := domain.StatusFailed
	if out.Success() {
		next = domain.StatusSuccess
	}
	if !e.advance(c, next) {
		return
	}
	if out.Success() {
		c.StatusCode = out.StatusCode
		c.ContentLength = out.ContentLength
	} else {
		c.StatusCode = 0
		c.ContentLength = 0
		e.logger.Info("engine_probe_failed",
			zap.String("id", c.ID),
			zap.String("url", c.RequestURL),
			zap.String("ip", c.IP),
			zap.Error(out.Err),
		)
	}
	e.bridge.Publish(ctx, c)
	e.logger.Debug("engine_checked",
		zap.String("id", c.ID),
		zap.String("url", c.RequestURL),
		zap.String("status", string(c.Status)),
		zap.Int("status_code", c.StatusCode),
		zap.Int64("content_length", c.ContentLength),
		zap.Duration("latency", out.Latency),
	)
}

func (e *Engine) onUnregister(ctx context.Context, ev unregisterEvent) {
	if !e.bridge.Registry().Remove(ev.client, ev.obs) {
		return
	}
	e.metrics.SetObservers(e.bridge.Registry().Len())

	kept := e.backlog[:0]
	for _, c := range e.backlog {
		if c.RequestClient != ev.client {
			kept = append(kept, c)
		}
	}
	dropped := len(e.backlog) - len(kept)
	e.backlog = kept
	for id, client := range e.resolving {
		if client == ev.client {
			delete(e.resolving, id)
			dropped++
		}
	}

	n, err := e.store.DegradeQueuedForClient(ctx, ev.client)
	if err != nil {
		e.metrics.RecordStoreError("degrade")
		e.logger.Warn("engine_degrade_error", zap.String("client", ev.client), zap.Error(err))
	}
	e.logger.Info("observer_unregistered",
		zap.String("client", ev.client),
		zap.Int("dropped", dropped),
		zap.Int64("degraded", n),
	)
}

// advance moves c to next if the status machine allows it. A refused move
// leaves c untouched and is logged and counted.
func (e *Engine) advance(c *domain.CheckRequest, next domain.Status) bool {
	if !domain.CanTransition(c.Status, next) {
		e.metrics.RecordIllegalTransition(string(c.Status), string(next))
		e.logger.Error("engine_illegal_transition",
			zap.String("id", c.ID),
			zap.String("from", string(c.Status)),
			zap.String("to", string(next)),
		)
		return false
	}
	c.Status = next
	return true
}

// tracked reports whether the loop already holds the check.
func (e *Engine) tracked(id string) bool {
	if _, ok := e.resolving[id]; ok {
		return true
	}
	for _, c := range e.backlog {
		if c.ID == id {
			return true
		}
	}
	for _, c := range e.inflight {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) snapshot() Snapshot {
	return Snapshot{
		Backlog:     idsOf(e.backlog),
		InFlight:    idsOf(e.inflight),
		Resolving:   len(e.resolving),
		Observers:   e.bridge.Registry().Clients(),
		IPLimit:     e.cfg.IPLimit,
		CheckingCap: e.cfg.CheckingLimit,
	}
}

func idsOf(cs []*domain.CheckRequest) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
