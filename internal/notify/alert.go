package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/repo"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
}

// Alerter is a Sink that tells a Notifier when a URL's check fails, and
// optionally when a previously failing URL succeeds again. Per-URL state
// lives in an AlertStore so cooldowns survive restarts on Postgres.
type Alerter struct {
	notifier Notifier
	state    repo.AlertStore
	cfg      AlerterConfig
	now      func() time.Time

	// serializes read-modify-write of alert state
	mu sync.Mutex
}

func NewAlerter(n Notifier, state repo.AlertStore, cfg AlerterConfig) *Alerter {
	return &Alerter{
		notifier: n,
		state:    state,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (a *Alerter) Publish(ctx context.Context, rec domain.CheckRequest) error {
	if !rec.Status.Terminal() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	prev, err := a.state.GetAlert(ctx, rec.RequestURL)
	if err != nil {
		return fmt.Errorf("alert state: %w", err)
	}
	var (
		wasFailing bool
		lastSent   time.Time
	)
	if prev != nil {
		wasFailing = prev.Failing
		if prev.LastSentAt != nil {
			lastSent = *prev.LastSentAt
		}
	}

	now := a.now()
	failing := rec.Status == domain.StatusFailed
	var title string
	switch {
	case failing && (lastSent.IsZero() || now.Sub(lastSent) >= a.cfg.Cooldown):
		// cooldown only applies to failure alerts
		title = "🔴 Check FAILED"
	case !failing && wasFailing && a.cfg.AlertOnRecovery:
		title = "🟢 Check RECOVERED"
	}

	if title == "" {
		if failing == wasFailing && prev != nil {
			return nil
		}
		return a.state.SetAlert(ctx, rec.RequestURL, failing, lastSent)
	}

	httpTxt := "n/a"
	if rec.Status == domain.StatusSuccess {
		httpTxt = fmt.Sprintf("%d", rec.StatusCode)
	}
	ipTxt := rec.IP
	if ipTxt == "" {
		ipTxt = "unresolved"
	}
	text := fmt.Sprintf(
		"URL: %s\nClient: %s\nIP: %s\nHTTP: %s\nCheck: %s",
		rec.RequestURL, rec.RequestClient, ipTxt, httpTxt, rec.ID,
	)
	if err := a.notifier.Send(ctx, title, text); err != nil {
		// keep the old sent time so the next failure retries the alert
		if serr := a.state.SetAlert(ctx, rec.RequestURL, failing, lastSent); serr != nil {
			return multierr.Append(err, serr)
		}
		return err
	}
	return a.state.SetAlert(ctx, rec.RequestURL, failing, now)
}
