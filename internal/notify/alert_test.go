package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/checkqueue/internal/domain"
	"github.com/hamed0406/checkqueue/internal/repo/memory"
)

type memNotifier struct {
	n      int
	titles []string
	err    error
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.n++
	m.titles = append(m.titles, title)
	return m.err
}

func check(url string, st domain.Status) domain.CheckRequest {
	return domain.CheckRequest{ID: "id-" + url, RequestURL: url, RequestClient: "127.0.0.1", Status: st, StatusCode: 200}
}

func TestAlerter_SendsOnFailure_RespectsCooldown(t *testing.T) {
	nt := &memNotifier{}
	al := NewAlerter(nt, memory.New(), AlerterConfig{AlertOnRecovery: true, Cooldown: time.Minute})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	al.now = func() time.Time { return now }
	ctx := context.Background()

	if err := al.Publish(ctx, check("a.test", domain.StatusFailed)); err != nil {
		t.Fatal(err)
	}
	if nt.n != 1 {
		t.Fatalf("want 1 alert, got %d", nt.n)
	}

	// second failure within cooldown -> suppressed
	now = now.Add(10 * time.Second)
	_ = al.Publish(ctx, check("a.test", domain.StatusFailed))
	if nt.n != 1 {
		t.Fatalf("want cooldown to suppress, got %d", nt.n)
	}

	// success after failure -> recovery alert, bypassing cooldown
	_ = al.Publish(ctx, check("a.test", domain.StatusSuccess))
	if nt.n != 2 || nt.titles[1] != "🟢 Check RECOVERED" {
		t.Fatalf("want recovery alert, got %d %v", nt.n, nt.titles)
	}

	// after the cooldown a new failure alerts again
	now = now.Add(2 * time.Minute)
	_ = al.Publish(ctx, check("a.test", domain.StatusFailed))
	if nt.n != 3 {
		t.Fatalf("want alert after cooldown, got %d", nt.n)
	}
}

func TestAlerter_IgnoresNonTerminalAndPlainSuccess(t *testing.T) {
	nt := &memNotifier{}
	al := NewAlerter(nt, memory.New(), AlerterConfig{AlertOnRecovery: false})
	ctx := context.Background()

	_ = al.Publish(ctx, check("b.test", domain.StatusInProgress))
	_ = al.Publish(ctx, check("b.test", domain.StatusSuccess))
	if nt.n != 0 {
		t.Fatalf("unexpected alerts: %d", nt.n)
	}

	_ = al.Publish(ctx, check("b.test", domain.StatusFailed))
	_ = al.Publish(ctx, check("b.test", domain.StatusSuccess))
	if nt.n != 1 {
		t.Fatalf("recovery disabled: want 1 alert, got %d", nt.n)
	}
}

func TestAlerter_CooldownSurvivesRestart(t *testing.T) {
	state := memory.New()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first := &memNotifier{}
	al := NewAlerter(first, state, AlerterConfig{Cooldown: time.Hour})
	al.now = func() time.Time { return now }
	_ = al.Publish(ctx, check("c.test", domain.StatusFailed))

	// a fresh Alerter over the same state still honours the cooldown
	second := &memNotifier{}
	al2 := NewAlerter(second, state, AlerterConfig{Cooldown: time.Hour})
	al2.now = func() time.Time { return now.Add(time.Minute) }
	_ = al2.Publish(ctx, check("c.test", domain.StatusFailed))

	if first.n != 1 || second.n != 0 {
		t.Fatalf("want 1/0 alerts, got %d/%d", first.n, second.n)
	}
}

func TestAlerter_FailedSendIsRetriedNextFailure(t *testing.T) {
	nt := &memNotifier{err: errors.New("webhook 500")}
	al := NewAlerter(nt, memory.New(), AlerterConfig{Cooldown: time.Hour})
	ctx := context.Background()

	if err := al.Publish(ctx, check("d.test", domain.StatusFailed)); err == nil {
		t.Fatal("want notifier error")
	}
	nt.err = nil
	if err := al.Publish(ctx, check("d.test", domain.StatusFailed)); err != nil {
		t.Fatal(err)
	}
	if nt.n != 2 {
		t.Fatalf("want retry despite cooldown, got %d sends", nt.n)
	}
}
