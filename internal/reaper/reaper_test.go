package reaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nport/nport-edge/internal/config"
	"github.com/nport/nport-edge/internal/domain"
	"github.com/nport/nport-edge/internal/events"
)

type fakeProvider struct {
	listFn   func(ctx context.Context, cfg config.Config) ([]domain.Tunnel, error)
	deleteFn func(ctx context.Context, cfg config.Config, tun domain.Tunnel) error

	mu      sync.Mutex
	lists   int
	deleted []string
}

func (f *fakeProvider) ListTunnels(ctx context.Context, cfg config.Config) ([]domain.Tunnel, error) {
	f.mu.Lock()
	f.lists++
	f.mu.Unlock()
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, cfg)
}

func (f *fakeProvider) DeleteTunnel(ctx context.Context, cfg config.Config, tun domain.Tunnel) error {
	if f.deleteFn != nil {
		if err := f.deleteFn(ctx, cfg, tun); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, tun.ID)
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeProvider) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func fullLookup(extra map[string]string) config.Lookup {
	values := map[string]string{
		config.KeyAccountID: "acc-1",
		config.KeyZoneID:    "zone-1",
		config.KeyDomain:    "nport.link",
	}
	for k, v := range extra {
		values[k] = v
	}
	return config.MapLookup(values)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testReaper(lookup config.Lookup, provider Provider) *Reaper {
	r := New(lookup, provider, events.NewHub(nil), discardLogger(), time.Minute)
	r.Now = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	return r
}

func createdAgo(r *Reaper, d time.Duration) *time.Time {
	ts := r.Now().Add(-d)
	return &ts
}

func TestRunOnceReapsOnlyExpired(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	r := testReaper(fullLookup(nil), provider)
	provider.listFn = func(context.Context, config.Config) ([]domain.Tunnel, error) {
		return []domain.Tunnel{
			{ID: "t-old", Name: "old", CreatedAt: createdAgo(r, 48 * time.Hour)},
			{ID: "t-fresh", Name: "fresh", CreatedAt: createdAgo(r, time.Hour)},
			{ID: "t-boundary", Name: "boundary", CreatedAt: createdAgo(r, 24 * time.Hour)},
			{ID: "t-unknown", Name: "unknown"},
		}, nil
	}

	reaped, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped, got %d", reaped)
	}
	if got := provider.deletedIDs(); len(got) != 1 || got[0] != "t-old" {
		t.Fatalf("expected only t-old deleted, got %v", got)
	}
}

func TestRunOncePublishesReapedEvents(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	hub := events.NewHub(nil)
	r := New(fullLookup(nil), provider, hub, discardLogger(), time.Minute)
	r.Now = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	provider.listFn = func(context.Context, config.Config) ([]domain.Tunnel, error) {
		return []domain.Tunnel{
			{ID: "t-old", Name: "old", CreatedAt: createdAgo(r, 48 * time.Hour)},
		}, nil
	}

	ch, cancel := hub.Subscribe()
	defer cancel()

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != events.KindTunnelReaped {
			t.Fatalf("expected %q event, got %q", events.KindTunnelReaped, evt.Kind)
		}
		if evt.Tunnel.ID != "t-old" {
			t.Fatalf("expected t-old in event, got %q", evt.Tunnel.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reaped event")
	}
}

func TestRunOnceContinuesPastDeleteFailures(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	r := testReaper(fullLookup(nil), provider)
	provider.listFn = func(context.Context, config.Config) ([]domain.Tunnel, error) {
		return []domain.Tunnel{
			{ID: "t-1", Name: "a", CreatedAt: createdAgo(r, 48 * time.Hour)},
			{ID: "t-2", Name: "b", CreatedAt: createdAgo(r, 48 * time.Hour)},
		}, nil
	}
	provider.deleteFn = func(_ context.Context, _ config.Config, tun domain.Tunnel) error {
		if tun.ID == "t-1" {
			return &domain.ProviderError{Op: "delete tunnel", StatusCode: 500}
		}
		return nil
	}

	reaped, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped despite failure, got %d", reaped)
	}
	if got := provider.deletedIDs(); len(got) != 1 || got[0] != "t-2" {
		t.Fatalf("expected t-2 deleted, got %v", got)
	}
}

func TestRunOnceHonorsMaxAgeOverride(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	r := testReaper(fullLookup(map[string]string{config.KeyMaxAge: "0.5"}), provider)
	provider.listFn = func(context.Context, config.Config) ([]domain.Tunnel, error) {
		return []domain.Tunnel{
			{ID: "t-40m", CreatedAt: createdAgo(r, 40 * time.Minute)},
			{ID: "t-20m", CreatedAt: createdAgo(r, 20 * time.Minute)},
		}, nil
	}

	reaped, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped under 30m max age, got %d", reaped)
	}
	if got := provider.deletedIDs(); len(got) != 1 || got[0] != "t-40m" {
		t.Fatalf("expected t-40m deleted, got %v", got)
	}
}

func TestRunOnceMissingConfigNeverCallsProvider(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	r := testReaper(config.MapLookup(nil), provider)

	_, err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected config error")
	}
	if !strings.Contains(err.Error(), "Missing") {
		t.Fatalf("expected Missing in error, got %q", err.Error())
	}
	if provider.listCalls() != 0 {
		t.Fatal("expected provider to never be called")
	}
}

func TestRunOncePropagatesListFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		listFn: func(context.Context, config.Config) ([]domain.Tunnel, error) {
			return nil, &domain.ProviderError{Op: "list tunnels", StatusCode: 502}
		},
	}
	r := testReaper(fullLookup(nil), provider)

	_, err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected list error")
	}
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *domain.ProviderError in chain, got %v", err)
	}
}

func TestRunSweepsUntilCanceled(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	r := New(fullLookup(nil), provider, nil, discardLogger(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for provider.listCalls() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("expected repeated sweeps")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
