// Package reaper sweeps the provider's tunnel inventory and deletes records
// that have outlived the configured max age.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nport/nport-edge/internal/config"
	"github.com/nport/nport-edge/internal/domain"
	"github.com/nport/nport-edge/internal/events"
	"github.com/nport/nport-edge/internal/metrics"
	"github.com/nport/nport-edge/internal/tunnel"
)

// sweepTimeout bounds a single sweep so a hung provider call cannot wedge
// the ticker loop.
const sweepTimeout = 2 * time.Minute

// Provider is the slice of the tunnel provider API the reaper needs.
type Provider interface {
	ListTunnels(ctx context.Context, cfg config.Config) ([]domain.Tunnel, error)
	DeleteTunnel(ctx context.Context, cfg config.Config, tun domain.Tunnel) error
}

// Reaper deletes expired tunnels from the provider. Credentials and the
// max-age override are resolved fresh on every sweep, so configuration
// changes take effect without a restart.
type Reaper struct {
	lookup   config.Lookup
	provider Provider
	hub      *events.Hub
	log      *slog.Logger
	interval time.Duration

	// Now feeds expiry decisions; tests override it.
	Now func() time.Time
}

func New(lookup config.Lookup, provider Provider, hub *events.Hub, log *slog.Logger, interval time.Duration) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		lookup:   lookup,
		provider: provider,
		hub:      hub,
		log:      log,
		interval: interval,
		Now:      time.Now,
	}
}

// Run sweeps on the configured interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
			if _, err := r.RunOnce(sweepCtx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error("tunnel sweep failed", "err", err)
			}
			cancel()
		}
	}
}

// RunOnce performs a single sweep and returns the number of tunnels reaped.
// Per-tunnel delete failures are logged and skipped so one bad record never
// stalls the rest of the sweep.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	cfg, err := config.Resolve(r.lookup)
	if err != nil {
		return 0, fmt.Errorf("resolve config: %w", err)
	}

	tunnels, err := r.provider.ListTunnels(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("list tunnels: %w", err)
	}

	maxAge := tunnel.MaxAge(cfg)
	now := r.Now()

	reaped := 0
	for _, rec := range tunnels {
		if !tunnel.Expired(rec, maxAge, now) {
			continue
		}
		if err := r.provider.DeleteTunnel(ctx, cfg, rec); err != nil {
			r.log.Error("failed to delete expired tunnel", "id", rec.ID, "name", rec.Name, "err", err)
			continue
		}
		reaped++
		metrics.TunnelsReaped.Inc()
		r.hub.Publish(events.Event{Kind: events.KindTunnelReaped, Tunnel: rec, At: now.UTC()})
		r.log.Info("expired tunnel reaped",
			"id", rec.ID,
			"name", rec.Name,
			"age", now.Sub(*rec.CreatedAt).Round(time.Second).String())
	}

	r.log.Debug("tunnel sweep complete", "tunnels", len(tunnels), "reaped", reaped)
	return reaped, nil
}
