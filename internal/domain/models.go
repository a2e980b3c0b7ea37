// Package domain defines the core data types shared across the nport-edge
// server, provider client, and reaper layers.
package domain

import "time"

// Tunnel status values commonly reported by the provider. The edge never
// interprets status beyond equality checks; unknown values pass through
// untouched.
const (
	StatusHealthy  = "healthy"
	StatusInactive = "inactive"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Tunnel is the provider-side record of a named tunnel. Field names mirror
// the provider wire format so records survive a round trip without loss.
type Tunnel struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// TunnelStatus pairs a [Tunnel] with its computed expiry state for listings.
type TunnelStatus struct {
	Tunnel
	Expired bool `json:"expired"`
}
