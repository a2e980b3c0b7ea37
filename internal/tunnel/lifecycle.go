// Package tunnel holds the pure lifecycle rules for provisioned tunnels:
// how long a tunnel may live and when a provider record counts as expired.
package tunnel

import (
	"math"
	"strconv"
	"time"

	"github.com/nport/nport-edge/internal/config"
	"github.com/nport/nport-edge/internal/domain"
)

// DefaultMaxAgeHours applies when no TUNNEL_MAX_AGE_HOURS override is set.
const DefaultMaxAgeHours = 24

// MaxAge returns the maximum tunnel lifetime for cfg. The raw override is
// parsed as fractional hours; unparseable, non-finite, zero, or negative
// values silently fall back to the default.
func MaxAge(cfg config.Config) time.Duration {
	if cfg.MaxAge == "" {
		return DefaultMaxAgeHours * time.Hour
	}
	hours, err := strconv.ParseFloat(cfg.MaxAge, 64)
	if err != nil || math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return DefaultMaxAgeHours * time.Hour
	}
	return time.Duration(hours * float64(time.Hour))
}

// Expired reports whether rec has outlived maxAge at the instant now.
// Records without a creation timestamp never expire, and a record exactly
// maxAge old is still live.
func Expired(rec domain.Tunnel, maxAge time.Duration, now time.Time) bool {
	if rec.CreatedAt == nil {
		return false
	}
	return now.Sub(*rec.CreatedAt) > maxAge
}
