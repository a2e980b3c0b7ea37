// Package config resolves provider configuration per request and server
// runtime configuration at startup.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider configuration keys. The same keys are read from the environment
// in production and from map-backed lookups in tests.
const (
	KeyAccountID = "CLOUDFLARE_ACCOUNT_ID"
	KeyZoneID    = "CLOUDFLARE_ZONE_ID"
	KeyAPIToken  = "CLOUDFLARE_API_TOKEN"
	KeyDomain    = "TUNNEL_DOMAIN"
	KeyMaxAge    = "TUNNEL_MAX_AGE_HOURS"
)

// Lookup resolves a configuration key to its raw value. Abstracting the
// source keeps resolution pure; [FromEnv] adapts the process environment at
// the composition root only.
type Lookup func(key string) (string, bool)

// FromEnv adapts the process environment as a [Lookup].
func FromEnv() Lookup {
	return os.LookupEnv
}

// MapLookup adapts a fixed key set as a [Lookup].
func MapLookup(values map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// Config carries the provider settings needed to serve one request. It is
// resolved fresh per request and never cached.
type Config struct {
	AccountID string
	ZoneID    string
	APIToken  string // optional; requests go unauthenticated without it
	Domain    string // zone apex under which tunnels are named
	MaxAge    string // raw TUNNEL_MAX_AGE_HOURS override, interpreted by the lifecycle package
}

// MissingError reports every required key absent from the lookup source.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "Missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Resolve builds a [Config] from lookup. Required keys must resolve to
// non-blank values; on failure the returned *MissingError names all that do
// not, so operators fix the deployment in one pass.
func Resolve(lookup Lookup) (Config, error) {
	cfg := Config{
		AccountID: value(lookup, KeyAccountID),
		ZoneID:    value(lookup, KeyZoneID),
		APIToken:  value(lookup, KeyAPIToken),
		Domain:    normalizeDomainHost(value(lookup, KeyDomain)),
		MaxAge:    value(lookup, KeyMaxAge),
	}

	var missing []string
	for _, req := range []struct {
		key string
		val string
	}{
		{KeyAccountID, cfg.AccountID},
		{KeyZoneID, cfg.ZoneID},
		{KeyDomain, cfg.Domain},
	} {
		if req.val == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingError{Keys: missing}
	}

	return cfg, nil
}

func value(lookup Lookup, key string) string {
	v, ok := lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// ServerConfig is the startup configuration of the edge process. Unlike
// [Config] it is read once; provider settings stay per-request.
type ServerConfig struct {
	Listen          string
	OpsListen       string
	LogLevel        string
	LogFormat       string
	ProviderBaseURL string
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	RatePerSec      float64
	RateBurst       int
	ReapInterval    time.Duration
	OpsUser         string
	OpsPasswordHash string
	PprofEnabled    bool
	OTLPEndpoint    string
}

const defaultServerListen = ":8080"
const defaultServerOpsListen = ":8081"
const defaultServerRequestTimeout = 30 * time.Second
const defaultServerMaxBodyBytes = 64 * 1024
const defaultServerRatePerSec = 5
const defaultServerRateBurst = 10
const defaultServerReapInterval = 10 * time.Minute

// ServerFromEnv builds the server runtime configuration from NPORT_*
// environment variables. CLI flags may override fields before Validate.
func ServerFromEnv() ServerConfig {
	return ServerConfig{
		Listen:          envOrDefault("NPORT_LISTEN", defaultServerListen),
		OpsListen:       envOrDefault("NPORT_OPS_LISTEN", defaultServerOpsListen),
		LogLevel:        envOrDefault("NPORT_LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("NPORT_LOG_FORMAT", "text"),
		ProviderBaseURL: envOrDefault("NPORT_PROVIDER_BASE_URL", ""),
		RequestTimeout:  envDurationOrDefault("NPORT_REQUEST_TIMEOUT", defaultServerRequestTimeout),
		MaxBodyBytes:    envInt64OrDefault("NPORT_MAX_BODY_BYTES", defaultServerMaxBodyBytes),
		RatePerSec:      defaultServerRatePerSec,
		RateBurst:       envIntOrDefault("NPORT_RATE_BURST", defaultServerRateBurst),
		ReapInterval:    envDurationOrDefault("NPORT_REAP_INTERVAL", defaultServerReapInterval),
		OpsUser:         envOrDefault("NPORT_OPS_USER", ""),
		OpsPasswordHash: envOrDefault("NPORT_OPS_PASSWORD_HASH", ""),
		PprofEnabled:    envBoolOrDefault("NPORT_PPROF", false),
		OTLPEndpoint:    envOrDefault("NPORT_OTLP_ENDPOINT", ""),
	}
}

// Validate normalizes and checks the server configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("missing listen address")
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("log level must be one of: debug, info, warn, error")
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.New("log format must be one of: text, json")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be > 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be > 0")
	}
	if c.RatePerSec <= 0 {
		return errors.New("rate limit must be > 0")
	}
	if c.RateBurst <= 0 {
		return errors.New("rate burst must be > 0")
	}
	if c.ReapInterval <= 0 {
		return errors.New("reap interval must be > 0")
	}
	if (c.OpsUser == "") != (c.OpsPasswordHash == "") {
		return errors.New("ops auth requires both NPORT_OPS_USER and NPORT_OPS_PASSWORD_HASH")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64OrDefault(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBoolOrDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func normalizeDomainHost(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	if idx := strings.Index(v, "/"); idx >= 0 {
		v = v[:idx]
	}
	if strings.Contains(v, ":") {
		parts := strings.Split(v, ":")
		v = parts[0]
	}
	return strings.TrimSuffix(v, ".")
}
