package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrSubdomainProtected indicates the requested subdomain is reserved
	// for platform infrastructure.  Its message carries the
	// SUBDOMAIN_PROTECTED token that API clients match on.
	ErrSubdomainProtected = errors.New("SUBDOMAIN_PROTECTED")

	// ErrSubdomainRequired means the provisioning request carried no
	// subdomain.
	ErrSubdomainRequired = errors.New("subdomain is required")

	// ErrSubdomainInvalid means the requested subdomain is not a valid
	// DNS label.
	ErrSubdomainInvalid = errors.New("invalid subdomain")

	// ErrRateLimitExceeded is returned when a client exceeds the allowed
	// request rate.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// ProviderError wraps a failure reported by, or while reaching, the tunnel
// provider API.
type ProviderError struct {
	Op         string // provider operation, e.g. "create tunnel"
	StatusCode int    // provider HTTP status; 0 when the call never completed
	Detail     string // provider-supplied message, if any
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Detail != "" && e.StatusCode != 0:
		return fmt.Sprintf("provider: %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("provider: %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("provider: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provider: %s failed", e.Op)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
