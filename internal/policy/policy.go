// Package policy decides which subdomain names a tunnel may claim.
package policy

import (
	"fmt"
	"strings"

	"github.com/nport/nport-edge/internal/domain"
)

// Reserved names never leave the platform's hands; requests for them are
// rejected before the provider is consulted.
var reserved = map[string]struct{}{
	"api":       {},
	"www":       {},
	"admin":     {},
	"app":       {},
	"dashboard": {},
	"portal":    {},
	"status":    {},
	"docs":      {},
	"blog":      {},
	"mail":      {},
	"smtp":      {},
	"imap":      {},
	"mx":        {},
	"ns":        {},
	"ns1":       {},
	"ns2":       {},
	"cdn":       {},
	"assets":    {},
	"static":    {},
	"internal":  {},
	"ops":       {},
	"metrics":   {},
	"root":      {},
	"support":   {},
}

// maxLabelLen is the DNS limit for a single label.
const maxLabelLen = 63

// Normalize lower-cases a requested subdomain and strips surrounding
// whitespace and trailing dots.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".")
}

// Protected reports whether the normalized name is reserved for platform
// infrastructure.
func Protected(name string) bool {
	_, ok := reserved[Normalize(name)]
	return ok
}

// Validate enforces DNS label syntax on an already-normalized name.
func Validate(name string) error {
	if name == "" {
		return domain.ErrSubdomainRequired
	}
	if len(name) > maxLabelLen {
		return fmt.Errorf("%w: must be at most %d characters", domain.ErrSubdomainInvalid, maxLabelLen)
	}
	if name[0] == '-' || name[len(name)-1] == '-' {
		return fmt.Errorf("%w: must not start or end with a hyphen", domain.ErrSubdomainInvalid)
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return fmt.Errorf("%w: only a-z, 0-9 and hyphen are allowed", domain.ErrSubdomainInvalid)
		}
	}
	return nil
}

// Check normalizes and vets a requested subdomain, returning the cleaned
// name. Errors wrap the domain sentinels so handlers can classify them with
// [errors.Is].
func Check(name string) (string, error) {
	name = Normalize(name)
	if err := Validate(name); err != nil {
		return "", err
	}
	if Protected(name) {
		return "", fmt.Errorf("%w: subdomain %q is reserved", domain.ErrSubdomainProtected, name)
	}
	return name, nil
}
