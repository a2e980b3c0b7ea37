package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ProviderError{Op: "create tunnel", StatusCode: 403, Detail: "authentication error"}
	want := "provider: create tunnel: status 403: authentication error"
	if got := err.Error(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestProviderErrorWithoutDetail(t *testing.T) {
	t.Parallel()

	err := &ProviderError{Op: "list tunnels", StatusCode: 500}
	want := "provider: list tunnels: status 500"
	if got := err.Error(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := &ProviderError{Op: "delete tunnel", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to match the wrapped cause")
	}
	want := "provider: delete tunnel: dial tcp: connection refused"
	if got := err.Error(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSubdomainProtectedToken(t *testing.T) {
	t.Parallel()

	// Clients match on the SUBDOMAIN_PROTECTED token, including when the
	// sentinel is wrapped with the offending name.
	wrapped := errors.New("SUBDOMAIN_PROTECTED: subdomain \"api\" is reserved")
	if !strings.Contains(wrapped.Error(), "SUBDOMAIN_PROTECTED") {
		t.Fatal("expected SUBDOMAIN_PROTECTED token in message")
	}
	if !strings.Contains(ErrSubdomainProtected.Error(), "SUBDOMAIN_PROTECTED") {
		t.Fatal("expected SUBDOMAIN_PROTECTED token in sentinel message")
	}
}

func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"subdomain_protected", ErrSubdomainProtected, "SUBDOMAIN_PROTECTED"},
		{"subdomain_required", ErrSubdomainRequired, "subdomain is required"},
		{"subdomain_invalid", ErrSubdomainInvalid, "invalid subdomain"},
		{"rate_limit", ErrRateLimitExceeded, "rate limit exceeded"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
