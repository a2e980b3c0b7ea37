package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nport/nport-edge/internal/auth"
)

func TestHashPasswordCommandHashesFlagValue(t *testing.T) {
	t.Parallel()

	c := HashPasswordCommand()
	c.password = "hunter2"

	var out bytes.Buffer
	c.cmd.SetOut(&out)

	if err := c.run(c.cmd, nil); err != nil {
		t.Fatal(err)
	}

	hash := strings.TrimSpace(out.String())
	if hash == "" || hash == "hunter2" {
		t.Fatalf("expected bcrypt hash output, got %q", hash)
	}
	if !auth.VerifyPassword(hash, "hunter2") {
		t.Fatal("expected emitted hash to verify the password")
	}
}

func TestHashPasswordCommandTrimsWhitespace(t *testing.T) {
	t.Parallel()

	c := HashPasswordCommand()
	c.password = "  hunter2  "

	var out bytes.Buffer
	c.cmd.SetOut(&out)

	if err := c.run(c.cmd, nil); err != nil {
		t.Fatal(err)
	}
	if !auth.VerifyPassword(strings.TrimSpace(out.String()), "hunter2") {
		t.Fatal("expected trimmed password to be hashed")
	}
}
