package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nport/nport-edge/internal/auth"
)

type hashPasswordCommand struct {
	cmd      *cobra.Command
	password string
}

// HashPasswordCommand hashes an ops password for NPORT_OPS_PASSWORD_HASH.
func HashPasswordCommand() *hashPasswordCommand {
	c := &hashPasswordCommand{}
	c.cmd = &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for NPORT_OPS_PASSWORD_HASH",
		RunE:  c.run,
	}

	c.cmd.Flags().StringVar(&c.password, "password", "", "password to hash (prompted when omitted)")

	return c
}

func (c *hashPasswordCommand) run(cmd *cobra.Command, _ []string) error {
	password := strings.TrimSpace(c.password)
	if password == "" {
		v, err := promptSecret("Ops password: ")
		if err != nil {
			return err
		}
		password = strings.TrimSpace(v)
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
