package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

func isInteractiveInput() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// promptSecret reads a line from stdin with terminal echo disabled when
// stdin is a terminal, so passwords never land in scrollback.
func promptSecret(label string) (string, error) {
	if _, err := fmt.Fprint(os.Stdout, label); err != nil {
		return "", err
	}
	if isInteractiveInput() {
		echoDisabled := false
		if err := setTerminalEcho(false); err == nil {
			echoDisabled = true
		}
		defer func() {
			if echoDisabled {
				_ = setTerminalEcho(true)
			}
			_, _ = fmt.Fprintln(os.Stdout)
		}()
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func setTerminalEcho(enable bool) error {
	arg := "-echo"
	if enable {
		arg = "echo"
	}
	cmd := exec.Command("stty", arg)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
