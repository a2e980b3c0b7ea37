package main

import (
	"os"

	"github.com/nport/nport-edge/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
