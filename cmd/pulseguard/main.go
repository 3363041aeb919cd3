package main

import (
	"os"

	"github.com/pulseguard/pulseguard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
