package main

import (
	"os"

	"github.com/torrpeddo/torrpeddo/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
