package main

import (
	"os"

	"github.com/VK79/Radar12/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
