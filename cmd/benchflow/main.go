package main

import (
	"os"

	"github.com/benchflow/benchflow/internal/benchflow/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
