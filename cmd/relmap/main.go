package main

import (
	"os"

	"github.com/relmap/relmap/pkg/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
