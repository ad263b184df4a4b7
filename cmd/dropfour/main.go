package main

import (
	"os"

	"github.com/park285/dropfour-server/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
