package main

import (
	"os"

	"github.com/ChuLiYu/spacetime-runtime/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
