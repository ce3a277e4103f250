// Package main is the entry point for qsafp-harness.
package main

import (
	"os"

	"qsafp-harness/internal/cli"
	"qsafp-harness/internal/logger"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		logger.Error("", "%v", err)
		os.Exit(cli.GetExitCode(err))
	}
}
