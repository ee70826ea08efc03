// Package main is the entry point for the completions binary.
// It delegates immediately to the CLI command tree.
package main

import (
	"context"
	"os"

	"github.com/neoclaw-ai/completions/internal/cli"
	"github.com/neoclaw-ai/completions/internal/completion"
	"github.com/neoclaw-ai/completions/internal/logging"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		if code := completion.CodeOf(err); code != "" {
			logging.Logger().Error("fatal error", "code", code, "err", err)
		} else {
			logging.Logger().Error("fatal error", "err", err)
		}
		os.Exit(1)
	}
}
