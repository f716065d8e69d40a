// Command allocguard-runner wraps a test process: it sets or appends
// environment variables (MEMORY_TOOLS_VERBOSITY among them), spawns the
// given command, forwards its output, and exits with the command's exit
// code. With --watch it re-runs the command when watched paths change.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/allocguard/allocguard/internal/cli"
)

func usage() {
	fmt.Fprintf(os.Stderr,
		"usage: %s "+
			"[--env ENV=VALUE [ENV2=VALUE [...]]] "+
			"[--append-env ENV=VALUE [ENV2=VALUE [...]]] "+
			"[--env-file FILE] [--watch PATH] [--min-version CONSTRAINT] "+
			"-- <command>\n", os.Args[0])
}

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		usage()
		os.Exit(1)
	}
	if cfg.showHelp {
		usage()
		os.Exit(1)
	}
	if cfg.showVer {
		cli.PrintVersion("allocguard-runner", false)
		os.Exit(0)
	}
	if cfg.minVersion != "" {
		ok, err := cli.CheckVersionConstraint(cfg.minVersion)
		if err != nil {
			cli.ExitWithError("%v", err)
		}
		if !ok {
			cli.ExitWithError("library version %s does not satisfy %q", cli.Version, cfg.minVersion)
		}
	}
	if len(cfg.command) == 0 {
		usage()
		os.Exit(1)
	}
	if err := applyEnv(cfg); err != nil {
		cli.ExitWithError("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := cli.NewLogger(true, false)
	var code int
	if len(cfg.watchPaths) > 0 {
		code, err = watchAndRun(ctx, cfg, log)
	} else {
		code, err = runCommand(ctx, cfg.command, os.Stdout, os.Stderr)
	}
	if err != nil {
		cli.ExitWithError("%v", err)
	}
	os.Exit(code)
}
