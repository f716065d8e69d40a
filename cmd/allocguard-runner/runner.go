package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"github.com/allocguard/allocguard/internal/cli"
)

// config is the parsed command line of the runner.
type config struct {
	env        map[string]string
	appendEnv  map[string]string
	envFiles   []string
	watchPaths []string
	minVersion string
	command    []string
	showVer    bool
	showHelp   bool
}

// parseArgs walks the arguments with a mode state machine: --env and
// --append-env switch collection modes, -- starts the command, after which
// every argument is consumed verbatim.
func parseArgs(args []string) (*config, error) {
	cfg := &config{
		env:       map[string]string{},
		appendEnv: map[string]string{},
	}
	mode := "none"
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "" {
			return nil, fmt.Errorf("argument unexpectedly empty")
		}
		if mode == "command" {
			cfg.command = append(cfg.command, arg)
			continue
		}
		switch arg {
		case "-h", "--help":
			cfg.showHelp = true
			continue
		case "--version":
			cfg.showVer = true
			continue
		case "--env":
			mode = "env"
			continue
		case "--append-env":
			mode = "append_env"
			continue
		case "--env-file":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--env-file requires a path")
			}
			i++
			cfg.envFiles = append(cfg.envFiles, args[i])
			continue
		case "--watch":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--watch requires a path")
			}
			i++
			cfg.watchPaths = append(cfg.watchPaths, args[i])
			continue
		case "--min-version":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--min-version requires a constraint")
			}
			i++
			cfg.minVersion = args[i]
			continue
		case "--":
			mode = "command"
			continue
		}
		switch mode {
		case "none":
			return nil, fmt.Errorf("unexpected positional argument: %s", arg)
		case "env":
			k, v, err := cli.ParseEnvAssignment(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid environment variable: %w", err)
			}
			cfg.env[k] = v
		case "append_env":
			k, v, err := cli.ParseEnvAssignment(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid environment variable: %w", err)
			}
			cfg.appendEnv[k] = v
		}
	}
	return cfg, nil
}

// applyEnv sets the plain assignments and appends the PATH-like ones using
// the platform's path-list separator.
func applyEnv(cfg *config) error {
	for _, file := range cfg.envFiles {
		if err := godotenv.Overload(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	for k, v := range cfg.env {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set environment variable '%s=%s': %w", k, v, err)
		}
	}
	sep := string(os.PathListSeparator)
	for k, v := range cfg.appendEnv {
		newValue := os.Getenv(k)
		if newValue != "" && !strings.HasSuffix(newValue, sep) {
			newValue += sep
		}
		newValue += v
		if err := os.Setenv(k, newValue); err != nil {
			return fmt.Errorf("failed to set environment variable '%s=%s': %w", k, newValue, err)
		}
	}
	return nil
}

// runCommand spawns the wrapped command, forwards its output, and returns
// its exit code.
func runCommand(ctx context.Context, command []string, out, errOut io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = out
	cmd.Stderr = errOut
	cmd.Stdin = os.Stdin
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 1, fmt.Errorf("failed to execute command %q: %w", strings.Join(command, " "), err)
}

// watchAndRun re-runs the command whenever a watched path changes, with a
// short debounce so editor save bursts trigger one run.
func watchAndRun(ctx context.Context, cfg *config, log *cli.Logger) (int, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 1, fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	for _, p := range cfg.watchPaths {
		if err := watcher.Add(p); err != nil {
			return 1, fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	code, err := runCommand(ctx, cfg.command, os.Stdout, os.Stderr)
	if err != nil {
		return code, err
	}
	log.Info("watching %s", strings.Join(cfg.watchPaths, ", "))

	var timer *time.Timer
	runs := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return code, nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return code, nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case runs <- struct{}{}:
				default:
				}
			})
		case werr, ok := <-watcher.Errors:
			if !ok {
				return code, nil
			}
			log.Error("watch error: %v", werr)
		case <-runs:
			code, err = runCommand(ctx, cfg.command, os.Stdout, os.Stderr)
			if err != nil {
				return code, err
			}
			log.Info("command exited with code %d", code)
		}
	}
}
