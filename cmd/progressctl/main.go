// Package main is the command-line entry point of the progress engine.
//
// progressctl runs one use case per invocation against the configured
// store (postgres, sqlite or memory) and prints the result as JSON:
//
//	progressctl migrate
//	progressctl seed -file catalog.json
//	progressctl register -id u1 -email u1@example.com
//	progressctl complete-lesson -user u1 -lesson l1
//	progressctl submit-quiz -user u1 -quiz q1 -answers '{"q1":"a"}'
//	progressctl leaderboard -limit 10
//
// Configuration comes from the environment and an optional .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/itlingo/progress-engine/config"
	"github.com/itlingo/progress-engine/pkg/logger"
	"github.com/itlingo/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("progressctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	envFile := global.String("env", ".env", "dotenv file to load before the environment")
	global.Usage = func() { usage(stderr, global) }

	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		usage(stderr, global)
		return errUsage
	}

	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		usage(stderr, global)
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(*envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    stderr,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.Observability.AddCaller,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
	log.Debug("starting",
		logger.String("command", name),
		logger.String("driver", cfg.Database.Driver),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORES AND LEADERBOARD
	// ─────────────────────────────────────────────────────────────────────────
	s, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	board, closeBoard := openBoard(ctx, cfg.Redis, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. USE CASES
	// ─────────────────────────────────────────────────────────────────────────
	a, err := newApp(cfg, log, timeutil.SystemClock{}, s, board)
	if err != nil {
		closeBoard()
		s.close()
		return err
	}
	a.closers = append(a.closers, closeBoard)
	defer a.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. DISPATCH
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.App.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.App.RequestTimeout)
		defer cancel()
	}
	ctx = logger.WithContext(ctx, log.With(logger.String("command", name)))

	return cmd.run(ctx, a, rest, stdout)
}

// errUsage marks invalid invocations.
var errUsage = errors.New("usage")

func exitCode(err error) int {
	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		return 2
	}
	return 1
}

func usage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "usage: progressctl [-env file] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "global flags:")
	global.PrintDefaults()
}
