package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/modgate/internal/app"
	"github.com/vk/modgate/internal/cli"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/livefeed"
)

// main is the entrypoint for the modgate application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) (err error) {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Module registration runs third-party code; a panic there is reported
	// as a startup failure rather than a crash.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch inv.Mode {
	case cli.ModeWatch:
		return watch(ctx, outW, inv)
	case cli.ModeWorker:
		// Stdout carries the relay; worker logs go to stderr.
		worker, err := app.NewApp(os.Stderr, inv.Config, nil)
		if err != nil {
			return err
		}
		return worker.RunWorker(ctx, app.StdioRelay())
	default:
		master, err := app.NewApp(outW, inv.Config, nil)
		if err != nil {
			return err
		}
		return master.RunMaster(ctx)
	}
}

// watch prints every change on a worker's live feed as a JSON line.
func watch(ctx context.Context, outW io.Writer, inv *cli.Invocation) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx = ctxlog.WithLogger(ctx, logger)
	enc := json.NewEncoder(outW)
	return livefeed.Watch(ctx, inv.Watch, func(c livefeed.Change) {
		if err := enc.Encode(c); err != nil {
			logger.Warn("Failed to print state change.", "error", err)
		}
	})
}
