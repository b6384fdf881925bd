package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dogmatiq/ferrite"
	"github.com/evsrc/runtime"
)

var debug = ferrite.
	Bool("RUNTIME_DEBUG", "enable debug logging").
	WithDefault(false).
	Required()

func main() {
	ferrite.Init()

	level := slog.LevelInfo
	if debug.Value() {
		level = slog.LevelDebug
	}

	logger := slog.New(
		slog.NewJSONHandler(
			os.Stdout,
			&slog.HandlerOptions{
				Level: level,
			},
		),
	)

	if err := run(logger); err != nil {
		logger.Error("runtime stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	r, err := runtime.New(
		runtime.WithOptionsFromEnvironment(),
		runtime.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
