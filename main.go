package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	ctx := shutdownContext(context.Background(), bootstrapLogger())

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// bootstrapLogger is used before config is loaded. It honors only the CLI
// flags; the default is Warn so startup stays quiet.
func bootstrapLogger() *slog.Logger {
	level := slog.LevelWarn

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
