package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moviebot/internal/app"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fatal(err)
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := stopReason(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// stopReason tells a signal from a fatal supervisor error. A signal also ends
// the supervisor, so both select cases can be ready at once.
func stopReason(ctx context.Context) app.StopReason {
	if ctx.Err() != nil {
		return app.StopSignal
	}
	return app.StopFatalError
}

func fatal(err error) {
	var se *app.StartupError
	if errors.As(err, &se) {
		fmt.Fprintf(os.Stderr, "fatal: %s: %v\n", se.Stage, se.Err)
	} else {
		fmt.Fprintln(os.Stderr, "fatal:", err)
	}
	os.Exit(1)
}
