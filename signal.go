package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the shell convention for a command stopped by SIGINT.
const exitInterrupted = 130

// interruptedError is the cancel cause recorded when a signal stops the
// command.
type interruptedError struct {
	sig os.Signal
}

func (e *interruptedError) Error() string {
	return "interrupted by " + e.sig.String()
}

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM,
// with an *interruptedError as its cause. Only the first signal is caught;
// a second one gets the default handling and kills the process. Abandoning a
// job poll this way leaves the remote job running.
func shutdownContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Debug("signal received, abandoning command",
				slog.String("signal", sig.String()),
			)
			cancel(&interruptedError{sig: sig})
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}

// exitStatus picks what to report for a failed command. An interrupted run
// reports the signal rather than whichever context error surfaced first.
func exitStatus(ctx context.Context, err error) (int, error) {
	var interrupted *interruptedError
	if errors.As(context.Cause(ctx), &interrupted) {
		return exitInterrupted, interrupted
	}

	return 1, err
}
