package main

import (
	"context"
	"log/slog"
)

func main() {
	ctx, stop := shutdownContext(context.Background(), slog.Default())

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		stop()
		return
	}

	code, report := exitStatus(ctx, err)
	stop()
	exitOnError(report, code)
}
