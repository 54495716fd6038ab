package gobroker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// quitSignals are the signals that stop the service
var quitSignals = []os.Signal{syscall.SIGQUIT, syscall.SIGTERM, os.Interrupt}

// withSignals returns a context cancelled when the process should quit
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, quitSignals...)
}
