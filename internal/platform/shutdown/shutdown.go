package shutdown

import (
	"context"
	"os/signal"
	"syscall"
	"time"
)

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Deadline returns a context for draining work after the run context is done.
// It is detached from parent cancellation so shutdown steps are not cut short
// by the very signal that started them.
func Deadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 15 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(parent), d)
}
