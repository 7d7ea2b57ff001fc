package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context that expires after limit. fn must honor
// its context; there is no watchdog goroutine, so a call that ignores
// cancellation simply runs long. A limit of zero disables the deadline.
func WithTimeout(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	deadlined, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	err := fn(deadlined)
	if err != nil && errors.Is(deadlined.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%s: exceeded %v: %w", name, limit, err)
	}
	return err
}
