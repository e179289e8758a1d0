package quiz

import (
	"context"
	"time"
)

// Waiter blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

type WaiterFunc func(ctx context.Context, d time.Duration) error

func (f WaiterFunc) Wait(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerWaiter waits on a real timer.
var TimerWaiter Waiter = WaiterFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})
