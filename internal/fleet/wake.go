package fleet

import (
	"context"
	"time"
)

// Wake polling parameters. The interval doubles up to the cap; once
// the budget is spent the caller proceeds anyway, since a car that is
// nearly awake will often accept the command regardless.
var (
	wakeInitialInterval = 1 * time.Second
	wakeMaxInterval     = 8 * time.Second
	wakeBudget          = 45 * time.Second
)

// Waker is the subset of Client that WaitOnline needs.
type Waker interface {
	Wake(ctx context.Context, vehicleID string) (Vehicle, error)
}

// WaitOnline polls the vehicle until it reports online or the budget
// runs out. Exhausting the budget is not an error; only context
// cancellation fails the wait.
func WaitOnline(ctx context.Context, w Waker, vehicleID string) error {
	deadline := time.Now().Add(wakeBudget)
	interval := wakeInitialInterval

	for {
		v, err := w.Wake(ctx, vehicleID)
		if err == nil && v.IsOnline() {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if interval *= 2; interval > wakeMaxInterval {
			interval = wakeMaxInterval
		}
	}
}
