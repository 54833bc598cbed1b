package extract

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Queue runs tasks one at a time with a minimum gap between them, so a
// batch of images doesn't arrive upstream as a burst.
type Queue struct {
	clock clockwork.Clock
	delay time.Duration
}

func NewQueue(clock clockwork.Clock, delay time.Duration) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{clock: clock, delay: delay}
}

// Run calls task for 0..n-1 in order.  The first error stops the queue
// and is returned as is.
func (q *Queue) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	for i := range n {
		if i > 0 && q.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.clock.After(q.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task(ctx, i); err != nil {
			return err
		}
	}
	return nil
}
