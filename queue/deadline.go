package queue

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var errCallTimeout = errors.New("driver call timed out")

type callResult[T any] struct {
	v   T
	err error
}

// withDeadline runs f with a timeout and stops waiting for it once the
// timeout passes, whether or not f returns. An abandoned f keeps running
// until it notices its ctx.
func withDeadline[T any](ctx context.Context, timeout time.Duration, f func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ch := make(chan callResult[T], 1)
	go func() {
		v, err := f(ctx)
		ch <- callResult[T]{v, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return r.v, errors.Wrapf(errCallTimeout, "%s: %v", timeout, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrapf(errCallTimeout, "no answer in %s", timeout)
	}
}
