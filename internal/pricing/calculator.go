package pricing

import (
	"context"
	"errors"
	"time"
)

// ErrCancelled is returned when the caller withdrew the request before a
// result settled. It is a caller-driven outcome, not a failure worth
// escalating in logs.
var ErrCancelled = errors.New("calculation cancelled")

// ErrTimeout is returned when the configured deadline elapsed before a
// result settled.
var ErrTimeout = errors.New("calculation timed out")

// Options configures a Calculator. A zero MinorUnit selects
// DefaultMinorUnit. A Timeout of zero or less means no deadline, mirroring
// http.Client.Timeout; callers wanting an immediate deadline should cancel
// the context themselves.
type Options struct {
	MinorUnit MinorUnit
	Timeout   time.Duration
}

// Calculator adapts Total for asynchronous callers needing cancellation or a
// deadline. Cancellation and timeout only decide whether the result is
// delivered: the pure computation is never interrupted mid-sum, it is
// bounded and performs no blocking work.
type Calculator struct {
	Opts Options

	// Compute overrides the total function. Tests use it to simulate slow
	// computations; it defaults to Total.
	Compute func(items []LineItem, scale MinorUnit) (TotalResult, error)
}

type outcome struct {
	res TotalResult
	err error
}

// Total races the pure computation against the context's cancellation
// signal and the configured timeout. The first settled outcome wins; a
// result that was already produced is preferred over a late signal. The
// deadline timer is released on every exit path.
func (c *Calculator) Total(ctx context.Context, items []LineItem) (TotalResult, error) {
	if err := ctx.Err(); err != nil {
		return TotalResult{}, signalErr(err)
	}
	scale := c.Opts.MinorUnit
	if scale == 0 {
		scale = DefaultMinorUnit
	}
	if !scale.Valid() {
		return TotalResult{}, badScaleErr()
	}
	compute := c.Compute
	if compute == nil {
		compute = Total
	}
	if c.Opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Opts.Timeout)
		defer cancel()
	}

	// Buffered so the compute goroutine can always deliver and exit, even
	// when the caller has already gone away.
	done := make(chan outcome, 1)
	go func() {
		res, err := compute(items, scale)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		select {
		case out := <-done:
			return out.res, out.err
		default:
		}
		return TotalResult{}, signalErr(ctx.Err())
	}
}

// signalErr maps context termination onto the calculator's error taxonomy.
func signalErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return err
	}
}
