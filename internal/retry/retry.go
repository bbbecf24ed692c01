package retry

import (
	"context"
	"errors"
	"time"

	"golang.org/x/xerrors"
)

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

// Permanent marks err as not worth retrying. Do returns the wrapped error
// as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the strategy is
// exhausted, or ctx is done.
func Do(ctx context.Context, strategy Strategy, fn func(ctx context.Context) error) error {
	if strategy == nil {
		strategy = NewNever()
	}

	for n := uint(0); ; n++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}

		sleep, exceeded := strategy.Sleep(n)
		if exceeded {
			return xerrors.Errorf("gave up after %d attempts: %w", n+1, err)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
