package pipeline

import (
	"context"
	"time"
)

// RetryPolicy retries an operation with exponential backoff. The delay
// doubles from Base up to Cap; after MaxTries attempts the last error is
// returned.
type RetryPolicy struct {
	Base     time.Duration
	Cap      time.Duration
	MaxTries int
}

// DefaultRetry matches the settings used for source and database I/O.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{Base: 500 * time.Millisecond, Cap: 30 * time.Second, MaxTries: 10}
}

// Do runs op until it succeeds, the attempts run out, or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	delay := p.Base
	var err error
	for try := 0; try < p.MaxTries; try++ {
		if err = op(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.Cap {
			delay = p.Cap
		}
	}
	return err
}
