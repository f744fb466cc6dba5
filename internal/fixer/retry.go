package fixer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retrying wraps a delegate with a per-attempt timeout and exponential backoff.
type retrying struct {
	inner      Delegate
	maxRetries int
	timeout    time.Duration
	newBackOff func() backoff.BackOff
}

func withRetry(d Delegate, maxRetries int, timeout time.Duration) *retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retrying{
		inner:      d,
		maxRetries: maxRetries,
		timeout:    timeout,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxInterval = 5 * time.Second
			bo.MaxElapsedTime = 0
			return bo
		},
	}
}

func (r *retrying) Name() string { return r.inner.Name() }

func (r *retrying) Complete(ctx context.Context, req Request) (string, error) {
	var out string
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		text, err := r.inner.Complete(callCtx, req)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrEmptyResponse) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = text
		return nil
	}

	bo := backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxRetries))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return out, nil
}
