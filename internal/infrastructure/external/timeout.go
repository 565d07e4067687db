package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"greencoin-backend/internal/infrastructure/metrics"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeTimeout  = "timeout"
)

// guard runs op with a deadline. A deadline or cancellation is reported as ErrTimeout,
// any other failure as ErrRejected (when the adapter did not already classify it).
func guard[T any](ctx context.Context, timeout time.Duration, adapter, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err == nil:
			metrics.RecordAdapterCall(adapter, op, outcomeOK, time.Since(start))
			return r.v, nil
		case IsTimeout(r.err) || errors.Is(r.err, context.Canceled):
			metrics.RecordAdapterCall(adapter, op, outcomeTimeout, time.Since(start))
			return zero, fmt.Errorf("%s %s: %w: %v", adapter, op, ErrTimeout, r.err)
		case errors.Is(r.err, ErrRejected):
			metrics.RecordAdapterCall(adapter, op, outcomeRejected, time.Since(start))
			return zero, fmt.Errorf("%s %s: %w", adapter, op, r.err)
		default:
			metrics.RecordAdapterCall(adapter, op, outcomeRejected, time.Since(start))
			return zero, fmt.Errorf("%s %s: %w: %v", adapter, op, ErrRejected, r.err)
		}
	case <-ctx.Done():
		metrics.RecordAdapterCall(adapter, op, outcomeTimeout, time.Since(start))
		return zero, fmt.Errorf("%s %s: %w: %v", adapter, op, ErrTimeout, ctx.Err())
	}
}

// TimedStore bounds every Store call.
type TimedStore struct {
	Inner   ContentStore
	Timeout time.Duration
}

func (s *TimedStore) Store(ctx context.Context, payload []byte) (string, error) {
	return guard(ctx, s.Timeout, "content_store", "store", func(ctx context.Context) (string, error) {
		return s.Inner.Store(ctx, payload)
	})
}

// TimedChain bounds every chain call.
type TimedChain struct {
	Inner   Chain
	Timeout time.Duration
}

func (c *TimedChain) Mint(ctx context.Context, req MintRequest) (string, error) {
	return guard(ctx, c.Timeout, "chain", "mint", func(ctx context.Context) (string, error) {
		return c.Inner.Mint(ctx, req)
	})
}

func (c *TimedChain) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	return guard(ctx, c.Timeout, "chain", "transfer", func(ctx context.Context) (string, error) {
		return c.Inner.Transfer(ctx, req)
	})
}

type lookupResult struct {
	txID  string
	found bool
}

func (c *TimedChain) Lookup(ctx context.Context, reference string) (string, bool, error) {
	r, err := guard(ctx, c.Timeout, "chain", "lookup", func(ctx context.Context) (lookupResult, error) {
		txID, found, err := c.Inner.Lookup(ctx, reference)
		return lookupResult{txID: txID, found: found}, err
	})
	return r.txID, r.found, err
}
