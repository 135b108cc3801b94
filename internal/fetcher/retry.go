package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/bookharvest/internal/types"
)

// RetryPolicy reports whether a failed attempt should be tried again.
type RetryPolicy func(err error) bool

// ListingPolicy retries timeouts only. Any other failure skips the page.
func ListingPolicy(err error) bool {
	return types.IsTimeout(err)
}

// DetailPolicy retries any fetch failure and any missing page structure.
func DetailPolicy(err error) bool {
	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) {
		return true
	}
	return errors.Is(err, types.ErrStructureMissing)
}

// ResponseHandler consumes a fetched response. An error returned here is
// treated like a fetch error and judged by the RetryPolicy.
type ResponseHandler func(resp *types.Response) error

// Retrier runs fetch+handle with a fixed attempt budget and no backoff.
type Retrier struct {
	fetcher     Fetcher
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
}

// NewRetrier wraps f. maxAttempts below 1 is treated as 1.
func NewRetrier(f Fetcher, maxAttempts int, delay time.Duration, logger *slog.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{
		fetcher:     f,
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      logger.With("component", "retrier"),
	}
}

// MaxAttempts returns the attempt budget per request.
func (r *Retrier) MaxAttempts() int { return r.maxAttempts }

// Do fetches req and passes the response to handle until handle succeeds,
// policy rejects the error, or the attempt budget runs out. It returns the
// number of attempts made. Exhaustion wraps types.ErrMaxRetries and the last
// error.
func (r *Retrier) Do(ctx context.Context, req *types.Request, policy RetryPolicy, handle ResponseHandler) (int, error) {
	logger := r.logger.With("url", req.URLString(), "tag", req.Tag)

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := r.attempt(ctx, req, handle)
		if err == nil {
			if attempt > 1 {
				logger.Debug("succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}
		if !policy(err) {
			return attempt, err
		}

		lastErr = err
		logger.Warn("attempt failed",
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"error", err,
		)

		if attempt < r.maxAttempts {
			if err := r.wait(ctx, err); err != nil {
				return attempt, err
			}
		}
	}

	return r.maxAttempts, fmt.Errorf("%w (%d attempts): %w", types.ErrMaxRetries, r.maxAttempts, lastErr)
}

func (r *Retrier) attempt(ctx context.Context, req *types.Request, handle ResponseHandler) error {
	resp, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	return handle(resp)
}

// wait sleeps for the configured delay, or for Retry-After on HTTP 429.
func (r *Retrier) wait(ctx context.Context, err error) error {
	delay := r.delay
	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) && fetchErr.RetryAfter > delay {
		delay = fetchErr.RetryAfter
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
