package crawl

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetryDelays returns the backoff delays for fetch retries: 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// fetchWithRetry runs fetch with backoff retries on error. It makes
// len(delays)+1 attempts, sleeping delays[i] before retry i+1, and returns
// the last error when every attempt fails. Context cancellation aborts
// between attempts.
func fetchWithRetry[T any](ctx context.Context, url string, fetch func(ctx context.Context, url string) (T, error), logger zerolog.Logger, delays []time.Duration) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; ; attempt++ {
		result, err := fetch(ctx, url)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt >= len(delays) {
			break
		}
		logger.Debug().Str("url", url).Int("attempt", attempt+2).Err(err).Msg("retrying fetch")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}
	return zero, lastErr
}
