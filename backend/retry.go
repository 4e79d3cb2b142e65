package backend

import (
	"context"
	"log/slog"
	"time"
)

// CallWithRetries invokes b up to maxAttempts times, retrying only transient
// errors with exponential backoff (baseBackoff * 2^(attempt-1) before each
// retry, never after the last attempt). A fatal error aborts on the attempt
// it occurs. Returns the response text, the model used, and the number of
// attempts consumed; after exhaustion the last error is returned.
func CallWithRetries(ctx context.Context, b Backend, instructions, message string, maxAttempts int, baseBackoff time.Duration) (string, string, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, model, err := b.Chat(ctx, instructions, message)
		if err == nil {
			return text, model, attempt, nil
		}

		lastErr = err

		if IsFatal(err) {
			return "", "", attempt, err
		}

		if attempt < maxAttempts {
			backoff := baseBackoff << (attempt - 1)
			slog.Debug("Backend call failed, retrying",
				"backend", b.Name(),
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return "", "", attempt, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", "", maxAttempts, lastErr
}
