package llm

import (
	"context"
	"strings"
	"time"
)

// retrier holds shared retry configuration for LLM clients, mirroring the
// linear-backoff retry loop every provider in this package wraps its calls
// in. Unlike the streaming providers this evolved from, Complete here
// returns a single Response rather than a chunk channel, so retry can wrap
// the whole call instead of just stream setup.
type retrier struct {
	maxRetries int
	retryDelay time.Duration
}

func newRetrier(maxRetries int, retryDelay time.Duration) retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return retrier{maxRetries: maxRetries, retryDelay: retryDelay}
}

// Do executes op, retrying with linear backoff while isRetryableError(err)
// holds, up to maxRetries attempts.
func (r retrier) Do(ctx context.Context, op func() (Response, error)) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		resp, err := op()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return Response{}, err
		}
		if attempt >= r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(r.retryDelay * time.Duration(attempt)):
		}
	}
	return Response{}, lastErr
}

// isRetryableError classifies transient failures (rate limits, 5xx, timeouts,
// connection resets) as worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"):
		return true
	case strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"):
		return true
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return true
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"):
		return true
	default:
		return false
	}
}
