// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers for talking to NCBI E-utilities.
package httputil

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryBaseDelay is the first backoff interval. Tests override this to
// avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

const defaultMaxRetries = 3

// MaxRetryAfter caps the delay a server can request through Retry-After.
const MaxRetryAfter = 2 * time.Minute

type retryOptions struct {
	limiter *rate.Limiter
}

// RetryOption configures DoWithRetry.
type RetryOption func(*retryOptions)

// WithLimiter makes every attempt, retries included, wait for l.
func WithLimiter(l *rate.Limiter) RetryOption {
	return func(o *retryOptions) { o.limiter = l }
}

// Retryable reports whether status signals a transient E-utilities
// condition: rate limiting (429) or a busy backend (502, 503).
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// DoWithRetry executes req and retries retryable responses with exponential
// backoff starting at RetryBaseDelay (1s, 2s, 4s, ...). A Retry-After header
// on the response replaces the backoff for that attempt, capped at
// MaxRetryAfter.
//
// maxRetries <= 0 selects the default (3). Between attempts the response
// body is drained and closed. A cancelled context during backoff returns
// ctx.Err(). After the last retry the final response is returned unchanged
// so the caller can report its status. log may be nil.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int, log *zap.Logger, opts ...RetryOption) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if log == nil {
		log = zap.NewNop()
	}
	var o retryOptions
	for _, opt := range opts {
		opt(&o)
	}

	backoff := RetryBaseDelay
	for attempt := 0; ; attempt++ {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if !Retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		delay := backoff
		if d, ok := RetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			delay = d
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		log.Warn("retrying request",
			zap.String("host", req.URL.Host),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("backoff", delay),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		backoff *= 2
	}
}

// RetryAfter parses a Retry-After value, either delay-seconds or an HTTP
// date relative to now. Negative delays become zero and long ones are capped
// at MaxRetryAfter. ok is false for an empty or malformed value.
func RetryAfter(v string, now time.Time) (d time.Duration, ok bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = t.Sub(now)
	} else {
		return 0, false
	}
	return min(max(d, 0), MaxRetryAfter), true
}
