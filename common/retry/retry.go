package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"
)

/*
	Retry utils with following feature:
	- exponential backoff
	- jitter
	- max attempts
	- max timeout

	Retries up to either MaxAttempts or till Timeout, context cancellation, or RetryOn returns false. The time
	interval between the i-th and (i+1)-th attempt is `min( BaseDelay * ( Exp ^ i + rand(0, Jitter) ), MaxBackoff )`
*/

// Fn is the function to retry
type Fn func() error

// RetryOnFn decides whether to retry on given error
type RetryOnFn func(error) bool

type RetryConfig struct {
	MaxAttempts int64         // total number of calls to Fn, including the first one
	MaxBackoff  time.Duration // maximum wait time before next attempt
	Timeout     time.Duration // zero value means no timeout
	Jitter      float64
	BaseDelay   time.Duration
	Exp         float64
	RetryOn     RetryOnFn
}

type RetryOption func(*RetryConfig)

func defaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: math.MaxInt64,
		MaxBackoff:  time.Duration(math.MaxInt64),
		Exp:         1,
		RetryOn:     func(error) bool { return false },
	}
}

func WithMaxAttempts(a int64) RetryOption {
	return func(c *RetryConfig) {
		c.MaxAttempts = a
	}
}

func WithTimeout(t time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Timeout = t
	}
}

func WithJitter(j float64) RetryOption {
	return func(c *RetryConfig) {
		c.Jitter = j
	}
}

func WithBaseDelay(t time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.BaseDelay = t
	}
}

func WithExp(e float64) RetryOption {
	return func(c *RetryConfig) {
		c.Exp = e
	}
}

func WithRetryOn(f RetryOnFn) RetryOption {
	return func(c *RetryConfig) {
		c.RetryOn = f
	}
}

func WithMaxBackoff(b time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.MaxBackoff = b
	}
}

// Retry calls f until it succeeds or the retry budget runs out, and returns the last error f returned.
// ErrRetryTimedOut is returned instead when the timeout fires or ctx is done while waiting.
func Retry(ctx context.Context, f Fn, opts ...RetryOption) error {
	cfg := defaultRetryConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	// fire f first in case it doesn't need retry at all
	err := f()
	if err == nil || !cfg.RetryOn(err) {
		return err
	}
	// receive from nil chan always block, representing no timeout
	var timeout <-chan time.Time
	if cfg.Timeout != 0 {
		// note that a timer fires immediately if created with a non-positive duration
		t := time.NewTimer(cfg.Timeout)
		defer t.Stop()
		timeout = t.C
	}
	var i int64
	for i = 1; i < cfg.MaxAttempts; i++ {
		factor := math.Pow(cfg.Exp, float64(i-1))
		if cfg.Jitter > 0 {
			factor += rand.Float64() * cfg.Jitter
		}
		// cap the delay to the max of time.Duration, which is ~290 years
		delay := time.Duration(math.Min(float64(cfg.BaseDelay.Nanoseconds())*factor, math.MaxInt64))
		if delay > cfg.MaxBackoff {
			delay = cfg.MaxBackoff
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
			err = f()
			if err == nil || !cfg.RetryOn(err) {
				return err
			}
		case <-timeout:
			t.Stop()
			return ErrRetryTimedOut
		case <-ctx.Done():
			t.Stop()
			return ErrRetryTimedOut
		}
	}
	return err
}

// IsDepOffline tells whether e is caused by a dependency not accepting connections yet
func IsDepOffline(e error) bool {
	return e != nil && strings.Contains(e.Error(), "connect: connection refused")
}

type errRetry string

func (e errRetry) Error() string {
	return string(e)
}

const ErrRetryTimedOut errRetry = "retry timed out"
