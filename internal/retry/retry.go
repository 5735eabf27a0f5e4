// Package retry provides retry-with-exponential-backoff for fallible UI
// automation operations, with a closed error-kind classification of
// transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies an automation failure at its point of origin.
type ErrorKind int

const (
	// KindUnknown is an unclassified error. Not retryable.
	KindUnknown ErrorKind = iota
	// KindTimeout is a driver round-trip that exceeded its deadline.
	KindTimeout
	// KindElementNotReady covers elements that are not yet attached,
	// visible, enabled, or stable.
	KindElementNotReady
	// KindNavigation covers interrupted or aborted surface navigation.
	KindNavigation
	// KindConnection covers dropped DevTools connections and destroyed
	// execution contexts.
	KindConnection
	// KindFatal is an error that must never be retried.
	KindFatal
)

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindElementNotReady:
		return "element-not-ready"
	case KindNavigation:
		return "navigation"
	case KindConnection:
		return "connection"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this kind is worth retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindElementNotReady, KindNavigation, KindConnection:
		return true
	default:
		return false
	}
}

// ClassifiedError tags an error with an explicit kind. Drivers attach kinds at
// the point of origin so the executor never needs to inspect message text.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

// Classify wraps err with the given kind. Returns nil if err is nil.
func Classify(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// transientPatterns maps message substrings to kinds. This is a fallback
// adapter for errors crossing the boundary from the automation library
// without an explicit classification; tagged errors always win.
var transientPatterns = map[string]ErrorKind{
	"timeout":                  KindTimeout,
	"deadline exceeded":        KindTimeout,
	"not attached":             KindElementNotReady,
	"not visible":              KindElementNotReady,
	"not enabled":              KindElementNotReady,
	"not stable":               KindElementNotReady,
	"node not found":           KindElementNotReady,
	"navigation interrupted":   KindNavigation,
	"net::err_aborted":         KindNavigation,
	"connection closed":        KindConnection,
	"websocket":                KindConnection,
	"context was destroyed":    KindConnection,
	"execution context":        KindConnection,
	"target closed":            KindConnection,
}

// KindOf returns the classification for err: the explicit tag when present,
// context.DeadlineExceeded as a timeout, otherwise the message-pattern
// fallback.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	for pattern, kind := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return kind
		}
	}
	return KindUnknown
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// Config holds retry behaviour. It is a pure value: constructed once and
// never mutated.
type Config struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// DefaultConfig returns the retry configuration used for UI automation steps.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
	}
}

// Logger receives retry attempt observations.
type Logger interface {
	LogWarn(message string)
}

// Do invokes op up to cfg.MaxAttempts times, sleeping with exponential backoff
// between retryable failures. On success it returns immediately. Non-retryable
// errors propagate on first occurrence; when attempts exhaust, the last error
// is returned unwrapped.
func Do(ctx context.Context, cfg Config, log Logger, desc string, op func() error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) || attempt == maxAttempts {
			return lastErr
		}

		if log != nil {
			log.LogWarn(fmt.Sprintf("%s failed (attempt %d/%d, retrying in %s): %v",
				desc, attempt, maxAttempts, delay, lastErr))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = nextDelay(delay, cfg)
	}

	return lastErr
}

// nextDelay grows the backoff delay by the configured multiplier, capped at
// MaxDelay when one is set.
func nextDelay(delay time.Duration, cfg Config) time.Duration {
	next := time.Duration(float64(delay) * cfg.BackoffMultiplier)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}
