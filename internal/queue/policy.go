// SPDX-License-Identifier: MIT

package queue

import (
	"errors"
	"time"
)

// Policy bounds retries and shapes the delay between attempts.
type Policy struct {
	// MaxRetries is the retry ceiling; reaching it fails the operation permanently.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter spreads each delay by +/- this fraction.
	Jitter float64
}

// DefaultPolicy returns 5 retries starting at 2s, capped at 5m, with 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  2 * time.Second,
		MaxDelay:   5 * time.Minute,
		Jitter:     0.1,
	}
}

func (p Policy) validate() error {
	var errs []error
	if p.MaxRetries < 1 {
		errs = append(errs, errors.New("max retries must be at least 1"))
	}
	if p.BaseDelay <= 0 {
		errs = append(errs, errors.New("base delay must be positive"))
	}
	if p.MaxDelay < p.BaseDelay {
		errs = append(errs, errors.New("max delay must not be below base delay"))
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		errs = append(errs, errors.New("jitter must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

// Delay is BaseDelay * 2^retryCount capped at MaxDelay, spread by jitter.
// rnd must return a value in [0, 1).
func (p Policy) Delay(retryCount int, rnd func() float64) time.Duration {
	d := p.BaseDelay
	for i := 0; i < retryCount && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && rnd != nil {
		spread := (rnd()*2 - 1) * p.Jitter
		d = time.Duration(float64(d) * (1 + spread))
	}
	return d
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue fails the operation without further retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
