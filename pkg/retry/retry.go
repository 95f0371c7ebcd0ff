// Package retry wraps RPC submissions to a ledger with bounded, classified
// retries. Only transient failures are retried; validation and state errors
// surface immediately, and no retry is ever scheduled past the governing
// deadline of the call.
package retry

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/crossmesh/fusion/pkg/ledger"
)

type Classification uint8

const (
	Fatal Classification = iota
	Retriable
)

// Classifier decides whether an error is worth retrying.
type Classifier func(error) Classification

// Classify is the default classifier. Ledger taxonomy errors are authoritative;
// for raw transport errors it falls back to well-known transient signatures.
func Classify(err error) Classification {
	switch {
	case ledger.IsTransient(err):
		return Retriable
	case ledger.IsValidation(err), ledger.IsState(err), ledger.IsDeadline(err):
		return Fatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retriable
	}

	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"429", "502", "503",
		"too many requests",
		"bad gateway",
		"service unavailable",
		"timeout",
		"connection reset",
		"unexpected eof",
		"unexpected end of json",
	} {
		if strings.Contains(msg, transient) {
			return Retriable
		}
	}
	return Fatal
}

// Policy is a reusable retry schedule injected into ledger adapters.
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Classifier defaults to Classify when nil.
	Classifier Classifier

	// Clock defaults to time.Now, overridable in tests.
	Clock func() time.Time
}

// Default mirrors the schedule used against public RPC endpoints: five
// attempts, half a second initial interval, capped at ten seconds, with
// the library's built-in jitter.
func Default() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op under the policy. The deadline is the relevant timelock or
// auction expiry; a zero deadline means unbounded. An attempt that cannot be
// scheduled before the deadline short-circuits into a deadline error so the
// caller diverts to its refund path instead of submitting a doomed call.
func (p Policy) Do(op func() error, deadline time.Time) error {
	classify := p.Classifier
	if classify == nil {
		classify = Classify
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Reset()

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	guard := &deadlineBackOff{
		inner:    backoff.WithMaxRetries(exp, attempts-1),
		deadline: deadline,
		clock:    clock,
	}

	err := backoff.Retry(func() error {
		if !deadline.IsZero() && !clock().Before(deadline) {
			guard.expired = true
			return backoff.Permanent(ledger.Deadlinef("retry", "deadline %v already passed", deadline))
		}
		err := op()
		if err == nil {
			return nil
		}
		if classify(err) == Fatal {
			return backoff.Permanent(err)
		}
		return err
	}, guard)

	if err != nil && guard.expired && !ledger.IsDeadline(err) {
		return ledger.Deadlinef("retry", "aborted before deadline %v: %v", deadline, err)
	}
	return err
}

// deadlineBackOff stops the schedule once the next attempt would land past the
// deadline, recording that the stop was deadline-driven.
type deadlineBackOff struct {
	inner    backoff.BackOff
	deadline time.Time
	clock    func() time.Time
	expired  bool
}

func (d *deadlineBackOff) NextBackOff() time.Duration {
	next := d.inner.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if !d.deadline.IsZero() && d.clock().Add(next).After(d.deadline) {
		d.expired = true
		return backoff.Stop
	}
	return next
}

func (d *deadlineBackOff) Reset() {
	d.inner.Reset()
}
