package ledger

import (
	"errors"
	"fmt"
)

// Kind partitions ledger failures for the retry layer. Validation and state
// errors are fatal and never retried, transient errors are retried with
// backoff, deadline errors redirect control flow to the refund path.
type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindState
	KindTransient
	KindDeadline
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindTransient:
		return "transient"
	case KindDeadline:
		return "deadline"
	default:
		return "unknown"
	}
}

// Error wraps a failure with its classification and the operation it came from.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validationf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func Statef(op, format string, args ...interface{}) error {
	return &Error{Kind: KindState, Op: op, Err: fmt.Errorf(format, args...)}
}

func Transientf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf(format, args...)}
}

func Deadlinef(op, format string, args ...interface{}) error {
	return &Error{Kind: KindDeadline, Op: op, Err: fmt.Errorf(format, args...)}
}

func kindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return 0
}

func IsValidation(err error) bool { return kindOf(err) == KindValidation }
func IsState(err error) bool      { return kindOf(err) == KindState }
func IsTransient(err error) bool  { return kindOf(err) == KindTransient }
func IsDeadline(err error) bool   { return kindOf(err) == KindDeadline }

var (
	ErrLockNotFound = errors.New("lock not found")

	ErrLockExists         = errors.New("lock id already used")
	ErrZeroAmount         = errors.New("amount must be greater than zero")
	ErrTimelockNotFuture  = errors.New("timelock must be in the future")
	ErrHashlockMismatch   = errors.New("secret does not match hashlock")
	ErrAlreadySettled     = errors.New("lock already withdrawn or refunded")
	ErrTimelockExpired    = errors.New("timelock has expired")
	ErrTimelockNotExpired = errors.New("timelock has not expired")
	ErrBadSequence        = errors.New("out of order sequence number")
)
