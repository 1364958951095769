package fsm

import "errors"

// retryableError marks an error as transient. Only marked errors are
// retried during a transition; everything else is a business error and
// fails fast.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// MarkRetryable wraps err so the transition retry loop will retry it.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err (or anything it wraps) was marked
// retryable.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
