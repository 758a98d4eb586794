package cache

import "errors"

// permanentError marks a fetch failure that a stale copy must not paper over,
// such as the underlying record no longer existing.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so GetWithFallback returns it instead of a stale copy
// and drops the stale copy. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// permanentCause returns the error wrapped by Permanent, or nil if err was not wrapped.
func permanentCause(err error) error {
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return nil
}
