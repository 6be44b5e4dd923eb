package permanent

import "errors"

// ReasonInvalid is used by Mark when no specific reason is given.
const ReasonInvalid = "invalid"

// Error marks a delivery failure that retrying cannot fix.
// Params: short machine-readable reason and wrapped cause.
// Returns: typed permanent error marker.
type Error struct {
	Reason string
	Err    error
}

// Error returns wrapped error message.
func (e *Error) Error() string {
	if e.Err == nil {
		return "permanent error: " + e.Reason
	}
	return e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Mark wraps err as non-retryable with ReasonInvalid.
// Params: source error.
// Returns: wrapped error or nil.
func Mark(err error) error {
	return Reject(ReasonInvalid, err)
}

// Reject wraps err as non-retryable with a reason such as "http_status" or "unregistered".
// Params: reason label and source error.
// Returns: wrapped error or nil.
func Reject(reason string, err error) error {
	if err == nil {
		return nil
	}
	if reason == "" {
		reason = ReasonInvalid
	}
	return &Error{Reason: reason, Err: err}
}

// Is reports whether err carries a permanent marker.
func Is(err error) bool {
	var marked *Error
	return errors.As(err, &marked)
}

// ReasonOf returns the outermost permanent reason, or "" for retryable errors.
func ReasonOf(err error) string {
	var marked *Error
	if !errors.As(err, &marked) {
		return ""
	}
	return marked.Reason
}
