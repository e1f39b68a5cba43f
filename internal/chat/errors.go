package chat

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrorAuthRequired    ErrorCode = "AUTH_REQUIRED"
	ErrorNotFound        ErrorCode = "NOT_FOUND"
	ErrorStore           ErrorCode = "STORE_ERROR"
	ErrorUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrorUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
)

// ErrTitleGeneration marks a failed title call. It never reaches callers of
// Service.Chat; the fallback subject is used instead.
var ErrTitleGeneration = errors.New("chat: title generation failed")

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("chat: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("chat: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
