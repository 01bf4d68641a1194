/*
Package errs provides custom error types and application-level error code constants.

This file defines CustomError, which carries a business code, a user-facing message,
an HTTP status for the relay, and optionally the underlying cause.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"globalchat/internal/pkg/logx"
)

// CustomError is the error type used throughout the module.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the error description. For backend failures it is the backend's message.
	Message string

	// Status is the HTTP status code used when the error crosses the relay.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *CustomError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a CustomError with the same code.
// It lets callers write errors.Is(err, errs.NewError(errs.ErrNotFound)).
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	return ok && t.Code == e.Code
}

// NewError builds a *CustomError from a predefined code. details are printf arguments
// for templates containing a verb. Unknown codes fall back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if strings.Contains(customErr.Message, "%") {
		if len(details) > 0 {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			customErr.Message = strings.ReplaceAll(customErr.Message, "%s ", "")
		}
	} else if len(details) > 0 {
		logx.Warn(
			"Details provided for error, but message template has no formatting placeholders. Details ignored.",
			"code", code,
		)
	}

	return &customErr
}

// Wrap builds a *CustomError for code whose message is the cause's message.
// Wrapping a nil error returns nil.
func Wrap(code int, err error) *CustomError {
	if err == nil {
		return nil
	}

	customErr := NewError(code)

	msg := err.Error()
	var inner *CustomError
	if errors.As(err, &inner) {
		msg = inner.Message
	}
	if msg != "" {
		customErr.Message = msg
	}
	customErr.Err = err

	return customErr
}

// Is reports whether any error in err's chain is a CustomError with code.
func Is(err error, code int) bool {
	return errors.Is(err, &CustomError{Code: code})
}

// CodeOf returns the code of the first CustomError in err's chain, or ErrUnknown.
func CodeOf(err error) int {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code
	}
	return ErrUnknown
}
