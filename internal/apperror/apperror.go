// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error carrying the HTTP status and human-readable description
// that the router edge must render back to the client, plus an optional
// wrapped cause for the log line's %w-chain.
type Error struct {
	Status int
	Desc   string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Desc, e.Cause.Error())
	}
	return e.Desc
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func new(status int, format string, a ...any) *Error {
	return &Error{Status: status, Desc: fmt.Sprintf(format, a...)}
}

func wrap(status int, cause error, format string, a ...any) *Error {
	return &Error{Status: status, Desc: fmt.Sprintf(format, a...), Cause: cause}
}

// BadRequest builds a 400 error: malformed headers, unknown tenant, bad
// query, or a Slack-unconfigured-but-requested tenant.
func BadRequest(format string, a ...any) *Error {
	return new(http.StatusBadRequest, format, a...)
}

// Unauthorized builds a 401 error: missing/unparseable X-Api-Token, or
// upstream Google token acquisition failure.
func Unauthorized(format string, a ...any) *Error {
	return new(http.StatusUnauthorized, format, a...)
}

// UnauthorizedWrap is Unauthorized with a chained cause.
func UnauthorizedWrap(cause error, format string, a ...any) *Error {
	return wrap(http.StatusUnauthorized, cause, format, a...)
}

// LengthRequired builds a 411 error for a missing or unparseable
// Content-Length header.
func LengthRequired(format string, a ...any) *Error {
	return new(http.StatusLengthRequired, format, a...)
}

// UpstreamError builds a 500 error for a failure in a collaborator this
// service depends on: GCS, Slack, or a response body that could not be
// read or parsed.
func UpstreamError(format string, a ...any) *Error {
	return new(http.StatusInternalServerError, format, a...)
}

// UpstreamErrorWrap is UpstreamError with a chained cause.
func UpstreamErrorWrap(cause error, format string, a ...any) *Error {
	return wrap(http.StatusInternalServerError, cause, format, a...)
}

// InternalError builds a 500 error for an operation that looked infallible
// but failed anyway (response marshaling, encoder setup).
func InternalError(format string, a ...any) *Error {
	return new(http.StatusInternalServerError, format, a...)
}

// InternalErrorWrap is InternalError with a chained cause.
func InternalErrorWrap(cause error, format string, a ...any) *Error {
	return wrap(http.StatusInternalServerError, cause, format, a...)
}

// As normalizes any error into an *Error, wrapping unrecognized errors as
// an InternalError so the HTTP edge never leaks a raw error string.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalErrorWrap(err, "internal error")
}
