// Package errors provides coded domain errors for the event pipeline.
//
// Fetch and empty-response errors are surfaced to callers; cache errors are
// recovered inside the source and only ever logged:
//
//	events, err := fetcher.GetEvents(ctx)
//	if errors.Is(err, errors.ErrEmptyResponse) {
//	    // the API answered without a body
//	}
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) && domainErr.Status != 0 {
//	    // upstream HTTP status is available
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// Code represents a machine-readable error code.
type Code string

const (
	CodeFetch         Code = "FETCH"
	CodeEmptyResponse Code = "EMPTY_RESPONSE"
	CodeCacheCorrupt  Code = "CACHE_CORRUPT"
	CodeCacheWrite    Code = "CACHE_WRITE"
	CodeValidation    Code = "VALIDATION"
	CodeInternal      Code = "INTERNAL"
)

// HTTPStatus returns the status a local API handler should answer with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeFetch, CodeEmptyResponse:
		return http.StatusBadGateway
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, optional upstream status and
// optional details.
type Error struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"status_text,omitempty"`
	Details    any    `json:"details,omitempty"`
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.cause = err
	return &cp
}

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Sentinel errors for use with errors.Is().
var (
	ErrFetch         = &Error{Code: CodeFetch, Message: "fetch failed"}
	ErrEmptyResponse = &Error{Code: CodeEmptyResponse, Message: "no data received"}
	ErrCacheCorrupt  = &Error{Code: CodeCacheCorrupt, Message: "cache entry corrupt"}
	ErrCacheWrite    = &Error{Code: CodeCacheWrite, Message: "cache write failed"}
	ErrValidation    = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &Error{Code: CodeInternal, Message: "internal error"}
)

// Fetch builds a fetch error. status is 0 when the request never produced a
// response (transport failure, timeout, canceled context).
func Fetch(status int, statusText string, cause error) *Error {
	msg := "API Error"
	if status != 0 {
		msg = fmt.Sprintf("API Error: %d - %s", status, statusText)
	}
	return &Error{
		Code:       CodeFetch,
		Message:    msg,
		Status:     status,
		StatusText: statusText,
		cause:      cause,
	}
}

// EmptyResponse reports a response that carried no usable body.
func EmptyResponse() *Error {
	return &Error{Code: CodeEmptyResponse, Message: "no data received"}
}

// CacheCorrupt wraps a decode failure of a stored cache entry.
func CacheCorrupt(cause error) *Error {
	return ErrCacheCorrupt.WithCause(cause)
}

// CacheWrite wraps a failure to persist a cache entry.
func CacheWrite(cause error) *Error {
	return ErrCacheWrite.WithCause(cause)
}

// ValidationWithDetails creates a validation error with per-field details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Internal wraps an unexpected failure.
func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}
