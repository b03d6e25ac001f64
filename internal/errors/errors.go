// Package errors defines the coded errors shared by the convention store, the
// rename pipeline and the HTTP API.
//
// Callers match on the code, never on the message:
//
//	if errors.Is(err, errors.ErrRenameConflict) {
//	    // leave the file where it is
//	}
//
// The API layer turns the code into a status with HTTPStatus.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Is and As are re-exported so callers need only this package.
var (
	Is = errors.Is
	As = errors.As
)

// Code is the machine readable kind of an Error.
type Code string

const (
	CodePathInvalid      Code = "PATH_INVALID"
	CodeRenameConflict   Code = "RENAME_CONFLICT"
	CodeRenameFailed     Code = "RENAME_FAILED"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeScanFailed       Code = "SCAN_FAILED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
	CodeValidation       Code = "VALIDATION"
	CodeInternal         Code = "INTERNAL"
)

var statusByCode = map[Code]int{
	CodePathInvalid:      http.StatusBadRequest,
	CodeValidation:       http.StatusBadRequest,
	CodeNotFound:         http.StatusNotFound,
	CodeAlreadyExists:    http.StatusConflict,
	CodeRenameConflict:   http.StatusConflict,
	CodeStoreUnavailable: http.StatusServiceUnavailable,
}

// HTTPStatus maps the code to a response status. Unlisted codes are 500.
func (c Code) HTTPStatus() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error carries a Code, a human message and optional structured details.
// Two Errors match under Is when their codes are equal.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// Sentinels for Is.
var (
	ErrPathInvalid      = &Error{Code: CodePathInvalid, Message: "path invalid"}
	ErrRenameConflict   = &Error{Code: CodeRenameConflict, Message: "rename target already exists"}
	ErrRenameFailed     = &Error{Code: CodeRenameFailed, Message: "rename failed"}
	ErrStoreUnavailable = &Error{Code: CodeStoreUnavailable, Message: "convention store unavailable"}
	ErrScanFailed       = &Error{Code: CodeScanFailed, Message: "directory scan failed"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists    = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation       = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}
)

func newf(code Code, format string, args []any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func PathInvalidf(format string, args ...any) *Error {
	return newf(CodePathInvalid, format, args)
}

func RenameConflictf(format string, args ...any) *Error {
	return newf(CodeRenameConflict, format, args)
}

func NotFoundf(format string, args ...any) *Error {
	return newf(CodeNotFound, format, args)
}

func AlreadyExistsf(format string, args ...any) *Error {
	return newf(CodeAlreadyExists, format, args)
}

func Validationf(format string, args ...any) *Error {
	return newf(CodeValidation, format, args)
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails attaches a field to message map, as produced by the
// validation package.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

func StoreUnavailable(msg string) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: msg}
}

// Wrap records err as the cause so Is and As still see it.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

func Wrapf(err error, code Code, format string, args ...any) *Error {
	e := newf(code, format, args)
	e.cause = err
	return e
}
