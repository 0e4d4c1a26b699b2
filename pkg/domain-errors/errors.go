// Package domainerrors provides coded errors for expected business failures.
// Services translate storage sentinels into these before results cross a
// port boundary; callers branch on codes, never on error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an expected failure.
type Code string

const (
	// CodeValidation marks malformed or rule-breaking input caught before I/O.
	CodeValidation Code = "validation"
	// CodeInvalidInput marks trust-boundary parse failures (IDs, enums).
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks lookups whose id has no corresponding row.
	CodeNotFound Code = "not_found"
	// CodeConflict marks uniqueness clashes and optimistic-concurrency
	// version mismatches.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks aggregate state transitions that the
	// domain model forbids.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeOwnershipViolation marks a write attempted against a table the
	// calling service does not own.
	CodeOwnershipViolation Code = "ownership_violation"
	// CodeTransactionAborted marks a transactional callback that failed and
	// rolled back.
	CodeTransactionAborted Code = "transaction_aborted"
	// CodeUnauthorized marks failed authentication or an inactive account.
	CodeUnauthorized Code = "unauthorized"
	// CodeInternal wraps unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	code  Code
	msg   string
	cause error
}

func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(cause error, code Code, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{code: code, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

// Message returns the human-readable portion without code or cause.
func (e *Error) Message() string { return e.msg }

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	for errors.As(err, &domainErr) {
		if domainErr.code == code {
			return true
		}
		err = domainErr.cause
		domainErr = nil
	}
	return false
}

// CodeOf returns the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.code
	}
	return CodeInternal
}
