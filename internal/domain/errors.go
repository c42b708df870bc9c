package domain

import (
	"errors"
)

// ErrorKind classifies failures for the transport layer.
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation_error"
	KindDuplicateAccount     ErrorKind = "duplicate_account"
	KindInvalidCredentials   ErrorKind = "invalid_credentials"
	KindEmailNotVerified     ErrorKind = "email_not_verified"
	KindInvalidTwoFactorCode ErrorKind = "invalid_two_factor_code"
	KindInvalidToken         ErrorKind = "invalid_token"
	KindConcurrencyConflict  ErrorKind = "concurrency_conflict"
	KindDependency           ErrorKind = "dependency_error"
	KindNotFound             ErrorKind = "not_found"
)

// Error is the single error type returned by the lifecycle. Two errors match
// under errors.Is when their kinds are equal.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrencyConflict || e.Kind == KindDependency
}

var (
	ErrValidation           = &Error{Kind: KindValidation, Detail: "invalid request"}
	ErrDuplicateAccount     = &Error{Kind: KindDuplicateAccount, Detail: "email already registered"}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials, Detail: "invalid email or password"}
	ErrEmailNotVerified     = &Error{Kind: KindEmailNotVerified, Detail: "please verify your email first"}
	ErrInvalidTwoFactorCode = &Error{Kind: KindInvalidTwoFactorCode, Detail: "invalid two-factor code"}
	ErrInvalidToken         = &Error{Kind: KindInvalidToken, Detail: "invalid or expired token"}
	ErrConcurrencyConflict  = &Error{Kind: KindConcurrencyConflict, Detail: "account was modified concurrently"}
	ErrDependency           = &Error{Kind: KindDependency, Detail: "dependency unavailable"}
	ErrAccountNotFound      = &Error{Kind: KindNotFound, Detail: "account not found"}
)

// NewError builds an error of kind with a specific detail.
func NewError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// DependencyError wraps a storage or transport failure.
func DependencyError(detail string, err error) *Error {
	return &Error{Kind: KindDependency, Detail: detail, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
