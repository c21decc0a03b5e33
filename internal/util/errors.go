package util

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUnauthorized      ErrorKind = "Unauthorized"
	KindForbidden         ErrorKind = "Forbidden"
	KindNotFound          ErrorKind = "NotFound"
	KindNotYetOpen        ErrorKind = "NotYetOpen"
	KindClosed            ErrorKind = "Closed"
	KindAttemptsExhausted ErrorKind = "AttemptsExhausted"
	KindNoQuestions       ErrorKind = "NoQuestions"
	KindValidation        ErrorKind = "ValidationError"
	KindAttemptClosed     ErrorKind = "AttemptClosed"
	KindPersistence       ErrorKind = "PersistenceError"
)

// AppError 业务错误，Kind 决定 HTTP 状态码，Message 可直接展示给调用方
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按 Kind 匹配，errors.Is(err, util.ErrNotFound) 对任意 NotFound 成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Persistence 包装存储层错误，对外只暴露通用信息
func Persistence(err error) *AppError {
	return &AppError{Kind: KindPersistence, Message: "internal storage failure", Err: err}
}

// KindOf 非 AppError 视为 PersistenceError
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindPersistence
}

var (
	ErrUnauthorized      = &AppError{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden         = &AppError{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound          = &AppError{Kind: KindNotFound, Message: "not found"}
	ErrNotYetOpen        = &AppError{Kind: KindNotYetOpen, Message: "not yet open"}
	ErrClosed            = &AppError{Kind: KindClosed, Message: "closed"}
	ErrAttemptsExhausted = &AppError{Kind: KindAttemptsExhausted, Message: "attempts exhausted"}
	ErrNoQuestions       = &AppError{Kind: KindNoQuestions, Message: "no questions"}
	ErrValidation        = &AppError{Kind: KindValidation, Message: "validation error"}
	ErrAttemptClosed     = &AppError{Kind: KindAttemptClosed, Message: "attempt closed"}
	ErrPersistence       = &AppError{Kind: KindPersistence, Message: "internal storage failure"}

	ErrInvalidCredentials = NewError(KindUnauthorized, "invalid email or password")
	ErrEmailRegistered    = NewError(KindValidation, "email already registered")
)
