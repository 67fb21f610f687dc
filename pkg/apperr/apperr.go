// Package apperr 定义跨层共享的错误类别，具体错误通过 %w 包装类别，
// 调用方用 errors.Is 同时区分具体错误和类别。
package apperr

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrState      = errors.New("invalid state")
	ErrForbidden  = errors.New("forbidden")
)

// ValidationError 记录具体出错的字段，便于 API 层返回给客户端。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap 使 errors.Is(err, ErrValidation) 成立。
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid 构造一个字段校验错误。
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// multiKind 让一个错误同时属于多个类别。
type multiKind struct {
	msg   string
	kinds []error
}

func (e *multiKind) Error() string   { return e.msg }
func (e *multiKind) Unwrap() []error { return e.kinds }

// NewKinded 创建一个归属于给定类别的哨兵错误。
func NewKinded(msg string, kinds ...error) error {
	return &multiKind{msg: msg, kinds: kinds}
}
