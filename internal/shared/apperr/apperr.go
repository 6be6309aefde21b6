package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别，调用方根据类别决定重试/修正/刷新策略
type Kind int

const (
	// KindValidation 输入缺失或非法，修正后可重试，状态未变更
	KindValidation Kind = iota
	// KindAuthorization 角色或指派校验失败，状态未变更
	KindAuthorization
	// KindConflict 状态机前置条件不满足（跳步/重复），调用方应刷新后重试
	KindConflict
	// KindQuotaExceeded 超出供应商配额，未创建记录
	KindQuotaExceeded
	// KindNotFound 引用的记录不存在
	KindNotFound
)

// Error 带类别的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func QuotaExceeded(format string, args ...interface{}) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf 提取错误类别；非业务错误返回 false
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
