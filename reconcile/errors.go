package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrUnmappedEnum 场所枚举值没有对应的规范值。对该记录是致命错误。
	ErrUnmappedEnum = errors.New("unmapped venue enum")
	// ErrMalformedRecord 原始记录字段无法解析。
	ErrMalformedRecord = errors.New("malformed venue record")
)

// UnmappedEnumError 描述无法翻译的场所枚举值。
type UnmappedEnumError struct {
	Dialect string
	Field   string
	Token   string
}

func (e *UnmappedEnumError) Error() string {
	return fmt.Sprintf("%s: unmapped %s %q", e.Dialect, e.Field, e.Token)
}

func (e *UnmappedEnumError) Is(target error) bool { return target == ErrUnmappedEnum }

func malformed(dialect, field, value string, err error) error {
	return fmt.Errorf("%w: %s %s=%q: %v", ErrMalformedRecord, dialect, field, value, err)
}
