package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotRunning     = errors.New("execution engine not running")
	ErrAlreadyRunning = errors.New("execution engine already running")
)

// ValidationError 指令校验失败（合约/账户/场所缺失等）。
// 不会越过指令边界抛出，而是转为 Rejected 事件。
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed: %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("validation failed: unknown %s %q", e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }
