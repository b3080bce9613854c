// Package types 定义 go-natmap 的基础类型
//
// 本文件定义跨协议引擎共享的错误类型。
package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation 协议引擎不支持该操作
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrSequenceConsumed MapAll 返回的序列只能迭代一次
	ErrSequenceConsumed = errors.New("mapping sequence already consumed")
)

// ValidationError 选项校验失败，请求不会被发送
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// AllMappingsFailedError 所有本地地址的映射尝试均失败
type AllMappingsFailedError struct {
	Port int
	Err  error
}

func (e *AllMappingsFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("all attempts to map port %d failed", e.Port)
	}
	return fmt.Sprintf("all attempts to map port %d failed: %v", e.Port, e.Err)
}

// Unwrap 解包错误
func (e *AllMappingsFailedError) Unwrap() error {
	return e.Err
}
