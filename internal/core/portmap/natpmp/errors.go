package natpmp

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrGatewayStopped 网关实例已停止
	ErrGatewayStopped = errors.New("natpmp: gateway stopped")

	// ErrIPv6Gateway NAT-PMP 不支持 IPv6 网关
	ErrIPv6Gateway = errors.New("natpmp: IPv6 gateway not supported")
)

// NATPMPError NAT-PMP 错误
type NATPMPError struct {
	Message string
	Cause   error
}

func (e *NATPMPError) Error() string {
	if e.Cause != nil {
		return "natpmp: " + e.Message + ": " + e.Cause.Error()
	}
	return "natpmp: " + e.Message
}

func (e *NATPMPError) Unwrap() error {
	return e.Cause
}

// MappingError 端口映射错误
type MappingError struct {
	Protocol string
	Port     int
	Cause    error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("natpmp: mapping %s port %d failed: %v", e.Protocol, e.Port, e.Cause)
}

func (e *MappingError) Unwrap() error {
	return e.Cause
}
