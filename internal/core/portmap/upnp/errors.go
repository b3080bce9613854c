package upnp

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrNoIGDService 根描述中没有可用的 IGD 连接服务
	ErrNoIGDService = &UPnPError{Message: "no IGD connection service found"}

	// ErrGatewayStopped 网关实例已停止
	ErrGatewayStopped = errors.New("upnp: gateway stopped")

	// ErrNoInternalClient 无法确定映射的内部地址
	ErrNoInternalClient = errors.New("upnp: no local address for internal client")
)

// UPnPError UPnP 错误
type UPnPError struct {
	Message string
	Cause   error
}

func (e *UPnPError) Error() string {
	if e.Cause != nil {
		return "upnp: " + e.Message + ": " + e.Cause.Error()
	}
	return "upnp: " + e.Message
}

func (e *UPnPError) Unwrap() error {
	return e.Cause
}

// MappingError 端口映射错误
type MappingError struct {
	Protocol string
	Port     int
	Cause    error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("upnp: mapping %s port %d failed: %v", e.Protocol, e.Port, e.Cause)
}

func (e *MappingError) Unwrap() error {
	return e.Cause
}
