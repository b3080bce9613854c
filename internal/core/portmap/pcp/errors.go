package pcp

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrRequestTimeout 网关在请求超时前没有响应
	ErrRequestTimeout = errors.New("pcp: request timed out")

	// ErrGatewayStopped 网关实例已停止
	ErrGatewayStopped = errors.New("pcp: gateway stopped")
)

// TransportError 套接字绑定、发送或读取失败
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pcp transport %s: %v", e.Op, e.Err)
}

// Unwrap 解包错误
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolVersionError 响应版本号与请求版本号不一致
type ProtocolVersionError struct {
	Got  uint8
	Want uint8
}

func (e *ProtocolVersionError) Error() string {
	return fmt.Sprintf("pcp: unsupported response version %d (want %d)", e.Got, e.Want)
}

// UnsupportedOpcodeError 响应操作码不是对请求操作码的应答
type UnsupportedOpcodeError struct {
	Opcode uint8
}

func (e *UnsupportedOpcodeError) Error() string {
	return fmt.Sprintf("pcp: unexpected response opcode 0x%02x", e.Opcode)
}

// MalformedResponseError 响应长度不足
type MalformedResponseError struct {
	Len int
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("pcp: malformed response of %d bytes", e.Len)
}

// GatewayResultError 网关返回非零结果码
//
// Error() 返回结果码对应的文本，例如 "Malformed request"。
type GatewayResultError struct {
	Code    ResultCode
	Message string
}

func (e *GatewayResultError) Error() string {
	return e.Message
}
