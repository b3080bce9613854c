package types

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
//                              Protocol - 传输协议
// ============================================================================

// Protocol 端口映射的传输协议
//
// 取值为 "tcp" 或 "udp"（大小写不敏感）。其他取值在发送请求前即被拒绝。
type Protocol string

const (
	// ProtocolTCP TCP 协议
	ProtocolTCP Protocol = "tcp"

	// ProtocolUDP UDP 协议
	ProtocolUDP Protocol = "udp"
)

// ParseProtocol 解析协议字符串
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return ProtocolTCP, nil
	case "udp":
		return ProtocolUDP, nil
	default:
		return "", &ValidationError{Field: "protocol", Value: s}
	}
}

// Normalize 返回小写规范形式，无效协议返回 ValidationError
func (p Protocol) Normalize() (Protocol, error) {
	return ParseProtocol(string(p))
}

// String 返回协议名称
func (p Protocol) String() string {
	return string(p)
}

// Upper 返回大写协议名称（UPnP 使用 "TCP"/"UDP"）
func (p Protocol) Upper() string {
	return strings.ToUpper(string(p))
}

// ============================================================================
//                              MapOptions - 映射选项
// ============================================================================

// MapOptions 单次映射调用的选项
//
// 所有字段都是可选的，零值表示"未设置"。解析顺序：
// 调用级选项 → 网关级默认值 → 库默认值。
type MapOptions struct {
	// Protocol 传输协议（默认 tcp）
	Protocol Protocol

	// TTL 请求的映射租期，按秒编码（0 表示使用默认值）
	TTL time.Duration

	// SuggestedExternalPort 建议的外部端口（0 表示与内部端口相同）
	SuggestedExternalPort int

	// SuggestedExternalAddress 建议的外部地址
	SuggestedExternalAddress string

	// Description 映射描述
	Description string

	// AutoRefresh 是否在租期到期前自动续期（nil 表示使用默认值）
	AutoRefresh *bool

	// RefreshTimeout 单次续期请求的超时
	RefreshTimeout time.Duration

	// RefreshThreshold 在租期到期前多久发起续期
	RefreshThreshold time.Duration

	// ClientAddress 写入请求头的客户端地址
	ClientAddress string
}

// Clone 返回选项副本（nil 安全）
func (o *MapOptions) Clone() *MapOptions {
	if o == nil {
		return &MapOptions{}
	}
	c := *o
	if o.AutoRefresh != nil {
		v := *o.AutoRefresh
		c.AutoRefresh = &v
	}
	return &c
}

// Bool 返回指向 b 的指针，用于设置 AutoRefresh
func Bool(b bool) *bool {
	return &b
}

// ============================================================================
//                              PortMapping - 映射结果
// ============================================================================

// PortMapping 一次成功映射的结果，创建后不再修改
type PortMapping struct {
	// ExternalHost 外部地址
	ExternalHost string

	// ExternalPort 网关分配的外部端口
	ExternalPort int

	// InternalHost 内部地址
	InternalHost string

	// InternalPort 内部端口
	InternalPort int

	// Protocol 传输协议
	Protocol Protocol

	// Lifetime 网关分配的租期
	Lifetime time.Duration
}

// String 返回 "proto external -> internal" 形式的描述
func (m PortMapping) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d", m.Protocol, m.ExternalHost, m.ExternalPort, m.InternalHost, m.InternalPort)
}
