// Package types 定义 go-natmap 公共类型
//
// 本文件定义事件相关类型。
package types

import (
	"time"
)

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 基础事件接口
type Event interface {
	// Type 返回事件类型
	Type() string

	// Timestamp 返回事件时间戳
	Timestamp() time.Time
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType string
	Time      time.Time
}

// Type 返回事件类型
func (e BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
	}
}

// ============================================================================
//                              网关事件
// ============================================================================

// EvtGatewayError 网关级错误事件
//
// 连接级错误发生时没有在途请求可以承接，通过该事件通知调用方。
type EvtGatewayError struct {
	BaseEvent
	Gateway string
	Err     error
}

// ============================================================================
//                              映射事件
// ============================================================================

// EvtMappingCreated 映射创建（或续期前的首次创建）事件
type EvtMappingCreated struct {
	BaseEvent
	Gateway string
	Mapping PortMapping
}

// EvtMappingRefreshed 映射续期成功事件
type EvtMappingRefreshed struct {
	BaseEvent
	Gateway string
	Mapping PortMapping
}

// EvtMappingRefreshFailed 映射续期失败事件
//
// 续期失败只记录并通知，不会重试。
type EvtMappingRefreshFailed struct {
	BaseEvent
	Gateway   string
	LocalPort int
	Err       error
}

// EvtMappingDeleted 映射删除事件
type EvtMappingDeleted struct {
	BaseEvent
	Gateway   string
	LocalPort int
	Protocol  Protocol
}

// ============================================================================
//                              事件类型常量
// ============================================================================

// 事件类型常量
const (
	EventTypeGatewayError         = "gateway_error"
	EventTypeMappingCreated       = "mapping_created"
	EventTypeMappingRefreshed     = "mapping_refreshed"
	EventTypeMappingRefreshFailed = "mapping_refresh_failed"
	EventTypeMappingDeleted       = "mapping_deleted"
)
