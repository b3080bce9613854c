package lifecycle

import (
	"github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              Notifier - 事件发布
// ============================================================================

// Notifier 代表一个网关向事件总线发布映射事件
//
// nil *Notifier 的方法都是空操作。
type Notifier struct {
	gateway string

	gatewayError  interfaces.Emitter
	created       interfaces.Emitter
	refreshed     interfaces.Emitter
	refreshFailed interfaces.Emitter
	deleted       interfaces.Emitter
}

// NewNotifier 为网关创建事件发布器，bus 为 nil 时返回 nil
func NewNotifier(bus interfaces.EventBus, gateway string) (*Notifier, error) {
	if bus == nil {
		return nil, nil
	}

	n := &Notifier{gateway: gateway}
	var err error
	if n.gatewayError, err = bus.Emitter(new(types.EvtGatewayError)); err != nil {
		return nil, err
	}
	if n.created, err = bus.Emitter(new(types.EvtMappingCreated)); err != nil {
		return nil, err
	}
	if n.refreshed, err = bus.Emitter(new(types.EvtMappingRefreshed)); err != nil {
		return nil, err
	}
	if n.refreshFailed, err = bus.Emitter(new(types.EvtMappingRefreshFailed)); err != nil {
		return nil, err
	}
	if n.deleted, err = bus.Emitter(new(types.EvtMappingDeleted)); err != nil {
		return nil, err
	}
	return n, nil
}

// GatewayError 发布网关级错误
func (n *Notifier) GatewayError(err error) {
	if n == nil {
		return
	}
	_ = n.gatewayError.Emit(types.EvtGatewayError{
		BaseEvent: types.NewBaseEvent(types.EventTypeGatewayError),
		Gateway:   n.gateway,
		Err:       err,
	})
}

// Created 发布映射创建事件
func (n *Notifier) Created(m types.PortMapping) {
	if n == nil {
		return
	}
	_ = n.created.Emit(types.EvtMappingCreated{
		BaseEvent: types.NewBaseEvent(types.EventTypeMappingCreated),
		Gateway:   n.gateway,
		Mapping:   m,
	})
}

// Refreshed 发布映射续期事件
func (n *Notifier) Refreshed(m types.PortMapping) {
	if n == nil {
		return
	}
	_ = n.refreshed.Emit(types.EvtMappingRefreshed{
		BaseEvent: types.NewBaseEvent(types.EventTypeMappingRefreshed),
		Gateway:   n.gateway,
		Mapping:   m,
	})
}

// RefreshFailed 发布续期失败事件
func (n *Notifier) RefreshFailed(port int, err error) {
	if n == nil {
		return
	}
	_ = n.refreshFailed.Emit(types.EvtMappingRefreshFailed{
		BaseEvent: types.NewBaseEvent(types.EventTypeMappingRefreshFailed),
		Gateway:   n.gateway,
		LocalPort: port,
		Err:       err,
	})
}

// Deleted 发布映射删除事件
func (n *Notifier) Deleted(port int, proto types.Protocol) {
	if n == nil {
		return
	}
	_ = n.deleted.Emit(types.EvtMappingDeleted{
		BaseEvent: types.NewBaseEvent(types.EventTypeMappingDeleted),
		Gateway:   n.gateway,
		LocalPort: port,
		Protocol:  proto,
	})
}

// Close 关闭所有发射器
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	for _, em := range []interfaces.Emitter{n.gatewayError, n.created, n.refreshed, n.refreshFailed, n.deleted} {
		_ = em.Close()
	}
}
