package natmap

import (
	"github.com/dep2p/go-natmap/internal/core/portmap"
	"github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

type (
	// PortMapper 单个网关的端口映射引擎
	PortMapper = interfaces.PortMapper

	// EventBus 事件总线
	EventBus = interfaces.EventBus

	MapOptions  = types.MapOptions
	PortMapping = types.PortMapping
	Protocol    = types.Protocol

	// Kind 网关协议类型
	Kind = portmap.Kind
)

const (
	ProtocolTCP = types.ProtocolTCP
	ProtocolUDP = types.ProtocolUDP

	KindPCP    = portmap.KindPCP
	KindNATPMP = portmap.KindNATPMP
	KindUPnP   = portmap.KindUPnP
)

// Bool 返回指向 b 的指针，用于设置 MapOptions.AutoRefresh
func Bool(b bool) *bool {
	return types.Bool(b)
}
