package natmap

import (
	"errors"

	"github.com/dep2p/go-natmap/internal/core/portmap"
	"github.com/dep2p/go-natmap/pkg/types"
)

// 公共错误定义
var (
	// ErrClientClosed 客户端已关闭
	ErrClientClosed = portmap.ErrServiceClosed

	// ErrNoGateway 没有配置默认网关
	ErrNoGateway = errors.New("natmap: no gateway configured")

	// ErrUnsupportedOperation 引擎不支持该操作（PCP 的 ExternalIP）
	ErrUnsupportedOperation = types.ErrUnsupportedOperation

	// ErrSequenceConsumed MapAll 序列被重复迭代
	ErrSequenceConsumed = types.ErrSequenceConsumed
)
