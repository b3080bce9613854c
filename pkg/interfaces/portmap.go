// Package interfaces 定义 go-natmap 公共接口
//
// 本文件定义端口映射能力接口。
package interfaces

import (
	"context"
	"iter"

	"github.com/dep2p/go-natmap/pkg/types"
)

// PortMapper 定义端口映射协议引擎的公共能力
//
// PCP、NAT-PMP、UPnP 引擎都实现该接口，由上层门面按网关选择。
// 调用方通过 context 传递取消信号。
//
// 实现位置：
//   - internal/core/portmap/pcp
//   - internal/core/portmap/natpmp
//   - internal/core/portmap/upnp
type PortMapper interface {
	// Name 返回协议名称（"pcp"、"nat-pmp"、"upnp"）
	Name() string

	// Map 创建端口映射
	//
	// 失败原因：选项校验错误、网关结果错误、超时或取消。
	// AutoRefresh 启用时，成功后会在租期到期前自动续期。
	Map(ctx context.Context, localPort int, localHost string, opts *types.MapOptions) (*types.PortMapping, error)

	// Unmap 删除端口映射并取消其续期
	Unmap(ctx context.Context, localPort int, opts *types.MapOptions) error

	// MapAll 对网关地址族的每个本地地址尝试映射
	//
	// 每次成功产出 (mapping, nil)；单个地址失败只记录日志。
	// 全部失败时产出一次 (nil, *types.AllMappingsFailedError)。
	// 序列是惰性的，只能迭代一次。
	MapAll(ctx context.Context, localPort int, opts *types.MapOptions) iter.Seq2[*types.PortMapping, error]

	// ExternalIP 获取网关外部地址
	//
	// 不支持的引擎返回 types.ErrUnsupportedOperation。
	ExternalIP(ctx context.Context, opts *types.MapOptions) (string, error)

	// Stop 取消所有续期，删除自动续期的映射并释放资源
	Stop(ctx context.Context, opts *types.MapOptions) error
}
