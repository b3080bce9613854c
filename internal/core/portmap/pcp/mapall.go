package pcp

import (
	"context"
	"iter"
	"net"

	"github.com/dep2p/go-natmap/internal/core/portmap/lifecycle"
	"github.com/dep2p/go-natmap/pkg/types"
)

// MapAll 对每个与网关同族的本地地址尝试映射
//
// 每个地址作为请求头中的客户端地址和映射的内部地址。部分地址失败时只记录
// 日志；全部失败时产出 *types.AllMappingsFailedError。
func (g *Gateway) MapAll(ctx context.Context, localPort int, opts *types.MapOptions) iter.Seq2[*types.PortMapping, error] {
	if g.isStopped() {
		return lifecycle.FailedSeq(ErrGatewayStopped)
	}
	r, err := lifecycle.Resolve(opts, g.cfg.Defaults, g.cfg.Library)
	if err != nil {
		return lifecycle.FailedSeq(err)
	}

	addrs := func() ([]net.IP, error) {
		return g.cfg.AddressSource(g.family)
	}
	mapFn := func(ctx context.Context, addr string) (*types.PortMapping, error) {
		if g.isStopped() {
			return nil, ErrGatewayStopped
		}
		rr := r
		rr.ClientAddress = addr
		return g.create(ctx, localPort, addr, rr)
	}
	return lifecycle.MapAcross(ctx, localPort, addrs, mapFn, logger)
}
