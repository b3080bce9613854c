package lifecycle

import (
	"context"
	"errors"
	"iter"
	"net"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/dep2p/go-natmap/pkg/lib/log"
	"github.com/dep2p/go-natmap/pkg/types"
)

// ErrNoLocalAddresses 没有可用于映射的本地地址
var ErrNoLocalAddresses = errors.New("no local addresses to map")

// AddressFunc 返回要尝试映射的本地地址
type AddressFunc func() ([]net.IP, error)

// MapFunc 使用指定本地地址尝试一次映射
type MapFunc func(ctx context.Context, addr string) (*types.PortMapping, error)

// MapAcross 对每个本地地址依次尝试映射，返回惰性、只能迭代一次的序列
//
// 每次成功产出 (mapping, nil)；单个地址失败记录到 logger 后继续。
// 所有地址都失败（或没有地址）时产出一次 (nil, *types.AllMappingsFailedError)。
// 第二次迭代产出 (nil, types.ErrSequenceConsumed)。
func MapAcross(ctx context.Context, port int, addrs AddressFunc, mapFn MapFunc, logger *log.LazyLogger) iter.Seq2[*types.PortMapping, error] {
	var consumed atomic.Bool

	return func(yield func(*types.PortMapping, error) bool) {
		if consumed.Swap(true) {
			yield(nil, types.ErrSequenceConsumed)
			return
		}

		ips, err := addrs()
		if err != nil {
			yield(nil, &types.AllMappingsFailedError{Port: port, Err: err})
			return
		}
		if len(ips) == 0 {
			yield(nil, &types.AllMappingsFailedError{Port: port, Err: ErrNoLocalAddresses})
			return
		}

		var (
			errs      error
			succeeded int
		)
		for _, ip := range ips {
			if err := ctx.Err(); err != nil {
				errs = multierr.Append(errs, err)
				break
			}

			addr := ip.String()
			m, err := mapFn(ctx, addr)
			if err != nil {
				logger.Warn("本地地址映射失败", "addr", addr, "port", port, "err", err)
				errs = multierr.Append(errs, err)
				continue
			}

			succeeded++
			if !yield(m, nil) {
				return
			}
		}

		if succeeded == 0 {
			yield(nil, &types.AllMappingsFailedError{Port: port, Err: errs})
		}
	}
}

// FailedSeq 返回只产出一次 (nil, err) 的序列，用于调用前即已失败的 MapAll
func FailedSeq(err error) iter.Seq2[*types.PortMapping, error] {
	var consumed atomic.Bool

	return func(yield func(*types.PortMapping, error) bool) {
		if consumed.Swap(true) {
			yield(nil, types.ErrSequenceConsumed)
			return
		}
		yield(nil, err)
	}
}
