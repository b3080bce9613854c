package lifecycle

import (
	"math"
	"time"

	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              库默认值
// ============================================================================

const (
	// DefaultTTL 默认映射租期
	DefaultTTL = 7200 * time.Second

	// DefaultDescription 默认映射描述
	DefaultDescription = "go-natmap"

	// DefaultRefreshTimeout 默认单次续期超时
	DefaultRefreshTimeout = 10 * time.Second

	// DefaultRefreshThreshold 默认在到期前多久续期
	DefaultRefreshThreshold = 60 * time.Second

	// minRefreshDelay 续期延迟下限
	minRefreshDelay = time.Second
)

// Defaults 一组选项默认值，用于网关级或库级
type Defaults struct {
	Protocol         types.Protocol
	TTL              time.Duration
	Description      string
	AutoRefresh      bool
	RefreshTimeout   time.Duration
	RefreshThreshold time.Duration
}

// LibraryDefaults 返回库默认值
func LibraryDefaults() Defaults {
	return Defaults{
		Protocol:         types.ProtocolTCP,
		TTL:              DefaultTTL,
		Description:      DefaultDescription,
		AutoRefresh:      true,
		RefreshTimeout:   DefaultRefreshTimeout,
		RefreshThreshold: DefaultRefreshThreshold,
	}
}

// ============================================================================
//                              解析结果
// ============================================================================

// Resolved 合并后的映射选项，所有字段都已确定
type Resolved struct {
	Protocol                 types.Protocol
	TTL                      time.Duration
	SuggestedExternalPort    int
	SuggestedExternalAddress string
	Description              string
	AutoRefresh              bool
	RefreshTimeout           time.Duration
	RefreshThreshold         time.Duration
	ClientAddress            string
}

// Resolve 按 调用级 → 网关级 → 库默认值 的顺序合并选项
//
// call 和 gateway 都可以为 nil。协议无效时返回 *types.ValidationError。
// 不足 1 秒的正租期提升为 1 秒，租期 0 在线路上表示删除。
func Resolve(call, gateway *types.MapOptions, lib Defaults) (Resolved, error) {
	call = call.Clone()
	gateway = gateway.Clone()

	r := Resolved{
		Protocol:                 firstProtocol(call.Protocol, gateway.Protocol, lib.Protocol),
		TTL:                      firstDuration(call.TTL, gateway.TTL, lib.TTL),
		SuggestedExternalPort:    firstInt(call.SuggestedExternalPort, gateway.SuggestedExternalPort),
		SuggestedExternalAddress: firstString(call.SuggestedExternalAddress, gateway.SuggestedExternalAddress),
		Description:              firstString(call.Description, gateway.Description, lib.Description),
		AutoRefresh:              lib.AutoRefresh,
		RefreshTimeout:           firstDuration(call.RefreshTimeout, gateway.RefreshTimeout, lib.RefreshTimeout),
		RefreshThreshold:         firstDuration(call.RefreshThreshold, gateway.RefreshThreshold, lib.RefreshThreshold),
		ClientAddress:            firstString(call.ClientAddress, gateway.ClientAddress),
	}
	switch {
	case call.AutoRefresh != nil:
		r.AutoRefresh = *call.AutoRefresh
	case gateway.AutoRefresh != nil:
		r.AutoRefresh = *gateway.AutoRefresh
	}

	if r.TTL > 0 && r.TTL < time.Second {
		r.TTL = time.Second
	}

	p, err := r.Protocol.Normalize()
	if err != nil {
		return Resolved{}, err
	}
	r.Protocol = p
	return r, nil
}

// LeaseSeconds 将租期换算为线路上的 32 位秒数
//
// 不足 1 秒的正租期按 1 秒计，负数按 0 计，超出 32 位时取上限。
func LeaseSeconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	switch {
	case secs == 0:
		return 1
	case secs > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(secs)
}

// ForUnmap 返回删除映射使用的选项：租期为 0、描述为空、不续期
func (r Resolved) ForUnmap() Resolved {
	r.TTL = 0
	r.Description = ""
	r.AutoRefresh = false
	return r
}

// Options 将解析结果转换回 MapOptions，续期时以同样的选项重新映射
func (r Resolved) Options() *types.MapOptions {
	return &types.MapOptions{
		Protocol:                 r.Protocol,
		TTL:                      r.TTL,
		SuggestedExternalPort:    r.SuggestedExternalPort,
		SuggestedExternalAddress: r.SuggestedExternalAddress,
		Description:              r.Description,
		AutoRefresh:              types.Bool(r.AutoRefresh),
		RefreshTimeout:           r.RefreshTimeout,
		RefreshThreshold:         r.RefreshThreshold,
		ClientAddress:            r.ClientAddress,
	}
}

// RefreshDelay 计算续期延迟
//
// 取请求租期与网关分配租期中较小者减去阈值；结果不为正时使用租期的一半，
// 至少 1 秒。assigned 为 0 表示网关未报告租期。
func RefreshDelay(requested, assigned, threshold time.Duration) time.Duration {
	lifetime := requested
	if assigned > 0 && (lifetime <= 0 || assigned < lifetime) {
		lifetime = assigned
	}
	if d := lifetime - threshold; d > 0 {
		return d
	}
	if d := lifetime / 2; d > minRefreshDelay {
		return d
	}
	return minRefreshDelay
}

// ============================================================================
//                              内部工具
// ============================================================================

func firstProtocol(vals ...types.Protocol) types.Protocol {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstDuration(vals ...time.Duration) time.Duration {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
