package natpmp

import (
	"context"
	"fmt"
	"iter"
	"net"
	"sync"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
	"go.uber.org/multierr"

	"github.com/dep2p/go-natmap/internal/core/portmap/lifecycle"
	"github.com/dep2p/go-natmap/internal/util/addrutil"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/lib/log"
	"github.com/dep2p/go-natmap/pkg/types"
)

var logger = log.Logger("portmap/natpmp")

// Name 协议名称
const Name = "nat-pmp"

var _ pkgif.PortMapper = (*Gateway)(nil)

// Gateway NAT-PMP 网关客户端
type Gateway struct {
	host   string
	ip     net.IP
	cfg    *Config
	client Client

	refresh *lifecycle.Scheduler
	notify  *lifecycle.Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	active  map[int]lifecycle.Resolved
	gens    map[int]uint64 // 端口映射代数，Unmap 时递增
	stopped bool
}

// NewGateway 创建 NAT-PMP 网关客户端
//
// 不做网关发现，host 必须是网关的 IPv4 地址。
func NewGateway(host string, opts ...Option) (*Gateway, error) {
	ip, err := addrutil.ParseHost(host)
	if err != nil {
		return nil, err
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, ErrIPv6Gateway
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("natpmp: apply option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("natpmp: invalid config: %w", err)
	}

	notify, err := lifecycle.NewNotifier(cfg.EventBus, host)
	if err != nil {
		return nil, fmt.Errorf("natpmp: create notifier: %w", err)
	}

	g := &Gateway{
		host:    host,
		ip:      ip4,
		cfg:     cfg,
		client:  cfg.NewClient(ip4, cfg.Timeout),
		refresh: lifecycle.NewScheduler(cfg.Clock),
		notify:  notify,
		active:  make(map[int]lifecycle.Resolved),
		gens:    make(map[int]uint64),
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())

	logger.Debug("NAT-PMP 网关已创建", "gateway", host, "timeout", cfg.Timeout)
	return g, nil
}

// Name 返回协议名称
func (g *Gateway) Name() string {
	return Name
}

// Host 返回网关地址
func (g *Gateway) Host() string {
	return g.host
}

func (g *Gateway) isStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// ============================================================================
//                              带超时的客户端调用
// ============================================================================

// call 执行带超时的客户端调用，错误包装为 NATPMPError
func call[T any](ctx context.Context, timeout time.Duration, what string, fn func() (T, error)) (T, error) {
	v, err := lifecycle.Call(ctx, timeout, fn)
	if err != nil {
		return v, &NATPMPError{Message: what, Cause: err}
	}
	return v, nil
}

func (g *Gateway) addPortMapping(ctx context.Context, localPort int, r lifecycle.Resolved) (*natpmp.AddPortMappingResult, error) {
	// 删除映射时建议端口和租期都为 0
	external := 0
	if r.TTL > 0 {
		external = r.SuggestedExternalPort
		if external == 0 {
			external = localPort
		}
	}
	lifetime := int(lifecycle.LeaseSeconds(r.TTL))

	res, err := call(ctx, g.cfg.Timeout, "add port mapping", func() (*natpmp.AddPortMappingResult, error) {
		return g.client.AddPortMapping(r.Protocol.String(), localPort, external, lifetime)
	})
	if err != nil {
		return nil, &MappingError{Protocol: r.Protocol.String(), Port: localPort, Cause: err}
	}
	return res, nil
}

// ============================================================================
//                              Map / Unmap
// ============================================================================

// Map 创建端口映射
func (g *Gateway) Map(ctx context.Context, localPort int, localHost string, opts *types.MapOptions) (*types.PortMapping, error) {
	if g.isStopped() {
		return nil, ErrGatewayStopped
	}
	r, err := lifecycle.Resolve(opts, g.cfg.Defaults, g.cfg.Library)
	if err != nil {
		return nil, err
	}

	m, _, err := g.mapResolved(ctx, localPort, localHost, r, g.generation(localPort))
	if err != nil {
		return nil, err
	}
	logger.Info("NAT-PMP 端口映射成功", "gateway", g.host, "mapping", m.String())
	g.notify.Created(*m)
	return m, nil
}

// mapResolved 发送映射请求；gen 已变或网关已停止时不再登记续期，current 为 false
func (g *Gateway) mapResolved(ctx context.Context, localPort int, localHost string, r lifecycle.Resolved, gen uint64) (m *types.PortMapping, current bool, err error) {
	res, err := g.addPortMapping(ctx, localPort, r)
	if err != nil {
		return nil, false, err
	}

	assigned := time.Duration(res.PortMappingLifetimeInSeconds) * time.Second
	m = &types.PortMapping{
		ExternalPort: int(res.MappedExternalPort),
		InternalHost: localHost,
		InternalPort: int(res.InternalPort),
		Protocol:     r.Protocol,
		Lifetime:     assigned,
	}
	if ip, err := g.ExternalIP(ctx, nil); err == nil {
		m.ExternalHost = ip
	} else {
		logger.Debug("NAT-PMP 获取外部地址失败", "gateway", g.host, "err", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || g.gens[localPort] != gen {
		return m, false, nil
	}
	if !r.AutoRefresh || r.TTL <= 0 {
		g.forgetLocked(localPort)
		return m, true, nil
	}
	g.active[localPort] = r
	delay := lifecycle.RefreshDelay(r.TTL, assigned, r.RefreshThreshold)
	g.refresh.Schedule(localPort, delay, func() {
		g.renew(localPort, localHost, r, gen)
	})
	return m, true, nil
}

func (g *Gateway) generation(localPort int) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[localPort]
}

func (g *Gateway) renew(localPort int, localHost string, r lifecycle.Resolved, gen uint64) {
	if g.ctx.Err() != nil || g.generation(localPort) != gen {
		return
	}
	ctx, cancel := g.cfg.Clock.WithTimeout(g.ctx, r.RefreshTimeout)
	defer cancel()

	m, current, err := g.mapResolved(ctx, localPort, localHost, r, gen)
	if err != nil {
		if g.ctx.Err() != nil {
			return
		}
		logger.Warn("NAT-PMP 映射续期失败", "gateway", g.host, "port", localPort, "err", err)
		g.notify.RefreshFailed(localPort, err)
		return
	}
	if current {
		g.notify.Refreshed(*m)
	}
}

// forget 取消续期并使在途续期失效
func (g *Gateway) forget(localPort int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forgetLocked(localPort)
}

func (g *Gateway) forgetLocked(localPort int) {
	g.gens[localPort]++
	g.refresh.Cancel(localPort)
	delete(g.active, localPort)
}

// Unmap 删除端口映射（租期为 0）并取消续期
func (g *Gateway) Unmap(ctx context.Context, localPort int, opts *types.MapOptions) error {
	if g.isStopped() {
		return ErrGatewayStopped
	}
	r, err := lifecycle.Resolve(opts, g.cfg.Defaults, g.cfg.Library)
	if err != nil {
		return err
	}
	g.forget(localPort)
	return g.unmapResolved(ctx, localPort, r.ForUnmap())
}

func (g *Gateway) unmapResolved(ctx context.Context, localPort int, r lifecycle.Resolved) error {
	if _, err := g.addPortMapping(ctx, localPort, r); err != nil {
		return err
	}
	logger.Info("NAT-PMP 端口映射已删除", "gateway", g.host, "port", localPort)
	g.notify.Deleted(localPort, r.Protocol)
	return nil
}

// MapAll NAT-PMP 请求不携带客户端地址，只尝试一次映射
func (g *Gateway) MapAll(ctx context.Context, localPort int, opts *types.MapOptions) iter.Seq2[*types.PortMapping, error] {
	if g.isStopped() {
		return lifecycle.FailedSeq(ErrGatewayStopped)
	}
	addrs := func() ([]net.IP, error) {
		return []net.IP{net.IPv4zero}, nil
	}
	mapFn := func(ctx context.Context, _ string) (*types.PortMapping, error) {
		return g.Map(ctx, localPort, "", opts)
	}
	return lifecycle.MapAcross(ctx, localPort, addrs, mapFn, logger)
}

// ============================================================================
//                              ExternalIP / Stop
// ============================================================================

// ExternalIP 获取网关外部地址
func (g *Gateway) ExternalIP(ctx context.Context, _ *types.MapOptions) (string, error) {
	res, err := call(ctx, g.cfg.Timeout, "get external address", g.client.GetExternalAddress)
	if err != nil {
		return "", err
	}
	return net.IP(res.ExternalIPAddress[:]).String(), nil
}

// Stop 取消续期并删除所有自动续期的映射，删除失败合并返回
func (g *Gateway) Stop(ctx context.Context, opts *types.MapOptions) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	active := g.active
	g.active = make(map[int]lifecycle.Resolved)
	g.mu.Unlock()

	g.cancel()
	ports := g.refresh.Close()

	var errs error
	for _, port := range ports {
		stored, ok := active[port]
		if !ok {
			continue
		}
		r, err := lifecycle.Resolve(opts, stored.Options(), g.cfg.Library)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := g.unmapResolved(ctx, port, r.ForUnmap()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	g.notify.Close()
	return errs
}
