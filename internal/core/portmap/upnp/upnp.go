package upnp

import (
	"context"
	"fmt"
	"iter"
	"math"
	"net"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-natmap/internal/core/portmap/lifecycle"
	"github.com/dep2p/go-natmap/internal/util/addrutil"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/lib/log"
	"github.com/dep2p/go-natmap/pkg/types"
)

var logger = log.Logger("portmap/upnp")

// Name 协议名称
const Name = "upnp"

var _ pkgif.PortMapper = (*Gateway)(nil)

// activeMapping 自动续期中的映射
type activeMapping struct {
	internalClient string
	externalPort   int
	opts           lifecycle.Resolved
}

// Gateway UPnP IGD 网关客户端
type Gateway struct {
	location *url.URL
	cfg      *Config

	refresh *lifecycle.Scheduler
	notify  *lifecycle.Notifier

	ctx    context.Context
	cancel context.CancelFunc

	clientMu sync.Mutex
	client   IGDClient

	mu        sync.Mutex
	active    map[int]activeMapping
	externals map[int]int
	gens      map[int]uint64 // 端口映射代数，Unmap 时递增
	stopped   bool
}

// NewGateway 创建 UPnP 网关客户端
//
// location 是 IGD 根描述文件地址。根描述在第一次操作时才加载。
func NewGateway(location string, opts ...Option) (*Gateway, error) {
	loc, err := url.Parse(location)
	if err != nil || loc.Scheme == "" || loc.Host == "" {
		return nil, &UPnPError{Message: fmt.Sprintf("invalid root description URL %q", location), Cause: err}
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("upnp: apply option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("upnp: invalid config: %w", err)
	}

	notify, err := lifecycle.NewNotifier(cfg.EventBus, location)
	if err != nil {
		return nil, fmt.Errorf("upnp: create notifier: %w", err)
	}

	g := &Gateway{
		location:  loc,
		cfg:       cfg,
		refresh:   lifecycle.NewScheduler(cfg.Clock),
		notify:    notify,
		active:    make(map[int]activeMapping),
		externals: make(map[int]int),
		gens:      make(map[int]uint64),
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	return g, nil
}

// Name 返回协议名称
func (g *Gateway) Name() string {
	return Name
}

// Host 返回根描述地址
func (g *Gateway) Host() string {
	return g.location.String()
}

func (g *Gateway) isStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// igd 返回 IGD 客户端，首次调用时加载根描述
func (g *Gateway) igd(ctx context.Context) (IGDClient, error) {
	g.clientMu.Lock()
	defer g.clientMu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	client, err := lifecycle.Call(ctx, g.cfg.Timeout, func() (IGDClient, error) {
		return g.cfg.NewClient(g.location)
	})
	if err != nil {
		return nil, &UPnPError{Message: "connect IGD", Cause: err}
	}
	logger.Debug("已连接 IGD 服务", "location", g.Host())
	g.client = client
	return client, nil
}

// internalClient 选择映射的内部地址：localHost → 第一个本地 IPv4 地址
func (g *Gateway) internalClient(localHost string) (string, error) {
	if localHost != "" {
		ip, err := addrutil.ParseHost(localHost)
		if err != nil {
			return "", &types.ValidationError{Field: "local host", Value: localHost}
		}
		return ip.String(), nil
	}
	addrs, err := g.cfg.AddressSource(addrutil.FamilyIPv4)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoInternalClient, err)
	}
	if len(addrs) == 0 {
		return "", ErrNoInternalClient
	}
	return addrs[0].String(), nil
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
	return g.create(ctx, localPort, localHost, r)
}

func (g *Gateway) create(ctx context.Context, localPort int, localHost string, r lifecycle.Resolved) (*types.PortMapping, error) {
	m, _, err := g.mapResolved(ctx, localPort, localHost, r, g.generation(localPort))
	if err != nil {
		return nil, err
	}
	logger.Info("UPnP 端口映射成功", "location", g.Host(), "mapping", m.String())
	g.notify.Created(*m)
	return m, nil
}

// mapResolved 发送 AddPortMapping；gen 已变或网关已停止时不再登记续期，current 为 false
func (g *Gateway) mapResolved(ctx context.Context, localPort int, localHost string, r lifecycle.Resolved, gen uint64) (m *types.PortMapping, current bool, err error) {
	external := r.SuggestedExternalPort
	if external == 0 {
		external = localPort
	}
	if err := checkPort("local port", localPort); err != nil {
		return nil, false, err
	}
	if err := checkPort("external port", external); err != nil {
		return nil, false, err
	}
	internal, err := g.internalClient(localHost)
	if err != nil {
		return nil, false, err
	}
	client, err := g.igd(ctx)
	if err != nil {
		return nil, false, err
	}
	lease := lifecycle.LeaseSeconds(r.TTL)

	_, err = lifecycle.Call(ctx, g.cfg.Timeout, func() (struct{}, error) {
		return struct{}{}, client.AddPortMapping(
			r.SuggestedExternalAddress, // NewRemoteHost（空=任意）
			uint16(external),
			r.Protocol.Upper(),
			uint16(localPort),
			internal,
			true,
			r.Description,
			lease,
		)
	})
	if err != nil {
		return nil, false, &MappingError{Protocol: r.Protocol.Upper(), Port: localPort, Cause: err}
	}

	m = &types.PortMapping{
		ExternalPort: external,
		InternalHost: internal,
		InternalPort: localPort,
		Protocol:     r.Protocol,
		Lifetime:     r.TTL,
	}
	if ip, err := g.ExternalIP(ctx, nil); err == nil {
		m.ExternalHost = ip
	} else {
		logger.Warn("UPnP 获取外部 IP 失败", "location", g.Host(), "err", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || g.gens[localPort] != gen {
		return m, false, nil
	}
	g.externals[localPort] = external
	if !r.AutoRefresh || r.TTL <= 0 {
		g.forgetLocked(localPort)
		return m, true, nil
	}
	g.active[localPort] = activeMapping{internalClient: internal, externalPort: external, opts: r}
	delay := lifecycle.RefreshDelay(r.TTL, r.TTL, r.RefreshThreshold)
	g.refresh.Schedule(localPort, delay, func() {
		g.renew(localPort, internal, r, gen)
	})
	return m, true, nil
}

// checkPort 端口必须落在 1..65535
func checkPort(field string, port int) error {
	if port <= 0 || port > math.MaxUint16 {
		return &types.ValidationError{Field: field, Value: strconv.Itoa(port)}
	}
	return nil
}

func (g *Gateway) generation(localPort int) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[localPort]
}

func (g *Gateway) renew(localPort int, internal string, r lifecycle.Resolved, gen uint64) {
	if g.ctx.Err() != nil || g.generation(localPort) != gen {
		return
	}
	ctx, cancel := g.cfg.Clock.WithTimeout(g.ctx, r.RefreshTimeout)
	defer cancel()

	m, current, err := g.mapResolved(ctx, localPort, internal, r, gen)
	if err != nil {
		if g.ctx.Err() != nil {
			return
		}
		logger.Warn("UPnP 映射续期失败", "location", g.Host(), "port", localPort, "err", err)
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

// Unmap 删除端口映射并取消续期
//
// 外部端口取该本地端口最近一次成功映射的外部端口，没有记录时取建议端口或本地端口。
func (g *Gateway) Unmap(ctx context.Context, localPort int, opts *types.MapOptions) error {
	if g.isStopped() {
		return ErrGatewayStopped
	}
	r, err := lifecycle.Resolve(opts, g.cfg.Defaults, g.cfg.Library)
	if err != nil {
		return err
	}
	g.forget(localPort)

	g.mu.Lock()
	external, ok := g.externals[localPort]
	g.mu.Unlock()
	if !ok {
		external = r.SuggestedExternalPort
		if external == 0 {
			external = localPort
		}
	}
	return g.unmapResolved(ctx, localPort, external, r.ForUnmap())
}

func (g *Gateway) unmapResolved(ctx context.Context, localPort, external int, r lifecycle.Resolved) error {
	if err := checkPort("external port", external); err != nil {
		return err
	}
	client, err := g.igd(ctx)
	if err != nil {
		return err
	}
	_, err = lifecycle.Call(ctx, g.cfg.Timeout, func() (struct{}, error) {
		return struct{}{}, client.DeletePortMapping(r.SuggestedExternalAddress, uint16(external), r.Protocol.Upper())
	})
	if err != nil {
		return &MappingError{Protocol: r.Protocol.Upper(), Port: localPort, Cause: err}
	}

	g.mu.Lock()
	delete(g.externals, localPort)
	g.mu.Unlock()

	logger.Info("UPnP 端口映射已删除", "location", g.Host(), "port", localPort, "external", external)
	g.notify.Deleted(localPort, r.Protocol)
	return nil
}

// MapAll 对每个本地 IPv4 地址分别创建映射（地址作为 NewInternalClient）
func (g *Gateway) MapAll(ctx context.Context, localPort int, opts *types.MapOptions) iter.Seq2[*types.PortMapping, error] {
	if g.isStopped() {
		return lifecycle.FailedSeq(ErrGatewayStopped)
	}
	r, err := lifecycle.Resolve(opts, g.cfg.Defaults, g.cfg.Library)
	if err != nil {
		return lifecycle.FailedSeq(err)
	}

	addrs := func() ([]net.IP, error) {
		return g.cfg.AddressSource(addrutil.FamilyIPv4)
	}
	mapFn := func(ctx context.Context, addr string) (*types.PortMapping, error) {
		if g.isStopped() {
			return nil, ErrGatewayStopped
		}
		return g.create(ctx, localPort, addr, r)
	}
	return lifecycle.MapAcross(ctx, localPort, addrs, mapFn, logger)
}

// ============================================================================
//                              ExternalIP / Stop
// ============================================================================

// ExternalIP 获取路由器的外部 IP 地址
func (g *Gateway) ExternalIP(ctx context.Context, _ *types.MapOptions) (string, error) {
	client, err := g.igd(ctx)
	if err != nil {
		return "", err
	}
	ip, err := lifecycle.Call(ctx, g.cfg.Timeout, client.GetExternalIPAddress)
	if err != nil {
		return "", &UPnPError{Message: "get external IP", Cause: err}
	}
	return ip, nil
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
	g.active = make(map[int]activeMapping)
	g.mu.Unlock()

	g.cancel()
	ports := g.refresh.Close()

	var errs error
	for _, port := range ports {
		am, ok := active[port]
		if !ok {
			continue
		}
		r, err := lifecycle.Resolve(opts, am.opts.Options(), g.cfg.Library)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := g.unmapResolved(ctx, port, am.externalPort, r.ForUnmap()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	g.notify.Close()
	return errs
}
