package pcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-natmap/internal/core/portmap/lifecycle"
	"github.com/dep2p/go-natmap/internal/util/addrutil"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/lib/log"
	"github.com/dep2p/go-natmap/pkg/types"
)

var logger = log.Logger("portmap/pcp")

// Name 协议名称
const Name = "pcp"

var _ pkgif.PortMapper = (*Gateway)(nil)

// activeMapping 自动续期中的映射
type activeMapping struct {
	localHost string
	opts      lifecycle.Resolved
}

// Gateway PCP 网关客户端
//
// 状态（请求队列、续期定时器、套接字）都属于实例本身，不同网关互不影响。
type Gateway struct {
	host   string
	ip     net.IP
	family addrutil.Family
	cfg    *Config

	d       *dispatcher
	refresh *lifecycle.Scheduler
	notify  *lifecycle.Notifier

	// ctx 在 Stop 时取消，结束进行中的续期
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	active  map[int]activeMapping
	gens    map[int]uint64 // 端口映射代数，Unmap 时递增，使在途续期的结果失效
	stopped bool
}

// NewGateway 创建 PCP 网关客户端
//
// host 必须是 IP 地址，地址族决定套接字类型。套接字在第一个请求时才绑定。
func NewGateway(host string, opts ...Option) (*Gateway, error) {
	ip, err := addrutil.ParseHost(host)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("pcp: apply option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pcp: invalid config: %w", err)
	}

	notify, err := lifecycle.NewNotifier(cfg.EventBus, host)
	if err != nil {
		return nil, fmt.Errorf("pcp: create notifier: %w", err)
	}

	g := &Gateway{
		host:    host,
		ip:      ip,
		family:  addrutil.FamilyOfIP(ip),
		cfg:     cfg,
		refresh: lifecycle.NewScheduler(cfg.Clock),
		notify:  notify,
		active:  make(map[int]activeMapping),
		gens:    make(map[int]uint64),
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())

	g.d = &dispatcher{
		gateway:            host,
		clock:              cfg.Clock,
		requestTimeout:     cfg.RequestTimeout,
		retransmitInterval: cfg.RetransmitInterval,
		verifyNonce:        cfg.VerifyNonce,
		metrics:            cfg.Metrics,
		onGatewayError:     g.onGatewayError,
	}
	g.d.transport = newTransport(g.family, cfg.ClientPort, &net.UDPAddr{IP: ip, Port: cfg.ServerPort}, g.d)
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

// Family 返回网关地址族
func (g *Gateway) Family() addrutil.Family {
	return g.family
}

func (g *Gateway) isStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

func (g *Gateway) onGatewayError(err error) {
	logger.Warn("网关连接错误", "gateway", g.host, "err", err)
	g.notify.GatewayError(err)
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

// create 创建映射并发布事件
func (g *Gateway) create(ctx context.Context, localPort int, localHost string, r lifecycle.Resolved) (*types.PortMapping, error) {
	m, _, err := g.mapResolved(ctx, localPort, localHost, r, g.generation(localPort))
	if err != nil {
		return nil, err
	}
	logger.Info("端口映射成功", "gateway", g.host, "mapping", m.String(), "lifetime", m.Lifetime)
	g.notify.Created(*m)
	return m, nil
}

// mapResolved 发送 MAP 请求并按结果调度续期
//
// gen 是发送前的映射代数。响应到达时代数已变（端口被删除）或网关已停止，
// 则不再登记续期，返回的 current 为 false。
func (g *Gateway) mapResolved(ctx context.Context, localPort int, localHost string, r lifecycle.Resolved, gen uint64) (m *types.PortMapping, current bool, err error) {
	resp, err := g.request(ctx, localPort, localHost, r)
	if err != nil {
		return nil, false, err
	}

	m = g.toMapping(ctx, localHost, r, resp)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || g.gens[localPort] != gen {
		logger.Debug("映射期间端口已删除，不再续期", "gateway", g.host, "port", localPort)
		return m, false, nil
	}
	if !r.AutoRefresh || r.TTL <= 0 {
		g.forgetLocked(localPort)
		return m, true, nil
	}

	g.active[localPort] = activeMapping{localHost: localHost, opts: r}
	delay := lifecycle.RefreshDelay(r.TTL, resp.Lifetime, r.RefreshThreshold)
	g.refresh.Schedule(localPort, delay, func() {
		g.renew(localPort, localHost, r, gen)
	})
	logger.Debug("已调度续期", "gateway", g.host, "port", localPort, "after", delay)
	return m, true, nil
}

// generation 返回端口当前的映射代数
func (g *Gateway) generation(localPort int) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[localPort]
}

// request 编码并发送一个 MAP 请求，等待响应
func (g *Gateway) request(ctx context.Context, localPort int, localHost string, r lifecycle.Resolved) (*Response, error) {
	clientIP, err := g.clientIP(localHost, r.ClientAddress)
	if err != nil {
		return nil, err
	}
	var suggestedIP net.IP
	if r.SuggestedExternalAddress != "" {
		if suggestedIP, err = addrutil.ParseHost(r.SuggestedExternalAddress); err != nil {
			return nil, &types.ValidationError{Field: "suggested external address", Value: r.SuggestedExternalAddress}
		}
	}
	suggestedPort := r.SuggestedExternalPort
	if suggestedPort == 0 {
		suggestedPort = localPort
	}

	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	payload, err := EncodeMapRequest(&MapRequest{
		Lifetime:              r.TTL,
		ClientIP:              clientIP,
		Family:                g.family,
		Nonce:                 nonce,
		Protocol:              r.Protocol,
		InternalPort:          localPort,
		SuggestedExternalPort: suggestedPort,
		SuggestedExternalIP:   suggestedIP,
	})
	if err != nil {
		return nil, err
	}

	req, err := g.d.enqueue(OpMap, payload, nonce)
	if err != nil {
		return nil, err
	}
	return g.d.wait(ctx, req)
}

// clientIP 选择写入请求头的客户端地址：ClientAddress → 与网关同族的本地地址 → 未指定地址
func (g *Gateway) clientIP(localHost, clientAddress string) (net.IP, error) {
	if clientAddress != "" {
		ip, err := addrutil.ParseHost(clientAddress)
		if err != nil {
			return nil, &types.ValidationError{Field: "client address", Value: clientAddress}
		}
		return ip, nil
	}
	if ip, err := addrutil.ParseHost(localHost); err == nil && addrutil.FamilyOfIP(ip) == g.family {
		return ip, nil
	}
	return nil, nil
}

// toMapping 由响应构造映射结果
func (g *Gateway) toMapping(ctx context.Context, localHost string, r lifecycle.Resolved, resp *Response) *types.PortMapping {
	proto := r.Protocol
	if p, err := resp.Protocol.Normalize(); err == nil {
		proto = p
	}

	internalHost := localHost
	if internalHost == "" {
		internalHost = r.ClientAddress
	}

	var externalHost string
	if resp.ExternalIP != nil {
		externalHost = resp.ExternalIP.String()
	}
	if addrutil.IsPrivateIP(localHost) {
		if ip, err := g.ExternalIP(ctx, r.Options()); err == nil {
			externalHost = ip
		} else {
			logger.Debug("获取外部地址失败，使用网关报告的地址", "gateway", g.host, "err", err)
		}
	}

	return &types.PortMapping{
		ExternalHost: externalHost,
		ExternalPort: resp.ExternalPort,
		InternalHost: internalHost,
		InternalPort: resp.InternalPort,
		Protocol:     proto,
		Lifetime:     resp.Lifetime,
	}
}

// renew 续期回调，失败只记录不重试
func (g *Gateway) renew(localPort int, localHost string, r lifecycle.Resolved, gen uint64) {
	if g.ctx.Err() != nil || g.generation(localPort) != gen {
		return
	}
	ctx, cancel := g.cfg.Clock.WithTimeout(g.ctx, r.RefreshTimeout)
	defer cancel()

	m, current, err := g.mapResolved(ctx, localPort, localHost, r, gen)
	if err != nil {
		if errors.Is(err, ErrGatewayStopped) || g.ctx.Err() != nil {
			return
		}
		logger.Warn("映射续期失败", "gateway", g.host, "port", localPort, "err", err)
		g.notify.RefreshFailed(localPort, err)
		return
	}
	if !current {
		return
	}
	logger.Debug("映射已续期", "gateway", g.host, "mapping", m.String())
	g.notify.Refreshed(*m)
}

// forget 取消端口的续期并使在途续期失效，返回此前登记的映射
func (g *Gateway) forget(localPort int) (activeMapping, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.forgetLocked(localPort)
}

func (g *Gateway) forgetLocked(localPort int) (activeMapping, bool) {
	g.gens[localPort]++
	g.refresh.Cancel(localPort)
	am, ok := g.active[localPort]
	delete(g.active, localPort)
	return am, ok
}

// Unmap 删除端口映射（租期为 0 的 MAP 请求）并取消续期
func (g *Gateway) Unmap(ctx context.Context, localPort int, opts *types.MapOptions) error {
	if g.isStopped() {
		return ErrGatewayStopped
	}
	r, err := lifecycle.Resolve(opts, g.cfg.Defaults, g.cfg.Library)
	if err != nil {
		return err
	}
	// 删除请求沿用映射时的本地地址，网关按内部地址匹配映射
	var localHost string
	if am, ok := g.forget(localPort); ok {
		localHost = am.localHost
	}
	return g.unmapResolved(ctx, localPort, localHost, r.ForUnmap())
}

func (g *Gateway) unmapResolved(ctx context.Context, localPort int, localHost string, r lifecycle.Resolved) error {
	if _, err := g.request(ctx, localPort, localHost, r); err != nil {
		return fmt.Errorf("unmap %s port %d: %w", r.Protocol, localPort, err)
	}
	logger.Info("端口映射已删除", "gateway", g.host, "port", localPort, "protocol", r.Protocol.String())
	g.notify.Deleted(localPort, r.Protocol)
	return nil
}

// ============================================================================
//                              ExternalIP / Stop
// ============================================================================

// ExternalIP 不受支持，总是返回 types.ErrUnsupportedOperation
func (g *Gateway) ExternalIP(context.Context, *types.MapOptions) (string, error) {
	return "", fmt.Errorf("pcp external ip: %w", types.ErrUnsupportedOperation)
}

// Stop 停止网关
//
// 丢弃排队请求（不等待在途响应），取消所有续期定时器，删除所有自动续期
// 的映射，然后关闭套接字。删除失败会合并返回。重复调用为空操作。
func (g *Gateway) Stop(ctx context.Context, opts *types.MapOptions) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	g.mu.Unlock()

	g.cancel()
	ports := g.refresh.Close()
	g.d.reset(ErrGatewayStopped)

	g.mu.Lock()
	active := g.active
	g.active = make(map[int]activeMapping)
	g.mu.Unlock()

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
		if err := g.unmapResolved(ctx, port, am.localHost, r.ForUnmap()); err != nil {
			logger.Warn("停止时删除映射失败", "gateway", g.host, "port", port, "err", err)
			errs = multierr.Append(errs, err)
		}
	}

	g.d.close()
	g.notify.Close()
	logger.Debug("网关已停止", "gateway", g.host, "unmapped", len(ports))
	return errs
}
