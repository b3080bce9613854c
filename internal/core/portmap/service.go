package portmap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-natmap/internal/core/portmap/natpmp"
	"github.com/dep2p/go-natmap/internal/core/portmap/pcp"
	"github.com/dep2p/go-natmap/internal/core/portmap/upnp"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
)

// ErrServiceClosed 服务已关闭
var ErrServiceClosed = errors.New("portmap: service closed")

// gatewayKey 引擎缓存键
type gatewayKey struct {
	kind Kind
	host string
}

// Service 端口映射门面服务
type Service struct {
	cfg     Config
	bus     pkgif.EventBus
	metrics *pcp.Metrics

	mu       sync.Mutex
	gateways map[gatewayKey]pkgif.PortMapper
	closed   bool
}

// NewService 创建门面服务
//
// bus 和 metrics 都可以为 nil。
func NewService(cfg Config, bus pkgif.EventBus, metrics *pcp.Metrics) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("portmap: invalid config: %w", err)
	}
	cfg.Kind, _ = ParseKind(string(cfg.Kind))

	return &Service{
		cfg:      cfg,
		bus:      bus,
		metrics:  metrics,
		gateways: make(map[gatewayKey]pkgif.PortMapper),
	}, nil
}

// Kind 返回默认协议类型
func (s *Service) Kind() Kind {
	return s.cfg.Kind
}

// Gateway 返回默认协议类型下 host 对应的引擎
func (s *Service) Gateway(host string) (pkgif.PortMapper, error) {
	return s.GatewayOf(s.cfg.Kind, host)
}

// GatewayOf 返回指定协议类型下 host 对应的引擎，首次调用时创建
//
// host 对 PCP/NAT-PMP 是网关 IP，对 UPnP 是根描述地址。
func (s *Service) GatewayOf(kind Kind, host string) (pkgif.PortMapper, error) {
	kind, err := ParseKind(string(kind))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServiceClosed
	}
	key := gatewayKey{kind: kind, host: host}
	if gw, ok := s.gateways[key]; ok {
		return gw, nil
	}

	gw, err := s.newEngine(kind, host)
	if err != nil {
		return nil, err
	}
	s.gateways[key] = gw
	logger.Info("创建端口映射引擎", "kind", string(kind), "gateway", host)
	return gw, nil
}

func (s *Service) newEngine(kind Kind, host string) (pkgif.PortMapper, error) {
	switch kind {
	case KindPCP:
		opts := []pcp.Option{
			pcp.WithClientPort(s.cfg.PCP.ClientPort),
			pcp.WithServerPort(s.cfg.PCP.ServerPort),
			pcp.WithRequestTimeout(s.cfg.PCP.RequestTimeout),
			pcp.WithRetransmitInterval(s.cfg.PCP.RetransmitInterval),
			pcp.WithNonceVerification(s.cfg.PCP.VerifyNonce),
			pcp.WithDefaults(s.cfg.Defaults),
			pcp.WithEventBus(s.bus),
			pcp.WithMetrics(s.metrics),
		}
		return pcp.NewGateway(host, append(opts, s.cfg.PCPOptions...)...)

	case KindNATPMP:
		opts := []natpmp.Option{
			natpmp.WithTimeout(s.cfg.NATPMPTimeout),
			natpmp.WithDefaults(s.cfg.Defaults),
			natpmp.WithEventBus(s.bus),
		}
		return natpmp.NewGateway(host, append(opts, s.cfg.NATPMPOptions...)...)

	case KindUPnP:
		opts := []upnp.Option{
			upnp.WithTimeout(s.cfg.UPnPTimeout),
			upnp.WithDefaults(s.cfg.Defaults),
			upnp.WithEventBus(s.bus),
		}
		return upnp.NewGateway(host, append(opts, s.cfg.UPnPOptions...)...)
	}
	return nil, fmt.Errorf("portmap: unknown gateway kind %q", kind)
}

// Hosts 返回已创建引擎的网关地址（排序）
func (s *Service) Hosts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	hosts := make([]string, 0, len(s.gateways))
	for key := range s.gateways {
		hosts = append(hosts, key.host)
	}
	sort.Strings(hosts)
	return hosts
}

// Close 并发停止所有引擎，合并返回停止错误
//
// 重复调用返回 nil。
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	gateways := s.gateways
	s.gateways = make(map[gatewayKey]pkgif.PortMapper)
	s.mu.Unlock()

	var (
		g      errgroup.Group
		errsMu sync.Mutex
		errs   error
	)
	for key, gw := range gateways {
		g.Go(func() error {
			if err := gw.Stop(ctx, nil); err != nil {
				logger.Warn("停止端口映射引擎失败", "kind", string(key.kind), "gateway", key.host, "err", err)
				errsMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", key.kind, key.host, err))
				errsMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
