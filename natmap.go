package natmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-natmap/config"
	"github.com/dep2p/go-natmap/internal/core/eventbus"
	"github.com/dep2p/go-natmap/internal/core/portmap"
	"github.com/dep2p/go-natmap/pkg/lib/log"
	"github.com/dep2p/go-natmap/pkg/types"
)

var logger = log.Logger("natmap")

// Client 端口映射客户端
//
// Client 持有一个 fx 应用，组装事件总线与端口映射门面服务。
type Client struct {
	app     *fx.App
	service *portmap.Service
	bus     EventBus
	gateway string

	closeOnce sync.Once
	closeErr  error
}

// New 创建并启动客户端
func New(ctx context.Context, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	c := &Client{gateway: o.config.Gateway}
	app, err := buildFxApp(o, c)
	if err != nil {
		return nil, err
	}
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start fx app: %w", err)
	}
	c.app = app

	logger.Info("natmap 客户端已启动", "kind", string(c.service.Kind()), "gateway", c.gateway)
	return c, nil
}

// buildFxApp 构建 Fx 应用
//
// 加载顺序：配置 → EventBus → Portmap（依赖 EventBus 和可选的 Registerer）
func buildFxApp(o *options, c *Client) (*fx.App, error) {
	svcCfg, err := ServiceConfig(o.config)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	for _, tweak := range o.tweaks {
		tweak(&svcCfg)
	}

	modules := []fx.Option{
		fx.Supply(&svcCfg),
		eventbus.Module(),
		portmap.Module(),
	}
	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}
	modules = append(modules, o.fxOptions...)
	modules = append(modules,
		fx.Populate(&c.service, &c.bus),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...), nil
}

// ServiceConfig 把声明式配置转换为门面服务配置
func ServiceConfig(cfg *config.PortMapConfig) (portmap.Config, error) {
	if err := cfg.Validate(); err != nil {
		return portmap.Config{}, err
	}
	kind, err := portmap.ParseKind(cfg.Protocol)
	if err != nil {
		return portmap.Config{}, err
	}
	proto, err := types.ParseProtocol(cfg.Mapping.Type)
	if err != nil {
		return portmap.Config{}, err
	}

	out := portmap.DefaultConfig()
	out.Kind = kind
	out.Defaults = &types.MapOptions{
		Protocol:         proto,
		TTL:              cfg.Mapping.TTL.Duration(),
		Description:      cfg.Mapping.Description,
		AutoRefresh:      types.Bool(cfg.Mapping.AutoRefresh),
		RefreshTimeout:   cfg.Mapping.RefreshTimeout.Duration(),
		RefreshThreshold: cfg.Mapping.RefreshThreshold.Duration(),
	}
	out.PCP = portmap.PCPConfig{
		ClientPort:         cfg.PCP.ClientPort,
		ServerPort:         cfg.PCP.ServerPort,
		RequestTimeout:     cfg.PCP.RequestTimeout.Duration(),
		RetransmitInterval: cfg.PCP.RetransmitInterval.Duration(),
		VerifyNonce:        cfg.PCP.VerifyNonce,
	}
	out.NATPMPTimeout = cfg.NATPMP.Timeout.Duration()
	out.UPnPTimeout = cfg.UPnP.Timeout.Duration()
	return out, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              网关访问
// ════════════════════════════════════════════════════════════════════════════

// Gateway 返回默认协议类型下 host 对应的引擎
//
// 同一 host 多次调用返回同一个引擎。
func (c *Client) Gateway(host string) (PortMapper, error) {
	return c.service.Gateway(host)
}

// GatewayOf 返回指定协议类型下 host 对应的引擎
func (c *Client) GatewayOf(kind Kind, host string) (PortMapper, error) {
	return c.service.GatewayOf(kind, host)
}

// DefaultGateway 返回配置中的默认网关引擎
func (c *Client) DefaultGateway() (PortMapper, error) {
	if c.gateway == "" {
		return nil, ErrNoGateway
	}
	return c.service.Gateway(c.gateway)
}

// EventBus 返回事件总线
func (c *Client) EventBus() EventBus {
	return c.bus
}

// Close 停止所有引擎并关闭客户端
//
// 自动续期的映射在这里被删除，删除失败合并返回。
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.app.Stop(ctx)
		logger.Info("natmap 客户端已关闭")
	})
	return c.closeErr
}
