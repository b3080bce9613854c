package natmap

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-natmap/config"
	"github.com/dep2p/go-natmap/internal/core/portmap"
)

// Option 客户端配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config     *config.PortMapConfig
	registerer prometheus.Registerer
	fxOptions  []fx.Option

	// tweaks 在配置转换后修改门面配置（测试注入引擎选项）
	tweaks []func(*portmap.Config)
}

func defaultOptions() *options {
	return &options{config: config.DefaultPortMapConfig()}
}

// WithConfig 使用声明式配置
func WithConfig(cfg *config.PortMapConfig) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg
		return nil
	}
}

// WithKind 设置默认网关协议类型
func WithKind(kind Kind) Option {
	return func(o *options) error {
		k, err := portmap.ParseKind(string(kind))
		if err != nil {
			return err
		}
		o.config.Protocol = string(k)
		return nil
	}
}

// WithGateway 设置默认网关
func WithGateway(host string) Option {
	return func(o *options) error {
		o.config.Gateway = host
		return nil
	}
}

// WithMetrics 启用 PCP 指标并注册到 registerer
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(o *options) error {
		if registerer == nil {
			return errors.New("registerer is nil")
		}
		o.registerer = registerer
		return nil
	}
}

// WithFxOptions 追加自定义 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}

// withServiceTweak 在配置转换后修改门面配置
func withServiceTweak(fn func(*portmap.Config)) Option {
	return func(o *options) error {
		o.tweaks = append(o.tweaks, fn)
		return nil
	}
}
