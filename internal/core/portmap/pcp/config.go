package pcp

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-natmap/internal/core/portmap/lifecycle"
	"github.com/dep2p/go-natmap/internal/util/addrutil"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

const (
	// DefaultRequestTimeout 默认单个请求超时
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRetransmitInterval 默认初始重传间隔（RFC 6887 IRT）
	DefaultRetransmitInterval = 3 * time.Second
)

// Config PCP 网关配置
type Config struct {
	// ClientPort 客户端绑定端口（默认 5350，0 表示系统分配）
	ClientPort int

	// ServerPort 网关端口（默认 5351）
	ServerPort int

	// RequestTimeout 在途请求超时，0 表示不超时
	RequestTimeout time.Duration

	// RetransmitInterval 初始重传间隔，每次翻倍，0 表示不重传
	RetransmitInterval time.Duration

	// VerifyNonce 是否丢弃 nonce 不匹配的响应
	VerifyNonce bool

	// Defaults 网关级选项默认值
	Defaults *types.MapOptions

	// Library 库级默认值
	Library lifecycle.Defaults

	// Clock 定时器时钟
	Clock clock.Clock

	// EventBus 事件总线，nil 表示不发布事件
	EventBus pkgif.EventBus

	// Metrics 指标，nil 表示不记录
	Metrics *Metrics

	// AddressSource MapAll 使用的本地地址来源
	AddressSource addrutil.AddressSource
}

// Option 配置选项
type Option func(*Config) error

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ClientPort:         ClientPort,
		ServerPort:         ServerPort,
		RequestTimeout:     DefaultRequestTimeout,
		RetransmitInterval: DefaultRetransmitInterval,
		VerifyNonce:        true,
		Library:            lifecycle.LibraryDefaults(),
		Clock:              clock.New(),
		AddressSource:      addrutil.DefaultAddressSource,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.ClientPort < 0 || c.ClientPort > 65535 {
		return errors.New("client port out of range")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return errors.New("server port out of range")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request timeout must not be negative")
	}
	if c.RetransmitInterval < 0 {
		return errors.New("retransmit interval must not be negative")
	}
	if c.Clock == nil {
		return errors.New("clock is nil")
	}
	if c.AddressSource == nil {
		return errors.New("address source is nil")
	}
	if c.Defaults != nil && c.Defaults.Protocol != "" {
		if _, err := c.Defaults.Protocol.Normalize(); err != nil {
			return err
		}
	}
	return nil
}

// WithClientPort 设置客户端绑定端口
func WithClientPort(port int) Option {
	return func(c *Config) error {
		c.ClientPort = port
		return nil
	}
}

// WithServerPort 设置网关端口
func WithServerPort(port int) Option {
	return func(c *Config) error {
		c.ServerPort = port
		return nil
	}
}

// WithRequestTimeout 设置请求超时
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.RequestTimeout = d
		return nil
	}
}

// WithRetransmitInterval 设置初始重传间隔
func WithRetransmitInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.RetransmitInterval = d
		return nil
	}
}

// WithNonceVerification 设置是否校验响应 nonce
func WithNonceVerification(enabled bool) Option {
	return func(c *Config) error {
		c.VerifyNonce = enabled
		return nil
	}
}

// WithDefaults 设置网关级选项默认值
func WithDefaults(opts *types.MapOptions) Option {
	return func(c *Config) error {
		c.Defaults = opts.Clone()
		return nil
	}
}

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Config) error {
		if clk == nil {
			return errors.New("clock is nil")
		}
		c.Clock = clk
		return nil
	}
}

// WithEventBus 设置事件总线
func WithEventBus(bus pkgif.EventBus) Option {
	return func(c *Config) error {
		c.EventBus = bus
		return nil
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) Option {
	return func(c *Config) error {
		c.Metrics = m
		return nil
	}
}

// WithAddressSource 设置本地地址来源
func WithAddressSource(src addrutil.AddressSource) Option {
	return func(c *Config) error {
		if src == nil {
			return errors.New("address source is nil")
		}
		c.AddressSource = src
		return nil
	}
}
