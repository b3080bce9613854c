package upnp

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-natmap/internal/core/portmap/lifecycle"
	"github.com/dep2p/go-natmap/internal/util/addrutil"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// DefaultTimeout 默认 UPnP 操作超时
const DefaultTimeout = 5 * time.Second

// Config UPnP 网关配置
type Config struct {
	// Timeout 单次 SOAP 调用超时（包括加载根描述）
	Timeout time.Duration

	// Defaults 网关级选项默认值
	Defaults *types.MapOptions

	// Library 库级默认值
	Library lifecycle.Defaults

	Clock    clock.Clock
	EventBus pkgif.EventBus

	// NewClient IGD 客户端工厂
	NewClient ClientFactory

	// AddressSource 本地地址来源（内部地址缺省值与 MapAll）
	AddressSource addrutil.AddressSource
}

// Option 配置选项
type Option func(*Config) error

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:       DefaultTimeout,
		Library:       lifecycle.LibraryDefaults(),
		Clock:         clock.New(),
		NewClient:     ClientsByURL,
		AddressSource: addrutil.DefaultAddressSource,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Clock == nil {
		return errors.New("clock is nil")
	}
	if c.NewClient == nil {
		return errors.New("client factory is nil")
	}
	if c.AddressSource == nil {
		return errors.New("address source is nil")
	}
	return nil
}

// WithTimeout 设置操作超时
func WithTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.Timeout = d
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

// WithClientFactory 设置 IGD 客户端工厂
func WithClientFactory(f ClientFactory) Option {
	return func(c *Config) error {
		if f == nil {
			return errors.New("client factory is nil")
		}
		c.NewClient = f
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
