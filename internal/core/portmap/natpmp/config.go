package natpmp

import (
	"errors"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/dep2p/go-natmap/internal/core/portmap/lifecycle"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// DefaultTimeout 默认 NAT-PMP 操作超时
const DefaultTimeout = 5 * time.Second

// Client NAT-PMP 客户端能力（*natpmp.Client 实现该接口）
type Client interface {
	AddPortMapping(protocol string, internalPort, requestedExternalPort int, lifetime int) (*natpmp.AddPortMappingResult, error)
	GetExternalAddress() (*natpmp.GetExternalAddressResult, error)
}

// ClientFactory 为网关地址创建客户端
type ClientFactory func(gateway net.IP, timeout time.Duration) Client

// defaultClientFactory 使用 go-nat-pmp 客户端
func defaultClientFactory(gateway net.IP, timeout time.Duration) Client {
	return natpmp.NewClientWithTimeout(gateway, timeout)
}

// Config NAT-PMP 网关配置
type Config struct {
	// Timeout 单次操作超时（外部地址获取、端口映射）
	Timeout time.Duration

	// Defaults 网关级选项默认值
	Defaults *types.MapOptions

	// Library 库级默认值
	Library lifecycle.Defaults

	Clock    clock.Clock
	EventBus pkgif.EventBus

	// NewClient 客户端工厂
	NewClient ClientFactory
}

// Option 配置选项
type Option func(*Config) error

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:   DefaultTimeout,
		Library:   lifecycle.LibraryDefaults(),
		Clock:     clock.New(),
		NewClient: defaultClientFactory,
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

// WithClientFactory 设置客户端工厂
func WithClientFactory(f ClientFactory) Option {
	return func(c *Config) error {
		if f == nil {
			return errors.New("client factory is nil")
		}
		c.NewClient = f
		return nil
	}
}
