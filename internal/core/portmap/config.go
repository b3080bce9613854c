package portmap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dep2p/go-natmap/internal/core/portmap/natpmp"
	"github.com/dep2p/go-natmap/internal/core/portmap/pcp"
	"github.com/dep2p/go-natmap/internal/core/portmap/upnp"
	"github.com/dep2p/go-natmap/pkg/types"
)

// Kind 端口映射协议类型
type Kind string

const (
	// KindPCP Port Control Protocol（RFC 6887）
	KindPCP Kind = "pcp"
	// KindNATPMP NAT-PMP（RFC 6886）
	KindNATPMP Kind = "natpmp"
	// KindUPnP UPnP IGD
	KindUPnP Kind = "upnp"
)

// ParseKind 解析协议类型，接受 "nat-pmp" 作为 "natpmp" 的别名
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pcp":
		return KindPCP, nil
	case "natpmp", "nat-pmp":
		return KindNATPMP, nil
	case "upnp":
		return KindUPnP, nil
	default:
		return "", &types.ValidationError{Field: "gateway kind", Value: s}
	}
}

// PCPConfig PCP 引擎参数
type PCPConfig struct {
	ClientPort         int
	ServerPort         int
	RequestTimeout     time.Duration
	RetransmitInterval time.Duration
	VerifyNonce        bool
}

// Config 门面服务配置
type Config struct {
	// Kind 默认协议类型
	Kind Kind

	// Defaults 所有网关共享的网关级选项默认值
	Defaults *types.MapOptions

	PCP           PCPConfig
	NATPMPTimeout time.Duration
	UPnPTimeout   time.Duration

	// 追加到各引擎的选项，在上面的字段之后应用
	PCPOptions    []pcp.Option
	NATPMPOptions []natpmp.Option
	UPnPOptions   []upnp.Option
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Kind: KindPCP,
		PCP: PCPConfig{
			ClientPort:         pcp.ClientPort,
			ServerPort:         pcp.ServerPort,
			RequestTimeout:     pcp.DefaultRequestTimeout,
			RetransmitInterval: pcp.DefaultRetransmitInterval,
			VerifyNonce:        true,
		},
		NATPMPTimeout: natpmp.DefaultTimeout,
		UPnPTimeout:   upnp.DefaultTimeout,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.PCP.ClientPort < 0 || c.PCP.ClientPort > 65535 {
		return fmt.Errorf("pcp client port out of range: %d", c.PCP.ClientPort)
	}
	if c.PCP.ServerPort <= 0 || c.PCP.ServerPort > 65535 {
		return fmt.Errorf("pcp server port out of range: %d", c.PCP.ServerPort)
	}
	if c.PCP.RequestTimeout < 0 || c.PCP.RetransmitInterval < 0 {
		return fmt.Errorf("pcp timers must not be negative")
	}
	if c.NATPMPTimeout <= 0 {
		return fmt.Errorf("natpmp timeout must be positive")
	}
	if c.UPnPTimeout <= 0 {
		return fmt.Errorf("upnp timeout must be positive")
	}
	if c.Defaults != nil && c.Defaults.Protocol != "" {
		if _, err := c.Defaults.Protocol.Normalize(); err != nil {
			return err
		}
	}
	return nil
}
