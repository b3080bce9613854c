// Package config 提供 go-natmap 的声明式配置
//
// 配置以 JSON 描述，时长字段使用 Duration（"30s"、"2h"）。
// 加载顺序：默认值 → JSON 文件 → NATMAP_* 环境变量，命令行参数由调用方最后应用。
//
// 使用示例：
//
//	cfg, err := config.LoadFile("natmap.json")
//	if err != nil {
//	    return err
//	}
//	config.ApplyEnv(cfg, os.LookupEnv)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ============================================================================
//                              配置结构
// ============================================================================

// PortMapConfig 端口映射完整配置
type PortMapConfig struct {
	// Protocol 网关协议类型：pcp、natpmp、upnp
	Protocol string `json:"protocol"`

	// Gateway 网关地址（PCP/NAT-PMP 为 IP，UPnP 为根描述 URL）
	Gateway string `json:"gateway,omitempty"`

	// Mapping 网关级映射选项默认值
	Mapping MappingConfig `json:"mapping"`

	PCP    PCPConfig    `json:"pcp"`
	NATPMP NATPMPConfig `json:"natpmp"`
	UPnP   UPnPConfig   `json:"upnp"`
}

// MappingConfig 映射选项
type MappingConfig struct {
	// Type 传输协议：tcp 或 udp
	Type string `json:"type"`

	// TTL 请求的租期
	TTL Duration `json:"ttl"`

	Description string `json:"description"`

	// AutoRefresh 是否自动续期
	AutoRefresh bool `json:"auto_refresh"`

	RefreshTimeout   Duration `json:"refresh_timeout"`
	RefreshThreshold Duration `json:"refresh_threshold"`
}

// PCPConfig PCP 引擎配置
type PCPConfig struct {
	// ClientPort 客户端端口，0 表示系统分配
	ClientPort int `json:"client_port"`
	ServerPort int `json:"server_port"`

	// RequestTimeout 在途请求超时，0 表示不超时
	RequestTimeout Duration `json:"request_timeout"`

	// RetransmitInterval 初始重传间隔，0 表示不重传
	RetransmitInterval Duration `json:"retransmit_interval"`

	VerifyNonce bool `json:"verify_nonce"`
}

// NATPMPConfig NAT-PMP 引擎配置
type NATPMPConfig struct {
	Timeout Duration `json:"timeout"`
}

// UPnPConfig UPnP 引擎配置
type UPnPConfig struct {
	Timeout Duration `json:"timeout"`
}

// DefaultPortMapConfig 返回默认配置
func DefaultPortMapConfig() *PortMapConfig {
	return &PortMapConfig{
		Protocol: "pcp",
		Mapping: MappingConfig{
			Type:             "tcp",
			TTL:              Duration(7200 * time.Second),
			Description:      "go-natmap",
			AutoRefresh:      true,
			RefreshTimeout:   Duration(10 * time.Second),
			RefreshThreshold: Duration(60 * time.Second),
		},
		PCP: PCPConfig{
			ClientPort:         5350,
			ServerPort:         5351,
			RequestTimeout:     Duration(30 * time.Second),
			RetransmitInterval: Duration(3 * time.Second),
			VerifyNonce:        true,
		},
		NATPMP: NATPMPConfig{Timeout: Duration(5 * time.Second)},
		UPnP:   UPnPConfig{Timeout: Duration(5 * time.Second)},
	}
}

// ============================================================================
//                              加载
// ============================================================================

// FromJSON 从 JSON 解析配置，未出现的字段保留默认值
func FromJSON(data []byte) (*PortMapConfig, error) {
	cfg := DefaultPortMapConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载配置
func LoadFile(path string) (*PortMapConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return nil, err
	}
	return FromJSON(data)
}

// ToJSON 序列化配置
func (c *PortMapConfig) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
