package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate 验证配置
func (c *PortMapConfig) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	switch strings.ToLower(c.Protocol) {
	case "pcp", "natpmp", "nat-pmp", "upnp":
	default:
		return fmt.Errorf("invalid protocol %q: must be pcp, natpmp or upnp", c.Protocol)
	}

	if err := c.Mapping.Validate(); err != nil {
		return fmt.Errorf("mapping: %w", err)
	}
	if err := c.PCP.Validate(); err != nil {
		return fmt.Errorf("pcp: %w", err)
	}
	if c.NATPMP.Timeout <= 0 {
		return errors.New("natpmp: timeout must be positive")
	}
	if c.UPnP.Timeout <= 0 {
		return errors.New("upnp: timeout must be positive")
	}
	return nil
}

// Validate 验证映射选项
func (c MappingConfig) Validate() error {
	switch strings.ToLower(c.Type) {
	case "tcp", "udp":
	default:
		return fmt.Errorf("invalid type %q: must be tcp or udp", c.Type)
	}
	if c.TTL < 0 {
		return errors.New("ttl must not be negative")
	}
	if c.TTL > 0 && c.TTL < Duration(time.Second) {
		return fmt.Errorf("ttl %s too short: must be 0 or at least 1s", time.Duration(c.TTL))
	}
	if c.RefreshTimeout < 0 || c.RefreshThreshold < 0 {
		return errors.New("refresh durations must not be negative")
	}
	return nil
}

// Validate 验证 PCP 配置
func (c PCPConfig) Validate() error {
	if c.ClientPort < 0 || c.ClientPort > 65535 {
		return fmt.Errorf("client port out of range: %d", c.ClientPort)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server port out of range: %d", c.ServerPort)
	}
	if c.RequestTimeout < 0 || c.RetransmitInterval < 0 {
		return errors.New("timers must not be negative")
	}
	return nil
}
