package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 环境变量名（均带 EnvPrefix 前缀）
const (
	EnvPrefix = "NATMAP_"

	EnvProtocol    = "PROTOCOL"
	EnvGateway     = "GATEWAY"
	EnvType        = "TYPE"
	EnvTTL         = "TTL"
	EnvDescription = "DESCRIPTION"
	EnvAutoRefresh = "AUTO_REFRESH"
	EnvClientPort  = "PCP_CLIENT_PORT"
	EnvServerPort  = "PCP_SERVER_PORT"
	EnvVerifyNonce = "PCP_VERIFY_NONCE"
	EnvLogLevel    = "LOG_LEVEL"
)

// LookupFunc 环境变量查询函数，签名与 os.LookupEnv 相同
type LookupFunc func(key string) (string, bool)

// ApplyEnv 用 NATMAP_* 环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。无法解析的值返回错误，
// 已成功应用的覆盖保留。
func ApplyEnv(cfg *PortMapConfig, lookup LookupFunc) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvProtocol); ok {
		cfg.Protocol = v
	}
	if v, ok := get(EnvGateway); ok {
		cfg.Gateway = v
	}
	if v, ok := get(EnvType); ok {
		cfg.Mapping.Type = v
	}
	if v, ok := get(EnvDescription); ok {
		cfg.Mapping.Description = v
	}
	if v, ok := get(EnvTTL); ok {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvTTL, err)
		}
		cfg.Mapping.TTL = Duration(d)
	}
	if v, ok := get(EnvAutoRefresh); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvAutoRefresh, err)
		}
		cfg.Mapping.AutoRefresh = b
	}
	if v, ok := get(EnvClientPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvClientPort, err)
		}
		cfg.PCP.ClientPort = port
	}
	if v, ok := get(EnvServerPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvServerPort, err)
		}
		cfg.PCP.ServerPort = port
	}
	if v, ok := get(EnvVerifyNonce); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvVerifyNonce, err)
		}
		cfg.PCP.VerifyNonce = b
	}
	return nil
}

// parseSeconds 解析时长，纯数字按秒处理（"7200" 与 "2h" 等价）
func parseSeconds(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
