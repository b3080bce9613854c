package main

import (
	"flag"
	"os"

	"github.com/dep2p/go-natmap/config"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// loadConfig 按 配置文件 → NATMAP_* 环境变量 → 命令行参数 的顺序合并配置
func loadConfig() (*config.PortMapConfig, error) {
	cfg := config.DefaultPortMapConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if isFlagSet("gateway") {
		cfg.Gateway = *gateway
	}
	if isFlagSet("kind") {
		cfg.Protocol = *kind
	}
	if isFlagSet("type") {
		cfg.Mapping.Type = *mapType
	}
	if isFlagSet("ttl") {
		cfg.Mapping.TTL = config.Duration(*ttl)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
