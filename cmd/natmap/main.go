// Package main 提供 natmap 命令行入口
//
// 在指定网关上为一个本地端口创建映射，保持自动续期直到收到 SIGINT/SIGTERM，
// 退出时删除映射。
//
//	natmap -gateway 192.168.1.1 -port 4001 -type udp
//	natmap -kind upnp -gateway http://192.168.1.1:5000/rootDesc.xml -port 4001 -all
//	natmap -gateway 192.168.1.1 -port 4001 -unmap
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/go-natmap"
	"github.com/dep2p/go-natmap/config"
	"github.com/dep2p/go-natmap/pkg/lib/log"
)

var logger = log.Logger("natmap/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	gateway    = flag.String("gateway", "", "网关地址（PCP/NAT-PMP 为 IP，UPnP 为根描述 URL）")
	kind       = flag.String("kind", "", "网关协议 (pcp/natpmp/upnp)")
	localPort  = flag.Int("port", 0, "要映射的本地端口")
	mapType    = flag.String("type", "", "传输协议 (tcp/udp)")
	ttl        = flag.Duration("ttl", 0, "请求的映射租期")
	localHost  = flag.String("host", "", "本地地址（默认自动选择）")
	mapAll     = flag.Bool("all", false, "为每个本地地址分别映射")
	unmap      = flag.Bool("unmap", false, "删除映射后退出")
	configFile = flag.String("config", "", "配置文件路径")
	logLevel   = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(natmap.VersionInfo())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if err := setupLogging(); err != nil {
		return err
	}
	if cfg.Gateway == "" {
		return errors.New("未指定网关（-gateway 或 NATMAP_GATEWAY）")
	}
	if *localPort <= 0 || *localPort > 65535 {
		return fmt.Errorf("无效的本地端口: %d", *localPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := natmap.New(ctx, natmap.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			fmt.Fprintf(os.Stderr, "关闭时删除映射失败: %v\n", err)
		}
	}()

	gw, err := client.DefaultGateway()
	if err != nil {
		return err
	}

	if *unmap {
		if err := gw.Unmap(ctx, *localPort, nil); err != nil {
			return fmt.Errorf("删除映射失败: %w", err)
		}
		fmt.Printf("已删除 %s 上端口 %d 的映射\n", cfg.Gateway, *localPort)
		return nil
	}

	if *mapAll {
		n := 0
		for m, err := range gw.MapAll(ctx, *localPort, nil) {
			if err != nil {
				return fmt.Errorf("映射失败: %w", err)
			}
			printMapping(m)
			n++
		}
		logger.Info("多地址映射完成", "count", n)
	} else {
		m, err := gw.Map(ctx, *localPort, *localHost, nil)
		if err != nil {
			return fmt.Errorf("映射失败: %w", err)
		}
		printMapping(m)
	}

	if ip, err := gw.ExternalIP(ctx, nil); err == nil {
		fmt.Printf("网关外部地址: %s\n", ip)
	} else if !errors.Is(err, natmap.ErrUnsupportedOperation) {
		logger.Warn("获取外部地址失败", "err", err)
	}

	fmt.Println("映射已建立，按 Ctrl+C 退出")
	<-ctx.Done()
	fmt.Println("\n正在删除映射...")
	return nil
}

func printMapping(m *natmap.PortMapping) {
	fmt.Printf("%s (lifetime %s)\n", m.String(), m.Lifetime)
}

func setupLogging() error {
	level := *logLevel
	if level == "" {
		level = os.Getenv(config.EnvPrefix + config.EnvLogLevel)
	}
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("无效的日志级别: %w", err)
	}
	log.SetOutputWithLevel(os.Stderr, lvl)
	return nil
}
