// Package portmap 提供端口映射门面服务
//
// Service 为每个网关地址持有一个协议引擎（PCP、NAT-PMP 或 UPnP），
// 引擎共享同一个事件总线与 PCP 指标。同一网关地址重复获取返回同一个引擎，
// 因此自动续期和 Stop 语义按网关生效。
//
// # 使用示例
//
//	svc, err := portmap.NewService(portmap.DefaultConfig(), bus, nil)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close(context.Background())
//
//	gw, err := svc.Gateway("192.168.1.1")
//	m, err := gw.Map(ctx, 4001, "", &types.MapOptions{Protocol: types.ProtocolUDP})
package portmap

import "github.com/dep2p/go-natmap/pkg/lib/log"

var logger = log.Logger("portmap")
