// Package natmap 提供家用与运营商级 NAT 网关的端口映射客户端
//
// natmap 通过 PCP（RFC 6887）在网关上创建、续期和删除端口映射，
// 并提供 NAT-PMP 与 UPnP IGD 两个同能力的引擎。
//
// # 快速开始
//
//	client, err := natmap.New(ctx, natmap.WithConfig(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	gw, err := client.Gateway("192.168.1.1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m, err := gw.Map(ctx, 4001, "", &natmap.MapOptions{Protocol: natmap.ProtocolUDP})
//
// 默认开启自动续期：映射在租期到期前重新请求，直到 Unmap 或 Close。
//
// # 多地址映射
//
//	for m, err := range gw.MapAll(ctx, 4001, nil) {
//	    if err != nil {
//	        // 所有本地地址都失败
//	        break
//	    }
//	    fmt.Println(m)
//	}
//
// # 事件
//
// Client.EventBus() 发布 EvtMappingCreated、EvtMappingRefreshed、
// EvtMappingRefreshFailed、EvtMappingDeleted 和 EvtGatewayError。
package natmap
