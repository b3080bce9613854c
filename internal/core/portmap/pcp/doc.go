// Package pcp 实现 Port Control Protocol (RFC 6887) 客户端
//
// 每个 Gateway 实例对应一个网关地址，持有一个绑定到客户端端口 5350 的
// UDP 套接字和一个单飞 FIFO 请求队列：
//
//   - codec.go：请求头、MAP 报文体的编码与响应解码
//   - transport.go：套接字生命周期 Disconnected → Connecting → Listening / Closed
//   - dispatcher.go：请求排队、nonce 校验、超时、重传、放弃
//   - gateway.go：映射生命周期（选项合并、自动续期、删除、停止）
//   - mapall.go：对每个本地地址尝试映射
//
// 使用示例：
//
//	gw, err := pcp.NewGateway("192.168.1.1")
//	if err != nil {
//	    return err
//	}
//	defer gw.Stop(ctx, nil)
//
//	m, err := gw.Map(ctx, 4001, "192.168.1.10", &types.MapOptions{Protocol: types.ProtocolUDP})
//
// 响应按请求顺序匹配，同一网关的并发调用严格按调用顺序处理。
// ExternalIP 不受支持，返回 types.ErrUnsupportedOperation。
package pcp
