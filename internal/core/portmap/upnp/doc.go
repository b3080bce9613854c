// Package upnp 实现 UPnP IGD 端口映射引擎
//
// upnp 通过路由器的根描述文件地址连接 IGD 服务（WANIPConnection2、
// WANIPConnection1、WANPPPConnection1，依次尝试 IGDv2 和 IGDv1），
// 不做 SSDP 网关发现。
//
// # 功能
//
//   - 创建端口映射（NewInternalClient 为本地地址）
//   - 自动续期
//   - 删除映射
//   - 获取外部 IP
//   - MapAll：对每个本地 IPv4 地址分别创建映射
//
// # 使用示例
//
//	gw, err := upnp.NewGateway("http://192.168.1.1:5000/rootDesc.xml")
//	if err != nil {
//	    return err
//	}
//	defer gw.Stop(ctx, nil)
//
//	m, err := gw.Map(ctx, 4001, "192.168.1.10", nil)
package upnp
