// Package natpmp 提供 NAT-PMP 端口映射引擎
//
// NAT-PMP (NAT Port Mapping Protocol, RFC 6886) 是 PCP 的前身：
// - 基于 UDP
// - 只支持 IPv4 网关
// - 请求不携带客户端地址，映射总是指向发送请求的主机
//
// Gateway 实现与 PCP 引擎相同的 PortMapper 能力接口，共享选项解析、
// 自动续期和 Stop 语义。
package natpmp
