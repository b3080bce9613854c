// Package interfaces 定义 go-natmap 的公共接口
//
// 一个接口文件对应一个实现目录：
//   - portmap.go  - 端口映射能力（internal/core/portmap/{pcp,natpmp,upnp}）
//   - eventbus.go - 事件总线（internal/core/eventbus）
package interfaces
