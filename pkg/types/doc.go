// Package types 定义 go-natmap 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - portmap.go - Protocol, MapOptions, PortMapping
//   - events.go  - 网关与映射生命周期事件
//   - errors.go  - 跨协议引擎共享的错误类型
package types
