// Package lifecycle 提供各端口映射引擎共享的映射生命周期工具
//
// 包括：
//   - 选项解析：调用级选项 → 网关级默认值 → 库默认值
//   - 续期调度：按本地端口维护续期定时器（Scheduler）
//   - 多地址映射：对每个本地地址依次尝试映射（MapAcross）
//
// PCP、NAT-PMP、UPnP 引擎共用这些工具，以保证相同的选项语义、
// 续期时机和 Stop 行为。
package lifecycle
