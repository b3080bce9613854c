// Package eventbus 实现进程内事件总线
//
// 协议引擎通过组合持有 EventBus 广播网关级错误与映射生命周期事件，
// 而不是继承某个事件发射基类。
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//
//	sub, _ := bus.Subscribe(new(types.EvtGatewayError))
//	defer sub.Close()
//
//	em, _ := bus.Emitter(new(types.EvtGatewayError))
//	defer em.Close()
//	_ = em.Emit(types.EvtGatewayError{Gateway: "192.168.1.1", Err: err})
//
// # 并发安全
//
// 订阅与发射均可并发调用。订阅者缓冲区满时事件被丢弃，发射方永不阻塞。
package eventbus
