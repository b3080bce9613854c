package pcp

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// maxRetransmitInterval 重传间隔上限（RFC 6887 MRT）
const maxRetransmitInterval = 1024 * time.Second

// ============================================================================
//                              pendingRequest
// ============================================================================

// result 请求的最终结果
type result struct {
	resp *Response
	err  error
}

// pendingRequest 排队中的请求
//
// 从入队到被响应、失败或放弃为止由 dispatcher 独占。结果只投递一次。
type pendingRequest struct {
	op      Opcode
	payload []byte
	nonce   Nonce

	done chan result

	sent      bool
	sentAt    time.Time
	abandoned bool
	finished  bool
}

// ============================================================================
//                              dispatcher
// ============================================================================

// dispatcher 单飞 FIFO 请求队列
//
// 同一时刻最多一个请求在途。响应按队列顺序匹配队首请求；启用 nonce
// 校验时，nonce 与队首不一致的响应视为过期报文丢弃，不出队。
//
// 锁顺序：d.mu → t.mu。传输层回调不持有 t.mu。
type dispatcher struct {
	gateway   string
	transport *transport

	clock              clock.Clock
	requestTimeout     time.Duration
	retransmitInterval time.Duration
	verifyNonce        bool
	metrics            *Metrics

	// onGatewayError 没有在途请求可承接的连接级错误
	onGatewayError func(err error)

	mu              sync.Mutex
	queue           []*pendingRequest
	inFlight        *pendingRequest
	timeoutTimer    *clock.Timer
	retransmitTimer *clock.Timer
	retransmitDelay time.Duration
	closed          bool
}

// enqueue 将请求追加到队尾并尝试分发
func (d *dispatcher) enqueue(op Opcode, payload []byte, nonce Nonce) (*pendingRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrGatewayStopped
	}

	req := &pendingRequest{
		op:      op,
		payload: payload,
		nonce:   nonce,
		done:    make(chan result, 1),
	}
	d.queue = append(d.queue, req)
	d.metrics.RecordRequest(d.gateway, op)
	d.metrics.SetQueueDepth(d.gateway, len(d.queue))

	d.dispatchNextLocked()
	return req, nil
}

// wait 等待请求结果，ctx 结束时放弃请求
func (d *dispatcher) wait(ctx context.Context, req *pendingRequest) (*Response, error) {
	select {
	case res := <-req.done:
		return res.resp, res.err
	case <-ctx.Done():
		d.abandon(req)
		// 放弃与投递竞争时以已投递的结果为准
		select {
		case res := <-req.done:
			return res.resp, res.err
		default:
		}
		return nil, ctx.Err()
	}
}

// abandon 未发送的请求直接出队；在途请求标记为放弃，其结果被丢弃
func (d *dispatcher) abandon(req *pendingRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.finished {
		return
	}
	if req.sent {
		req.abandoned = true
		return
	}
	for i, r := range d.queue {
		if r == req {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}
	req.finished = true
	d.metrics.SetQueueDepth(d.gateway, len(d.queue))
}

// dispatchNextLocked 发送队首请求
//
// 队列为空、已有在途请求或已关闭时为空操作；传输层未监听时触发 connect，
// 监听后由 onListening 继续分发。
func (d *dispatcher) dispatchNextLocked() {
	for !d.closed && d.inFlight == nil && len(d.queue) > 0 {
		if d.transport.currentState() != stateListening {
			d.transport.connect()
			return
		}

		head := d.queue[0]
		head.sent = true
		head.sentAt = d.clock.Now()
		d.inFlight = head
		d.retransmitDelay = d.retransmitInterval
		d.armTimersLocked(head)

		if err := d.transport.send(head.payload); err != nil {
			logger.Debug("发送请求失败", "gateway", d.gateway, "err", err)
			d.transport.close()
			d.popLocked(head, result{err: err}, "transport_error")
		}
	}
}

func (d *dispatcher) armTimersLocked(req *pendingRequest) {
	if d.requestTimeout > 0 {
		d.timeoutTimer = d.clock.AfterFunc(d.requestTimeout, func() { d.onTimeout(req) })
	}
	if d.retransmitDelay > 0 {
		d.retransmitTimer = d.clock.AfterFunc(d.retransmitDelay, func() { d.onRetransmit(req) })
	}
}

func (d *dispatcher) stopTimersLocked() {
	if d.timeoutTimer != nil {
		d.timeoutTimer.Stop()
		d.timeoutTimer = nil
	}
	if d.retransmitTimer != nil {
		d.retransmitTimer.Stop()
		d.retransmitTimer = nil
	}
}

// popLocked 移除队首请求并投递结果
func (d *dispatcher) popLocked(req *pendingRequest, res result, outcome string) {
	if len(d.queue) > 0 && d.queue[0] == req {
		d.queue = d.queue[1:]
	}
	if d.inFlight == req {
		d.inFlight = nil
		d.stopTimersLocked()
	}

	var rtt time.Duration
	if req.sent {
		rtt = d.clock.Since(req.sentAt)
	}
	d.metrics.RecordResponse(d.gateway, outcome, rtt)
	d.metrics.SetQueueDepth(d.gateway, len(d.queue))
	d.finishLocked(req, res)
}

func (d *dispatcher) finishLocked(req *pendingRequest, res result) {
	if req.finished {
		return
	}
	req.finished = true
	if req.abandoned {
		logger.Debug("丢弃已放弃请求的结果", "gateway", d.gateway, "opcode", req.op.String(), "err", res.err)
		return
	}
	req.done <- res
}

// ============================================================================
//                              传输层回调
// ============================================================================

func (d *dispatcher) onListening() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatchNextLocked()
}

func (d *dispatcher) onDatagram(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	head := d.inFlight
	if head == nil {
		logger.Debug("忽略未请求的报文", "gateway", d.gateway, "len", len(b))
		d.metrics.RecordStale(d.gateway)
		return
	}

	resp, err := ParseResponse(b, head.op)
	if err == nil && d.verifyNonce && resp.HasBody && resp.Nonce != head.nonce {
		logger.Debug("丢弃 nonce 不匹配的报文", "gateway", d.gateway)
		d.metrics.RecordStale(d.gateway)
		return
	}

	switch {
	case err != nil:
		d.popLocked(head, result{err: err}, "protocol_error")
	case resp.Err() != nil:
		d.popLocked(head, result{err: resp.Err()}, resp.ResultCode.String())
	default:
		d.popLocked(head, result{resp: resp}, "success")
	}
	d.dispatchNextLocked()
}

func (d *dispatcher) onTransportError(terr *TransportError) {
	d.mu.Lock()
	notify := true
	switch {
	case d.inFlight != nil:
		d.popLocked(d.inFlight, result{err: terr}, "transport_error")
		notify = false
	case terr.Op == "listen":
		// 套接字无法绑定，排队的请求不会再被发送
		d.drainLocked(terr)
	}
	d.dispatchNextLocked()
	d.mu.Unlock()

	if notify && d.onGatewayError != nil {
		d.onGatewayError(terr)
	}
}

// drainLocked 以 err 结束所有排队请求
func (d *dispatcher) drainLocked(err error) {
	d.stopTimersLocked()
	d.inFlight = nil

	drained := d.queue
	d.queue = nil
	for _, req := range drained {
		d.metrics.RecordResponse(d.gateway, "transport_error", 0)
		d.finishLocked(req, result{err: err})
	}
	d.metrics.SetQueueDepth(d.gateway, 0)
}

// ============================================================================
//                              定时器回调
// ============================================================================

func (d *dispatcher) onTimeout(req *pendingRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inFlight != req {
		return
	}
	logger.Debug("请求超时", "gateway", d.gateway, "opcode", req.op.String())
	d.metrics.RecordTimeout(d.gateway)
	d.popLocked(req, result{err: ErrRequestTimeout}, "timeout")
	d.dispatchNextLocked()
}

func (d *dispatcher) onRetransmit(req *pendingRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inFlight != req {
		return
	}
	d.retransmitDelay *= 2
	if d.retransmitDelay > maxRetransmitInterval {
		d.retransmitDelay = maxRetransmitInterval
	}
	d.retransmitTimer = d.clock.AfterFunc(d.retransmitDelay, func() { d.onRetransmit(req) })

	if err := d.transport.send(req.payload); err != nil {
		logger.Debug("重传失败", "gateway", d.gateway, "err", err)
		d.transport.close()
		d.popLocked(req, result{err: err}, "transport_error")
		d.dispatchNextLocked()
		return
	}
	d.metrics.RecordRetransmit(d.gateway)
}

// ============================================================================
//                              重置与关闭
// ============================================================================

// reset 丢弃所有排队请求（不等待在途响应），以 err 结束它们
func (d *dispatcher) reset(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drainLocked(err)
}

// close 拒绝后续请求，结束排队请求并关闭套接字
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.drainLocked(ErrGatewayStopped)
	d.mu.Unlock()

	d.transport.close()
}

// pending 返回排队（含在途）请求数
func (d *dispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
