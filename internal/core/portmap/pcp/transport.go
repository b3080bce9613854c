package pcp

import (
	"net"
	"sync"

	"github.com/dep2p/go-natmap/internal/util/addrutil"
)

// ============================================================================
//                              传输状态
// ============================================================================

// transportState 传输层状态
type transportState int

const (
	stateDisconnected transportState = iota
	stateConnecting
	stateListening
	stateClosed
)

func (s transportState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateListening:
		return "listening"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transportHandler 接收传输层事件
//
// 回调在不持有传输层锁的情况下调用。
type transportHandler interface {
	onListening()
	onDatagram(b []byte)
	onTransportError(err *TransportError)
}

// ============================================================================
//                              transport
// ============================================================================

// transport 每个网关一个 UDP 套接字
//
// 套接字绑定到固定的客户端端口，只接收来自网关服务端口的报文。
// 关闭后不会自动重连，下一次发送请求时重新 connect。
type transport struct {
	family    addrutil.Family
	localPort int
	gateway   *net.UDPAddr
	handler   transportHandler

	mu    sync.Mutex
	state transportState
	conn  *net.UDPConn
	gen   uint64
}

func newTransport(family addrutil.Family, localPort int, gateway *net.UDPAddr, h transportHandler) *transport {
	return &transport{
		family:    family,
		localPort: localPort,
		gateway:   gateway,
		handler:   h,
	}
}

// currentState 返回当前状态
func (t *transport) currentState() transportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// connect 异步绑定套接字，连接中或已监听时为空操作
func (t *transport) connect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == stateConnecting || t.state == stateListening {
		return
	}
	t.state = stateConnecting
	t.gen++
	go t.open(t.gen)
}

func (t *transport) open(gen uint64) {
	conn, err := net.ListenUDP(t.family.UDPNetwork(), &net.UDPAddr{Port: t.localPort})

	t.mu.Lock()
	if t.gen != gen || t.state != stateConnecting {
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		t.state = stateClosed
		t.mu.Unlock()
		logger.Debug("绑定套接字失败", "gateway", t.gateway.String(), "port", t.localPort, "err", err)
		t.handler.onTransportError(&TransportError{Op: "listen", Err: err})
		return
	}
	t.conn = conn
	t.state = stateListening
	t.mu.Unlock()

	logger.Debug("套接字已监听", "gateway", t.gateway.String(), "local", conn.LocalAddr().String())
	go t.readLoop(conn)
	t.handler.onListening()
}

// send 向网关服务端口发送报文
func (t *transport) send(b []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return &TransportError{Op: "send", Err: net.ErrClosed}
	}
	if _, err := conn.WriteToUDP(b, t.gateway); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// localAddr 返回套接字本地地址，未监听时返回 nil
func (t *transport) localAddr() *net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	addr, _ := t.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

func (t *transport) readLoop(conn *net.UDPConn) {
	buf := make([]byte, MaxPacketSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.mu.Lock()
			current := t.conn == conn
			if current {
				t.conn = nil
				t.state = stateClosed
			}
			t.mu.Unlock()
			_ = conn.Close()

			if current {
				t.handler.onTransportError(&TransportError{Op: "read", Err: err})
			}
			return
		}

		if !from.IP.Equal(t.gateway.IP) || from.Port != t.gateway.Port {
			logger.Debug("忽略非网关来源的报文", "gateway", t.gateway.String(), "from", from.String())
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		t.handler.onDatagram(data)
	}
}

// close 关闭套接字并进入 Closed 状态
func (t *transport) close() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.state = stateClosed
	t.gen++
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}
