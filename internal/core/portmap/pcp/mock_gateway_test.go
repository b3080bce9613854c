package pcp

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natmap/internal/util/addrutil"
	"github.com/dep2p/go-natmap/pkg/types"
)

// testExternalIP 测试网关分配的外部地址
var testExternalIP = net.ParseIP("203.0.113.7").To4()

// mockGateway 回环地址上的 PCP 测试网关
type mockGateway struct {
	t    *testing.T
	conn *net.UDPConn

	mu       sync.Mutex
	requests []*MapRequest
	client   *net.UDPAddr
	handler  func(req *MapRequest) []byte
}

// newMockGateway 启动测试网关，默认对每个请求回显成功响应
func newMockGateway(t *testing.T) *mockGateway {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	m := &mockGateway{
		t:    t,
		conn: conn,
		handler: func(req *MapRequest) []byte {
			return echoResponse(req, ResultSuccess)
		},
	}
	go m.serve()
	t.Cleanup(func() { _ = conn.Close() })
	return m
}

func (m *mockGateway) port() int {
	return m.conn.LocalAddr().(*net.UDPAddr).Port
}

func (m *mockGateway) serve() {
	buf := make([]byte, MaxPacketSize)
	for {
		n, from, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := decodeMapRequest(buf[:n])
		if err != nil {
			continue
		}

		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.client = from
		handler := m.handler
		m.mu.Unlock()

		if resp := handler(req); resp != nil {
			_, _ = m.conn.WriteToUDP(resp, from)
		}
	}
}

// setHandler 替换请求处理函数，返回 nil 表示不响应
func (m *mockGateway) setHandler(h func(req *MapRequest) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// hold 不响应任何请求
func (m *mockGateway) hold() {
	m.setHandler(func(*MapRequest) []byte { return nil })
}

// send 向最近一个请求的来源发送报文
func (m *mockGateway) send(b []byte) {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	require.NotNil(m.t, client)
	_, err := m.conn.WriteToUDP(b, client)
	require.NoError(m.t, err)
}

func (m *mockGateway) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockGateway) request(i int) *MapRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func (m *mockGateway) last() *MapRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// waitCount 等待网关收到 n 个请求
func (m *mockGateway) waitCount(n int) {
	m.t.Helper()
	require.Eventually(m.t, func() bool { return m.count() >= n }, 3*time.Second, 5*time.Millisecond)
}

// echoResponse 构造回显请求字段的 MAP 响应
func echoResponse(req *MapRequest, code ResultCode) []byte {
	return EncodeMapResponse(&Response{
		Version:      Version,
		Opcode:       OpMap,
		ResultCode:   code,
		Lifetime:     req.Lifetime,
		Epoch:        1,
		Nonce:        req.Nonce,
		Protocol:     req.Protocol,
		InternalPort: req.InternalPort,
		ExternalPort: req.SuggestedExternalPort,
		ExternalIP:   testExternalIP,
	})
}

// decodeMapRequest 解析 MAP 请求报文
func decodeMapRequest(b []byte) (*MapRequest, error) {
	if len(b) < HeaderSize+MapBodySize {
		return nil, &MalformedResponseError{Len: len(b)}
	}
	if b[0] != Version {
		return nil, &ProtocolVersionError{Got: b[0], Want: Version}
	}
	if Opcode(b[1]&0x7f) != OpMap || b[1]&responseBit != 0 {
		return nil, &UnsupportedOpcodeError{Opcode: b[1]}
	}

	clientIP := addrutil.From16(b[8:24])
	req := &MapRequest{
		Lifetime: time.Duration(binary.BigEndian.Uint32(b[4:8])) * time.Second,
		ClientIP: clientIP,
		Family:   addrutil.FamilyOfIP(clientIP),
	}
	body := b[HeaderSize:]
	copy(req.Nonce[:], body[0:12])
	req.Protocol = protocolFromNumber(body[12])
	req.InternalPort = int(binary.BigEndian.Uint16(body[16:18]))
	req.SuggestedExternalPort = int(binary.BigEndian.Uint16(body[18:20]))
	req.SuggestedExternalIP = addrutil.From16(body[20:36])
	return req, nil
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// newTestGateway 创建连接到测试网关的 Gateway，测试结束时停止
func newTestGateway(t *testing.T, m *mockGateway, opts ...Option) *Gateway {
	t.Helper()

	base := []Option{
		WithClientPort(0),
		WithServerPort(m.port()),
		WithRetransmitInterval(0),
		WithDefaults(&types.MapOptions{AutoRefresh: types.Bool(false)}),
	}
	g, err := NewGateway("127.0.0.1", append(base, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := testContext()
		defer cancel()
		_ = g.Stop(ctx, nil)
	})
	return g
}
