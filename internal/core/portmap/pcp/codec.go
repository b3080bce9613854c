package pcp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/dep2p/go-natmap/internal/util/addrutil"
	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              协议常量 (RFC 6887)
// ============================================================================

const (
	// Version 请求与响应使用的协议版本
	Version = 2

	// ClientPort 客户端固定源端口
	ClientPort = 5350

	// ServerPort 网关监听端口
	ServerPort = 5351

	// MaxPacketSize PCP 报文最大长度
	MaxPacketSize = 1100

	// HeaderSize 请求/响应公共头部长度
	HeaderSize = 24

	// MapBodySize MAP 操作码报文体长度
	MapBodySize = 36

	// MinLifetime 租期无法编码时使用的最小租期（秒）
	MinLifetime = 120

	responseBit = 0x80

	protoNumTCP = 6
	protoNumUDP = 17
)

// Opcode PCP 操作码
type Opcode uint8

const (
	// OpAnnounce ANNOUNCE 操作码
	OpAnnounce Opcode = 0
	// OpMap MAP 操作码
	OpMap Opcode = 1
	// OpPeer PEER 操作码
	OpPeer Opcode = 2
)

// String 返回操作码名称
func (o Opcode) String() string {
	switch o {
	case OpAnnounce:
		return "ANNOUNCE"
	case OpMap:
		return "MAP"
	case OpPeer:
		return "PEER"
	default:
		return fmt.Sprintf("OPCODE(%d)", uint8(o))
	}
}

// ============================================================================
//                              结果码
// ============================================================================

// ResultCode PCP 响应结果码
type ResultCode uint8

// ResultSuccess 成功
const ResultSuccess ResultCode = 0

var resultMessages = map[ResultCode]string{
	1:  "Unsupported version",
	2:  "Not authorized",
	3:  "Malformed request",
	4:  "Unsupported opcode",
	5:  "Unsupported option",
	6:  "Malformed option",
	7:  "Network failure",
	8:  "No resources",
	9:  "Unsupported protocol",
	10: "User exceeded quota",
	11: "Cannot provide external",
	12: "Address mismatch",
	13: "Excessive remote peers",
}

// String 返回结果码文本
func (c ResultCode) String() string {
	if c == ResultSuccess {
		return "Success"
	}
	if msg, ok := resultMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown result code %d", uint8(c))
}

// ============================================================================
//                              Nonce
// ============================================================================

// Nonce MAP 请求的映射随机数
type Nonce [12]byte

// NewNonce 生成密码学随机的 Nonce
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("generate nonce: %w", err)
	}
	return n, nil
}

// ============================================================================
//                              请求编码
// ============================================================================

// MapRequest MAP 请求
type MapRequest struct {
	// Lifetime 请求的租期，0 表示删除映射
	Lifetime time.Duration

	// ClientIP 写入头部的客户端地址，nil 时编码为该地址族的未指定地址
	ClientIP net.IP

	// Family 网关地址族
	Family addrutil.Family

	Nonce    Nonce
	Protocol types.Protocol

	InternalPort          int
	SuggestedExternalPort int

	// SuggestedExternalIP 建议的外部地址，nil 时编码为未指定地址
	SuggestedExternalIP net.IP
}

// EncodeMapRequest 将 MAP 请求编码为 60 字节报文
func EncodeMapRequest(req *MapRequest) ([]byte, error) {
	proto, err := protocolNumber(req.Protocol)
	if err != nil {
		return nil, err
	}
	if err := checkPort("internal port", req.InternalPort, false); err != nil {
		return nil, err
	}
	if err := checkPort("external port", req.SuggestedExternalPort, true); err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize+MapBodySize)
	buf[0] = Version
	buf[1] = byte(OpMap) & 0x7f
	binary.BigEndian.PutUint32(buf[4:8], lifetimeSeconds(req.Lifetime))
	putIP(buf[8:24], req.ClientIP, req.Family)

	body := buf[HeaderSize:]
	copy(body[0:12], req.Nonce[:])
	body[12] = proto
	binary.BigEndian.PutUint16(body[16:18], uint16(req.InternalPort))
	binary.BigEndian.PutUint16(body[18:20], uint16(req.SuggestedExternalPort))
	putIP(body[20:36], req.SuggestedExternalIP, req.Family)
	return buf, nil
}

// lifetimeSeconds 将租期编码为 32 位秒数，无法表示时回退到最小租期
//
// 0 只表示删除，不足 1 秒的正租期编码为 1。
func lifetimeSeconds(d time.Duration) uint32 {
	if d < 0 {
		return MinLifetime
	}
	secs := int64(d / time.Second)
	switch {
	case secs == 0 && d > 0:
		return 1
	case secs > math.MaxUint32:
		return MinLifetime
	}
	return uint32(secs)
}

func putIP(dst []byte, ip net.IP, family addrutil.Family) {
	var b [16]byte
	if ip == nil || ip.IsUnspecified() {
		b = addrutil.Zero16(family)
	} else {
		b = addrutil.To16(ip)
	}
	copy(dst, b[:])
}

func protocolNumber(p types.Protocol) (uint8, error) {
	p, err := p.Normalize()
	if err != nil {
		return 0, err
	}
	if p == types.ProtocolUDP {
		return protoNumUDP, nil
	}
	return protoNumTCP, nil
}

func protocolFromNumber(n uint8) types.Protocol {
	switch n {
	case protoNumTCP:
		return types.ProtocolTCP
	case protoNumUDP:
		return types.ProtocolUDP
	default:
		return types.Protocol(fmt.Sprintf("proto-%d", n))
	}
}

func checkPort(field string, port int, allowZero bool) error {
	if port < 0 || port > math.MaxUint16 || (port == 0 && !allowZero) {
		return &types.ValidationError{Field: field, Value: fmt.Sprint(port)}
	}
	return nil
}

// ============================================================================
//                              响应解码
// ============================================================================

// Response 解码后的 PCP 响应
type Response struct {
	Version    uint8
	Opcode     Opcode
	ResultCode ResultCode

	// Lifetime 网关分配的租期（错误响应中表示错误持续时间）
	Lifetime time.Duration

	// Epoch 网关纪元，用于检测网关重启
	Epoch uint32

	// HasBody 响应是否携带 MAP 报文体
	HasBody bool

	Nonce        Nonce
	Protocol     types.Protocol
	InternalPort int
	ExternalPort int
	ExternalIP   net.IP
}

// Err 结果码非零时返回 *GatewayResultError
func (r *Response) Err() error {
	if r.ResultCode == ResultSuccess {
		return nil
	}
	return &GatewayResultError{Code: r.ResultCode, Message: r.ResultCode.String()}
}

// ParseResponse 解析响应报文结构，不检查结果码
//
// 报文短于头部、版本不一致或操作码不是 op 的应答时返回协议错误，
// 不再继续解码。成功的 MAP 响应必须携带完整报文体。
func ParseResponse(b []byte, op Opcode) (*Response, error) {
	if len(b) < HeaderSize {
		return nil, &MalformedResponseError{Len: len(b)}
	}
	if b[0] != Version {
		return nil, &ProtocolVersionError{Got: b[0], Want: Version}
	}
	if b[1] != responseBit|byte(op) {
		return nil, &UnsupportedOpcodeError{Opcode: b[1]}
	}

	resp := &Response{
		Version:    b[0],
		Opcode:     op,
		ResultCode: ResultCode(b[3]),
		Lifetime:   time.Duration(binary.BigEndian.Uint32(b[4:8])) * time.Second,
		Epoch:      binary.BigEndian.Uint32(b[8:12]),
	}

	if op != OpMap {
		return resp, nil
	}
	if len(b) < HeaderSize+MapBodySize {
		if resp.ResultCode == ResultSuccess {
			return nil, &MalformedResponseError{Len: len(b)}
		}
		return resp, nil
	}

	body := b[HeaderSize:]
	resp.HasBody = true
	copy(resp.Nonce[:], body[0:12])
	resp.Protocol = protocolFromNumber(body[12])
	resp.InternalPort = int(binary.BigEndian.Uint16(body[16:18]))
	resp.ExternalPort = int(binary.BigEndian.Uint16(body[18:20]))
	resp.ExternalIP = addrutil.From16(body[20:36])
	return resp, nil
}

// DecodeResponse 解析响应并将非零结果码转换为 *GatewayResultError
func DecodeResponse(b []byte, op Opcode) (*Response, error) {
	resp, err := ParseResponse(b, op)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// ============================================================================
//                              响应编码（网关侧）
// ============================================================================

// EncodeMapResponse 编码 MAP 响应报文
//
// 供测试网关和诊断工具使用。
func EncodeMapResponse(resp *Response) []byte {
	buf := make([]byte, HeaderSize+MapBodySize)
	buf[0] = resp.Version
	buf[1] = responseBit | byte(resp.Opcode)
	buf[3] = byte(resp.ResultCode)
	binary.BigEndian.PutUint32(buf[4:8], lifetimeSeconds(resp.Lifetime))
	binary.BigEndian.PutUint32(buf[8:12], resp.Epoch)

	body := buf[HeaderSize:]
	copy(body[0:12], resp.Nonce[:])
	if n, err := protocolNumber(resp.Protocol); err == nil {
		body[12] = n
	}
	binary.BigEndian.PutUint16(body[16:18], uint16(resp.InternalPort))
	binary.BigEndian.PutUint16(body[18:20], uint16(resp.ExternalPort))
	family := addrutil.FamilyIPv4
	if resp.ExternalIP != nil {
		family = addrutil.FamilyOfIP(resp.ExternalIP)
	}
	putIP(body[20:36], resp.ExternalIP, family)
	return buf
}
