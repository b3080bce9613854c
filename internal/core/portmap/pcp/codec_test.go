package pcp

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natmap/internal/util/addrutil"
	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              请求编码测试
// ============================================================================

func TestEncodeMapRequest_Layout(t *testing.T) {
	nonce := Nonce{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	b, err := EncodeMapRequest(&MapRequest{
		Lifetime:              7200 * time.Second,
		ClientIP:              net.ParseIP("192.168.1.10"),
		Family:                addrutil.FamilyIPv4,
		Nonce:                 nonce,
		Protocol:              types.ProtocolUDP,
		InternalPort:          4321,
		SuggestedExternalPort: 4322,
	})
	require.NoError(t, err)
	require.Len(t, b, HeaderSize+MapBodySize)

	assert.Equal(t, byte(2), b[0], "版本")
	assert.Equal(t, byte(1), b[1], "R 位为 0，操作码 MAP")
	assert.Equal(t, []byte{0, 0}, b[2:4])
	assert.Equal(t, uint32(7200), binary.BigEndian.Uint32(b[4:8]))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 192, 168, 1, 10}, b[8:24])

	body := b[HeaderSize:]
	assert.Equal(t, nonce[:], body[0:12])
	assert.Equal(t, byte(17), body[12])
	assert.Equal(t, []byte{0, 0, 0}, body[13:16])
	assert.Equal(t, uint16(4321), binary.BigEndian.Uint16(body[16:18]))
	assert.Equal(t, uint16(4322), binary.BigEndian.Uint16(body[18:20]))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0, 0, 0, 0}, body[20:36], "未建议外部地址时为 IPv4 未指定地址")
}

func TestEncodeMapRequest_IPv6(t *testing.T) {
	b, err := EncodeMapRequest(&MapRequest{
		ClientIP:            net.ParseIP("2001:db8::10"),
		Family:              addrutil.FamilyIPv6,
		Protocol:            types.ProtocolTCP,
		InternalPort:        80,
		SuggestedExternalIP: net.ParseIP("2001:db8::1"),
	})
	require.NoError(t, err)

	assert.Equal(t, []byte(net.ParseIP("2001:db8::10")), b[8:24])
	assert.Equal(t, byte(6), b[HeaderSize+12])
	assert.Equal(t, []byte(net.ParseIP("2001:db8::1")), b[HeaderSize+20:HeaderSize+36])
}

func TestEncodeMapRequest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   MapRequest
		field string
	}{
		{"无效协议", MapRequest{Protocol: "ftp", InternalPort: 80}, "protocol"},
		{"内部端口为0", MapRequest{Protocol: types.ProtocolTCP}, "internal port"},
		{"内部端口越界", MapRequest{Protocol: types.ProtocolTCP, InternalPort: 70000}, "internal port"},
		{"外部端口越界", MapRequest{Protocol: types.ProtocolTCP, InternalPort: 80, SuggestedExternalPort: -1}, "external port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeMapRequest(&tt.req)
			var verr *types.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLifetimeSeconds(t *testing.T) {
	assert.Equal(t, uint32(0), lifetimeSeconds(0), "0 表示删除映射")
	assert.Equal(t, uint32(300), lifetimeSeconds(300*time.Second))
	assert.Equal(t, uint32(1), lifetimeSeconds(500*time.Millisecond), "不足 1 秒的正租期不编码为删除")
	assert.Equal(t, uint32(MinLifetime), lifetimeSeconds(-time.Second), "负数回退到最小租期")
	assert.Equal(t, uint32(MinLifetime), lifetimeSeconds(time.Duration(math.MaxUint32+1)*time.Second), "超出 32 位回退到最小租期")
}

// ============================================================================
//                              响应解码测试
// ============================================================================

func successResponse() []byte {
	return EncodeMapResponse(&Response{
		Version:      Version,
		Opcode:       OpMap,
		Lifetime:     600 * time.Second,
		Epoch:        42,
		Nonce:        Nonce{9},
		Protocol:     types.ProtocolTCP,
		InternalPort: 4001,
		ExternalPort: 40001,
		ExternalIP:   net.ParseIP("203.0.113.7"),
	})
}

func TestDecodeResponse_Success(t *testing.T) {
	resp, err := DecodeResponse(successResponse(), OpMap)
	require.NoError(t, err)

	assert.Equal(t, ResultSuccess, resp.ResultCode)
	assert.Equal(t, 600*time.Second, resp.Lifetime)
	assert.Equal(t, uint32(42), resp.Epoch)
	assert.True(t, resp.HasBody)
	assert.Equal(t, Nonce{9}, resp.Nonce)
	assert.Equal(t, types.ProtocolTCP, resp.Protocol)
	assert.Equal(t, 4001, resp.InternalPort)
	assert.Equal(t, 40001, resp.ExternalPort)
	assert.Equal(t, "203.0.113.7", resp.ExternalIP.String())
}

func TestDecodeResponse_ProtocolErrors(t *testing.T) {
	t.Run("报文过短", func(t *testing.T) {
		_, err := DecodeResponse(make([]byte, 10), OpMap)
		var merr *MalformedResponseError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, 10, merr.Len)
	})

	t.Run("版本不一致", func(t *testing.T) {
		b := successResponse()
		b[0] = 1
		_, err := DecodeResponse(b, OpMap)
		var verr *ProtocolVersionError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, uint8(1), verr.Got)
		assert.Equal(t, uint8(2), verr.Want)
	})

	t.Run("缺少R位", func(t *testing.T) {
		b := successResponse()
		b[1] = byte(OpMap)
		_, err := DecodeResponse(b, OpMap)
		var oerr *UnsupportedOpcodeError
		require.ErrorAs(t, err, &oerr)
		assert.Equal(t, uint8(0x01), oerr.Opcode)
	})

	t.Run("操作码不匹配", func(t *testing.T) {
		b := successResponse()
		b[1] = 0x80 | byte(OpPeer)
		_, err := DecodeResponse(b, OpMap)
		var oerr *UnsupportedOpcodeError
		require.ErrorAs(t, err, &oerr)
	})

	t.Run("成功响应缺少报文体", func(t *testing.T) {
		_, err := DecodeResponse(successResponse()[:HeaderSize], OpMap)
		var merr *MalformedResponseError
		require.ErrorAs(t, err, &merr)
	})
}

func TestDecodeResponse_ResultCode(t *testing.T) {
	b := successResponse()
	b[3] = 3

	_, err := DecodeResponse(b, OpMap)
	var gerr *GatewayResultError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, ResultCode(3), gerr.Code)
	assert.Equal(t, "Malformed request", gerr.Error())

	resp, err := ParseResponse(b[:HeaderSize], OpMap)
	require.NoError(t, err, "错误响应可以不带报文体")
	assert.False(t, resp.HasBody)
	assert.Error(t, resp.Err())
}

func TestResultCode_String(t *testing.T) {
	want := []string{
		"Success",
		"Unsupported version",
		"Not authorized",
		"Malformed request",
		"Unsupported opcode",
		"Unsupported option",
		"Malformed option",
		"Network failure",
		"No resources",
		"Unsupported protocol",
		"User exceeded quota",
		"Cannot provide external",
		"Address mismatch",
		"Excessive remote peers",
	}
	for code, msg := range want {
		assert.Equal(t, msg, ResultCode(code).String())
	}
	assert.Equal(t, "Unknown result code 99", ResultCode(99).String())
}

func TestMapRoundTrip(t *testing.T) {
	nonce, err := NewNonce()
	require.NoError(t, err)

	b, err := EncodeMapRequest(&MapRequest{
		Lifetime:              300 * time.Second,
		Family:                addrutil.FamilyIPv4,
		Nonce:                 nonce,
		Protocol:              types.ProtocolUDP,
		InternalPort:          4321,
		SuggestedExternalPort: 4321,
	})
	require.NoError(t, err)

	req, err := decodeMapRequest(b)
	require.NoError(t, err)

	resp, err := DecodeResponse(echoResponse(req, ResultSuccess), OpMap)
	require.NoError(t, err)
	assert.Equal(t, nonce, resp.Nonce)
	assert.Equal(t, 4321, resp.InternalPort)
	assert.Equal(t, 4321, resp.ExternalPort)
	assert.Equal(t, types.ProtocolUDP, resp.Protocol)
	assert.Equal(t, 300*time.Second, resp.Lifetime)
}

func TestNewNonce_Random(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
