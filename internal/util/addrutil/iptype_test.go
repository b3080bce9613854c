package addrutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              地址族测试
// ============================================================================

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		host    string
		want    Family
		wantErr bool
	}{
		{"192.168.1.1", FamilyIPv4, false},
		{"::ffff:10.0.0.1", FamilyIPv4, false},
		{"2001:db8::1", FamilyIPv6, false},
		{"[fe80::1%eth0]", FamilyIPv6, false},
		{"gateway.local", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got, err := FamilyOf(tt.host)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidHost)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "udp4", FamilyIPv4.UDPNetwork())
	assert.Equal(t, "udp6", FamilyIPv6.UDPNetwork())
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP("10.1.2.3"))
	assert.True(t, IsPrivateIP("172.16.0.9"))
	assert.True(t, IsPrivateIP("192.168.100.1"))
	assert.True(t, IsPrivateIP("fd00::1"))
	assert.True(t, IsPrivateIP("fe80::1"))
	assert.False(t, IsPrivateIP("8.8.8.8"))
	assert.False(t, IsPrivateIP("127.0.0.1"))
	assert.False(t, IsPrivateIP("not-an-ip"))
}

// ============================================================================
//                              16 字节格式测试
// ============================================================================

func TestTo16(t *testing.T) {
	t.Run("IPv4 映射", func(t *testing.T) {
		b := To16(net.ParseIP("192.0.2.33"))
		assert.Equal(t, [16]byte{10: 0xff, 11: 0xff, 12: 192, 13: 0, 14: 2, 15: 33}, b)
	})

	t.Run("IPv6 原样", func(t *testing.T) {
		ip := net.ParseIP("2001:db8::7")
		b := To16(ip)
		assert.Equal(t, []byte(ip.To16()), b[:])
	})

	t.Run("nil 为全零", func(t *testing.T) {
		assert.Equal(t, [16]byte{}, To16(nil))
	})

	t.Run("未指定地址", func(t *testing.T) {
		assert.Equal(t, [16]byte{10: 0xff, 11: 0xff}, Zero16(FamilyIPv4))
		assert.Equal(t, [16]byte{}, Zero16(FamilyIPv6))
	})
}

func TestFrom16_RoundTrip(t *testing.T) {
	for _, s := range []string{"203.0.113.7", "2001:db8::42"} {
		ip := net.ParseIP(s)
		b := To16(ip)
		assert.True(t, ip.Equal(From16(b[:])), s)
	}
	v4 := To16(net.ParseIP("203.0.113.7"))
	assert.Len(t, From16(v4[:]), net.IPv4len)
	assert.Nil(t, From16([]byte{1, 2, 3}))
}

func TestLocalAddresses_FamilyFilter(t *testing.T) {
	addrs, err := LocalAddresses(FamilyIPv4)
	if err != nil {
		t.Skipf("无法枚举网络接口: %v", err)
	}
	for _, ip := range addrs {
		assert.NotNil(t, ip.To4())
		assert.False(t, ip.IsLoopback())
	}
}
