// Package addrutil 提供地址族判断与 IP 格式转换工具
package addrutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ============================================================================
//                              地址族
// ============================================================================

// Family IP 地址族
type Family int

const (
	// FamilyIPv4 IPv4 地址族
	FamilyIPv4 Family = 4
	// FamilyIPv6 IPv6 地址族
	FamilyIPv6 Family = 6
)

// String 返回地址族名称
func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// UDPNetwork 返回该地址族对应的 UDP 网络名（"udp4" / "udp6"）
func (f Family) UDPNetwork() string {
	if f == FamilyIPv6 {
		return "udp6"
	}
	return "udp4"
}

// ErrInvalidHost 主机不是合法的 IP 地址
var ErrInvalidHost = errors.New("host is not an IP address")

// ParseHost 解析 IP 主机地址，支持去掉方括号的 IPv6 形式
func ParseHost(host string) (net.IP, error) {
	h := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(host), "["), "]")
	if i := strings.IndexByte(h, '%'); i >= 0 {
		h = h[:i]
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return ip, nil
}

// FamilyOf 根据主机地址判断地址族
func FamilyOf(host string) (Family, error) {
	ip, err := ParseHost(host)
	if err != nil {
		return 0, err
	}
	return FamilyOfIP(ip), nil
}

// FamilyOfIP 返回 IP 的地址族
func FamilyOfIP(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// ============================================================================
//                              IP 类型判断工具
// ============================================================================

// IsPrivateIP 判断主机地址是否是私网地址
//
// 私网地址范围：
//   - 10.0.0.0/8
//   - 172.16.0.0/12
//   - 192.168.0.0/16
//   - fc00::/7 (IPv6 ULA)
//   - fe80::/10 (IPv6 链路本地)
func IsPrivateIP(host string) bool {
	ip, err := ParseHost(host)
	if err != nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// ============================================================================
//                              16 字节地址格式
// ============================================================================

// To16 返回 16 字节地址形式
//
// IPv4 地址映射到 IPv6 空间（::ffff:a.b.c.d）；nil 或未指定的 IPv4 地址
// 编码为 ::ffff:0.0.0.0，nil 的 IPv6 编码为全零。
func To16(ip net.IP) [16]byte {
	var out [16]byte
	if ip == nil {
		return out
	}
	if ip4 := ip.To4(); ip4 != nil {
		out[10], out[11] = 0xff, 0xff
		copy(out[12:], ip4)
		return out
	}
	copy(out[:], ip.To16())
	return out
}

// Zero16 返回指定地址族的"未指定地址"16 字节形式
func Zero16(f Family) [16]byte {
	if f == FamilyIPv4 {
		return To16(net.IPv4zero)
	}
	return [16]byte{}
}

// From16 将 16 字节地址还原为 net.IP，IPv4 映射地址还原为 4 字节形式
func From16(b []byte) net.IP {
	if len(b) != net.IPv6len {
		return nil
	}
	ip := make(net.IP, net.IPv6len)
	copy(ip, b)
	if ip4 := ip.To4(); ip4 != nil {
		return ip4
	}
	return ip
}
