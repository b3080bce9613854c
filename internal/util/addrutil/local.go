package addrutil

import (
	"net"
)

// ============================================================================
//                              本地地址枚举
// ============================================================================

// LocalAddresses 枚举指定地址族的本地单播地址
//
// 跳过回环接口、未启用接口以及链路本地地址（链路本地地址无法被网关映射）。
func LocalAddresses(family Family) ([]net.IP, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []net.IP
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
				continue
			}
			if FamilyOfIP(ip) != family {
				continue
			}
			if ip4 := ip.To4(); ip4 != nil {
				ip = ip4
			}
			out = append(out, ip)
		}
	}
	return out, nil
}

// AddressSource 本地地址来源，便于测试替换
type AddressSource func(family Family) ([]net.IP, error)

// DefaultAddressSource 使用系统网络接口的地址来源
var DefaultAddressSource AddressSource = LocalAddresses
