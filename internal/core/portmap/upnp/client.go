package upnp

import (
	"net/url"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"
)

// IGDClient UPnP IGD 客户端接口
//
// goupnp 的 WANIPConnection1/2 和 WANPPPConnection1 都实现了此接口。
type IGDClient interface {
	AddPortMapping(
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
		NewInternalPort uint16,
		NewInternalClient string,
		NewEnabled bool,
		NewPortMappingDescription string,
		NewLeaseDuration uint32,
	) error

	DeletePortMapping(
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
	) error

	// GetExternalIPAddress 获取路由器的外部 IP 地址
	GetExternalIPAddress() (string, error)
}

// ClientFactory 根据根描述地址创建 IGD 客户端
type ClientFactory func(location *url.URL) (IGDClient, error)

// ClientsByURL 按 IGDv2 → IGDv1 的顺序查找第一个可用的连接服务
func ClientsByURL(location *url.URL) (IGDClient, error) {
	// 1. IGDv2 WANIPConnection2
	if clients, err := internetgateway2.NewWANIPConnection2ClientsByURL(location); err == nil && len(clients) > 0 {
		return clients[0], nil
	}

	// 2. IGDv2 WANIPConnection1
	if clients, err := internetgateway2.NewWANIPConnection1ClientsByURL(location); err == nil && len(clients) > 0 {
		return clients[0], nil
	}

	// 3. IGDv2 WANPPPConnection1
	if clients, err := internetgateway2.NewWANPPPConnection1ClientsByURL(location); err == nil && len(clients) > 0 {
		return clients[0], nil
	}

	// 4. 回退到 IGDv1 WANIPConnection1
	if clients, err := internetgateway1.NewWANIPConnection1ClientsByURL(location); err == nil && len(clients) > 0 {
		return clients[0], nil
	}

	// 5. 回退到 IGDv1 WANPPPConnection1
	clients, err := internetgateway1.NewWANPPPConnection1ClientsByURL(location)
	if err != nil {
		return nil, &UPnPError{Message: "load root description", Cause: err}
	}
	if len(clients) > 0 {
		return clients[0], nil
	}
	return nil, ErrNoIGDService
}
