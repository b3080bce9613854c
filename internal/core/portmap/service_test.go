package portmap

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	natpmplib "github.com/jackpal/go-nat-pmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/dep2p/go-natmap/internal/core/eventbus"
	"github.com/dep2p/go-natmap/internal/core/portmap/natpmp"
	"github.com/dep2p/go-natmap/internal/core/portmap/upnp"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              测试客户端
// ============================================================================

type fakeNATPMP struct {
	mu      sync.Mutex
	adds    int
	removes int
	addErr  error
}

func (f *fakeNATPMP) AddPortMapping(_ string, internal, external int, lifetime int) (*natpmplib.AddPortMappingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lifetime == 0 {
		f.removes++
	} else {
		f.adds++
	}
	if f.addErr != nil {
		return nil, f.addErr
	}
	return &natpmplib.AddPortMappingResult{
		InternalPort:                 uint16(internal),
		MappedExternalPort:           uint16(external),
		PortMappingLifetimeInSeconds: uint32(lifetime),
	}, nil
}

func (f *fakeNATPMP) GetExternalAddress() (*natpmplib.GetExternalAddressResult, error) {
	return &natpmplib.GetExternalAddressResult{ExternalIPAddress: [4]byte{203, 0, 113, 1}}, nil
}

func (f *fakeNATPMP) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adds, f.removes
}

type fakeIGD struct{}

func (fakeIGD) AddPortMapping(string, uint16, string, uint16, string, bool, string, uint32) error {
	return nil
}
func (fakeIGD) DeletePortMapping(string, uint16, string) error { return nil }
func (fakeIGD) GetExternalIPAddress() (string, error)          { return "198.51.100.2", nil }

func testConfig(fc *fakeNATPMP) Config {
	cfg := DefaultConfig()
	cfg.Kind = KindNATPMP
	cfg.PCP.ClientPort = 0
	cfg.NATPMPOptions = []natpmp.Option{
		natpmp.WithClientFactory(func(net.IP, time.Duration) natpmp.Client { return fc }),
	}
	cfg.UPnPOptions = []upnp.Option{
		upnp.WithClientFactory(func(*url.URL) (upnp.IGDClient, error) { return fakeIGD{}, nil }),
	}
	return cfg
}

// ============================================================================
//                              测试用例
// ============================================================================

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"pcp", KindPCP},
		{"PCP", KindPCP},
		{"natpmp", KindNATPMP},
		{"nat-pmp", KindNATPMP},
		{" upnp ", KindUPnP},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseKind("stun")
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	t.Run("未知协议类型", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Kind = "stun"
		assert.Error(t, cfg.Validate())
	})

	t.Run("端口越界", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PCP.ServerPort = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("无效默认协议", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Defaults = &types.MapOptions{Protocol: "sctp"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("超时非正", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.UPnPTimeout = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestService_GatewayCached(t *testing.T) {
	svc, err := NewService(testConfig(&fakeNATPMP{}), nil, nil)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	a, err := svc.Gateway("192.168.1.1")
	require.NoError(t, err)
	b, err := svc.Gateway("192.168.1.1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "nat-pmp", a.Name())

	p, err := svc.GatewayOf(KindPCP, "192.168.1.1")
	require.NoError(t, err)
	assert.Equal(t, "pcp", p.Name())
	assert.NotSame(t, a, p)

	u, err := svc.GatewayOf(KindUPnP, "http://192.168.1.1:5000/rootDesc.xml")
	require.NoError(t, err)
	assert.Equal(t, "upnp", u.Name())

	assert.Len(t, svc.Hosts(), 3)
}

func TestService_GatewayErrors(t *testing.T) {
	svc, err := NewService(testConfig(&fakeNATPMP{}), nil, nil)
	require.NoError(t, err)

	_, err = svc.Gateway("not-an-ip")
	assert.Error(t, err)

	_, err = svc.GatewayOf("stun", "192.168.1.1")
	assert.Error(t, err)

	require.NoError(t, svc.Close(context.Background()))
	_, err = svc.Gateway("192.168.1.1")
	assert.ErrorIs(t, err, ErrServiceClosed)
	assert.NoError(t, svc.Close(context.Background()), "重复关闭")
}

func TestService_CloseStopsGateways(t *testing.T) {
	fc := &fakeNATPMP{}
	svc, err := NewService(testConfig(fc), nil, nil)
	require.NoError(t, err)

	for _, host := range []string{"192.168.1.1", "10.0.0.1"} {
		gw, err := svc.Gateway(host)
		require.NoError(t, err)
		_, err = gw.Map(context.Background(), 4001, "", nil)
		require.NoError(t, err)
	}

	require.NoError(t, svc.Close(context.Background()))
	adds, removes := fc.counts()
	assert.Equal(t, 2, adds)
	assert.Equal(t, 2, removes, "关闭时删除每个网关的自动续期映射")
}

func TestService_CloseAggregatesErrors(t *testing.T) {
	fc := &fakeNATPMP{}
	svc, err := NewService(testConfig(fc), nil, nil)
	require.NoError(t, err)

	gw, err := svc.Gateway("192.168.1.1")
	require.NoError(t, err)
	_, err = gw.Map(context.Background(), 4001, "", nil)
	require.NoError(t, err)

	fc.mu.Lock()
	fc.addErr = errors.New("refused")
	fc.mu.Unlock()

	err = svc.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "192.168.1.1")
}

func TestService_SharedEventBus(t *testing.T) {
	bus := eventbus.NewBus()
	sub, err := bus.Subscribe(new(types.EvtMappingCreated))
	require.NoError(t, err)
	defer sub.Close()

	svc, err := NewService(testConfig(&fakeNATPMP{}), bus, nil)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	gw, err := svc.Gateway("192.168.1.1")
	require.NoError(t, err)
	_, err = gw.Map(context.Background(), 4001, "", &types.MapOptions{AutoRefresh: types.Bool(false)})
	require.NoError(t, err)

	select {
	case e := <-sub.Out():
		evt := e.(types.EvtMappingCreated)
		assert.Equal(t, 4001, evt.Mapping.InternalPort)
	case <-time.After(time.Second):
		t.Fatal("未收到映射创建事件")
	}
}

func TestModule(t *testing.T) {
	fc := &fakeNATPMP{}
	cfg := testConfig(fc)

	var svc *Service
	app := fx.New(
		fx.NopLogger,
		eventbus.Module(),
		fx.Supply(&cfg),
		fx.Provide(func() prometheus.Registerer { return prometheus.NewRegistry() }),
		Module(),
		fx.Populate(&svc),
	)
	require.NoError(t, app.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Start(ctx))

	var gw pkgif.PortMapper
	gw, err := svc.Gateway("192.168.1.1")
	require.NoError(t, err)
	_, err = gw.Map(ctx, 4001, "", nil)
	require.NoError(t, err)

	require.NoError(t, app.Stop(ctx))
	_, removes := fc.counts()
	assert.Equal(t, 1, removes)

	_, err = svc.Gateway("192.168.1.1")
	assert.ErrorIs(t, err, ErrServiceClosed)
}
