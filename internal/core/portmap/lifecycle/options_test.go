package lifecycle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              Resolve 测试
// ============================================================================

func TestResolve_LibraryDefaults(t *testing.T) {
	r, err := Resolve(nil, nil, LibraryDefaults())
	require.NoError(t, err)

	assert.Equal(t, types.ProtocolTCP, r.Protocol)
	assert.Equal(t, DefaultTTL, r.TTL)
	assert.Equal(t, DefaultDescription, r.Description)
	assert.True(t, r.AutoRefresh)
	assert.Equal(t, DefaultRefreshTimeout, r.RefreshTimeout)
	assert.Equal(t, DefaultRefreshThreshold, r.RefreshThreshold)
	assert.Empty(t, r.ClientAddress)
}

func TestResolve_Precedence(t *testing.T) {
	gateway := &types.MapOptions{
		Protocol:    types.ProtocolUDP,
		TTL:         600 * time.Second,
		Description: "gateway",
		AutoRefresh: types.Bool(false),
	}
	call := &types.MapOptions{
		TTL:         300 * time.Second,
		AutoRefresh: types.Bool(true),
	}

	r, err := Resolve(call, gateway, LibraryDefaults())
	require.NoError(t, err)

	assert.Equal(t, types.ProtocolUDP, r.Protocol, "网关级覆盖库默认值")
	assert.Equal(t, 300*time.Second, r.TTL, "调用级覆盖网关级")
	assert.Equal(t, "gateway", r.Description)
	assert.True(t, r.AutoRefresh, "调用级 AutoRefresh 优先")

	r, err = Resolve(nil, gateway, LibraryDefaults())
	require.NoError(t, err)
	assert.False(t, r.AutoRefresh, "网关级 AutoRefresh 覆盖库默认值")
}

func TestResolve_Protocol(t *testing.T) {
	tests := []struct {
		name    string
		proto   types.Protocol
		want    types.Protocol
		wantErr bool
	}{
		{"大写TCP", "TCP", types.ProtocolTCP, false},
		{"混合大小写UDP", "Udp", types.ProtocolUDP, false},
		{"无效协议ftp", "ftp", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Resolve(&types.MapOptions{Protocol: tt.proto}, nil, LibraryDefaults())
			if tt.wantErr {
				var verr *types.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "protocol", verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Protocol)
		})
	}
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	call := &types.MapOptions{Protocol: "UDP"}
	_, err := Resolve(call, nil, LibraryDefaults())
	require.NoError(t, err)
	assert.Equal(t, types.Protocol("UDP"), call.Protocol)
}

func TestResolve_SubSecondTTL(t *testing.T) {
	r, err := Resolve(&types.MapOptions{TTL: 500 * time.Millisecond}, nil, LibraryDefaults())
	require.NoError(t, err)
	assert.Equal(t, time.Second, r.TTL, "不足 1 秒提升为 1 秒")
	assert.Zero(t, r.ForUnmap().TTL)

	r, err = Resolve(&types.MapOptions{TTL: 1500 * time.Millisecond}, nil, LibraryDefaults())
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, r.TTL)
}

func TestResolved_ForUnmap(t *testing.T) {
	r, err := Resolve(&types.MapOptions{Protocol: types.ProtocolUDP}, nil, LibraryDefaults())
	require.NoError(t, err)

	u := r.ForUnmap()
	assert.Zero(t, u.TTL)
	assert.Empty(t, u.Description)
	assert.False(t, u.AutoRefresh)
	assert.Equal(t, types.ProtocolUDP, u.Protocol)
	assert.Equal(t, DefaultTTL, r.TTL, "原值不受影响")
}

func TestResolved_OptionsRoundTrip(t *testing.T) {
	r, err := Resolve(&types.MapOptions{
		TTL:                   300 * time.Second,
		SuggestedExternalPort: 9000,
		ClientAddress:         "192.168.1.10",
		AutoRefresh:           types.Bool(false),
	}, nil, LibraryDefaults())
	require.NoError(t, err)

	again, err := Resolve(r.Options(), nil, LibraryDefaults())
	require.NoError(t, err)
	assert.Equal(t, r, again)
}

// ============================================================================
//                              RefreshDelay 测试
// ============================================================================

func TestRefreshDelay(t *testing.T) {
	tests := []struct {
		name      string
		requested time.Duration
		assigned  time.Duration
		threshold time.Duration
		want      time.Duration
	}{
		{"租期减阈值", 300 * time.Second, 300 * time.Second, 60 * time.Second, 240 * time.Second},
		{"网关分配较短租期", 7200 * time.Second, 120 * time.Second, 60 * time.Second, 60 * time.Second},
		{"网关未报告租期", 300 * time.Second, 0, 60 * time.Second, 240 * time.Second},
		{"阈值过大时取一半", 60 * time.Second, 60 * time.Second, 60 * time.Second, 30 * time.Second},
		{"下限1秒", time.Second, time.Second, 60 * time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RefreshDelay(tt.requested, tt.assigned, tt.threshold))
		})
	}
}

func TestLeaseSeconds(t *testing.T) {
	assert.Equal(t, uint32(0), LeaseSeconds(0), "0 表示删除")
	assert.Equal(t, uint32(0), LeaseSeconds(-time.Second))
	assert.Equal(t, uint32(1), LeaseSeconds(time.Millisecond))
	assert.Equal(t, uint32(1), LeaseSeconds(999*time.Millisecond))
	assert.Equal(t, uint32(300), LeaseSeconds(300*time.Second))
	assert.Equal(t, uint32(math.MaxUint32), LeaseSeconds(time.Duration(math.MaxUint32+10)*time.Second), "超出 32 位取上限")
}
