package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in   string
		want Protocol
	}{
		{"tcp", ProtocolTCP},
		{"TCP", ProtocolTCP},
		{" udp ", ProtocolUDP},
	}
	for _, tt := range tests {
		got, err := ParseProtocol(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseProtocol("sctp")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "protocol", verr.Field)
	assert.Equal(t, `invalid protocol "sctp"`, err.Error())

	assert.Equal(t, "UDP", ProtocolUDP.Upper())
}

func TestMapOptions_Clone(t *testing.T) {
	var nilOpts *MapOptions
	assert.Equal(t, &MapOptions{}, nilOpts.Clone())

	orig := &MapOptions{TTL: time.Minute, AutoRefresh: Bool(true)}
	c := orig.Clone()
	*c.AutoRefresh = false
	c.TTL = time.Hour

	assert.True(t, *orig.AutoRefresh, "副本不共享 AutoRefresh 指针")
	assert.Equal(t, time.Minute, orig.TTL)
}

func TestPortMapping_String(t *testing.T) {
	m := PortMapping{
		ExternalHost: "203.0.113.1",
		ExternalPort: 14001,
		InternalHost: "192.168.1.10",
		InternalPort: 4001,
		Protocol:     ProtocolUDP,
	}
	assert.Equal(t, "udp 203.0.113.1:14001 -> 192.168.1.10:4001", m.String())
}
