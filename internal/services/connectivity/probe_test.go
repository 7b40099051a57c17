package connectivity

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipnet(s string) net.Addr {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestInterfaceProbe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		prefixes []string
		ifs      []iface
		want     bool
	}{
		{
			name: "loopback only",
			ifs:  []iface{{name: "lo", flags: net.FlagUp | net.FlagLoopback, addrs: []net.Addr{ipnet("127.0.0.1/8")}}},
			want: false,
		},
		{
			name: "wifi with private address",
			ifs:  []iface{{name: "wlan0", flags: net.FlagUp, addrs: []net.Addr{ipnet("192.168.1.20/24")}}},
			want: true,
		},
		{
			name: "interface down",
			ifs:  []iface{{name: "wlan0", flags: 0, addrs: []net.Addr{ipnet("192.168.1.20/24")}}},
			want: false,
		},
		{
			name: "link local only",
			ifs:  []iface{{name: "eth0", flags: net.FlagUp, addrs: []net.Addr{ipnet("fe80::1/64"), ipnet("169.254.3.3/16")}}},
			want: false,
		},
		{
			name:     "prefix filter excludes",
			prefixes: []string{"rmnet"},
			ifs:      []iface{{name: "wlan0", flags: net.FlagUp, addrs: []net.Addr{ipnet("10.0.0.5/8")}}},
			want:     false,
		},
		{
			name:     "prefix filter includes",
			prefixes: []string{"rmnet", "wlan"},
			ifs:      []iface{{name: "wlan0", flags: net.FlagUp, addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("10.0.0.5")}}}},
			want:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ifs := tt.ifs
			p := &InterfaceProbe{Prefixes: tt.prefixes, interfaces: func() ([]iface, error) { return ifs, nil }}
			assert.Equal(t, tt.want, p.HasInternet())
		})
	}
}

func TestInterfaceProbeListError(t *testing.T) {
	t.Parallel()
	p := &InterfaceProbe{interfaces: func() ([]iface, error) { return nil, errors.New("boom") }}
	assert.False(t, p.HasInternet())
}

func TestFromMode(t *testing.T) {
	t.Parallel()
	p, err := FromMode("online")
	require.NoError(t, err)
	assert.True(t, p.HasInternet())

	p, err = FromMode("OFFLINE")
	require.NoError(t, err)
	assert.False(t, p.HasInternet())

	p, err = FromMode("auto")
	require.NoError(t, err)
	assert.IsType(t, &InterfaceProbe{}, p)

	_, err = FromMode("maybe")
	assert.Error(t, err)

	calls := 0
	f := Func(func() bool { calls++; return calls > 1 })
	assert.False(t, f.HasInternet())
	assert.True(t, f.HasInternet())
}
