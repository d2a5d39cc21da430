package node

import (
	"net"
	"testing"
)

func TestEndpointIsAllowed(t *testing.T) {
	tests := []struct {
		name    string
		ep      Endpoint
		local   bool
		allowed bool
	}{
		{"public v4", Endpoint{IP: net.ParseIP("8.8.8.8"), UDP: 30303}, false, true},
		{"zero udp port", Endpoint{IP: net.ParseIP("8.8.8.8"), UDP: 0}, false, false},
		{"nil ip", Endpoint{UDP: 30303}, false, false},
		{"loopback", Endpoint{IP: net.ParseIP("127.0.0.1"), UDP: 30303}, false, false},
		{"loopback allowed locally", Endpoint{IP: net.ParseIP("127.0.0.1"), UDP: 30303}, true, true},
		{"rfc1918", Endpoint{IP: net.ParseIP("192.168.1.5"), UDP: 30303}, false, false},
		{"rfc1918 allowed locally", Endpoint{IP: net.ParseIP("192.168.1.5"), UDP: 30303}, true, true},
		{"multicast", Endpoint{IP: net.ParseIP("224.0.0.1"), UDP: 30303}, false, false},
		{"multicast never allowed", Endpoint{IP: net.ParseIP("224.0.0.1"), UDP: 30303}, true, false},
		{"unspecified", Endpoint{IP: net.ParseIP("0.0.0.0"), UDP: 30303}, false, false},
		{"unspecified never allowed", Endpoint{IP: net.ParseIP("0.0.0.0"), UDP: 30303}, true, false},
		{"class e", Endpoint{IP: net.ParseIP("250.1.2.3"), UDP: 30303}, false, false},
		{"cgnat", Endpoint{IP: net.ParseIP("100.64.0.1"), UDP: 30303}, false, false},
		{"link local", Endpoint{IP: net.ParseIP("169.254.1.1"), UDP: 30303}, false, false},
	}

	defer func(prev bool) { AllowLocal = prev }(AllowLocal)
	for _, tt := range tests {
		AllowLocal = tt.local
		if got := tt.ep.IsAllowed(); got != tt.allowed {
			t.Errorf("%s: IsAllowed() = %v, want %v", tt.name, got, tt.allowed)
		}
	}
}

func TestIsRoutableIP(t *testing.T) {
	tests := []struct {
		ip       string
		routable bool
	}{
		{"8.8.8.8", true},
		{"1.2.3.4", true},
		{"10.0.0.1", false},
		{"172.16.0.1", false},
		{"172.32.0.1", true},
		{"192.168.0.1", false},
		{"127.0.0.1", false},
		{"0.0.0.0", false},
		{"224.0.0.1", false},
		{"2001:4860:4860::8888", true},
		{"fe80::1", false},
		{"fc00::1", false},
		{"::1", false},
	}
	for _, tt := range tests {
		if got := IsRoutableIP(net.ParseIP(tt.ip)); got != tt.routable {
			t.Errorf("IsRoutableIP(%s) = %v, want %v", tt.ip, got, tt.routable)
		}
	}
}

func TestNewEndpoint(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("8.8.4.4"), Port: 30303}
	ep := NewEndpoint(addr, 30304)
	if ep.UDP != 30303 || ep.TCP != 30304 {
		t.Errorf("unexpected ports: udp=%d tcp=%d", ep.UDP, ep.TCP)
	}
	if len(ep.IP) != net.IPv4len {
		t.Errorf("IPv4 address should be stored in 4-byte form, got %d bytes", len(ep.IP))
	}
	if ep.UDPAddr().String() != addr.String() {
		t.Errorf("UDPAddr round trip: got %s, want %s", ep.UDPAddr(), addr)
	}
}
