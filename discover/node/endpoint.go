package node

import (
	"fmt"
	"net"
)

// AllowLocal admits loopback and private-range addresses into the
// routing table. It is off by default; tests and private deployments
// enable it.
var AllowLocal = false

// Endpoint is a node's network location: one IP address plus the UDP
// discovery port and the TCP session port.
type Endpoint struct {
	// IP is the address (4 bytes for IPv4, 16 for IPv6)
	IP net.IP

	// UDP is the discovery port
	UDP uint16

	// TCP is the session port advertised for the upstream peer manager
	TCP uint16
}

// NewEndpoint builds an endpoint from a UDP address and a TCP port.
func NewEndpoint(addr *net.UDPAddr, tcpPort uint16) Endpoint {
	ip := addr.IP
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return Endpoint{IP: ip, UDP: uint16(addr.Port), TCP: tcpPort}
}

// UDPAddr converts the endpoint to a net.UDPAddr.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: int(e.UDP)}
}

// String returns ip:udpport.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP, e.UDP)
}

// IsZero reports whether the endpoint carries no address information.
func (e Endpoint) IsZero() bool {
	return len(e.IP) == 0 && e.UDP == 0 && e.TCP == 0
}

// IsAllowed reports whether the endpoint may enter the routing table.
//
// An endpoint qualifies when its address is globally routable (no
// loopback, multicast, unspecified or reserved ranges) and the UDP port
// is non-zero. With AllowLocal set, loopback and private addresses
// qualify too, as long as the address is well-formed.
func (e Endpoint) IsAllowed() bool {
	if e.UDP == 0 || e.IP == nil {
		return false
	}
	if AllowLocal {
		return isUsableIP(e.IP)
	}
	return IsRoutableIP(e.IP)
}
