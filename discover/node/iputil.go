package node

import (
	"net"
)

// reservedV4 lists IPv4 ranges that never identify a reachable peer on
// the public network.
var reservedV4 = []net.IPNet{
	{IP: net.IPv4(0, 0, 0, 0), Mask: net.CIDRMask(8, 32)},       // "this" network
	{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)},   // CGNAT
	{IP: net.IPv4(169, 254, 0, 0), Mask: net.CIDRMask(16, 32)},  // link-local
	{IP: net.IPv4(192, 0, 2, 0), Mask: net.CIDRMask(24, 32)},    // TEST-NET-1
	{IP: net.IPv4(198, 51, 100, 0), Mask: net.CIDRMask(24, 32)}, // TEST-NET-2
	{IP: net.IPv4(203, 0, 113, 0), Mask: net.CIDRMask(24, 32)},  // TEST-NET-3
	{IP: net.IPv4(240, 0, 0, 0), Mask: net.CIDRMask(4, 32)},     // class E
}

// IsLANIP reports whether ip belongs to a private or local range:
// RFC1918, IPv6 ULA, link-local or loopback.
func IsLANIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		}
		return false
	}
	if ip6 := ip.To16(); ip6 != nil && ip6[0]&0xfe == 0xfc {
		return true
	}
	return false
}

// IsRoutableIP reports whether ip is globally routable: not unspecified,
// multicast, loopback, private or reserved.
func IsRoutableIP(ip net.IP) bool {
	if !isUsableIP(ip) {
		return false
	}
	if IsLANIP(ip) {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		for _, r := range reservedV4 {
			if r.Contains(ip4) {
				return false
			}
		}
	}
	return true
}

// isUsableIP rejects addresses that are invalid regardless of locality:
// nil, unspecified and multicast.
func isUsableIP(ip net.IP) bool {
	if ip == nil || ip.To16() == nil {
		return false
	}
	if ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	return true
}
