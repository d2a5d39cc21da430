// Package enode implements the enode:// URL format used to address
// discovery nodes:
//
//	enode://<hex node id>@<ip>:<tcp_port>?discport=<udp_port>
//
// The node id is the 128-hex-character uncompressed public key. When
// discport is omitted, the UDP discovery port equals the TCP port.
package enode

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"

	"github.com/Thyanin/aleth/discover/node"
)

var (
	// incompleteNodeURL matches URLs carrying only the public key
	incompleteNodeURL = regexp.MustCompile("(?i)^(?:enode://)?([0-9a-f]+)$")

	// ErrInvalidScheme is returned for URL schemes other than "enode"
	ErrInvalidScheme = errors.New("enode: invalid URL scheme, want \"enode\"")

	// ErrMissingNodeID is returned when the URL carries no node id
	ErrMissingNodeID = errors.New("enode: does not contain node ID")

	// ErrInvalidNodeID is returned when the id is not 128 hex characters
	ErrInvalidNodeID = errors.New("enode: invalid node ID, want 128 hex characters")

	// ErrInvalidIP is returned when the host is not an IP address
	ErrInvalidIP = errors.New("enode: invalid IP address")

	// ErrInvalidPort is returned when a port does not parse
	ErrInvalidPort = errors.New("enode: invalid port")
)

// Parse parses an enode:// URL into a node.
//
// Incomplete URLs (id only) yield a node with a zero endpoint; they are
// valid identities but cannot be dialed.
func Parse(rawurl string) (node.Node, error) {
	if m := incompleteNodeURL.FindStringSubmatch(rawurl); m != nil {
		id, err := parseID(m[1])
		if err != nil {
			return node.Node{}, err
		}
		return node.Node{ID: id}, nil
	}
	return parseComplete(rawurl)
}

// MustParse parses an enode:// URL and panics on failure. For static
// URLs known to be valid.
func MustParse(rawurl string) node.Node {
	n, err := Parse(rawurl)
	if err != nil {
		panic("enode: invalid URL: " + err.Error())
	}
	return n
}

func parseComplete(rawurl string) (node.Node, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return node.Node{}, fmt.Errorf("enode: parse URL: %w", err)
	}
	if u.Scheme != "enode" {
		return node.Node{}, ErrInvalidScheme
	}
	if u.User == nil {
		return node.Node{}, ErrMissingNodeID
	}

	id, err := parseID(u.User.String())
	if err != nil {
		return node.Node{}, err
	}

	ip := net.ParseIP(u.Hostname())
	if ip == nil {
		return node.Node{}, ErrInvalidIP
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}

	tcpPort, err := strconv.ParseUint(u.Port(), 10, 16)
	if err != nil {
		return node.Node{}, fmt.Errorf("%w: %q", ErrInvalidPort, u.Port())
	}

	udpPort := tcpPort
	if disc := u.Query().Get("discport"); disc != "" {
		udpPort, err = strconv.ParseUint(disc, 10, 16)
		if err != nil {
			return node.Node{}, fmt.Errorf("%w: discport %q", ErrInvalidPort, disc)
		}
	}

	return node.Node{
		ID: id,
		Endpoint: node.Endpoint{
			IP:  ip,
			UDP: uint16(udpPort),
			TCP: uint16(tcpPort),
		},
	}, nil
}

func parseID(in string) (node.ID, error) {
	var id node.ID
	b, err := hex.DecodeString(in)
	if err != nil || len(b) != len(id) {
		return id, ErrInvalidNodeID
	}
	copy(id[:], b)
	return id, nil
}

// Format renders a node as an enode:// URL.
func Format(n node.Node) string {
	u := url.URL{Scheme: "enode", User: url.User(hex.EncodeToString(n.ID[:]))}
	if n.Endpoint.IP != nil {
		addr := net.TCPAddr{IP: n.Endpoint.IP, Port: int(n.Endpoint.TCP)}
		u.Host = addr.String()
		if n.Endpoint.UDP != n.Endpoint.TCP {
			u.RawQuery = "discport=" + strconv.Itoa(int(n.Endpoint.UDP))
		}
	}
	return u.String()
}
