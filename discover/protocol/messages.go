// Package protocol implements the discovery wire protocol.
//
// Datagrams have the following structure:
//   - Hash (32 bytes): Keccak256 over signature + type + body
//   - Signature (65 bytes): recoverable ECDSA over Keccak256(type + body)
//   - Packet type (1 byte)
//   - RLP-encoded message body
//
// Packets are authenticated but not encrypted. Every body carries an
// expiration timestamp; packets from the past are rejected.
package protocol

import (
	"net"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Thyanin/aleth/discover/node"
)

// Packet type constants. Zero is reserved.
const (
	PingPacket = iota + 1
	PongPacket
	FindnodePacket
	NeighborsPacket
)

const (
	// MaxDatagramSize is the UDP payload ceiling (IPv6 minimum MTU).
	MaxDatagramSize = 1280

	// neighborsHeadSize is the per-packet overhead of a Neighbors
	// datagram: frame header plus list framing and expiration.
	neighborsHeadSize = 109

	// neighborRecordSize is the worst-case RLP size of one node record.
	neighborRecordSize = 90

	// MaxNeighbors is the number of node records that fit in a single
	// Neighbors packet. Larger result sets are split across packets.
	MaxNeighbors = (MaxDatagramSize - neighborsHeadSize) / neighborRecordSize

	// Version is the discovery protocol version carried in Ping.
	Version = 4

	// ExpirationWindow is how far in the future outgoing packets expire.
	ExpirationWindow = 60 * time.Second
)

// Packet is implemented by all discovery messages.
type Packet interface {
	// Name returns the message name for logging
	Name() string
	// Kind returns the packet type byte
	Kind() byte
	// Expiry returns the body's expiration timestamp
	Expiry() uint64
}

// Endpoint is the wire form of a network endpoint:
// [ip (4 or 16 bytes), udp port, tcp port].
type Endpoint struct {
	IP  net.IP
	UDP uint16
	TCP uint16
}

// NewEndpoint converts a node endpoint to its wire form.
func NewEndpoint(e node.Endpoint) Endpoint {
	ip := e.IP
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return Endpoint{IP: ip, UDP: e.UDP, TCP: e.TCP}
}

// NodeEndpoint converts the wire form back to a node endpoint.
func (e Endpoint) NodeEndpoint() node.Endpoint {
	return node.Endpoint{IP: e.IP, UDP: e.UDP, TCP: e.TCP}
}

// Ping probes a node's liveness and advertises the sender's endpoint.
type Ping struct {
	// Version is the discovery protocol version
	Version uint

	// From is the sender's endpoint as the sender believes it to be
	From Endpoint

	// To is the recipient's endpoint as known by the sender
	To Endpoint

	// Expiration is the UNIX timestamp after which the packet is stale
	Expiration uint64

	// Rest tolerates additional fields from future protocol versions
	Rest []rlp.RawValue `rlp:"tail"`
}

func (p *Ping) Name() string { return "PING" }
func (p *Ping) Kind() byte { return PingPacket }
func (p *Ping) Expiry() uint64 { return p.Expiration }

// Pong acknowledges a Ping. The ReplyTok field echoes the hash of the
// Ping datagram being answered, and To reports the requester's endpoint
// as observed by the responder (the basis of endpoint learning).
type Pong struct {
	// To is the Ping sender's endpoint as seen from here
	To Endpoint

	// ReplyTok is the hash of the Ping being acknowledged
	ReplyTok []byte

	// Expiration is the UNIX timestamp after which the packet is stale
	Expiration uint64

	Rest []rlp.RawValue `rlp:"tail"`
}

func (p *Pong) Name() string { return "PONG" }
func (p *Pong) Kind() byte { return PongPacket }
func (p *Pong) Expiry() uint64 { return p.Expiration }

// Findnode asks for nodes close to the target identity.
type Findnode struct {
	// Target is the public key whose neighbourhood is queried
	Target node.ID

	// Expiration is the UNIX timestamp after which the packet is stale
	Expiration uint64

	Rest []rlp.RawValue `rlp:"tail"`
}

func (f *Findnode) Name() string { return "FINDNODE" }
func (f *Findnode) Kind() byte { return FindnodePacket }
func (f *Findnode) Expiry() uint64 { return f.Expiration }

// NodeRecord is one entry of a Neighbors response, the endpoint fields
// streamed inline: [ip, udp, tcp, node id].
type NodeRecord struct {
	IP  net.IP
	UDP uint16
	TCP uint16
	ID  node.ID
}

// Node converts the record to a node.Node.
func (r NodeRecord) Node() node.Node {
	return node.Node{
		ID:       r.ID,
		Endpoint: node.Endpoint{IP: r.IP, UDP: r.UDP, TCP: r.TCP},
	}
}

// Neighbors answers a Findnode with up to MaxNeighbors node records.
type Neighbors struct {
	// Nodes are the records closest to the requested target
	Nodes []NodeRecord

	// Expiration is the UNIX timestamp after which the packet is stale
	Expiration uint64

	Rest []rlp.RawValue `rlp:"tail"`
}

func (n *Neighbors) Name() string { return "NEIGHBORS" }
func (n *Neighbors) Kind() byte { return NeighborsPacket }
func (n *Neighbors) Expiry() uint64 { return n.Expiration }

// Expired reports whether a UNIX timestamp lies in the past.
func Expired(ts uint64) bool {
	return time.Unix(int64(ts), 0).Before(time.Now())
}

// MakeExpiration builds an expiration timestamp d from now.
func MakeExpiration(d time.Duration) uint64 {
	return uint64(time.Now().Add(d).Unix())
}
