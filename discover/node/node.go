// Package node defines node identities and endpoints for the discovery
// protocol.
//
// A node is identified by its uncompressed secp256k1 public key (64 bytes,
// without the 0x04 tag). Kademlia distances are computed over the
// Keccak256 hashes of these identities, not over the raw keys.
package node

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// ID is a node identifier: the uncompressed secp256k1 public key
// (X and Y coordinates, 32 bytes each) without the 0x04 prefix.
type ID [64]byte

// PeerType classifies how the upstream peer manager treats a node.
type PeerType int

const (
	// PeerTypeOptional nodes may be dropped freely under table pressure.
	PeerTypeOptional PeerType = iota

	// PeerTypeRequired nodes are pinned by the caller (static peers).
	PeerTypeRequired
)

// String returns the peer type name.
func (t PeerType) String() string {
	switch t {
	case PeerTypeRequired:
		return "required"
	default:
		return "optional"
	}
}

// Node is a discovered participant: identity plus network endpoint.
type Node struct {
	// ID is the node's public key identity
	ID ID

	// Endpoint is the node's last known network endpoint
	Endpoint Endpoint

	// PeerType classifies the node for the upstream peer manager
	PeerType PeerType
}

// String returns a short human-readable representation.
func (n Node) String() string {
	return fmt.Sprintf("%s@%s", n.ID, n.Endpoint)
}

// IsZero reports whether the ID is all zeroes.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Bytes returns the ID as a byte slice.
func (id ID) Bytes() []byte {
	return id[:]
}

// Hash returns the Keccak256 hash of the ID.
//
// All XOR distance computations operate on this hash.
func (id ID) Hash() [32]byte {
	var h [32]byte
	copy(h[:], crypto.Keccak256(id[:]))
	return h
}

// String returns an abbreviated hex form of the ID.
func (id ID) String() string {
	return fmt.Sprintf("%x", id[:8])
}

// PubkeyToID converts an ECDSA public key to a node ID.
func PubkeyToID(pub *ecdsa.PublicKey) ID {
	var id ID
	copy(id[:], crypto.FromECDSAPub(pub)[1:])
	return id
}

// Pubkey decodes the ID back into an ECDSA public key.
//
// Returns an error if the ID is not a valid curve point.
func (id ID) Pubkey() (*ecdsa.PublicKey, error) {
	pub := &ecdsa.PublicKey{Curve: crypto.S256(), X: new(big.Int), Y: new(big.Int)}
	half := len(id) / 2
	pub.X.SetBytes(id[:half])
	pub.Y.SetBytes(id[half:])
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("node: id is not a valid secp256k1 point")
	}
	return pub, nil
}
