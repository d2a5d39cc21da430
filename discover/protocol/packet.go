package protocol

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Thyanin/aleth/discover/node"
)

const (
	hashSize = 32
	sigSize  = crypto.SignatureLength
	headSize = hashSize + sigSize

	// minBodySize is the smallest legal body: an empty Neighbors list
	// RLP-encodes to 3 bytes.
	minBodySize = 3
)

var (
	// ErrPacketTooSmall is returned when a datagram is shorter than the
	// minimum frame.
	ErrPacketTooSmall = errors.New("packet too small")

	// ErrBadHash is returned when the leading hash does not cover the
	// rest of the datagram.
	ErrBadHash = errors.New("bad hash")

	// ErrBadSignature is returned when public key recovery fails.
	ErrBadSignature = errors.New("bad signature")

	// ErrUnknownPacket is returned for unrecognized type bytes.
	ErrUnknownPacket = errors.New("unknown packet type")

	// ErrBadBody is returned when the RLP body does not parse.
	ErrBadBody = errors.New("bad packet body")

	// ErrExpired is returned when the body's expiration is in the past.
	ErrExpired = errors.New("packet expired")
)

// headSpace reserves room for hash and signature during encoding.
var headSpace = make([]byte, headSize)

// Decode parses and authenticates a discovery datagram.
//
// Returns the decoded message, the sender identity recovered from the
// signature, and the datagram hash (echoed in Pong replies). The checks
// run in order: length, hash, signature, type, body, expiration; the
// first failure wins. On signature or later failures the partially
// recovered identity and hash are still returned for logging.
func Decode(input []byte) (Packet, node.ID, []byte, error) {
	if len(input) < headSize+1+minBodySize {
		return nil, node.ID{}, nil, ErrPacketTooSmall
	}

	hash := input[:hashSize]
	sig := input[hashSize:headSize]
	sigdata := input[headSize:] // type byte + body

	if !bytes.Equal(hash, crypto.Keccak256(input[hashSize:])) {
		return nil, node.ID{}, nil, ErrBadHash
	}

	fromID, err := recoverSender(crypto.Keccak256(sigdata), sig)
	if err != nil {
		return nil, fromID, hash, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	var pkt Packet
	switch ptype := sigdata[0]; ptype {
	case PingPacket:
		pkt = new(Ping)
	case PongPacket:
		pkt = new(Pong)
	case FindnodePacket:
		pkt = new(Findnode)
	case NeighborsPacket:
		pkt = new(Neighbors)
	default:
		return nil, fromID, hash, fmt.Errorf("%w: %d", ErrUnknownPacket, ptype)
	}

	// NewStream tolerates trailing data after the message body.
	s := rlp.NewStream(bytes.NewReader(sigdata[1:]), 0)
	if err := s.Decode(pkt); err != nil {
		return nil, fromID, hash, fmt.Errorf("%w: %v", ErrBadBody, err)
	}

	if Expired(pkt.Expiry()) {
		return pkt, fromID, hash, ErrExpired
	}

	return pkt, fromID, hash, nil
}

// Encode serializes and signs a discovery message.
//
// Returns the complete datagram and its hash (the Pong reply token).
func Encode(priv *ecdsa.PrivateKey, pkt Packet) (data, hash []byte, err error) {
	b := new(bytes.Buffer)
	b.Write(headSpace)
	b.WriteByte(pkt.Kind())
	if err := rlp.Encode(b, pkt); err != nil {
		return nil, nil, fmt.Errorf("protocol: rlp encode: %w", err)
	}

	data = b.Bytes()
	sig, err := crypto.Sign(crypto.Keccak256(data[headSize:]), priv)
	if err != nil {
		return nil, nil, fmt.Errorf("protocol: sign: %w", err)
	}
	copy(data[hashSize:], sig)

	hash = crypto.Keccak256(data[hashSize:])
	copy(data, hash)
	return data, hash, nil
}

// recoverSender recovers the signer's node ID from a recoverable
// signature over hash.
func recoverSender(hash, sig []byte) (node.ID, error) {
	var id node.ID
	pub, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return id, err
	}
	copy(id[:], pub[1:])
	return id, nil
}
