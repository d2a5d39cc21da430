// Package crypto provides key handling helpers for the CLI: parsing,
// generating and persisting the host's secp256k1 identity key.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Thyanin/aleth/discover/node"
)

// ParseKey decodes a hex-encoded secp256k1 private key, with or without
// a 0x prefix.
func ParseKey(hexkey string) (*ecdsa.PrivateKey, error) {
	hexkey = strings.TrimPrefix(strings.TrimSpace(hexkey), "0x")
	b, err := hex.DecodeString(hexkey)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return key, nil
}

// GenerateKey creates a fresh secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ethcrypto.GenerateKey()
}

// LoadOrGenerateKey reads a hex key from path, generating and writing
// one when the file does not exist yet.
func LoadOrGenerateKey(path string) (*ecdsa.PrivateKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		return ParseKey(string(data))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("crypto: read key file: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	enc := hex.EncodeToString(ethcrypto.FromECDSA(key))
	if err := os.WriteFile(path, []byte(enc+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("crypto: write key file: %w", err)
	}
	return key, nil
}

// NodeID returns the discovery identity for a key pair.
func NodeID(key *ecdsa.PrivateKey) node.ID {
	return node.PubkeyToID(&key.PublicKey)
}
