package node

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestPubkeyRoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	id := PubkeyToID(&key.PublicKey)
	if id.IsZero() {
		t.Fatal("id of a real key should not be zero")
	}

	pub, err := id.Pubkey()
	if err != nil {
		t.Fatalf("Pubkey() failed: %v", err)
	}
	if PubkeyToID(pub) != id {
		t.Error("pubkey round trip changed the id")
	}
}

func TestPubkeyRejectsInvalidPoint(t *testing.T) {
	var id ID
	for i := range id {
		id[i] = 0xff
	}
	if _, err := id.Pubkey(); err == nil {
		t.Error("expected error for an id that is not on the curve")
	}
}

func TestIDIsZero(t *testing.T) {
	var zero ID
	if !zero.IsZero() {
		t.Error("zero id should report IsZero")
	}
	if RandomID().IsZero() {
		t.Error("random id should not report IsZero")
	}
}

func TestIDHash(t *testing.T) {
	a, b := RandomID(), RandomID()
	if a.Hash() == b.Hash() {
		t.Error("different ids should hash differently")
	}
	if a.Hash() != a.Hash() {
		t.Error("hash should be deterministic")
	}
}
