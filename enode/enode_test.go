package enode

import (
	"errors"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Thyanin/aleth/discover/node"
)

func testEnodeURL(t *testing.T) (string, node.ID) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	id := node.PubkeyToID(&key.PublicKey)
	return Format(node.Node{
		ID: id,
		Endpoint: node.Endpoint{
			IP:  []byte{52, 1, 2, 3},
			UDP: 30301,
			TCP: 30303,
		},
	}), id
}

func TestParseComplete(t *testing.T) {
	rawurl, id := testEnodeURL(t)

	n, err := Parse(rawurl)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if n.ID != id {
		t.Error("parsed id mismatch")
	}
	if n.Endpoint.UDP != 30301 || n.Endpoint.TCP != 30303 {
		t.Errorf("parsed ports udp=%d tcp=%d", n.Endpoint.UDP, n.Endpoint.TCP)
	}
	if n.Endpoint.IP.String() != "52.1.2.3" {
		t.Errorf("parsed ip %s", n.Endpoint.IP)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	rawurl, _ := testEnodeURL(t)
	n, err := Parse(rawurl)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := Format(n); got != rawurl {
		t.Errorf("round trip changed URL:\n  in:  %s\n  out: %s", rawurl, got)
	}
}

func TestParseDefaultDiscport(t *testing.T) {
	rawurl, _ := testEnodeURL(t)
	rawurl = strings.Split(rawurl, "?")[0]

	n, err := Parse(rawurl)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if n.Endpoint.UDP != n.Endpoint.TCP {
		t.Error("udp port should default to tcp port")
	}
}

func TestParseIncomplete(t *testing.T) {
	rawurl, id := testEnodeURL(t)
	hexid := strings.TrimPrefix(strings.Split(rawurl, "@")[0], "enode://")

	for _, in := range []string{hexid, "enode://" + hexid} {
		n, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", in, err)
		}
		if n.ID != id {
			t.Error("parsed id mismatch")
		}
		if !n.Endpoint.IsZero() {
			t.Error("incomplete node should have a zero endpoint")
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		rawurl string
		err    error
	}{
		{"http://foo@52.1.2.3:30303", ErrInvalidScheme},
		{"enode://52.1.2.3:30303", ErrMissingNodeID},
		{"enode://beef@52.1.2.3:30303", ErrInvalidNodeID},
		{"enode://" + strings.Repeat("zz", 64) + "@52.1.2.3:30303", ErrInvalidNodeID},
	}
	for _, tt := range tests {
		if _, err := Parse(tt.rawurl); !errors.Is(err, tt.err) {
			t.Errorf("Parse(%q) = %v, want %v", tt.rawurl, err, tt.err)
		}
	}

	rawurl, _ := testEnodeURL(t)
	bad := strings.Replace(rawurl, "52.1.2.3", "not-an-ip", 1)
	if _, err := Parse(bad); !errors.Is(err, ErrInvalidIP) {
		t.Errorf("hostname URL: got %v, want ErrInvalidIP", err)
	}
}
