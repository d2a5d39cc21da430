package discover

import (
	"crypto/ecdsa"
	"net"
	"testing"

	"github.com/Thyanin/aleth/discover/node"
	"github.com/Thyanin/aleth/discover/protocol"
)

// encodeFrom signs a packet with the given peer key.
func encodeFrom(t *testing.T, key *ecdsa.PrivateKey, pkt protocol.Packet) []byte {
	t.Helper()
	data, _, err := protocol.Encode(key, pkt)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return data
}

func TestTwoNodeHandshake(t *testing.T) {
	tab, tr, _ := newTestTable(t, nil)

	bKey, err := ecdsaGenerate()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	bID := node.PubkeyToID(&bKey.PublicKey)
	bAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1").To4(), Port: 30304}

	// B pings A
	ping := &protocol.Ping{
		Version:    protocol.Version,
		From:       protocol.Endpoint{IP: bAddr.IP, UDP: uint16(bAddr.Port), TCP: uint16(bAddr.Port)},
		To:         protocol.NewEndpoint(tab.Self().Endpoint),
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	}
	tab.handlePacket(encodeFrom(t, bKey, ping), bAddr)

	// A registers B as pending, answers with PONG and probes with PING
	if !containsID(tab.Nodes(), bID) {
		t.Fatal("ping sender not registered")
	}
	if len(tab.Snapshot()) != 0 {
		t.Fatal("unverified sender must not be seated yet")
	}

	var pongs, pings int
	for _, pkt := range tr.decodeSent(t) {
		switch p := pkt.(type) {
		case *protocol.Pong:
			pongs++
			if p.To.UDP != uint16(bAddr.Port) {
				t.Error("pong reports wrong observed endpoint")
			}
		case *protocol.Ping:
			pings++
		}
	}
	if pongs != 1 || pings != 1 {
		t.Fatalf("sent %d pongs and %d pings, want 1 and 1", pongs, pings)
	}

	// B answers the probe
	pong := &protocol.Pong{
		To:         protocol.NewEndpoint(tab.Self().Endpoint),
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	}
	tab.handlePacket(encodeFrom(t, bKey, pong), bAddr)

	snap := tab.Snapshot()
	if len(snap) != 1 || snap[0].ID != bID {
		t.Fatal("verified peer not seated")
	}
	if snap[0].Pending {
		t.Error("seated peer still pending")
	}
	if want := node.LogDistance(tab.SelfID(), bID); snap[0].Distance != want {
		t.Errorf("seated at distance %d, want %d", snap[0].Distance, want)
	}
}

func TestTamperedPacketIgnored(t *testing.T) {
	tab, tr, _ := newTestTable(t, nil)

	bKey, err := ecdsaGenerate()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	bAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1").To4(), Port: 30304}

	ping := &protocol.Ping{
		Version:    protocol.Version,
		From:       protocol.Endpoint{IP: bAddr.IP, UDP: uint16(bAddr.Port), TCP: uint16(bAddr.Port)},
		To:         protocol.NewEndpoint(tab.Self().Endpoint),
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	}
	data := encodeFrom(t, bKey, ping)
	data[3] ^= 0x01 // corrupt the hash

	if !tab.handlePacket(data, bAddr) {
		t.Error("handler should claim even invalid packets")
	}
	if len(tab.Nodes()) != 0 {
		t.Error("tampered packet mutated the registry")
	}
	if len(tr.sentPackets()) != 0 {
		t.Error("tampered packet triggered a response")
	}
}

func TestOwnPacketIgnored(t *testing.T) {
	tab, tr, key := newTestTable(t, nil)

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1").To4(), Port: 30305}
	ping := &protocol.Ping{
		Version:    protocol.Version,
		From:       protocol.Endpoint{IP: addr.IP, UDP: uint16(addr.Port), TCP: uint16(addr.Port)},
		To:         protocol.NewEndpoint(tab.Self().Endpoint),
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	}
	tab.handlePacket(encodeFrom(t, key, ping), addr)

	if len(tab.Nodes()) != 0 {
		t.Error("own packet mutated the registry")
	}
	if len(tab.Snapshot()) != 0 {
		t.Error("host ended up in a bucket")
	}
	if len(tr.sentPackets()) != 0 {
		t.Error("own packet triggered a response")
	}
}

func TestFindnodeAnswersWithNeighbors(t *testing.T) {
	tab, tr, _ := newTestTable(t, nil)

	for i := 0; i < bucketSize; i++ {
		tab.AddNode(testNode(), RelationKnown)
	}

	bKey, err := ecdsaGenerate()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	bAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1").To4(), Port: 30306}

	req := &protocol.Findnode{
		Target:     node.RandomID(),
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	}
	tab.handlePacket(encodeFrom(t, bKey, req), bAddr)

	var packets int
	var carried int
	for _, pkt := range tr.decodeSent(t) {
		if n, ok := pkt.(*protocol.Neighbors); ok {
			packets++
			carried += len(n.Nodes)
			if len(n.Nodes) > protocol.MaxNeighbors {
				t.Errorf("neighbors packet carries %d records, limit %d", len(n.Nodes), protocol.MaxNeighbors)
			}
		}
	}
	if carried != bucketSize {
		t.Errorf("neighbors carried %d records, want %d", carried, bucketSize)
	}
	if packets != 2 {
		t.Errorf("response used %d packets, want 2", packets)
	}
}

func TestUnsolicitedNeighborsStillNotesSender(t *testing.T) {
	tab, _, _ := newTestTable(t, nil)

	zKey, err := ecdsaGenerate()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	zID := node.PubkeyToID(&zKey.PublicKey)
	zAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1").To4(), Port: 30307}

	// Z is already a seated peer
	z := node.Node{ID: zID, Endpoint: node.Endpoint{IP: zAddr.IP, UDP: uint16(zAddr.Port), TCP: uint16(zAddr.Port)}}
	tab.AddNode(z, RelationKnown)
	before := len(tab.Nodes())

	carried := testNode()
	resp := &protocol.Neighbors{
		Nodes: []protocol.NodeRecord{{
			IP:  carried.Endpoint.IP,
			UDP: carried.Endpoint.UDP,
			TCP: carried.Endpoint.TCP,
			ID:  carried.ID,
		}},
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	}
	tab.handlePacket(encodeFrom(t, zKey, resp), zAddr)

	if len(tab.Nodes()) != before {
		t.Error("unsolicited neighbors added nodes")
	}
	if containsID(tab.Nodes(), carried.ID) {
		t.Error("carried node must not be registered")
	}

	// the sender's own liveness is still noted
	snap := tab.Snapshot()
	if len(snap) != 1 || snap[0].ID != zID {
		t.Fatal("sender should remain seated")
	}
	if snap[0].Stats().LastSeen().IsZero() {
		t.Error("sender liveness not recorded")
	}
}
