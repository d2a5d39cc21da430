package discover

import (
	"testing"
	"time"

	"github.com/Thyanin/aleth/discover/node"
	"github.com/Thyanin/aleth/discover/protocol"
)

func TestLookupQueriesNearest(t *testing.T) {
	tab, tr, _ := newTestTable(t, nil)

	for i := 0; i < 5; i++ {
		tab.AddNode(testNode(), RelationKnown)
	}

	target := node.RandomID()
	tab.Lookup(target)

	var findnodes []*protocol.Findnode
	for _, pkt := range tr.decodeSent(t) {
		if fn, ok := pkt.(*protocol.Findnode); ok {
			findnodes = append(findnodes, fn)
		}
	}
	if len(findnodes) != alpha {
		t.Fatalf("first round sent %d findnode packets, want %d", len(findnodes), alpha)
	}
	for _, fn := range findnodes {
		if fn.Target != target {
			t.Error("findnode carries wrong target")
		}
	}
	if got := tab.pendingFindNodeCount(); got != alpha {
		t.Errorf("pending findnode table has %d rows, want %d", got, alpha)
	}
}

func TestLookupTerminatesWhenExhausted(t *testing.T) {
	tab, tr, _ := newTestTable(t, func(cfg *Config) {
		cfg.RequestTimeout = time.Millisecond
	})

	tab.AddNode(testNode(), RelationKnown)
	tab.AddNode(testNode(), RelationKnown)

	tab.Lookup(node.RandomID())

	// round 2 fires after 2 ms, finds nothing untried and terminates
	time.Sleep(50 * time.Millisecond)
	sent := tr.countSent(t, protocol.FindnodePacket)
	if sent != 2 {
		t.Fatalf("lookup sent %d findnode packets, want 2", sent)
	}

	time.Sleep(50 * time.Millisecond)
	if got := tr.countSent(t, protocol.FindnodePacket); got != sent {
		t.Error("lookup kept querying after exhaustion")
	}
}

func TestLookupRoundBound(t *testing.T) {
	tab, tr, _ := newTestTable(t, nil)
	tab.AddNode(testNode(), RelationKnown)

	// a walk that has used up its maxSteps rounds queries nothing further
	tab.doDiscover(node.RandomID(), maxSteps, make(map[*Entry]bool))
	if got := tr.countSent(t, protocol.FindnodePacket); got != 0 {
		t.Errorf("round %d sent %d findnode packets, want 0", maxSteps, got)
	}
}

func TestExpectNeighbors(t *testing.T) {
	tab, _, _ := newTestTable(t, nil)

	peer := node.RandomID()
	if tab.expectNeighbors(peer) {
		t.Error("no request outstanding, packet should be unexpected")
	}

	tab.findNodeMu.Lock()
	tab.findNodeTimeout = append(tab.findNodeTimeout, pendingFindNode{id: peer, sentAt: time.Now()})
	tab.findNodeMu.Unlock()

	if !tab.expectNeighbors(peer) {
		t.Error("fresh request outstanding, packet should be expected")
	}
	// the fresh row stays so a split response matches too
	if !tab.expectNeighbors(peer) {
		t.Error("second packet of a split response should match")
	}

	tab.findNodeMu.Lock()
	tab.findNodeTimeout = []pendingFindNode{{id: peer, sentAt: time.Now().Add(-time.Second)}}
	tab.findNodeMu.Unlock()

	if tab.expectNeighbors(peer) {
		t.Error("stale request should not match")
	}
	if got := tab.pendingFindNodeCount(); got != 0 {
		t.Errorf("stale row not pruned, %d rows left", got)
	}
}

func TestUnsolicitedNeighborsNotAdded(t *testing.T) {
	tab, _, _ := newTestTable(t, nil)

	sender := testNode()
	tab.AddNode(sender, RelationKnown)
	before := len(tab.Nodes())

	carried := testNode()
	tab.handleNeighbors(sender.ID, sender.Endpoint.UDPAddr(), &protocol.Neighbors{
		Nodes: []protocol.NodeRecord{{
			IP:  carried.Endpoint.IP,
			UDP: carried.Endpoint.UDP,
			TCP: carried.Endpoint.TCP,
			ID:  carried.ID,
		}},
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	})

	if len(tab.Nodes()) != before {
		t.Error("unsolicited neighbors added nodes")
	}
}

func TestSolicitedNeighborsAdded(t *testing.T) {
	tab, tr, _ := newTestTable(t, nil)

	sender := testNode()
	tab.AddNode(sender, RelationKnown)

	tab.findNodeMu.Lock()
	tab.findNodeTimeout = append(tab.findNodeTimeout, pendingFindNode{id: sender.ID, sentAt: time.Now()})
	tab.findNodeMu.Unlock()

	carried := testNode()
	tab.handleNeighbors(sender.ID, sender.Endpoint.UDPAddr(), &protocol.Neighbors{
		Nodes: []protocol.NodeRecord{{
			IP:  carried.Endpoint.IP,
			UDP: carried.Endpoint.UDP,
			TCP: carried.Endpoint.TCP,
			ID:  carried.ID,
		}},
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	})

	if !containsID(tab.Nodes(), carried.ID) {
		t.Fatal("solicited neighbors should be added")
	}
	// the new node starts its liveness probe
	if got := tr.countSent(t, protocol.PingPacket); got == 0 {
		t.Error("added neighbor was not pinged")
	}
}
