package discover

import (
	"crypto/ecdsa"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/Thyanin/aleth/discover/node"
	"github.com/Thyanin/aleth/discover/protocol"
)

func TestMain(m *testing.M) {
	node.AllowLocal = true
	logrus.SetLevel(logrus.ErrorLevel)
	os.Exit(m.Run())
}

// testTransport records sent datagrams instead of touching a socket.
type testTransport struct {
	mu       sync.Mutex
	open     bool
	addr     *net.UDPAddr
	sent     []testPacket
	handlers []func(data []byte, from *net.UDPAddr) bool
}

type testPacket struct {
	data []byte
	to   *net.UDPAddr
}

func newTestTransport(port int) *testTransport {
	return &testTransport{
		open: true,
		addr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port},
	}
}

func (tr *testTransport) Send(data []byte, to *net.UDPAddr) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	tr.mu.Lock()
	tr.sent = append(tr.sent, testPacket{data: cp, to: to})
	tr.mu.Unlock()
	return nil
}

func (tr *testTransport) AddHandler(h func(data []byte, from *net.UDPAddr) bool) {
	tr.mu.Lock()
	tr.handlers = append(tr.handlers, h)
	tr.mu.Unlock()
}

func (tr *testTransport) LocalAddr() *net.UDPAddr { return tr.addr }
func (tr *testTransport) MaxDatagramSize() int    { return protocol.MaxDatagramSize }

func (tr *testTransport) IsOpen() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.open
}

func (tr *testTransport) sentPackets() []testPacket {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]testPacket, len(tr.sent))
	copy(out, tr.sent)
	return out
}

// decodeSent decodes every recorded datagram.
func (tr *testTransport) decodeSent(t *testing.T) []protocol.Packet {
	t.Helper()
	var pkts []protocol.Packet
	for _, p := range tr.sentPackets() {
		pkt, _, _, err := protocol.Decode(p.data)
		if err != nil {
			t.Fatalf("sent packet does not decode: %v", err)
		}
		pkts = append(pkts, pkt)
	}
	return pkts
}

func (tr *testTransport) countSent(t *testing.T, kind byte) int {
	t.Helper()
	n := 0
	for _, pkt := range tr.decodeSent(t) {
		if pkt.Kind() == kind {
			n++
		}
	}
	return n
}

func newTestTable(t *testing.T, mod func(*Config)) (*NodeTable, *testTransport, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	cfg := &Config{
		PrivateKey: key,
		Enabled:    true,
		// keep periodic discovery out of the test's way
		BucketRefresh: time.Hour,
	}
	if mod != nil {
		mod(cfg)
	}

	tr := newTestTransport(30303)
	tab, err := New(cfg, tr)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := tab.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(tab.Stop)
	return tab, tr, key
}

var testPortCounter = 40000

// testNode builds a unique loopback node.
func testNode() node.Node {
	testPortCounter++
	return node.Node{
		ID: node.RandomID(),
		Endpoint: node.Endpoint{
			IP:  net.ParseIP("127.0.0.1").To4(),
			UDP: uint16(testPortCounter),
			TCP: uint16(testPortCounter),
		},
	}
}

// nodeAtDistance builds a node whose id falls at the given XOR
// log-distance from self.
func nodeAtDistance(t *testing.T, self node.ID, distance int) node.Node {
	t.Helper()
	for i := 0; i < 100000; i++ {
		n := testNode()
		if node.LogDistance(self, n.ID) == distance {
			return n
		}
	}
	t.Fatalf("could not find an id at distance %d", distance)
	return node.Node{}
}

// eventCollector buffers delivered membership events.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) NodeEvent(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *eventCollector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func ecdsaGenerate() (*ecdsa.PrivateKey, error) {
	return ethcrypto.GenerateKey()
}

func containsID(ids []node.ID, id node.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
