// Package discover implements Kademlia-style peer discovery over UDP.
//
// The NodeTable keeps up to 16 peers per XOR log-distance bucket,
// probes liveness with signed PING/PONG exchanges, walks the network
// with iterative FINDNODE lookups and arbitrates full buckets by
// challenging the least recently active incumbent. All shared state is
// lock-protected; long waits are scheduler callbacks, never sleeps.
//
// Lock order (lower first): stateMu (buckets), nodesMu (registry and
// host endpoint), evictionsMu, findNodeMu.
package discover

import (
	"crypto/ecdsa"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Thyanin/aleth/discover/node"
)

// Transport is the UDP socket abstraction the table sends through.
// Implementations multiplex one socket between several handlers and
// must allow concurrent Send calls.
type Transport interface {
	// Send transmits one datagram, best-effort
	Send(data []byte, to *net.UDPAddr) error

	// AddHandler registers a receive callback; a handler returning true
	// claims the packet
	AddHandler(handler func(data []byte, from *net.UDPAddr) bool)

	// LocalAddr returns the bound address
	LocalAddr() *net.UDPAddr

	// IsOpen reports whether the socket still accepts sends
	IsOpen() bool

	// MaxDatagramSize returns the outgoing payload ceiling
	MaxDatagramSize() int
}

// NodeTable is the discovery core: the bucketed routing table together
// with its protocol engine.
type NodeTable struct {
	cfg  *Config
	priv *ecdsa.PrivateKey
	log  logrus.FieldLogger

	selfID node.ID

	// transport is nil when the table is dormant
	transport Transport

	timers *Scheduler
	events *eventQueue

	stateMu sync.Mutex
	buckets [numBuckets]bucket

	nodesMu sync.Mutex
	entries map[node.ID]*Entry
	self    node.Node

	evictionsMu sync.Mutex
	evictions   map[node.ID]evictionChallenge

	findNodeMu      sync.Mutex
	findNodeTimeout []pendingFindNode

	mu      sync.Mutex
	running bool
}

// New creates a node table. The transport is created by the caller and
// may be nil, which forces dormant mode just like Enabled=false: table
// operations work, but nothing is sent and no discovery runs.
func New(cfg *Config, transport Transport) (*NodeTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("discover: invalid config: %w", err)
	}
	cfg.ApplyDefaults()

	selfID := node.PubkeyToID(&cfg.PrivateKey.PublicKey)
	self := node.Node{ID: selfID, PeerType: node.PeerTypeRequired}
	if transport != nil {
		if addr := transport.LocalAddr(); addr != nil {
			self.Endpoint = node.NewEndpoint(addr, uint16(addr.Port))
		}
	}

	tab := &NodeTable{
		cfg:       cfg,
		priv:      cfg.PrivateKey,
		log:       cfg.Logger,
		selfID:    selfID,
		self:      self,
		timers:    NewScheduler(),
		events:    &eventQueue{},
		entries:   make(map[node.ID]*Entry),
		evictions: make(map[node.ID]evictionChallenge),
	}
	if cfg.Enabled {
		tab.transport = transport
	}
	return tab, nil
}

// Start registers the packet handler and begins periodic discovery.
// A dormant table starts without side effects.
func (tab *NodeTable) Start() error {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	if tab.running {
		return fmt.Errorf("discover: already running")
	}
	tab.running = true

	if tab.transport == nil {
		tab.log.Info("discover: table is dormant, discovery disabled")
		return nil
	}

	tab.transport.AddHandler(tab.handlePacket)
	tab.doDiscovery()
	tab.log.WithField("self", tab.selfID.String()).Info("discover: node table started")
	return nil
}

// Stop cancels all scheduled work. The transport is managed by the
// caller and stays untouched; close it before discarding the table so
// no receive callback runs against stopped timers.
func (tab *NodeTable) Stop() {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	if !tab.running {
		return
	}
	tab.running = false
	tab.timers.Stop()
	tab.log.Info("discover: node table stopped")
}

// Self returns the host node with its currently advertised endpoint.
func (tab *NodeTable) Self() node.Node {
	tab.nodesMu.Lock()
	defer tab.nodesMu.Unlock()
	return tab.self
}

// SelfID returns the host identity.
func (tab *NodeTable) SelfID() node.ID {
	return tab.selfID
}

// SetEventHandler registers the subscriber for membership events.
// Events are only buffered while a handler is registered.
func (tab *NodeTable) SetEventHandler(h EventHandler) {
	tab.events.setHandler(h)
}

// ProcessEvents drains queued membership events to the subscriber, in
// FIFO order, outside all routing locks.
func (tab *NodeTable) ProcessEvents() {
	handler, evs := tab.events.drain()
	if handler == nil {
		return
	}
	for _, ev := range evs {
		handler.NodeEvent(ev)
	}
}

func (tab *NodeTable) isOpen() bool {
	return tab.transport != nil && tab.transport.IsOpen()
}
