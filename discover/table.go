package discover

import (
	"bytes"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thyanin/aleth/discover/node"
	"github.com/Thyanin/aleth/stats"
)

// Relation states how much the caller trusts a node handed to AddNode.
type Relation int

const (
	// RelationUnknown nodes must prove liveness with a PONG before they
	// can take a bucket slot.
	RelationUnknown Relation = iota

	// RelationKnown nodes come from a trusted source (config, previous
	// snapshot) and are seated immediately.
	RelationKnown
)

// Entry is a routing table member: a node annotated with its XOR
// log-distance to the host and its liveness state. Field access is
// guarded by the table locks; Snapshot returns value copies.
type Entry struct {
	node.Node

	// Distance is the XOR log-distance to the host id (1..256).
	Distance int

	// Pending is true from creation until the first matching PONG.
	// Pending entries live in the registry but never in a bucket.
	Pending bool

	stats *stats.NodeStats
}

// Stats exposes the entry's observation counters.
func (e *Entry) Stats() *stats.NodeStats {
	return e.stats
}

func newEntry(selfID node.ID, n node.Node, pending bool) *Entry {
	return &Entry{
		Node:     n,
		Distance: node.LogDistance(selfID, n.ID),
		Pending:  pending,
		stats:    stats.New(time.Now()),
	}
}

// bucket holds the entries at one XOR log-distance, ordered
// least-recently-active first. The registry owns the entries; a bucket
// pointer whose registry slot has been replaced counts as stale: readers
// skip it, and it is discarded when it heads a full bucket.
type bucket struct {
	entries []*Entry
}

func (b *bucket) indexOf(e *Entry) int {
	for i, x := range b.entries {
		if x == e {
			return i
		}
	}
	return -1
}

func (b *bucket) remove(e *Entry) bool {
	if i := b.indexOf(e); i >= 0 {
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		return true
	}
	return false
}

// AddNode introduces a node to the table.
//
// Known nodes get a non-pending entry (replacing any existing one) and
// are seated in their bucket immediately. Unknown nodes get a pending
// registry entry and a PING; the entry is seated when the PONG arrives.
func (tab *NodeTable) AddNode(n node.Node, rel Relation) {
	if n.ID == tab.selfID {
		return
	}

	if rel == RelationKnown {
		e := newEntry(tab.selfID, n, false)
		tab.nodesMu.Lock()
		tab.entries[n.ID] = e
		tab.nodesMu.Unlock()
		tab.noteActiveNode(n.ID, n.Endpoint)
		return
	}

	if n.ID.IsZero() || n.Endpoint.IsZero() {
		return
	}

	tab.nodesMu.Lock()
	if _, ok := tab.entries[n.ID]; ok {
		tab.nodesMu.Unlock()
		return
	}
	tab.entries[n.ID] = newEntry(tab.selfID, n, true)
	tab.nodesMu.Unlock()

	tab.log.WithFields(logrus.Fields{
		"node":     n.ID.String(),
		"endpoint": n.Endpoint.String(),
	}).Debug("discover: added pending node")
	tab.ping(n.ID, n.Endpoint)
}

// DropNode removes a node from the table and emits a dropped event.
func (tab *NodeTable) DropNode(id node.ID) {
	tab.nodesMu.Lock()
	e := tab.entries[id]
	tab.nodesMu.Unlock()
	if e != nil {
		tab.dropNode(e)
	}
}

// Nodes returns the ids of all registry entries, seated or pending.
func (tab *NodeTable) Nodes() []node.ID {
	tab.nodesMu.Lock()
	defer tab.nodesMu.Unlock()
	ids := make([]node.ID, 0, len(tab.entries))
	for id := range tab.entries {
		ids = append(ids, id)
	}
	return ids
}

// NodeByID returns the node behind id, if the registry holds it.
func (tab *NodeTable) NodeByID(id node.ID) (node.Node, bool) {
	tab.nodesMu.Lock()
	defer tab.nodesMu.Unlock()
	if e, ok := tab.entries[id]; ok {
		return e.Node, true
	}
	return node.Node{}, false
}

// Snapshot copies every live bucket entry. Callers use it to persist or
// report table membership; the copies are detached from table locking.
func (tab *NodeTable) Snapshot() []Entry {
	tab.stateMu.Lock()
	var ptrs []*Entry
	for i := range tab.buckets {
		ptrs = append(ptrs, tab.buckets[i].entries...)
	}
	tab.stateMu.Unlock()

	tab.nodesMu.Lock()
	defer tab.nodesMu.Unlock()
	out := make([]Entry, 0, len(ptrs))
	for _, e := range ptrs {
		if tab.entries[e.ID] == e {
			out = append(out, *e)
		}
	}
	return out
}

// noteActiveNode records fresh liveness evidence for a node at an
// allowed endpoint and repositions its entry in the bucket order.
//
// Unknown and still-pending nodes are left alone: the PING/PONG flow
// will land here again once the node has answered. For seated entries
// the observed source endpoint overwrites the stored one, then the
// entry moves to the most-recently-active tail of its bucket. A full
// bucket triggers the eviction arbiter against the least-recently
// active head, unless the head turns out to be a stale pointer, in
// which case it is discarded on the spot.
func (tab *NodeTable) noteActiveNode(id node.ID, ep node.Endpoint) {
	if id == tab.selfID || !ep.IsAllowed() {
		return
	}

	tab.nodesMu.Lock()
	e := tab.entries[id]
	if e == nil || e.Pending {
		tab.nodesMu.Unlock()
		return
	}
	e.Endpoint.IP = ep.IP
	e.Endpoint.UDP = ep.UDP
	tab.nodesMu.Unlock()

	e.stats.Touch()
	tab.log.WithFields(logrus.Fields{
		"node":     id.String(),
		"endpoint": ep.String(),
	}).Debug("discover: noting active node")

	var added bool
	var evictCandidate *Entry

	tab.stateMu.Lock()
	b := &tab.buckets[e.Distance-1]
	if i := b.indexOf(e); i >= 0 {
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		b.entries = append(b.entries, e)
	} else if len(b.entries) < bucketSize {
		b.entries = append(b.entries, e)
		added = true
	} else {
		head := b.entries[0]
		if tab.entryIsCurrent(head) {
			evictCandidate = head
		} else {
			// stale pointer left behind by a registry replacement
			b.entries = append(b.entries[1:], e)
			added = true
		}
	}
	tab.stateMu.Unlock()

	if added {
		tab.events.append(id, NodeAdded)
	}
	if evictCandidate != nil {
		tab.evict(evictCandidate, e)
	}
}

// entryIsCurrent reports whether the registry still maps e's id to this
// exact entry. Called with stateMu held; nodesMu is above stateMu in
// the lock order.
func (tab *NodeTable) entryIsCurrent(e *Entry) bool {
	tab.nodesMu.Lock()
	defer tab.nodesMu.Unlock()
	return tab.entries[e.ID] == e
}

// dropNode removes an entry from its bucket and the registry.
func (tab *NodeTable) dropNode(e *Entry) {
	tab.stateMu.Lock()
	tab.buckets[e.Distance-1].remove(e)
	tab.stateMu.Unlock()

	tab.nodesMu.Lock()
	removed := tab.entries[e.ID] == e
	if removed {
		delete(tab.entries, e.ID)
	}
	tab.nodesMu.Unlock()

	if removed {
		tab.log.WithField("node", e.ID.String()).Debug("discover: dropped node")
		tab.events.append(e.ID, NodeDropped)
	}
}

// nearestNodeEntries returns up to bucketSize live entries closest to
// target by XOR distance, restricted to allowed endpoints.
func (tab *NodeTable) nearestNodeEntries(target node.ID) []*Entry {
	tab.stateMu.Lock()
	var ptrs []*Entry
	for i := range tab.buckets {
		ptrs = append(ptrs, tab.buckets[i].entries...)
	}
	tab.stateMu.Unlock()

	tab.nodesMu.Lock()
	live := ptrs[:0]
	for _, e := range ptrs {
		if tab.entries[e.ID] == e && e.Endpoint.IsAllowed() {
			live = append(live, e)
		}
	}
	tab.nodesMu.Unlock()

	th := target.Hash()
	dist := make(map[*Entry][32]byte, len(live))
	for _, e := range live {
		h := e.ID.Hash()
		var d [32]byte
		for i := range d {
			d[i] = h[i] ^ th[i]
		}
		dist[e] = d
	}
	sort.Slice(live, func(i, j int) bool {
		di, dj := dist[live[i]], dist[live[j]]
		return bytes.Compare(di[:], dj[:]) < 0
	})

	if len(live) > bucketSize {
		live = live[:bucketSize]
	}
	return live
}
