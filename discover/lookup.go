package discover

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thyanin/aleth/discover/node"
	"github.com/Thyanin/aleth/discover/protocol"
)

// pendingFindNode records one unanswered FINDNODE request.
type pendingFindNode struct {
	id     node.ID
	sentAt time.Time
}

// Lookup starts an iterative FINDNODE walk toward target. Rounds run on
// the scheduler; the call itself only issues the first round.
func (tab *NodeTable) Lookup(target node.ID) {
	tab.doDiscover(target, 0, make(map[*Entry]bool))
}

// doDiscover runs one lookup round: query up to alpha of the nearest
// not-yet-tried entries, then schedule the next round. The walk ends
// when no untried entry remains or after maxSteps rounds; either way
// the next periodic refresh is scheduled.
func (tab *NodeTable) doDiscover(target node.ID, round int, tried map[*Entry]bool) {
	if !tab.isOpen() {
		return
	}

	if round == maxSteps {
		tab.log.WithField("rounds", round).Debug("discover: terminating lookup")
		tab.doDiscovery()
		return
	}

	nearest := tab.nearestNodeEntries(target)
	var queried []*Entry
	for _, e := range nearest {
		if len(queried) >= alpha {
			break
		}
		if tried[e] {
			continue
		}
		queried = append(queried, e)

		tab.findNodeMu.Lock()
		tab.findNodeTimeout = append(tab.findNodeTimeout, pendingFindNode{id: e.ID, sentAt: time.Now()})
		tab.findNodeMu.Unlock()

		tab.log.WithFields(logrus.Fields{
			"target": target.String(),
			"node":   e.ID.String(),
		}).Debug("discover: sending findnode")
		tab.send(e.ID, e.Endpoint.UDPAddr(), &protocol.Findnode{
			Target:     target,
			Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
		})
	}

	if len(queried) == 0 {
		tab.log.WithField("rounds", round).Debug("discover: terminating lookup")
		tab.doDiscovery()
		return
	}
	for _, e := range queried {
		tried[e] = true
	}

	tab.timers.Schedule(2*tab.cfg.RequestTimeout, func() {
		tab.doDiscover(target, round+1, tried)
	})
}

// doDiscovery schedules the next periodic refresh: a lookup toward a
// fresh random target, stirring the buckets.
func (tab *NodeTable) doDiscovery() {
	tab.timers.Schedule(tab.cfg.BucketRefresh, func() {
		tab.log.Debug("discover: performing random discovery")
		tab.doDiscover(node.RandomID(), 0, make(map[*Entry]bool))
	})
}

// expectNeighbors reports whether a NEIGHBORS packet from id answers an
// outstanding FINDNODE. Stale rows for the sender are pruned; a row
// still within the request timeout stays recorded so that follow-up
// packets of a split response match too.
func (tab *NodeTable) expectNeighbors(id node.ID) bool {
	now := time.Now()
	expected := false

	tab.findNodeMu.Lock()
	kept := tab.findNodeTimeout[:0]
	for _, p := range tab.findNodeTimeout {
		switch {
		case p.id == id && now.Sub(p.sentAt) < tab.cfg.RequestTimeout:
			expected = true
			kept = append(kept, p)
		case p.id == id:
			// stale request to this peer, discard
		default:
			kept = append(kept, p)
		}
	}
	tab.findNodeTimeout = kept
	tab.findNodeMu.Unlock()

	return expected
}

// pendingFindNodeCount returns the size of the unanswered FINDNODE
// table, used by the status page.
func (tab *NodeTable) pendingFindNodeCount() int {
	tab.findNodeMu.Lock()
	defer tab.findNodeMu.Unlock()
	return len(tab.findNodeTimeout)
}
