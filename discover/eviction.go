package discover

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thyanin/aleth/discover/node"
)

// evictionChallenge is one outstanding liveness challenge: the id of
// the replacement candidate and when the challenge PING went out.
type evictionChallenge struct {
	replacementID node.ID
	sentAt        time.Time
}

// evict starts the arbitration for a full bucket: the least recently
// active incumbent is challenged with a PING, and the replacement
// candidate waits in the registry. The incumbent keeps its slot if it
// answers within the request timeout; otherwise the sweep drops it and
// seats the replacement.
//
// At most one challenge per incumbent is kept; a second candidate
// arriving during arbitration is simply not recorded.
func (tab *NodeTable) evict(leastSeen, replacement *Entry) {
	if !tab.isOpen() {
		return
	}

	tab.evictionsMu.Lock()
	if _, ok := tab.evictions[leastSeen.ID]; !ok {
		tab.evictions[leastSeen.ID] = evictionChallenge{
			replacementID: replacement.ID,
			sentAt:        time.Now(),
		}
	}
	count := len(tab.evictions)
	tab.evictionsMu.Unlock()

	tab.log.WithFields(logrus.Fields{
		"incumbent":   leastSeen.ID.String(),
		"replacement": replacement.ID.String(),
	}).Debug("discover: starting eviction challenge")

	if count == 1 {
		tab.scheduleEvictionCheck()
	}
	tab.ping(leastSeen.ID, leastSeen.Endpoint)
}

func (tab *NodeTable) scheduleEvictionCheck() {
	tab.timers.Schedule(tab.cfg.EvictionCheckInterval, tab.checkEvictions)
}

// checkEvictions sweeps the challenge table for timeouts. A timed-out
// incumbent is dropped; its replacement, if still registered, is re-fed
// through noteActiveNode to take the freed slot. The sweep reschedules
// itself while challenges remain outstanding.
func (tab *NodeTable) checkEvictions() {
	if tab.timers.Stopped() {
		return
	}

	now := time.Now()
	var drop, activate []*Entry

	tab.nodesMu.Lock()
	tab.evictionsMu.Lock()
	for id, ch := range tab.evictions {
		if now.Sub(ch.sentAt) <= tab.cfg.RequestTimeout {
			continue
		}
		if e := tab.entries[id]; e != nil {
			drop = append(drop, e)
			if r := tab.entries[ch.replacementID]; r != nil {
				activate = append(activate, r)
			}
		}
		delete(tab.evictions, id)
	}
	remaining := len(tab.evictions)
	tab.evictionsMu.Unlock()
	tab.nodesMu.Unlock()

	for _, e := range drop {
		e.stats.MarkFailure()
		tab.dropNode(e)
	}
	for _, r := range activate {
		tab.noteActiveNode(r.ID, r.Endpoint)
	}

	if remaining > 0 {
		tab.scheduleEvictionCheck()
	}
}

// resolveChallenge consumes the eviction row for a PONG sender, if one
// is outstanding and still within the request timeout. It returns the
// replacement candidate id and true when the incumbent survived.
func (tab *NodeTable) resolveChallenge(id node.ID) (node.ID, bool) {
	tab.evictionsMu.Lock()
	defer tab.evictionsMu.Unlock()

	ch, ok := tab.evictions[id]
	if !ok {
		return node.ID{}, false
	}
	if time.Since(ch.sentAt) > tab.cfg.RequestTimeout {
		// stale row; the sweep will handle it
		return node.ID{}, false
	}
	delete(tab.evictions, id)
	return ch.replacementID, true
}
