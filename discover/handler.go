package discover

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/Thyanin/aleth/discover/node"
	"github.com/Thyanin/aleth/discover/protocol"
)

// handlePacket reacts to one received datagram. It is registered with
// the transport's handler chain and always claims the packet: invalid
// datagrams are logged and dropped here, never passed on.
func (tab *NodeTable) handlePacket(data []byte, from *net.UDPAddr) (claimed bool) {
	defer func() {
		if r := recover(); r != nil {
			claimed = true
			tab.log.WithFields(logrus.Fields{
				"from":  from.String(),
				"panic": r,
			}).Error("discover: panic handling packet")
		}
	}()

	pkt, fromID, hash, err := protocol.Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"from":  from.String(),
			"error": err,
		}).Warn("discover: dropping invalid packet")
		return true
	}

	if fromID == tab.selfID {
		tab.log.WithField("from", from.String()).Trace("discover: ignoring own packet")
		return true
	}

	tab.log.WithFields(logrus.Fields{
		"packet": pkt.Name(),
		"node":   fromID.String(),
		"from":   from.String(),
	}).Debug("discover: received packet")

	switch p := pkt.(type) {
	case *protocol.Ping:
		tab.handlePing(fromID, from, p, hash)
	case *protocol.Pong:
		tab.handlePong(fromID, p)
	case *protocol.Findnode:
		tab.handleFindnode(fromID, from, p)
	case *protocol.Neighbors:
		tab.handleNeighbors(fromID, from, p)
	}

	tab.noteActiveNode(fromID, node.Endpoint{
		IP:  from.IP,
		UDP: uint16(from.Port),
		TCP: uint16(from.Port),
	})
	return true
}

// handlePing registers the sender and answers with a PONG echoing the
// datagram hash. The sender's endpoint is taken from the datagram
// source, keeping only the advertised TCP port.
func (tab *NodeTable) handlePing(fromID node.ID, from *net.UDPAddr, ping *protocol.Ping, hash []byte) {
	source := node.Endpoint{
		IP:  from.IP,
		UDP: uint16(from.Port),
		TCP: ping.From.TCP,
	}
	tab.AddNode(node.Node{ID: fromID, Endpoint: source}, RelationUnknown)

	tab.send(fromID, from, &protocol.Pong{
		To:         protocol.NewEndpoint(source),
		ReplyTok:   hash,
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	})
}

// handlePong resolves eviction challenges and pending states, and
// learns the host's external endpoint from the destination field.
//
// A PONG from a challenged incumbent that lands within the request
// timeout settles the arbitration in the incumbent's favor: the
// replacement candidate is dropped from the registry. Every other PONG
// just clears the sender's pending flag.
func (tab *NodeTable) handlePong(fromID node.ID, pong *protocol.Pong) {
	if replacementID, survived := tab.resolveChallenge(fromID); survived {
		tab.nodesMu.Lock()
		replacement := tab.entries[replacementID]
		if incumbent := tab.entries[fromID]; incumbent != nil {
			incumbent.Pending = false
			incumbent.stats.ResetFailures()
		}
		tab.nodesMu.Unlock()

		tab.log.WithField("node", fromID.String()).Debug("discover: incumbent survived eviction challenge")
		if replacement != nil {
			tab.dropNode(replacement)
		}
	} else {
		tab.nodesMu.Lock()
		if e := tab.entries[fromID]; e != nil {
			e.Pending = false
			e.stats.ResetFailures()
		}
		tab.nodesMu.Unlock()
	}

	// endpoint learning: the PONG reports our address as the peer saw it
	to := pong.To.NodeEndpoint()
	tab.nodesMu.Lock()
	if !tab.self.Endpoint.IsAllowed() && node.IsRoutableIP(to.IP) {
		tab.self.Endpoint.IP = to.IP
	}
	if to.UDP != 0 {
		tab.self.Endpoint.UDP = to.UDP
	}
	tab.nodesMu.Unlock()
}

// handleFindnode answers with the table's nearest entries to the
// requested target, split across as many NEIGHBORS packets as the
// datagram size limit requires.
func (tab *NodeTable) handleFindnode(fromID node.ID, from *net.UDPAddr, req *protocol.Findnode) {
	nearest := tab.nearestNodeEntries(req.Target)
	nlimit := tab.neighborLimit()

	for offset := 0; offset < len(nearest); offset += nlimit {
		end := offset + nlimit
		if end > len(nearest) {
			end = len(nearest)
		}

		records := make([]protocol.NodeRecord, 0, end-offset)
		for _, e := range nearest[offset:end] {
			records = append(records, protocol.NodeRecord{
				IP:  e.Endpoint.IP,
				UDP: e.Endpoint.UDP,
				TCP: e.Endpoint.TCP,
				ID:  e.ID,
			})
		}

		tab.send(fromID, from, &protocol.Neighbors{
			Nodes:      records,
			Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
		})
	}
}

// handleNeighbors feeds the carried nodes into the table, but only when
// the packet answers one of our outstanding FINDNODE requests.
// Unsolicited NEIGHBORS packets are dropped without adding anything;
// the sender's own liveness is still noted by the dispatch tail.
func (tab *NodeTable) handleNeighbors(fromID node.ID, from *net.UDPAddr, resp *protocol.Neighbors) {
	if !tab.expectNeighbors(fromID) {
		tab.log.WithFields(logrus.Fields{
			"node": fromID.String(),
			"from": from.String(),
		}).Debug("discover: dropping unsolicited neighbors packet")
		return
	}

	for _, rec := range resp.Nodes {
		tab.AddNode(rec.Node(), RelationUnknown)
	}
}

// send signs and transmits one packet, best-effort.
func (tab *NodeTable) send(toID node.ID, to *net.UDPAddr, pkt protocol.Packet) {
	if !tab.isOpen() {
		return
	}

	data, _, err := protocol.Encode(tab.priv, pkt)
	if err != nil {
		tab.log.WithError(err).Error("discover: packet encode failed")
		return
	}

	tab.log.WithFields(logrus.Fields{
		"packet": pkt.Name(),
		"node":   toID.String(),
		"to":     to.String(),
	}).Debug("discover: sending packet")

	if err := tab.transport.Send(data, to); err != nil {
		// timers retry naturally; nothing else to do
		tab.log.WithFields(logrus.Fields{
			"to":    to.String(),
			"error": err,
		}).Debug("discover: packet send failed")
	}
}

// ping sends a liveness probe carrying our own endpoint.
func (tab *NodeTable) ping(toID node.ID, to node.Endpoint) {
	tab.nodesMu.Lock()
	source := tab.self.Endpoint
	tab.nodesMu.Unlock()

	tab.send(toID, to.UDPAddr(), &protocol.Ping{
		Version:    protocol.Version,
		From:       protocol.NewEndpoint(source),
		To:         protocol.NewEndpoint(to),
		Expiration: protocol.MakeExpiration(protocol.ExpirationWindow),
	})
}

// neighborLimit is how many node records fit into one NEIGHBORS packet
// for the transport's datagram size.
func (tab *NodeTable) neighborLimit() int {
	max := protocol.MaxDatagramSize
	if tab.transport != nil {
		max = tab.transport.MaxDatagramSize()
	}
	nlimit := (max - 109) / 90
	if nlimit < 1 {
		nlimit = 1
	}
	return nlimit
}
