package db

import (
	"database/sql"
	"net"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Thyanin/aleth/discover"
	"github.com/Thyanin/aleth/discover/node"
)

// Node is one persisted routing table entry.
type Node struct {
	NodeID       []byte        `db:"nodeid"`
	IP           []byte        `db:"ip"`
	UDPPort      int           `db:"udp_port"`
	TCPPort      int           `db:"tcp_port"`
	Distance     int           `db:"distance"`
	FirstSeen    int64         `db:"first_seen"`
	LastSeen     sql.NullInt64 `db:"last_seen"`
	FailureCount int           `db:"failure_count"`
}

// ToNode converts a stored row back to a discovery node.
func (n *Node) ToNode() node.Node {
	var id node.ID
	copy(id[:], n.NodeID)
	return node.Node{
		ID: id,
		Endpoint: node.Endpoint{
			IP:  net.IP(n.IP),
			UDP: uint16(n.UDPPort),
			TCP: uint16(n.TCPPort),
		},
	}
}

// StoreSnapshot replaces the persisted table with the given entries.
func (d *Database) StoreSnapshot(entries []discover.Entry) error {
	return d.RunTransaction(func(tx *sqlx.Tx) error {
		d.trackQuery()
		if _, err := tx.Exec(`DELETE FROM nodes`); err != nil {
			return err
		}
		for _, e := range entries {
			d.trackQuery()
			s := e.Stats()
			var lastSeen sql.NullInt64
			if t := s.LastSeen(); !t.IsZero() {
				lastSeen = sql.NullInt64{Int64: t.Unix(), Valid: true}
			}
			_, err := tx.Exec(`
				INSERT INTO nodes (nodeid, ip, udp_port, tcp_port, distance, first_seen, last_seen, failure_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT(nodeid) DO UPDATE SET
					ip = excluded.ip,
					udp_port = excluded.udp_port,
					tcp_port = excluded.tcp_port,
					distance = excluded.distance,
					last_seen = excluded.last_seen,
					failure_count = excluded.failure_count`,
				e.ID.Bytes(), []byte(e.Endpoint.IP), int(e.Endpoint.UDP), int(e.Endpoint.TCP),
				e.Distance, s.FirstSeen().Unix(), lastSeen, s.FailureCount(),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNodes returns all persisted entries, most recently seen first.
func (d *Database) GetNodes() ([]*Node, error) {
	d.trackQuery()
	nodes := []*Node{}
	err := d.db.Select(&nodes, `
		SELECT nodeid, ip, udp_port, tcp_port, distance, first_seen, last_seen, failure_count
		FROM nodes
		ORDER BY last_seen DESC`)
	return nodes, err
}

// CountNodes returns the number of persisted entries.
func (d *Database) CountNodes() (int, error) {
	d.trackQuery()
	var count int
	err := d.db.Get(&count, `SELECT COUNT(*) FROM nodes`)
	return count, err
}

// PruneNodes removes entries last seen before the cutoff. Rows with no
// recorded sighting are kept.
func (d *Database) PruneNodes(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	var removed int64
	err := d.RunTransaction(func(tx *sqlx.Tx) error {
		d.trackQuery()
		res, err := tx.Exec(`DELETE FROM nodes WHERE last_seen IS NOT NULL AND last_seen < $1`, cutoff)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}
