package db

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// stateKeyLastSnapshot records when the routing table was last
// persisted, so a restarting node knows how stale its seed data is.
const stateKeyLastSnapshot = "last_snapshot"

// GetState retrieves a runtime state value by key.
func (d *Database) GetState(key string) ([]byte, error) {
	d.trackQuery()
	var value []byte
	if err := d.db.Get(&value, `SELECT value FROM state WHERE key = $1`, key); err != nil {
		return nil, err
	}
	return value, nil
}

// SetState stores a runtime state value by key.
func (d *Database) SetState(key string, value []byte) error {
	return d.RunTransaction(func(tx *sqlx.Tx) error {
		d.trackQuery()
		_, err := tx.Exec(`
			INSERT INTO state (key, value) VALUES ($1, $2)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value)
		return err
	})
}

// SetLastSnapshotTime records when the table was last persisted.
// StoreSnapshot callers update it after every successful write.
func (d *Database) SetLastSnapshotTime(t time.Time) error {
	return d.SetState(stateKeyLastSnapshot, []byte(strconv.FormatInt(t.Unix(), 10)))
}

// LastSnapshotTime returns when the table was last persisted. Returns
// an error when no snapshot has been recorded yet.
func (d *Database) LastSnapshotTime() (time.Time, error) {
	value, err := d.GetState(stateKeyLastSnapshot)
	if err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("db: malformed %s state: %w", stateKeyLastSnapshot, err)
	}
	return time.Unix(sec, 0), nil
}
