package discover

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Kademlia parameters and protocol timing. These match the wire
// protocol's expectations and are not configurable.
const (
	// bucketSize is the bound on entries per bucket (k).
	bucketSize = 16

	// numBuckets is one bucket per possible XOR log-distance.
	numBuckets = 256

	// alpha is the lookup concurrency factor.
	alpha = 3

	// maxSteps bounds the rounds of a single lookup.
	maxSteps = 8
)

const (
	// defaultRequestTimeout is how long a peer gets to answer a PING or
	// FINDNODE before the request is considered failed.
	defaultRequestTimeout = 300 * time.Millisecond

	// defaultBucketRefresh is the pause between random lookups.
	defaultBucketRefresh = 7200 * time.Millisecond

	// defaultEvictionCheckInterval is the sweep period over outstanding
	// eviction challenges.
	defaultEvictionCheckInterval = 75 * time.Millisecond
)

// Config configures a NodeTable.
type Config struct {
	// PrivateKey is the host identity and datagram signing key (required)
	PrivateKey *ecdsa.PrivateKey

	// Enabled starts discovery when true. A disabled table is dormant:
	// it never touches the transport and runs no timers, but table
	// operations still work.
	Enabled bool

	// RequestTimeout overrides the PING/FINDNODE answer deadline
	RequestTimeout time.Duration

	// BucketRefresh overrides the pause between random lookups
	BucketRefresh time.Duration

	// EvictionCheckInterval overrides the eviction sweep period
	EvictionCheckInterval time.Duration

	// Logger receives protocol and table diagnostics (optional)
	Logger logrus.FieldLogger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PrivateKey == nil {
		return fmt.Errorf("discover: private key is required")
	}
	if c.RequestTimeout < 0 || c.BucketRefresh < 0 || c.EvictionCheckInterval < 0 {
		return fmt.Errorf("discover: timing overrides must be positive")
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.BucketRefresh == 0 {
		c.BucketRefresh = defaultBucketRefresh
	}
	if c.EvictionCheckInterval == 0 {
		c.EvictionCheckInterval = defaultEvictionCheckInterval
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger().WithField("module", "discover")
	}
}

// DefaultConfig returns a configuration with defaults applied.
// PrivateKey must still be set by the caller.
func DefaultConfig() *Config {
	c := &Config{Enabled: true}
	c.ApplyDefaults()
	return c
}
