package node

import (
	"crypto/rand"
	"math/bits"
)

// LogDistance returns the XOR log-distance between two node IDs: the
// 1-based index of the highest-order differing bit between the Keccak256
// hashes of a and b. Identical IDs yield 0; the range is otherwise
// 1 to 256. Bucket placement uses LogDistance-1 as the bucket index.
func LogDistance(a, b ID) int {
	ha, hb := a.Hash(), b.Hash()
	for i := 0; i < len(ha); i++ {
		x := ha[i] ^ hb[i]
		if x != 0 {
			return (len(ha)-i-1)*8 + (8 - bits.LeadingZeros8(x))
		}
	}
	return 0
}

// DistanceCmp compares the XOR distance of a and b to target, over the
// Keccak256 hashes of the IDs.
//
// Returns a negative value if a is closer to target, zero if equidistant,
// positive if b is closer.
func DistanceCmp(target, a, b ID) int {
	ht, ha, hb := target.Hash(), a.Hash(), b.Hash()
	return hashDistCmp(ht, ha, hb)
}

func hashDistCmp(target, a, b [32]byte) int {
	for i := 0; i < len(target); i++ {
		da := a[i] ^ target[i]
		db := b[i] ^ target[i]
		if da != db {
			if da < db {
				return -1
			}
			return 1
		}
	}
	return 0
}

// RandomID returns a uniformly random node ID.
//
// Random IDs are used as lookup targets to stir the routing table; they
// need not correspond to valid curve points.
func RandomID() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		panic("node: crypto/rand unavailable: " + err.Error())
	}
	return id
}
