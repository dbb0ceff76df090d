package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// Seeds
// --------------------------------------------------------------------------

// GenerateSeed draws a random seed for hash distribution from the system
// source, falling back to the wall clock if that source is unavailable.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Key hashing
// --------------------------------------------------------------------------

// FNV-1a constants
const (
	fnvOffset64 uint64 = 14695981039346656037
	fnvPrime64  uint64 = 1099511628211
)

// UintKey is the hashed key type entries are addressed by in the shard maps.
type UintKey uint64

// HashString hashes s with FNV-1a, folding seed into the initial state so
// separate cache instances distribute the same keys differently.
func HashString(s string, seed uint64) UintKey {
	hash := fnvOffset64 ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= fnvPrime64
	}
	return UintKey(hash)
}
