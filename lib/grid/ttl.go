package grid

import "time"

// --------------------------------------------------------------------------
// TTL Semantics
// --------------------------------------------------------------------------

// TTLs and expire times are in unix milliseconds. A ttl describes a
// duration, an expire time an absolute deadline. The two are always stored
// together: expireTime = now + ttl at the moment the ttl was applied.
const (
	// TTLEternal keeps the entry until removed.
	TTLEternal int64 = 0

	// TTLNotChanged instructs an update to keep the entry's current ttl
	// and expire time. Never stored.
	TTLNotChanged int64 = -1

	// TTLZero expires the entry immediately. Never stored.
	TTLZero int64 = -2

	// TTLMinimum is the smallest storable positive ttl.
	TTLMinimum int64 = 1

	// ExpireEternal means the entry never expires.
	ExpireEternal int64 = 0

	// ExpireCalculate instructs an update to derive the expire time from
	// the resolved ttl. Never stored.
	ExpireCalculate int64 = -1
)

// ToExpireTime converts a normalized ttl into an absolute expire time
// relative to now.
func ToExpireTime(ttl int64) int64 {
	if ttl == TTLEternal {
		return ExpireEternal
	}
	expireTime := time.Now().UnixMilli() + ttl

	// overflow guard
	if expireTime <= 0 {
		expireTime = ExpireEternal
	}
	return expireTime
}

// IsExpired reports whether the given absolute expire time has elapsed.
func IsExpired(expireTime int64) bool {
	return expireTime != ExpireEternal && expireTime <= time.Now().UnixMilli()
}

// --------------------------------------------------------------------------
// Expiry Policy
// --------------------------------------------------------------------------

// IExpiryPolicy supplies ttls for entry lifecycle events. Each method
// returns a ttl in milliseconds, TTLNotChanged to leave the entry's ttl
// untouched, or TTLZero to expire the entry.
type IExpiryPolicy interface {
	// ForCreate is consulted when a value is installed into an entry that
	// had none.
	ForCreate() int64

	// ForUpdate is consulted when an existing value is replaced.
	ForUpdate() int64

	// ForAccess is consulted after a read (sliding expiration).
	ForAccess() int64
}

// InitialTTLAndExpireTime resolves the ttl/expire pair for a freshly
// created value under the given policy. A TTLZero policy yields the
// minimum ttl with an already-elapsed deadline, so the value is born
// expired.
func InitialTTLAndExpireTime(plc IExpiryPolicy) (ttl, expireTime int64) {
	if plc == nil {
		return TTLEternal, ExpireEternal
	}

	ttl = plc.ForCreate()

	switch ttl {
	case TTLZero:
		return TTLMinimum, time.Now().UnixMilli() - 1
	case TTLNotChanged:
		return TTLEternal, ExpireEternal
	default:
		return ttl, ToExpireTime(ttl)
	}
}

// --------------------------------------------------------------------------
// Common Policies
// --------------------------------------------------------------------------

// ConstantExpiryPolicy applies one ttl on create and update and leaves
// reads alone.
type ConstantExpiryPolicy struct {
	TTL int64
}

func (p ConstantExpiryPolicy) ForCreate() int64 { return p.TTL }
func (p ConstantExpiryPolicy) ForUpdate() int64 { return p.TTL }
func (p ConstantExpiryPolicy) ForAccess() int64 { return TTLNotChanged }

// TouchExpiryPolicy renews one ttl on every access (sliding expiration).
type TouchExpiryPolicy struct {
	TTL int64
}

func (p TouchExpiryPolicy) ForCreate() int64 { return p.TTL }
func (p TouchExpiryPolicy) ForUpdate() int64 { return p.TTL }
func (p TouchExpiryPolicy) ForAccess() int64 { return p.TTL }
