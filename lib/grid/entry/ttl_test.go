package entry

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/grid"
)

// TestUpdateTTL tests applying a new ttl to a live value
func TestUpdateTTL(t *testing.T) {
	env := newTestEnv()
	e := env.entry("k")
	e.RawPut([]byte("v"), grid.TTLEternal)
	ver := e.Version()

	ok, err := e.UpdateTTL(5_000)
	if err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}
	if !ok {
		t.Fatal("expected the ttl to be applied")
	}
	if e.TTL() != 5_000 {
		t.Errorf("expected ttl 5000, got %d", e.TTL())
	}
	if e.ExpireTime() == grid.ExpireEternal {
		t.Error("expected a concrete deadline")
	}
	if !e.Version().Equal(ver) {
		t.Error("a ttl update must not advance the version")
	}
}

// TestUpdateTTLNoValue tests that a ttl needs a live value to stick to
func TestUpdateTTLNoValue(t *testing.T) {
	env := newTestEnv()
	e := env.entry("k")

	ok, err := e.UpdateTTL(5_000)
	if err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}
	if ok {
		t.Error("an empty entry has nothing to apply a ttl to")
	}
}

// TestUpdateTTLInvalid tests the ttl validation
func TestUpdateTTLInvalid(t *testing.T) {
	env := newTestEnv()
	e := env.entry("k")

	if _, err := e.UpdateTTL(-5); grid.CodeOf(err) != grid.RetCInvalidOperation {
		t.Errorf("expected RetCInvalidOperation, got %v", err)
	}
}

// TestUpdateTTLZero tests immediate expiration via TTLZero
func TestUpdateTTLZero(t *testing.T) {
	env := newTestEnv()
	e := env.entry("k")
	e.RawPut([]byte("v"), grid.TTLEternal)

	ok, err := e.UpdateTTL(grid.TTLZero)
	if err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}
	if !ok {
		t.Fatal("expected the ttl to be applied")
	}

	expired, err := e.CheckExpired()
	if err != nil {
		t.Fatalf("CheckExpired failed: %v", err)
	}
	if !expired {
		t.Error("the value should be expired")
	}

	val, err := e.Peek()
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if val != nil {
		t.Errorf("peek must not return the expired value, got %q", val)
	}
}

// TestOnTTLExpired tests the eager expiry transition
func TestOnTTLExpired(t *testing.T) {
	env := newTestEnv()
	e := env.entry("k")
	e.RawPut([]byte("v"), grid.TTLEternal)
	if _, err := e.UpdateTTL(grid.TTLZero); err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}

	if !e.OnTTLExpired(env.mgr.Next()) {
		t.Fatal("expected the entry to be retired")
	}
	if !e.Obsolete() {
		t.Error("entry should be obsolete")
	}
	if env.obsoleteCount() != 1 {
		t.Errorf("expected 1 obsolete notification, got %d", env.obsoleteCount())
	}

	evs := env.bus.ofType(grid.EventExpired)
	if len(evs) != 1 {
		t.Fatalf("expected 1 expired event, got %d", len(evs))
	}
	if string(evs[0].OldValue) != "v" {
		t.Errorf("expired event should carry the old value, got %q", evs[0].OldValue)
	}
	if m := env.metrics.snapshot(); m.expired != 1 {
		t.Errorf("expected 1 expiration, got %d", m.expired)
	}
}

// TestOnTTLExpiredDeferred tests that deferred-delete mode tombstones the
// expired entry instead of retiring it
func TestOnTTLExpiredDeferred(t *testing.T) {
	env := newTestEnv()
	env.cctx.DeferredDelete = true
	e := env.entry("k")
	e.RawPut([]byte("v"), grid.TTLEternal)
	ver := e.Version()
	if _, err := e.UpdateTTL(grid.TTLZero); err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}

	if e.OnTTLExpired(env.mgr.Next()) {
		t.Error("deferred mode tombstones instead of retiring")
	}
	if e.Obsolete() {
		t.Error("entry should still be live")
	}
	if !e.Deleted() {
		t.Error("expected a tombstone")
	}

	// the tombstone must still win arbitration against stale remote updates
	if !e.Version().Equal(ver) {
		t.Error("the tombstone should keep the value's version")
	}
}

// TestOnTTLExpiredLiveValue tests that a live value is left alone
func TestOnTTLExpiredLiveValue(t *testing.T) {
	env := newTestEnv()
	e := env.entry("k")
	e.RawPut([]byte("v"), 60_000)

	if e.OnTTLExpired(env.mgr.Next()) {
		t.Error("a live value must not be retired")
	}
	if !e.HasValue() || e.Obsolete() {
		t.Error("entry should be untouched")
	}
}

// TestExpiryTracking tests the deadline callbacks feeding the eager sweeper
func TestExpiryTracking(t *testing.T) {
	env := newTestEnv()
	e := env.entry("k")

	e.RawPut([]byte("v"), 60_000)

	env.mu.Lock()
	tracked := append([]int64(nil), env.expiries...)
	env.mu.Unlock()
	if len(tracked) != 1 || tracked[0] == 0 {
		t.Fatalf("expected one concrete deadline to be tracked, got %v", tracked)
	}

	// dropping the value cancels the tracking
	if _, err := e.InnerRemove(context.Background(), RemoveRequest{}); err != nil {
		t.Fatalf("InnerRemove failed: %v", err)
	}

	env.mu.Lock()
	tracked = append([]int64(nil), env.expiries...)
	env.mu.Unlock()
	if len(tracked) != 2 || tracked[1] != 0 {
		t.Fatalf("expected the tracking to be cancelled, got %v", tracked)
	}
}
