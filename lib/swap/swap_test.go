package swap

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

func testRecord(val []byte) grid.SwapRecord {
	return grid.SwapRecord{
		Value:      val,
		Ver:        version.Version{TopVer: 2, Time: 1234, Order: 77, NodeOrder: 3, DataCenter: 1},
		TTL:        5000,
		ExpireTime: 99_000,
	}
}

// TestCodecRoundTrip verifies records survive encode/decode
func TestCodecRoundTrip(t *testing.T) {
	rec := testRecord([]byte("some swapped value"))

	got, err := decodeRecord(encodeRecord(rec, false))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !bytes.Equal(got.Value, rec.Value) {
		t.Errorf("value = %q, want %q", got.Value, rec.Value)
	}
	if !got.Ver.Equal(rec.Ver) || got.Ver.Time != rec.Ver.Time || got.Ver.DataCenter != rec.Ver.DataCenter {
		t.Errorf("version = %v, want %v", got.Ver, rec.Ver)
	}
	if got.TTL != rec.TTL || got.ExpireTime != rec.ExpireTime {
		t.Errorf("ttl/expire = %d/%d, want %d/%d", got.TTL, got.ExpireTime, rec.TTL, rec.ExpireTime)
	}
}

// TestCodecConflictVersion verifies conflict sub-versions are persisted
func TestCodecConflictVersion(t *testing.T) {
	rec := testRecord([]byte("replicated"))
	rec.Ver = rec.Ver.WithConflict(version.Version{TopVer: 9, Order: 5, NodeOrder: 8, DataCenter: 2})

	got, err := decodeRecord(encodeRecord(rec, false))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !got.Ver.HasConflict() {
		t.Fatal("conflict version lost in round trip")
	}
	if !got.Ver.ConflictVersion().Equal(rec.Ver.ConflictVersion()) {
		t.Errorf("conflict version = %v, want %v", got.Ver.ConflictVersion(), rec.Ver.ConflictVersion())
	}
}

// TestCodecCompression verifies compressible values shrink and survive
func TestCodecCompression(t *testing.T) {
	rec := testRecord(bytes.Repeat([]byte("abcdefgh"), 512))

	plain := encodeRecord(rec, false)
	compressed := encodeRecord(rec, true)

	if len(compressed) >= len(plain) {
		t.Errorf("compressed record (%d bytes) not smaller than plain (%d bytes)",
			len(compressed), len(plain))
	}

	got, err := decodeRecord(compressed)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(got.Value, rec.Value) {
		t.Error("compressed value did not survive the round trip")
	}

	// incompressible small values stay plain
	small := testRecord([]byte("xy"))
	if got, err := decodeRecord(encodeRecord(small, true)); err != nil || !bytes.Equal(got.Value, small.Value) {
		t.Errorf("small value round trip failed: %v", err)
	}
}

// TestCodecCorruptData verifies truncated records are rejected
func TestCodecCorruptData(t *testing.T) {
	rec := testRecord([]byte("value"))
	data := encodeRecord(rec, false)

	for _, cut := range []int{0, 2, headerSize, headerSize + 10, len(data) - 1} {
		if _, err := decodeRecord(data[:cut]); err == nil {
			t.Errorf("decode of %d-byte prefix should fail", cut)
		}
	}

	bad := append([]byte{}, data...)
	bad[0] = 99
	if _, err := decodeRecord(bad); err == nil {
		t.Error("decode of unknown format version should fail")
	}
}

// TestStoreReadWriteRemove verifies the basic store operations
func TestStoreReadWriteRemove(t *testing.T) {
	s, err := NewInMemoryStore(false)
	if err != nil {
		t.Fatalf("NewInMemoryStore failed: %v", err)
	}
	defer s.Close()

	// absent key
	if rec, err := s.Read("missing"); err != nil || rec != nil {
		t.Errorf("Read(missing) = (%v, %v), want (nil, nil)", rec, err)
	}

	rec := testRecord([]byte("payload"))
	if err := s.Write("k", rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Read("k")
	if err != nil || got == nil {
		t.Fatalf("Read failed: (%v, %v)", got, err)
	}
	if !bytes.Equal(got.Value, rec.Value) || !got.Ver.Equal(rec.Ver) {
		t.Errorf("Read returned %v, want %v", got, rec)
	}

	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if got, _ := s.Read("k"); got != nil {
		t.Error("record still readable after Remove")
	}

	// removing an absent key is not an error
	if err := s.Remove("k"); err != nil {
		t.Errorf("Remove of absent key failed: %v", err)
	}
}

// TestStoreReadAndRemove verifies the combined read-delete
func TestStoreReadAndRemove(t *testing.T) {
	s, err := NewInMemoryStore(true)
	if err != nil {
		t.Fatalf("NewInMemoryStore failed: %v", err)
	}
	defer s.Close()

	rec := testRecord([]byte("take me"))
	if err := s.Write("k", rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.ReadAndRemove("k")
	if err != nil || got == nil {
		t.Fatalf("ReadAndRemove failed: (%v, %v)", got, err)
	}
	if !bytes.Equal(got.Value, rec.Value) {
		t.Errorf("value = %q, want %q", got.Value, rec.Value)
	}

	if again, _ := s.Read("k"); again != nil {
		t.Error("record still present after ReadAndRemove")
	}

	// absent key
	if got, err := s.ReadAndRemove("k"); err != nil || got != nil {
		t.Errorf("ReadAndRemove(absent) = (%v, %v), want (nil, nil)", got, err)
	}
}

// TestStoreWriteBatch verifies batched demotion writes
func TestStoreWriteBatch(t *testing.T) {
	s, err := NewInMemoryStore(false)
	if err != nil {
		t.Fatalf("NewInMemoryStore failed: %v", err)
	}
	defer s.Close()

	recs := map[string]grid.SwapRecord{
		"a": testRecord([]byte("alpha")),
		"b": testRecord([]byte("beta")),
		"c": testRecord([]byte("gamma")),
	}

	if err := s.WriteBatch(recs); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	for key, want := range recs {
		got, err := s.Read(key)
		if err != nil || got == nil {
			t.Fatalf("Read(%q) failed: (%v, %v)", key, got, err)
		}
		if !bytes.Equal(got.Value, want.Value) {
			t.Errorf("Read(%q) = %q, want %q", key, got.Value, want.Value)
		}
	}

	// empty batch is a no-op
	if err := s.WriteBatch(nil); err != nil {
		t.Errorf("empty WriteBatch failed: %v", err)
	}
}

// TestStoreOnDisk verifies records survive reopening a disk store
func TestStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapdb")

	s, err := NewStore(path, true)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	rec := testRecord([]byte("durable"))
	if err := s.Write("k", rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewStore(path, true)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Read("k")
	if err != nil || got == nil {
		t.Fatalf("Read after reopen failed: (%v, %v)", got, err)
	}
	if !bytes.Equal(got.Value, rec.Value) {
		t.Errorf("value after reopen = %q, want %q", got.Value, rec.Value)
	}
}

// TestNewFromConfig verifies configuration-driven construction
func TestNewFromConfig(t *testing.T) {
	// no swap tier
	s, err := NewFromConfig(grid.Config{})
	if err != nil || s != nil {
		t.Errorf("NewFromConfig(no swap) = (%v, %v), want (nil, nil)", s, err)
	}

	// in-memory tier
	s, err = NewFromConfig(grid.Config{SwapInMemory: true, SwapCompression: true})
	if err != nil || s == nil {
		t.Fatalf("NewFromConfig(in-memory) = (%v, %v)", s, err)
	}
	s.Close()
}
