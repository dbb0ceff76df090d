package offheap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// --------------------------------------------------------------------------
// Types & Constants
// --------------------------------------------------------------------------

// Handle addresses one allocation inside the arena. The zero value means
// "no allocation".
type Handle uint64

// Nil is the invalid handle.
const Nil Handle = 0

const (
	// headerSize precedes every allocation: 4 bytes payload length,
	// 4 bytes size class.
	headerSize = 8

	// minClass is the smallest size class (header included).
	minClass = 32

	// pad reserves the start of the mapping so offset 0 is never issued
	// as a handle.
	pad = 8
)

var (
	// ErrFull is returned when the arena cannot satisfy an allocation.
	ErrFull = errors.New("offheap: arena full")

	// ErrClosed is returned when the arena has been unmapped.
	ErrClosed = errors.New("offheap: arena closed")
)

// --------------------------------------------------------------------------
// Arena
// --------------------------------------------------------------------------

// Arena is a slab allocator over one anonymous memory mapping.
type Arena struct {
	mu     sync.Mutex
	mem    mmap.MMap
	next   int           // bump pointer for fresh allocations
	free   map[int][]int // size class -> free offsets
	used   int64         // bytes currently allocated (classes, not payloads)
	count  int64         // live allocations
	closed bool
}

// New maps an anonymous region of the given size and returns the arena.
// Size is rounded up to the minimum useful capacity.
func New(size int) (*Arena, error) {
	if size < minClass+pad {
		size = minClass + pad
	}

	mem, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("offheap: failed to map %d bytes: %w", size, err)
	}

	return &Arena{
		mem:  mem,
		next: pad,
		free: make(map[int][]int),
	}, nil
}

// sizeClass returns the power-of-two class that fits payload plus header.
func sizeClass(payload int) int {
	need := payload + headerSize
	if need <= minClass {
		return minClass
	}
	return 1 << bits.Len(uint(need-1))
}

// Put copies b into the arena and returns its handle. Returns ErrFull when
// no slab of the required class is available.
//
// Thread-safety: safe for concurrent use.
func (a *Arena) Put(b []byte) (Handle, error) {
	class := sizeClass(len(b))

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Nil, ErrClosed
	}

	off, ok := a.allocLocked(class)
	if !ok {
		return Nil, ErrFull
	}

	binary.LittleEndian.PutUint32(a.mem[off:], uint32(len(b)))
	binary.LittleEndian.PutUint32(a.mem[off+4:], uint32(class))
	copy(a.mem[off+headerSize:], b)

	a.used += int64(class)
	a.count++

	return Handle(off), nil
}

// allocLocked takes an offset from the class free list or bumps the
// allocation pointer.
func (a *Arena) allocLocked(class int) (int, bool) {
	if list := a.free[class]; len(list) > 0 {
		off := list[len(list)-1]
		a.free[class] = list[:len(list)-1]
		return off, true
	}

	if a.next+class > len(a.mem) {
		return 0, false
	}

	off := a.next
	a.next += class
	return off, true
}

// Get copies the payload of h out of the arena. Returns nil for the nil
// handle or a released slot.
//
// Thread-safety: safe for concurrent use.
func (a *Arena) Get(h Handle) []byte {
	if h == Nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	off := int(h)
	if off < pad || off+headerSize > len(a.mem) {
		return nil
	}

	n := int(binary.LittleEndian.Uint32(a.mem[off:]))
	if n < 0 || off+headerSize+n > len(a.mem) {
		return nil
	}

	out := make([]byte, n)
	copy(out, a.mem[off+headerSize:])
	return out
}

// Release returns the allocation of h to its class free list. Releasing
// the nil handle is a no-op.
//
// Thread-safety: safe for concurrent use.
func (a *Arena) Release(h Handle) {
	if h == Nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	off := int(h)
	if off < pad || off+headerSize > len(a.mem) {
		return
	}

	class := int(binary.LittleEndian.Uint32(a.mem[off+4:]))
	if class < minClass {
		return
	}

	// wipe the length so a stale handle reads as empty
	binary.LittleEndian.PutUint32(a.mem[off:], 0)

	a.free[class] = append(a.free[class], off)
	a.used -= int64(class)
	a.count--
}

// Used returns the number of bytes currently allocated (full size classes).
func (a *Arena) Used() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Count returns the number of live allocations.
func (a *Arena) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Capacity returns the size of the mapping in bytes.
func (a *Arena) Capacity() int {
	return len(a.mem)
}

// Close unmaps the arena. All handles become invalid.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if err := a.mem.Unmap(); err != nil {
		return fmt.Errorf("offheap: unmap failed: %w", err)
	}
	a.mem = nil
	return nil
}
