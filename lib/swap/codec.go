package swap

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
	"github.com/golang/snappy"
)

// --------------------------------------------------------------------------
// Record Format
// --------------------------------------------------------------------------

// Record layout (big endian):
//
//	[0]     format version
//	[1]     flags
//	[2]     value kind
//	[3:]    version tuple (25 bytes)
//	        conflict version tuple if flagConflict (25 bytes)
//	        ttl int64, expire time int64
//	        value length uint32 + value bytes (snappy block if flagCompressed)
const recordVersion byte = 1

// Bit flags to indicate which optional parts are present
const (
	flagCompressed byte = 1 << 0
	flagConflict   byte = 1 << 1
)

const (
	versionTupleSize = 4 + 8 + 8 + 4 + 1
	headerSize       = 3
)

// compressMin is the smallest value worth running through snappy.
const compressMin = 64

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// encodeRecord serializes rec. With compress enabled, values are snappy
// compressed when that actually shrinks them.
func encodeRecord(rec grid.SwapRecord, compress bool) []byte {
	val := rec.Value
	var flags byte

	if compress && len(val) >= compressMin {
		if c := snappy.Encode(nil, val); len(c) < len(val) {
			val = c
			flags |= flagCompressed
		}
	}
	if rec.Ver.Conflict != nil {
		flags |= flagConflict
	}

	// Calculate total size needed
	size := headerSize + versionTupleSize + 8 + 8 + 4 + len(val)
	if flags&flagConflict != 0 {
		size += versionTupleSize
	}

	buf := make([]byte, size)
	buf[0] = recordVersion
	buf[1] = flags
	buf[2] = byte(rec.Kind)

	pos := headerSize
	pos = putVersionTuple(buf, pos, rec.Ver)
	if flags&flagConflict != 0 {
		pos = putVersionTuple(buf, pos, *rec.Ver.Conflict)
	}

	binary.BigEndian.PutUint64(buf[pos:], uint64(rec.TTL))
	pos += 8
	binary.BigEndian.PutUint64(buf[pos:], uint64(rec.ExpireTime))
	pos += 8

	binary.BigEndian.PutUint32(buf[pos:], uint32(len(val)))
	pos += 4
	copy(buf[pos:], val)

	return buf
}

// putVersionTuple writes the base tuple of v at pos and returns the new
// position. Conflict sub-versions are handled by the caller.
func putVersionTuple(buf []byte, pos int, v version.Version) int {
	binary.BigEndian.PutUint32(buf[pos:], v.TopVer)
	pos += 4
	binary.BigEndian.PutUint64(buf[pos:], v.Time)
	pos += 8
	binary.BigEndian.PutUint64(buf[pos:], v.Order)
	pos += 8
	binary.BigEndian.PutUint32(buf[pos:], v.NodeOrder)
	pos += 4
	buf[pos] = v.DataCenter
	return pos + 1
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// decodeRecord deserializes a record previously produced by encodeRecord.
func decodeRecord(data []byte) (*grid.SwapRecord, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("record too short for header")
	}
	if data[0] != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", data[0])
	}

	flags := data[1]
	rec := &grid.SwapRecord{Kind: grid.ValueKind(data[2])}

	pos := headerSize

	ver, pos, err := readVersionTuple(data, pos)
	if err != nil {
		return nil, err
	}
	rec.Ver = ver

	if flags&flagConflict != 0 {
		conflict, next, err := readVersionTuple(data, pos)
		if err != nil {
			return nil, err
		}
		rec.Ver = rec.Ver.WithConflict(conflict)
		pos = next
	}

	if pos+16 > len(data) {
		return nil, fmt.Errorf("record too short for ttl and expire time")
	}
	rec.TTL = int64(binary.BigEndian.Uint64(data[pos:]))
	pos += 8
	rec.ExpireTime = int64(binary.BigEndian.Uint64(data[pos:]))
	pos += 8

	if pos+4 > len(data) {
		return nil, fmt.Errorf("record too short for value length")
	}
	valLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4

	if pos+valLen > len(data) {
		return nil, fmt.Errorf("record too short for value data")
	}
	val := make([]byte, valLen)
	copy(val, data[pos:pos+valLen])

	if flags&flagCompressed != 0 {
		val, err = snappy.Decode(nil, val)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress value: %w", err)
		}
	}
	rec.Value = val

	return rec, nil
}

// readVersionTuple reads one base tuple at pos, returning the tuple and the
// new position.
func readVersionTuple(data []byte, pos int) (version.Version, int, error) {
	if pos+versionTupleSize > len(data) {
		return version.Version{}, 0, fmt.Errorf("record too short for version tuple")
	}

	v := version.Version{
		TopVer:     binary.BigEndian.Uint32(data[pos:]),
		Time:       binary.BigEndian.Uint64(data[pos+4:]),
		Order:      binary.BigEndian.Uint64(data[pos+12:]),
		NodeOrder:  binary.BigEndian.Uint32(data[pos+20:]),
		DataCenter: data[pos+24],
	}
	return v, pos + versionTupleSize, nil
}
