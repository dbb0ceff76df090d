// Package swap implements the disk tier for demoted cache values on top of
// LevelDB.
//
// Each record persists the value together with the version, ttl and expire
// time it held in memory, so a later promotion restores the exact state.
// Records are encoded in a compact binary format with optional snappy
// compression; the encoding is versioned so on-disk data survives format
// evolution.
//
// The store itself performs no per-key coordination: the grid engine
// serializes swap access per key through its entry mutexes.
package swap
