package engine

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Flag describes what a cached score means relative to the search window
// that produced it.
type Flag uint8

const (
	FlagExact      Flag = iota // true value
	FlagLowerBound             // fail high (beta cutoff)
	FlagUpperBound             // fail low
)

// Entry is one cached search result, keyed by the full position hash.
type Entry struct {
	Key   uint64
	Value Score
	Depth uint8
	Flag  Flag
}

// slot is the stored form of an Entry: three independently written
// words. Concurrent writers to the same slot may interleave; any torn
// combination fails the checksum and reads as a miss.
type slot struct {
	key   atomic.Uint64
	data  atomic.Uint64 // value | depth<<16 | flag<<24
	check atomic.Uint64
}

func packData(e Entry) uint64 {
	return uint64(uint16(e.Value)) | uint64(e.Depth)<<16 | uint64(e.Flag)<<24
}

func unpackData(key, data uint64) Entry {
	return Entry{
		Key:   key,
		Value: Score(uint16(data)),
		Depth: uint8(data >> 16),
		Flag:  Flag(data >> 24),
	}
}

// checksum covers every stored field, so a single stale word from an
// interleaved write cannot masquerade as a valid entry.
func checksum(key, data uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], key)
	binary.LittleEndian.PutUint64(buf[8:16], data)
	return xxhash.Sum64(buf[:])
}

// Table is a fixed-capacity direct-mapped transposition table shared by
// all workers of a search. There is one slot per hash bucket and no
// entry-level locking: writes always replace, and readers trust only
// entries whose checksum matches.
type Table struct {
	slots []slot
	mask  uint64

	probes atomic.Uint64
	hits   atomic.Uint64
}

// NewTable allocates a table with the given number of slots, which must
// be a power of two. A bad size is a configuration error, not a
// recoverable condition.
func NewTable(size uint64) (*Table, error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("transposition table size %d is not a power of two", size)
	}
	return &Table{
		slots: make([]slot, size),
		mask:  size - 1,
	}, nil
}

// Get returns the cached entry for hash, if one is present and intact.
// A key mismatch, an empty slot, and a torn write all read as a miss.
func (t *Table) Get(hash uint64) (Entry, bool) {
	t.probes.Add(1)
	s := &t.slots[hash&t.mask]
	key := s.key.Load()
	data := s.data.Load()
	check := s.check.Load()
	if key != hash || checksum(key, data) != check {
		return Entry{}, false
	}
	t.hits.Add(1)
	return unpackData(key, data), true
}

// Set stores e at its slot, unconditionally replacing whatever is there.
func (t *Table) Set(e Entry) {
	s := &t.slots[e.Key&t.mask]
	data := packData(e)
	s.key.Store(e.Key)
	s.data.Store(data)
	s.check.Store(checksum(e.Key, data))
}

// Clear empties every slot. Not safe to call during a search.
func (t *Table) Clear() {
	for i := range t.slots {
		t.slots[i].key.Store(0)
		t.slots[i].data.Store(0)
		t.slots[i].check.Store(0)
	}
	t.probes.Store(0)
	t.hits.Store(0)
}

// Size returns the slot count.
func (t *Table) Size() uint64 {
	return t.mask + 1
}

// HitRate returns the fraction of probes that hit, for logging.
func (t *Table) HitRate() float64 {
	probes := t.probes.Load()
	if probes == 0 {
		return 0
	}
	return float64(t.hits.Load()) / float64(probes)
}

// DefaultTableSize rounds the requested entry count down to a power of
// two, for callers sizing by memory budget rather than exact slots.
func DefaultTableSize(entries uint64) uint64 {
	if entries == 0 {
		return 1
	}
	return 1 << (63 - bits.LeadingZeros64(entries))
}
