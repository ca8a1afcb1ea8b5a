// Package mphf implements a minimal perfect hash function over uint64 keys
// using the "Hash, displace, and compress" algorithm described in
// http://cmph.sourceforge.net/papers/esa09.pdf — the same two-level
// bucket-seed-search construction used by bit's index package, generalized
// here from string keys and record offsets to KERO's uint64 minimizer keys
// and uint64 section offsets.
//
// n keys are placed into nextPow2(n) slots, one key per slot, and the value
// table holds one entry per slot. The function is collision-free over the
// key set; it is minimal (slot count equal to n) only when n is a power of
// two.
package mphf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/dgryski/go-farm"
)

const maxUint32 = 1<<32 - 1

// ErrTooManyKeys is returned when the key set is too large to index.
var ErrTooManyKeys = errors.New("mphf: too many keys for a single table")

// ErrSeedSearchFailed is returned when no 32-bit seed could be found for a
// bucket; this would indicate a pathological or adversarial key set.
var ErrSeedSearchFailed = errors.New("mphf: could not find a bucket seed")

// MPHF is an immutable minimal perfect hash function plus the caller's
// values, permuted into minimal-perfect order: Lookup(key) is exactly
// Values[mphf(key)].
type MPHF struct {
	level0     []uint32
	level0Mask uint64
	level1     []uint32 // level1[mphf-slot] = index of the key (in Build's keys/values) placed in that slot
	level1Mask uint64

	// Values holds the caller-supplied payload, permuted so that
	// Values[i] corresponds to the key mapped to slot i.
	Values []uint64
}

type bucket struct {
	n      uint64
	keyIdx []uint32
}

type bySize []bucket

func (s bySize) Len() int           { return len(s) }
func (s bySize) Less(i, j int) bool { return len(s[i].keyIdx) > len(s[j].keyIdx) }
func (s bySize) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// slotOccupancy tracks which level1 slots the bucket currently under seed
// search has claimed, sized once and reused across every probed seed.
type slotOccupancy struct {
	bits []uint64
}

func newSlotOccupancy(slots int64) slotOccupancy {
	return slotOccupancy{bits: make([]uint64, (slots+63)/64)}
}

// claim marks slot taken and reports whether it was free. release undoes a
// claim made earlier in the same seed attempt.
func (o slotOccupancy) claim(slot uint32) bool {
	w, b := slot/64, slot%64
	if o.bits[w]&(1<<b) != 0 {
		return false
	}
	o.bits[w] |= 1 << b
	return true
}

func (o slotOccupancy) release(slot uint32) {
	w, b := slot/64, slot%64
	o.bits[w] &^= 1 << b
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Build constructs a minimal perfect hash function over keys, with
// values[i] the payload associated with keys[i]. keys must be distinct.
func Build(keys []uint64, values []uint64, logger *slog.Logger) (*MPHF, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("mphf: keys and values must have the same length (%d != %d)", len(keys), len(values))
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	n := len(keys)
	if n == 0 {
		return &MPHF{level0: []uint32{0}, level0Mask: 0, level1: nil, level1Mask: 0}, nil
	}
	if n >= maxUint32 {
		return nil, ErrTooManyKeys
	}

	level0Len := nextPow2(n/4 + 1)
	level1Len := nextPow2(n)
	level0Mask := uint64(level0Len - 1)
	level1Mask := uint64(level1Len - 1)

	sparse := make([][]uint32, level0Len)
	for i, k := range keys {
		b := farm.Hash64WithSeed(u64Bytes(k), 0) & level0Mask
		sparse[b] = append(sparse[b], uint32(i))
	}

	var buckets []bucket
	for b, idxs := range sparse {
		if len(idxs) > 0 {
			buckets = append(buckets, bucket{n: uint64(b), keyIdx: idxs})
		}
	}
	sort.Sort(bySize(buckets))

	level0 := make([]uint32, level0Len)
	level1 := make([]uint32, level1Len)
	occupied := newSlotOccupancy(int64(level1Len))
	permValues := make([]uint64, level1Len)

	logger.Debug("mphf: placing buckets", "bucketCount", len(buckets), "keyCount", n)

	var tmpSlots []uint32
	for _, bk := range buckets {
		seed := uint64(1)
	trySeed:
		if seed >= maxUint32 {
			return nil, ErrSeedSearchFailed
		}
		tmpSlots = tmpSlots[:0]
		for _, ki := range bk.keyIdx {
			slot := uint32(farm.Hash64WithSeed(u64Bytes(keys[ki]), seed) & level1Mask)
			if !occupied.claim(slot) {
				for _, s := range tmpSlots {
					occupied.release(s)
				}
				seed++
				goto trySeed
			}
			tmpSlots = append(tmpSlots, slot)
			level1[slot] = ki
		}
		level0[bk.n] = uint32(seed)
	}

	for slot, ki := range level1 {
		_ = slot
		permValues[slot] = values[ki]
	}

	return &MPHF{
		level0:     level0,
		level0Mask: level0Mask,
		level1:     level1,
		level1Mask: level1Mask,
		Values:     permValues,
	}, nil
}

// Lookup returns the value associated with key. For a key not in the
// original key set the result is an arbitrary, meaningless slot (minimal
// perfect hashes make no promise for absent keys) — callers that must
// distinguish membership should re-check the key against their own data.
func (m *MPHF) Lookup(key uint64) uint64 {
	if len(m.level1) == 0 {
		return 0
	}
	i0 := farm.Hash64WithSeed(u64Bytes(key), 0) & m.level0Mask
	seed := uint64(m.level0[i0])
	i1 := farm.Hash64WithSeed(u64Bytes(key), seed) & m.level1Mask
	return m.Values[i1]
}

func u64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

const mphfMagic = "KMPH"

// Serialize writes only the hash function's structure (the two
// displacement levels), not its associated Values table: the hashtable
// section stores those as a separate, sibling on-disk array (mphf_len +
// mphf bytes, then hashtable_len + hashtable_len*u64), matching the
// format's black-box MPHF contract of build/lookup/serialize/deserialize
// being decoupled from the caller's value storage.
func (m *MPHF) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(mphfMagic); err != nil {
		return err
	}
	if err := writeU64(bw, uint64(len(m.level0))); err != nil {
		return err
	}
	if err := writeU64(bw, uint64(len(m.level1))); err != nil {
		return err
	}
	for _, v := range m.level0 {
		if err := writeU32(bw, v); err != nil {
			return err
		}
	}
	for _, v := range m.level1 {
		if err := writeU32(bw, v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Deserialize inverts Serialize. The returned MPHF has a nil Values table;
// callers own and attach the value table (e.g. from the hashtable
// section's own on-disk array) via SetValues.
func Deserialize(r io.Reader) (*MPHF, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(mphfMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("mphf: read magic: %w", err)
	}
	if string(magic) != mphfMagic {
		return nil, fmt.Errorf("mphf: bad magic %q", magic)
	}

	level0Len, err := readU64(br)
	if err != nil {
		return nil, err
	}
	level1Len, err := readU64(br)
	if err != nil {
		return nil, err
	}

	m := &MPHF{
		level0:     make([]uint32, level0Len),
		level0Mask: uint64(level0Len) - 1,
		level1:     make([]uint32, level1Len),
		level1Mask: uint64(level1Len) - 1,
	}
	for i := range m.level0 {
		if m.level0[i], err = readU32(br); err != nil {
			return nil, err
		}
	}
	for i := range m.level1 {
		if m.level1[i], err = readU32(br); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetValues attaches a value table to a deserialized MPHF. len(values) must
// equal the hash function's level1 (slot) count.
func (m *MPHF) SetValues(values []uint64) error {
	if len(values) != len(m.level1) {
		return fmt.Errorf("mphf: value table length %d != slot count %d", len(values), len(m.level1))
	}
	m.Values = values
	return nil
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
