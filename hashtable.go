package kero

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/kero-format/kero/internal/mphf"
)

// hashtableIndex is the in-memory Hashtable section, chased into memory at
// Open time by discoverFooter: a minimal perfect hash function over every
// minimizer the file's Minimizer sections registered, mapping each back to
// its owning section's start offset.
type hashtableIndex struct {
	m *mphf.MPHF
}

// Lookup returns the file offset of the Minimizer section holding key, and
// whether the lookup is meaningful. A minimal perfect hash makes no
// membership promise for keys outside the original set, so a false
// positive is possible for a key that was never registered; callers that
// must be certain should verify the minimizer at the returned offset.
func (h *hashtableIndex) Lookup(key uint64) (uint64, bool) {
	if h == nil || h.m == nil {
		return 0, false
	}
	return h.m.Lookup(key), true
}

// LookupMinimizer returns the file offset of the Minimizer section holding
// the given minimizer key, per the Hashtable section built at Close.
func (f *File) LookupMinimizer(key uint64) (uint64, bool) {
	return f.hashtable.Lookup(key)
}

// writeHashtableSection builds a minimal perfect hash function over f's
// registered minimizers and writes the Hashtable section ('h'): mphf_len +
// mphf bytes, then hashtable_len + hashtable_len*u64 values. It returns the
// section's start offset.
func writeHashtableSection(f *File) (int64, error) {
	offset := f.fb.Len()
	if _, err := f.fb.Write([]byte{tagHashtable}); err != nil {
		return 0, fmt.Errorf("kero: write Hashtable tag: %w", err)
	}

	m, err := mphf.Build(f.minimizers, f.minPos, f.logger)
	if err != nil {
		return 0, fmt.Errorf("kero: build minimizer hash function: %w", err)
	}

	var buf bytes.Buffer
	if err := m.Serialize(&buf); err != nil {
		return 0, fmt.Errorf("kero: serialize minimizer hash function: %w", err)
	}
	if err := writeU64LenField(f.fb, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("kero: write Hashtable mphf: %w", err)
	}

	var tableLenBuf [8]byte
	binary.BigEndian.PutUint64(tableLenBuf[:], uint64(len(m.Values)))
	if _, err := f.fb.Write(tableLenBuf[:]); err != nil {
		return 0, fmt.Errorf("kero: write Hashtable table length: %w", err)
	}
	table := make([]byte, 8*len(m.Values))
	for i, v := range m.Values {
		binary.BigEndian.PutUint64(table[i*8:], v)
	}
	if len(table) > 0 {
		if _, err := f.fb.Write(table); err != nil {
			return 0, fmt.Errorf("kero: write Hashtable table: %w", err)
		}
	}

	return offset, nil
}

func writeU64LenField(fb interface {
	Write([]byte) (int, error)
}, p []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
	if _, err := fb.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(p) > 0 {
		if _, err := fb.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// readHashtableSection reads a Hashtable section's body at the current
// cursor (the tag byte has already been consumed by the caller).
func readHashtableSection(f *File) (*hashtableIndex, error) {
	var lenBuf [8]byte
	if _, err := f.fb.Read(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read Hashtable mphf length: %v", ErrFormatInvariant, err)
	}
	mphfBytes := make([]byte, binary.BigEndian.Uint64(lenBuf[:]))
	if len(mphfBytes) > 0 {
		if _, err := f.fb.Read(mphfBytes); err != nil {
			return nil, fmt.Errorf("%w: read Hashtable mphf: %v", ErrFormatInvariant, err)
		}
	}
	m, err := mphf.Deserialize(bytes.NewReader(mphfBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: deserialize Hashtable mphf: %v", ErrFormatInvariant, err)
	}

	var tableLenBuf [8]byte
	if _, err := f.fb.Read(tableLenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read Hashtable table length: %v", ErrFormatInvariant, err)
	}
	tableLen := binary.BigEndian.Uint64(tableLenBuf[:])
	values := make([]uint64, tableLen)
	if tableLen > 0 {
		raw := make([]byte, 8*tableLen)
		if _, err := f.fb.Read(raw); err != nil {
			return nil, fmt.Errorf("%w: read Hashtable table: %v", ErrFormatInvariant, err)
		}
		for i := range values {
			values[i] = binary.BigEndian.Uint64(raw[i*8:])
		}
	}
	if err := m.SetValues(values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatInvariant, err)
	}

	return &hashtableIndex{m: m}, nil
}
