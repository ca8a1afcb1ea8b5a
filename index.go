package kero

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// IndexSection records every other section's start offset and type tag
// ('i'), plus an optional forward link to a further Index section. It is
// built automatically by File at Close time; callers do not construct one
// directly.
type IndexSection struct {
	f         *File
	offset    int64
	entries   []registeredSection
	nextIndex uint64
	closed    bool
}

// newIndexSection opens a new Index section for writing, listing entries
// (sorted by offset) and linking to nextIndex (0 if this is the last Index
// section).
func newIndexSection(f *File, entries []registeredSection, nextIndex uint64) (*IndexSection, error) {
	if f.mode != ModeWrite {
		return nil, fmt.Errorf("%w: newIndexSection is a writer-only operation", ErrUsage)
	}
	s := &IndexSection{f: f, entries: entries, nextIndex: nextIndex}
	if err := f.beginSection(s); err != nil {
		return nil, err
	}
	s.offset = f.fb.Len()
	if _, err := f.fb.Write([]byte{tagIndex}); err != nil {
		return nil, fmt.Errorf("kero: write Index tag: %w", err)
	}
	return s, nil
}

// Close writes the section's count, sorted (type, offset) entries, and
// next_index link.
func (s *IndexSection) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.f.endSection()

	sorted := append([]registeredSection(nil), s.entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })

	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], uint64(len(sorted)))
	if _, err := s.f.fb.Write(countBuf[:]); err != nil {
		return fmt.Errorf("kero: write Index count: %w", err)
	}
	for _, e := range sorted {
		entry := make([]byte, 9)
		entry[0] = e.tag
		binary.BigEndian.PutUint64(entry[1:], uint64(e.offset))
		if _, err := s.f.fb.Write(entry); err != nil {
			return fmt.Errorf("kero: write Index entry: %w", err)
		}
	}
	var nextBuf [8]byte
	binary.BigEndian.PutUint64(nextBuf[:], s.nextIndex)
	if _, err := s.f.fb.Write(nextBuf[:]); err != nil {
		return fmt.Errorf("kero: write Index next_index: %w", err)
	}

	s.f.registerSection(s.offset, tagIndex)
	return nil
}

// readIndexSection reads one Index section's body at the current cursor
// (the tag byte has already been consumed by the caller) into dst, failing
// with ErrFormatInvariant on a duplicate offset either within this section
// or against entries already present in dst. It returns the section's
// next_index forward link.
func readIndexSection(f *File, dst map[int64]byte) (uint64, error) {
	var countBuf [8]byte
	if _, err := f.fb.Read(countBuf[:]); err != nil {
		return 0, fmt.Errorf("%w: read Index count: %v", ErrFormatInvariant, err)
	}
	count := binary.BigEndian.Uint64(countBuf[:])

	for i := uint64(0); i < count; i++ {
		entry := make([]byte, 9)
		if _, err := f.fb.Read(entry); err != nil {
			return 0, fmt.Errorf("%w: read Index entry %d/%d: %v", ErrFormatInvariant, i, count, err)
		}
		tag := entry[0]
		offset := int64(binary.BigEndian.Uint64(entry[1:]))
		if _, dup := dst[offset]; dup {
			return 0, fmt.Errorf("%w: Index section has duplicate offset %d", ErrFormatInvariant, offset)
		}
		dst[offset] = tag
	}

	var nextBuf [8]byte
	if _, err := f.fb.Read(nextBuf[:]); err != nil {
		return 0, fmt.Errorf("%w: read Index next_index: %v", ErrFormatInvariant, err)
	}
	return binary.BigEndian.Uint64(nextBuf[:]), nil
}
