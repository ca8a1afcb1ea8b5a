package kero

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// GVSection is a key -> u64 variable table ('v'). Writing one mirrors its
// entries into the owning File's global vars table, so subsequently opened
// Raw and Minimizer sections can look up k, m, max, and data_size.
type GVSection struct {
	f      *File
	offset int64
	vars   map[string]uint64
	closed bool
}

// NewGVSection opens a new GV section for writing.
func NewGVSection(f *File) (*GVSection, error) {
	if f.mode != ModeWrite {
		return nil, fmt.Errorf("%w: NewGVSection is a writer-only operation", ErrUsage)
	}
	s := &GVSection{f: f, vars: make(map[string]uint64)}
	if err := f.beginSection(s); err != nil {
		return nil, err
	}
	s.offset = f.fb.Len()
	if _, err := f.fb.Write([]byte{tagGV}); err != nil {
		return nil, fmt.Errorf("kero: write GV tag: %w", err)
	}
	return s, nil
}

// Set records a name -> value pair, both locally and (immediately) in the
// File's global vars table.
func (s *GVSection) Set(name string, value uint64) {
	s.vars[name] = value
	s.f.setVar(name, value)
}

// Close writes the section's count and sorted (name, value) entries.
func (s *GVSection) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.f.endSection()

	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], uint64(len(names)))
	if _, err := s.f.fb.Write(countBuf[:]); err != nil {
		return fmt.Errorf("kero: write GV count: %w", err)
	}
	for _, name := range names {
		entry := make([]byte, len(name)+1+8)
		copy(entry, name)
		// entry[len(name)] is left 0 as the NUL terminator.
		binary.BigEndian.PutUint64(entry[len(name)+1:], s.vars[name])
		if _, err := s.f.fb.Write(entry); err != nil {
			return fmt.Errorf("kero: write GV entry %q: %w", name, err)
		}
	}
	s.f.registerSection(s.offset, tagGV)
	return nil
}

// readGVSection reads a GV section's count and entries (the tag byte has
// already been consumed by the caller's dispatch), mirroring each into f's
// global vars table, and returns the parsed map.
func readGVSection(f *File) (map[string]uint64, error) {
	var countBuf [8]byte
	if _, err := f.fb.Read(countBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read GV count: %v", ErrFormatInvariant, err)
	}
	count := binary.BigEndian.Uint64(countBuf[:])

	vars := make(map[string]uint64, count)
	for i := uint64(0); i < count; i++ {
		name, err := readCString(f.fb)
		if err != nil {
			return nil, fmt.Errorf("%w: GV entry %d/%d name: %v", ErrFormatInvariant, i, count, err)
		}
		var valBuf [8]byte
		if _, err := f.fb.Read(valBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: GV entry %d/%d value: %v", ErrFormatInvariant, i, count, err)
		}
		val := binary.BigEndian.Uint64(valBuf[:])
		vars[name] = val
		f.setVar(name, val)
	}
	return vars, nil
}

// readCString reads bytes up to and including a NUL terminator and returns
// the string without the terminator.
func readCString(fb interface {
	Read([]byte) (int, error)
}) (string, error) {
	var buf []byte
	var b [1]byte
	for {
		n, err := fb.Read(b[:])
		if err != nil || n == 0 {
			return "", fmt.Errorf("EOF before NUL terminator: %v", err)
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
}
