package kero

import (
	"fmt"
)

// footerVarCount is fixed at exactly two (first_index, footer_size); a
// footer GV with any other count is a corruption, not a variant to
// tolerate.
const footerVarCount = 2

// footerSize is the fixed on-disk size of the terminal footer GV section:
// tag(1) + count(8) + 2*(name(12, "first_index\0" or "footer_size\0") +
// value(8)).
const footerSize = 1 + 8 + 2*(12+8)

// writeFooter appends the Hashtable section, an Index section listing every
// previously registered section (including the Hashtable), and a terminal
// GV section recording where the index chain begins.
func (f *File) writeFooter() error {
	htOffset, err := writeHashtableSection(f)
	if err != nil {
		return err
	}
	f.registerSection(htOffset, tagHashtable)

	idx, err := newIndexSection(f, f.sortedSections(), 0)
	if err != nil {
		return err
	}
	if err := idx.Close(); err != nil {
		return err
	}

	gv, err := NewGVSection(f)
	if err != nil {
		return err
	}
	gv.Set("first_index", uint64(idx.offset))
	gv.Set("footer_size", uint64(footerSize))
	return gv.Close()
}

// discoverFooter probes for a footer at the end of the file and, if
// present, chases its Index chain and loads the Hashtable section into
// memory. A file with no footer (indexing disabled at write time) is left
// with a nil index/hashtable, and reading is still possible via manual
// section iteration. The cursor is restored to the start of the section
// stream (immediately past the header) before returning either way.
func (f *File) discoverFooter() error {
	restorePos := f.hdr.end
	defer func() { _ = f.fb.JumpTo(restorePos, false) }()

	total := f.fb.Len()
	const trailingSignature = 4
	if total < trailingSignature+footerSize {
		return nil
	}
	footerGVStart := total - trailingSignature - footerSize

	tagBuf := make([]byte, 1)
	if _, err := f.fb.ReadAt(tagBuf, footerGVStart); err != nil {
		return fmt.Errorf("kero: probe footer tag: %w", err)
	}
	if tagBuf[0] != tagGV {
		return nil
	}

	if err := f.fb.JumpTo(footerGVStart+1, false); err != nil {
		return err
	}
	vars, err := readGVSection(f)
	if err != nil {
		return nil // not a real footer, just a byte pattern that happened to start with 'v'
	}
	if len(vars) != footerVarCount {
		return fmt.Errorf("%w: footer GV has %d variables, want %d", ErrFormatInvariant, len(vars), footerVarCount)
	}
	firstIndex, ok := vars["first_index"]
	if !ok {
		return fmt.Errorf("%w: footer GV has no first_index", ErrFormatInvariant)
	}
	gotFooterSize, ok := vars["footer_size"]
	if !ok || gotFooterSize != footerSize {
		return fmt.Errorf("%w: footer_size %d != %d", ErrFormatInvariant, gotFooterSize, footerSize)
	}

	entries := make(map[int64]byte)
	nextIndex := firstIndex
	for {
		if err := f.fb.JumpTo(int64(nextIndex), false); err != nil {
			return fmt.Errorf("%w: chase index chain: %v", ErrFormatInvariant, err)
		}
		var tag [1]byte
		if _, err := f.fb.Read(tag[:]); err != nil {
			return fmt.Errorf("%w: read Index tag: %v", ErrFormatInvariant, err)
		}
		if tag[0] != tagIndex {
			return fmt.Errorf("%w: expected Index section tag at offset %d, got %q", ErrFormatInvariant, nextIndex, tag[0])
		}
		next, err := readIndexSection(f, entries)
		if err != nil {
			return err
		}
		if next == 0 {
			break
		}
		nextIndex = next
	}
	f.index = entries

	var htOffset int64 = -1
	for offset, tag := range entries {
		if tag == tagHashtable {
			htOffset = offset
			break
		}
	}
	if htOffset < 0 {
		return nil
	}

	if err := f.fb.JumpTo(htOffset, false); err != nil {
		return err
	}
	var tag [1]byte
	if _, err := f.fb.Read(tag[:]); err != nil {
		return fmt.Errorf("%w: read Hashtable tag: %v", ErrFormatInvariant, err)
	}
	if tag[0] != tagHashtable {
		return fmt.Errorf("%w: expected Hashtable section tag at offset %d, got %q", ErrFormatInvariant, htOffset, tag[0])
	}
	ht, err := readHashtableSection(f)
	if err != nil {
		return err
	}
	f.hashtable = ht
	return nil
}
