package kero

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/kero-format/kero/internal/bitpack"
)

// RawSection stores sequence blocks with no minimizer extraction ('r').
// Construction requires k, max, and data_size to already be present in the
// File's global vars (typically written via a preceding GVSection).
type RawSection struct {
	f        *File
	offset   int64
	k        uint64
	max      uint64
	dataSize uint64
	nbBytes  int // bytes used to encode nb_kmers per block; 0 when max == 1

	nbBlocks uint64
	closed   bool

	// read-mode state
	remaining uint64
}

func nbKmersBytes(max uint64) int {
	if max <= 1 {
		return 0
	}
	bitsNeeded := bits.Len64(max - 1)
	return (bitsNeeded + 7) / 8
}

func rawRequiredVars(f *File) (k, max, dataSize uint64, err error) {
	var ok bool
	if k, ok = f.GetVar("k"); !ok {
		return 0, 0, 0, fmt.Errorf("%w: Raw section requires global var %q", ErrUsage, "k")
	}
	if max, ok = f.GetVar("max"); !ok {
		return 0, 0, 0, fmt.Errorf("%w: Raw section requires global var %q", ErrUsage, "max")
	}
	if dataSize, ok = f.GetVar("data_size"); !ok {
		return 0, 0, 0, fmt.Errorf("%w: Raw section requires global var %q", ErrUsage, "data_size")
	}
	return k, max, dataSize, nil
}

// NewRawSection opens a new Raw section for writing.
func NewRawSection(f *File) (*RawSection, error) {
	if f.mode != ModeWrite {
		return nil, fmt.Errorf("%w: NewRawSection is a writer-only operation", ErrUsage)
	}
	k, max, dataSize, err := rawRequiredVars(f)
	if err != nil {
		return nil, err
	}
	s := &RawSection{f: f, k: k, max: max, dataSize: dataSize, nbBytes: nbKmersBytes(max)}
	if err := f.beginSection(s); err != nil {
		return nil, err
	}
	s.offset = f.fb.Len()

	header := make([]byte, 1+8)
	header[0] = tagRaw
	if _, err := f.fb.Write(header); err != nil {
		return nil, fmt.Errorf("kero: write Raw header: %w", err)
	}
	return s, nil
}

// WriteBlock emits one (seq, data) block. seq is ASCII nucleotide symbols;
// len(seq)-k+1 must be between 1 and max, and len(data) must equal
// data_size * (len(seq)-k+1).
func (s *RawSection) WriteBlock(seq []byte, data []byte) error {
	if uint64(len(seq)) < s.k {
		return fmt.Errorf("%w: sequence shorter than k", ErrUsage)
	}
	nKmers := uint64(len(seq)) - s.k + 1
	if nKmers < 1 || nKmers > s.max {
		return fmt.Errorf("%w: block has %d k-mers, want 1..%d", ErrUsage, nKmers, s.max)
	}
	if uint64(len(data)) != s.dataSize*nKmers {
		return fmt.Errorf("%w: data length %d != data_size*n_kmers (%d*%d)", ErrUsage, len(data), s.dataSize, nKmers)
	}

	if s.nbBytes > 0 {
		buf := make([]byte, s.nbBytes)
		putUintBE(buf, nKmers)
		if _, err := s.f.fb.Write(buf); err != nil {
			return fmt.Errorf("kero: write Raw nb_kmers: %w", err)
		}
	}

	packed, err := s.f.hdr.encoding.Pack(seq)
	if err != nil {
		return fmt.Errorf("kero: pack Raw sequence: %w", err)
	}
	if _, err := s.f.fb.Write(packed); err != nil {
		return fmt.Errorf("kero: write Raw sequence: %w", err)
	}
	if len(data) > 0 {
		if _, err := s.f.fb.Write(data); err != nil {
			return fmt.Errorf("kero: write Raw data: %w", err)
		}
	}
	s.nbBlocks++
	return nil
}

// Close backfills nb_blocks and registers the section for the file index
// (write mode), or simply releases the active-section slot after skipping
// any unread blocks (read mode).
func (s *RawSection) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.f.endSection()

	if s.f.mode == ModeRead {
		for s.remaining > 0 {
			if err := s.JumpSequence(); err != nil {
				return err
			}
		}
		return nil
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.nbBlocks)
	if err := s.f.fb.WriteAt(buf[:], s.offset+1); err != nil {
		return fmt.Errorf("kero: backfill Raw nb_blocks: %w", err)
	}
	s.f.registerSection(s.offset, tagRaw)
	return nil
}

// openRawSectionReader constructs a reader-mode RawSection. The tag byte
// has already been consumed by the caller's dispatch.
func openRawSectionReader(f *File) (*RawSection, error) {
	k, max, dataSize, err := rawRequiredVars(f)
	if err != nil {
		return nil, err
	}
	s := &RawSection{f: f, k: k, max: max, dataSize: dataSize, nbBytes: nbKmersBytes(max)}
	if err := f.beginSection(s); err != nil {
		return nil, err
	}

	var buf [8]byte
	if _, err := f.fb.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("%w: read Raw nb_blocks: %v", ErrFormatInvariant, err)
	}
	s.nbBlocks = binary.BigEndian.Uint64(buf[:])
	s.remaining = s.nbBlocks
	return s, nil
}

// NextBlock reads the next (seq, data) block, or returns false at the end
// of the section.
func (s *RawSection) NextBlock() (seq []byte, data []byte, ok bool, err error) {
	if s.remaining == 0 {
		return nil, nil, false, nil
	}

	nKmers := uint64(1)
	if s.nbBytes > 0 {
		buf := make([]byte, s.nbBytes)
		if _, err := s.f.fb.Read(buf); err != nil {
			return nil, nil, false, fmt.Errorf("%w: read Raw nb_kmers: %v", ErrFormatInvariant, err)
		}
		nKmers = getUintBE(buf)
	}

	seqSize := nKmers + s.k - 1
	packed := make([]byte, bitpack.PackedLen(int(seqSize)))
	if _, err := s.f.fb.Read(packed); err != nil {
		return nil, nil, false, fmt.Errorf("%w: read Raw sequence: %v", ErrFormatInvariant, err)
	}
	seq = s.f.hdr.encoding.Unpack(packed, int(seqSize))

	dataLen := s.dataSize * nKmers
	if dataLen > 0 {
		data = make([]byte, dataLen)
		if _, err := s.f.fb.Read(data); err != nil {
			return nil, nil, false, fmt.Errorf("%w: read Raw data: %v", ErrFormatInvariant, err)
		}
	}

	s.remaining--
	return seq, data, true, nil
}

// JumpSequence skips the next block without materializing it.
func (s *RawSection) JumpSequence() error {
	nKmers := uint64(1)
	if s.nbBytes > 0 {
		buf := make([]byte, s.nbBytes)
		if _, err := s.f.fb.Read(buf); err != nil {
			return fmt.Errorf("%w: read Raw nb_kmers: %v", ErrFormatInvariant, err)
		}
		nKmers = getUintBE(buf)
	}
	seqSize := nKmers + s.k - 1
	skip := int64(bitpack.PackedLen(int(seqSize))) + int64(s.dataSize*nKmers)
	if err := s.f.fb.Jump(skip); err != nil {
		return err
	}
	s.remaining--
	return nil
}

func putUintBE(buf []byte, v uint64) {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}

func getUintBE(buf []byte) uint64 {
	var v uint64
	for _, b := range buf {
		v = (v << 8) | uint64(b)
	}
	return v
}
