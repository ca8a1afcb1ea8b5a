package kero

import (
	"encoding/binary"
	"fmt"

	"github.com/kero-format/kero/internal/bitpack"
	"github.com/kero-format/kero/internal/codec"
)

// MinimizerSection stores super-k-mer blocks that share one minimizer of
// length m, with the minimizer itself spliced out of each stored sequence
// ('M'). Construction requires k, m, and data_size to already be present in
// the File's global vars.
type MinimizerSection struct {
	f      *File
	offset int64 // section start: position of the tag byte

	k, m, dataSize uint64
	miniBytes      []byte // packed minimizer, fixed width bitpack.BitsBytes(2, m)
	miniSet        bool

	nBuf    []uint64
	mIdxBuf []uint64
	dataBuf []byte
	seqBuf  []byte

	nbBlocks uint64
	closed   bool

	// read-mode state
	remaining  uint64
	dataPos    uint64
	idx        int
	lastSeqPos int64
	col4Abs    int64
}

func minimizerRequiredVars(f *File) (k, m, dataSize uint64, err error) {
	var ok bool
	if k, ok = f.GetVar("k"); !ok {
		return 0, 0, 0, fmt.Errorf("%w: Minimizer section requires global var %q", ErrUsage, "k")
	}
	if m, ok = f.GetVar("m"); !ok {
		return 0, 0, 0, fmt.Errorf("%w: Minimizer section requires global var %q", ErrUsage, "m")
	}
	if dataSize, ok = f.GetVar("data_size"); !ok {
		return 0, 0, 0, fmt.Errorf("%w: Minimizer section requires global var %q", ErrUsage, "data_size")
	}
	return k, m, dataSize, nil
}

// NewMinimizerSection opens a new Minimizer section for writing.
func NewMinimizerSection(f *File) (*MinimizerSection, error) {
	if f.mode != ModeWrite {
		return nil, fmt.Errorf("%w: NewMinimizerSection is a writer-only operation", ErrUsage)
	}
	k, m, dataSize, err := minimizerRequiredVars(f)
	if err != nil {
		return nil, err
	}
	s := &MinimizerSection{f: f, k: k, m: m, dataSize: dataSize, miniBytes: make([]byte, bitpack.BitsBytes(2, int(m)))}
	if err := f.beginSection(s); err != nil {
		return nil, err
	}
	s.offset = f.fb.Len()
	if _, err := f.fb.Write([]byte{tagMinimizer}); err != nil {
		return nil, fmt.Errorf("kero: write Minimizer tag: %w", err)
	}
	return s, nil
}

// WriteMinimizer records the m-nucleotide minimizer shared by every block
// this section will hold. It must be called before Close.
func (s *MinimizerSection) WriteMinimizer(seq []byte) error {
	if uint64(len(seq)) != s.m {
		return fmt.Errorf("%w: minimizer length %d != m (%d)", ErrUsage, len(seq), s.m)
	}
	packed, err := s.f.hdr.encoding.Pack(seq)
	if err != nil {
		return fmt.Errorf("kero: pack minimizer: %w", err)
	}
	s.miniBytes = packed
	s.miniSet = true
	return nil
}

// WriteCompactedSequenceWithoutMini appends one block whose minimizer has
// already been removed: seq is the prefix+suffix concatenation (seq_size
// nucleotides), and data must hold data_size * n bytes where
// n = seq_size + m - k + 1.
func (s *MinimizerSection) WriteCompactedSequenceWithoutMini(seq []byte, miniPos uint64, data []byte) error {
	seqSize := uint64(len(seq))
	if seqSize+s.m < s.k {
		return fmt.Errorf("%w: stripped sequence too short for k=%d, m=%d", ErrUsage, s.k, s.m)
	}
	n := seqSize + s.m - s.k + 1
	if uint64(len(data)) != s.dataSize*n {
		return fmt.Errorf("%w: data length %d != data_size*n (%d*%d)", ErrUsage, len(data), s.dataSize, n)
	}

	packed, err := s.f.hdr.encoding.Pack(seq)
	if err != nil {
		return fmt.Errorf("kero: pack Minimizer sequence: %w", err)
	}

	s.nBuf = append(s.nBuf, n)
	s.mIdxBuf = append(s.mIdxBuf, miniPos)
	s.dataBuf = append(s.dataBuf, data...)
	s.seqBuf = append(s.seqBuf, packed...)
	s.nbBlocks++
	return nil
}

// WriteCompactedSequence appends one block from a full super-k-mer (the
// minimizer still embedded at miniPos), extracting the minimizer and
// delegating to WriteCompactedSequenceWithoutMini.
func (s *MinimizerSection) WriteCompactedSequence(fullSeq []byte, miniPos uint64, data []byte) error {
	full := uint64(len(fullSeq))
	if miniPos+s.m > full {
		return fmt.Errorf("%w: minimizer at %d..%d exceeds sequence length %d", ErrUsage, miniPos, miniPos+s.m, full)
	}
	packed, err := s.f.hdr.encoding.Pack(fullSeq)
	if err != nil {
		return fmt.Errorf("kero: pack Minimizer sequence: %w", err)
	}
	stripped := bitpack.ExtractRange(packed, int(full), int(miniPos), int(s.m))
	strippedSeq := s.f.hdr.encoding.Unpack(stripped, int(full-s.m))
	return s.WriteCompactedSequenceWithoutMini(strippedSeq, miniPos, data)
}

// miniKey packs the minimizer's on-disk bytes into an opaque u64 lookup key,
// the value the Hashtable section keys on.
func miniKey(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Close writes the section's minimizer, nb_blocks, the four columns, and
// backfills the column-offset table (write mode), or skips any unread
// blocks and releases the active-section slot (read mode).
func (s *MinimizerSection) Close() error {
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
		if err := s.f.fb.JumpTo(s.lastSeqPos, false); err != nil {
			return err
		}
		return nil
	}

	s.f.registerMinimizer(miniKey(s.miniBytes), s.offset)

	if _, err := s.f.fb.Write(s.miniBytes); err != nil {
		return fmt.Errorf("kero: write Minimizer key: %w", err)
	}

	nbBlocksOffset := s.f.fb.Len()
	var zero8 [8]byte
	if _, err := s.f.fb.Write(zero8[:]); err != nil {
		return fmt.Errorf("kero: write Minimizer nb_blocks placeholder: %w", err)
	}
	colOffsetsOffset := s.f.fb.Len()
	var zero32 [32]byte
	if _, err := s.f.fb.Write(zero32[:]); err != nil {
		return fmt.Errorf("kero: write Minimizer column offsets placeholder: %w", err)
	}

	col1Start := s.f.fb.Len()
	compressed1 := codec.EncodeUint64s(s.nBuf)
	if err := writeU64Len(s.f.fb, compressed1); err != nil {
		return fmt.Errorf("kero: write Minimizer n column: %w", err)
	}

	col2Start := s.f.fb.Len()
	compressed2 := codec.EncodeUint64s(s.mIdxBuf)
	if err := writeU64Len(s.f.fb, compressed2); err != nil {
		return fmt.Errorf("kero: write Minimizer m_idx column: %w", err)
	}

	col3Start := s.f.fb.Len()
	compressedData := codec.EncodeBytes(s.dataBuf)
	var rawLenBuf [8]byte
	binary.BigEndian.PutUint64(rawLenBuf[:], uint64(len(s.dataBuf)))
	if _, err := s.f.fb.Write(rawLenBuf[:]); err != nil {
		return fmt.Errorf("kero: write Minimizer data column raw length: %w", err)
	}
	if err := writeU64Len(s.f.fb, compressedData); err != nil {
		return fmt.Errorf("kero: write Minimizer data column: %w", err)
	}

	col4Start := s.f.fb.Len()
	if len(s.seqBuf) > 0 {
		if _, err := s.f.fb.Write(s.seqBuf); err != nil {
			return fmt.Errorf("kero: write Minimizer seq column: %w", err)
		}
	}

	var nbBlocksBuf [8]byte
	binary.BigEndian.PutUint64(nbBlocksBuf[:], s.nbBlocks)
	if err := s.f.fb.WriteAt(nbBlocksBuf[:], nbBlocksOffset); err != nil {
		return fmt.Errorf("kero: backfill Minimizer nb_blocks: %w", err)
	}

	offsets := make([]byte, 32)
	binary.BigEndian.PutUint64(offsets[0:8], uint64(col1Start-s.offset))
	binary.BigEndian.PutUint64(offsets[8:16], uint64(col2Start-s.offset))
	binary.BigEndian.PutUint64(offsets[16:24], uint64(col3Start-s.offset))
	binary.BigEndian.PutUint64(offsets[24:32], uint64(col4Start-s.offset))
	if err := s.f.fb.WriteAt(offsets, colOffsetsOffset); err != nil {
		return fmt.Errorf("kero: backfill Minimizer column offsets: %w", err)
	}

	s.f.registerSection(s.offset, tagMinimizer)
	return nil
}

func writeU64Len(fb interface {
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

// openMinimizerSectionReader constructs a reader-mode MinimizerSection. The
// tag byte has already been consumed by the caller's dispatch.
func openMinimizerSectionReader(f *File) (*MinimizerSection, error) {
	k, m, dataSize, err := minimizerRequiredVars(f)
	if err != nil {
		return nil, err
	}
	sectionStart := f.fb.Tell() - 1
	s := &MinimizerSection{f: f, k: k, m: m, dataSize: dataSize, offset: sectionStart}
	if err := f.beginSection(s); err != nil {
		return nil, err
	}

	s.miniBytes = make([]byte, bitpack.BitsBytes(2, int(m)))
	if _, err := f.fb.Read(s.miniBytes); err != nil {
		return nil, fmt.Errorf("%w: read Minimizer key: %v", ErrFormatInvariant, err)
	}
	s.miniSet = true

	var nbBlocksBuf [8]byte
	if _, err := f.fb.Read(nbBlocksBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read Minimizer nb_blocks: %v", ErrFormatInvariant, err)
	}
	s.nbBlocks = binary.BigEndian.Uint64(nbBlocksBuf[:])
	s.remaining = s.nbBlocks

	var offsetsBuf [32]byte
	if _, err := f.fb.Read(offsetsBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read Minimizer column offsets: %v", ErrFormatInvariant, err)
	}
	col1Abs := sectionStart + int64(binary.BigEndian.Uint64(offsetsBuf[0:8]))
	col2Abs := sectionStart + int64(binary.BigEndian.Uint64(offsetsBuf[8:16]))
	col3Abs := sectionStart + int64(binary.BigEndian.Uint64(offsetsBuf[16:24]))
	s.col4Abs = sectionStart + int64(binary.BigEndian.Uint64(offsetsBuf[24:32]))

	if f.mm != nil {
		if err := s.precacheColumnsFromMmap(f.mm, col1Abs, col2Abs, col3Abs); err != nil {
			return nil, err
		}
	} else if err := s.decodeColumns(col1Abs, col2Abs, col3Abs); err != nil {
		return nil, err
	}
	s.lastSeqPos = s.col4Abs
	return s, nil
}

// decodeColumns eagerly decompresses the n, m_idx, and data columns into
// in-memory slices, a simplification of the lazy on-first-read decode: the
// external behavior (blocks come out in order, with correct values) is
// identical either way.
func (s *MinimizerSection) decodeColumns(col1Abs, col2Abs, col3Abs int64) error {
	var lenBuf [8]byte

	if _, err := s.f.fb.ReadAt(lenBuf[:], col1Abs); err != nil {
		return fmt.Errorf("%w: read Minimizer n column length: %v", ErrFormatInvariant, err)
	}
	compressed1 := make([]byte, binary.BigEndian.Uint64(lenBuf[:]))
	if len(compressed1) > 0 {
		if _, err := s.f.fb.ReadAt(compressed1, col1Abs+8); err != nil {
			return fmt.Errorf("%w: read Minimizer n column: %v", ErrFormatInvariant, err)
		}
	}
	nVals, err := codec.DecodeUint64s(compressed1, int(s.nbBlocks))
	if err != nil {
		return fmt.Errorf("%w: decode Minimizer n column: %v", ErrFormatInvariant, err)
	}
	s.nBuf = nVals

	if _, err := s.f.fb.ReadAt(lenBuf[:], col2Abs); err != nil {
		return fmt.Errorf("%w: read Minimizer m_idx column length: %v", ErrFormatInvariant, err)
	}
	compressed2 := make([]byte, binary.BigEndian.Uint64(lenBuf[:]))
	if len(compressed2) > 0 {
		if _, err := s.f.fb.ReadAt(compressed2, col2Abs+8); err != nil {
			return fmt.Errorf("%w: read Minimizer m_idx column: %v", ErrFormatInvariant, err)
		}
	}
	mIdxVals, err := codec.DecodeUint64s(compressed2, int(s.nbBlocks))
	if err != nil {
		return fmt.Errorf("%w: decode Minimizer m_idx column: %v", ErrFormatInvariant, err)
	}
	s.mIdxBuf = mIdxVals

	var rawLenBuf [8]byte
	if _, err := s.f.fb.ReadAt(rawLenBuf[:], col3Abs); err != nil {
		return fmt.Errorf("%w: read Minimizer data column raw length: %v", ErrFormatInvariant, err)
	}
	rawLen := binary.BigEndian.Uint64(rawLenBuf[:])
	if _, err := s.f.fb.ReadAt(lenBuf[:], col3Abs+8); err != nil {
		return fmt.Errorf("%w: read Minimizer data column length: %v", ErrFormatInvariant, err)
	}
	compressedData := make([]byte, binary.BigEndian.Uint64(lenBuf[:]))
	if len(compressedData) > 0 {
		if _, err := s.f.fb.ReadAt(compressedData, col3Abs+16); err != nil {
			return fmt.Errorf("%w: read Minimizer data column: %v", ErrFormatInvariant, err)
		}
	}
	dataBuf, err := codec.DecodeBytes(compressedData, int(rawLen))
	if err != nil {
		return fmt.Errorf("%w: decode Minimizer data column: %v", ErrFormatInvariant, err)
	}
	s.dataBuf = dataBuf
	return nil
}

// MinimizerKey returns the opaque lookup key for this section's shared
// minimizer, the value the Hashtable section is keyed on.
func (s *MinimizerSection) MinimizerKey() uint64 {
	return miniKey(s.miniBytes)
}

// MinimizerSymbols returns the shared minimizer as ASCII nucleotide symbols.
func (s *MinimizerSection) MinimizerSymbols() []byte {
	return s.f.hdr.encoding.Unpack(s.miniBytes, int(s.m))
}

// NextBlock reads and reconstructs the next full super-k-mer block
// (minimizer re-spliced back in), or returns false at the end of the
// section.
func (s *MinimizerSection) NextBlock() (seq []byte, data []byte, ok bool, err error) {
	if s.remaining == 0 {
		return nil, nil, false, nil
	}

	n := s.nBuf[s.idx]
	miniPos := s.mIdxBuf[s.idx]
	strippedTotal := n + s.k - 1 - s.m

	strippedPacked := make([]byte, bitpack.PackedLen(int(strippedTotal)))
	if len(strippedPacked) > 0 {
		if _, err := s.f.fb.ReadAt(strippedPacked, s.lastSeqPos); err != nil {
			return nil, nil, false, fmt.Errorf("%w: read Minimizer sequence: %v", ErrFormatInvariant, err)
		}
	}
	s.lastSeqPos += int64(len(strippedPacked))

	fullPacked := bitpack.InsertRange(strippedPacked, int(strippedTotal), int(miniPos), s.miniBytes, int(s.m))
	seq = s.f.hdr.encoding.Unpack(fullPacked, int(n+s.k-1))

	dataLen := s.dataSize * n
	if dataLen > 0 {
		data = s.dataBuf[s.dataPos : s.dataPos+dataLen]
	}
	s.dataPos += dataLen
	s.idx++
	s.remaining--
	return seq, data, true, nil
}

// JumpSequence skips the next block without materializing it.
func (s *MinimizerSection) JumpSequence() error {
	if s.remaining == 0 {
		return nil
	}
	n := s.nBuf[s.idx]
	strippedTotal := n + s.k - 1 - s.m
	s.lastSeqPos += int64(bitpack.PackedLen(int(strippedTotal)))
	s.dataPos += s.dataSize * n
	s.idx++
	s.remaining--
	return nil
}

// mmapReaderAt is satisfied by *golang.org/x/exp/mmap.ReaderAt, the File's
// optional mm field.
type mmapReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

// precacheColumnsFromMmap decodes the n, m_idx, and data columns from an
// mmap-backed reader instead of the File's buffer, letting a random-access
// reader warm its in-memory columns without routing through FileBuffer.
// Idempotent: a second call is a no-op.
func (s *MinimizerSection) precacheColumnsFromMmap(r mmapReaderAt, col1Abs, col2Abs, col3Abs int64) error {
	if s.nBuf != nil {
		return nil
	}

	readLen := func(off int64) (int64, error) {
		var buf [8]byte
		if _, err := r.ReadAt(buf[:], off); err != nil {
			return 0, fmt.Errorf("%w: mmap read length at %d: %v", ErrFormatInvariant, off, err)
		}
		return int64(binary.BigEndian.Uint64(buf[:])), nil
	}

	l1, err := readLen(col1Abs)
	if err != nil {
		return err
	}
	c1 := make([]byte, l1)
	if l1 > 0 {
		if _, err := r.ReadAt(c1, col1Abs+8); err != nil {
			return fmt.Errorf("%w: mmap read n column: %v", ErrFormatInvariant, err)
		}
	}
	nVals, err := codec.DecodeUint64s(c1, int(s.nbBlocks))
	if err != nil {
		return fmt.Errorf("%w: decode Minimizer n column: %v", ErrFormatInvariant, err)
	}

	l2, err := readLen(col2Abs)
	if err != nil {
		return err
	}
	c2 := make([]byte, l2)
	if l2 > 0 {
		if _, err := r.ReadAt(c2, col2Abs+8); err != nil {
			return fmt.Errorf("%w: mmap read m_idx column: %v", ErrFormatInvariant, err)
		}
	}
	mIdxVals, err := codec.DecodeUint64s(c2, int(s.nbBlocks))
	if err != nil {
		return fmt.Errorf("%w: decode Minimizer m_idx column: %v", ErrFormatInvariant, err)
	}

	rawLen, err := readLen(col3Abs)
	if err != nil {
		return err
	}
	l3, err := readLen(col3Abs + 8)
	if err != nil {
		return err
	}
	c3 := make([]byte, l3)
	if l3 > 0 {
		if _, err := r.ReadAt(c3, col3Abs+16); err != nil {
			return fmt.Errorf("%w: mmap read data column: %v", ErrFormatInvariant, err)
		}
	}
	dataBuf, err := codec.DecodeBytes(c3, int(rawLen))
	if err != nil {
		return fmt.Errorf("%w: decode Minimizer data column: %v", ErrFormatInvariant, err)
	}

	s.nBuf = nVals
	s.mIdxBuf = mIdxVals
	s.dataBuf = dataBuf
	return nil
}
