package kero

import "fmt"

// Reader iterates every k-mer stored across a file's Raw and Minimizer
// sections, in file order, materializing one super-k-mer block at a time
// and handing out its constituent k-mers one at a time. GV sections update
// the reader's view of k/m/max/data_size as they're encountered; Index and
// Hashtable sections are read and discarded (they're already loaded into
// memory by Open's footer discovery, if present).
type Reader struct {
	f *File

	rawSec *RawSection
	minSec *MinimizerSection

	blockSeq      []byte
	blockData     []byte
	blockDataSize uint64
	blockK        uint64
	posInBlock    int
}

// NewReader returns a Reader positioned at the start of f's section stream.
// f must have been opened with Open (ModeRead).
func NewReader(f *File) (*Reader, error) {
	if f.mode != ModeRead {
		return nil, fmt.Errorf("%w: NewReader requires a File opened for reading", ErrUsage)
	}
	return &Reader{f: f}, nil
}

// NextKmer returns the next k-mer's nucleotide symbols and associated data,
// or ok=false once every section has been consumed.
func (r *Reader) NextKmer() ([]byte, []byte, bool, error) {
	for {
		if r.blockSeq != nil && r.posInBlock+int(r.blockK) <= len(r.blockSeq) {
			start := r.posInBlock
			kmerSeq := r.blockSeq[start : start+int(r.blockK)]
			var kmerData []byte
			if r.blockDataSize > 0 {
				lo := uint64(r.posInBlock) * r.blockDataSize
				kmerData = r.blockData[lo : lo+r.blockDataSize]
			}
			r.posInBlock++
			return kmerSeq, kmerData, true, nil
		}

		switch {
		case r.rawSec != nil:
			seq, data, ok, err := r.rawSec.NextBlock()
			if err != nil {
				return nil, nil, false, err
			}
			if ok {
				r.blockSeq, r.blockData = seq, data
				r.blockDataSize, r.blockK = r.rawSec.dataSize, r.rawSec.k
				r.posInBlock = 0
				continue
			}
			if err := r.rawSec.Close(); err != nil {
				return nil, nil, false, err
			}
			r.rawSec, r.blockSeq = nil, nil

		case r.minSec != nil:
			seq, data, ok, err := r.minSec.NextBlock()
			if err != nil {
				return nil, nil, false, err
			}
			if ok {
				r.blockSeq, r.blockData = seq, data
				r.blockDataSize, r.blockK = r.minSec.dataSize, r.minSec.k
				r.posInBlock = 0
				continue
			}
			if err := r.minSec.Close(); err != nil {
				return nil, nil, false, err
			}
			r.minSec, r.blockSeq = nil, nil

		default:
			more, err := r.openNextSection()
			if err != nil {
				return nil, nil, false, err
			}
			if !more {
				return nil, nil, false, nil
			}
		}
	}
}

// openNextSection reads and dispatches on the next section tag, skipping
// GV/Index/Hashtable sections (updating global vars or in-memory index
// state as a side effect) until it finds a Raw or Minimizer section to
// iterate, or reaches the trailing signature.
func (r *Reader) openNextSection() (bool, error) {
	for {
		if r.f.fb.Tell() >= r.f.fb.Len()-4 {
			return false, nil
		}

		var tagBuf [1]byte
		if _, err := r.f.fb.Read(tagBuf[:]); err != nil {
			return false, fmt.Errorf("%w: read section tag: %v", ErrFormatInvariant, err)
		}

		switch tagBuf[0] {
		case tagGV:
			if _, err := readGVSection(r.f); err != nil {
				return false, err
			}
		case tagRaw:
			s, err := openRawSectionReader(r.f)
			if err != nil {
				return false, err
			}
			r.rawSec = s
			return true, nil
		case tagMinimizer:
			s, err := openMinimizerSectionReader(r.f)
			if err != nil {
				return false, err
			}
			r.minSec = s
			return true, nil
		case tagIndex:
			if _, err := readIndexSection(r.f, make(map[int64]byte)); err != nil {
				return false, err
			}
		case tagHashtable:
			if _, err := readHashtableSection(r.f); err != nil {
				return false, err
			}
		default:
			return false, fmt.Errorf("%w: unknown section tag %q", ErrFormatSection, tagBuf[0])
		}
	}
}

// GetVar looks up a global variable by name, reflecting the most recent GV
// section the reader has passed.
func (r *Reader) GetVar(name string) (uint64, bool) {
	return r.f.GetVar(name)
}

// GetEncoding returns the file's nucleotide encoding permutation.
func (r *Reader) GetEncoding() (a, c, g, t byte) {
	return r.f.GetEncoding()
}
