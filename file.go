package kero

import (
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/exp/mmap"

	"github.com/kero-format/kero/internal/bitpack"
	"github.com/kero-format/kero/internal/filebuffer"
)

// Section type tags, single ASCII bytes per the external interface.
const (
	tagGV         = 'v'
	tagRaw        = 'r'
	tagMinimizer  = 'M'
	tagIndex      = 'i'
	tagHashtable  = 'h'
)

// Mode is the mode a File was opened in.
type Mode int

const (
	// ModeWrite opens a new file for writing; an existing file at the
	// same path is truncated.
	ModeWrite Mode = iota
	// ModeRead opens an existing file for reading.
	ModeRead
)

// registeredSection records one section's start offset and type tag, for
// the Index section built at Close.
type registeredSection struct {
	offset int64
	tag    byte
}

// File is a KERO container file, opened for either writing or reading. It
// exclusively owns its backing buffer, header, and the global-vars,
// minimizer-registry, and section-registry state that sections and File
// itself mutate over the file's lifetime. These are plain owned fields, not
// shared across goroutines or Files, per the format's single-threaded
// concurrency model.
type File struct {
	fb     *filebuffer.FileBuffer
	mode   Mode
	logger *slog.Logger
	hdr    *header

	globalVars map[string]uint64

	indexed       bool
	indexingLocked bool // true once the header is sealed or any section opened

	// write-mode bookkeeping, populated as sections close.
	sections   []registeredSection
	minimizers []uint64 // minimizer keys seen across all closed Minimizer sections
	minPos     []uint64 // each minimizer's owning section's start offset

	// read-mode bookkeeping, populated by footer discovery.
	index     map[int64]byte // offset -> type tag
	hashtable *hashtableIndex

	// mm is an optional mmap-backed random-access view of the same file,
	// opened alongside fb in read mode. Minimizer section reads prefer it
	// over routing column decode through fb, letting the kernel serve
	// repeated random-access lookups from the page cache directly. A
	// failure to mmap (unsupported filesystem, permissions) is not fatal:
	// mm stays nil and reads fall back to fb.
	mm *mmap.ReaderAt

	activeSection closer // the one Section currently borrowing this File, if any
	closed        bool
}

type closer interface {
	Close() error
}

// Create opens a new file for writing at path, emitting the signature and
// header placeholder immediately.
func Create(path string, opts ...FileOption) (*File, error) {
	o := newFileOptions(opts)
	fb, err := filebuffer.Create(path)
	if err != nil {
		return nil, err
	}
	hdr, err := writeHeaderPrefix(fb)
	if err != nil {
		_ = fb.Close()
		return nil, err
	}
	return &File{
		fb:         fb,
		mode:       ModeWrite,
		logger:     o.logger,
		hdr:        hdr,
		globalVars: make(map[string]uint64),
		indexed:    true,
	}, nil
}

// Open opens an existing file for reading, verifying both signatures,
// parsing the header, and (if present) chasing the footer to load the
// index and hashtable into memory for random access.
func Open(path string, opts ...FileOption) (*File, error) {
	o := newFileOptions(opts)
	fb, err := filebuffer.Open(path)
	if err != nil {
		return nil, err
	}
	hdr, err := readHeader(fb)
	if err != nil {
		_ = fb.Close()
		return nil, err
	}

	f := &File{
		fb:         fb,
		mode:       ModeRead,
		logger:     o.logger,
		hdr:        hdr,
		globalVars: make(map[string]uint64),
	}
	if mm, mmErr := mmap.Open(path); mmErr == nil {
		f.mm = mm
	} else {
		f.logger.Debug("kero: mmap unavailable, falling back to buffered reads", "path", path, "err", mmErr)
	}

	if err := f.discoverFooter(); err != nil {
		_ = fb.Close()
		if f.mm != nil {
			_ = f.mm.Close()
		}
		return nil, err
	}
	return f, nil
}

// SetIndexing enables or disables building the hashtable/index/footer on
// Close. It must be called before WriteMetadata seals the header (and so
// before any section is opened on this File); the original format's
// undefined behavior for toggling mid-stream is treated as forbidden rather
// than reproduced.
func (f *File) SetIndexing(v bool) error {
	if f.mode != ModeWrite {
		return fmt.Errorf("%w: SetIndexing is a writer-only operation", ErrUsage)
	}
	if f.indexingLocked {
		return fmt.Errorf("%w: cannot toggle indexing after the header is sealed or a section has been opened", ErrUsage)
	}
	f.indexed = v
	return nil
}

// SetEncoding sets the per-file nucleotide-to-2-bit-code permutation. The
// four codes must be pairwise distinct.
func (f *File) SetEncoding(a, c, g, t byte) error {
	if f.mode != ModeWrite {
		return fmt.Errorf("%w: SetEncoding is a writer-only operation", ErrUsage)
	}
	return f.hdr.setEncoding(f.fb, bitpack.Encoding{A: a, C: c, G: g, T: t})
}

// SetUniqueness records whether the file's k-mers are claimed unique.
func (f *File) SetUniqueness(v bool) error {
	if f.mode != ModeWrite {
		return fmt.Errorf("%w: SetUniqueness is a writer-only operation", ErrUsage)
	}
	return f.hdr.setUniqueness(f.fb, v)
}

// SetCanonicity records whether the file's k-mers are claimed canonical.
func (f *File) SetCanonicity(v bool) error {
	if f.mode != ModeWrite {
		return fmt.Errorf("%w: SetCanonicity is a writer-only operation", ErrUsage)
	}
	return f.hdr.setCanonicity(f.fb, v)
}

// WriteMetadata emits the header's opaque metadata block and seals the
// header; this must be called before any section is opened.
func (f *File) WriteMetadata(metadata []byte) error {
	if f.mode != ModeWrite {
		return fmt.Errorf("%w: WriteMetadata is a writer-only operation", ErrUsage)
	}
	if err := f.hdr.writeMetadata(f.fb, metadata); err != nil {
		return err
	}
	f.indexingLocked = true
	return nil
}

// GetEncoding returns the file's nucleotide encoding permutation.
func (f *File) GetEncoding() (a, c, g, t byte) {
	e := f.hdr.encoding
	return e.A, e.C, e.G, e.T
}

// Uniqueness and Canonicity report the header flags.
func (f *File) Uniqueness() bool { return f.hdr.uniqueness }
func (f *File) Canonicity() bool { return f.hdr.canonicity }

// Metadata returns the header's opaque metadata block.
func (f *File) Metadata() []byte { return f.hdr.metadata }

// GetVar looks up a global variable (k, m, max, data_size, or any
// caller-defined GV entry) by name.
func (f *File) GetVar(name string) (uint64, bool) {
	v, ok := f.globalVars[name]
	return v, ok
}

// setVar is used by GV section close (write and read) to mirror entries
// into the File-wide global vars table.
func (f *File) setVar(name string, v uint64) {
	f.globalVars[name] = v
}

// ensureHeaderComplete is the barrier a Section's constructor calls before
// registering its start offset: the header (including metadata) must be
// fully written/read first.
func (f *File) ensureHeaderComplete() error {
	if !f.hdr.complete {
		return fmt.Errorf("%w: header is not complete (call WriteMetadata first)", ErrUsage)
	}
	return nil
}

// beginSection enforces the single-active-section invariant and the
// header-complete barrier, used by every concrete section's constructor.
func (f *File) beginSection(s closer) error {
	if err := f.ensureHeaderComplete(); err != nil {
		return err
	}
	if f.activeSection != nil {
		return fmt.Errorf("%w: a section is already open on this File", ErrUsage)
	}
	f.indexingLocked = true
	f.activeSection = s
	return nil
}

func (f *File) endSection() {
	f.activeSection = nil
}

// registerSection records a section's start offset and type tag for the
// Index section built at Close. Only meaningful in write mode.
func (f *File) registerSection(offset int64, tag byte) {
	f.sections = append(f.sections, registeredSection{offset: offset, tag: tag})
}

// registerMinimizer records one minimizer key and the absolute start offset
// of the Minimizer section that wrote it, for the Hashtable built at Close.
func (f *File) registerMinimizer(key uint64, sectionOffset int64) {
	f.minimizers = append(f.minimizers, key)
	f.minPos = append(f.minPos, uint64(sectionOffset))
}

// Close finalizes the file: in write mode, if indexing is enabled, this
// appends the Hashtable section, Index section, and terminal footer GV,
// then re-emits the trailing signature; in read mode this simply releases
// the backing handle.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.activeSection != nil {
		return fmt.Errorf("%w: a section is still open when closing the File", ErrUsage)
	}

	if f.mode == ModeWrite {
		if f.indexed {
			if err := f.writeFooter(); err != nil {
				return err
			}
		}
		if _, err := f.fb.Write([]byte(Signature)); err != nil {
			return fmt.Errorf("kero: write trailing signature: %w", err)
		}
	}
	if f.mm != nil {
		if err := f.mm.Close(); err != nil {
			return fmt.Errorf("kero: close mmap: %w", err)
		}
	}
	return f.fb.Close()
}

// sortedSections returns the registered sections ordered by start offset,
// the order the Index section requires (4.8: "sorted ... entries").
func (f *File) sortedSections() []registeredSection {
	out := append([]registeredSection(nil), f.sections...)
	sort.Slice(out, func(i, j int) bool { return out[i].offset < out[j].offset })
	return out
}
