package kero

import (
	"encoding/binary"
	"fmt"

	"github.com/kero-format/kero/internal/bitpack"
	"github.com/kero-format/kero/internal/filebuffer"
)

// Signature is the four-byte ASCII magic that must open and close a
// well-formed file.
const Signature = "KERO"

// CurrentMajor and CurrentMinor are the version this implementation writes
// and the newest version it can read.
const (
	CurrentMajor byte = 0
	CurrentMinor byte = 1
)

const (
	headerFixedSize = 13 // signature(4) + major(1) + minor(1) + encoding(1) + uniqueness(1) + canonicity(1) + metadata_size(4)
	offEncoding     = 6
	offUniqueness   = 7
	offCanonicity   = 8
)

type header struct {
	major, minor byte
	encoding     bitpack.Encoding
	uniqueness   bool
	canonicity   bool
	metadata     []byte
	complete     bool
	// end is the logical offset immediately past the header (and its
	// metadata block), where the first section begins.
	end int64
}

// writeHeaderPrefix emits the fixed 13-byte header prefix (with
// placeholders for encoding/uniqueness/canonicity/metadata_size) at the
// start of a freshly created file.
func writeHeaderPrefix(fb *filebuffer.FileBuffer) (*header, error) {
	h := &header{major: CurrentMajor, minor: CurrentMinor, encoding: bitpack.DefaultEncoding}

	buf := make([]byte, headerFixedSize)
	copy(buf[0:4], Signature)
	buf[4] = h.major
	buf[5] = h.minor
	buf[offEncoding] = h.encoding.Byte()
	buf[offUniqueness] = 0
	buf[offCanonicity] = 0
	// buf[9:13] metadata_size placeholder, zeroed.

	if _, err := fb.Write(buf); err != nil {
		return nil, fmt.Errorf("kero: write header: %w", err)
	}
	return h, nil
}

// setEncoding validates and patches the encoding byte. It must be called
// before WriteMetadata seals the header.
func (h *header) setEncoding(fb *filebuffer.FileBuffer, enc bitpack.Encoding) error {
	if h.complete {
		return fmt.Errorf("%w: cannot set encoding after header is sealed", ErrUsage)
	}
	if !enc.Valid() {
		return fmt.Errorf("%w: encoding codes must be pairwise distinct", ErrFormatInvariant)
	}
	h.encoding = enc
	return fb.WriteAt([]byte{enc.Byte()}, offEncoding)
}

func (h *header) setUniqueness(fb *filebuffer.FileBuffer, v bool) error {
	if h.complete {
		return fmt.Errorf("%w: cannot set uniqueness after header is sealed", ErrUsage)
	}
	h.uniqueness = v
	return fb.WriteAt([]byte{boolByte(v)}, offUniqueness)
}

func (h *header) setCanonicity(fb *filebuffer.FileBuffer, v bool) error {
	if h.complete {
		return fmt.Errorf("%w: cannot set canonicity after header is sealed", ErrUsage)
	}
	h.canonicity = v
	return fb.WriteAt([]byte{boolByte(v)}, offCanonicity)
}

// writeMetadata patches the reserved metadata_size field (bytes 9..13) and
// appends the metadata bytes, sealing the header: no further header
// mutation is permitted afterward.
func (h *header) writeMetadata(fb *filebuffer.FileBuffer, metadata []byte) error {
	if h.complete {
		return fmt.Errorf("%w: header already sealed", ErrUsage)
	}
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(metadata)))
	if err := fb.WriteAt(sizeBuf[:], 9); err != nil {
		return fmt.Errorf("kero: write metadata size: %w", err)
	}
	if len(metadata) > 0 {
		if _, err := fb.Write(metadata); err != nil {
			return fmt.Errorf("kero: write metadata: %w", err)
		}
	}
	h.metadata = append([]byte(nil), metadata...)
	h.complete = true
	h.end = fb.Len()
	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// readHeader parses the header at the current (start-of-file) cursor
// position and verifies both the leading and trailing signatures.
func readHeader(fb *filebuffer.FileBuffer) (*header, error) {
	buf := make([]byte, headerFixedSize)
	if err := fb.JumpTo(0, false); err != nil {
		return nil, err
	}
	if _, err := fb.Read(buf); err != nil {
		return nil, fmt.Errorf("kero: read header: %w", err)
	}
	if string(buf[0:4]) != Signature {
		return nil, fmt.Errorf("%w: leading signature %q", ErrFormatSignature, buf[0:4])
	}

	major, minor := buf[4], buf[5]
	if major > CurrentMajor || (major == CurrentMajor && minor > CurrentMinor) {
		return nil, fmt.Errorf("%w: file version %d.%d newer than supported %d.%d", ErrFormatVersion, major, minor, CurrentMajor, CurrentMinor)
	}

	enc := bitpack.EncodingFromByte(buf[offEncoding])
	if !enc.Valid() {
		return nil, fmt.Errorf("%w: header encoding codes not pairwise distinct", ErrFormatInvariant)
	}

	h := &header{
		major:      major,
		minor:      minor,
		encoding:   enc,
		uniqueness: buf[offUniqueness] != 0,
		canonicity: buf[offCanonicity] != 0,
		complete:   true,
	}

	metadataSize := binary.BigEndian.Uint32(buf[9:13])
	if metadataSize > 0 {
		h.metadata = make([]byte, metadataSize)
		if _, err := fb.Read(h.metadata); err != nil {
			return nil, fmt.Errorf("%w: truncated metadata: %v", ErrFormatInvariant, err)
		}
	}
	h.end = fb.Tell() // fb cursor currently sits right after metadata

	trailer := make([]byte, 4)
	if err := fb.JumpTo(4, true); err != nil {
		return nil, err
	}
	if _, err := fb.Read(trailer); err != nil {
		return nil, fmt.Errorf("kero: read trailing signature: %w", err)
	}
	if string(trailer) != Signature {
		return nil, fmt.Errorf("%w: trailing signature %q", ErrFormatSignature, trailer)
	}

	if err := fb.JumpTo(h.end, false); err != nil {
		return nil, err
	}
	return h, nil
}
