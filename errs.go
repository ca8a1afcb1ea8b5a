package kero

import "errors"

// Sentinel errors corresponding to the format's error taxonomy: IO,
// FormatVersion, FormatSignature, FormatSection, FormatInvariant, Usage,
// OutOfRange. Wrap these with fmt.Errorf("...: %w", err) for context; test
// membership with errors.Is.
var (
	// ErrFormatVersion is returned when a file's major/minor version
	// exceeds what this implementation understands.
	ErrFormatVersion = errors.New("kero: file format version too new")

	// ErrFormatSignature is returned when the leading or trailing KERO
	// signature does not match.
	ErrFormatSignature = errors.New("kero: bad file signature")

	// ErrFormatSection is returned for an unknown section type tag, or a
	// tag that doesn't match the section the caller expected.
	ErrFormatSection = errors.New("kero: bad or unexpected section type")

	// ErrFormatInvariant is returned for detected on-disk corruption:
	// duplicate index offsets, non-distinct encoding codes, EOF mid
	// variable, a malformed footer.
	ErrFormatInvariant = errors.New("kero: format invariant violated")

	// ErrUsage is returned for programmer errors: writing in read mode,
	// opening a section that needs global vars (k, max, data_size) that
	// haven't been set, opening a second section before the active one is
	// closed, or toggling indexing after the header is sealed. A write
	// past the logical end fails with the filebuffer package's
	// out-of-range error, not with ErrUsage.
	ErrUsage = errors.New("kero: invalid use of the API")

	// ErrOutOfRange names the taxonomy's out-of-range kind. No function in
	// this package returns it: a read or jump past the logical end fails
	// with the filebuffer package's own out-of-range error, returned
	// wrapped or reported inside ErrFormatInvariant.
	ErrOutOfRange = errors.New("kero: read past logical end")
)
