// Package filebuffer implements the hybrid on-disk/tail-buffer random-access
// stream that KERO's File type is built on: logical positions below
// file_size live on disk, positions at or above file_size live in an
// in-memory tail buffer that grows by doubling until it spills.
//
// This is a from-scratch reimplementation of the semantics documented for
// the format's FileBuffer component; it satisfies the same write/write_at/
// read/jump_to invariants without porting the original's internal buffer
// bookkeeping line for line.
package filebuffer

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	minTailCap = 1 << 10 // 1 KiB
	maxTailCap = 1 << 20 // 1 MiB
)

// ErrOutOfRange is returned when a read or jump targets a logical position
// past the current end of the stream.
var ErrOutOfRange = errors.New("filebuffer: position out of range")

// ErrClosed is returned for operations attempted after Close.
var ErrClosed = errors.New("filebuffer: use of closed FileBuffer")

// ErrAlreadyLocked is returned when another process (or FileBuffer) already
// holds a conflicting advisory lock on the backing file.
var ErrAlreadyLocked = errors.New("filebuffer: file already locked")

// FileBuffer is a positional byte stream split between a persisted disk
// prefix and an in-memory tail. It is not safe for concurrent use.
type FileBuffer struct {
	f    *os.File
	path string

	fileSize int64 // length of the persisted, on-disk prefix
	tail     []byte
	nextFree int64 // bytes of tail currently holding logical data
	cursor   int64 // logical position used by Read and JumpTo

	lockMode int // unix.LOCK_EX or unix.LOCK_SH, reapplied on Reopen

	tmpClosed bool
	closed    bool
}

// Create creates (truncating if necessary) a new backing file and returns an
// empty FileBuffer over it, holding an advisory exclusive lock for as long
// as the FileBuffer stays open: KERO is a single-writer format, and a second
// writer opening the same path should fail fast rather than interleave
// writes.
func Create(path string) (*FileBuffer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filebuffer: create %s: %w", path, err)
	}
	if err := lockFile(f, unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("filebuffer: lock %s: %w", path, err)
	}
	return &FileBuffer{f: f, path: path, lockMode: unix.LOCK_EX}, nil
}

// Open opens an existing backing file for reading and writing, with the
// cursor at position 0 and writes appending at the current end of the file,
// holding an advisory shared lock: concurrent
// readers are fine, but Open fails fast against a concurrent writer's
// exclusive lock rather than racing it.
func Open(path string) (*FileBuffer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filebuffer: open %s: %w", path, err)
	}
	if err := lockFile(f, unix.LOCK_SH); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("filebuffer: lock %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("filebuffer: stat %s: %w", path, err)
	}
	return &FileBuffer{f: f, path: path, fileSize: info.Size(), lockMode: unix.LOCK_SH}, nil
}

// lockFile takes a non-blocking advisory lock (unix.LOCK_EX or
// unix.LOCK_SH) on f, translating the "already locked" case into
// ErrAlreadyLocked.
func lockFile(f *os.File, mode int) error {
	if err := unix.Flock(int(f.Fd()), mode|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%w: %s", ErrAlreadyLocked, f.Name())
		}
		return err
	}
	return nil
}

// Len returns the current logical length of the stream.
func (fb *FileBuffer) Len() int64 {
	return fb.fileSize + fb.nextFree
}

// Tell returns the current cursor position, as last set by JumpTo/Jump or
// advanced by Read.
func (fb *FileBuffer) Tell() int64 {
	return fb.cursor
}

// Jump moves the cursor by a relative delta.
func (fb *FileBuffer) Jump(delta int64) error {
	return fb.JumpTo(fb.cursor+delta, false)
}

// JumpTo moves the cursor to an absolute logical position. If fromEnd is
// true, pos is interpreted as an offset back from the current logical end.
// Out-of-range targets are an error.
func (fb *FileBuffer) JumpTo(pos int64, fromEnd bool) error {
	if fb.closed {
		return ErrClosed
	}
	if fromEnd {
		pos = fb.Len() - pos
	}
	if pos < 0 || pos > fb.Len() {
		return fmt.Errorf("%w: jump to %d (len %d)", ErrOutOfRange, pos, fb.Len())
	}
	fb.cursor = pos
	return nil
}

// Read fills dst starting at the cursor and advances the cursor by len(dst).
// It reads across the disk/tail boundary transparently.
func (fb *FileBuffer) Read(dst []byte) (int, error) {
	n, err := fb.ReadAt(dst, fb.cursor)
	if err != nil {
		return n, err
	}
	fb.cursor += int64(n)
	return n, nil
}

// ReadAt fills dst starting at the given logical position without moving
// the cursor.
func (fb *FileBuffer) ReadAt(dst []byte, pos int64) (int, error) {
	if fb.closed {
		return 0, ErrClosed
	}
	want := int64(len(dst))
	if pos < 0 || pos+want > fb.Len() {
		return 0, fmt.Errorf("%w: read %d bytes at %d (len %d)", ErrOutOfRange, want, pos, fb.Len())
	}
	if want == 0 {
		return 0, nil
	}
	if err := fb.ensureOpen(); err != nil {
		return 0, err
	}

	var diskPart int64
	if pos < fb.fileSize {
		diskPart = fb.fileSize - pos
		if diskPart > want {
			diskPart = want
		}
		if _, err := fb.f.ReadAt(dst[:diskPart], pos); err != nil {
			return 0, fmt.Errorf("filebuffer: read: %w", err)
		}
	}
	if diskPart < want {
		tailOff := pos + diskPart - fb.fileSize
		copy(dst[diskPart:], fb.tail[tailOff:tailOff+(want-diskPart)])
	}
	return int(want), nil
}

// Write appends p at the logical end of the stream (file_size + next_free),
// regardless of the current cursor position set by JumpTo.
func (fb *FileBuffer) Write(p []byte) (int, error) {
	if fb.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := fb.ensureOpen(); err != nil {
		return 0, err
	}

	need := fb.nextFree + int64(len(p))
	if need > int64(cap(fb.tail)) {
		fb.grow(need)
	}
	if need <= int64(cap(fb.tail)) {
		fb.tail = fb.tail[:cap(fb.tail)]
		copy(fb.tail[fb.nextFree:need], p)
		fb.nextFree = need
		return len(p), nil
	}

	// Tail is already at max capacity and still can't hold p: flush the
	// buffered tail to disk, then append p directly to disk.
	if err := fb.flushTail(); err != nil {
		return 0, err
	}
	if _, err := fb.f.WriteAt(p, fb.fileSize); err != nil {
		return 0, fmt.Errorf("filebuffer: direct append: %w", err)
	}
	fb.fileSize += int64(len(p))
	return len(p), nil
}

// WriteAt patches p into the stream at an arbitrary logical position,
// recursing across the disk/tail boundary as needed. pos must not exceed the
// current logical length.
func (fb *FileBuffer) WriteAt(p []byte, pos int64) error {
	if fb.closed {
		return ErrClosed
	}
	if pos < 0 || pos > fb.Len() {
		return fmt.Errorf("%w: write_at %d bytes at %d (len %d)", ErrOutOfRange, len(p), pos, fb.Len())
	}
	if len(p) == 0 {
		return nil
	}
	if err := fb.ensureOpen(); err != nil {
		return err
	}

	if pos < fb.fileSize {
		diskPart := fb.fileSize - pos
		if diskPart > int64(len(p)) {
			diskPart = int64(len(p))
		}
		if _, err := fb.f.WriteAt(p[:diskPart], pos); err != nil {
			return fmt.Errorf("filebuffer: write_at disk: %w", err)
		}
		if diskPart < int64(len(p)) {
			return fb.WriteAt(p[diskPart:], fb.fileSize)
		}
		return nil
	}

	tailOff := pos - fb.fileSize
	end := tailOff + int64(len(p))
	if end > int64(cap(fb.tail)) {
		fb.grow(end)
	}
	if end > int64(cap(fb.tail)) {
		return fmt.Errorf("%w: write_at %d bytes at tail offset %d exceeds max tail capacity", ErrOutOfRange, len(p), tailOff)
	}
	fb.tail = fb.tail[:cap(fb.tail)]
	copy(fb.tail[tailOff:end], p)
	if end > fb.nextFree {
		fb.nextFree = end
	}
	return nil
}

// grow doubles the tail capacity (starting from minTailCap) until it can
// hold need bytes or has reached maxTailCap, zero-filling new space.
func (fb *FileBuffer) grow(need int64) {
	newCap := int64(cap(fb.tail))
	if newCap == 0 {
		newCap = minTailCap
	}
	for newCap < need && newCap < maxTailCap {
		newCap *= 2
	}
	if newCap > maxTailCap {
		newCap = maxTailCap
	}
	if newCap <= int64(cap(fb.tail)) {
		return
	}
	grown := make([]byte, newCap)
	copy(grown, fb.tail[:fb.nextFree])
	fb.tail = grown
}

// flushTail writes any buffered tail bytes to disk and resets the tail.
func (fb *FileBuffer) flushTail() error {
	if fb.nextFree == 0 {
		return nil
	}
	if err := fb.ensureOpen(); err != nil {
		return err
	}
	if _, err := fb.f.WriteAt(fb.tail[:fb.nextFree], fb.fileSize); err != nil {
		return fmt.Errorf("filebuffer: flush: %w", err)
	}
	fb.fileSize += fb.nextFree
	fb.nextFree = 0
	return nil
}

// TmpClose releases the OS file handle while preserving all logical state
// (file_size, tail, next_free, cursor). The next disk-touching call reopens
// the handle automatically via Reopen.
func (fb *FileBuffer) TmpClose() error {
	if fb.closed || fb.tmpClosed {
		return nil
	}
	if err := fb.f.Close(); err != nil {
		return fmt.Errorf("filebuffer: tmp_close: %w", err)
	}
	fb.f = nil
	fb.tmpClosed = true
	return nil
}

// Reopen reopens the backing file after a TmpClose. It is a no-op if the
// handle is already open.
func (fb *FileBuffer) Reopen() error {
	if fb.closed {
		return ErrClosed
	}
	if !fb.tmpClosed {
		return nil
	}
	f, err := os.OpenFile(fb.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("filebuffer: reopen %s: %w", fb.path, err)
	}
	if err := lockFile(f, fb.lockMode); err != nil {
		_ = f.Close()
		return fmt.Errorf("filebuffer: reopen lock %s: %w", fb.path, err)
	}
	fb.f = f
	fb.tmpClosed = false
	return nil
}

func (fb *FileBuffer) ensureOpen() error {
	if fb.tmpClosed {
		return fb.Reopen()
	}
	return nil
}

// Flush writes any buffered tail bytes to disk without closing the handle.
func (fb *FileBuffer) Flush() error {
	if fb.closed {
		return ErrClosed
	}
	if err := fb.ensureOpen(); err != nil {
		return err
	}
	return fb.flushTail()
}

// Close flushes the tail and closes the backing file. Close is idempotent.
func (fb *FileBuffer) Close() error {
	if fb.closed {
		return nil
	}
	if err := fb.ensureOpen(); err != nil {
		return err
	}
	fb.closed = true
	if err := fb.flushTail(); err != nil {
		return err
	}
	return fb.f.Close()
}

// Path returns the backing file's path, for mmap-based readers that want to
// reopen the finalized file independently.
func (fb *FileBuffer) Path() string {
	return fb.path
}
