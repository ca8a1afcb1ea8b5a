package filebuffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(t *testing.T) *FileBuffer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fb.bin")
	fb, err := Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fb.Close() })
	return fb
}

func TestWriteReadRoundTrip(t *testing.T) {
	fb := newTestBuffer(t)

	n, err := fb.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, int64(11), fb.Len())

	require.NoError(t, fb.JumpTo(0, false))
	got := make([]byte, 11)
	_, err = fb.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestWriteAlwaysAppendsAtLogicalEnd(t *testing.T) {
	fb := newTestBuffer(t)

	_, err := fb.Write([]byte("AAAA"))
	require.NoError(t, err)
	require.NoError(t, fb.JumpTo(0, false))

	_, err = fb.Write([]byte("BBBB"))
	require.NoError(t, err)
	require.Equal(t, int64(8), fb.Len())

	require.NoError(t, fb.JumpTo(0, false))
	got := make([]byte, 8)
	_, err = fb.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(got))
}

func TestWriteAtPatchesInPlace(t *testing.T) {
	fb := newTestBuffer(t)

	_, err := fb.Write([]byte("00000000"))
	require.NoError(t, err)

	require.NoError(t, fb.WriteAt([]byte("XX"), 3))

	require.NoError(t, fb.JumpTo(0, false))
	got := make([]byte, 8)
	_, err = fb.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "000XX000", string(got))
}

func TestWriteAtStraddlesDiskTailBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fb.bin")
	fb, err := Create(path)
	require.NoError(t, err)
	defer fb.Close()

	_, err = fb.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, fb.Flush())
	// fileSize is now 10, nextFree 0 — flush moved everything to disk.

	_, err = fb.Write([]byte("abcdefghij"))
	require.NoError(t, err)
	// logical stream: disk[0:10] + tail[10:20]

	// write_at straddling byte 8 (disk) through byte 11 (tail)
	require.NoError(t, fb.WriteAt([]byte("XXXX"), 8))

	require.NoError(t, fb.JumpTo(0, false))
	got := make([]byte, 20)
	_, err = fb.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "01234567XXXXcdefghij", string(got))
}

func TestJumpToOutOfRange(t *testing.T) {
	fb := newTestBuffer(t)
	_, err := fb.Write([]byte("abc"))
	require.NoError(t, err)

	err = fb.JumpTo(100, false)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestTmpCloseReopenPreservesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fb.bin")
	fb, err := Create(path)
	require.NoError(t, err)
	defer fb.Close()

	_, err = fb.Write([]byte("persisted"))
	require.NoError(t, err)

	require.NoError(t, fb.TmpClose())
	require.NoError(t, fb.Reopen())

	require.NoError(t, fb.JumpTo(0, false))
	got := make([]byte, 9)
	_, err = fb.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))
}

func TestOpenExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fb.bin")
	fb, err := Create(path)
	require.NoError(t, err)
	_, err = fb.Write([]byte("saved"))
	require.NoError(t, err)
	require.NoError(t, fb.Close())

	fb2, err := Open(path)
	require.NoError(t, err)
	defer fb2.Close()

	require.Equal(t, int64(5), fb2.Len())
	require.NoError(t, fb2.JumpTo(0, false))
	got := make([]byte, 5)
	_, err = fb2.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "saved", string(got))
}

func TestCreateFailsAgainstExistingExclusiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fb.bin")
	fb, err := Create(path)
	require.NoError(t, err)
	defer fb.Close()

	_, err = Create(path)
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestOpenFailsAgainstExistingExclusiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fb.bin")
	fb, err := Create(path)
	require.NoError(t, err)
	defer fb.Close()

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestOpenSucceedsAgainstExistingSharedLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fb.bin")
	fb, err := Create(path)
	require.NoError(t, err)
	_, err = fb.Write([]byte("saved"))
	require.NoError(t, err)
	require.NoError(t, fb.Close())

	fb1, err := Open(path)
	require.NoError(t, err)
	defer fb1.Close()

	fb2, err := Open(path)
	require.NoError(t, err)
	defer fb2.Close()
}

func TestGrowthSpillsPastMaxTailCapacity(t *testing.T) {
	fb := newTestBuffer(t)

	big := make([]byte, maxTailCap+100)
	for i := range big {
		big[i] = byte(i % 256)
	}
	_, err := fb.Write(big)
	require.NoError(t, err)
	require.Equal(t, int64(len(big)), fb.Len())

	require.NoError(t, fb.JumpTo(0, false))
	got := make([]byte, len(big))
	_, err = fb.Read(got)
	require.NoError(t, err)
	assert.Equal(t, big, got)
}
