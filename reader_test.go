package kero

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderRejectsUnopenedWriteModeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")
	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = NewReader(f)
	assert.ErrorIs(t, err, ErrUsage)
}

func TestReaderRejectsUnknownSectionTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")
	f, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, f.SetIndexing(false))
	require.NoError(t, f.WriteMetadata(nil))
	require.NoError(t, f.Close())

	require.NoError(t, insertByteBeforeTrailer(path, '?'))

	f2, err := Open(path)
	require.NoError(t, err)
	defer f2.Close()

	r, err := NewReader(f2)
	require.NoError(t, err)
	_, _, _, err = r.NextKmer()
	assert.ErrorIs(t, err, ErrFormatSection)
}

func TestReaderGetEncodingReflectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")
	f, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, f.SetEncoding(3, 2, 1, 0))
	require.NoError(t, f.SetIndexing(false))
	require.NoError(t, f.WriteMetadata(nil))
	require.NoError(t, f.Close())

	f2, err := Open(path)
	require.NoError(t, err)
	defer f2.Close()

	r, err := NewReader(f2)
	require.NoError(t, err)
	a, c, g, tt := r.GetEncoding()
	assert.Equal(t, [4]byte{3, 2, 1, 0}, [4]byte{a, c, g, tt})
}
