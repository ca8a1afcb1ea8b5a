package kero

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGVSectionWriteThenReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")

	f, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, f.SetIndexing(false))
	require.NoError(t, f.WriteMetadata(nil))

	gv, err := NewGVSection(f)
	require.NoError(t, err)
	gv.Set("k", 21)
	gv.Set("m", 11)
	gv.Set("max", 8)
	gv.Set("data_size", 4)
	require.NoError(t, gv.Close())

	assert.Equal(t, uint64(21), must(f.GetVar("k")))
	require.NoError(t, f.Close())

	f2, err := Open(path)
	require.NoError(t, err)
	defer f2.Close()

	r, err := NewReader(f2)
	require.NoError(t, err)
	_, _, ok, err := r.NextKmer()
	require.NoError(t, err)
	require.False(t, ok)

	v, ok := r.GetVar("m")
	require.True(t, ok)
	assert.Equal(t, uint64(11), v)
}

func must(v uint64, ok bool) uint64 {
	if !ok {
		panic("missing var")
	}
	return v
}

func TestGVSectionCannotOpenBeforeMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")
	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = NewGVSection(f)
	assert.ErrorIs(t, err, ErrUsage)
}
