package kero

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBasicGV(t *testing.T, f *File, k, m, max, dataSize uint64) {
	t.Helper()
	gv, err := NewGVSection(f)
	require.NoError(t, err)
	gv.Set("k", k)
	gv.Set("m", m)
	gv.Set("max", max)
	gv.Set("data_size", dataSize)
	require.NoError(t, gv.Close())
}

func TestRawSectionWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")

	f, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, f.SetIndexing(false))
	require.NoError(t, f.WriteMetadata(nil))
	writeBasicGV(t, f, 4, 0, 3, 1)

	raw, err := NewRawSection(f)
	require.NoError(t, err)
	require.NoError(t, raw.WriteBlock([]byte("ACGTA"), []byte{1, 2}))
	require.NoError(t, raw.WriteBlock([]byte("TTTT"), []byte{9}))
	require.NoError(t, raw.Close())
	require.NoError(t, f.Close())

	f2, err := Open(path)
	require.NoError(t, err)
	defer f2.Close()

	r, err := NewReader(f2)
	require.NoError(t, err)

	var kmers []string
	var datas []byte
	for {
		seq, data, ok, err := r.NextKmer()
		require.NoError(t, err)
		if !ok {
			break
		}
		kmers = append(kmers, string(seq))
		datas = append(datas, data...)
	}

	assert.Equal(t, []string{"ACGT", "CGTA", "TTTT"}, kmers)
	assert.Equal(t, []byte{1, 2, 9}, datas)
}

func TestRawSectionRejectsWrongDataLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")
	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.WriteMetadata(nil))
	writeBasicGV(t, f, 4, 0, 3, 2)

	raw, err := NewRawSection(f)
	require.NoError(t, err)
	err = raw.WriteBlock([]byte("ACGTA"), []byte{1})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRawSectionRejectsTooManyKmers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")
	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.WriteMetadata(nil))
	writeBasicGV(t, f, 4, 0, 1, 1)

	raw, err := NewRawSection(f)
	require.NoError(t, err)
	err = raw.WriteBlock([]byte("ACGTA"), []byte{1, 2})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRawSectionMissingVarsFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.kero")
	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.WriteMetadata(nil))

	_, err = NewRawSection(f)
	assert.ErrorIs(t, err, ErrUsage)
}
