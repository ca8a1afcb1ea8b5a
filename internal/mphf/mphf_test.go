package mphf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLookupRoundTrip(t *testing.T) {
	keys := []uint64{10, 200, 3000, 40000, 500000, 6000000, 70000000}
	values := make([]uint64, len(keys))
	for i, k := range keys {
		values[i] = k * 2
	}

	m, err := Build(keys, values, nil)
	require.NoError(t, err)

	for i, k := range keys {
		assert.Equal(t, values[i], m.Lookup(k))
	}
}

func TestBuildRejectsMismatchedLengths(t *testing.T) {
	_, err := Build([]uint64{1, 2}, []uint64{1}, nil)
	assert.Error(t, err)
}

func TestBuildEmptyKeySet(t *testing.T) {
	m, err := Build(nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.Lookup(12345))
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	keys := []uint64{1, 2, 3, 4, 5, 100, 200, 300}
	values := []uint64{9, 8, 7, 6, 5, 4, 3, 2}

	m, err := Build(keys, values, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	m2, err := Deserialize(&buf)
	require.NoError(t, err)
	require.Nil(t, m2.Values)

	require.NoError(t, m2.SetValues(m.Values))

	for i, k := range keys {
		assert.Equal(t, values[i], m2.Lookup(k))
	}
}

func TestSetValuesRejectsWrongLength(t *testing.T) {
	keys := []uint64{1, 2, 3}
	values := []uint64{1, 2, 3}
	m, err := Build(keys, values, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	m2, err := Deserialize(&buf)
	require.NoError(t, err)

	err = m2.SetValues([]uint64{1, 2})
	assert.Error(t, err)
}
