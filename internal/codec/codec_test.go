package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUint64sRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 2, 1000000, 1 << 40, 42}
	compressed := EncodeUint64s(vals)

	got, err := DecodeUint64s(compressed, len(vals))
	require.NoError(t, err)
	assert.Equal(t, vals, got)
}

func TestEncodeDecodeUint64sEmpty(t *testing.T) {
	compressed := EncodeUint64s(nil)
	got, err := DecodeUint64s(compressed, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeUint64sTruncatedFails(t *testing.T) {
	compressed := EncodeUint64s([]uint64{1, 2, 3})
	_, err := DecodeUint64s(compressed, 10)
	assert.Error(t, err)
}

func TestEncodeDecodeBytesRoundTrip(t *testing.T) {
	raw := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility, "+
		"the quick brown fox jumps over the lazy dog")
	compressed := EncodeBytes(raw)

	got, err := DecodeBytes(compressed, len(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestDecodeBytesLengthMismatchFails(t *testing.T) {
	raw := []byte("some data")
	compressed := EncodeBytes(raw)
	_, err := DecodeBytes(compressed, len(raw)+1)
	assert.Error(t, err)
}

func TestEncodeDecodeBytesEmpty(t *testing.T) {
	compressed := EncodeBytes(nil)
	got, err := DecodeBytes(compressed, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
