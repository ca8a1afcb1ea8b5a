package bitpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitsBytes(t *testing.T) {
	require.Equal(t, 0, BitsBytes(2, 0))
	require.Equal(t, 0, BitsBytes(0, 5))
	require.Equal(t, 1, BitsBytes(2, 4))
	require.Equal(t, 2, BitsBytes(2, 5))
	require.Equal(t, 2, BitsBytes(2, 8))
	require.Equal(t, 3, BitsBytes(2, 9))
}

func TestPackedLen(t *testing.T) {
	require.Equal(t, 0, PackedLen(0))
	require.Equal(t, 1, PackedLen(1))
	require.Equal(t, 1, PackedLen(4))
	require.Equal(t, 2, PackedLen(5))
}

func TestRightShiftThenLeftShiftRoundTrip(t *testing.T) {
	// RightShift first introduces zero bits on the left and evicts low bits
	// off the right; a subsequent LeftShift by the same amount restores the
	// original exactly, since the evicted low bits were already zero.
	orig := []byte{0b10110100, 0b01101000}
	b := append([]byte(nil), orig...)

	RightShift(b, len(b), 3)
	LeftShift(b, len(b), 3)

	require.Equal(t, orig, b)
}

func TestLeftShiftKnownValue(t *testing.T) {
	b := []byte{0b11000000, 0b00000000}
	LeftShift(b, len(b), 2)
	require.Equal(t, []byte{0b00000000, 0b00000000}, b)

	b = []byte{0b11010000, 0b00000000}
	LeftShift(b, len(b), 2)
	require.Equal(t, []byte{0b01000000, 0b00000000}, b)
}

func TestRightShiftKnownValue(t *testing.T) {
	b := []byte{0b00000000, 0b00000011}
	RightShift(b, len(b), 2)
	require.Equal(t, []byte{0b00000000, 0b00000000}, b)

	b = []byte{0b00000001, 0b00000000}
	RightShift(b, len(b), 4)
	require.Equal(t, []byte{0b00000000, 0b00010000}, b)
}

func TestLeftShiftRightShiftZero(t *testing.T) {
	b := []byte{0xAB, 0xCD}
	LeftShift(b, len(b), 0)
	require.Equal(t, []byte{0xAB, 0xCD}, b)
	RightShift(b, len(b), 0)
	require.Equal(t, []byte{0xAB, 0xCD}, b)
}

func TestLeftShiftPanicsOnLargeShift(t *testing.T) {
	require.Panics(t, func() {
		LeftShift([]byte{0x00}, 1, 8)
	})
}

func TestFuse(t *testing.T) {
	require.Equal(t, byte(0b11001010), Fuse(0b11000000, 0b00001010, 4))
	require.Equal(t, byte(0b00001010), Fuse(0b11000000, 0b00001010, 0))
	require.Equal(t, byte(0b11000000), Fuse(0b11000000, 0b00001010, 8))
}

func TestEncodingByteRoundTrip(t *testing.T) {
	e := DefaultEncoding
	require.True(t, e.Valid())
	got := EncodingFromByte(e.Byte())
	require.Equal(t, e, got)
}

func TestEncodingValidDetectsCollision(t *testing.T) {
	e := Encoding{A: 0, C: 0, G: 1, T: 2}
	require.False(t, e.Valid())
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for _, seq := range [][]byte{
		[]byte("ACGT"),
		[]byte("A"),
		[]byte("ACG"),
		[]byte("ACGTACGTAC"),
		{},
	} {
		packed, err := DefaultEncoding.Pack(seq)
		require.NoError(t, err)
		require.Equal(t, PackedLen(len(seq)), len(packed))

		got := DefaultEncoding.Unpack(packed, len(seq))
		require.Equal(t, string(seq), string(got))
	}
}

func TestPackRejectsInvalidSymbol(t *testing.T) {
	_, err := DefaultEncoding.Pack([]byte("ACGN"))
	require.Error(t, err)
}

func TestCodeSetCodeRoundTrip(t *testing.T) {
	seq := []byte("ACGTACGTACG")
	packed, err := DefaultEncoding.Pack(seq)
	require.NoError(t, err)

	for i, sym := range seq {
		code, err := DefaultEncoding.code(sym)
		require.NoError(t, err)
		require.Equal(t, code, Code(packed, len(seq), i))
	}

	SetCode(packed, len(seq), 0, DefaultEncoding.T)
	got := DefaultEncoding.Unpack(packed, len(seq))
	require.Equal(t, byte('T'), got[0])
	require.Equal(t, string(seq[1:]), string(got[1:]))
}

func TestExtractRangeRemovesMiddleRun(t *testing.T) {
	seq := []byte("ACGTACGT") // 8 nucleotides
	packed, err := DefaultEncoding.Pack(seq)
	require.NoError(t, err)

	// remove the 2-nucleotide run at index 3 ("TA"), leaving "ACGCGT"
	extracted := ExtractRange(packed, len(seq), 3, 2)
	require.Equal(t, PackedLen(6), len(extracted))
	got := DefaultEncoding.Unpack(extracted, 6)
	require.Equal(t, "ACGCGT", string(got))
}

func TestInsertRangeIsInverseOfExtractRange(t *testing.T) {
	seq := []byte("ACGTACGT")
	packed, err := DefaultEncoding.Pack(seq)
	require.NoError(t, err)

	const start, count = 3, 2
	removed := append([]byte(nil), seq[start:start+count]...)
	removedPacked, err := DefaultEncoding.Pack(removed)
	require.NoError(t, err)

	extracted := ExtractRange(packed, len(seq), start, count)
	reinserted := InsertRange(extracted, len(seq)-count, start, removedPacked, count)

	got := DefaultEncoding.Unpack(reinserted, len(seq))
	require.Equal(t, string(seq), string(got))
}

func TestRepadReinterpretsPrefixUnderNewPadding(t *testing.T) {
	// "ACGTACGT" packs to exactly 16 bits (pad 0). Repad(8, 5) shifts that
	// same buffer to the left-padding a 5-nucleotide sequence would use,
	// which exposes the leading 5 symbols unchanged.
	seq := []byte("ACGTACGT")
	packed, err := DefaultEncoding.Pack(seq)
	require.NoError(t, err)
	require.Equal(t, PackedLen(5), len(packed))

	Repad(packed, 8, 5)
	got := DefaultEncoding.Unpack(packed, 5)
	require.Equal(t, "ACGTA", string(got))
}

func TestExtractRangeAtStartAndEnd(t *testing.T) {
	seq := []byte("ACGTACGT")
	packed, err := DefaultEncoding.Pack(seq)
	require.NoError(t, err)

	atStart := ExtractRange(packed, len(seq), 0, 3)
	require.Equal(t, "TACGT", string(DefaultEncoding.Unpack(atStart, 5)))

	atEnd := ExtractRange(packed, len(seq), 5, 3)
	require.Equal(t, "ACGTA", string(DefaultEncoding.Unpack(atEnd, 5)))
}
