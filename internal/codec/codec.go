// Package codec implements the two opaque (de)compression components the
// minimizer section depends on: an integer-column codec for u64
// sequences (block counts, minimizer offsets) and a byte-stream codec for
// arbitrary payload bytes.
//
// Both are treated as swappable black boxes by their callers: encode
// returns a self-contained byte slice, decode needs only that slice (plus,
// for the integer codec, the element count) to recover the original
// values.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/s2"
)

// EncodeUint64s serializes vals as LEB128 varints and compresses the result
// with s2. The returned bytes are self-contained; DecodeUint64s needs only
// the expected element count alongside them.
func EncodeUint64s(vals []uint64) []byte {
	buf := make([]byte, 0, len(vals)*2)
	var scratch [binary.MaxVarintLen64]byte
	for _, v := range vals {
		n := binary.PutUvarint(scratch[:], v)
		buf = append(buf, scratch[:n]...)
	}
	return s2.Encode(nil, buf)
}

// DecodeUint64s inverts EncodeUint64s, expecting exactly n values.
func DecodeUint64s(compressed []byte, n int) ([]uint64, error) {
	buf, err := s2.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("codec: decode uint64 column: %w", err)
	}
	vals := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		v, m := binary.Uvarint(buf)
		if m <= 0 {
			return nil, fmt.Errorf("codec: uint64 column truncated at element %d of %d", i, n)
		}
		vals = append(vals, v)
		buf = buf[m:]
	}
	return vals, nil
}

// EncodeBytes compresses an arbitrary byte stream (the minimizer section's
// data column).
func EncodeBytes(raw []byte) []byte {
	return s2.Encode(nil, raw)
}

// DecodeBytes inverts EncodeBytes. rawLen is the uncompressed byte count,
// written on disk alongside the compressed block, and is used as a sizing
// hint and sanity check.
func DecodeBytes(compressed []byte, rawLen int) ([]byte, error) {
	buf, err := s2.Decode(make([]byte, 0, rawLen), compressed)
	if err != nil {
		return nil, fmt.Errorf("codec: decode byte stream: %w", err)
	}
	if len(buf) != rawLen {
		return nil, fmt.Errorf("codec: decoded byte stream length %d != expected %d", len(buf), rawLen)
	}
	return buf, nil
}
