package codec

import (
	"encoding/binary"

	"github.com/eigerco/colstore/pkg/errors"
)

// KeySize is the length of a canonically encoded 64-bit key.
const KeySize = 8

const signBit = uint64(1) << 63

// EncodeInt64 returns the canonical encoding of v: eight bytes, big-endian,
// with the sign bit complemented so that unsigned byte-wise comparison of two
// encodings matches signed comparison of the values.
func EncodeInt64(v int64) [KeySize]byte {
	var b [KeySize]byte
	PutInt64(b[:], v)
	return b
}

// PutInt64 writes the canonical encoding of v into the first KeySize bytes of dst.
// It panics if dst is too short.
func PutInt64(dst []byte, v int64) {
	binary.BigEndian.PutUint64(dst, uint64(v)^signBit)
}

// AppendInt64 appends the canonical encoding of v to dst.
func AppendInt64(dst []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(v)^signBit)
}

// DecodeInt64 reverses EncodeInt64.
func DecodeInt64(b []byte) (int64, error) {
	if len(b) != KeySize {
		return 0, errors.Newf(errors.ErrInvalidEncoding, "codec: encoded key must be %d bytes, got %d", KeySize, len(b))
	}
	return ReadInt64(b), nil
}

// ReadInt64 decodes the first KeySize bytes of b without a length check.
func ReadInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ signBit)
}
