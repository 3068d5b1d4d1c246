// Package codec maps typed values onto the signed 64-bit key space and
// serialises keys in their canonical, order-preserving byte form.
package codec

import (
	"math"
	"time"

	"github.com/eigerco/colstore/pkg/errors"
)

// Codec converts between a domain type and a signed 64-bit integer.
//
// ToValue(x) followed by FromValue must return x for every x, and FromValue
// followed by ToValue must return the original value for every value
// ToValue can produce. FromValue fails with errors.ErrEncoding when a value
// has no 64-bit representation.
type Codec[E any] interface {
	FromValue(v E) (int64, error)
	ToValue(x int64) E
	// NewArray allocates n zero-valued elements.
	NewArray(n int) []E
}

// EncodeValue runs v through c and returns the canonical key bytes.
func EncodeValue[E any](c Codec[E], v E) ([]byte, error) {
	x, err := c.FromValue(v)
	if err != nil {
		return nil, err
	}
	return AppendInt64(make([]byte, 0, KeySize), x), nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue[E any](c Codec[E], b []byte) (E, error) {
	x, err := DecodeInt64(b)
	if err != nil {
		var zero E
		return zero, err
	}
	return c.ToValue(x), nil
}

type array[E any] struct{}

func (array[E]) NewArray(n int) []E { return make([]E, n) }

// Int64 is the identity codec.
var Int64 Codec[int64] = int64Codec{}

type int64Codec struct{ array[int64] }

func (int64Codec) FromValue(v int64) (int64, error) { return v, nil }
func (int64Codec) ToValue(x int64) int64            { return x }

// Uint64 flips the sign bit, so unsigned order maps onto signed key order
// and every uint64 has exactly one key.
var Uint64 Codec[uint64] = uint64Codec{}

type uint64Codec struct{ array[uint64] }

func (uint64Codec) FromValue(v uint64) (int64, error) { return int64(v ^ 1<<63), nil }
func (uint64Codec) ToValue(x int64) uint64            { return uint64(x) ^ 1<<63 }

// Time stores instants as Unix nanoseconds in UTC.
var Time Codec[time.Time] = timeCodec{}

var (
	minTime = time.Unix(0, math.MinInt64).UTC()
	maxTime = time.Unix(0, math.MaxInt64).UTC()
)

type timeCodec struct{ array[time.Time] }

func (timeCodec) FromValue(v time.Time) (int64, error) {
	if v.Before(minTime) || v.After(maxTime) {
		return 0, errors.Newf(errors.ErrEncoding, "codec: time %s outside the nanosecond key range", v.Format(time.RFC3339))
	}
	return v.UnixNano(), nil
}

func (timeCodec) ToValue(x int64) time.Time { return time.Unix(0, x).UTC() }

// Duration is the nanosecond count of a time.Duration.
var Duration Codec[time.Duration] = durationCodec{}

type durationCodec struct{ array[time.Duration] }

func (durationCodec) FromValue(v time.Duration) (int64, error) { return int64(v), nil }
func (durationCodec) ToValue(x int64) time.Duration            { return time.Duration(x) }

// FixedBytes packs up to eight bytes, left aligned and zero padded, into a key
// whose numeric order equals the byte-wise order of the padded input.
// ToValue always returns eight bytes, so shorter inputs come back padded.
var FixedBytes Codec[[]byte] = fixedBytesCodec{}

type fixedBytesCodec struct{ array[[]byte] }

func (fixedBytesCodec) FromValue(v []byte) (int64, error) {
	if len(v) > KeySize {
		return 0, errors.Newf(errors.ErrEncoding, "codec: %d bytes do not fit a %d byte key; store them as a column value", len(v), KeySize)
	}
	var b [KeySize]byte
	copy(b[:], v)
	return ReadInt64(b[:]), nil
}

func (fixedBytesCodec) ToValue(x int64) []byte {
	b := EncodeInt64(x)
	return b[:]
}

// NewArray allocates n zero-filled eight-byte values.
func (fixedBytesCodec) NewArray(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = make([]byte, KeySize)
	}
	return out
}
