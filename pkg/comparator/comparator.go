// Package comparator defines the order relation backends must honour when
// they store and scan column-ids. Comparators work on canonical key bytes
// (see package codec) and never decode them.
package comparator

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/eigerco/colstore/pkg/codec"
	"github.com/eigerco/colstore/pkg/errors"
)

// Direction is the order in which a table's column-ids are returned by scans.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Valid reports whether d is one of the defined directions.
func (d Direction) Valid() bool { return d == Ascending || d == Descending }

// ParseDirection accepts "asc", "ascending", "desc" and "descending" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return 0, fmt.Errorf("comparator: unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("comparator: invalid direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	v, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Comparator is a three-way comparison over encoded keys.
//
// Compare returns -1, 0 or 1. It must accept any input without panicking: a
// zero-length buffer is the minimum element under every direction, and
// buffers that are not KeySize long are ordered after the empty buffer and
// before every well-formed key, shorter first.
type Comparator interface {
	Compare(a, b []byte) int
	// Validate fails with errors.ErrInvalidEncoding unless b is a well-formed key.
	Validate(b []byte) error
	Direction() Direction
	// Name identifies the ordering. Backends that persist their comparator
	// (pebble writes it to its manifest) refuse to reopen under another name.
	Name() string
}

// Long returns the comparator for canonically encoded signed 64-bit keys.
func Long(d Direction) Comparator {
	if d == Descending {
		return descending
	}
	return ascending
}

var (
	ascending  Comparator = long{dir: Ascending}
	descending Comparator = long{dir: Descending}
)

type long struct {
	dir Direction
}

func (c long) Direction() Direction { return c.dir }

func (c long) Name() string { return "colstore.long." + c.dir.String() }

func (c long) Validate(b []byte) error {
	if len(b) != codec.KeySize {
		return errors.Newf(errors.ErrInvalidEncoding, "comparator: key must be %d bytes, got %d", codec.KeySize, len(b))
	}
	return nil
}

func (c long) Compare(a, b []byte) int {
	if len(a) != codec.KeySize || len(b) != codec.KeySize {
		return compareMalformed(a, b)
	}
	// The sign bit is already complemented, so unsigned byte order is numeric order.
	r := bytes.Compare(a, b)
	if c.dir == Descending {
		return -r
	}
	return r
}

// compareMalformed orders buffers of which at least one is not a full key:
// well-formed keys last, otherwise shorter first, then byte-wise.
func compareMalformed(a, b []byte) int {
	aok, bok := len(a) == codec.KeySize, len(b) == codec.KeySize
	switch {
	case aok && !bok:
		return 1
	case !aok && bok:
		return -1
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return bytes.Compare(a, b)
}

// Compare orders two decoded values the way a Long comparator with direction
// d orders their encodings.
func Compare(d Direction, a, b int64) int {
	r := 0
	switch {
	case a < b:
		r = -1
	case a > b:
		r = 1
	}
	if d == Descending {
		return -r
	}
	return r
}
