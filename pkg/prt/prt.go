// Package prt implements the PRT particle container: a fixed 56-byte header,
// a reserved block, a table of 44-byte channel definitions and a
// zlib-compressed buffer of fixed-stride particle records.
//
// All multi-byte fields are little-endian. The particle count is written as
// -1 while the payload is being produced and patched on Close, so a file left
// behind by an interrupted writer is rejected by readers.
package prt

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/vfxbuddies/buddies/pkg/endian"
)

const (
	// HeaderSize is the size of the fixed header, also stored in it.
	HeaderSize = 56

	// Version is the only supported container version.
	Version uint32 = 1

	// Description is the signature stored in the header, NUL padded.
	Description = "Extensible Particle Format"

	// ChannelRecordSize is the size of one channel definition.
	ChannelRecordSize = 44

	// MaxNameLen is the longest channel name; the record field is 32 bytes
	// including the terminating NUL.
	MaxNameLen = 31

	// UnpatchedCount marks a container whose writer never finished.
	UnpatchedCount int64 = -1

	descriptionSize = 32
	nameFieldSize   = 32
	reservedValue   = 4
	countOffset     = len(Magic) + 4 + descriptionSize + 4
	sliceSize       = 8 << 20
)

// Magic opens every container.
var Magic = [8]byte{0xC0, 'P', 'R', 'T', '\r', '\n', 0x1A, '\n'}

var order = endian.Little

// DataType is the wire type code of a channel component.
type DataType int32

const (
	Int16 DataType = iota
	Int32
	Int64
	Float16
	Float32
	Float64
	UInt16
	UInt32
	UInt64
	Int8
	UInt8
)

var typeNames = [...]string{
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Float16: "float16",
	Float32: "float32",
	Float64: "float64",
	UInt16:  "uint16",
	UInt32:  "uint32",
	UInt64:  "uint64",
	Int8:    "int8",
	UInt8:   "uint8",
}

var typeSizes = [...]int{
	Int16:   2,
	Int32:   4,
	Int64:   8,
	Float16: 2,
	Float32: 4,
	Float64: 8,
	UInt16:  2,
	UInt32:  4,
	UInt64:  8,
	Int8:    1,
	UInt8:   1,
}

// Valid reports whether t is one of the eleven wire types.
func (t DataType) Valid() bool { return t >= Int16 && t <= UInt8 }

// Size returns the byte size of one component, or 0 for an unknown type.
func (t DataType) Size() int {
	if !t.Valid() {
		return 0
	}
	return typeSizes[t]
}

func (t DataType) String() string {
	if !t.Valid() {
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
	return typeNames[t]
}

// IsFloat reports whether t is a floating point type.
func (t DataType) IsFloat() bool { return t == Float16 || t == Float32 || t == Float64 }

// ParseDataType maps a type name such as "float32" back to its code.
func ParseDataType(s string) (DataType, error) {
	for i, name := range typeNames {
		if name == s {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown data type %q", ErrUnsupportedType, s)
}

// Header is the fixed container header.
type Header struct {
	HeaderSize  uint32
	Description string
	Version     uint32
	Count       int64
}

func encodeHeader(dst []byte, count int64) {
	copy(dst, Magic[:])
	off := len(Magic)
	endian.Put(order, dst[off:], uint32(HeaderSize))
	off += 4
	clear(dst[off : off+descriptionSize])
	copy(dst[off:], Description)
	off += descriptionSize
	endian.Put(order, dst[off:], Version)
	off += 4
	endian.Put(order, dst[off:], count)
}

func decodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes", ErrFormat, len(src))
	}
	if !bytes.Equal(src[:len(Magic)], Magic[:]) {
		return Header{}, fmt.Errorf("%w: bad magic % x", ErrFormat, src[:len(Magic)])
	}
	off := len(Magic)
	h := Header{HeaderSize: endian.Get[uint32](order, src[off:])}
	off += 4
	desc := src[off : off+descriptionSize]
	if i := bytes.IndexByte(desc, 0); i >= 0 {
		desc = desc[:i]
	}
	h.Description = string(desc)
	off += descriptionSize
	h.Version = endian.Get[uint32](order, src[off:])
	off += 4
	h.Count = endian.Get[int64](order, src[off:])

	switch {
	case h.HeaderSize != HeaderSize:
		return h, fmt.Errorf("%w: header size %d, want %d", ErrFormat, h.HeaderSize, HeaderSize)
	case h.Version != Version:
		return h, fmt.Errorf("%w: version %d, want %d", ErrFormat, h.Version, Version)
	case h.Count == UnpatchedCount:
		return h, fmt.Errorf("%w: particle count was never patched, the writer did not finish", ErrFormat)
	case h.Count < 0:
		return h, fmt.Errorf("%w: negative particle count %d", ErrFormat, h.Count)
	}
	return h, nil
}

// ReadHeader reads and validates only the fixed header.
func ReadHeader(r io.Reader) (Header, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, fmt.Errorf("%w: read header: %v", ErrIO, err)
	}
	return decodeHeader(raw[:])
}
