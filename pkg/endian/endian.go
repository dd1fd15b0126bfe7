// Package endian converts fixed-width scalars between a file's declared byte
// order and host order.
//
// Every multi-byte field read or written by the container codecs passes
// through this package. Conversions are expressed through binary.ByteOrder,
// so the declared conversion is always carried out and the result does not
// depend on the byte order of the host.
package endian

import (
	"encoding/binary"
	"math"
)

// Scalar is the set of fixed-width types the codecs store on disk.
// Composite types are deliberately excluded.
type Scalar interface {
	int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// Order is the byte order a file format declares for its multi-byte fields.
type Order struct {
	binary.ByteOrder
}

var (
	// Big is the order of the Bgeo geometry container.
	Big = Order{binary.BigEndian}
	// Little is the order of the PRT particle container.
	Little = Order{binary.LittleEndian}
	// Host is the byte order of the running process.
	Host = Order{binary.NativeEndian}
)

// Size returns the encoded width of T in bytes.
func Size[T Scalar]() int {
	var v T
	switch any(v).(type) {
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	default:
		return 8
	}
}

// Put stores v into b[:Size[T]()] using order o.
func Put[T Scalar](o Order, b []byte, v T) {
	switch x := any(v).(type) {
	case int16:
		o.PutUint16(b, uint16(x))
	case uint16:
		o.PutUint16(b, x)
	case int32:
		o.PutUint32(b, uint32(x))
	case uint32:
		o.PutUint32(b, x)
	case int64:
		o.PutUint64(b, uint64(x))
	case uint64:
		o.PutUint64(b, x)
	case float32:
		o.PutUint32(b, math.Float32bits(x))
	case float64:
		o.PutUint64(b, math.Float64bits(x))
	}
}

// Get decodes a T from b[:Size[T]()] using order o.
func Get[T Scalar](o Order, b []byte) T {
	var v T
	switch p := any(&v).(type) {
	case *int16:
		*p = int16(o.Uint16(b))
	case *uint16:
		*p = o.Uint16(b)
	case *int32:
		*p = int32(o.Uint32(b))
	case *uint32:
		*p = o.Uint32(b)
	case *int64:
		*p = int64(o.Uint64(b))
	case *uint64:
		*p = o.Uint64(b)
	case *float32:
		*p = math.Float32frombits(o.Uint32(b))
	case *float64:
		*p = math.Float64frombits(o.Uint64(b))
	}
	return v
}

// ToFileOrder returns the value whose host memory representation holds the
// bytes of v encoded in order o.
func ToFileOrder[T Scalar](o Order, v T) T {
	var buf [8]byte
	n := Size[T]()
	Put(o, buf[:n], v)
	return Get[T](Host, buf[:n])
}

// FromFileOrder is the inverse of ToFileOrder.
func FromFileOrder[T Scalar](o Order, v T) T {
	var buf [8]byte
	n := Size[T]()
	Put(Host, buf[:n], v)
	return Get[T](o, buf[:n])
}

// Swap reverses the bytes of v unconditionally.
func Swap[T Scalar](v T) T {
	var buf [8]byte
	n := Size[T]()
	Put(Little, buf[:n], v)
	return Get[T](Big, buf[:n])
}

// PutSlice encodes src back to back into dst using order o. dst must hold
// len(src)*Size[T]() bytes.
func PutSlice[T Scalar](o Order, dst []byte, src []T) {
	n := Size[T]()
	for i, v := range src {
		Put(o, dst[i*n:], v)
	}
}

// GetSlice decodes len(dst) values from src using order o.
func GetSlice[T Scalar](o Order, dst []T, src []byte) {
	n := Size[T]()
	for i := range dst {
		dst[i] = Get[T](o, src[i*n:])
	}
}
