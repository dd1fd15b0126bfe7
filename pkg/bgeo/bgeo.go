// Package bgeo implements the binary geometry container used to exchange
// triangle meshes and point clouds between the simulation framework and DCC
// hosts.
//
// A container is a fixed header, three self-describing attribute tables
// (point, vertex, primitive), a point block and a chunked block of triangle
// primitives. Every multi-byte field is big-endian on disk.
package bgeo

import "github.com/vfxbuddies/buddies/pkg/endian"

// Container constants must never change.
const (
	// Magic opens every container. The trailing 'V' is part of the tag.
	Magic = "BgeoV"

	// Version is the format version written by this package.
	Version uint32 = 5

	// HeaderSize is the magic plus nine uint32 header fields.
	HeaderSize = len(Magic) + 9*4

	// ChunkMarker precedes every run of primitives.
	ChunkMarker uint32 = 0xFFFFFFFF

	// MaxChunkPrims is the largest primitive count a chunk can frame; the
	// per-chunk count field is 16 bits.
	MaxChunkPrims = 0xFFFF

	// PrimTypePoly is the only primitive type key the codec emits.
	PrimTypePoly uint32 = 1

	// ClosedFlag marks a closed polygon.
	ClosedFlag byte = '<'

	// VertsPerTriangle is the only supported polygon size.
	VertsPerTriangle = 3

	// MaxShortIndexPoints is the largest point count addressed with 16-bit
	// vertex indices.
	MaxShortIndexPoints = 0xFFFF

	primHeaderSize  = 5
	chunkHeaderSize = 10
)

var order = endian.Big

// Header is the fixed container header that follows the magic tag.
type Header struct {
	Version         uint32
	PointCount      uint32
	PrimCount       uint32
	PointGroupCount uint32
	PrimGroupCount  uint32
	PointAttrCount  uint32
	VertexAttrCount uint32
	PrimAttrCount   uint32
	TotalAttrCount  uint32
}

// IndexWidth returns the on-disk width in bytes of a vertex index for a
// container holding pointCount points. The width is never stored; readers and
// writers must both derive it from the point count.
func IndexWidth(pointCount int) int {
	if pointCount > MaxShortIndexPoints {
		return 4
	}
	return 2
}

func encodeHeader(dst []byte, h Header) bool {
	if len(dst) < HeaderSize {
		return false
	}
	copy(dst, Magic)
	fields := [...]uint32{
		h.Version, h.PointCount, h.PrimCount, h.PointGroupCount, h.PrimGroupCount,
		h.PointAttrCount, h.VertexAttrCount, h.PrimAttrCount, h.TotalAttrCount,
	}
	off := len(Magic)
	for _, v := range fields {
		endian.Put(order, dst[off:], v)
		off += 4
	}
	return true
}

func decodeHeader(src []byte) (Header, bool) {
	if len(src) < HeaderSize || string(src[:len(Magic)]) != Magic {
		return Header{}, false
	}
	var f [9]uint32
	off := len(Magic)
	for i := range f {
		f[i] = endian.Get[uint32](order, src[off:])
		off += 4
	}
	return Header{
		Version:         f[0],
		PointCount:      f[1],
		PrimCount:       f[2],
		PointGroupCount: f[3],
		PrimGroupCount:  f[4],
		PointAttrCount:  f[5],
		VertexAttrCount: f[6],
		PrimAttrCount:   f[7],
		TotalAttrCount:  f[8],
	}, true
}
