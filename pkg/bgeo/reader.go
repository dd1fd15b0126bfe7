package bgeo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/vfxbuddies/buddies/internal/binio"
	"github.com/vfxbuddies/buddies/internal/logger"
)

// Points is the decoded point block.
type Points struct {
	Positions [][3]float32
	// Columns[i] holds the values of Reader.PointAttrs[i], PointCount*arity long.
	Columns []Values
}

// Prims is the decoded primitive block.
type Prims struct {
	Triangles [][3]uint32
	// VertexColumns[i] holds the values of Reader.VertexAttrs[i] for every
	// corner, corner c of triangle p at p*3+c.
	VertexColumns []Values
	// PrimColumns[i] holds the values of Reader.PrimAttrs[i] per triangle.
	PrimColumns []Values
	// Dropped counts non-triangle primitives skipped without integrity checking.
	Dropped int
}

type readerPhase int

const (
	readPoints readerPhase = iota
	readPrims
	readDone
	readClosed
)

// Reader decodes one container in the fixed order header, point attribute
// table, points, vertex and primitive attribute tables, primitives.
type Reader struct {
	Header     Header
	PointAttrs []Attribute
	// VertexAttrs and PrimAttrs are populated by ReadPrims. VertexAttrs holds
	// logical attributes: per-corner variants are merged under their base name.
	VertexAttrs []Attribute
	PrimAttrs   []Attribute

	r          *binio.Reader
	log        logger.Logger
	release    func() error
	indexWidth int
	phase      readerPhase
}

// Open maps path read-only and parses the header and point attribute table.
// If mmap is unavailable the file is read into memory instead. The returned
// reader must be closed to release the mapping.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	size := st.Size()
	if size < int64(HeaderSize) {
		return nil, fmt.Errorf("%w: file is %d bytes, shorter than the header", ErrFormat, size)
	}
	if size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: file too large to map", ErrOutOfRange)
	}

	release := func() error { return nil }
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		release = func() error { return unix.Munmap(data) }
	} else {
		data, err = io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	r, err := newReader(bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		_ = release()
		return nil, err
	}
	r.release = release
	return r, nil
}

// NewReader parses the header and point attribute table from src.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	var size int64
	if br, ok := src.(*bytes.Reader); ok {
		size = int64(br.Len())
	}
	return newReader(src, size, opts)
}

func newReader(src io.Reader, size int64, opts []Option) (*Reader, error) {
	if src == nil {
		return nil, errors.New("bgeo: nil reader")
	}
	o := newOptions(opts)
	r := &Reader{
		r:       binio.NewReader(src, order, size),
		log:     o.log,
		release: func() error { return nil },
	}

	raw, err := r.r.ReadN(HeaderSize)
	if err != nil {
		return nil, ioErr("header", err)
	}
	hdr, ok := decodeHeader(raw)
	if !ok {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, raw[:len(Magic)])
	}
	if hdr.PointGroupCount != 0 || hdr.PrimGroupCount != 0 {
		r.log.Warn("bgeo groups are not decoded",
			"point_groups", hdr.PointGroupCount,
			"prim_groups", hdr.PrimGroupCount,
		)
	}
	if hdr.Version != Version {
		r.log.Debug("bgeo version differs", "version", hdr.Version, "expected", Version)
	}
	r.Header = hdr
	r.indexWidth = IndexWidth(int(hdr.PointCount))

	r.PointAttrs, err = r.readTable(hdr.PointAttrCount, "point")
	if err != nil {
		return nil, err
	}
	return r, nil
}

// IndexWidth returns the vertex index width derived from the point count.
func (r *Reader) IndexWidth() int { return r.indexWidth }

func (r *Reader) readTable(count uint32, kind string) ([]Attribute, error) {
	// Each descriptor occupies at least 12 bytes.
	if rem := r.r.Remaining(); rem >= 0 && int64(count)*12 > rem {
		return nil, fmt.Errorf("%w: %d %s attributes do not fit in %d bytes", ErrFormat, count, kind, rem)
	}
	attrs := make([]Attribute, 0, count)
	for i := uint32(0); i < count; i++ {
		a, err := ReadAttribute(r.r)
		if err != nil {
			return nil, fmt.Errorf("%s attribute %d: %w", kind, i, err)
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

// ReadPoints decodes the point block. The homogeneous w component is dropped.
func (r *Reader) ReadPoints() (*Points, error) {
	if r.phase != readPoints {
		return nil, errors.New("bgeo: points already read")
	}
	n := int(r.Header.PointCount)
	stride := 16
	for _, a := range r.PointAttrs {
		stride += a.ByteSize()
	}
	if rem := r.r.Remaining(); rem >= 0 && int64(n)*int64(stride) > rem {
		return nil, fmt.Errorf("%w: %d points of %d bytes exceed the remaining %d bytes", ErrFormat, n, stride, rem)
	}

	pts := &Points{
		Positions: make([][3]float32, n),
		Columns:   newColumns(r.PointAttrs, n),
	}
	var pos [4]float32
	for i := range n {
		if err := r.r.F32s(pos[:]); err != nil {
			return nil, ioErr("point position", err)
		}
		pts.Positions[i] = [3]float32{pos[0], pos[1], pos[2]}
		for j, a := range r.PointAttrs {
			if err := r.readValue(a, pts.Columns[j], i); err != nil {
				return nil, ioErr("point attribute "+a.Name, err)
			}
		}
	}
	r.phase = readPrims
	return pts, nil
}

// ReadPrims reads the vertex and primitive attribute tables and then the
// chunked primitive block. With integrityCheck, any primitive that is not a
// closed triangle or that references a missing point is a format error;
// without it, non-triangles are skipped and counted in Prims.Dropped.
func (r *Reader) ReadPrims(integrityCheck bool) (*Prims, error) {
	switch r.phase {
	case readPoints:
		return nil, errors.New("bgeo: points must be read before primitives")
	case readPrims:
	default:
		return nil, errors.New("bgeo: primitives already read")
	}

	diskVertex, err := r.readTable(r.Header.VertexAttrCount, "vertex")
	if err != nil {
		return nil, err
	}
	r.PrimAttrs, err = r.readTable(r.Header.PrimAttrCount, "primitive")
	if err != nil {
		return nil, err
	}
	layout := mergeCorners(diskVertex)
	r.VertexAttrs = layout.logical

	cornerSize := r.indexWidth
	for _, a := range diskVertex {
		cornerSize += a.ByteSize()
	}
	primAttrSize := 0
	for _, a := range r.PrimAttrs {
		primAttrSize += a.ByteSize()
	}

	total := int(r.Header.PrimCount)
	minPrim := primHeaderSize + VertsPerTriangle*cornerSize + primAttrSize
	capHint := total
	if rem := r.r.Remaining(); rem >= 0 && int64(total)*int64(minPrim) > rem {
		if integrityCheck {
			return nil, fmt.Errorf("%w: %d primitives exceed the remaining %d bytes", ErrFormat, total, rem)
		}
		capHint = int(rem / int64(minPrim))
	}

	prims := &Prims{
		Triangles:     make([][3]uint32, 0, capHint),
		VertexColumns: newColumns(r.VertexAttrs, 0),
		PrimColumns:   newColumns(r.PrimAttrs, 0),
	}
	scratch := newColumns(diskVertex, VertsPerTriangle)
	primScratch := newColumns(r.PrimAttrs, 1)

	read := 0
	for read < total {
		at := r.r.Offset()
		marker, err := r.r.U32()
		if err != nil {
			return nil, fmt.Errorf("%w: primitive block ended at offset %d after %d of %d primitives", ErrFormat, at, read, total)
		}
		if marker != ChunkMarker {
			return nil, fmt.Errorf("%w: chunk marker absent at offset %d after %d of %d primitives", ErrFormat, at, read, total)
		}
		count, err := r.r.U16()
		if err != nil {
			return nil, ioErr("chunk count", err)
		}
		key, err := r.r.U32()
		if err != nil {
			return nil, ioErr("chunk primitive type", err)
		}
		if key != PrimTypePoly {
			return nil, fmt.Errorf("%w: unsupported primitive type key %d", ErrFormat, key)
		}
		if count == 0 || read+int(count) > total {
			return nil, fmt.Errorf("%w: chunk of %d primitives overruns the declared %d", ErrFormat, count, total)
		}

		for range int(count) {
			nv, err := r.r.U32()
			if err != nil {
				return nil, ioErr("primitive vertex count", err)
			}
			flag, err := r.r.U8()
			if err != nil {
				return nil, ioErr("primitive flag", err)
			}
			if integrityCheck {
				if nv != VertsPerTriangle {
					return nil, fmt.Errorf("%w: primitive %d has %d vertices, only triangles are supported", ErrFormat, read, nv)
				}
				if flag != ClosedFlag {
					return nil, fmt.Errorf("%w: primitive %d has flag %#x", ErrFormat, read, flag)
				}
			}
			if rem := r.r.Remaining(); rem >= 0 && int64(nv)*int64(cornerSize) > rem {
				return nil, fmt.Errorf("%w: primitive %d with %d vertices overruns the file", ErrFormat, read, nv)
			}

			var tri [3]uint32
			for k := range int(nv) {
				idx, err := r.readIndex()
				if err != nil {
					return nil, ioErr("vertex index", err)
				}
				if integrityCheck && idx >= r.Header.PointCount {
					return nil, fmt.Errorf("%w: primitive %d references point %d of %d", ErrFormat, read, idx, r.Header.PointCount)
				}
				slot := min(k, VertsPerTriangle-1)
				if k < VertsPerTriangle {
					tri[k] = idx
				}
				// Corners past the third only occur in primitives that are
				// dropped; they share the last scratch slot.
				for j, a := range diskVertex {
					if err := r.readValue(a, scratch[j], slot); err != nil {
						return nil, ioErr("vertex attribute "+a.Name, err)
					}
				}
			}
			for j, a := range r.PrimAttrs {
				primScratch[j] = resetColumn(a, primScratch[j], 1)
				if err := r.readValue(a, primScratch[j], 0); err != nil {
					return nil, ioErr("primitive attribute "+a.Name, err)
				}
			}
			read++

			if nv != VertsPerTriangle {
				prims.Dropped++
				r.log.Warn("dropping non-triangle primitive", "index", read-1, "vertices", nv)
				continue
			}
			prims.Triangles = append(prims.Triangles, tri)
			for li, a := range r.VertexAttrs {
				for k := range VertsPerTriangle {
					src := scratch[layout.slots[li][k]]
					prims.VertexColumns[li] = appendValue(a, prims.VertexColumns[li], src, k)
				}
			}
			for j, a := range r.PrimAttrs {
				prims.PrimColumns[j] = appendValue(a, prims.PrimColumns[j], primScratch[j], 0)
			}
		}
	}
	if prims.Dropped > 0 {
		r.log.Warn("non-triangle primitives dropped", "dropped", prims.Dropped, "kept", len(prims.Triangles))
	}
	r.phase = readDone
	return prims, nil
}

func (r *Reader) readIndex() (uint32, error) {
	if r.indexWidth == 2 {
		v, err := r.r.U16()
		return uint32(v), err
	}
	return r.r.U32()
}

// readValue decodes one value of a into slot i of col.
func (r *Reader) readValue(a Attribute, col Values, i int) error {
	if a.Type.IsFloat() {
		return r.r.F32s(col.F[i*a.Arity : (i+1)*a.Arity])
	}
	return r.r.I32s(col.I[i*a.Arity : (i+1)*a.Arity])
}

// Close releases the file mapping, if any. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.phase == readClosed {
		return nil
	}
	r.phase = readClosed
	err := r.release()
	r.release = func() error { return nil }
	r.r = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func newColumns(attrs []Attribute, n int) []Values {
	cols := make([]Values, len(attrs))
	for i, a := range attrs {
		cols[i] = resetColumn(a, Values{}, n)
	}
	return cols
}

func resetColumn(a Attribute, col Values, n int) Values {
	size := n * a.Arity
	if a.Type.IsFloat() {
		if col.F != nil && cap(col.F) >= size {
			return Values{F: col.F[:size]}
		}
		return Values{F: make([]float32, size)}
	}
	if col.I != nil && cap(col.I) >= size {
		return Values{I: col.I[:size]}
	}
	return Values{I: make([]int32, size)}
}

func appendValue(a Attribute, dst, src Values, i int) Values {
	lo, hi := i*a.Arity, (i+1)*a.Arity
	if a.Type.IsFloat() {
		dst.F = append(dst.F, src.F[lo:hi]...)
	} else {
		dst.I = append(dst.I, src.I[lo:hi]...)
	}
	return dst
}

func ioErr(what string, err error) error {
	return fmt.Errorf("%w: read %s: %v", ErrIO, what, err)
}
