package bgeo

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/vfxbuddies/buddies/internal/binio"
	"github.com/vfxbuddies/buddies/internal/logger"
)

// Schema declares the element counts and attribute tables of a container
// before any data is written. It is immutable for the writer's lifetime.
type Schema struct {
	PointCount  int
	PrimCount   int
	PointAttrs  []Attribute
	VertexAttrs []Attribute
	PrimAttrs   []Attribute
}

// Validate checks counts and every descriptor.
func (s Schema) Validate() error {
	if s.PointCount < 0 || int64(s.PointCount) > math.MaxUint32 {
		return fmt.Errorf("%w: point count %d", ErrOutOfRange, s.PointCount)
	}
	if s.PrimCount < 0 || int64(s.PrimCount) > math.MaxUint32 {
		return fmt.Errorf("%w: primitive count %d", ErrOutOfRange, s.PrimCount)
	}
	for _, set := range [][]Attribute{s.PointAttrs, s.VertexAttrs, s.PrimAttrs} {
		seen := make(map[string]struct{}, len(set))
		for _, a := range set {
			if err := a.Validate(); err != nil {
				return err
			}
			if _, dup := seen[a.Name]; dup {
				return fmt.Errorf("%w: duplicate attribute %q", ErrFormat, a.Name)
			}
			seen[a.Name] = struct{}{}
		}
	}
	return nil
}

type writerPhase int

const (
	phasePoints writerPhase = iota
	phasePrims
	phaseDone
	phaseClosed
)

// Writer emits one container. Phases are strictly ordered: the header and
// point attribute table are written by NewWriter, then WritePoints, then
// WritePrimitives, then Close.
type Writer struct {
	f   *os.File
	w   *binio.Writer
	log logger.Logger

	schema      Schema
	diskVertex  []Attribute
	cornerSplit bool
	indexWidth  int
	phase       writerPhase
}

// Create creates (or truncates) path and writes the container header.
func Create(path string, schema Schema, opts ...Option) (*Writer, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	w, err := NewWriter(f, schema, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.f = f
	return w, nil
}

// NewWriter writes the header and point attribute table to out.
func NewWriter(out io.Writer, schema Schema, opts ...Option) (*Writer, error) {
	if out == nil {
		return nil, errors.New("bgeo: nil writer")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	w := &Writer{
		w:           binio.NewWriter(out, order),
		log:         o.log,
		schema:      schema,
		diskVertex:  schema.VertexAttrs,
		cornerSplit: o.cornerSplit,
		indexWidth:  IndexWidth(schema.PointCount),
	}
	if o.cornerSplit {
		w.diskVertex = splitCorners(schema.VertexAttrs)
	}

	total := len(schema.PointAttrs) + len(w.diskVertex) + len(schema.PrimAttrs)
	if int64(total) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: too many attributes", ErrOutOfRange)
	}
	hdr := Header{
		Version:         Version,
		PointCount:      uint32(schema.PointCount),
		PrimCount:       uint32(schema.PrimCount),
		PointAttrCount:  uint32(len(schema.PointAttrs)),
		VertexAttrCount: uint32(len(w.diskVertex)),
		PrimAttrCount:   uint32(len(schema.PrimAttrs)),
		TotalAttrCount:  uint32(total),
	}
	var raw [HeaderSize]byte
	encodeHeader(raw[:], hdr)
	w.w.Bytes(raw[:])
	for _, a := range schema.PointAttrs {
		if err := WriteAttribute(w.w, a); err != nil {
			return nil, err
		}
	}
	if err := w.w.Err(); err != nil {
		return nil, fmt.Errorf("%w: write header: %v", ErrIO, err)
	}

	w.log.Debug("bgeo header written",
		"points", schema.PointCount,
		"prims", schema.PrimCount,
		"index_width", w.indexWidth,
		"corner_split", o.cornerSplit,
	)
	return w, nil
}

// IndexWidth returns the vertex index width the writer uses.
func (w *Writer) IndexWidth() int { return w.indexWidth }

// WritePoints writes every point: {x, y, z, w=1} followed by the point
// attributes in declaration order. columns[i] holds PointCount values of
// PointAttrs[i].
func (w *Writer) WritePoints(positions [][3]float32, columns []Values) error {
	if w.phase != phasePoints {
		return errors.New("bgeo: points already written")
	}
	if len(positions) != w.schema.PointCount {
		return fmt.Errorf("%w: got %d positions for %d points", ErrOutOfRange, len(positions), w.schema.PointCount)
	}
	if err := checkColumns(w.schema.PointAttrs, columns, w.schema.PointCount); err != nil {
		return err
	}

	attrs := w.schema.PointAttrs
	for i, p := range positions {
		w.w.F32(p[0])
		w.w.F32(p[1])
		w.w.F32(p[2])
		w.w.F32(1)
		for j, a := range attrs {
			writeValue(w.w, a.Type, columns[j], i, a.Arity)
		}
		if w.w.Err() != nil {
			break
		}
	}
	if err := w.w.Err(); err != nil {
		return fmt.Errorf("%w: write points: %v", ErrIO, err)
	}
	w.phase = phasePrims
	return nil
}

// WritePrimitives writes the vertex and primitive attribute tables followed
// by the chunked primitive block. indices[p] lists the point index of every
// corner of primitive p and must have exactly three entries. vertexColumns[i]
// holds 3*PrimCount values of VertexAttrs[i] (corner c of primitive p at
// p*3+c); primColumns[i] holds PrimCount values of PrimAttrs[i].
func (w *Writer) WritePrimitives(indices [][]uint32, vertexColumns, primColumns []Values) error {
	switch w.phase {
	case phasePoints:
		return errors.New("bgeo: points must be written before primitives")
	case phasePrims:
	default:
		return errors.New("bgeo: primitives already written")
	}
	n := w.schema.PrimCount
	if len(indices) != n {
		return fmt.Errorf("%w: got %d primitives, header declares %d", ErrOutOfRange, len(indices), n)
	}
	for p, corners := range indices {
		if len(corners) != VertsPerTriangle {
			return fmt.Errorf("%w: primitive %d has %d vertices, only triangles are supported", ErrFormat, p, len(corners))
		}
		for _, idx := range corners {
			if int64(idx) >= int64(w.schema.PointCount) {
				return fmt.Errorf("%w: primitive %d references point %d of %d", ErrOutOfRange, p, idx, w.schema.PointCount)
			}
		}
	}
	if err := checkColumns(w.schema.VertexAttrs, vertexColumns, n*VertsPerTriangle); err != nil {
		return err
	}
	if err := checkColumns(w.schema.PrimAttrs, primColumns, n); err != nil {
		return err
	}

	for _, a := range w.diskVertex {
		if err := WriteAttribute(w.w, a); err != nil {
			return err
		}
	}
	for _, a := range w.schema.PrimAttrs {
		if err := WriteAttribute(w.w, a); err != nil {
			return err
		}
	}

	defaults := make([]Values, len(w.schema.VertexAttrs))
	for i, a := range w.schema.VertexAttrs {
		defaults[i] = a.defaults()
	}

	chunks := 0
	for start := 0; start < n; start += MaxChunkPrims {
		count := min(MaxChunkPrims, n-start)
		w.w.U32(ChunkMarker)
		w.w.U16(uint16(count))
		w.w.U32(PrimTypePoly)
		for p := start; p < start+count; p++ {
			w.w.U32(VertsPerTriangle)
			w.w.U8(ClosedFlag)
			for k, idx := range indices[p] {
				w.writeIndex(idx)
				corner := p*VertsPerTriangle + k
				for j, a := range w.schema.VertexAttrs {
					if !w.cornerSplit {
						writeValue(w.w, a.Type, vertexColumns[j], corner, a.Arity)
						continue
					}
					for slot := range VertsPerTriangle {
						if slot == k {
							writeValue(w.w, a.Type, vertexColumns[j], corner, a.Arity)
						} else {
							writeValue(w.w, a.Type, defaults[j], 0, a.Arity)
						}
					}
				}
			}
			for j, a := range w.schema.PrimAttrs {
				writeValue(w.w, a.Type, primColumns[j], p, a.Arity)
			}
		}
		chunks++
		if w.w.Err() != nil {
			break
		}
	}
	if err := w.w.Err(); err != nil {
		return fmt.Errorf("%w: write primitives: %v", ErrIO, err)
	}
	w.log.Debug("bgeo primitives written", "prims", n, "chunks", chunks, "bytes", w.w.Written())
	w.phase = phaseDone
	return nil
}

func (w *Writer) writeIndex(idx uint32) {
	if w.indexWidth == 2 {
		w.w.U16(uint16(idx))
		return
	}
	w.w.U32(idx)
}

// Close flushes buffered output and closes the file opened by Create. It
// reports an error when the container is incomplete; the file is released
// either way.
func (w *Writer) Close() error {
	if w.phase == phaseClosed {
		return nil
	}
	incomplete := w.phase != phaseDone
	w.phase = phaseClosed

	err := w.w.Flush()
	if err != nil {
		err = fmt.Errorf("%w: flush: %v", ErrIO, err)
	}
	if w.f != nil {
		if cerr := w.f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close: %v", ErrIO, cerr)
		}
		w.f = nil
	}
	if err == nil && incomplete {
		err = fmt.Errorf("%w: closed before all primitives were written", ErrFormat)
	}
	return err
}

func checkColumns(attrs []Attribute, columns []Values, n int) error {
	if len(columns) != len(attrs) {
		return fmt.Errorf("%w: got %d attribute columns for %d attributes", ErrOutOfRange, len(columns), len(attrs))
	}
	for i, a := range attrs {
		if err := a.checkColumn(columns[i], n); err != nil {
			return err
		}
	}
	return nil
}
