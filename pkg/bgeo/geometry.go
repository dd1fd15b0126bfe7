package bgeo

import (
	"bytes"
	"fmt"
	"io"
)

// Geometry is a whole container held in memory: a point cloud or a triangle
// mesh with its attribute tables and data.
type Geometry struct {
	Positions  [][3]float32
	PointAttrs []Attribute
	PointData  []Values

	Triangles   [][3]uint32
	VertexAttrs []Attribute
	VertexData  []Values
	PrimAttrs   []Attribute
	PrimData    []Values
}

// Schema returns the container schema described by g.
func (g *Geometry) Schema() Schema {
	return Schema{
		PointCount:  len(g.Positions),
		PrimCount:   len(g.Triangles),
		PointAttrs:  g.PointAttrs,
		VertexAttrs: g.VertexAttrs,
		PrimAttrs:   g.PrimAttrs,
	}
}

// Validate checks the schema and that every data column matches it.
func (g *Geometry) Validate() error {
	s := g.Schema()
	if err := s.Validate(); err != nil {
		return err
	}
	if err := checkColumns(g.PointAttrs, g.PointData, s.PointCount); err != nil {
		return err
	}
	if err := checkColumns(g.VertexAttrs, g.VertexData, s.PrimCount*VertsPerTriangle); err != nil {
		return err
	}
	if err := checkColumns(g.PrimAttrs, g.PrimData, s.PrimCount); err != nil {
		return err
	}
	for p, tri := range g.Triangles {
		for _, idx := range tri {
			if int64(idx) >= int64(s.PointCount) {
				return fmt.Errorf("%w: triangle %d references point %d of %d", ErrOutOfRange, p, idx, s.PointCount)
			}
		}
	}
	return nil
}

// Encode writes g to out as one container.
func Encode(out io.Writer, g *Geometry, opts ...Option) error {
	if err := g.Validate(); err != nil {
		return err
	}
	w, err := NewWriter(out, g.Schema(), opts...)
	if err != nil {
		return err
	}
	return writeAll(w, g)
}

// Write creates path and stores g in it.
func Write(path string, g *Geometry, opts ...Option) error {
	if err := g.Validate(); err != nil {
		return err
	}
	w, err := Create(path, g.Schema(), opts...)
	if err != nil {
		return err
	}
	return writeAll(w, g)
}

func writeAll(w *Writer, g *Geometry) error {
	if err := w.WritePoints(g.Positions, g.PointData); err != nil {
		_ = w.Close()
		return err
	}
	indices := make([][]uint32, len(g.Triangles))
	for i := range g.Triangles {
		indices[i] = g.Triangles[i][:]
	}
	if err := w.WritePrimitives(indices, g.VertexData, g.PrimData); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Decode reads one container from src.
func Decode(src io.Reader, integrityCheck bool, opts ...Option) (*Geometry, error) {
	r, err := NewReader(src, opts...)
	if err != nil {
		return nil, err
	}
	return readAll(r, integrityCheck)
}

// Read opens path and decodes the whole container.
func Read(path string, integrityCheck bool, opts ...Option) (*Geometry, error) {
	r, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	return readAll(r, integrityCheck)
}

// ReadBytes decodes a container held in memory.
func ReadBytes(data []byte, integrityCheck bool, opts ...Option) (*Geometry, error) {
	return Decode(bytes.NewReader(data), integrityCheck, opts...)
}

func readAll(r *Reader, integrityCheck bool) (*Geometry, error) {
	defer func() { _ = r.Close() }()

	pts, err := r.ReadPoints()
	if err != nil {
		return nil, err
	}
	prims, err := r.ReadPrims(integrityCheck)
	if err != nil {
		return nil, err
	}
	return &Geometry{
		Positions:   pts.Positions,
		PointAttrs:  r.PointAttrs,
		PointData:   pts.Columns,
		Triangles:   prims.Triangles,
		VertexAttrs: r.VertexAttrs,
		VertexData:  prims.VertexColumns,
		PrimAttrs:   r.PrimAttrs,
		PrimData:    prims.PrimColumns,
	}, nil
}

// EncodedSize returns the exact number of bytes the writer produces for s.
func EncodedSize(s Schema, opts ...Option) int64 {
	o := newOptions(opts)
	vertexAttrs := s.VertexAttrs
	if o.cornerSplit {
		vertexAttrs = splitCorners(vertexAttrs)
	}

	size := int64(HeaderSize)
	size += int64(TableByteSize(s.PointAttrs))
	size += int64(TableByteSize(vertexAttrs))
	size += int64(TableByteSize(s.PrimAttrs))

	pointSize := int64(16)
	for _, a := range s.PointAttrs {
		pointSize += int64(a.ByteSize())
	}
	size += int64(s.PointCount) * pointSize

	if s.PrimCount > 0 {
		chunks := (int64(s.PrimCount) + MaxChunkPrims - 1) / MaxChunkPrims
		size += chunks * chunkHeaderSize
	}
	corner := int64(IndexWidth(s.PointCount))
	for _, a := range vertexAttrs {
		corner += int64(a.ByteSize())
	}
	prim := int64(primHeaderSize) + VertsPerTriangle*corner
	for _, a := range s.PrimAttrs {
		prim += int64(a.ByteSize())
	}
	size += int64(s.PrimCount) * prim
	return size
}
