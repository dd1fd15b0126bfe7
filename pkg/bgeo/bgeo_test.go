package bgeo

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vfxbuddies/buddies/internal/binio"
	"github.com/vfxbuddies/buddies/internal/logger"
	"github.com/vfxbuddies/buddies/pkg/endian"
)

func quad() *Geometry {
	return &Geometry{
		Positions: [][3]float32{
			{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		},
		PointAttrs: []Attribute{VectorAttr("uv", 0, 0, 0)},
		PointData: []Values{Floats(
			0, 0, 0,
			1, 0, 0,
			1, 1, 0,
			0, 1, 0,
		)},
		Triangles: [][3]uint32{{0, 1, 2}, {0, 2, 3}},
	}
}

// sameGeometry compares two geometries, treating nil and empty tables alike.
func sameGeometry(a, b *Geometry) bool {
	norm := func(g *Geometry) Geometry {
		c := *g
		if len(c.PointAttrs) == 0 {
			c.PointAttrs, c.PointData = nil, nil
		}
		if len(c.VertexAttrs) == 0 {
			c.VertexAttrs, c.VertexData = nil, nil
		}
		if len(c.PrimAttrs) == 0 {
			c.PrimAttrs, c.PrimData = nil, nil
		}
		return c
	}
	return reflect.DeepEqual(norm(a), norm(b))
}

func TestQuadFileLayout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "quad.bgeo")
	g := quad()
	if err := Write(path, g); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := 5 + 36 + 22 + 4*(16+12) + 10 + 2*(5+3*2)
	if len(data) != want {
		t.Fatalf("file size = %d, want %d", len(data), want)
	}
	if got := EncodedSize(g.Schema()); got != int64(want) {
		t.Fatalf("EncodedSize = %d, want %d", got, want)
	}
	if string(data[:5]) != Magic {
		t.Fatalf("magic = %q", data[:5])
	}
	if v := endian.Get[uint32](endian.Big, data[5:]); v != Version {
		t.Fatalf("version = %d, want %d", v, Version)
	}
	if pc := endian.Get[uint32](endian.Big, data[9:]); pc != 4 {
		t.Fatalf("point count = %d, want 4", pc)
	}

	// The chunk follows the header, point table and point block.
	chunk := 5 + 36 + 22 + 4*28
	if m := endian.Get[uint32](endian.Big, data[chunk:]); m != ChunkMarker {
		t.Fatalf("chunk marker = %#x", m)
	}
	if n := endian.Get[uint16](endian.Big, data[chunk+4:]); n != 2 {
		t.Fatalf("chunk count = %d, want 2", n)
	}

	back, err := Read(path, true)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !sameGeometry(back, g) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", back, g)
	}
}

func TestRoundTripAllAttributeKinds(t *testing.T) {
	t.Parallel()

	for _, split := range []bool{false, true} {
		g := &Geometry{
			Positions:  [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 1}},
			PointAttrs: []Attribute{FloatAttr("pscale", 1), IntAttr("id", -1), IntAttr("cell", 0, 0, 0), FloatAttr("Cd", 1, 1, 1)},
			PointData: []Values{
				Floats(0.5, 1, 1.5, 2),
				Ints(10, 11, 12, 13),
				Ints(0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1),
				Floats(1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 1, 1),
			},
			Triangles:   [][3]uint32{{0, 1, 2}, {1, 3, 2}},
			VertexAttrs: []Attribute{VectorAttr("N", 0, 0, 1), FloatAttr("w", 0)},
			VertexData: []Values{
				Floats(
					0, 0, 1, 0, 0, 1, 0, 0, 1,
					0, 1, 0, 0, 1, 0, 0, 1, 0,
				),
				Floats(1, 2, 3, 4, 5, 6),
			},
			PrimAttrs: []Attribute{IntAttr("material", 0)},
			PrimData:  []Values{Ints(7, 8)},
		}

		var opts []Option
		if split {
			opts = append(opts, WithCornerSplit())
		}
		var buf bytes.Buffer
		if err := Encode(&buf, g, opts...); err != nil {
			t.Fatalf("Encode(split=%v): %v", split, err)
		}
		if int64(buf.Len()) != EncodedSize(g.Schema(), opts...) {
			t.Fatalf("split=%v: encoded %d bytes, EncodedSize says %d", split, buf.Len(), EncodedSize(g.Schema(), opts...))
		}

		back, err := ReadBytes(buf.Bytes(), true)
		if err != nil {
			t.Fatalf("ReadBytes(split=%v): %v", split, err)
		}
		if !sameGeometry(back, g) {
			t.Fatalf("split=%v: round trip mismatch:\n got %+v\nwant %+v", split, back, g)
		}
		if back.VertexAttrs[0].Type != TypeVector {
			t.Fatalf("split=%v: vector tag lost: %s", split, back.VertexAttrs[0].Type)
		}
		if back.PointAttrs[3].Type != TypeFloat {
			t.Fatalf("split=%v: float tag changed: %s", split, back.PointAttrs[3].Type)
		}
	}
}

func TestCornerSplitDescriptors(t *testing.T) {
	t.Parallel()

	g := quad()
	g.VertexAttrs = []Attribute{FloatAttr("uv", 0, 0, 0)}
	g.VertexData = []Values{Floats(make([]float32, 2*3*3)...)}

	var buf bytes.Buffer
	if err := Encode(&buf, g, WithCornerSplit()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer func() { _ = r.Close() }()
	if r.Header.VertexAttrCount != 3 {
		t.Fatalf("vertex attr count = %d, want 3", r.Header.VertexAttrCount)
	}
	if r.Header.TotalAttrCount != 4 {
		t.Fatalf("total attr count = %d, want 4", r.Header.TotalAttrCount)
	}
	if _, err := r.ReadPoints(); err != nil {
		t.Fatalf("ReadPoints: %v", err)
	}
	if _, err := r.ReadPrims(true); err != nil {
		t.Fatalf("ReadPrims: %v", err)
	}
	if len(r.VertexAttrs) != 1 || r.VertexAttrs[0].Name != "uv" {
		t.Fatalf("merged vertex attrs = %+v", r.VertexAttrs)
	}
}

func TestIncompleteCornerSetStaysSeparate(t *testing.T) {
	t.Parallel()

	layout := mergeCorners([]Attribute{
		FloatAttr("uv_corner0", 0),
		FloatAttr("uv_corner1", 0),
		FloatAttr("w", 0),
	})
	if len(layout.logical) != 3 {
		t.Fatalf("got %d logical attrs, want 3", len(layout.logical))
	}
	for i, a := range layout.logical {
		if layout.slots[i] != [3]int{i, i, i} {
			t.Fatalf("attr %s slots = %v", a.Name, layout.slots[i])
		}
	}
}

func TestIndexWidthBoundary(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		points int
		width  int
	}{
		{points: 65535, width: 2},
		{points: 65536, width: 4},
	} {
		if got := IndexWidth(tc.points); got != tc.width {
			t.Fatalf("IndexWidth(%d) = %d, want %d", tc.points, got, tc.width)
		}

		last := uint32(tc.points - 1)
		g := &Geometry{
			Positions: make([][3]float32, tc.points),
			Triangles: [][3]uint32{{0, 1, last}},
		}
		var buf bytes.Buffer
		if err := Encode(&buf, g); err != nil {
			t.Fatalf("Encode(%d points): %v", tc.points, err)
		}

		prims := HeaderSize + 16*tc.points
		if got, want := buf.Len()-prims, chunkHeaderSize+primHeaderSize+3*tc.width; got != want {
			t.Fatalf("%d points: primitive block is %d bytes, want %d", tc.points, got, want)
		}
		idx := buf.Bytes()[prims+chunkHeaderSize+primHeaderSize+2*tc.width:]
		var got uint32
		if tc.width == 2 {
			got = uint32(endian.Get[uint16](endian.Big, idx))
		} else {
			got = endian.Get[uint32](endian.Big, idx)
		}
		if got != last {
			t.Fatalf("%d points: third index = %d, want %d", tc.points, got, last)
		}

		back, err := ReadBytes(buf.Bytes(), true)
		if err != nil {
			t.Fatalf("ReadBytes(%d points): %v", tc.points, err)
		}
		if back.Triangles[0] != g.Triangles[0] {
			t.Fatalf("%d points: triangle = %v, want %v", tc.points, back.Triangles[0], g.Triangles[0])
		}
	}
}

func TestPrimitivesSpanChunks(t *testing.T) {
	t.Parallel()

	n := MaxChunkPrims + 2
	g := &Geometry{
		Positions: make([][3]float32, 3),
		Triangles: make([][3]uint32, n),
		PrimAttrs: []Attribute{IntAttr("i", 0)},
		PrimData:  []Values{{I: make([]int32, n)}},
	}
	for p := range g.Triangles {
		g.Triangles[p] = [3]uint32{0, 1, 2}
		g.PrimData[0].I[p] = int32(p)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if int64(buf.Len()) != EncodedSize(g.Schema()) {
		t.Fatalf("encoded %d bytes, EncodedSize says %d", buf.Len(), EncodedSize(g.Schema()))
	}
	back, err := ReadBytes(buf.Bytes(), true)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if len(back.Triangles) != n {
		t.Fatalf("got %d triangles, want %d", len(back.Triangles), n)
	}
	if got := back.PrimData[0].I[n-1]; got != int32(n-1) {
		t.Fatalf("last primitive attribute = %d, want %d", got, n-1)
	}
}

func TestWriteRejectsNonTriangles(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(&bytes.Buffer{}, Schema{PointCount: 4, PrimCount: 1})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WritePoints(make([][3]float32, 4), nil); err != nil {
		t.Fatalf("WritePoints: %v", err)
	}
	err = w.WritePrimitives([][]uint32{{0, 1, 2, 3}}, nil, nil)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("WritePrimitives(quad) = %v, want ErrFormat", err)
	}
	if err := w.Close(); !errors.Is(err, ErrFormat) {
		t.Fatalf("Close after failed primitives = %v, want ErrFormat", err)
	}
}

func TestWriterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewWriter(&bytes.Buffer{}, Schema{PointCount: 1, PointAttrs: []Attribute{{Name: "s", Type: typeString, Arity: 1}}}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("string attribute = %v, want ErrUnsupportedType", err)
	}
	if _, err := NewWriter(&bytes.Buffer{}, Schema{PointAttrs: []Attribute{FloatAttr("a", 0), FloatAttr("a", 0)}}); !errors.Is(err, ErrFormat) {
		t.Fatalf("duplicate attribute = %v, want ErrFormat", err)
	}
	if _, err := NewWriter(&bytes.Buffer{}, Schema{PointAttrs: []Attribute{FloatAttr("two", 0, 0)}}); !errors.Is(err, ErrFormat) {
		t.Fatalf("arity 2 = %v, want ErrFormat", err)
	}

	w, err := NewWriter(&bytes.Buffer{}, Schema{PointCount: 3, PrimCount: 1})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WritePrimitives([][]uint32{{0, 1, 2}}, nil, nil); err == nil {
		t.Fatal("WritePrimitives before WritePoints succeeded")
	}
	if err := w.WritePoints(make([][3]float32, 2), nil); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("short positions = %v, want ErrOutOfRange", err)
	}
	if err := w.WritePoints(make([][3]float32, 3), nil); err != nil {
		t.Fatalf("WritePoints: %v", err)
	}
	if err := w.WritePrimitives([][]uint32{{0, 1, 3}}, nil, nil); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("index past point count = %v, want ErrOutOfRange", err)
	}
	if err := w.WritePrimitives([][]uint32{{0, 1, 2}}, nil, nil); err != nil {
		t.Fatalf("WritePrimitives: %v", err)
	}
	if err := w.WritePrimitives([][]uint32{{0, 1, 2}}, nil, nil); err == nil {
		t.Fatal("second WritePrimitives succeeded")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// rawContainer hand-assembles a container without attributes so tests can
// produce primitives the writer refuses to emit.
func rawContainer(t *testing.T, points int, prims [][]uint32, flag byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := binio.NewWriter(&buf, order)
	var hdr [HeaderSize]byte
	encodeHeader(hdr[:], Header{Version: Version, PointCount: uint32(points), PrimCount: uint32(len(prims))})
	w.Bytes(hdr[:])
	for range points {
		w.F32s([]float32{0, 0, 0, 1})
	}
	w.U32(ChunkMarker)
	w.U16(uint16(len(prims)))
	w.U32(PrimTypePoly)
	for _, p := range prims {
		w.U32(uint32(len(p)))
		w.U8(flag)
		for _, idx := range p {
			w.U16(uint16(idx))
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return buf.Bytes()
}

func TestReadRejectsNonTriangleUnderIntegrityCheck(t *testing.T) {
	t.Parallel()

	raw := rawContainer(t, 4, [][]uint32{{0, 1, 2, 3}, {0, 2, 3}}, ClosedFlag)
	if _, err := ReadBytes(raw, true); !errors.Is(err, ErrFormat) {
		t.Fatalf("ReadBytes(quad, integrity) = %v, want ErrFormat", err)
	}

	col := logger.NewCollector(slog.LevelWarn)
	r, err := NewReader(bytes.NewReader(raw), WithLogger(col.Logger()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.ReadPoints(); err != nil {
		t.Fatalf("ReadPoints: %v", err)
	}
	prims, err := r.ReadPrims(false)
	if err != nil {
		t.Fatalf("ReadPrims(no integrity): %v", err)
	}
	if prims.Dropped != 1 || len(prims.Triangles) != 1 {
		t.Fatalf("dropped=%d kept=%d, want 1 and 1", prims.Dropped, len(prims.Triangles))
	}
	if prims.Triangles[0] != [3]uint32{0, 2, 3} {
		t.Fatalf("kept triangle = %v", prims.Triangles[0])
	}
	if len(col.Warnings()) == 0 {
		t.Fatal("dropping a primitive logged no warning")
	}
}

func TestReadRejectsOpenPolygonsAndBadIndices(t *testing.T) {
	t.Parallel()

	raw := rawContainer(t, 3, [][]uint32{{0, 1, 2}}, 0)
	if _, err := ReadBytes(raw, true); !errors.Is(err, ErrFormat) {
		t.Fatalf("open polygon = %v, want ErrFormat", err)
	}
	if _, err := ReadBytes(raw, false); err != nil {
		t.Fatalf("open polygon without integrity check: %v", err)
	}

	raw = rawContainer(t, 3, [][]uint32{{0, 1, 9}}, ClosedFlag)
	if _, err := ReadBytes(raw, true); !errors.Is(err, ErrFormat) {
		t.Fatalf("index past point count = %v, want ErrFormat", err)
	}
}

func TestReadRejectsReservedAttributeTypes(t *testing.T) {
	t.Parallel()

	for _, typ := range []AttribType{typeString, typeMixed, typeIndex} {
		var buf bytes.Buffer
		w := binio.NewWriter(&buf, order)
		var hdr [HeaderSize]byte
		encodeHeader(hdr[:], Header{Version: Version, PointAttrCount: 1, TotalAttrCount: 1})
		w.Bytes(hdr[:])
		w.U16(1)
		w.Bytes([]byte("s"))
		w.U16(1)
		w.U16(0)
		w.U16(uint16(typ))
		w.I32(0)
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}

		_, err := NewReader(bytes.NewReader(buf.Bytes()))
		if !errors.Is(err, ErrFormat) || !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("type %s: err = %v, want ErrFormat and ErrUnsupportedType", typ, err)
		}
	}
}

func TestReadMalformed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Encode(&buf, quad()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	good := buf.Bytes()

	bad := bytes.Clone(good)
	copy(bad, "BgeoX")
	if _, err := ReadBytes(bad, true); !errors.Is(err, ErrFormat) {
		t.Fatalf("bad magic = %v, want ErrFormat", err)
	}

	bad = bytes.Clone(good)
	chunk := HeaderSize + 22 + 4*28
	bad[chunk] = 0
	_, err := ReadBytes(bad, true)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("missing chunk marker = %v, want ErrFormat", err)
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("offset %d", chunk)) {
		t.Fatalf("missing chunk marker error lacks offset: %v", err)
	}

	// Cut inside the primitive block.
	if _, err := ReadBytes(good[:len(good)-4], true); !errors.Is(err, ErrFormat) {
		t.Fatalf("truncated primitives = %v, want ErrFormat", err)
	}
	// Cut inside the point block.
	if _, err := ReadBytes(good[:HeaderSize+22+10], true); !errors.Is(err, ErrFormat) {
		t.Fatalf("truncated points = %v, want ErrFormat", err)
	}
	if _, err := ReadBytes(good[:10], true); !errors.Is(err, ErrIO) {
		t.Fatalf("truncated header = %v, want ErrIO", err)
	}

	path := filepath.Join(t.TempDir(), "short.bgeo")
	if err := os.WriteFile(path, good[:10], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Open(path); !errors.Is(err, ErrFormat) {
		t.Fatalf("Open(short file) = %v, want ErrFormat", err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.bgeo")); !errors.Is(err, ErrIO) {
		t.Fatalf("Open(missing) = %v, want ErrIO", err)
	}
}

func TestReaderPhases(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Encode(&buf, quad()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.ReadPrims(true); err == nil {
		t.Fatal("ReadPrims before ReadPoints succeeded")
	}
	if _, err := r.ReadPoints(); err != nil {
		t.Fatalf("ReadPoints: %v", err)
	}
	if _, err := r.ReadPoints(); err == nil {
		t.Fatal("second ReadPoints succeeded")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestGroupsAreIgnoredWithWarning(t *testing.T) {
	t.Parallel()

	raw := rawContainer(t, 3, [][]uint32{{0, 1, 2}}, ClosedFlag)
	endian.Put(order, raw[len(Magic)+12:], uint32(2))

	col := logger.NewCollector(slog.LevelWarn)
	g, err := ReadBytes(raw, true, WithLogger(col.Logger()))
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if len(g.Triangles) != 1 {
		t.Fatalf("got %d triangles", len(g.Triangles))
	}
	warned := false
	for _, w := range col.Warnings() {
		if strings.Contains(w, "groups") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("warnings = %v, want a groups warning", col.Warnings())
	}
}
