package convert

import (
	"context"
	"fmt"

	"github.com/vfxbuddies/buddies/pkg/bgeo"
)

// Mesh is a polygon mesh as a host hands it over: arbitrary polygons, point
// attributes, and per-polygon attributes.
type Mesh struct {
	Positions  [][3]float32
	Polygons   [][]uint32
	PointAttrs []bgeo.Attribute
	PointData  []bgeo.Values
	PolyAttrs  []bgeo.Attribute
	PolyData   []bgeo.Values
}

// Triangulate fan-splits every polygon. Polygons with fewer than three
// vertices are dropped. origin[i] is the polygon triangle i came from.
func Triangulate(polys [][]uint32) (tris [][3]uint32, origin []int, dropped int) {
	for p, poly := range polys {
		if len(poly) < bgeo.VertsPerTriangle {
			dropped++
			continue
		}
		for k := 1; k+1 < len(poly); k++ {
			tris = append(tris, [3]uint32{poly[0], poly[k], poly[k+1]})
			origin = append(origin, p)
		}
	}
	return tris, origin, dropped
}

// MeshToBgeo triangulates m and writes it as a geometry container.
// Per-polygon attributes are copied onto each of the polygon's triangles.
func MeshToBgeo(ctx context.Context, dst string, m *Mesh, opts Options) (Report, error) {
	opts = opts.withDefaults()
	log := opts.Log.With("dst", dst)

	if len(m.PolyData) != len(m.PolyAttrs) {
		return Report{}, fmt.Errorf("%w: %d polygon columns for %d attributes", bgeo.ErrOutOfRange, len(m.PolyData), len(m.PolyAttrs))
	}
	tris, origin, dropped := Triangulate(m.Polygons)
	if dropped > 0 {
		log.Warn("dropping degenerate polygons", "dropped", dropped)
	}

	pos := append([][3]float32(nil), m.Positions...)
	if err := opts.Transform.ApplyPoints(ctx, pos, opts.Workers); err != nil {
		return Report{}, err
	}

	g := &bgeo.Geometry{
		Positions:  pos,
		PointAttrs: m.PointAttrs,
		PointData:  m.PointData,
		Triangles:  tris,
		PrimAttrs:  m.PolyAttrs,
	}
	for i, a := range m.PolyAttrs {
		src := m.PolyData[i]
		if src.Len() != len(m.Polygons)*a.Arity {
			return Report{}, fmt.Errorf("%w: polygon attribute %q has %d components", bgeo.ErrOutOfRange, a.Name, src.Len())
		}
		var col bgeo.Values
		for _, p := range origin {
			lo, hi := p*a.Arity, (p+1)*a.Arity
			if a.Type.IsFloat() {
				col.F = append(col.F, src.F[lo:hi]...)
			} else {
				col.I = append(col.I, src.I[lo:hi]...)
			}
		}
		g.PrimData = append(g.PrimData, col)
	}

	if err := bgeo.Write(dst, g, bgeoOptions(opts, log)...); err != nil {
		return Report{}, err
	}
	rep := Report{Points: int64(len(pos)), Triangles: len(tris)}
	for _, a := range m.PointAttrs {
		rep.Channels = append(rep.Channels, a.Name)
	}
	log.Info("wrote mesh", "points", len(pos), "triangles", len(tris), "polygons", len(m.Polygons))
	return rep, nil
}
