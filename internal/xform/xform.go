// Package xform applies unit scale and up-axis changes to point data. Every
// element is independent, so work is split into disjoint ranges and run in
// parallel.
package xform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Axis names a world up axis.
type Axis int

const (
	AxisY Axis = iota
	AxisZ
)

func (a Axis) String() string {
	if a == AxisZ {
		return "z"
	}
	return "y"
}

// ParseAxis accepts "y" or "z" in either case.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("xform: unknown up axis %q", s)
}

// Transform converts from a source frame to a destination frame.
type Transform struct {
	Scale float32
	From  Axis
	To    Axis
}

// Identity reports whether the transform leaves data unchanged.
func (t Transform) Identity() bool {
	return (t.Scale == 0 || t.Scale == 1) && t.From == t.To
}

// minChunk keeps tiny inputs on one goroutine.
const minChunk = 4096

// ApplyPoints scales and reorients positions in place.
func (t Transform) ApplyPoints(ctx context.Context, pts [][3]float32, workers int) error {
	if t.Identity() {
		return nil
	}
	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	return t.run(ctx, pts, workers, scale)
}

// ApplyVectors reorients direction vectors in place. Vectors are not scaled.
func (t Transform) ApplyVectors(ctx context.Context, vecs [][3]float32, workers int) error {
	if t.From == t.To {
		return nil
	}
	return t.run(ctx, vecs, workers, 1)
}

// ApplyFlat applies ApplyPoints or ApplyVectors to a flat x,y,z slice.
func (t Transform) ApplyFlat(ctx context.Context, flat []float32, workers int, scaled bool) error {
	if len(flat)%3 != 0 {
		return fmt.Errorf("xform: %d components is not a multiple of 3", len(flat))
	}
	pts := make([][3]float32, len(flat)/3)
	for i := range pts {
		pts[i] = [3]float32{flat[3*i], flat[3*i+1], flat[3*i+2]}
	}
	var err error
	if scaled {
		err = t.ApplyPoints(ctx, pts, workers)
	} else {
		err = t.ApplyVectors(ctx, pts, workers)
	}
	if err != nil {
		return err
	}
	for i, p := range pts {
		flat[3*i], flat[3*i+1], flat[3*i+2] = p[0], p[1], p[2]
	}
	return nil
}

func (t Transform) run(ctx context.Context, pts [][3]float32, workers int, scale float32) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := max(minChunk, (len(pts)+workers-1)/workers)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(pts); start += chunk {
		part := pts[start:min(start+chunk, len(pts))]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := range part {
				part[i] = t.apply(part[i], scale)
			}
			return nil
		})
	}
	return g.Wait()
}

func (t Transform) apply(p [3]float32, scale float32) [3]float32 {
	x, y, z := p[0]*scale, p[1]*scale, p[2]*scale
	switch {
	case t.From == AxisY && t.To == AxisZ:
		return [3]float32{x, -z, y}
	case t.From == AxisZ && t.To == AxisY:
		return [3]float32{x, z, -y}
	}
	return [3]float32{x, y, z}
}
