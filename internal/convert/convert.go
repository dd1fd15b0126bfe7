// Package convert walks one container format into the other through the
// codecs' public APIs, applying channel name mapping and frame transforms on
// the way.
package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/vfxbuddies/buddies/internal/channelmap"
	"github.com/vfxbuddies/buddies/internal/logger"
	"github.com/vfxbuddies/buddies/internal/xform"
	"github.com/vfxbuddies/buddies/pkg/bgeo"
	"github.com/vfxbuddies/buddies/pkg/prt"
)

// PositionChannel is the particle channel holding point positions.
const PositionChannel = "Position"

// directionChannels are reoriented, but not scaled, when the up axis changes.
var directionChannels = map[string]bool{"Velocity": true, "Normal": true}

// Options configures a conversion. The zero value converts with the default
// channel map and no transform.
type Options struct {
	Map            *channelmap.Table
	Transform      xform.Transform
	Workers        int
	IntegrityCheck bool
	CornerSplit    bool
	Log            logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Map == nil {
		o.Map = channelmap.Default()
	}
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	return o
}

// Report summarises a conversion.
type Report struct {
	Points    int64    `json:"points"`
	Triangles int      `json:"triangles,omitempty"`
	Channels  []string `json:"channels"`
	Skipped   []string `json:"skipped,omitempty"`
}

func (r *Report) skip(log logger.Logger, name, reason string) {
	r.Skipped = append(r.Skipped, name)
	log.Warn("skipping attribute", "name", name, "reason", reason)
}

// BgeoToPRT converts the points of a geometry container into particles.
// Primitives are ignored.
func BgeoToPRT(ctx context.Context, src, dst string, opts Options) (Report, error) {
	opts = opts.withDefaults()
	log := opts.Log.With("src", src, "dst", dst)

	g, err := bgeo.Read(src, opts.IntegrityCheck, bgeo.WithLogger(log))
	if err != nil {
		return Report{}, err
	}
	if err := opts.Transform.ApplyPoints(ctx, g.Positions, opts.Workers); err != nil {
		return Report{}, err
	}

	w, err := prt.Create(dst, prt.WithLogger(log))
	if err != nil {
		return Report{}, err
	}
	defer func() { _ = w.Abort() }()

	rep := Report{Points: int64(len(g.Positions))}
	if err := w.AddChannel(PositionChannel, prt.Float32, 3); err != nil {
		return Report{}, err
	}

	type column struct {
		channel string
		attr    bgeo.Attribute
		data    bgeo.Values
	}
	var cols []column
	for i, a := range g.PointAttrs {
		name := opts.Map.ToChannel(a.Name)
		if name == PositionChannel {
			rep.skip(log, a.Name, "collides with the position channel")
			continue
		}
		typ := prt.Int32
		if a.Type.IsFloat() {
			typ = prt.Float32
		}
		if err := w.AddChannel(name, typ, a.Arity); err != nil {
			if !errors.Is(err, prt.ErrFormat) {
				return Report{}, err
			}
			rep.skip(log, a.Name, err.Error())
			continue
		}
		if !prt.Supported(typ, a.Arity) {
			continue
		}
		cols = append(cols, column{channel: name, attr: a, data: g.PointData[i]})
	}
	rep.Skipped = append(rep.Skipped, w.Skipped()...)

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if err := w.Allocate(rep.Points); err != nil {
		return Report{}, err
	}
	if err := w.FillFloat32(PositionChannel, flatten(g.Positions)); err != nil {
		return Report{}, err
	}
	rep.Channels = append(rep.Channels, PositionChannel)

	for _, c := range cols {
		if c.attr.Type.IsFloat() {
			if c.attr.Arity == 3 && directionChannels[c.channel] {
				if err := opts.Transform.ApplyFlat(ctx, c.data.F, opts.Workers, false); err != nil {
					return Report{}, err
				}
			}
			err = w.FillFloat32(c.channel, c.data.F)
		} else {
			err = w.FillInt32(c.channel, c.data.I)
		}
		if err != nil {
			return Report{}, err
		}
		rep.Channels = append(rep.Channels, c.channel)
	}
	if err := w.Close(); err != nil {
		return Report{}, err
	}
	log.Info("converted geometry to particles", "points", rep.Points, "channels", len(rep.Channels), "skipped", len(rep.Skipped))
	return rep, nil
}

// PRTToBgeo converts particles into a point cloud container.
func PRTToBgeo(ctx context.Context, src, dst string, opts Options) (Report, error) {
	opts = opts.withDefaults()
	log := opts.Log.With("src", src, "dst", dst)

	r, err := prt.Open(src, prt.WithLogger(log))
	if err != nil {
		return Report{}, err
	}
	pos, err := positions(r)
	if err != nil {
		return Report{}, err
	}
	if err := opts.Transform.ApplyPoints(ctx, pos, opts.Workers); err != nil {
		return Report{}, err
	}

	rep := Report{Points: r.Count(), Channels: []string{PositionChannel}}
	g := &bgeo.Geometry{Positions: pos}
	seen := map[string]bool{"P": true}
	for _, c := range r.Channels {
		if c.Name == PositionChannel {
			continue
		}
		host := opts.Map.ToHost(c.Name)
		if seen[host] {
			rep.skip(log, c.Name, "duplicate attribute name "+host)
			continue
		}
		if c.Arity != 1 && c.Arity != 3 {
			rep.skip(log, c.Name, fmt.Sprintf("arity %d", c.Arity))
			continue
		}

		var (
			attr bgeo.Attribute
			data bgeo.Values
		)
		switch c.Type {
		case prt.Float32:
			f, err := r.Float32s(c.Name)
			if err != nil {
				return Report{}, err
			}
			attr = bgeo.Attribute{Name: host, Type: bgeo.TypeFloat, Arity: c.Arity, Default: bgeo.Floats(make([]float32, c.Arity)...)}
			if c.Arity == 3 && directionChannels[c.Name] {
				attr.Type = bgeo.TypeVector
				if err := opts.Transform.ApplyFlat(ctx, f, opts.Workers, false); err != nil {
					return Report{}, err
				}
			}
			data = bgeo.Floats(f...)
		case prt.Int32:
			v, err := r.Int32s(c.Name)
			if err != nil {
				return Report{}, err
			}
			attr = bgeo.Attribute{Name: host, Type: bgeo.TypeInt, Arity: c.Arity, Default: bgeo.Ints(make([]int32, c.Arity)...)}
			data = bgeo.Ints(v...)
		default:
			rep.skip(log, c.Name, "type "+c.Type.String())
			continue
		}
		seen[host] = true
		g.PointAttrs = append(g.PointAttrs, attr)
		g.PointData = append(g.PointData, data)
		rep.Channels = append(rep.Channels, c.Name)
	}

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if err := bgeo.Write(dst, g, bgeoOptions(opts, log)...); err != nil {
		return Report{}, err
	}
	log.Info("converted particles to geometry", "points", rep.Points, "attributes", len(g.PointAttrs), "skipped", len(rep.Skipped))
	return rep, nil
}

func positions(r *prt.Reader) ([][3]float32, error) {
	c, ok := r.Channel(PositionChannel)
	if !ok {
		return nil, fmt.Errorf("%w: no %s channel", prt.ErrFormat, PositionChannel)
	}
	if c.Arity != 3 || !c.Type.IsFloat() {
		return nil, fmt.Errorf("%w: %s channel is %s x %d", prt.ErrUnsupportedType, PositionChannel, c.Type, c.Arity)
	}
	flat, err := r.Float64s(PositionChannel)
	if err != nil {
		return nil, err
	}
	pos := make([][3]float32, len(flat)/3)
	for i := range pos {
		pos[i] = [3]float32{float32(flat[3*i]), float32(flat[3*i+1]), float32(flat[3*i+2])}
	}
	return pos, nil
}

func flatten(pts [][3]float32) []float32 {
	out := make([]float32, 0, 3*len(pts))
	for _, p := range pts {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

func bgeoOptions(opts Options, log logger.Logger) []bgeo.Option {
	o := []bgeo.Option{bgeo.WithLogger(log)}
	if opts.CornerSplit {
		o = append(o, bgeo.WithCornerSplit())
	}
	return o
}
