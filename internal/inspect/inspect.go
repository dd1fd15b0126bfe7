// Package inspect identifies container files and summarises their layout.
package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vfxbuddies/buddies/pkg/bgeo"
	"github.com/vfxbuddies/buddies/pkg/prt"
)

// ErrUnknownFormat is returned for data that is neither container format.
var ErrUnknownFormat = errors.New("inspect: unknown container format")

// Format names a container format.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatBgeo    Format = "bgeo"
	FormatPRT     Format = "prt"
)

// SniffSize is the number of leading bytes Sniff needs.
const SniffSize = 8

// Sniff identifies a container from its first bytes.
func Sniff(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, []byte(bgeo.Magic)):
		return FormatBgeo
	case bytes.HasPrefix(header, prt.Magic[:]):
		return FormatPRT
	}
	return FormatUnknown
}

// Attribute describes one geometry attribute.
type Attribute struct {
	Class string `json:"class"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Arity int    `json:"arity"`
}

// Channel describes one particle channel.
type Channel struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Arity  int    `json:"arity"`
	Offset int    `json:"offset"`
}

// Summary is the layout of one container.
type Summary struct {
	Format     Format      `json:"format"`
	Version    uint32      `json:"version"`
	Size       int64       `json:"size,omitempty"`
	Points     int64       `json:"points,omitempty"`
	Prims      int64       `json:"prims,omitempty"`
	Dropped    int         `json:"dropped,omitempty"`
	IndexWidth int         `json:"index_width,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Particles  int64       `json:"particles,omitempty"`
	Stride     int         `json:"stride,omitempty"`
	Channels   []Channel   `json:"channels,omitempty"`
}

// Bgeo decodes a geometry container and summarises it. Non-triangle
// primitives are counted rather than rejected.
func Bgeo(r io.Reader) (*Summary, error) {
	br, err := bgeo.NewReader(r)
	if err != nil {
		return nil, err
	}
	return summariseBgeo(br)
}

func summariseBgeo(r *bgeo.Reader) (*Summary, error) {
	defer func() { _ = r.Close() }()

	if _, err := r.ReadPoints(); err != nil {
		return nil, err
	}
	prims, err := r.ReadPrims(false)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		Format:     FormatBgeo,
		Version:    r.Header.Version,
		Points:     int64(r.Header.PointCount),
		Prims:      int64(r.Header.PrimCount),
		Dropped:    prims.Dropped,
		IndexWidth: r.IndexWidth(),
	}
	for _, set := range []struct {
		class string
		attrs []bgeo.Attribute
	}{
		{"point", r.PointAttrs},
		{"vertex", r.VertexAttrs},
		{"primitive", r.PrimAttrs},
	} {
		for _, a := range set.attrs {
			s.Attributes = append(s.Attributes, Attribute{Class: set.class, Name: a.Name, Type: a.Type.String(), Arity: a.Arity})
		}
	}
	return s, nil
}

// PRT decodes a particle container and summarises it.
func PRT(r io.Reader) (*Summary, error) {
	pr, err := prt.NewReader(r)
	if err != nil {
		return nil, err
	}
	return summarisePRT(pr), nil
}

func summarisePRT(r *prt.Reader) *Summary {
	s := &Summary{
		Format:    FormatPRT,
		Version:   r.Header.Version,
		Particles: r.Count(),
		Stride:    r.Stride(),
	}
	for _, c := range r.Channels {
		s.Channels = append(s.Channels, Channel{Name: c.Name, Type: c.Type.String(), Arity: c.Arity, Offset: c.Offset})
	}
	return s
}

// Bytes summarises a container held in memory.
func Bytes(b []byte) (*Summary, error) {
	var (
		s   *Summary
		err error
	)
	switch Sniff(b) {
	case FormatBgeo:
		s, err = Bgeo(bytes.NewReader(b))
	case FormatPRT:
		s, err = PRT(bytes.NewReader(b))
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, err
	}
	s.Size = int64(len(b))
	return s, nil
}

// File summarises the container at path.
func File(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	head := make([]byte, SniffSize)
	n, err := io.ReadFull(f, head)
	_ = f.Close()
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var s *Summary
	switch Sniff(head[:n]) {
	case FormatBgeo:
		r, err := bgeo.Open(path)
		if err != nil {
			return nil, err
		}
		if s, err = summariseBgeo(r); err != nil {
			return nil, err
		}
	case FormatPRT:
		r, err := prt.Open(path)
		if err != nil {
			return nil, err
		}
		s = summarisePRT(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	s.Size = st.Size()
	return s, nil
}
