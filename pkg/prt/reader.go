package prt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zlib"

	"github.com/vfxbuddies/buddies/internal/binio"
	"github.com/vfxbuddies/buddies/internal/logger"
	"github.com/vfxbuddies/buddies/pkg/endian"
)

// growLimit caps the up-front buffer reservation; a corrupt count must not
// trigger a huge allocation before any payload has been inflated.
const growLimit = 64 << 20

// Reader holds a fully decoded container.
type Reader struct {
	Header   Header
	Channels []Channel

	log    logger.Logger
	stride int
	index  map[string]int
	data   []byte
}

// Open reads and decodes the container at path.
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
	return newReader(f, st.Size(), opts)
}

// NewReader decodes a container from src.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	var size int64
	if br, ok := src.(*bytes.Reader); ok {
		size = int64(br.Len())
	}
	return newReader(src, size, opts)
}

func newReader(src io.Reader, size int64, opts []Option) (*Reader, error) {
	if src == nil {
		return nil, errors.New("prt: nil reader")
	}
	o := newOptions(opts)
	br := binio.NewReader(src, order, size)

	raw, err := br.ReadN(HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrIO, err)
	}
	hdr, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}
	channels, stride, err := DecodeChannels(br)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		Header:   hdr,
		Channels: channels,
		log:      o.log,
		stride:   stride,
		index:    make(map[string]int, len(channels)),
	}
	for i, c := range channels {
		r.index[c.Name] = i
		if !ValidName(c.Name) {
			r.log.Warn("channel name does not follow the naming rule", "channel", c.Name)
		}
	}

	if stride > 0 && hdr.Count > math.MaxInt/int64(stride) {
		return nil, fmt.Errorf("%w: %d particles of %d bytes", ErrFormat, hdr.Count, stride)
	}
	total := hdr.Count * int64(stride)
	if total == 0 {
		r.data = []byte{}
		return r, nil
	}

	r.data, err = inflate(br.Buffered(), total, r.log)
	if err != nil {
		return nil, err
	}
	r.log.Debug("prt decoded", "particles", hdr.Count, "channels", len(channels), "stride", stride)
	return r, nil
}

// inflate decompresses exactly total bytes and then drains the stream so its
// checksum is verified.
func inflate(src io.Reader, total int64, log logger.Logger) ([]byte, error) {
	zr, err := zlib.NewReader(src)
	if err != nil {
		return nil, inflateErr(err)
	}
	defer func() { _ = zr.Close() }()

	var buf bytes.Buffer
	buf.Grow(int(min(total, growLimit)))
	if _, err := io.CopyN(&buf, zr, total); err != nil {
		return nil, inflateErr(err)
	}
	extra, err := io.Copy(io.Discard, zr)
	if err != nil {
		return nil, inflateErr(err)
	}
	if extra > 0 {
		log.Warn("ignoring trailing particle data", "bytes", extra)
	}
	return buf.Bytes(), nil
}

func inflateErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: particle data is truncated: %v", ErrIO, err)
	}
	return fmt.Errorf("%w: %v", ErrCompression, err)
}

// Count returns the number of particles.
func (r *Reader) Count() int64 { return r.Header.Count }

// Stride returns the size of one particle record.
func (r *Reader) Stride() int { return r.stride }

// Channel finds a channel by name.
func (r *Reader) Channel(name string) (Channel, bool) {
	i, ok := r.index[name]
	if !ok {
		return Channel{}, false
	}
	return r.Channels[i], true
}

func (r *Reader) lookup(name string) (Channel, error) {
	c, ok := r.Channel(name)
	if !ok {
		return Channel{}, fmt.Errorf("%w: no channel %q", ErrOutOfRange, name)
	}
	return c, nil
}

// Float32s returns a Float32 or Float16 channel as Count()*arity float32
// components.
func (r *Reader) Float32s(name string) ([]float32, error) {
	c, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	switch c.Type {
	case Float32:
		return column(r, c, func(b []byte) float32 { return endian.Get[float32](order, b) }), nil
	case Float16:
		return column(r, c, func(b []byte) float32 { return halfToFloat32(endian.Get[uint16](order, b)) }), nil
	}
	return nil, fmt.Errorf("%w: channel %q is %s", ErrUnsupportedType, name, c.Type)
}

// Int32s returns an integer channel of at most 32 signed bits, widened.
func (r *Reader) Int32s(name string) ([]int32, error) {
	c, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	switch c.Type {
	case Int8, UInt8, Int16, UInt16, Int32:
		return column(r, c, func(b []byte) int32 { return int32(intAt(c.Type, b)) }), nil
	}
	return nil, fmt.Errorf("%w: channel %q is %s", ErrUnsupportedType, name, c.Type)
}

// Int64s returns any integer channel except UInt64, widened.
func (r *Reader) Int64s(name string) ([]int64, error) {
	c, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if c.Type.IsFloat() || c.Type == UInt64 {
		return nil, fmt.Errorf("%w: channel %q is %s", ErrUnsupportedType, name, c.Type)
	}
	return column(r, c, func(b []byte) int64 { return intAt(c.Type, b) }), nil
}

// Float64s returns any channel widened to float64.
func (r *Reader) Float64s(name string) ([]float64, error) {
	c, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return column(r, c, func(b []byte) float64 { return floatAt(c.Type, b) }), nil
}

// Raw returns a packed copy of the channel's bytes in file order.
func (r *Reader) Raw(name string) ([]byte, error) {
	c, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	n := int(r.Header.Count)
	size := c.Size()
	out := make([]byte, 0, n*size)
	for p := range n {
		base := p*r.stride + c.Offset
		out = append(out, r.data[base:base+size]...)
	}
	return out, nil
}

func column[T any](r *Reader, c Channel, conv func([]byte) T) []T {
	n := int(r.Header.Count)
	size := c.Type.Size()
	out := make([]T, n*c.Arity)
	for p := range n {
		base := p*r.stride + c.Offset
		for k := range c.Arity {
			out[p*c.Arity+k] = conv(r.data[base+k*size:])
		}
	}
	return out
}

func intAt(t DataType, b []byte) int64 {
	switch t {
	case Int8:
		return int64(int8(b[0]))
	case UInt8:
		return int64(b[0])
	case Int16:
		return int64(endian.Get[int16](order, b))
	case UInt16:
		return int64(endian.Get[uint16](order, b))
	case Int32:
		return int64(endian.Get[int32](order, b))
	case UInt32:
		return int64(endian.Get[uint32](order, b))
	case Int64:
		return endian.Get[int64](order, b)
	case UInt64:
		return int64(endian.Get[uint64](order, b))
	}
	return 0
}

func floatAt(t DataType, b []byte) float64 {
	switch t {
	case Float16:
		return float64(halfToFloat32(endian.Get[uint16](order, b)))
	case Float32:
		return float64(endian.Get[float32](order, b))
	case Float64:
		return endian.Get[float64](order, b)
	case UInt64:
		return float64(endian.Get[uint64](order, b))
	}
	return float64(intAt(t, b))
}
