package prt

import (
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

type writerState int

const (
	stateChannels writerState = iota
	stateAllocated
	stateClosed
)

// Writer produces one container. Channels are declared first, then Allocate
// writes the header and channel table and sizes the particle buffer, the
// buffer is filled, and Close compresses it and patches the particle count.
type Writer struct {
	out       io.WriteSeeker
	f         *os.File
	log       logger.Logger
	maxBuffer int64

	set     ChannelSet
	skipped []string
	count   int64
	data    []byte
	state   writerState
}

// Create creates (or truncates) path for writing.
func Create(path string, opts ...Option) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	w, err := NewWriter(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.f = f
	return w, nil
}

// NewWriter writes a container to out, which must be positioned at the start
// of the container. The header is rewritten in place on Close.
func NewWriter(out io.WriteSeeker, opts ...Option) (*Writer, error) {
	if out == nil {
		return nil, errors.New("prt: nil writer")
	}
	o := newOptions(opts)
	return &Writer{out: out, log: o.log, maxBuffer: o.maxBuffer}, nil
}

// AddChannel declares a channel. A (type, arity) pair the format cannot carry
// is not fatal: the channel is skipped, a warning is logged and the name is
// reported by Skipped.
func (w *Writer) AddChannel(name string, t DataType, arity int) error {
	if w.state != stateChannels {
		return errors.New("prt: channels are frozen after Allocate")
	}
	_, err := w.set.Add(name, t, arity)
	if errors.Is(err, ErrUnsupportedType) {
		w.skipped = append(w.skipped, name)
		w.log.Warn("skipping unsupported channel", "channel", name, "type", t.String(), "arity", arity)
		return nil
	}
	return err
}

// Skipped returns the names of channels dropped by AddChannel.
func (w *Writer) Skipped() []string { return append([]string(nil), w.skipped...) }

// Channels returns the declared channels with their offsets.
func (w *Writer) Channels() []Channel { return w.set.Channels() }

// Stride returns the size of one particle record.
func (w *Writer) Stride() int { return w.set.Stride() }

// Count returns the allocated particle count.
func (w *Writer) Count() int64 { return w.count }

// Allocate freezes the channel set, writes the header with an unpatched count
// and the channel table, and allocates count zeroed particle records.
func (w *Writer) Allocate(count int64) error {
	if w.state != stateChannels {
		return errors.New("prt: already allocated")
	}
	if w.set.Len() == 0 {
		return fmt.Errorf("%w: no channels declared", ErrFormat)
	}
	stride := int64(w.set.Stride())
	if count < 0 || count > math.MaxInt/stride {
		return fmt.Errorf("%w: particle count %d", ErrOutOfRange, count)
	}
	if count*stride > w.maxBuffer {
		return fmt.Errorf("%w: %d particles of %d bytes exceed the %d byte buffer limit", ErrOutOfRange, count, stride, w.maxBuffer)
	}

	bw := binio.NewWriter(w.out, order)
	var hdr [HeaderSize]byte
	encodeHeader(hdr[:], UnpatchedCount)
	bw.Bytes(hdr[:])
	if err := EncodeChannels(bw, w.set.channels); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: write header: %v", ErrIO, err)
	}

	w.data = make([]byte, count*stride)
	w.count = count
	w.state = stateAllocated
	w.log.Debug("prt allocated", "particles", count, "channels", w.set.Len(), "stride", stride)
	return nil
}

// PutFloat32 stores the components of a Float32 channel for one particle.
func (w *Writer) PutFloat32(channel string, particle int64, values ...float32) error {
	return put(w, channel, Float32, particle, values)
}

// PutInt32 stores the components of an Int32 channel for one particle.
func (w *Writer) PutInt32(channel string, particle int64, values ...int32) error {
	return put(w, channel, Int32, particle, values)
}

// PutInt64 stores the value of an Int64 channel for one particle.
func (w *Writer) PutInt64(channel string, particle int64, values ...int64) error {
	return put(w, channel, Int64, particle, values)
}

// FillFloat32 stores a whole Float32 channel, Count()*arity components.
func (w *Writer) FillFloat32(channel string, values []float32) error {
	return fill(w, channel, Float32, values)
}

// FillInt32 stores a whole Int32 channel, Count()*arity components.
func (w *Writer) FillInt32(channel string, values []int32) error {
	return fill(w, channel, Int32, values)
}

// FillInt64 stores a whole Int64 channel, Count() values.
func (w *Writer) FillInt64(channel string, values []int64) error {
	return fill(w, channel, Int64, values)
}

func (w *Writer) target(name string, want DataType) (Channel, error) {
	if w.state != stateAllocated {
		return Channel{}, fmt.Errorf("%w: particle buffer is not allocated", ErrOutOfRange)
	}
	c, ok := w.set.Lookup(name)
	if !ok {
		return Channel{}, fmt.Errorf("%w: no channel %q", ErrOutOfRange, name)
	}
	if c.Type != want {
		return Channel{}, fmt.Errorf("%w: channel %q is %s, not %s", ErrUnsupportedType, name, c.Type, want)
	}
	return c, nil
}

func put[T endian.Scalar](w *Writer, name string, want DataType, particle int64, values []T) error {
	c, err := w.target(name, want)
	if err != nil {
		return err
	}
	if particle < 0 || particle >= w.count {
		return fmt.Errorf("%w: particle %d of %d", ErrOutOfRange, particle, w.count)
	}
	if len(values) != c.Arity {
		return fmt.Errorf("%w: channel %q takes %d components, got %d", ErrOutOfRange, name, c.Arity, len(values))
	}
	base := int(particle)*w.set.Stride() + c.Offset
	size := want.Size()
	for k, v := range values {
		endian.Put(order, w.data[base+k*size:], v)
	}
	return nil
}

func fill[T endian.Scalar](w *Writer, name string, want DataType, values []T) error {
	c, err := w.target(name, want)
	if err != nil {
		return err
	}
	if int64(len(values)) != w.count*int64(c.Arity) {
		return fmt.Errorf("%w: channel %q needs %d components, got %d", ErrOutOfRange, name, w.count*int64(c.Arity), len(values))
	}
	stride := w.set.Stride()
	size := want.Size()
	for p := range int(w.count) {
		base := p*stride + c.Offset
		for k := range c.Arity {
			endian.Put(order, w.data[base+k*size:], values[p*c.Arity+k])
		}
	}
	return nil
}

// Close compresses the particle buffer, patches the particle count and
// releases the buffer and any file opened by Create. A writer closed before
// Allocate reports an error and leaves an unusable file behind.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return nil
	}
	allocated := w.state == stateAllocated
	w.state = stateClosed
	defer func() {
		w.data = nil
		if w.f != nil {
			_ = w.f.Close()
			w.f = nil
		}
	}()

	if !allocated {
		return fmt.Errorf("%w: closed before Allocate", ErrFormat)
	}
	if err := w.compress(); err != nil {
		return err
	}

	if _, err := w.out.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to header: %v", ErrIO, err)
	}
	var hdr [HeaderSize]byte
	encodeHeader(hdr[:], w.count)
	if err := writeAll(w.out, hdr[:]); err != nil {
		return fmt.Errorf("%w: patch header: %v", ErrIO, err)
	}
	if _, err := w.out.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: seek to end: %v", ErrIO, err)
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			w.f = nil
			return fmt.Errorf("%w: close: %v", ErrIO, err)
		}
		w.f = nil
	}
	w.log.Debug("prt written", "particles", w.count, "bytes", len(w.data))
	return nil
}

// Abort releases the buffer and any file opened by Create without finishing
// the container. The particle count stays unpatched, so readers reject what
// was written. Abort after Close is a no-op.
func (w *Writer) Abort() error {
	if w.state == stateClosed {
		return nil
	}
	w.state = stateClosed
	w.data = nil
	if w.f != nil {
		err := w.f.Close()
		w.f = nil
		if err != nil {
			return fmt.Errorf("%w: close: %v", ErrIO, err)
		}
	}
	return nil
}

// compress deflates the buffer in slices so a single write never hands the
// compressor more than sliceSize bytes.
func (w *Writer) compress() error {
	sink := &sinkWriter{w: w.out}
	zw, err := zlib.NewWriterLevel(sink, zlib.BestSpeed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCompression, err)
	}
	for off := 0; off < len(w.data); off += sliceSize {
		end := min(off+sliceSize, len(w.data))
		if _, err := zw.Write(w.data[off:end]); err != nil {
			return sink.classify(err)
		}
	}
	if err := zw.Close(); err != nil {
		return sink.classify(err)
	}
	return nil
}

// sinkWriter records the first error of the destination so compressor
// failures can be told apart from output failures.
type sinkWriter struct {
	w   io.Writer
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil && s.err == nil {
		s.err = err
	}
	return n, err
}

func (s *sinkWriter) classify(err error) error {
	if s.err != nil {
		return fmt.Errorf("%w: write payload: %v", ErrIO, s.err)
	}
	return fmt.Errorf("%w: %v", ErrCompression, err)
}

func writeAll(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return err
}
