// Package binio provides typed, byte-order aware stream readers and writers
// shared by the container codecs.
package binio

import (
	"bufio"
	"fmt"
	"io"

	"github.com/vfxbuddies/buddies/pkg/endian"
)

// Reader decodes fixed-width scalars from a stream in a declared byte order
// and tracks the absolute byte offset.
type Reader struct {
	r     *bufio.Reader
	order endian.Order
	off   int64
	size  int64
	buf   [8]byte
}

// NewReader wraps rd. size bounds reads when positive; pass 0 when the stream
// length is unknown.
func NewReader(rd io.Reader, order endian.Order, size int64) *Reader {
	br, ok := rd.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(rd)
	}
	return &Reader{r: br, order: order, size: size}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.off }

// Buffered exposes the underlying buffered reader, for callers that hand the
// remaining stream to another decoder.
func (r *Reader) Buffered() *bufio.Reader { return r.r }

// ReadFull fills p completely.
func (r *Reader) ReadFull(p []byte) error {
	if r.size > 0 && r.off+int64(len(p)) > r.size {
		return io.ErrUnexpectedEOF
	}
	n, err := io.ReadFull(r.r, p)
	r.off += int64(n)
	if err == io.EOF && len(p) > 0 {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// ReadN reads and returns the next n bytes.
func (r *Reader) ReadN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	buf := make([]byte, n)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.ReadFull(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

func (r *Reader) U16() (uint16, error)  { return read[uint16](r) }
func (r *Reader) I16() (int16, error)   { return read[int16](r) }
func (r *Reader) U32() (uint32, error)  { return read[uint32](r) }
func (r *Reader) I32() (int32, error)   { return read[int32](r) }
func (r *Reader) U64() (uint64, error)  { return read[uint64](r) }
func (r *Reader) I64() (int64, error)   { return read[int64](r) }
func (r *Reader) F32() (float32, error) { return read[float32](r) }
func (r *Reader) F64() (float64, error) { return read[float64](r) }

// F32s fills dst with consecutive float32 values.
func (r *Reader) F32s(dst []float32) error {
	for i := range dst {
		v, err := r.F32()
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

// I32s fills dst with consecutive int32 values.
func (r *Reader) I32s(dst []int32) error {
	for i := range dst {
		v, err := r.I32()
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func read[T endian.Scalar](r *Reader) (T, error) {
	n := endian.Size[T]()
	if err := r.ReadFull(r.buf[:n]); err != nil {
		var zero T
		return zero, err
	}
	return endian.Get[T](r.order, r.buf[:n]), nil
}

// Remaining returns the number of unread bytes, or -1 when the stream length
// is unknown.
func (r *Reader) Remaining() int64 {
	if r.size <= 0 {
		return -1
	}
	return r.size - r.off
}
