package binio

import (
	"bufio"
	"io"

	"github.com/vfxbuddies/buddies/pkg/endian"
)

const writerBufSize = 1 << 16

// Writer encodes fixed-width scalars to a stream in a declared byte order.
//
// The first write error is sticky: later writes become no-ops and Err and
// Flush report it. Callers check once per phase instead of per field.
type Writer struct {
	w     *bufio.Writer
	order endian.Order
	n     int64
	err   error
	buf   [8]byte
}

// NewWriter wraps w with a buffered encoder.
func NewWriter(w io.Writer, order endian.Order) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, writerBufSize), order: order}
}

// Written returns the number of bytes accepted so far.
func (w *Writer) Written() int64 { return w.n }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Flush pushes buffered bytes to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// Bytes writes p verbatim.
func (w *Writer) Bytes(p []byte) {
	if w.err != nil || len(p) == 0 {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	w.err = err
}

var zeroBlock [64]byte

// Zeros writes n zero bytes.
func (w *Writer) Zeros(n int) {
	for n > 0 && w.err == nil {
		k := min(n, len(zeroBlock))
		w.Bytes(zeroBlock[:k])
		n -= k
	}
}

func (w *Writer) U8(v uint8) {
	if w.err != nil {
		return
	}
	w.err = w.w.WriteByte(v)
	if w.err == nil {
		w.n++
	}
}

func (w *Writer) U16(v uint16)  { write(w, v) }
func (w *Writer) I16(v int16)   { write(w, v) }
func (w *Writer) U32(v uint32)  { write(w, v) }
func (w *Writer) I32(v int32)   { write(w, v) }
func (w *Writer) U64(v uint64)  { write(w, v) }
func (w *Writer) I64(v int64)   { write(w, v) }
func (w *Writer) F32(v float32) { write(w, v) }
func (w *Writer) F64(v float64) { write(w, v) }

// F32s writes consecutive float32 values.
func (w *Writer) F32s(vs []float32) {
	for _, v := range vs {
		write(w, v)
	}
}

// I32s writes consecutive int32 values.
func (w *Writer) I32s(vs []int32) {
	for _, v := range vs {
		write(w, v)
	}
}

func write[T endian.Scalar](w *Writer, v T) {
	n := endian.Size[T]()
	endian.Put(w.order, w.buf[:n], v)
	w.Bytes(w.buf[:n])
}
