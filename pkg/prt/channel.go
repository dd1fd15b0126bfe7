package prt

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/vfxbuddies/buddies/internal/binio"
	"github.com/vfxbuddies/buddies/pkg/endian"
)

var validName = regexp.MustCompile(`^[A-Za-z_][0-9A-Za-z_]*$`)

// Channel is one named, typed component group of every particle record.
type Channel struct {
	Name   string
	Type   DataType
	Arity  int
	Offset int
}

// Size returns the byte size of the channel within one particle record.
func (c Channel) Size() int { return c.Type.Size() * c.Arity }

// Supported reports whether the writer can emit (t, arity). Readers accept
// every wire type.
func Supported(t DataType, arity int) bool {
	switch arity {
	case 1:
		return t == Float32 || t == Int32 || t == Int64
	case 3:
		return t == Float32 || t == Int32
	}
	return false
}

// ValidName reports whether name can be stored in a channel record.
func ValidName(name string) bool {
	return len(name) <= MaxNameLen && validName.MatchString(name)
}

// ChannelSet assigns byte offsets to channels in insertion order.
type ChannelSet struct {
	channels []Channel
	index    map[string]int
	stride   int
}

// Add appends a channel after the previous ones.
func (s *ChannelSet) Add(name string, t DataType, arity int) (Channel, error) {
	if !ValidName(name) {
		return Channel{}, fmt.Errorf("%w: invalid channel name %q", ErrFormat, name)
	}
	if !Supported(t, arity) {
		return Channel{}, fmt.Errorf("%w: channel %q is %s x %d", ErrUnsupportedType, name, t, arity)
	}
	if _, dup := s.index[name]; dup {
		return Channel{}, fmt.Errorf("%w: duplicate channel %q", ErrFormat, name)
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	c := Channel{Name: name, Type: t, Arity: arity, Offset: s.stride}
	s.index[name] = len(s.channels)
	s.channels = append(s.channels, c)
	s.stride += c.Size()
	return c, nil
}

// Len returns the number of channels.
func (s *ChannelSet) Len() int { return len(s.channels) }

// Stride returns the size of one particle record.
func (s *ChannelSet) Stride() int { return s.stride }

// Channels returns the channels in record order.
func (s *ChannelSet) Channels() []Channel {
	return append([]Channel(nil), s.channels...)
}

// Lookup finds a channel by name.
func (s *ChannelSet) Lookup(name string) (Channel, bool) {
	i, ok := s.index[name]
	if !ok {
		return Channel{}, false
	}
	return s.channels[i], true
}

// EncodeChannels writes the reserved block and the channel table.
func EncodeChannels(w *binio.Writer, channels []Channel) error {
	w.I32(reservedValue)
	w.I32(int32(len(channels)))
	w.I32(ChannelRecordSize)
	for _, c := range channels {
		name := c.Name[:min(len(c.Name), MaxNameLen)]
		w.Bytes([]byte(name))
		w.Zeros(nameFieldSize - len(name))
		w.I32(int32(c.Type))
		w.I32(int32(c.Arity))
		w.I32(int32(c.Offset))
	}
	if err := w.Err(); err != nil {
		return fmt.Errorf("%w: write channel table: %v", ErrIO, err)
	}
	return nil
}

// DecodeChannels reads the reserved block and the channel table and returns
// the channels together with the particle stride.
func DecodeChannels(r *binio.Reader) ([]Channel, int, error) {
	reserved, err := r.I32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read reserved block: %v", ErrIO, err)
	}
	if reserved != reservedValue {
		return nil, 0, fmt.Errorf("%w: reserved block is %d, want %d", ErrFormat, reserved, reservedValue)
	}
	count, err := r.I32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read channel count: %v", ErrIO, err)
	}
	structSize, err := r.I32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read channel record size: %v", ErrIO, err)
	}
	if structSize != ChannelRecordSize {
		return nil, 0, fmt.Errorf("%w: channel record size %d, want %d", ErrFormat, structSize, ChannelRecordSize)
	}
	if count < 0 {
		return nil, 0, fmt.Errorf("%w: negative channel count %d", ErrFormat, count)
	}
	if rem := r.Remaining(); rem >= 0 && int64(count)*ChannelRecordSize > rem {
		return nil, 0, fmt.Errorf("%w: %d channels do not fit in %d bytes", ErrFormat, count, rem)
	}

	channels := make([]Channel, 0, count)
	seen := make(map[string]struct{}, count)
	stride := 0
	var rec [ChannelRecordSize]byte
	for i := range int(count) {
		if err := r.ReadFull(rec[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: read channel %d: %v", ErrIO, i, err)
		}
		c, err := decodeChannel(rec[:])
		if err != nil {
			return nil, 0, fmt.Errorf("channel %d: %w", i, err)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, 0, fmt.Errorf("%w: duplicate channel %q", ErrFormat, c.Name)
		}
		seen[c.Name] = struct{}{}
		channels = append(channels, c)
		stride += c.Size()
	}
	for _, c := range channels {
		if c.Offset+c.Size() > stride {
			return nil, 0, fmt.Errorf("%w: channel %q at offset %d overruns the %d byte record", ErrFormat, c.Name, c.Offset, stride)
		}
	}
	return channels, stride, nil
}

func decodeChannel(rec []byte) (Channel, error) {
	name := rec[:nameFieldSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	off := nameFieldSize
	t := DataType(endian.Get[int32](order, rec[off:]))
	arity := endian.Get[int32](order, rec[off+4:])
	offset := endian.Get[int32](order, rec[off+8:])

	c := Channel{Name: string(name), Type: t, Arity: int(arity), Offset: int(offset)}
	switch {
	case c.Name == "":
		return c, fmt.Errorf("%w: empty channel name", ErrFormat)
	case !t.Valid():
		return c, fmt.Errorf("%w: channel %q has unknown type %d", ErrFormat, c.Name, int32(t))
	case arity < 1:
		return c, fmt.Errorf("%w: channel %q has arity %d", ErrFormat, c.Name, arity)
	case offset < 0:
		return c, fmt.Errorf("%w: channel %q has offset %d", ErrFormat, c.Name, offset)
	}
	return c, nil
}
