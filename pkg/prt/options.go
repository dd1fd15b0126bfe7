package prt

import "github.com/vfxbuddies/buddies/internal/logger"

// Option configures a reader or writer session.
type Option func(*options)

// DefaultMaxBuffer bounds the uncompressed particle buffer a Writer will
// allocate.
const DefaultMaxBuffer int64 = 16 << 30

type options struct {
	log       logger.Logger
	maxBuffer int64
}

func newOptions(opts []Option) options {
	o := options{log: logger.Nop(), maxBuffer: DefaultMaxBuffer}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithLogger routes session diagnostics, such as skipped channels, to l.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxBuffer changes the largest count*stride Allocate accepts. Values
// below one are ignored.
func WithMaxBuffer(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBuffer = n
		}
	}
}
