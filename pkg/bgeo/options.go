package bgeo

import "github.com/vfxbuddies/buddies/internal/logger"

// Option configures a reader or writer session.
type Option func(*options)

type options struct {
	log         logger.Logger
	cornerSplit bool
}

func newOptions(opts []Option) options {
	o := options{log: logger.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithLogger routes session diagnostics to l.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithCornerSplit makes the writer store every vertex attribute as three
// per-corner descriptors (name_corner0..2). Readers merge them back.
func WithCornerSplit() Option {
	return func(o *options) { o.cornerSplit = true }
}
