package prt

import "errors"

var (
	ErrIO              = errors.New("prt: i/o error")
	ErrFormat          = errors.New("prt: malformed container")
	ErrUnsupportedType = errors.New("prt: unsupported channel type")
	ErrOutOfRange      = errors.New("prt: value out of range")
	ErrCompression     = errors.New("prt: compression error")
)
