package bgeo

import "errors"

var (
	ErrIO              = errors.New("bgeo: i/o error")
	ErrFormat          = errors.New("bgeo: malformed container")
	ErrUnsupportedType = errors.New("bgeo: unsupported attribute type")
	ErrOutOfRange      = errors.New("bgeo: value out of range")
)
