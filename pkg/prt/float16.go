package prt

import "math"

// halfToFloat32 widens an IEEE 754 binary16 value. Subnormals flush to zero.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	mant := uint32(h & 0x3FF)

	var bits uint32
	switch exp {
	case 0:
		bits = sign << 31
	case 0x1F:
		bits = sign<<31 | 0x7F800000 | mant<<13
	default:
		bits = sign<<31 | (exp+127-15)<<23 | mant<<13
	}
	return math.Float32frombits(bits)
}
