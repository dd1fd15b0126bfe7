package bgeo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vfxbuddies/buddies/internal/binio"
)

// AttribType is the attribute type tag stored in an attribute descriptor.
type AttribType uint16

const (
	TypeFloat  AttribType = 0
	TypeInt    AttribType = 1
	typeString AttribType = 2
	typeMixed  AttribType = 3
	typeIndex  AttribType = 4
	// TypeVector is wire-identical to three floats but keeps its own tag.
	TypeVector AttribType = 5
)

func (t AttribType) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeInt:
		return "int"
	case typeString:
		return "string"
	case typeMixed:
		return "mixed"
	case typeIndex:
		return "index"
	case TypeVector:
		return "vector"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// IsFloat reports whether values of this type are stored as float32.
func (t AttribType) IsFloat() bool { return t == TypeFloat || t == TypeVector }

// ElemSize is the per-component byte size of every supported attribute type.
const ElemSize = 4

// ByteSize returns the encoded size of one value of the given type and
// arity. A vector counts as three 4-byte components, the same as three floats.
func ByteSize(t AttribType, arity int) int {
	return ElemSize * arity
}

// CornerMarker joins a vertex attribute name to its corner slot when an
// attribute is split per triangle corner, e.g. "uv_corner1".
const CornerMarker = "_corner"

// Values holds attribute data in declaration order. Float and vector
// attributes use F, integer attributes use I.
type Values struct {
	F []float32
	I []int32
}

// Floats wraps float data.
func Floats(v ...float32) Values { return Values{F: v} }

// Ints wraps integer data.
func Ints(v ...int32) Values { return Values{I: v} }

// Len returns the number of stored components.
func (v Values) Len() int {
	if v.F != nil {
		return len(v.F)
	}
	return len(v.I)
}

// Attribute describes one named, typed, fixed-arity attribute.
type Attribute struct {
	Name    string
	Type    AttribType
	Arity   int
	Default Values
}

// FloatAttr declares a float attribute whose arity is the length of def.
func FloatAttr(name string, def ...float32) Attribute {
	return Attribute{Name: name, Type: TypeFloat, Arity: len(def), Default: Floats(def...)}
}

// IntAttr declares an integer attribute whose arity is the length of def.
func IntAttr(name string, def ...int32) Attribute {
	return Attribute{Name: name, Type: TypeInt, Arity: len(def), Default: Ints(def...)}
}

// VectorAttr declares a three component vector attribute.
func VectorAttr(name string, x, y, z float32) Attribute {
	return Attribute{Name: name, Type: TypeVector, Arity: 3, Default: Floats(x, y, z)}
}

// ByteSize returns the encoded size of one value of the attribute.
func (a Attribute) ByteSize() int { return ByteSize(a.Type, a.Arity) }

// Validate checks that the descriptor is representable on disk.
func (a Attribute) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: empty attribute name", ErrFormat)
	}
	if len(a.Name) > math.MaxUint16 {
		return fmt.Errorf("%w: attribute name too long (%d bytes)", ErrFormat, len(a.Name))
	}
	switch a.Type {
	case TypeFloat, TypeInt:
	case TypeVector:
		if a.Arity != 3 {
			return fmt.Errorf("%w: vector attribute %q must have arity 3, got %d", ErrFormat, a.Name, a.Arity)
		}
	default:
		return fmt.Errorf("%w: attribute %q has type %s", ErrUnsupportedType, a.Name, a.Type)
	}
	if a.Arity != 1 && a.Arity != 3 {
		return fmt.Errorf("%w: attribute %q arity %d (want 1 or 3)", ErrFormat, a.Name, a.Arity)
	}
	if n := a.Default.Len(); n != 0 && n != a.Arity {
		return fmt.Errorf("%w: attribute %q default has %d components, arity %d", ErrFormat, a.Name, n, a.Arity)
	}
	if a.Type.IsFloat() && a.Default.I != nil || !a.Type.IsFloat() && a.Default.F != nil {
		return fmt.Errorf("%w: attribute %q default does not match type %s", ErrFormat, a.Name, a.Type)
	}
	return nil
}

// defaults returns the default value, zero filled when none was declared.
func (a Attribute) defaults() Values {
	if a.Default.Len() == a.Arity {
		return a.Default
	}
	if a.Type.IsFloat() {
		return Values{F: make([]float32, a.Arity)}
	}
	return Values{I: make([]int32, a.Arity)}
}

// checkColumn verifies that col holds exactly n values of the attribute.
func (a Attribute) checkColumn(col Values, n int) error {
	want := n * a.Arity
	var got int
	if a.Type.IsFloat() {
		got = len(col.F)
	} else {
		got = len(col.I)
	}
	if got != want {
		return fmt.Errorf("%w: attribute %q column has %d components, want %d", ErrOutOfRange, a.Name, got, want)
	}
	return nil
}

// EncodedSize returns the number of bytes WriteAttribute emits for a.
func (a Attribute) EncodedSize() int {
	return 2 + len(a.Name) + 2 + 2 + 2 + a.ByteSize()
}

// TableByteSize returns the encoded size of a descriptor table.
func TableByteSize(attrs []Attribute) int {
	n := 0
	for _, a := range attrs {
		n += a.EncodedSize()
	}
	return n
}

// WriteAttribute encodes one descriptor:
// {nameLen u16, name, arity u16, typeInfo u16 = 0, type u16, default arity x 4 bytes}.
func WriteAttribute(w *binio.Writer, a Attribute) error {
	if err := a.Validate(); err != nil {
		return err
	}
	w.U16(uint16(len(a.Name)))
	w.Bytes([]byte(a.Name))
	w.U16(uint16(a.Arity))
	w.U16(0)
	w.U16(uint16(a.Type))
	writeValue(w, a.Type, a.defaults(), 0, a.Arity)
	if err := w.Err(); err != nil {
		return fmt.Errorf("%w: write attribute %q: %v", ErrIO, a.Name, err)
	}
	return nil
}

// ReadAttribute decodes one descriptor written by WriteAttribute.
func ReadAttribute(r *binio.Reader) (Attribute, error) {
	nameLen, err := r.U16()
	if err != nil {
		return Attribute{}, ioErr("attribute name length", err)
	}
	name, err := r.ReadN(int(nameLen))
	if err != nil {
		return Attribute{}, ioErr("attribute name", err)
	}
	arity, err := r.U16()
	if err != nil {
		return Attribute{}, ioErr("attribute arity", err)
	}
	if _, err := r.U16(); err != nil {
		return Attribute{}, ioErr("attribute type info", err)
	}
	raw, err := r.U16()
	if err != nil {
		return Attribute{}, ioErr("attribute type", err)
	}
	a := Attribute{Name: string(name), Type: AttribType(raw), Arity: int(arity)}
	switch a.Type {
	case TypeFloat, TypeInt, TypeVector:
	case typeString, typeMixed, typeIndex:
		return Attribute{}, fmt.Errorf("%w: attribute %q has type %s: %w", ErrFormat, a.Name, a.Type, ErrUnsupportedType)
	default:
		return Attribute{}, fmt.Errorf("%w: attribute %q has unknown type %d", ErrFormat, a.Name, raw)
	}
	if a.Arity != 1 && a.Arity != 3 || a.Type == TypeVector && a.Arity != 3 {
		return Attribute{}, fmt.Errorf("%w: attribute %q has arity %d", ErrFormat, a.Name, a.Arity)
	}
	if a.Type.IsFloat() {
		a.Default.F = make([]float32, a.Arity)
		err = r.F32s(a.Default.F)
	} else {
		a.Default.I = make([]int32, a.Arity)
		err = r.I32s(a.Default.I)
	}
	if err != nil {
		return Attribute{}, ioErr("attribute default", err)
	}
	return a, nil
}

func writeValue(w *binio.Writer, t AttribType, col Values, i, arity int) {
	if t.IsFloat() {
		w.F32s(col.F[i*arity : (i+1)*arity])
		return
	}
	w.I32s(col.I[i*arity : (i+1)*arity])
}

// cornerName returns the on-disk name of corner slot k of a split attribute.
func cornerName(name string, k int) string {
	return name + CornerMarker + strconv.Itoa(k)
}

// splitCornerName reports the logical name and corner slot encoded in name.
func splitCornerName(name string) (string, int, bool) {
	i := strings.LastIndex(name, CornerMarker)
	if i <= 0 {
		return "", 0, false
	}
	k, err := strconv.Atoi(name[i+len(CornerMarker):])
	if err != nil || k < 0 || k >= VertsPerTriangle {
		return "", 0, false
	}
	return name[:i], k, true
}

// splitCorners expands each logical vertex attribute into one descriptor per
// triangle corner.
func splitCorners(attrs []Attribute) []Attribute {
	out := make([]Attribute, 0, len(attrs)*VertsPerTriangle)
	for _, a := range attrs {
		for k := range VertsPerTriangle {
			c := a
			c.Name = cornerName(a.Name, k)
			out = append(out, c)
		}
	}
	return out
}

// cornerLayout maps logical vertex attributes onto on-disk descriptors. For a
// merged attribute slots holds the disk index of each corner variant; for a
// plain one every slot holds the same index.
type cornerLayout struct {
	logical []Attribute
	slots   [][VertsPerTriangle]int
}

// mergeCorners collapses descriptor triples named base_corner0..2 with equal
// type and arity into one logical attribute named base.
func mergeCorners(disk []Attribute) cornerLayout {
	type group struct {
		idx  [VertsPerTriangle]int
		seen int
	}
	groups := make(map[string]*group)
	for i, a := range disk {
		base, k, ok := splitCornerName(a.Name)
		if !ok {
			continue
		}
		g := groups[base]
		if g == nil {
			g = &group{idx: [VertsPerTriangle]int{-1, -1, -1}}
			groups[base] = g
		}
		if g.idx[k] == -1 {
			g.idx[k] = i
			g.seen++
		}
	}

	merged := make(map[int]bool)
	complete := make(map[string]bool)
	for base, g := range groups {
		if g.seen != VertsPerTriangle {
			continue
		}
		first := disk[g.idx[0]]
		ok := true
		for _, di := range g.idx[1:] {
			if disk[di].Type != first.Type || disk[di].Arity != first.Arity {
				ok = false
			}
		}
		if !ok {
			continue
		}
		complete[base] = true
		for _, di := range g.idx {
			merged[di] = true
		}
	}

	var layout cornerLayout
	for i, a := range disk {
		if !merged[i] {
			layout.logical = append(layout.logical, a)
			layout.slots = append(layout.slots, [VertsPerTriangle]int{i, i, i})
			continue
		}
		base, k, _ := splitCornerName(a.Name)
		if k != 0 || !complete[base] {
			continue
		}
		l := a
		l.Name = base
		layout.logical = append(layout.logical, l)
		layout.slots = append(layout.slots, groups[base].idx)
	}
	return layout
}
