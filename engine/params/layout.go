package params

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// ErrUnsupportedField is returned when a struct field has no WGSL uniform equivalent.
var ErrUnsupportedField = errors.New("params: unsupported field type")

// wgslKind identifies how a Go field is laid out and encoded.
type wgslKind int

const (
	kindF32 wgslKind = iota
	kindI32
	kindU32
	kindVec2f
	kindVec3f
	kindVec4f
)

// kindInfo holds the WGSL spelling, size and alignment of a supported field kind.
type kindInfo struct {
	wgsl  string
	size  uint64
	align uint64
}

var kindInfos = map[wgslKind]kindInfo{
	kindF32:   {"f32", 4, 4},
	kindI32:   {"i32", 4, 4},
	kindU32:   {"u32", 4, 4},
	kindVec2f: {"vec2f", 8, 8},
	kindVec3f: {"vec3f", 12, 16},
	kindVec4f: {"vec4f", 16, 16},
}

// Field is one member of a uniform record as the kernel sees it.
type Field struct {
	// Name is the WGSL member name taken from the `wgsl` struct tag.
	Name string
	// Type is the WGSL type spelling.
	Type string
	// Offset is the byte offset of the member inside the record.
	Offset uint64
	// Size is the byte size of the member.
	Size uint64

	kind  wgslKind
	index int
}

// Layout is the single description of a uniform record shared by the Go encoder and the
// WGSL struct declaration injected into kernels. Both are derived from the same Go struct,
// so field order and total size cannot drift apart.
type Layout struct {
	// Name is the WGSL struct name.
	Name string
	// Fields are the members in declaration order.
	Fields []Field
	// Size is the WGSL struct size, rounded up to Align.
	Size uint64
	// Align is the largest member alignment.
	Align uint64

	goType reflect.Type
}

// NewLayout reflects over a struct type whose exported fields carry `wgsl:"name"` tags.
// Fields tagged `wgsl:"-"` or without a tag are skipped.
//
// Parameters:
//   - name: the WGSL struct name to emit
//   - sample: a value (or pointer) of the struct type
//
// Returns:
//   - *Layout: the computed layout
//   - error: ErrUnsupportedField if any tagged field has no WGSL equivalent
func NewLayout(name string, sample any) (*Layout, error) {
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("params: %s is not a struct", t)
	}

	l := &Layout{Name: name, Align: 4, goType: t}
	offset := uint64(0)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("wgsl")
		if tag == "" || tag == "-" || !sf.IsExported() {
			continue
		}
		kind, err := fieldKind(sf.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s (%s)", err, t.Name(), sf.Name, sf.Type)
		}
		info := kindInfos[kind]
		offset = roundUp(info.align, offset)
		l.Fields = append(l.Fields, Field{
			Name:   tag,
			Type:   info.wgsl,
			Offset: offset,
			Size:   info.size,
			kind:   kind,
			index:  i,
		})
		offset += info.size
		l.Align = max(l.Align, info.align)
	}
	if len(l.Fields) == 0 {
		return nil, fmt.Errorf("params: %s has no wgsl tagged fields", t.Name())
	}
	l.Size = roundUp(l.Align, offset)
	return l, nil
}

// MustLayout is like NewLayout but panics on error. Used for package level schema definitions.
func MustLayout(name string, sample any) *Layout {
	l, err := NewLayout(name, sample)
	if err != nil {
		panic(err)
	}
	return l
}

// BufferSize is the uniform buffer allocation size: Size rounded up to 16 bytes.
//
// Returns:
//   - uint64: the buffer size in bytes
func (l *Layout) BufferSize() uint64 {
	return roundUp(16, l.Size)
}

// WGSL renders the struct declaration the kernels include.
//
// Returns:
//   - string: a WGSL struct declaration
func (l *Layout) WGSL() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "struct %s {\n", l.Name)
	for _, f := range l.Fields {
		fmt.Fprintf(&sb, "    %s: %s,\n", f.Name, f.Type)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// Encode serializes v into a BufferSize byte slice in little endian order. Padding is zeroed.
//
// Parameters:
//   - v: a value (or pointer) of the struct type the layout was built from
//
// Returns:
//   - []byte: the encoded record
//   - error: an error if v is not of the layout's type
func (l *Layout) Encode(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Type() != l.goType {
		return nil, fmt.Errorf("params: cannot encode %s with layout for %s", rv.Type(), l.goType)
	}

	out := make([]byte, l.BufferSize())
	for _, f := range l.Fields {
		fv := rv.Field(f.index)
		dst := out[f.Offset:]
		switch f.kind {
		case kindF32:
			binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(fv.Float())))
		case kindI32:
			binary.LittleEndian.PutUint32(dst, uint32(int32(fv.Int())))
		case kindU32:
			binary.LittleEndian.PutUint32(dst, uint32(fv.Uint()))
		case kindVec2f, kindVec3f, kindVec4f:
			for j := 0; j < fv.Len(); j++ {
				binary.LittleEndian.PutUint32(dst[j*4:], math.Float32bits(float32(fv.Index(j).Float())))
			}
		}
	}
	return out, nil
}

func fieldKind(t reflect.Type) (wgslKind, error) {
	switch t.Kind() {
	case reflect.Float32:
		return kindF32, nil
	case reflect.Int32:
		return kindI32, nil
	case reflect.Uint32:
		return kindU32, nil
	case reflect.Array:
		if t.Elem().Kind() != reflect.Float32 {
			break
		}
		switch t.Len() {
		case 2:
			return kindVec2f, nil
		case 3:
			return kindVec3f, nil
		case 4:
			return kindVec4f, nil
		}
	}
	return 0, ErrUnsupportedField
}

func roundUp(align, v uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
