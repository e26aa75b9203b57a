package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMaterials is returned when a description declares no materials.
	ErrNoMaterials = errors.New("scene: at least one material is required")
	// ErrInvalidMaterialIndex is returned when a shape references a material that does not exist.
	ErrInvalidMaterialIndex = errors.New("scene: invalid material index")
	// ErrInvalidMaterialKind is returned when a material has a kind the trace kernel does not know.
	ErrInvalidMaterialKind = errors.New("scene: invalid material kind")
)

// Vec3 is a point, direction or linear RGB color.
type Vec3 [3]float32

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// MaterialKind selects the scattering model the trace kernel applies to a material.
// The numeric values are shared with the kernel constants of the same name.
type MaterialKind uint32

const (
	Metal MaterialKind = iota
	Lambertian
	Dielectric
	DiffuseLight
)

// String returns the kernel constant name for the kind.
func (k MaterialKind) String() string {
	switch k {
	case Metal:
		return "METAL"
	case Lambertian:
		return "LAMBERTIAN"
	case Dielectric:
		return "DIELECTRIC"
	case DiffuseLight:
		return "DIFFUSELIGHT"
	default:
		return fmt.Sprintf("MaterialKind(%d)", uint32(k))
	}
}

// ShapeKind tags the shape list a Light points into.
type ShapeKind uint32

const (
	ShapeSphere ShapeKind = iota
	ShapeQuad
)

// String returns the kernel constant name for the kind.
func (k ShapeKind) String() string {
	switch k {
	case ShapeSphere:
		return "SHAPE_SPHERE"
	case ShapeQuad:
		return "SHAPE_QUAD"
	default:
		return fmt.Sprintf("ShapeKind(%d)", uint32(k))
	}
}

// Material describes how light scatters off a surface.
type Material struct {
	Color Vec3
	Kind  MaterialKind
	// Fuzz perturbs metal reflections; 0 is a perfect mirror.
	Fuzz float32
	// IOR is the index of refraction, used only by dielectrics.
	IOR float32
}

// Sphere is a sphere primitive. A negative radius flips the surface normal, which is how
// hollow glass is built from two concentric dielectric spheres.
type Sphere struct {
	Center   Vec3
	Radius   float32
	Material int
}

// Quad is a parallelogram given by three corner points: Q is the shared corner,
// U and V are the corners adjacent to it.
type Quad struct {
	Q        Vec3
	U        Vec3
	V        Vec3
	Material int
}

// Light points at an emissive shape so the kernel can sample it directly.
type Light struct {
	Kind  ShapeKind
	Index int
}

// Stats summarises the size of a description.
type Stats struct {
	Materials int
	Spheres   int
	Quads     int
	Lights    int
}

// Description is a declarative scene: materials plus the shapes that reference them.
// It is built once at startup and compiled into the trace kernel.
type Description struct {
	Materials  []Material
	Spheres    []Sphere
	Quads      []Quad
	Background Vec3
}

// Validate checks that every material has a known kind and every shape references an
// existing material.
//
// Returns:
//   - error: ErrNoMaterials, a wrapped ErrInvalidMaterialKind or ErrInvalidMaterialIndex, nil if the description is usable
func (d *Description) Validate() error {
	if len(d.Materials) == 0 {
		return ErrNoMaterials
	}
	for i, m := range d.Materials {
		if m.Kind > DiffuseLight {
			return fmt.Errorf("material %d has kind %d: %w", i, uint32(m.Kind), ErrInvalidMaterialKind)
		}
	}
	for i, s := range d.Spheres {
		if s.Material < 0 || s.Material >= len(d.Materials) {
			return fmt.Errorf("sphere %d references material %d of %d: %w", i, s.Material, len(d.Materials), ErrInvalidMaterialIndex)
		}
	}
	for i, q := range d.Quads {
		if q.Material < 0 || q.Material >= len(d.Materials) {
			return fmt.Errorf("quad %d references material %d of %d: %w", i, q.Material, len(d.Materials), ErrInvalidMaterialIndex)
		}
	}
	return nil
}

// Lights collects every shape whose material is a DiffuseLight, spheres first and then quads,
// each in declaration order. Shapes with an out-of-range material are ignored.
//
// Returns:
//   - []Light: the derived light list
func (d *Description) Lights() []Light {
	var lights []Light
	for i, s := range d.Spheres {
		if d.emissive(s.Material) {
			lights = append(lights, Light{Kind: ShapeSphere, Index: i})
		}
	}
	for i, q := range d.Quads {
		if d.emissive(q.Material) {
			lights = append(lights, Light{Kind: ShapeQuad, Index: i})
		}
	}
	return lights
}

// Stats returns the element counts of the description.
func (d *Description) Stats() Stats {
	return Stats{
		Materials: len(d.Materials),
		Spheres:   len(d.Spheres),
		Quads:     len(d.Quads),
		Lights:    len(d.Lights()),
	}
}

func (d *Description) emissive(material int) bool {
	return material >= 0 && material < len(d.Materials) && d.Materials[material].Kind == DiffuseLight
}
