package scene

import (
	"fmt"
	"strconv"
	"strings"
)

// Compile renders the description as a block of WGSL declarations, in order: materials,
// spheres, quads, background color and the derived lights. Counts and the background color
// are constants. The lists are private variables named scene_<list> with constant
// initializers, which keeps them indexable at runtime and lets the validator lower the
// nested struct constructors. Empty shape and light lists are declared with capacity 1 so
// the kernel still type-checks; the *_count constants carry the real lengths. The same
// description always produces the same text.
//
// Parameters:
//   - d: the scene to compile
//
// Returns:
//   - string: the WGSL scene block
//   - error: the validation error if d references missing materials
func Compile(d *Description) (string, error) {
	if d == nil {
		return "", ErrNoMaterials
	}
	if err := d.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder

	fmt.Fprintf(&b, "const material_count = %d;\n", len(d.Materials))
	openArray(&b, "scene_materials", "Material", len(d.Materials))
	for _, m := range d.Materials {
		fmt.Fprintf(&b, "    Material(%s, %s, %s, %s),\n", vec3(m.Color), m.Kind, float(m.Fuzz), float(m.IOR))
	}
	b.WriteString(");\n")

	fmt.Fprintf(&b, "const sphere_count = %d;\n", len(d.Spheres))
	if openArray(&b, "scene_spheres", "Sphere", len(d.Spheres)) {
		for _, s := range d.Spheres {
			fmt.Fprintf(&b, "    Sphere(%s, %s, %du),\n", vec3(s.Center), float(s.Radius), s.Material)
		}
		b.WriteString(");\n")
	}

	fmt.Fprintf(&b, "const quad_count = %d;\n", len(d.Quads))
	if openArray(&b, "scene_quads", "Quad", len(d.Quads)) {
		for _, q := range d.Quads {
			fmt.Fprintf(&b, "    Quad(%s, %s, %s, %du),\n", vec3(q.Q), vec3(q.U), vec3(q.V), q.Material)
		}
		b.WriteString(");\n")
	}

	fmt.Fprintf(&b, "const background_color = %s;\n", vec3(d.Background))

	lights := d.Lights()
	fmt.Fprintf(&b, "const light_count = %d;\n", len(lights))
	if openArray(&b, "scene_lights", "Light", len(lights)) {
		for _, l := range lights {
			fmt.Fprintf(&b, "    Light(%s, %du),\n", l.Kind, l.Index)
		}
		b.WriteString(");\n")
	}

	return b.String(), nil
}

// openArray writes the array header. For an empty list it writes a complete zero-valued
// array of length 1 and returns false.
func openArray(b *strings.Builder, name, typ string, n int) bool {
	if n == 0 {
		fmt.Fprintf(b, "var<private> %s = array<%s, 1>();\n", name, typ)
		return false
	}
	fmt.Fprintf(b, "var<private> %s = array<%s, %d>(\n", name, typ, n)
	return true
}

func vec3(v Vec3) string {
	return "vec3f(" + float(v[0]) + ", " + float(v[1]) + ", " + float(v[2]) + ")"
}

// float formats f with the shortest round-tripping representation and always keeps a decimal
// point so the literal is typed as a float.
func float(f float32) string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 32)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
