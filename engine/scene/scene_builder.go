package scene

import "math"

// DescriptionBuilderOption is a functional option for configuring a Description.
// Use the With* functions to create options.
type DescriptionBuilderOption func(d *Description)

// NewDescription creates a Description from the given options.
//
// Parameters:
//   - options: variadic list of DescriptionBuilderOption functions
//
// Returns:
//   - *Description: the new description
func NewDescription(options ...DescriptionBuilderOption) *Description {
	d := &Description{}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// WithMaterials appends materials to the description.
//
// Parameters:
//   - materials: the materials to append
//
// Returns:
//   - DescriptionBuilderOption: option function to apply
func WithMaterials(materials ...Material) DescriptionBuilderOption {
	return func(d *Description) {
		d.Materials = append(d.Materials, materials...)
	}
}

// WithSpheres appends spheres to the description.
//
// Parameters:
//   - spheres: the spheres to append
//
// Returns:
//   - DescriptionBuilderOption: option function to apply
func WithSpheres(spheres ...Sphere) DescriptionBuilderOption {
	return func(d *Description) {
		d.Spheres = append(d.Spheres, spheres...)
	}
}

// WithQuads appends quads to the description.
//
// Parameters:
//   - quads: the quads to append
//
// Returns:
//   - DescriptionBuilderOption: option function to apply
func WithQuads(quads ...Quad) DescriptionBuilderOption {
	return func(d *Description) {
		d.Quads = append(d.Quads, quads...)
	}
}

// WithBackground sets the color returned for rays that escape the scene.
//
// Parameters:
//   - color: the background color
//
// Returns:
//   - DescriptionBuilderOption: option function to apply
func WithBackground(color Vec3) DescriptionBuilderOption {
	return func(d *Description) {
		d.Background = color
	}
}

// AddMaterial appends a material and returns its index.
func (d *Description) AddMaterial(m Material) int {
	d.Materials = append(d.Materials, m)
	return len(d.Materials) - 1
}

// NewLambertian returns a diffuse material.
func NewLambertian(color Vec3) Material {
	return Material{Color: color, Kind: Lambertian}
}

// NewMetal returns a reflective material with the given roughness.
func NewMetal(color Vec3, fuzz float32) Material {
	return Material{Color: color, Kind: Metal, Fuzz: fuzz}
}

// NewDielectric returns a clear refractive material.
func NewDielectric(ior float32) Material {
	return Material{Kind: Dielectric, IOR: ior}
}

// NewLight returns an emissive material whose radiance is color scaled by intensity.
func NewLight(color Vec3, intensity float32) Material {
	return Material{Color: color.Scale(intensity), Kind: DiffuseLight}
}

// Box returns the six faces of an axis-aligned box.
//
// Parameters:
//   - center: the box center
//   - dims: the full extent along each axis
//   - material: the material index shared by every face
//
// Returns:
//   - []Quad: the faces, three anchored at the min corner and three at the max corner
func Box(center, dims Vec3, material int) []Quad {
	lo := center.Add(dims.Scale(-0.5))
	hi := center.Add(dims.Scale(0.5))
	return []Quad{
		{Q: lo, U: Vec3{lo[0], lo[1], hi[2]}, V: Vec3{lo[0], hi[1], lo[2]}, Material: material},
		{Q: lo, U: Vec3{hi[0], lo[1], lo[2]}, V: Vec3{lo[0], lo[1], hi[2]}, Material: material},
		{Q: lo, U: Vec3{lo[0], hi[1], lo[2]}, V: Vec3{hi[0], lo[1], lo[2]}, Material: material},
		{Q: hi, U: Vec3{hi[0], lo[1], hi[2]}, V: Vec3{hi[0], hi[1], lo[2]}, Material: material},
		{Q: hi, U: Vec3{hi[0], hi[1], lo[2]}, V: Vec3{lo[0], hi[1], hi[2]}, Material: material},
		{Q: hi, U: Vec3{lo[0], hi[1], hi[2]}, V: Vec3{hi[0], lo[1], hi[2]}, Material: material},
	}
}

// HSL converts a hue in [0, 1) with the given saturation and lightness to linear RGB.
//
// Parameters:
//   - h: hue, wrapped into [0, 1)
//   - s: saturation in [0, 1]
//   - l: lightness in [0, 1]
//
// Returns:
//   - Vec3: the RGB color
func HSL(h, s, l float32) Vec3 {
	if s == 0 {
		return Vec3{l, l, l}
	}
	h -= float32(math.Floor(float64(h)))
	var q float32
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return Vec3{
		hueToChannel(p, q, h+1.0/3),
		hueToChannel(p, q, h),
		hueToChannel(p, q, h-1.0/3),
	}
}

func hueToChannel(p, q, t float32) float32 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}
