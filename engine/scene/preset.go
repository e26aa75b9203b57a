package scene

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Preset selects one of the built-in scene constructors.
type Preset int

const (
	PresetDefault Preset = iota
	PresetBalls
	PresetBoxStack
	PresetBook
	PresetCornell
)

var presetNames = [...]string{
	PresetDefault:  "default",
	PresetBalls:    "balls",
	PresetBoxStack: "box-stack",
	PresetBook:     "book",
	PresetCornell:  "cornell",
}

// String returns the command line name of the preset.
func (p Preset) String() string {
	if p < 0 || int(p) >= len(presetNames) {
		return fmt.Sprintf("Preset(%d)", int(p))
	}
	return presetNames[p]
}

// Presets returns every preset in declaration order.
func Presets() []Preset {
	out := make([]Preset, len(presetNames))
	for i := range presetNames {
		out[i] = Preset(i)
	}
	return out
}

// ParsePreset resolves a preset by name, ignoring case.
//
// Parameters:
//   - name: the preset name
//
// Returns:
//   - Preset: the preset
//   - error: an error if no preset has that name
func ParsePreset(name string) (Preset, error) {
	for i, n := range presetNames {
		if strings.EqualFold(n, name) {
			return Preset(i), nil
		}
	}
	return 0, fmt.Errorf("scene: unknown preset %q (want one of %s)", name, strings.Join(presetNames[:], ", "))
}

// Build constructs the preset. Randomised presets draw from a generator seeded with seed,
// so the same preset and seed always produce the same description.
//
// Parameters:
//   - p: the preset to build
//   - seed: the random seed
//
// Returns:
//   - *Description: the scene
//   - error: an error if p is not a known preset
func Build(p Preset, seed uint64) (*Description, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	switch p {
	case PresetDefault:
		return defaultScene(), nil
	case PresetBalls:
		return ballsScene(rng), nil
	case PresetBoxStack:
		return boxStackScene(rng), nil
	case PresetBook:
		return bookScene(rng), nil
	case PresetCornell:
		return cornellScene(), nil
	default:
		return nil, fmt.Errorf("scene: unknown preset %d", int(p))
	}
}

func defaultScene() *Description {
	return NewDescription(
		WithMaterials(
			NewLambertian(Vec3{0.5, 0.5, 0.9}),
			NewLambertian(Vec3{0.6, 0.1, 0.9}),
			NewMetal(Vec3{1, 1, 1}, 0.22),
			NewDielectric(1.5),
			NewLight(Vec3{1.0, 0.2, 0.2}, 1),
			NewLight(Vec3{0.2, 1.0, 0.2}, 1),
			NewLight(Vec3{0.2, 0.2, 1.0}, 1),
		),
		WithSpheres(
			Sphere{Center: Vec3{0, -40, 0}, Radius: 39, Material: 0},
			Sphere{Center: Vec3{0, 0.2, 0}, Radius: 1, Material: 1},
			Sphere{Center: Vec3{-2, 0.2, 0}, Radius: 1, Material: 2},
			Sphere{Center: Vec3{2, 0.2, 0}, Radius: 1, Material: 3},
		),
		WithQuads(
			Quad{Q: Vec3{-1, 3, -1}, U: Vec3{1, 3, -1}, V: Vec3{-1, 3, 1}, Material: 4},
			Quad{Q: Vec3{-4, 3, -1}, U: Vec3{-2, 3, -1}, V: Vec3{-4, 3, 1}, Material: 5},
			Quad{Q: Vec3{2, 3, -1}, U: Vec3{4, 3, -1}, V: Vec3{2, 3, 1}, Material: 6},
		),
	)
}

func ballsScene(rng *rand.Rand) *Description {
	d := NewDescription(
		WithMaterials(
			NewMetal(Vec3{0.8, 0.8, 0.8}, 0.1),
			NewDielectric(1.5),
			NewLambertian(Vec3{0.8, 0.1, 0.8}),
			NewLambertian(Vec3{0.1, 0.8, 0.1}),
			NewMetal(Vec3{0.2, 0.4, 0.1}, 0),
			NewLight(Vec3{2, 2, 0}, 1),
			NewLight(Vec3{1, 0, 2}, 1),
		),
		WithQuads(
			Quad{Q: Vec3{5, 0, 5}, U: Vec3{5, 0, -5}, V: Vec3{-5, 0, 5}, Material: 2},
			Quad{Q: Vec3{-5, 5, 5}, U: Vec3{-5, 0, 5}, V: Vec3{-5, 5, 0}, Material: 4},
		),
	)
	d.Quads = append(d.Quads, Box(Vec3{0.5, 3.5, 0.5}, Vec3{1, 1, 1}, 4)...)

	for x := -5; x < 5; x += 2 {
		for z := -5; z < 5; z += 2 {
			mat := rng.IntN(len(d.Materials))
			radius := rng.Float32()
			center := Vec3{float32(x), 1, float32(z)}
			d.Spheres = append(d.Spheres, Sphere{Center: center, Radius: radius, Material: mat})
			if d.Materials[mat].Kind == Dielectric {
				d.Spheres = append(d.Spheres, Sphere{Center: center, Radius: -(radius - 0.1), Material: mat})
			}
		}
	}
	return d
}

func boxStackScene(rng *rand.Rand) *Description {
	d := NewDescription()
	jitter := func(s float32) float32 { return (rng.Float32() - 0.5) * 2 * s }

	for x := range 3 {
		for y := range 3 {
			for z := range 3 {
				if rng.Float32() < 0.5 {
					continue
				}
				center := Vec3{
					-1.5 + float32(x) + jitter(0.1),
					-1.5 + float32(y) + jitter(0.1),
					-1.5 + float32(z) + jitter(0.1),
				}

				var m Material
				switch rng.IntN(4) {
				case 0:
					m = NewDielectric(1 + rng.Float32())
				case 1:
					m = NewLambertian(randomHue(rng))
				case 2:
					m = NewMetal(randomHue(rng), rng.Float32())
				default:
					m = NewLight(randomHue(rng), 20*rng.Float32())
				}
				mat := d.AddMaterial(m)

				if rng.Float32() < 0.7 {
					radius := 0.5 * rng.Float32()
					d.Spheres = append(d.Spheres, Sphere{Center: center, Radius: radius, Material: mat})
					if m.Kind == Dielectric {
						d.Spheres = append(d.Spheres, Sphere{Center: center, Radius: -(radius - 0.1), Material: mat})
					}
				} else {
					dims := Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
					d.Quads = append(d.Quads, Box(center, dims, mat)...)
				}
			}
		}
	}

	white := d.AddMaterial(NewLambertian(Vec3{1, 1, 1}))
	mirror := d.AddMaterial(NewMetal(Vec3{1, 1, 1}, 0))
	brushed := d.AddMaterial(NewMetal(Vec3{1, 1, 1}, 0.5))
	d.Quads = append(d.Quads,
		// far
		Quad{Q: Vec3{3, 3, -3}, U: Vec3{-3, 3, -3}, V: Vec3{3, -3, -3}, Material: white},
		// top
		Quad{Q: Vec3{3, 3, 3}, U: Vec3{-3, 3, 3}, V: Vec3{3, 3, -3}, Material: white},
		// bottom
		Quad{Q: Vec3{3, -3, 3}, U: Vec3{3, -3, -3}, V: Vec3{-3, -3, 3}, Material: mirror},
		// left
		Quad{Q: Vec3{-3, 3, 3}, U: Vec3{-3, -3, 3}, V: Vec3{-3, 3, -3}, Material: brushed},
		// right
		Quad{Q: Vec3{3, 3, 3}, U: Vec3{3, 3, -3}, V: Vec3{3, -3, 3}, Material: brushed},
	)
	return d
}

func bookScene(rng *rand.Rand) *Description {
	d := NewDescription(WithBackground(Vec3{0.1, 0.1, 0.1}))
	ground := d.AddMaterial(NewLambertian(Vec3{0.5, 0.5, 0.5}))
	d.Spheres = append(d.Spheres, Sphere{Center: Vec3{0, -1000, 0}, Radius: 1000, Material: ground})

	for a := -11; a < 11; a++ {
		for b := -11; b < 11; b++ {
			center := Vec3{float32(a) + 0.9*rng.Float32(), 0.2, float32(b) + 0.9*rng.Float32()}
			if distance(center, Vec3{0, 0.2, 0}) <= 2.9 {
				continue
			}
			var m Material
			switch pick := rng.Float32(); {
			case pick < 0.7:
				m = NewLambertian(randomHue(rng))
			case pick < 0.8:
				m = NewMetal(Vec3{0.5 + 0.5*rng.Float32(), 0.5 + 0.5*rng.Float32(), 0.5 + 0.5*rng.Float32()}, 0.5*rng.Float32())
			case pick < 0.9:
				m = NewLight(randomHue(rng), 0.5*rng.Float32())
			default:
				m = NewDielectric(1.5)
			}
			d.Spheres = append(d.Spheres, Sphere{Center: center, Radius: 0.2, Material: d.AddMaterial(m)})
		}
	}

	glass := d.AddMaterial(NewDielectric(1.5))
	d.Spheres = append(d.Spheres,
		Sphere{Center: Vec3{-5, 1, 0}, Radius: 1, Material: glass},
		Sphere{Center: Vec3{-5, 1, 0}, Radius: -0.9, Material: glass},
	)
	d.Spheres = append(d.Spheres, Sphere{Center: Vec3{-2, 1, 0}, Radius: 1, Material: d.AddMaterial(NewLight(randomHue(rng), 0.1))})
	d.Spheres = append(d.Spheres, Sphere{Center: Vec3{1, 1, 0}, Radius: 1, Material: d.AddMaterial(NewLambertian(Vec3{0.4, 0.2, 0.1}))})
	d.Spheres = append(d.Spheres, Sphere{Center: Vec3{4, 1, 0}, Radius: 1, Material: d.AddMaterial(NewMetal(Vec3{0.7, 0.6, 0.5}, 0))})
	return d
}

// cornellScene is an open-fronted box facing +z with a ceiling light, one glass sphere and two blocks.
func cornellScene() *Description {
	d := NewDescription()
	red := d.AddMaterial(NewLambertian(Vec3{0.65, 0.05, 0.05}))
	white := d.AddMaterial(NewLambertian(Vec3{0.73, 0.73, 0.73}))
	green := d.AddMaterial(NewLambertian(Vec3{0.12, 0.45, 0.15}))
	light := d.AddMaterial(NewLight(Vec3{1, 1, 1}, 15))
	glass := d.AddMaterial(NewDielectric(1.5))
	alu := d.AddMaterial(NewMetal(Vec3{0.8, 0.85, 0.88}, 0.05))

	d.Quads = append(d.Quads,
		// left, right
		Quad{Q: Vec3{-2, -1, 2}, U: Vec3{-2, -1, -2}, V: Vec3{-2, 3, 2}, Material: red},
		Quad{Q: Vec3{2, -1, -2}, U: Vec3{2, -1, 2}, V: Vec3{2, 3, -2}, Material: green},
		// floor, ceiling, back
		Quad{Q: Vec3{-2, -1, 2}, U: Vec3{2, -1, 2}, V: Vec3{-2, -1, -2}, Material: white},
		Quad{Q: Vec3{-2, 3, -2}, U: Vec3{2, 3, -2}, V: Vec3{-2, 3, 2}, Material: white},
		Quad{Q: Vec3{-2, -1, -2}, U: Vec3{2, -1, -2}, V: Vec3{-2, 3, -2}, Material: white},
		// light, just below the ceiling
		Quad{Q: Vec3{-0.5, 2.99, -0.5}, U: Vec3{0.5, 2.99, -0.5}, V: Vec3{-0.5, 2.99, 0.5}, Material: light},
	)
	d.Quads = append(d.Quads, Box(Vec3{-0.8, 0.2, -0.8}, Vec3{1.1, 2.4, 1.1}, white)...)
	d.Quads = append(d.Quads, Box(Vec3{0.9, -0.45, 0.6}, Vec3{0.9, 1.1, 0.9}, alu)...)
	d.Spheres = append(d.Spheres, Sphere{Center: Vec3{0.9, 0.6, 0.6}, Radius: 0.5, Material: glass})
	return d
}

func randomHue(rng *rand.Rand) Vec3 {
	return HSL(rng.Float32(), 1, 0.5)
}

func distance(a, b Vec3) float32 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}
