// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// TextureStagingData holds RGBA8 pixel data for a sampled texture binding pending GPU upload.
// The trace kernel's reference noise texture is staged through this before InitTextureView creates the GPU texture.
type TextureStagingData struct {
	// Pixels is the RGBA pixel data, 4 bytes per pixel, tightly packed rows.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// Validate reports whether the pixel slice matches the declared dimensions.
//
// Returns:
//   - bool: true if len(Pixels) == Width*Height*4 and both dimensions are non-zero
func (t TextureStagingData) Validate() bool {
	return t.Width > 0 && t.Height > 0 && len(t.Pixels) == int(t.Width*t.Height*4)
}

// SamplerStagingData holds the configuration for a sampler binding pending GPU creation.
// Zero values are replaced with the renderer defaults (clamp-to-edge, linear filtering).
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range.
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail.
	LodMinClamp, LodMaxClamp float32
}

// WithDefaults returns a copy with every zero field replaced by the renderer default.
func (s SamplerStagingData) WithDefaults() SamplerStagingData {
	s.AddressModeU = orDefault(s.AddressModeU, wgpu.AddressModeClampToEdge)
	s.AddressModeV = orDefault(s.AddressModeV, wgpu.AddressModeClampToEdge)
	s.AddressModeW = orDefault(s.AddressModeW, wgpu.AddressModeClampToEdge)
	s.MagFilter = orDefault(s.MagFilter, wgpu.FilterModeLinear)
	s.MinFilter = orDefault(s.MinFilter, wgpu.FilterModeLinear)
	s.MipmapFilter = orDefault(s.MipmapFilter, wgpu.MipmapFilterModeLinear)
	s.LodMaxClamp = orDefault(s.LodMaxClamp, 32)
	return s
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
