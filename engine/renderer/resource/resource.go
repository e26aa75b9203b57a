// Package resource declares the opaque GPU resource handles the renderer hands out to stages.
// Handles own their device objects and must be released by whoever created them.
package resource

import "github.com/cogentcore/webgpu/wgpu"

// Buffer is a device buffer handle.
type Buffer interface {
	// Label returns the debug label given at creation.
	Label() string

	// Size returns the size of the buffer in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() wgpu.BufferUsage

	// Release frees the device buffer. Calling Release twice is a no-op.
	Release()
}

// Texture is a 2-D device texture handle together with its default view.
type Texture interface {
	// Label returns the debug label given at creation.
	Label() string

	// Width returns the width of the texture in texels.
	Width() uint32

	// Height returns the height of the texture in texels.
	Height() uint32

	// Format returns the texel format.
	Format() wgpu.TextureFormat

	// Release frees the view and the texture. Calling Release twice is a no-op.
	Release()
}

// QuerySet is a timestamp query set handle.
type QuerySet interface {
	// Label returns the debug label given at creation.
	Label() string

	// Count returns the number of queries in the set.
	Count() uint32

	// Release frees the query set.
	Release()
}

// Sampler is a texture sampler handle.
type Sampler interface {
	// Release frees the sampler.
	Release()
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage wgpu.BufferUsage
}

// TextureDescriptor describes a 2-D, single mip, single sample texture to create.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format wgpu.TextureFormat
	Usage  wgpu.TextureUsage
}

// BytesPerTexel returns the texel size for the formats the engine allocates, or 0 if unknown.
//
// Parameters:
//   - format: the texture format
//
// Returns:
//   - uint32: bytes per texel
func BytesPerTexel(format wgpu.TextureFormat) uint32 {
	switch format {
	case wgpu.TextureFormatRGBA8Unorm, wgpu.TextureFormatRGBA8UnormSrgb, wgpu.TextureFormatBGRA8Unorm:
		return 4
	case wgpu.TextureFormatRGBA16Float:
		return 8
	case wgpu.TextureFormatRGBA32Float:
		return 16
	}
	return 0
}
