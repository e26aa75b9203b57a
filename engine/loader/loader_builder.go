package loader

import (
	"image"
	"io"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"golang.org/x/image/draw"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithScaler sets the interpolator used to fit decoded images to the requested size.
//
// Parameters:
//   - s: the scaler, draw.CatmullRom by default
//
// Returns:
//   - LoaderBuilderOption: a function that applies the scaler option to a loader
func WithScaler(s draw.Scaler) LoaderBuilderOption {
	return func(l *loader) {
		l.scaler = s
	}
}

// WithDecoder registers an extra decoder for the given extensions, replacing any existing one.
//
// Parameters:
//   - name: the format name
//   - decode: the decode function
//   - extensions: lower-case extensions including the dot
//
// Returns:
//   - LoaderBuilderOption: a function that applies the decoder option to a loader
func WithDecoder(name string, decode func(io.Reader) (image.Image, error), extensions ...string) LoaderBuilderOption {
	return func(l *loader) {
		l.register(&decoderBackend{name: name, exts: extensions, decode: decode})
	}
}

// WithTexture pre-populates the texture cache.
//
// Parameters:
//   - key: the cache key for the texture
//   - tex: the staged texture
//
// Returns:
//   - LoaderBuilderOption: a function that applies the texture option to a loader
func WithTexture(key string, tex common.TextureStagingData) LoaderBuilderOption {
	return func(l *loader) {
		l.textureCache[key] = tex
	}
}
