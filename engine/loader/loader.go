// Package loader turns image files into RGBA8 textures for the trace kernel's noise binding.
package loader

import (
	"fmt"
	"image"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/logger"
	"golang.org/x/image/draw"
)

var log = logger.New("loader")

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	textureCache map[string]common.TextureStagingData

	backends map[string]loaderBackend
	scaler   draw.Scaler
}

// Loader decodes, scales and caches textures.
type Loader interface {
	// Load decodes an image file and scales it to width x height. The decoder is chosen by file
	// extension. Results are cached by path and size.
	//
	// Parameters:
	//   - path: the image file path
	//   - width, height: the texture size in pixels
	//
	// Returns:
	//   - common.TextureStagingData: tightly packed RGBA8 pixels
	//   - error: error if the format is unsupported or decoding fails
	Load(path string, width, height uint32) (common.TextureStagingData, error)

	// LoadReader decodes an image stream of the given format and scales it to width x height.
	//
	// Parameters:
	//   - r: the encoded image stream
	//   - format: a registered format name (png, jpeg, bmp, webp, tga)
	//   - width, height: the texture size in pixels
	//
	// Returns:
	//   - common.TextureStagingData: tightly packed RGBA8 pixels
	//   - error: error if the format is unsupported or decoding fails
	LoadReader(r io.Reader, format string, width, height uint32) (common.TextureStagingData, error)

	// Generate produces seeded white noise with independent uniform channels and opaque alpha.
	// The same seed and size always yield the same pixels.
	//
	// Parameters:
	//   - width, height: the texture size in pixels
	//   - seed: the noise seed
	//
	// Returns:
	//   - common.TextureStagingData: tightly packed RGBA8 pixels
	Generate(width, height uint32, seed uint64) common.TextureStagingData

	// Get retrieves a cached texture.
	//
	// Parameters:
	//   - key: the cache key
	//
	// Returns:
	//   - common.TextureStagingData: the texture
	//   - bool: false if not cached
	Get(key string) (common.TextureStagingData, bool)

	// Formats lists the registered format names.
	//
	// Returns:
	//   - []string: format names
	Formats() []string
}

var _ Loader = &loader{}

// NewLoader creates a Loader with the png, jpeg, bmp, webp and tga decoders registered.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: the loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		textureCache: make(map[string]common.TextureStagingData),
		backends:     make(map[string]loaderBackend),
		scaler:       draw.CatmullRom,
	}
	for _, b := range defaultBackends() {
		l.register(b)
	}
	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string, width, height uint32) (common.TextureStagingData, error) {
	key := cacheKey(path, width, height)
	if tex, ok := l.Get(key); ok {
		return tex, nil
	}

	backend, err := l.resolveBackend(path)
	if err != nil {
		return common.TextureStagingData{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()

	tex, err := l.decode(backend, f, width, height)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("loader: failed to load %s: %w", path, err)
	}
	log.Debugf("loaded %s texture %s (%dx%d)", backend.Name(), path, width, height)

	l.mu.Lock()
	l.textureCache[key] = tex
	l.mu.Unlock()
	return tex, nil
}

func (l *loader) LoadReader(r io.Reader, format string, width, height uint32) (common.TextureStagingData, error) {
	l.mu.RLock()
	var backend loaderBackend
	for _, b := range l.backends {
		if strings.EqualFold(b.Name(), format) {
			backend = b
			break
		}
	}
	l.mu.RUnlock()
	if backend == nil {
		return common.TextureStagingData{}, fmt.Errorf("loader: unsupported format %q", format)
	}
	tex, err := l.decode(backend, r, width, height)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("loader: %w", err)
	}
	return tex, nil
}

func (l *loader) Generate(width, height uint32, seed uint64) common.TextureStagingData {
	key := fmt.Sprintf("noise:%d@%dx%d", seed, width, height)
	if tex, ok := l.Get(key); ok {
		return tex
	}

	rng := rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))
	pix := make([]byte, int(width)*int(height)*4)
	for i := 0; i < len(pix); i += 4 {
		v := rng.Uint32()
		pix[i] = byte(v)
		pix[i+1] = byte(v >> 8)
		pix[i+2] = byte(v >> 16)
		pix[i+3] = 0xff
	}
	tex := common.TextureStagingData{Pixels: pix, Width: width, Height: height}

	l.mu.Lock()
	l.textureCache[key] = tex
	l.mu.Unlock()
	return tex
}

func (l *loader) Get(key string) (common.TextureStagingData, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tex, ok := l.textureCache[key]
	return tex, ok
}

func (l *loader) Formats() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, b := range l.backends {
		if !seen[b.Name()] {
			seen[b.Name()] = true
			names = append(names, b.Name())
		}
	}
	return names
}

// register maps each of the backend's extensions to it.
func (l *loader) register(b loaderBackend) {
	for _, ext := range b.Extensions() {
		l.backends[strings.ToLower(ext)] = b
	}
}

// resolveBackend selects a backend by file extension.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.backends[ext]
	if !ok {
		return nil, fmt.Errorf("loader: unsupported image extension %q", ext)
	}
	return b, nil
}

// decode reads one image and resamples it into a width x height RGBA buffer.
func (l *loader) decode(b loaderBackend, r io.Reader, width, height uint32) (common.TextureStagingData, error) {
	if width == 0 || height == 0 {
		return common.TextureStagingData{}, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	src, err := b.Decode(r)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("%s decode: %w", b.Name(), err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	if src.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		l.scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}
	return common.TextureStagingData{Pixels: dst.Pix, Width: width, Height: height}, nil
}

func cacheKey(path string, width, height uint32) string {
	return fmt.Sprintf("%s@%dx%d", path, width, height)
}
