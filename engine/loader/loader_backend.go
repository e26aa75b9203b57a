package loader

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

// loaderBackend decodes one image container format.
type loaderBackend interface {
	// Name returns the format name used in errors and logs.
	//
	// Returns:
	//   - string: the format name
	Name() string

	// Extensions returns the lower-case file extensions, including the dot, handled by this backend.
	//
	// Returns:
	//   - []string: the extensions
	Extensions() []string

	// Decode reads one image from r.
	//
	// Parameters:
	//   - r: the encoded image stream
	//
	// Returns:
	//   - image.Image: the decoded image
	//   - error: error if decoding fails
	Decode(r io.Reader) (image.Image, error)
}

// decoderBackend adapts a package-level Decode function into a loaderBackend.
// Decoders are called directly rather than through image.Decode because the TGA package
// registers an empty magic string that would claim every stream.
type decoderBackend struct {
	name   string
	exts   []string
	decode func(io.Reader) (image.Image, error)
}

var _ loaderBackend = &decoderBackend{}

func (d *decoderBackend) Name() string {
	return d.name
}

func (d *decoderBackend) Extensions() []string {
	return d.exts
}

func (d *decoderBackend) Decode(r io.Reader) (image.Image, error) {
	return d.decode(r)
}

// defaultBackends returns the decoders every Loader starts with.
func defaultBackends() []loaderBackend {
	return []loaderBackend{
		&decoderBackend{name: "png", exts: []string{".png"}, decode: png.Decode},
		&decoderBackend{name: "jpeg", exts: []string{".jpg", ".jpeg"}, decode: jpeg.Decode},
		&decoderBackend{name: "bmp", exts: []string{".bmp"}, decode: bmp.Decode},
		&decoderBackend{name: "webp", exts: []string{".webp"}, decode: nativewebp.Decode},
		&decoderBackend{name: "tga", exts: []string{".tga"}, decode: tga.Decode},
	}
}
