// Package snapshot reads a display texture back from the device and writes it to an image file.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/logger"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/HugoSmits86/nativewebp"
	"github.com/cogentcore/webgpu/wgpu"
)

var log = logger.New("snapshot")

// ErrUnsupportedFormat is returned for texture formats or file extensions the snapshot cannot handle.
var ErrUnsupportedFormat = errors.New("snapshot: unsupported format")

// rowAlignment is the row pitch alignment required for texture to buffer copies.
const rowAlignment = 256

// pollInterval is how long Save sleeps between device polls while waiting for the map.
const pollInterval = time.Millisecond

// RowPitch returns the padded number of bytes per row used when copying a texture into a buffer.
//
// Parameters:
//   - width: the texture width in texels
//   - bytesPerTexel: the texel size
//
// Returns:
//   - uint32: the row pitch, a multiple of 256
func RowPitch(width, bytesPerTexel uint32) uint32 {
	row := width * bytesPerTexel
	return (row + rowAlignment - 1) / rowAlignment * rowAlignment
}

// Capture records a copy of tex into a fresh readback buffer. Once cmd is submitted the buffer is
// mapped, and fn receives the unpacked image from a later Poll. The buffer is released after fn.
//
// Parameters:
//   - r: the renderer owning tex
//   - cmd: the sequence to record the copy into
//   - tex: an RGBA8 or BGRA8 texture
//   - fn: receives the image, or the error that prevented reading it
//
// Returns:
//   - error: an error if the texture format is unsupported or the copy could not be recorded
func Capture(r renderer.Renderer, cmd renderer.CommandSequence, tex resource.Texture, fn func(img *image.NRGBA, err error)) error {
	format := tex.Format()
	if resource.BytesPerTexel(format) != 4 {
		return fmt.Errorf("%w: texture %s is %v", ErrUnsupportedFormat, tex.Label(), format)
	}
	pitch := RowPitch(tex.Width(), 4)
	size := uint64(pitch) * uint64(tex.Height())
	buf, err := r.CreateBuffer(resource.BufferDescriptor{
		Label: "Snapshot Readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := cmd.CopyTextureToBuffer(tex, buf, pitch); err != nil {
		buf.Release()
		return fmt.Errorf("snapshot: %w", err)
	}

	width, height := tex.Width(), tex.Height()
	cmd.OnSubmitted(func() {
		err := r.MapRead(buf, size, func(data []byte, err error) {
			defer buf.Release()
			if err != nil {
				fn(nil, fmt.Errorf("snapshot: map %s: %w", buf.Label(), err))
				return
			}
			fn(unpack(data, width, height, pitch, format), nil)
		})
		if err != nil {
			buf.Release()
			fn(nil, fmt.Errorf("snapshot: %w", err))
		}
	})
	return nil
}

// Save captures tex, submits the copy, waits for the readback and writes the image to path.
// The file format is chosen by extension (.png or .webp).
//
// Parameters:
//   - ctx: bounds the wait for the readback
//   - r: the renderer owning tex
//   - tex: the texture to save
//   - path: the output file
//
// Returns:
//   - error: an error if the capture, the wait or the write fails
func Save(ctx context.Context, r renderer.Renderer, tex resource.Texture, path string) error {
	if _, err := encoderFor(path); err != nil {
		return err
	}
	cmd, err := r.BeginCommands()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	type result struct {
		img *image.NRGBA
		err error
	}
	done := make(chan result, 1)
	if err := Capture(r, cmd, tex, func(img *image.NRGBA, err error) { done <- result{img, err} }); err != nil {
		return err
	}
	if err := r.Submit(cmd); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	for {
		r.Poll()
		select {
		case res := <-done:
			if res.err != nil {
				return res.err
			}
			if err := Write(path, res.img); err != nil {
				return err
			}
			log.Infof("saved %dx%d snapshot to %s", tex.Width(), tex.Height(), path)
			return nil
		case <-ctx.Done():
			return fmt.Errorf("snapshot: waiting for readback: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Write encodes img to path. The format is chosen by extension (.png or .webp).
//
// Parameters:
//   - path: the output file
//   - img: the image to encode
//
// Returns:
//   - error: an error if the extension is unsupported or writing fails
func Write(path string, img image.Image) error {
	encode, err := encoderFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: encode %s: %w", path, err)
	}
	return f.Close()
}

func encoderFor(path string) (func(io.Writer, image.Image) error, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return png.Encode, nil
	case ".webp":
		return func(w io.Writer, img image.Image) error { return nativewebp.Encode(w, img, nil) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// unpack strips the row padding and swizzles BGRA into RGBA. Display textures are opaque, so
// the result is stored as non-premultiplied RGBA as is.
func unpack(data []byte, width, height, pitch uint32, format wgpu.TextureFormat) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	row := int(width) * 4
	for y := 0; y < int(height); y++ {
		src := data[y*int(pitch) : y*int(pitch)+row]
		dst := img.Pix[y*img.Stride : y*img.Stride+row]
		copy(dst, src)
		if format == wgpu.TextureFormatBGRA8Unorm {
			for x := 0; x < row; x += 4 {
				dst[x], dst[x+2] = dst[x+2], dst[x]
			}
		}
	}
	return img
}
