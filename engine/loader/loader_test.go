package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/bmp"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 128, B: 0, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func writeImage(t *testing.T, name string, encode func(*bytes.Buffer) error) string {
	t.Helper()
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadByExtension(t *testing.T) {
	src := checker(4, 4)
	cases := []struct {
		name   string
		encode func(*bytes.Buffer) error
	}{
		{"noise.png", func(b *bytes.Buffer) error { return png.Encode(b, src) }},
		{"noise.BMP", func(b *bytes.Buffer) error { return bmp.Encode(b, src) }},
		{"noise.webp", func(b *bytes.Buffer) error { return nativewebp.Encode(b, src, nil) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeImage(t, c.name, c.encode)
			tex, err := NewLoader().Load(path, 4, 4)
			if err != nil {
				t.Fatal(err)
			}
			if !tex.Validate() {
				t.Fatalf("invalid texture %dx%d with %d bytes", tex.Width, tex.Height, len(tex.Pixels))
			}
			if got := tex.Pixels[:4]; !bytes.Equal(got, []byte{255, 128, 0, 255}) {
				t.Errorf("first pixel = %v", got)
			}
			if got := tex.Pixels[4:8]; !bytes.Equal(got, []byte{0, 0, 255, 255}) {
				t.Errorf("second pixel = %v", got)
			}
		})
	}
}

func TestLoadScalesAndCaches(t *testing.T) {
	path := writeImage(t, "big.png", func(b *bytes.Buffer) error { return png.Encode(b, checker(64, 32)) })
	l := NewLoader()
	tex, err := l.Load(path, 16, 8)
	if err != nil {
		t.Fatal(err)
	}
	if tex.Width != 16 || tex.Height != 8 || !tex.Validate() {
		t.Fatalf("got %dx%d, %d bytes", tex.Width, tex.Height, len(tex.Pixels))
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(path, 16, 8); err != nil {
		t.Errorf("cached load should not touch the file: %v", err)
	}
	if _, err := l.Load(path, 8, 8); err == nil {
		t.Error("a different size is a cache miss and the file is gone")
	}
}

func TestLoadErrors(t *testing.T) {
	l := NewLoader()
	if _, err := l.Load("noise.gif", 4, 4); err == nil {
		t.Error("gif is not registered")
	}
	if _, err := l.Load(filepath.Join(t.TempDir(), "missing.png"), 4, 4); err == nil {
		t.Error("missing file")
	}
	garbage := writeImage(t, "bad.png", func(b *bytes.Buffer) error { _, err := b.WriteString("not a png"); return err })
	if _, err := l.Load(garbage, 4, 4); err == nil {
		t.Error("corrupt file")
	}
	if _, err := l.LoadReader(bytes.NewReader(nil), "png", 0, 4); err == nil {
		t.Error("zero size")
	}
	if _, err := l.LoadReader(bytes.NewReader(nil), "exr", 4, 4); err == nil {
		t.Error("unknown format")
	}
}

func TestLoadReaderUsesNamedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, checker(2, 2)); err != nil {
		t.Fatal(err)
	}
	tex, err := NewLoader().LoadReader(&buf, "PNG", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !tex.Validate() {
		t.Fatal("invalid texture")
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := NewLoader().Generate(32, 16, 7)
	b := NewLoader().Generate(32, 16, 7)
	c := NewLoader().Generate(32, 16, 8)
	if !a.Validate() {
		t.Fatal("invalid texture")
	}
	if !bytes.Equal(a.Pixels, b.Pixels) {
		t.Error("same seed should give the same noise")
	}
	if bytes.Equal(a.Pixels, c.Pixels) {
		t.Error("different seeds should differ")
	}
	var sum int
	for i := 0; i < len(a.Pixels); i += 4 {
		if a.Pixels[i+3] != 255 {
			t.Fatalf("alpha at %d = %d", i/4, a.Pixels[i+3])
		}
		sum += int(a.Pixels[i])
	}
	if mean := sum / (32 * 16); mean < 96 || mean > 160 {
		t.Errorf("red channel mean %d is far from uniform", mean)
	}
}

func TestFormats(t *testing.T) {
	got := map[string]bool{}
	for _, f := range NewLoader().Formats() {
		got[f] = true
	}
	for _, want := range []string{"png", "jpeg", "bmp", "webp", "tga"} {
		if !got[want] {
			t.Errorf("missing format %s", want)
		}
	}
}
