package shader

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func TestLayoutOf(t *testing.T) {
	known := map[string]typeLayout{"Sphere": {32, 16}}
	cases := []struct {
		typ  string
		want typeLayout
		ok   bool
	}{
		{"f32", typeLayout{4, 4}, true},
		{"vec2f", typeLayout{8, 8}, true},
		{"vec3<f32>", typeLayout{12, 16}, true},
		{"vec3u", typeLayout{12, 16}, true},
		{"vec4h", typeLayout{8, 8}, true},
		{"mat4x4<f32>", typeLayout{64, 16}, true},
		{"mat3x3f", typeLayout{48, 16}, true},
		{"mat2x2<f32>", typeLayout{16, 8}, true},
		{"atomic<u32>", typeLayout{4, 4}, true},
		{"array<Sphere, 4>", typeLayout{128, 16}, true},
		{"array<vec3f, 2>", typeLayout{32, 16}, true},
		{"array<Sphere>", typeLayout{32, 16}, true},
		{"array<Sphere, SPHERE_COUNT>", typeLayout{}, false},
		{"Unknown", typeLayout{}, false},
		{"vec5f", typeLayout{}, false},
	}
	for _, c := range cases {
		got, ok := layoutOf(c.typ, known)
		if ok != c.ok || got != c.want {
			t.Errorf("layoutOf(%q) = %v, %v, want %v, %v", c.typ, got, ok, c.want, c.ok)
		}
	}
}

func TestStructLayoutsResolveForwardReferences(t *testing.T) {
	src := `
struct Outer {
    inner: Inner,
    @builtin(position) pos: vec4f,
    scale: f32,
}
/* struct Ignored { x: f32 } */
struct Inner {
    a: vec3f, // trailing comment
    @size(4) b: u32,
}
struct Tail {
    count: u32,
    items: array<vec4f>,
}`
	got := structLayouts(structDecls(stripComments(src)))
	want := map[string]typeLayout{
		"Inner": {16, 16},
		"Outer": {32, 16},
		"Tail":  {16, 16},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for name, l := range want {
		if got[name] != l {
			t.Errorf("%s = %v, want %v", name, got[name], l)
		}
	}
}

func TestStripCommentsKeepsLines(t *testing.T) {
	in := "a // one\n/* two\n /* nested */ still */b\nc"
	if got := stripComments(in); got != "a \n\nb\nc" {
		t.Errorf("got %q", got)
	}
}

func TestEntryPointSkipsOtherStages(t *testing.T) {
	src := "@vertex\nfn vs_main() {}\n@fragment fn  fs_main() {}\n@compute @workgroup_size(8)\nfn\tcs() {}"
	for stage, want := range map[ShaderType]string{
		ShaderTypeVertex:   "vs_main",
		ShaderTypeFragment: "fs_main",
		ShaderTypeCompute:  "cs",
	} {
		if got := entryPoint(src, stage); got != want {
			t.Errorf("stage %d: got %q, want %q", stage, got, want)
		}
	}
	if ws := workgroupSize(src); ws != [3]uint32{8, 1, 1} {
		t.Errorf("workgroup size = %v", ws)
	}
}

func TestResourceEntries(t *testing.T) {
	cases := []struct {
		space, typ string
		check      func(wgpu.BindGroupLayoutEntry) bool
	}{
		{"storage, read", "array<f32>", func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Buffer.Type == wgpu.BufferBindingTypeReadOnlyStorage
		}},
		{"storage, read_write", "array<f32>", func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Buffer.Type == wgpu.BufferBindingTypeStorage
		}},
		{"", "texture_multisampled_2d<f32>", func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Texture.Multisampled && e.Texture.ViewDimension == wgpu.TextureViewDimension2D
		}},
		{"", "texture_depth_cube", func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Texture.SampleType == wgpu.TextureSampleTypeDepth && e.Texture.ViewDimension == wgpu.TextureViewDimensionCube
		}},
		{"", "texture_2d<u32>", func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Texture.SampleType == wgpu.TextureSampleTypeUint
		}},
		{"", "texture_storage_2d<rgba8unorm, read_write>", func(e wgpu.BindGroupLayoutEntry) bool {
			return e.StorageTexture.Format == wgpu.TextureFormatRGBA8Unorm && e.StorageTexture.Access == wgpu.StorageTextureAccessReadWrite
		}},
		{"", "sampler_comparison", func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Sampler.Type == wgpu.SamplerBindingTypeComparison
		}},
	}
	for _, c := range cases {
		if e := resourceEntry(3, wgpu.ShaderStageCompute, c.space, c.typ); !c.check(e) || e.Binding != 3 {
			t.Errorf("%q %q: got %+v", c.space, c.typ, e)
		}
	}
}
