package renderer_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

func uniformLayout() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, MinBindingSize: 20},
		}},
	}
}

func TestRegisterPipelinesSkipsDuplicates(t *testing.T) {
	r, b := renderertest.NewRenderer()
	p := pipeline.NewPipeline("trace", pipeline.PipelineTypeCompute)
	if err := r.RegisterPipelines(p, p); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterPipelines(pipeline.NewPipeline("trace", pipeline.PipelineTypeCompute)); err != nil {
		t.Fatal(err)
	}
	if len(b.Registered) != 1 {
		t.Fatalf("registered %v", b.Registered)
	}
	if r.Pipeline("trace") != p {
		t.Fatal("cache does not hold the first pipeline")
	}
	delete(r.Pipelines(), "trace")
	if r.Pipeline("trace") == nil {
		t.Fatal("Pipelines must return a copy")
	}
}

func TestInitBindGroupCreatesOwnedUniform(t *testing.T) {
	r, b := renderertest.NewRenderer()
	provider := bind_group_provider.NewBindGroupProvider("params")
	if err := r.InitBindGroup(provider, uniformLayout()); err != nil {
		t.Fatal(err)
	}
	buf := provider.Buffer(0)
	if buf == nil || buf.Size() != 32 {
		t.Fatalf("buffer = %v", buf)
	}
	provider.Release()
	if !b.Buffers()[0].Released {
		t.Fatal("owned buffer not released with the provider")
	}
}

func TestInitBindGroupRejectsMissingTexture(t *testing.T) {
	r, _ := renderertest.NewRenderer()
	desc := wgpu.BindGroupLayoutDescriptor{Entries: []wgpu.BindGroupLayoutEntry{{
		Binding:        0,
		StorageTexture: wgpu.StorageTextureBindingLayout{Format: wgpu.TextureFormatRGBA16Float, Access: wgpu.StorageTextureAccessWriteOnly},
	}}}
	if err := r.InitBindGroup(bind_group_provider.NewBindGroupProvider("radiance"), desc); err == nil {
		t.Fatal("expected an error for an unbound storage texture")
	}
}

func TestSubmitRunsHooksAfterSubmission(t *testing.T) {
	r, b := renderertest.NewRenderer()
	if err := r.RegisterPipelines(pipeline.NewPipeline("trace", pipeline.PipelineTypeCompute)); err != nil {
		t.Fatal(err)
	}
	provider := bind_group_provider.NewBindGroupProvider("trace")
	if err := r.InitBindGroup(provider, uniformLayout()); err != nil {
		t.Fatal(err)
	}

	seq, err := r.BeginCommands()
	if err != nil {
		t.Fatal(err)
	}
	if err := seq.DispatchCompute("trace", provider, [3]uint32{2, 2, 1}, nil); err != nil {
		t.Fatal(err)
	}
	var submitsSeen []int
	seq.OnSubmitted(func() { submitsSeen = append(submitsSeen, b.Submits) })
	if len(b.Dispatches) != 0 {
		t.Fatal("dispatch ran before submit")
	}
	if err := r.Submit(seq); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(submitsSeen, []int{1}) {
		t.Fatalf("hook saw submits %v", submitsSeen)
	}
	if !slices.Equal(b.Ops[len(b.Ops)-2:], []string{"dispatch trace", "submit"}) {
		t.Fatalf("ops = %v", b.Ops)
	}
	if err := r.Submit(seq); !errors.Is(err, renderer.ErrSequenceSubmitted) {
		t.Fatalf("second submit err = %v", err)
	}
	if err := seq.DispatchCompute("trace", provider, [3]uint32{1, 1, 1}, nil); !errors.Is(err, renderer.ErrSequenceSubmitted) {
		t.Fatalf("dispatch after submit err = %v", err)
	}
}

func TestSequenceValidation(t *testing.T) {
	r, _ := renderertest.NewRenderer()
	if err := r.RegisterPipelines(pipeline.NewPipeline("present", pipeline.PipelineTypeRender)); err != nil {
		t.Fatal(err)
	}
	provider := bind_group_provider.NewBindGroupProvider("p")
	seq, _ := r.BeginCommands()

	if err := seq.DispatchCompute("missing", provider, [3]uint32{1, 1, 1}, nil); !errors.Is(err, renderer.ErrPipelineNotFound) {
		t.Errorf("missing pipeline err = %v", err)
	}
	if err := seq.DispatchCompute("present", provider, [3]uint32{1, 1, 1}, nil); err == nil {
		t.Error("dispatching a render pipeline must fail")
	}

	tex, _ := r.CreateTexture(resource.TextureDescriptor{Label: "display", Width: 100, Height: 10, Format: wgpu.TextureFormatRGBA8Unorm})
	small, _ := r.CreateBuffer(resource.BufferDescriptor{Label: "small", Size: 256})
	big, _ := r.CreateBuffer(resource.BufferDescriptor{Label: "big", Size: 512 * 10})
	if err := seq.CopyTextureToBuffer(tex, big, 400); err == nil {
		t.Error("unaligned row pitch accepted")
	}
	if err := seq.CopyTextureToBuffer(tex, small, 512); err == nil {
		t.Error("undersized destination accepted")
	}
	if err := seq.CopyTextureToBuffer(tex, big, 512); err != nil {
		t.Error(err)
	}
	if err := seq.CopyBufferToBuffer(big, 0, small, 0, 512); err == nil {
		t.Error("overlong copy accepted")
	}
}

func TestMapReadDeliversSubmittedData(t *testing.T) {
	r, b := renderertest.NewRenderer()
	src, _ := r.CreateBuffer(resource.BufferDescriptor{Label: "src", Size: 16})
	dst, _ := r.CreateBuffer(resource.BufferDescriptor{Label: "dst", Size: 16, Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst})
	r.WriteBuffers([]bind_group_provider.BufferWrite{{Buffer: src, Data: []byte{1, 2, 3, 4}}})

	seq, _ := r.BeginCommands()
	if err := seq.CopyBufferToBuffer(src, 0, dst, 0, 16); err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(seq); err != nil {
		t.Fatal(err)
	}

	if err := r.MapRead(dst, 32, func([]byte, error) {}); err == nil {
		t.Fatal("oversized map accepted")
	}
	var got []byte
	if err := r.MapRead(dst, 4, func(data []byte, err error) { got = data }); err != nil {
		t.Fatal(err)
	}
	if err := r.MapRead(dst, 4, func([]byte, error) {}); err == nil {
		t.Fatal("second map of a pending buffer accepted")
	}
	r.Poll()
	if got != nil {
		t.Fatal("map completed without the device finishing")
	}
	b.CompleteMap(0)
	if !slices.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("mapped %v", got)
	}
}

func TestCreateQuerySetRequiresTimestamps(t *testing.T) {
	r, b := renderertest.NewRenderer()
	if _, err := r.CreateQuerySet("timing", 4); err == nil {
		t.Fatal("query set created without timestamp support")
	}
	b.Timestamps = true
	qs, err := r.CreateQuerySet("timing", 4)
	if err != nil || qs.Count() != 4 {
		t.Fatalf("CreateQuerySet = %v, %v", qs, err)
	}
}

func TestMergeBindGroupLayouts(t *testing.T) {
	tex := wgpu.BindGroupLayoutEntry{Binding: 0, Texture: wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeFloat}}
	samp := wgpu.BindGroupLayoutEntry{Binding: 1, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}}
	vs, fs := tex, tex
	vs.Visibility = wgpu.ShaderStageVertex
	fs.Visibility = wgpu.ShaderStageFragment
	samp.Visibility = wgpu.ShaderStageFragment

	merged := renderer.MergeBindGroupLayouts(
		map[int]wgpu.BindGroupLayoutDescriptor{0: {Entries: []wgpu.BindGroupLayoutEntry{vs}}},
		map[int]wgpu.BindGroupLayoutDescriptor{0: {Entries: []wgpu.BindGroupLayoutEntry{samp, fs}}, 1: {}},
	)
	entries := merged[0].Entries
	if len(merged) != 2 || len(entries) != 2 {
		t.Fatalf("merged = %+v", merged)
	}
	if entries[0].Binding != 0 || entries[0].Visibility != wgpu.ShaderStageVertex|wgpu.ShaderStageFragment {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Binding != 1 || entries[1].Visibility != wgpu.ShaderStageFragment {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}
