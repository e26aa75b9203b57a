package stage_test

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/scene"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/stage"
	"github.com/cogentcore/webgpu/wgpu"
)

type stages struct {
	r          renderer.Renderer
	backend    *renderertest.Backend
	trace      stage.TraceStage
	accumulate stage.AccumulationStage
	tonemap    stage.TonemapStage
	present    stage.PresentationStage
}

func newStages(t *testing.T, width, height uint32) *stages {
	t.Helper()
	d, err := scene.Build(scene.PresetCornell, 1)
	if err != nil {
		t.Fatal(err)
	}
	compiled, err := scene.Compile(d)
	if err != nil {
		t.Fatal(err)
	}
	noise := common.TextureStagingData{Pixels: make([]byte, 8*8*4), Width: 8, Height: 8}

	r, b := renderertest.NewRenderer()
	s := &stages{r: r, backend: b}
	if s.trace, err = stage.NewTraceStage(r, compiled, noise, width, height); err != nil {
		t.Fatal(err)
	}
	if s.accumulate, err = stage.NewAccumulationStage(r, s.trace.Radiance()); err != nil {
		t.Fatal(err)
	}
	if s.tonemap, err = stage.NewTonemapStage(r, s.accumulate.Output()); err != nil {
		t.Fatal(err)
	}
	if s.present, err = stage.NewPresentationStage(r, s.tonemap.Display()); err != nil {
		t.Fatal(err)
	}
	return s
}

func (s *stages) params(width, height uint32) params.RenderParameters {
	p := params.DefaultRenderParameters()
	p.TextureWidth = width
	p.TextureHeight = height
	return p
}

func (s *stages) buffer(t *testing.T, label string) *renderertest.Buffer {
	t.Helper()
	for _, b := range s.backend.Buffers() {
		if b.Label() == label && !b.Released {
			return b
		}
	}
	t.Fatalf("no live buffer %q", label)
	return nil
}

func fieldOffset(t *testing.T, l *params.Layout, name string) uint64 {
	t.Helper()
	for _, f := range l.Fields {
		if f.Name == name {
			return f.Offset
		}
	}
	t.Fatalf("%s has no field %s", l.Name, name)
	return 0
}

func submit(t *testing.T, r renderer.Renderer, record func(cmd renderer.CommandSequence) error) {
	t.Helper()
	cmd, err := r.BeginCommands()
	if err != nil {
		t.Fatal(err)
	}
	if err := record(cmd); err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(cmd); err != nil {
		t.Fatal(err)
	}
}

func TestTilingCoversFullHD(t *testing.T) {
	if got := stage.Tiling(1920, 1080); got != [3]uint32{120, 68, 1} {
		t.Fatalf("Tiling(1920, 1080) = %v", got)
	}

	s := newStages(t, 1920, 1080)
	submit(t, s.r, func(cmd renderer.CommandSequence) error {
		_, err := s.trace.Trace(cmd, s.params(1920, 1080), nil)
		return err
	})
	if len(s.backend.Dispatches) != 1 || s.backend.Dispatches[0].Workgroups != [3]uint32{120, 68, 1} {
		t.Fatalf("dispatches = %+v", s.backend.Dispatches)
	}
}

func TestTraceSkipsDispatchOnceConverged(t *testing.T) {
	s := newStages(t, 64, 32)
	p := s.params(64, 32)
	p.MaxSampleCount = 10

	cases := []struct {
		count    uint32
		dispatch bool
	}{
		{0, true},
		{9, true},
		{10, false},
		{11, false},
	}
	for _, c := range cases {
		s.backend.ResetOps()
		p.SampleCount = c.count
		var dispatched bool
		submit(t, s.r, func(cmd renderer.CommandSequence) error {
			var err error
			dispatched, err = s.trace.Trace(cmd, p, nil)
			return err
		})
		if dispatched != c.dispatch || (len(s.backend.Dispatches) == 1) != c.dispatch {
			t.Errorf("count %d: dispatched = %v, recorded %d", c.count, dispatched, len(s.backend.Dispatches))
		}
		if s.backend.Ops[0] != "write Trace Params" {
			t.Errorf("count %d: parameters not refreshed, ops %v", c.count, s.backend.Ops)
		}
		data := s.buffer(t, "Trace Params").Data
		if got := binary.LittleEndian.Uint32(data[fieldOffset(t, params.TraceLayout, "sample_count"):]); got != c.count {
			t.Errorf("count %d: sample_count in buffer = %d", c.count, got)
		}
	}
	if got := s.trace.Dispatches(); got != 2 {
		t.Errorf("Dispatches = %d, want 2", got)
	}
}

func TestTraceRejectsStaleSize(t *testing.T) {
	s := newStages(t, 64, 32)
	cmd, err := s.r.BeginCommands()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.trace.Trace(cmd, s.params(128, 32), nil); err == nil {
		t.Fatal("expected a size error")
	}
}

func accumulateParams(t *testing.T, s *stages) (int32, int32) {
	t.Helper()
	data := s.buffer(t, "Accumulate Params").Data
	flag := int32(binary.LittleEndian.Uint32(data[fieldOffset(t, params.AccumulateLayout, "clear"):]))
	count := int32(binary.LittleEndian.Uint32(data[fieldOffset(t, params.AccumulateLayout, "sample_count"):]))
	return flag, count
}

func TestAccumulateResetThenContinue(t *testing.T) {
	s := newStages(t, 40, 20)

	const frames = 8
	for k := 1; k <= frames; k++ {
		changed := k == 1
		submit(t, s.r, func(cmd renderer.CommandSequence) error {
			return s.accumulate.Accumulate(cmd, changed, nil)
		})
		st := s.accumulate.State()
		if st.SampleCount != uint32(k) {
			t.Fatalf("frame %d: SampleCount = %d", k, st.SampleCount)
		}
		if st.Clear != changed {
			t.Errorf("frame %d: Clear = %v", k, st.Clear)
		}
		if st.Parity != k%2 {
			t.Errorf("frame %d: Parity = %d", k, st.Parity)
		}
		flag, count := accumulateParams(t, s)
		if (flag == 1) != changed || count != int32(k) {
			t.Errorf("frame %d: params = {%d, %d}", k, flag, count)
		}
	}

	// Dispatches alternate between the two ping-pong bind groups.
	for i, d := range s.backend.Dispatches {
		want := "Accumulate 0"
		if i%2 == 1 {
			want = "Accumulate 1"
		}
		if d.Provider != want || d.Workgroups != [3]uint32{3, 2, 1} {
			t.Errorf("dispatch %d = %+v", i, d)
		}
	}

	// A change mid-stream resets the count but keeps toggling parity.
	parity := s.accumulate.State().Parity
	submit(t, s.r, func(cmd renderer.CommandSequence) error {
		return s.accumulate.Accumulate(cmd, true, nil)
	})
	st := s.accumulate.State()
	if !st.Clear || st.SampleCount != 1 || st.Parity == parity {
		t.Errorf("after change: %+v", st)
	}
	if flag, count := accumulateParams(t, s); flag != 1 || count != 1 {
		t.Errorf("after change: params = {%d, %d}", flag, count)
	}
}

func TestAccumulateResizeForcesReset(t *testing.T) {
	s := newStages(t, 32, 32)
	for i := 0; i < 3; i++ {
		submit(t, s.r, func(cmd renderer.CommandSequence) error {
			return s.accumulate.Accumulate(cmd, false, nil)
		})
	}
	old := s.accumulate.Output().(*renderertest.Texture)

	if err := s.trace.Resize(48, 16); err != nil {
		t.Fatal(err)
	}
	if err := s.accumulate.Resize(s.trace.Radiance()); err != nil {
		t.Fatal(err)
	}
	if !old.Released {
		t.Error("previous average texture was not released")
	}
	if out := s.accumulate.Output(); out.Width() != 48 || out.Height() != 16 {
		t.Errorf("output is %dx%d", out.Width(), out.Height())
	}

	submit(t, s.r, func(cmd renderer.CommandSequence) error {
		return s.accumulate.Accumulate(cmd, false, nil)
	})
	if st := s.accumulate.State(); !st.Clear || st.SampleCount != 1 {
		t.Errorf("first pass after resize = %+v", st)
	}
}

func TestTonemapRefreshesDisplayParameters(t *testing.T) {
	s := newStages(t, 16, 16)
	p := s.params(16, 16)
	p.Exposure = 2.5
	p.Gamma = 1.8
	p.Curve = params.CurveUncharted2

	submit(t, s.r, func(cmd renderer.CommandSequence) error {
		return s.tonemap.Tonemap(cmd, p, nil)
	})
	data := s.buffer(t, "Tonemap Params").Data
	if got := math.Float32frombits(binary.LittleEndian.Uint32(data[fieldOffset(t, params.TonemapLayout, "exposure"):])); got != 2.5 {
		t.Errorf("exposure = %v", got)
	}
	if got := binary.LittleEndian.Uint32(data[fieldOffset(t, params.TonemapLayout, "curve"):]); got != uint32(params.CurveUncharted2) {
		t.Errorf("curve = %d", got)
	}
	if d := s.tonemap.Display(); d.Format() != stage.DisplayFormat {
		t.Errorf("display format = %v", d.Format())
	}
}

func TestFramePassOrder(t *testing.T) {
	s := newStages(t, 32, 32)
	p := s.params(32, 32)
	s.backend.ResetOps()

	submit(t, s.r, func(cmd renderer.CommandSequence) error {
		if _, err := s.trace.Trace(cmd, p, nil); err != nil {
			return err
		}
		if err := s.accumulate.Accumulate(cmd, true, nil); err != nil {
			return err
		}
		if err := s.tonemap.Tonemap(cmd, p, nil); err != nil {
			return err
		}
		return s.present.Present(cmd, nil)
	})
	s.r.Present()

	var passes []string
	for _, op := range s.backend.Ops {
		if strings.HasPrefix(op, "dispatch ") || strings.HasPrefix(op, "draw ") || op == "present" {
			passes = append(passes, op)
		}
	}
	want := []string{"dispatch trace", "dispatch accumulate", "dispatch tonemap", "draw present", "present"}
	if strings.Join(passes, ",") != strings.Join(want, ",") {
		t.Errorf("passes = %v", passes)
	}
}

func TestPresentReportsUnavailableSurface(t *testing.T) {
	s := newStages(t, 16, 16)
	s.backend.SurfaceErr = renderer.ErrSurfaceUnavailable
	cmd, err := s.r.BeginCommands()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.present.Present(cmd, nil); !errors.Is(err, renderer.ErrSurfaceUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestKernelMismatchIsRejected(t *testing.T) {
	r, _ := renderertest.NewRenderer()
	tex, err := r.CreateTexture(averageTarget(8, 8))
	if err != nil {
		t.Fatal(err)
	}

	wrongTile := `//@oxy:include tonemap_params
//@oxy:group 0 0 storage_uniform params tonemap_params
//@oxy:provider 0 1 average
@group(0) @binding(1) var average: texture_2d<f32>;
//@oxy:provider 0 2 display
@group(0) @binding(2) var display: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) id: vec3u) {}
`
	if _, err := stage.NewTonemapStage(r, tex, stage.WithKernelSource(wrongTile)); !errors.Is(err, stage.ErrLayoutMismatch) {
		t.Errorf("wrong tile: err = %v", err)
	}

	noParams := `//@oxy:include tonemap_params
//@oxy:provider 0 1 average
@group(0) @binding(1) var average: texture_2d<f32>;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3u) {}
`
	if _, err := stage.NewTonemapStage(r, tex, stage.WithKernelSource(noParams)); !errors.Is(err, stage.ErrLayoutMismatch) {
		t.Errorf("no params: err = %v", err)
	}
	if len(r.Pipelines()) != 0 {
		t.Error("rejected kernels must not be registered")
	}
}

func TestKernelsAssembleWithoutDevice(t *testing.T) {
	d, err := scene.Build(scene.PresetDefault, 1)
	if err != nil {
		t.Fatal(err)
	}
	compiled, err := scene.Compile(d)
	if err != nil {
		t.Fatal(err)
	}
	kernels, err := stage.Kernels(compiled)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{stage.TracePipelineKey, stage.AccumulatePipelineKey, stage.TonemapPipelineKey, stage.PresentPipelineKey + "_vs", stage.PresentPipelineKey + "_fs"}
	if len(kernels) != len(want) {
		t.Fatalf("got %d kernels", len(kernels))
	}
	for i, k := range kernels {
		if k.Key() != want[i] {
			t.Errorf("kernel %d = %s, want %s", i, k.Key(), want[i])
		}
	}
	if !strings.Contains(kernels[0].Source(), strings.TrimRight(compiled, "\n")) {
		t.Error("trace kernel does not contain the compiled scene")
	}
}

func TestKernelsPassValidationForEveryScene(t *testing.T) {
	descs := map[string]*scene.Description{
		"empty": scene.NewDescription(scene.WithMaterials(scene.NewLambertian(scene.Vec3{0.5, 0.5, 0.5}))),
	}
	for _, p := range scene.Presets() {
		d, err := scene.Build(p, 1)
		if err != nil {
			t.Fatal(err)
		}
		descs[p.String()] = d
	}
	for name, d := range descs {
		t.Run(name, func(t *testing.T) {
			compiled, err := scene.Compile(d)
			if err != nil {
				t.Fatal(err)
			}
			kernels, err := stage.Kernels(compiled, stage.WithValidation(true))
			if err != nil {
				t.Fatalf("validation failed: %v", err)
			}
			if len(kernels) != 5 {
				t.Fatalf("got %d kernels", len(kernels))
			}
		})
	}
}

func averageTarget(w, h uint32) resource.TextureDescriptor {
	return resource.TextureDescriptor{
		Label:  "Average",
		Width:  w,
		Height: h,
		Format: stage.RadianceFormat,
		Usage:  wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
	}
}
