package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/scene"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/stage"
)

func testParams(width, height, maxSamples uint32) params.RenderParameters {
	p := params.DefaultRenderParameters()
	p.TextureWidth = width
	p.TextureHeight = height
	p.MaxSampleCount = maxSamples
	return p
}

func newTestEngine(t *testing.T, p params.RenderParameters, opts ...EngineBuilderOption) (*engine, *renderertest.Backend) {
	t.Helper()
	r, b := renderertest.NewRenderer()
	b.Timestamps = true
	b.AutoCompleteMaps = true
	base := []EngineBuilderOption{
		WithRenderer(r),
		WithParameters(p),
		WithScene(scene.PresetCornell),
		WithProfiling(true),
	}
	e := NewEngine(append(base, opts...)...).(*engine)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Release)
	return e, b
}

func renderFrames(t *testing.T, e Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := e.RenderFrame(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func passes(b *renderertest.Backend, pipelineKey string) int {
	n := 0
	for _, d := range b.Dispatches {
		if d.Pipeline == pipelineKey {
			n++
		}
	}
	return n
}

func TestRenderFrameBeforeInit(t *testing.T) {
	if err := NewEngine().RenderFrame(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v", err)
	}
}

func TestFrameOrder(t *testing.T) {
	e, b := newTestEngine(t, testParams(32, 16, 0))
	b.ResetOps()
	renderFrames(t, e, 1)

	var got []string
	for _, op := range b.Ops {
		if strings.HasPrefix(op, "write ") {
			continue
		}
		got = append(got, op)
	}
	want := []string{
		"dispatch " + stage.TracePipelineKey,
		"dispatch " + stage.AccumulatePipelineKey,
		"dispatch " + stage.TonemapPipelineKey,
		"draw " + stage.PresentPipelineKey,
		"resolve Timestamps",
		"copy Timestamp Resolve Timestamp Readback 0",
		"submit",
		"present",
		"poll",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ops = %v\nwant %v", got, want)
	}
	if e.SampleCount() != 1 || e.Frames() != 1 {
		t.Errorf("samples %d, frames %d", e.SampleCount(), e.Frames())
	}
}

func TestStopsTracingAtSampleBudget(t *testing.T) {
	e, b := newTestEngine(t, testParams(32, 16, 3))
	renderFrames(t, e, 6)

	if n := passes(b, stage.TracePipelineKey); n != 3 {
		t.Errorf("trace passes = %d, want 3", n)
	}
	if n := passes(b, stage.AccumulatePipelineKey); n != 3 {
		t.Errorf("accumulate passes = %d, want 3", n)
	}
	if n := passes(b, stage.TonemapPipelineKey); n != 6 {
		t.Errorf("tonemap passes = %d, want 6", n)
	}
	if len(b.Draws) != 6 || b.Presents != 6 {
		t.Errorf("draws %d, presents %d", len(b.Draws), b.Presents)
	}
	if e.SampleCount() != 3 {
		t.Errorf("sample count = %d", e.SampleCount())
	}
	if s := e.Timer().Stats(); s[0].Samples != 3 {
		t.Errorf("trace timed %d times, want 3", s[0].Samples)
	}
}

func TestCameraMoveRestartsAccumulation(t *testing.T) {
	e, b := newTestEngine(t, testParams(32, 16, 3))
	renderFrames(t, e, 4)

	e.Controller().KeyDown(common.KeyW)
	if !e.Controller().Update() {
		t.Fatal("W should move the camera")
	}
	e.Controller().KeyUp(common.KeyW)
	b.ResetOps()
	renderFrames(t, e, 1)

	if n := passes(b, stage.TracePipelineKey); n != 1 {
		t.Fatalf("trace passes after move = %d", n)
	}
	if !e.accum.State().Clear || e.SampleCount() != 1 {
		t.Errorf("state after move = %+v", e.accum.State())
	}

	e.Store().Update(func(p *params.RenderParameters) { p.Exposure = 3 })
	renderFrames(t, e, 1)
	if e.accum.State().Clear || e.SampleCount() != 2 {
		t.Errorf("exposure should not reset, state = %+v", e.accum.State())
	}
}

func TestImageResize(t *testing.T) {
	e, b := newTestEngine(t, testParams(32, 16, 0))
	renderFrames(t, e, 2)

	e.Store().Update(func(p *params.RenderParameters) {
		p.TextureWidth = 64
		p.TextureHeight = 48
	})
	b.ResetOps()
	renderFrames(t, e, 1)

	if got := e.trace.Radiance(); got.Width() != 64 || got.Height() != 48 {
		t.Fatalf("radiance is %dx%d", got.Width(), got.Height())
	}
	if got := e.tonemap.Display(); got.Width() != 64 || got.Height() != 48 {
		t.Fatalf("display is %dx%d", got.Width(), got.Height())
	}
	if got := b.Dispatches[0].Workgroups; got != [3]uint32{4, 3, 1} {
		t.Errorf("trace workgroups = %v", got)
	}
	if e.SampleCount() != 1 {
		t.Errorf("sample count after resize = %d", e.SampleCount())
	}
}

func TestLostSurfaceSkipsPresent(t *testing.T) {
	e, b := newTestEngine(t, testParams(16, 16, 0))
	b.SurfaceErr = renderer.ErrSurfaceUnavailable
	before := b.Submits
	renderFrames(t, e, 2)

	if b.Presents != 0 || len(b.Draws) != 0 {
		t.Errorf("presents %d, draws %d", b.Presents, len(b.Draws))
	}
	if b.Submits-before != 2 || e.SampleCount() != 2 {
		t.Errorf("compute work should still be submitted: submits %d, samples %d", b.Submits-before, e.SampleCount())
	}

	b.SurfaceErr = nil
	renderFrames(t, e, 1)
	if b.Presents != 1 {
		t.Errorf("presents = %d", b.Presents)
	}
}

func TestLostSurfaceDoesNotTimeStaleTrace(t *testing.T) {
	e, b := newTestEngine(t, testParams(16, 16, 2))
	renderFrames(t, e, 1)

	// The trace pass is armed but the frame is never queried.
	b.SurfaceErr = renderer.ErrSurfaceUnavailable
	renderFrames(t, e, 1)

	// The sample budget is reached, so only the present pass is armed now.
	b.SurfaceErr = nil
	renderFrames(t, e, 1)

	s := e.Timer().Stats()
	if s[0].Samples != 1 {
		t.Errorf("trace timed %d times, want 1", s[0].Samples)
	}
	if s[1].Samples != 2 {
		t.Errorf("present timed %d times, want 2", s[1].Samples)
	}
}

func TestFailedFrameAbandonsCommands(t *testing.T) {
	e, b := newTestEngine(t, testParams(16, 16, 0))
	deviceLost := errors.New("device lost")
	b.SurfaceErr = deviceLost
	b.ResetOps()
	before := b.Submits

	if err := e.RenderFrame(); !errors.Is(err, deviceLost) {
		t.Fatalf("err = %v", err)
	}
	if b.Abandoned != 1 || b.Submits != before {
		t.Errorf("abandoned %d, submits %d", b.Abandoned, b.Submits-before)
	}
	for _, op := range b.Ops {
		if strings.HasPrefix(op, "dispatch ") || op == "submit" {
			t.Errorf("abandoned frame reached the device: %v", b.Ops)
			break
		}
	}

	b.SurfaceErr = nil
	renderFrames(t, e, 1)
	if b.Presents != 1 || b.Abandoned != 1 {
		t.Errorf("presents %d, abandoned %d", b.Presents, b.Abandoned)
	}
}

func TestTimeParameterAdvances(t *testing.T) {
	now := time.Unix(100, 0)
	clock := func() time.Time { return now }
	e, b := newTestEngine(t, testParams(16, 16, 0), WithClock(clock))
	now = now.Add(1500 * time.Millisecond)
	renderFrames(t, e, 1)

	var block *renderertest.Buffer
	for _, buf := range b.Buffers() {
		if buf.Label() == "Trace Params" {
			block = buf
		}
	}
	if block == nil {
		t.Fatal("no trace params buffer")
	}
	offset := -1
	for _, f := range params.TraceLayout.Fields {
		if f.Name == "time" {
			offset = int(f.Offset)
		}
	}
	if offset < 0 {
		t.Fatal("layout has no time field")
	}
	if v := math.Float32frombits(binary.LittleEndian.Uint32(block.Data[offset:])); v != 1.5 {
		t.Errorf("time = %v, want 1.5", v)
	}
}

func TestInitReportsMissingNoise(t *testing.T) {
	r, _ := renderertest.NewRenderer()
	e := NewEngine(WithRenderer(r), WithParameters(testParams(16, 16, 0)), WithNoise(filepath.Join(t.TempDir(), "missing.png"), 0))
	if err := e.Init(); err == nil {
		t.Fatal("expected a noise error")
	}
}

func TestSnapshotAfterFrames(t *testing.T) {
	e, _ := newTestEngine(t, testParams(16, 8, 0))
	renderFrames(t, e, 2)

	path := filepath.Join(t.TempDir(), "out.png")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Snapshot(ctx, path); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Fatalf("snapshot not written: %v", err)
	}
}

func TestRunNeedsWindow(t *testing.T) {
	r, _ := renderertest.NewRenderer()
	if err := NewEngine(WithRenderer(r)).Run(); err == nil {
		t.Fatal("expected an error without a window")
	}
}
