package params

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

func TestStoreFirstAcquireIsChanged(t *testing.T) {
	s := NewStore(DefaultRenderParameters())
	if f := s.Acquire(); !f.Changed {
		t.Fatal("first frame should reset accumulation")
	}
	if f := s.Acquire(); f.Changed {
		t.Fatal("changed flag should be consumed")
	}
}

func TestStoreInvalidation(t *testing.T) {
	cases := []struct {
		name        string
		mutate      func(p *RenderParameters)
		invalidates bool
	}{
		{"camera move", func(p *RenderParameters) { p.CameraPosition[0] += 1 }, true},
		{"fov", func(p *RenderParameters) { p.Fov = 60 }, true},
		{"light intensity", func(p *RenderParameters) { p.LightIntensity = 4 }, true},
		{"max samples", func(p *RenderParameters) { p.MaxSampleCount = 10 }, true},
		{"exposure", func(p *RenderParameters) { p.Exposure = 2 }, false},
		{"gamma", func(p *RenderParameters) { p.Gamma = 1 }, false},
		{"curve", func(p *RenderParameters) { p.Curve = CurveReinhard }, false},
		{"no-op", func(p *RenderParameters) {}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewStore(DefaultRenderParameters())
			s.Acquire()
			before := s.Acquire().Version
			if got := s.Update(c.mutate); got != c.invalidates {
				t.Fatalf("Update returned %v, want %v", got, c.invalidates)
			}
			f := s.Acquire()
			if f.Changed != c.invalidates {
				t.Errorf("Changed = %v, want %v", f.Changed, c.invalidates)
			}
			if c.name == "no-op" && f.Version != before {
				t.Errorf("no-op update bumped version %d -> %d", before, f.Version)
			}
		})
	}
}

func TestStoreChangedSurvivesLaterNonInvalidatingUpdate(t *testing.T) {
	s := NewStore(DefaultRenderParameters())
	s.Acquire()
	s.Update(func(p *RenderParameters) { p.Yaw = 1 })
	s.Update(func(p *RenderParameters) { p.Exposure = 3 })
	if !s.Acquire().Changed {
		t.Fatal("a later display-only update must not clear a pending invalidation")
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore(DefaultRenderParameters())
	f := s.Acquire()
	f.Params.Fov = 10
	if s.Peek().Fov == 10 {
		t.Fatal("mutating a snapshot leaked into the store")
	}
}

func TestClamp(t *testing.T) {
	p := RenderParameters{Fov: 500, SamplesPerPixel: 0, Pitch: -1, Exposure: 99, Curve: 12}.Clamp()
	if p.Fov != MaxFov || p.SamplesPerPixel != MinSamplesPerPixel || p.Exposure != MaxExposure || p.Curve != CurveUncharted2 {
		t.Fatalf("unexpected clamp result %+v", p)
	}
	if p.Pitch <= 0 {
		t.Fatalf("pitch not clamped away from the pole: %v", p.Pitch)
	}
}

func TestConverged(t *testing.T) {
	p := RenderParameters{MaxSampleCount: 3, SampleCount: 3}
	if !p.Converged() {
		t.Error("expected converged at the budget")
	}
	p.MaxSampleCount = 0
	if p.Converged() {
		t.Error("zero budget means unlimited")
	}
}

func TestParseTonemapCurve(t *testing.T) {
	c, err := ParseTonemapCurve("ACES")
	if err != nil || c != CurveACES {
		t.Fatalf("got %v, %v", c, err)
	}
	if _, err := ParseTonemapCurve("filmic"); err == nil {
		t.Fatal("expected error")
	}
}

type recordingWriter struct {
	writes []bind_group_provider.BufferWrite
}

type stubBuffer struct{ size uint64 }

func (b *stubBuffer) Label() string           { return "stub" }
func (b *stubBuffer) Size() uint64            { return b.size }
func (b *stubBuffer) Usage() wgpu.BufferUsage { return wgpu.BufferUsageUniform }
func (b *stubBuffer) Release()                {}

func (w *recordingWriter) CreateBuffer(desc resource.BufferDescriptor) (resource.Buffer, error) {
	return &stubBuffer{size: desc.Size}, nil
}

func (w *recordingWriter) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	w.writes = append(w.writes, writes...)
}

func TestBlockRefreshWritesWholeBuffer(t *testing.T) {
	w := &recordingWriter{}
	b, err := NewBlock[TonemapParams](w, "tonemap params", TonemapLayout)
	if err != nil {
		t.Fatal(err)
	}
	b.Refresh(TonemapParams{Exposure: 1})
	b.Refresh(TonemapParams{Exposure: 2})
	if len(w.writes) != 2 {
		t.Fatalf("got %d writes, want 2", len(w.writes))
	}
	for _, wr := range w.writes {
		if wr.Offset != 0 || uint64(len(wr.Data)) != b.Buffer().Size() {
			t.Errorf("partial write: offset %d len %d", wr.Offset, len(wr.Data))
		}
	}
}

func TestNewBlockRejectsMismatchedLayout(t *testing.T) {
	if _, err := NewBlock[TraceParams](&recordingWriter{}, "bad", TonemapLayout); err == nil {
		t.Fatal("expected layout mismatch error")
	}
}
