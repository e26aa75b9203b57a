package profiler

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/logger"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// timedPipeline registers a trivial compute pipeline so frames can carry timestamp writes.
func timedPipeline(t *testing.T, r renderer.Renderer) bind_group_provider.BindGroupProvider {
	t.Helper()
	s, err := shader.NewShader("noop", shader.ShaderTypeCompute, "@compute @workgroup_size(1) fn main() {}")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterPipelines(pipeline.NewPipeline("noop", pipeline.PipelineTypeCompute, pipeline.WithComputeShader(s))); err != nil {
		t.Fatal(err)
	}
	p := bind_group_provider.NewBindGroupProvider("noop")
	if err := r.InitBindGroup(p, wgpu.BindGroupLayoutDescriptor{}); err != nil {
		t.Fatal(err)
	}
	return p
}

func timedFrame(t *testing.T, r renderer.Renderer, timer Timer, p bind_group_provider.BindGroupProvider) {
	t.Helper()
	cmd, err := r.BeginCommands()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.DispatchCompute("noop", p, [3]uint32{1, 1, 1}, timer.TraceTimestamps()); err != nil {
		t.Fatal(err)
	}
	if err := timer.QueryPerf(cmd); err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(cmd); err != nil {
		t.Fatal(err)
	}
}

func TestPoolNeverReusesPendingBuffer(t *testing.T) {
	r, b := renderertest.NewRenderer()
	pool := NewReadbackPool(r, 32)
	src, err := r.CreateBuffer(resource.BufferDescriptor{Label: "Source", Size: 32, Usage: wgpu.BufferUsageCopySrc})
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(7, 11))

	completed := 0
	for frame := 0; frame < 100; frame++ {
		h, err := pool.Checkout()
		if err != nil {
			t.Fatal(err)
		}
		if h.Buffer().(*renderertest.Buffer).Pending() {
			t.Fatalf("frame %d: checked out %s with a map in flight", frame, h.Buffer().Label())
		}
		if h.State() != HandleCheckedOut {
			t.Fatalf("frame %d: state = %v", frame, h.State())
		}

		cmd, err := r.BeginCommands()
		if err != nil {
			t.Fatal(err)
		}
		if err := cmd.CopyBufferToBuffer(src, 0, h.Buffer(), 0, 32); err != nil {
			t.Fatal(err)
		}
		cmd.OnSubmitted(func() {
			if err := pool.Map(h, func([]byte, error) { completed++ }); err != nil {
				t.Errorf("map: %v", err)
			}
		})
		if err := r.Submit(cmd); err != nil {
			t.Fatal(err)
		}
		if h.State() != HandlePending {
			t.Fatalf("frame %d: state after submit = %v", frame, h.State())
		}

		// Complete a random subset of the outstanding maps in random order.
		for n := rng.IntN(b.PendingMaps() + 1); n > 0; n-- {
			b.CompleteMap(rng.IntN(b.PendingMaps()))
		}
	}
	for b.PendingMaps() > 0 {
		b.CompleteMap(rng.IntN(b.PendingMaps()))
	}

	if len(b.Violations) != 0 {
		t.Fatalf("violations: %v", b.Violations)
	}
	if completed != 100 {
		t.Errorf("completed %d maps", completed)
	}
	if pool.Spares() != pool.Len() || pool.Pending() != 0 {
		t.Errorf("spares %d of %d, pending %d", pool.Spares(), pool.Len(), pool.Pending())
	}
	if pool.Len() >= 100 {
		t.Errorf("pool never recycled: %d buffers", pool.Len())
	}
}

func TestPoolCheckinRules(t *testing.T) {
	r, b := renderertest.NewRenderer()
	pool := NewReadbackPool(r, 16, WithMaxBuffers(2))
	other := NewReadbackPool(r, 16)

	h1, err := pool.Checkout()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := pool.Checkout()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Checkout(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("third checkout: %v", err)
	}

	if err := pool.Map(h2, func([]byte, error) {}); err != nil {
		t.Fatal(err)
	}
	if err := pool.Checkin(h2); !errors.Is(err, ErrReadbackPending) {
		t.Errorf("checkin pending: %v", err)
	}
	if err := pool.Map(h2, func([]byte, error) {}); !errors.Is(err, ErrHandleNotCheckedOut) {
		t.Errorf("double map: %v", err)
	}
	if err := other.Checkin(h1); !errors.Is(err, ErrHandleNotCheckedOut) {
		t.Errorf("foreign checkin: %v", err)
	}

	if err := pool.Checkin(h1); err != nil {
		t.Fatal(err)
	}
	if err := pool.Checkin(h1); !errors.Is(err, ErrHandleNotCheckedOut) {
		t.Errorf("double checkin: %v", err)
	}
	if h, err := pool.Checkout(); err != nil || h != h1 {
		t.Errorf("recycled checkout = %p, %v", h, err)
	}

	b.CompleteMap(0)
	if h2.State() != HandleIdle || pool.Spares() != 1 {
		t.Errorf("after completion: %v, %d spares", h2.State(), pool.Spares())
	}
}

func TestTimerReportsEveryThirtySamples(t *testing.T) {
	var out bytes.Buffer
	logger.SetSink(&out)
	defer logger.SetSink(nopWriter{})

	r, b := renderertest.NewRenderer()
	b.Timestamps = true
	b.AutoCompleteMaps = true
	timer, err := NewTimer(r)
	if err != nil {
		t.Fatal(err)
	}
	if !timer.Enabled() {
		t.Fatal("timer should be enabled")
	}
	p := timedPipeline(t, r)

	for i := 0; i < 29; i++ {
		timedFrame(t, r, timer, p)
		r.Poll()
	}
	if s := timer.Stats()[PassTrace]; s.Samples != 29 || s.Reports != 0 {
		t.Fatalf("after 29 frames: %+v", s)
	}
	timedFrame(t, r, timer, p)
	r.Poll()

	s := timer.Stats()[PassTrace]
	if s.Samples != 30 || s.Reports != 1 || s.LastReport != time.Millisecond {
		t.Fatalf("after 30 frames: %+v", s)
	}
	if !strings.Contains(out.String(), "avg trace: 1ms (spare readback buffers: 0)") {
		t.Errorf("report line missing:\n%s", out.String())
	}
	if present := timer.Stats()[PassPresent]; present.Samples != 0 {
		t.Errorf("present pass was never armed: %+v", present)
	}
	if len(b.Violations) != 0 {
		t.Errorf("violations: %v", b.Violations)
	}

	var table bytes.Buffer
	timer.DumpStats(&table)
	if !strings.Contains(table.String(), "Samples") || !strings.Contains(table.String(), "trace") {
		t.Errorf("stats table:\n%s", table.String())
	}
}

func TestTimerDiscardsNegativeDeltas(t *testing.T) {
	r, b := renderertest.NewRenderer()
	b.Timestamps = true
	b.AutoCompleteMaps = true
	values := []uint64{100, 50, 200, 200, 300, 450}
	b.Clock = func() uint64 {
		v := values[0]
		values = values[1:]
		return v
	}
	timer, err := NewTimer(r)
	if err != nil {
		t.Fatal(err)
	}
	p := timedPipeline(t, r)
	for i := 0; i < 3; i++ {
		timedFrame(t, r, timer, p)
		r.Poll()
	}

	s := timer.Stats()[PassTrace]
	if s.Samples != 1 || s.Discarded != 2 || s.Mean != 150*time.Nanosecond {
		t.Errorf("stats = %+v", s)
	}
}

func TestTimerScalesTicksByPeriod(t *testing.T) {
	r, b := renderertest.NewRenderer()
	b.Timestamps = true
	b.AutoCompleteMaps = true
	values := []uint64{100, 140}
	b.Clock = func() uint64 {
		v := values[0]
		values = values[1:]
		return v
	}
	timer, err := NewTimer(r, WithTimestampPeriod(2.5))
	if err != nil {
		t.Fatal(err)
	}
	timedFrame(t, r, timer, timedPipeline(t, r))
	r.Poll()

	if s := timer.Stats()[PassTrace]; s.Samples != 1 || s.Mean != 100*time.Nanosecond {
		t.Errorf("stats = %+v", s)
	}
}

func TestTimerDiscardDropsArmedPasses(t *testing.T) {
	r, b := renderertest.NewRenderer()
	b.Timestamps = true
	b.AutoCompleteMaps = true
	timer, err := NewTimer(r)
	if err != nil {
		t.Fatal(err)
	}
	p := timedPipeline(t, r)

	// A frame that arms the trace pass but never reaches QueryPerf.
	cmd, err := r.BeginCommands()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.DispatchCompute("noop", p, [3]uint32{1, 1, 1}, timer.TraceTimestamps()); err != nil {
		t.Fatal(err)
	}
	timer.Discard()
	if err := r.Submit(cmd); err != nil {
		t.Fatal(err)
	}

	// The next frame arms nothing, so nothing may be resolved or recorded.
	b.ResetOps()
	cmd, err = r.BeginCommands()
	if err != nil {
		t.Fatal(err)
	}
	if err := timer.QueryPerf(cmd); err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(cmd); err != nil {
		t.Fatal(err)
	}
	r.Poll()

	for _, op := range b.Ops {
		if strings.HasPrefix(op, "resolve ") {
			t.Errorf("stale slots resolved: %v", b.Ops)
		}
	}
	if s := timer.Stats()[PassTrace]; s.Samples != 0 || s.Discarded != 0 {
		t.Errorf("stale trace sample recorded: %+v", s)
	}
}

func TestTimerSkipsFramesWhenPoolExhausted(t *testing.T) {
	r, b := renderertest.NewRenderer()
	b.Timestamps = true
	timer, err := NewTimer(r, WithMaxReadbackBuffers(1))
	if err != nil {
		t.Fatal(err)
	}
	p := timedPipeline(t, r)

	timedFrame(t, r, timer, p)
	timedFrame(t, r, timer, p)

	resolves := 0
	for _, op := range b.Ops {
		if strings.HasPrefix(op, "resolve ") {
			resolves++
		}
	}
	if resolves != 1 || b.PendingMaps() != 1 {
		t.Errorf("resolves = %d, pending maps = %d", resolves, b.PendingMaps())
	}
	b.CompleteMap(0)
	timedFrame(t, r, timer, p)
	if b.PendingMaps() != 1 || len(b.Violations) != 0 {
		t.Errorf("pending = %d, violations = %v", b.PendingMaps(), b.Violations)
	}
}

func TestNewTimerFallsBackToNoop(t *testing.T) {
	cases := []struct {
		name       string
		timestamps bool
		opts       []TimerBuilderOption
	}{
		{"unsupported", false, nil},
		{"disabled", true, []TimerBuilderOption{WithEnabled(false)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, b := renderertest.NewRenderer()
			b.Timestamps = c.timestamps
			timer, err := NewTimer(r, c.opts...)
			if err != nil {
				t.Fatal(err)
			}
			if timer.Enabled() || timer.TraceTimestamps() != nil || timer.PresentTimestamps() != nil {
				t.Fatal("expected a no-op timer")
			}
			cmd, err := r.BeginCommands()
			if err != nil {
				t.Fatal(err)
			}
			if err := timer.QueryPerf(cmd); err != nil {
				t.Fatal(err)
			}
			if err := r.Submit(cmd); err != nil {
				t.Fatal(err)
			}
			if len(b.Buffers()) != 0 || timer.Stats() != nil {
				t.Errorf("no-op timer allocated %d buffers", len(b.Buffers()))
			}
		})
	}
}

func TestProfilerTick(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProfiler(WithInterval(time.Second), WithClock(func() time.Time { return now }))
	reported := 0
	for i := 0; i < 20; i++ {
		now = now.Add(100 * time.Millisecond)
		if p.Tick() {
			reported++
		}
	}
	if reported != 2 || p.Frames() != 20 {
		t.Errorf("reported %d times over %d frames", reported, p.Frames())
	}
	if p.FPS() != 10 {
		t.Errorf("FPS = %v", p.FPS())
	}
}

type nopWriter struct{}

func (nopWriter) Write(b []byte) (int, error) { return len(b), nil }
