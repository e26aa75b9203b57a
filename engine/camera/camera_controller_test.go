package camera

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/go-gl/mathgl/mgl32"
)

func newController(opts ...CameraControllerOption) (CameraController, *params.Store) {
	s := params.NewStore(params.DefaultRenderParameters())
	s.Acquire()
	return NewCameraController(s, opts...), s
}

func TestBasisIsOrthonormal(t *testing.T) {
	for _, o := range [][2]float32{{math.Pi / 2, 0}, {0.3, 1.2}, {2.9, -4}} {
		w, u, v := Basis(o[0], o[1])
		for _, vec := range []mgl32.Vec3{w, u, v} {
			if math.Abs(float64(vec.Len()-1)) > 1e-5 {
				t.Errorf("pitch %v yaw %v: |%v| = %v", o[0], o[1], vec, vec.Len())
			}
		}
		if d := w.Dot(u); math.Abs(float64(d)) > 1e-5 {
			t.Errorf("w.u = %v", d)
		}
		if d := w.Dot(v); math.Abs(float64(d)) > 1e-5 {
			t.Errorf("w.v = %v", d)
		}
	}
	w, u, v := Basis(math.Pi/2, 0)
	if !w.ApproxEqualThreshold(mgl32.Vec3{0, 0, 1}, 1e-6) || !u.ApproxEqualThreshold(mgl32.Vec3{1, 0, 0}, 1e-6) || !v.ApproxEqualThreshold(mgl32.Vec3{0, 1, 0}, 1e-6) {
		t.Errorf("level basis = %v %v %v", w, u, v)
	}
}

func TestHeldKeysMoveAlongBasis(t *testing.T) {
	cc, s := newController()
	start := s.Peek().CameraPosition

	if cc.Update() {
		t.Fatal("no keys held, nothing should move")
	}

	cc.KeyDown(common.KeyW)
	if !cc.Update() {
		t.Fatal("holding W should move the camera")
	}
	got := s.Peek().CameraPosition
	want := [3]float32{start[0], start[1], start[2] - 0.05}
	if !mgl32.Vec3(got).ApproxEqualThreshold(want, 1e-6) {
		t.Errorf("after W: %v, want %v", got, want)
	}
	if !s.Acquire().Changed {
		t.Error("movement should invalidate accumulation")
	}

	cc.KeyUp(common.KeyW)
	cc.KeyDown(common.KeyLeftShift)
	cc.KeyDown(common.KeyD)
	cc.Update()
	got = s.Peek().CameraPosition
	want[0] += 0.25
	if !mgl32.Vec3(got).ApproxEqualThreshold(want, 1e-6) {
		t.Errorf("after shift+D: %v, want %v", got, want)
	}

	cc.KeyUp(common.KeyD)
	cc.KeyUp(common.KeyLeftShift)
	cc.KeyDown(common.KeyE)
	cc.KeyDown(common.KeyQ)
	if cc.Update() {
		t.Error("opposing keys cancel out")
	}
}

func TestDragRotatesAndLocksPointer(t *testing.T) {
	var locks []bool
	cc, s := newController(WithViewport(100, 50), WithPointerLock(func(l bool) { locks = append(locks, l) }))
	before := s.Peek()

	cc.MouseMove(10, 10)
	if s.Peek() != before {
		t.Fatal("moving without a drag should not rotate")
	}

	cc.MouseButton(common.MouseButtonLeft, true, 10, 10)
	if !cc.Dragging() {
		t.Fatal("press should start a drag")
	}
	cc.MouseMove(20, 15)
	p := s.Peek()
	if want := before.Yaw - 5*10.0/100; math.Abs(float64(p.Yaw-want)) > 1e-6 {
		t.Errorf("yaw = %v, want %v", p.Yaw, want)
	}
	if want := before.Pitch - 5*5.0/50; math.Abs(float64(p.Pitch-want)) > 1e-6 {
		t.Errorf("pitch = %v, want %v", p.Pitch, want)
	}

	cc.MouseMove(20, -10000)
	if p := s.Peek(); p.Pitch > math.Pi || p.Pitch < maxPitch-1e-3 {
		t.Errorf("pitch not clamped: %v", p.Pitch)
	}

	cc.MouseButton(common.MouseButtonLeft, false, 20, 0)
	if cc.Dragging() {
		t.Fatal("release should end the drag")
	}
	if len(locks) != 2 || !locks[0] || locks[1] {
		t.Errorf("pointer lock calls = %v", locks)
	}
}

func TestDisplayKeysDoNotInvalidate(t *testing.T) {
	cc, s := newController()

	cc.KeyDown(common.Key2)
	cc.KeyDown(common.KeyEqual)
	cc.KeyDown(common.KeyEqual)
	cc.KeyDown(common.KeyMinus)

	f := s.Acquire()
	if f.Changed {
		t.Error("curve and exposure should not reset accumulation")
	}
	if f.Params.Curve != params.CurveReinhard {
		t.Errorf("curve = %v", f.Params.Curve)
	}
	if want := params.DefaultRenderParameters().Exposure + 0.1; math.Abs(float64(f.Params.Exposure-want)) > 1e-5 {
		t.Errorf("exposure = %v, want %v", f.Params.Exposure, want)
	}
}

func TestScrollChangesFov(t *testing.T) {
	cc, s := newController(WithZoomSpeed(10))
	cc.Scroll(1)
	f := s.Acquire()
	if !f.Changed || f.Params.Fov != params.DefaultRenderParameters().Fov-10 {
		t.Errorf("fov = %v, changed = %v", f.Params.Fov, f.Changed)
	}
	cc.Scroll(-100)
	if got := s.Peek().Fov; got != params.MaxFov {
		t.Errorf("fov not clamped: %v", got)
	}
}
