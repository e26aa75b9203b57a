package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	minPitch = 1e-6
	maxPitch = math.Pi - 1e-6
)

// cameraControllerImpl is the fly-camera implementation of CameraController.
// It is the only writer of the parameter store.
type cameraControllerImpl struct {
	mu    *sync.Mutex
	store *params.Store

	held map[uint32]bool

	dragging     bool
	lastX, lastY float32

	width, height int

	moveRate        float32
	fastMoveRate    float32
	lookSensitivity float32
	exposureStep    float32
	zoomSpeed       float32

	lockPointer func(locked bool)
}

var _ CameraController = &cameraControllerImpl{}

var curveKeys = map[uint32]params.TonemapCurve{
	common.Key1: params.CurveClamp,
	common.Key2: params.CurveReinhard,
	common.Key3: params.CurveACES,
	common.Key4: params.CurveUncharted2,
}

// NewCameraController creates a fly controller writing into store.
//
// Parameters:
//   - store: the parameter store to update
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(store *params.Store, options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:              &sync.Mutex{},
		store:           store,
		held:            make(map[uint32]bool),
		width:           1280,
		height:          720,
		moveRate:        0.05,
		fastMoveRate:    0.25,
		lookSensitivity: 5,
		exposureStep:    0.1,
		zoomSpeed:       2,
	}
	for _, option := range options {
		option(cc)
	}
	return cc
}

func (cc *cameraControllerImpl) KeyDown(key uint32) {
	cc.mu.Lock()
	cc.held[key] = true
	cc.mu.Unlock()

	if curve, ok := curveKeys[key]; ok {
		cc.store.Update(func(p *params.RenderParameters) { p.Curve = curve })
		return
	}
	switch key {
	case common.KeyEqual:
		cc.store.Update(func(p *params.RenderParameters) { p.Exposure += cc.exposureStep })
	case common.KeyMinus:
		cc.store.Update(func(p *params.RenderParameters) { p.Exposure -= cc.exposureStep })
	}
}

func (cc *cameraControllerImpl) KeyUp(key uint32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.held, key)
}

func (cc *cameraControllerImpl) MouseButton(button uint32, down bool, x, y float32) {
	if button != common.MouseButtonLeft && button != common.MouseButtonRight {
		return
	}
	cc.mu.Lock()
	if cc.dragging == down {
		cc.mu.Unlock()
		return
	}
	cc.dragging = down
	cc.lastX, cc.lastY = x, y
	lock := cc.lockPointer
	cc.mu.Unlock()

	if lock != nil {
		lock(down)
	}
}

func (cc *cameraControllerImpl) MouseMove(x, y float32) {
	cc.mu.Lock()
	if !cc.dragging {
		cc.mu.Unlock()
		return
	}
	dx := cc.lookSensitivity * (x - cc.lastX) / float32(max(cc.width, 1))
	dy := cc.lookSensitivity * (y - cc.lastY) / float32(max(cc.height, 1))
	cc.lastX, cc.lastY = x, y
	cc.mu.Unlock()

	if dx == 0 && dy == 0 {
		return
	}
	cc.store.Update(func(p *params.RenderParameters) {
		p.Pitch = mgl32.Clamp(p.Pitch-dy, minPitch, maxPitch)
		p.Yaw -= dx
	})
}

func (cc *cameraControllerImpl) Scroll(delta float32) {
	if delta == 0 {
		return
	}
	cc.store.Update(func(p *params.RenderParameters) { p.Fov -= delta * cc.zoomSpeed })
}

func (cc *cameraControllerImpl) Resize(width, height int) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.width, cc.height = width, height
}

func (cc *cameraControllerImpl) Update() bool {
	cc.mu.Lock()
	rate := cc.moveRate
	if cc.held[common.KeyLeftShift] {
		rate = cc.fastMoveRate
	}
	// Each axis is (negative key, positive key); the vectors are resolved against the current basis.
	var steps [3]float32
	for i, pair := range [3][2]uint32{
		{common.KeyW, common.KeyS},
		{common.KeyA, common.KeyD},
		{common.KeyQ, common.KeyE},
	} {
		if cc.held[pair[0]] {
			steps[i] -= rate
		}
		if cc.held[pair[1]] {
			steps[i] += rate
		}
	}
	cc.mu.Unlock()

	if steps == [3]float32{} {
		return false
	}
	return cc.store.Update(func(p *params.RenderParameters) {
		w, u, v := Basis(p.Pitch, p.Yaw)
		delta := w.Mul(steps[0]).Add(u.Mul(steps[1])).Add(v.Mul(steps[2]))
		p.CameraPosition = [3]float32(mgl32.Vec3(p.CameraPosition).Add(delta))
	})
}

func (cc *cameraControllerImpl) Dragging() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.dragging
}
