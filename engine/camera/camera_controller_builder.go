package camera

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithMoveRate sets the distance moved per frame for a held movement key.
//
// Parameters:
//   - rate: distance per frame
//   - fast: distance per frame while Left Shift is held
//
// Returns:
//   - CameraControllerOption: functional option to set the movement rates
func WithMoveRate(rate, fast float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.moveRate = rate
		cc.fastMoveRate = fast
	}
}

// WithLookSensitivity sets how many radians a drag across the full viewport turns the camera.
//
// Parameters:
//   - sensitivity: radians per viewport width or height
//
// Returns:
//   - CameraControllerOption: functional option to set the look sensitivity
func WithLookSensitivity(sensitivity float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.lookSensitivity = sensitivity
	}
}

// WithExposureStep sets the exposure change per +/- key press.
//
// Parameters:
//   - step: exposure delta
//
// Returns:
//   - CameraControllerOption: functional option to set the exposure step
func WithExposureStep(step float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.exposureStep = step
	}
}

// WithZoomSpeed sets the field of view change in degrees per scroll unit.
//
// Parameters:
//   - speed: degrees per scroll unit
//
// Returns:
//   - CameraControllerOption: functional option to set zoom speed
func WithZoomSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.zoomSpeed = speed
	}
}

// WithViewport sets the initial viewport size.
//
// Parameters:
//   - width, height: viewport size in pixels
//
// Returns:
//   - CameraControllerOption: functional option to set the viewport
func WithViewport(width, height int) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.width = width
		cc.height = height
	}
}

// WithPointerLock sets the function used to lock and release the pointer during a drag.
//
// Parameters:
//   - lock: called with true when a drag starts and false when it ends
//
// Returns:
//   - CameraControllerOption: functional option to set the pointer lock hook
func WithPointerLock(lock func(locked bool)) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.lockPointer = lock
	}
}
