package camera

// CameraController translates window input into updates of the render parameter store.
// Movement keys are held state applied once per frame by Update; look, curve, exposure and
// fov edits are applied as their events arrive.
type CameraController interface {
	// KeyDown records a pressed key and applies one-shot bindings (tonemap curve, exposure).
	//
	// Parameters:
	//   - key: the key code (see common.Key*)
	KeyDown(key uint32)

	// KeyUp records a released key.
	//
	// Parameters:
	//   - key: the key code (see common.Key*)
	KeyUp(key uint32)

	// MouseButton starts a drag-look on press and ends it on release. The pointer is locked
	// for the duration of the drag.
	//
	// Parameters:
	//   - button: the mouse button (see common.MouseButton*)
	//   - down: true on press
	//   - x, y: the cursor position
	MouseButton(button uint32, down bool, x, y float32)

	// MouseMove rotates the camera while a drag is active.
	//
	// Parameters:
	//   - x, y: the cursor position
	MouseMove(x, y float32)

	// Scroll narrows or widens the field of view.
	//
	// Parameters:
	//   - delta: scroll amount, positive zooms in
	Scroll(delta float32)

	// Resize sets the viewport size mouse deltas are normalised against.
	//
	// Parameters:
	//   - width, height: viewport size in pixels
	Resize(width, height int)

	// Update moves the camera along its basis for every held movement key.
	//
	// Returns:
	//   - bool: true if the camera moved
	Update() bool

	// Dragging reports whether a drag-look is in progress.
	//
	// Returns:
	//   - bool: true while a button is held
	Dragging() bool
}
