// Package camera turns keyboard and mouse input into edits of the live render parameters.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// WorldUp is the fixed up vector the camera basis is built against.
var WorldUp = mgl32.Vec3{0, 1, 0}

// Basis returns the orthogonal camera frame for a pitch/yaw orientation, matching the frame
// the trace kernel builds its primary rays from. w points backwards from the view direction,
// u to the right and v up.
//
// Parameters:
//   - pitch: angle from +Y in radians
//   - yaw: angle around +Y in radians
//
// Returns:
//   - w, u, v: the backward, right and up unit vectors
func Basis(pitch, yaw float32) (w, u, v mgl32.Vec3) {
	sp, cp := math.Sincos(float64(pitch))
	sy, cy := math.Sincos(float64(yaw))
	w = mgl32.Vec3{float32(sy * sp), float32(cp), float32(cy * sp)}
	u = WorldUp.Cross(w)
	if l := u.Len(); l > 1e-6 {
		u = u.Mul(1 / l)
	} else {
		u = mgl32.Vec3{1, 0, 0}
	}
	v = w.Cross(u)
	return w, u, v
}
