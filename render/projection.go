package render

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Camera placement for the skeleton view.
var (
	Eye         = mgl32.Vec3{0, 0, 4.5}
	FieldOfView = float32(25)
	Near        = float32(0.3)
	Far         = float32(1000)
)

// Projection is the model-view-projection for a width x height surface.
func Projection(width, height int) mgl32.Mat4 {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	view := mgl32.LookAtV(Eye, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(FieldOfView), aspect, Near, Far)
	model := mgl32.Scale3D(1, 1, 1)
	return proj.Mul4(view.Mul4(model))
}

// ToViewport maps a world position to pixel coordinates with the origin at
// the top left. ok is false for points behind the camera.
func ToViewport(mvp mgl32.Mat4, v mgl32.Vec3, width, height int) (x, y float32, ok bool) {
	clip := mvp.Mul4x1(v.Vec4(1))
	if clip.W() <= 0 {
		return 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	x = (ndc.X() + 1) / 2 * float32(width)
	y = (1 - ndc.Y()) / 2 * float32(height)
	return x, y, true
}
