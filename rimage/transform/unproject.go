package transform

import (
	"math"

	"github.com/golang/geo/r3"
)

// InvalidVertex is returned for pixels without a usable depth. All components are negative
// infinity and downstream consumers rely on that exact value.
var InvalidVertex = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}

// IsValidVertex reports whether v is real geometry rather than InvalidVertex.
func IsValidVertex(v r3.Vector) bool {
	return !math.IsInf(v.X, -1) && !math.IsInf(v.Y, -1) && !math.IsInf(v.Z, -1)
}

// Unproject returns the camera space vertex of pixel (x, y) at depth z meters. The image row axis
// points down, so y is negated to give an up-positive vertex. In portrait mode x and y are
// swapped relative to the screen, i.e. +x is down and +y is right. Non-positive depth gives
// InvalidVertex.
func (params *PinholeCameraIntrinsics) Unproject(x, y float64, z float32) r3.Vector {
	return params.unproject(x, y, float64(z))
}

func (params *PinholeCameraIntrinsics) unproject(x, y, z float64) r3.Vector {
	if !(z > 0) {
		return InvalidVertex
	}
	vx := (x - params.Ppx) * z / params.Fx
	vy := (y - params.Ppy) * z / params.Fy
	return r3.Vector{X: vx, Y: -vy, Z: z}
}

// PixelToPoint transforms a pixel with depth to a 3D point in the same up-positive convention
// as Unproject.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	v := params.unproject(x, y, z)
	return v.X, v.Y, v.Z
}

// PointToPixel projects a camera space vertex produced by Unproject back onto the image plane.
// A vertex with non-positive depth has no projection and gives (-1, -1).
func (params *PinholeCameraIntrinsics) PointToPixel(v r3.Vector) (float64, float64) {
	if !(v.Z > 0) {
		return -1.0, -1.0
	}
	xPx := v.X*params.Fx/v.Z + params.Ppx
	yPx := -v.Y*params.Fy/v.Z + params.Ppy
	return xPx, yPx
}
