package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"go.viam.com/depthar/utils"
)

// PoseTransform tracks the local-to-world matrix for the current frame.
type PoseTransform struct {
	localToWorld mgl64.Mat4
	position     r3.Vector
	orientation  Orientation
	screen       ScreenOrientation
	updates      int
}

// NewPoseTransform returns a PoseTransform whose local-to-world matrix is the identity.
func NewPoseTransform() *PoseTransform {
	return &PoseTransform{
		localToWorld: mgl64.Ident4(),
		orientation:  NewZeroOrientation(),
	}
}

// ScreenRotation is the rotation about +Z, the depth axis, that corrects for screen orientation.
func ScreenRotation(o ScreenOrientation) mgl64.Mat4 {
	return mgl64.HomogRotate3DZ(utils.DegToRad(ScreenCorrectionDegrees(o)))
}

// LocalToWorld composes the device transform with the screen correction. The correction is
// applied first, in device-local space.
func LocalToWorld(pose Pose, o ScreenOrientation) mgl64.Mat4 {
	return pose.Matrix().Mul4(ScreenRotation(o))
}

// Update records pose and screen orientation for the frame and recomputes the local-to-world
// matrix. It returns false and keeps the previous matrix when the device transform is exactly the
// identity, which hosts report before tracking starts. A device truly at the world origin with no
// rotation is indistinguishable from that case and is treated the same way.
// Position and rotation are recorded either way.
func (pt *PoseTransform) Update(pose Pose, o ScreenOrientation) bool {
	pt.position = pose.Position
	if pose.Orientation != nil {
		// hosts may reuse the orientation they pass in
		pt.orientation = NewOrientationFromQuaternion(pose.Orientation.Quaternion())
	} else {
		pt.orientation = NewZeroOrientation()
	}
	pt.screen = o

	device := pose.Matrix()
	if device == mgl64.Ident4() {
		return false
	}
	pt.localToWorld = device.Mul4(ScreenRotation(o))
	pt.updates++
	return true
}

// LocalToWorld returns the current local-to-world matrix.
func (pt *PoseTransform) LocalToWorld() mgl64.Mat4 {
	return pt.localToWorld
}

// Apply transforms a camera space vertex into the world frame.
func (pt *PoseTransform) Apply(v r3.Vector) r3.Vector {
	return ApplyMatrix(pt.localToWorld, v)
}

// Position is the device position from the last Update.
func (pt *PoseTransform) Position() r3.Vector {
	return pt.position
}

// Rotation is the device rotation from the last Update.
func (pt *PoseTransform) Rotation() *EulerAngles {
	return pt.orientation.EulerAngles()
}

// Orientation is the device orientation from the last Update.
func (pt *PoseTransform) Orientation() Orientation {
	return pt.orientation
}

// Screen is the screen orientation from the last Update.
func (pt *PoseTransform) Screen() ScreenOrientation {
	return pt.screen
}

// Updates counts the calls to Update that recomputed the matrix.
func (pt *PoseTransform) Updates() int {
	return pt.updates
}

// ApplyMatrix applies m to v as a homogeneous point (w = 1) and drops w without a perspective
// divide. A vertex with any -Inf component is returned unchanged.
func ApplyMatrix(m mgl64.Mat4, v r3.Vector) r3.Vector {
	if math.IsInf(v.X, -1) || math.IsInf(v.Y, -1) || math.IsInf(v.Z, -1) {
		return v
	}
	out := m.Mul4x1(mgl64.Vec4{v.X, v.Y, v.Z, 1})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}
