package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// Pose is the position and orientation of the device in the world frame. Position is in meters.
type Pose struct {
	Position    r3.Vector
	Orientation Orientation
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return Pose{Orientation: NewZeroOrientation()}
}

// NewPose constructs a pose. A nil orientation means no rotation.
func NewPose(p r3.Vector, o Orientation) Pose {
	if o == nil {
		o = NewZeroOrientation()
	}
	return Pose{Position: p, Orientation: o}
}

// Matrix returns the rigid device-local to world transform: translate(position) * rotate(orientation).
func (p Pose) Matrix() mgl64.Mat4 {
	t := mgl64.Translate3D(p.Position.X, p.Position.Y, p.Position.Z)
	if p.Orientation == nil {
		return t
	}
	return t.Mul4(quatToMat4(p.Orientation))
}

func quatToMat4(o Orientation) mgl64.Mat4 {
	q := o.Quaternion()
	mq := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}
	if mq.Len() == 0 {
		return mgl64.Ident4()
	}
	return mq.Normalize().Mat4()
}
