package depthar

import (
	"context"
	"sync"

	"go.viam.com/depthar/rimage"
	"go.viam.com/depthar/rimage/transform"
	"go.viam.com/depthar/spatialmath"
)

// A DepthSource yields the latest depth frame from the host. ok is false when no new frame is
// available this tick. io.EOF means the source is exhausted.
type DepthSource interface {
	NextDepthFrame(ctx context.Context) (frame rimage.DepthFrame, ok bool, err error)
}

// An IntrinsicsSource yields the raw sensor intrinsics for the current frame. ok is false when the
// host cannot provide them this frame.
type IntrinsicsSource interface {
	Intrinsics(ctx context.Context) (raw transform.RawIntrinsics, ok bool, err error)
}

// A PoseSource yields the device pose in the world frame and the current screen orientation.
type PoseSource interface {
	Pose(ctx context.Context) (spatialmath.Pose, spatialmath.ScreenOrientation, error)
}

// LatestDepthSource holds the most recent frame pushed by a host callback until the controller
// takes it. Frames pushed between ticks replace one another.
type LatestDepthSource struct {
	mu     sync.Mutex
	frame  rimage.DepthFrame
	fresh  bool
	pushed int
}

// Push stores a copy of frame as the latest.
func (s *LatestDepthSource) Push(frame rimage.DepthFrame) {
	data := make([]byte, len(frame.Data))
	copy(data, frame.Data)
	frame.Data = data

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
	s.fresh = true
	s.pushed++
}

// Pushed is the number of frames pushed so far.
func (s *LatestDepthSource) Pushed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

// NextDepthFrame returns the latest frame if it has not been returned before.
func (s *LatestDepthSource) NextDepthFrame(ctx context.Context) (rimage.DepthFrame, bool, error) {
	if err := ctx.Err(); err != nil {
		return rimage.DepthFrame{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return rimage.DepthFrame{}, false, nil
	}
	s.fresh = false
	return s.frame, true, nil
}

// StaticIntrinsicsSource always reports the same raw intrinsics.
type StaticIntrinsicsSource struct {
	Raw transform.RawIntrinsics
}

// Intrinsics returns the configured intrinsics.
func (s StaticIntrinsicsSource) Intrinsics(ctx context.Context) (transform.RawIntrinsics, bool, error) {
	return s.Raw, true, ctx.Err()
}

// PoseSourceFunc adapts a function to a PoseSource.
type PoseSourceFunc func(ctx context.Context) (spatialmath.Pose, spatialmath.ScreenOrientation, error)

// Pose calls f.
func (f PoseSourceFunc) Pose(ctx context.Context) (spatialmath.Pose, spatialmath.ScreenOrientation, error) {
	return f(ctx)
}

// StaticPoseSource always reports the same pose and orientation.
func StaticPoseSource(pose spatialmath.Pose, orientation spatialmath.ScreenOrientation) PoseSource {
	return PoseSourceFunc(func(ctx context.Context) (spatialmath.Pose, spatialmath.ScreenOrientation, error) {
		return pose, orientation, ctx.Err()
	})
}
