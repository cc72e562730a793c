package transform

import (
	"fmt"

	"github.com/pkg/errors"
)

// ResolveIntrinsics rescales raw sensor intrinsics to a target buffer resolution. After scaling
// Fy is forced equal to Fx, which assumes square pixels.
func ResolveIntrinsics(raw RawIntrinsics, targetWidth, targetHeight int) (*PinholeCameraIntrinsics, error) {
	if err := raw.CheckValid(); err != nil {
		return nil, err
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("Invalid target size (%d, %d)", targetWidth, targetHeight))
	}

	scaleX := float64(targetWidth) / float64(raw.Resolution.X)
	scaleY := float64(targetHeight) / float64(raw.Resolution.Y)

	fx := raw.FocalLength.X * scaleX
	return &PinholeCameraIntrinsics{
		Width:  targetWidth,
		Height: targetHeight,
		Fx:     fx,
		Fy:     fx,
		Ppx:    raw.PrincipalPoint.X * scaleX,
		Ppy:    raw.PrincipalPoint.Y * scaleY,
	}, nil
}

// IntrinsicsResolver keeps the intrinsics of the current depth buffer resolution. When the host
// has no intrinsics for a frame the last good value is retained rather than cleared.
type IntrinsicsResolver struct {
	current *PinholeCameraIntrinsics
	raw     *RawIntrinsics
}

// NewIntrinsicsResolver returns a resolver with no intrinsics yet.
func NewIntrinsicsResolver() *IntrinsicsResolver {
	return &IntrinsicsResolver{}
}

// Update recomputes the intrinsics for the given buffer size. If available is false, or the raw
// values cannot be scaled, the previous intrinsics are kept and an ErrNoIntrinsics error is
// returned.
func (ir *IntrinsicsResolver) Update(raw RawIntrinsics, available bool, targetWidth, targetHeight int) error {
	if !available {
		return NewNoIntrinsicsError("intrinsics unavailable this frame")
	}
	resolved, err := ResolveIntrinsics(raw, targetWidth, targetHeight)
	if err != nil {
		return err
	}
	rawCopy := raw
	ir.raw = &rawCopy
	ir.current = resolved
	return nil
}

// Rescale reapplies the last raw intrinsics to a new buffer size, for when the depth resolution
// changes without fresh intrinsics from the host.
func (ir *IntrinsicsResolver) Rescale(targetWidth, targetHeight int) error {
	if ir.raw == nil {
		return NewNoIntrinsicsError("no raw intrinsics to rescale")
	}
	if ir.current != nil && ir.current.Width == targetWidth && ir.current.Height == targetHeight {
		return nil
	}
	resolved, err := ResolveIntrinsics(*ir.raw, targetWidth, targetHeight)
	if err != nil {
		return errors.Wrap(err, "cannot rescale intrinsics")
	}
	ir.current = resolved
	return nil
}

// Current returns a copy of the current intrinsics and whether any have been resolved.
func (ir *IntrinsicsResolver) Current() (PinholeCameraIntrinsics, bool) {
	if ir.current == nil {
		return PinholeCameraIntrinsics{}, false
	}
	return *ir.current, true
}

// Raw returns the last raw intrinsics accepted.
func (ir *IntrinsicsResolver) Raw() (RawIntrinsics, bool) {
	if ir.raw == nil {
		return RawIntrinsics{}, false
	}
	return *ir.raw, true
}
