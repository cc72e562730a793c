// Package rimage holds the per-frame depth raster delivered by the AR host and the helpers to
// decode, summarize and record it.
package rimage

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/pkg/errors"
)

// InvalidDepth is returned, in meters, for pixels that carry no measurement. Downstream consumers
// rely on this exact value.
const InvalidDepth float32 = 99999.0

const millimetersToMeters = 0.001

// ErrUnsupportedDepthFormat is returned when a frame does not use a single-plane 16-bit or
// 32-bit depth encoding.
var ErrUnsupportedDepthFormat = errors.New("unsupported depth format")

// DepthFormat is the per-pixel encoding of a depth frame.
type DepthFormat int

const (
	// DepthFormatUnknown is an unrecognized encoding.
	DepthFormatUnknown DepthFormat = iota
	// DepthUint16Millimeters is little-endian unsigned 16-bit millimeters.
	DepthUint16Millimeters
	// DepthFloat32Meters is little-endian IEEE 754 32-bit meters.
	DepthFloat32Meters
)

// FormatForStride returns the encoding implied by a pixel stride in bytes.
func FormatForStride(stride int) (DepthFormat, error) {
	switch stride {
	case 2:
		return DepthUint16Millimeters, nil
	case 4:
		return DepthFloat32Meters, nil
	default:
		return DepthFormatUnknown, errors.Wrapf(ErrUnsupportedDepthFormat, "pixel stride %d", stride)
	}
}

// Stride returns the number of bytes per pixel for the format.
func (f DepthFormat) Stride() int {
	switch f {
	case DepthUint16Millimeters:
		return 2
	case DepthFloat32Meters:
		return 4
	case DepthFormatUnknown:
	}
	return 0
}

func (f DepthFormat) String() string {
	switch f {
	case DepthUint16Millimeters:
		return "uint16_mm"
	case DepthFloat32Meters:
		return "float32_m"
	case DepthFormatUnknown:
	}
	return "unknown"
}

// DepthFrame is a raw depth image as pushed by the host.
type DepthFrame struct {
	Data       []byte
	Width      int
	Height     int
	Stride     int
	PlaneCount int
}

// CheckValid checks that the frame is a single plane with a supported stride whose data length
// matches its dimensions.
func (f *DepthFrame) CheckValid() error {
	if f.PlaneCount != 1 {
		return errors.Wrapf(ErrUnsupportedDepthFormat, "plane count is %d, expected 1", f.PlaneCount)
	}
	if _, err := FormatForStride(f.Stride); err != nil {
		return err
	}
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Errorf("bad width or height for depth frame %v %v", f.Width, f.Height)
	}
	if expected := f.Width * f.Height * f.Stride; len(f.Data) != expected {
		return errors.Errorf("depth frame has %d bytes, expected %d (%dx%d stride %d)",
			len(f.Data), expected, f.Width, f.Height, f.Stride)
	}
	return nil
}

// DepthBuffer owns the latest depth frame. Its storage is reused across frames of equal byte
// length and reallocated only when the length changes. It is not safe for concurrent use.
type DepthBuffer struct {
	raw    []byte
	width  int
	height int
	stride int

	reallocations int
}

// NewEmptyDepthBuffer returns a buffer with no data. Every lookup returns InvalidDepth until a
// frame is loaded.
func NewEmptyDepthBuffer() *DepthBuffer {
	return &DepthBuffer{}
}

// NewDepthBufferFromFrame returns a buffer holding a copy of the frame.
func NewDepthBufferFromFrame(frame DepthFrame) (*DepthBuffer, error) {
	db := NewEmptyDepthBuffer()
	if err := db.Replace(frame); err != nil {
		return nil, err
	}
	return db, nil
}

// Replace loads a new frame. An invalid frame leaves the buffer untouched.
func (db *DepthBuffer) Replace(frame DepthFrame) error {
	if err := frame.CheckValid(); err != nil {
		return err
	}
	if len(db.raw) != len(frame.Data) {
		db.raw = make([]byte, len(frame.Data))
		db.reallocations++
	}
	copy(db.raw, frame.Data)
	db.width = frame.Width
	db.height = frame.Height
	db.stride = frame.Stride
	return nil
}

// Reallocations returns how many times the backing storage has been allocated.
func (db *DepthBuffer) Reallocations() int {
	return db.reallocations
}

// HasData returns whether a frame has been loaded.
func (db *DepthBuffer) HasData() bool {
	return db.width > 0 && len(db.raw) > 0
}

// Width returns the horizontal size of the buffer in pixels.
func (db *DepthBuffer) Width() int {
	return db.width
}

// Height returns the vertical size of the buffer in pixels.
func (db *DepthBuffer) Height() int {
	return db.height
}

// Stride returns the bytes per pixel of the current frame.
func (db *DepthBuffer) Stride() int {
	return db.stride
}

// Format returns the encoding of the current frame.
func (db *DepthBuffer) Format() DepthFormat {
	f, _ := FormatForStride(db.stride)
	return f
}

// Bounds returns the rectangle dimensions of the buffer.
func (db *DepthBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, db.width, db.height)
}

// DecodeDepth returns the depth in meters at pixel (x, y). In portrait mode (0, 0) is the
// physical top right of the screen and (width, height) the bottom left. Pixels without a
// measurement, and coordinates outside the buffer, yield InvalidDepth.
func (db *DepthBuffer) DecodeDepth(x, y int) float32 {
	if x < 0 || y < 0 || x >= db.width || y >= db.height {
		return InvalidDepth
	}
	index := y*db.width + x
	offset := db.stride * index

	var depthInMeters float32
	switch db.stride {
	case 4:
		depthInMeters = math.Float32frombits(binary.LittleEndian.Uint32(db.raw[offset:]))
	case 2:
		depthInMeters = float32(binary.LittleEndian.Uint16(db.raw[offset:])) * millimetersToMeters
	}

	if depthInMeters > 0 {
		return depthInMeters
	}
	return InvalidDepth
}

// GetDepth is an alias of DecodeDepth.
func (db *DepthBuffer) GetDepth(x, y int) float32 {
	return db.DecodeDepth(x, y)
}

// DepthAt is DecodeDepth with an explicit validity flag. The returned depth is still
// InvalidDepth when ok is false.
func (db *DepthBuffer) DepthAt(x, y int) (float32, bool) {
	d := db.DecodeDepth(x, y)
	return d, d != InvalidDepth
}

// Frame returns a copy of the buffer as a DepthFrame.
func (db *DepthBuffer) Frame() DepthFrame {
	data := make([]byte, len(db.raw))
	copy(data, db.raw)
	return DepthFrame{Data: data, Width: db.width, Height: db.height, Stride: db.stride, PlaneCount: 1}
}

// Clone makes a deep copy of the buffer. The copy starts with a fresh reallocation count.
func (db *DepthBuffer) Clone() *DepthBuffer {
	if !db.HasData() {
		return NewEmptyDepthBuffer()
	}
	return &DepthBuffer{
		raw:           db.Frame().Data,
		width:         db.width,
		height:        db.height,
		stride:        db.stride,
		reallocations: 1,
	}
}
