// Package transform holds the camera models that map depth-buffer pixels to 3D rays.
package transform

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D
// scene to the 2D plane, expressed in the pixel units of the image it applies to.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width == 0 || params.Height == 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// FocalLength returns (fx, fy).
func (params *PinholeCameraIntrinsics) FocalLength() r2.Point {
	return r2.Point{X: params.Fx, Y: params.Fy}
}

// PrincipalPoint returns (ppx, ppy).
func (params *PinholeCameraIntrinsics) PrincipalPoint() r2.Point {
	return r2.Point{X: params.Ppx, Y: params.Ppy}
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// RawIntrinsics are the sensor intrinsics as reported by the host, in sensor pixel units.
type RawIntrinsics struct {
	FocalLength    r2.Point    `json:"focal_length"`
	PrincipalPoint r2.Point    `json:"principal_point"`
	Resolution     image.Point `json:"resolution"`
}

// CheckValid checks that the raw intrinsics can be rescaled.
func (raw *RawIntrinsics) CheckValid() error {
	if raw == nil {
		return NewNoIntrinsicsError("raw intrinsics do not exist")
	}
	if raw.Resolution.X <= 0 || raw.Resolution.Y <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid sensor resolution (%d, %d)", raw.Resolution.X, raw.Resolution.Y))
	}
	if raw.FocalLength.X <= 0 || raw.FocalLength.Y <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length (%v, %v)", raw.FocalLength.X, raw.FocalLength.Y))
	}
	return nil
}

// NewRawIntrinsicsFromJSONFile reads raw sensor intrinsics from a JSON file.
func NewRawIntrinsicsFromJSONFile(jsonPath string) (*RawIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	raw := &RawIntrinsics{}
	if err := json.Unmarshal(byteValue, raw); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return raw, nil
}
