package spatialmath

import (
	"strings"

	"github.com/pkg/errors"
)

// ScreenOrientation is the orientation of the device screen as reported by the host.
type ScreenOrientation int

// Known screen orientations.
const (
	ScreenUnknown ScreenOrientation = iota
	ScreenPortrait
	ScreenPortraitUpsideDown
	ScreenLandscapeLeft
	ScreenLandscapeRight
)

func (o ScreenOrientation) String() string {
	switch o {
	case ScreenPortrait:
		return "portrait"
	case ScreenPortraitUpsideDown:
		return "portrait_upside_down"
	case ScreenLandscapeLeft:
		return "landscape_left"
	case ScreenLandscapeRight:
		return "landscape_right"
	case ScreenUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// ParseScreenOrientation returns the orientation named by s. The empty string is ScreenUnknown.
func ParseScreenOrientation(s string) (ScreenOrientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "portrait":
		return ScreenPortrait, nil
	case "portrait_upside_down", "portraitupsidedown":
		return ScreenPortraitUpsideDown, nil
	case "landscape_left", "landscapeleft":
		return ScreenLandscapeLeft, nil
	case "landscape_right", "landscaperight":
		return ScreenLandscapeRight, nil
	case "", "unknown":
		return ScreenUnknown, nil
	default:
		return ScreenUnknown, errors.Errorf("unknown screen orientation %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o ScreenOrientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *ScreenOrientation) UnmarshalText(text []byte) error {
	parsed, err := ParseScreenOrientation(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ScreenCorrectionDegrees is the rotation about the optical axis that brings depth buffer
// vertices into the device frame for the given screen orientation.
func ScreenCorrectionDegrees(o ScreenOrientation) float64 {
	switch o {
	case ScreenPortrait:
		return -90
	case ScreenLandscapeLeft:
		return 0
	case ScreenPortraitUpsideDown:
		return 90
	case ScreenLandscapeRight:
		return 180
	case ScreenUnknown:
		return -90
	default:
		return -90
	}
}

// DisplayRotationDegrees is the rotation a host applies to the depth texture so it reads upright
// on screen.
func DisplayRotationDegrees(o ScreenOrientation) float64 {
	switch o {
	case ScreenPortrait:
		return 90
	case ScreenLandscapeLeft:
		return 180
	case ScreenPortraitUpsideDown:
		return -90
	case ScreenLandscapeRight:
		return 0
	case ScreenUnknown:
		return 90
	default:
		return 90
	}
}
