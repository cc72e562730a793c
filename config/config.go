// Package config defines the structures to configure a depth session and the means to read them.
package config

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/depthar/logging"
	"go.viam.com/depthar/pointcloud"
	"go.viam.com/depthar/spatialmath"
)

// Defaults applied to zero values by Config.Validate.
const (
	DefaultTargetFPS   = 30
	DefaultPointStride = 4
	DefaultLogLevel    = "info"
)

// Config describes how a depth session is driven.
type Config struct {
	ConfigFilePath string `json:"-"`

	// TargetFPS is the tick rate of the frame controller.
	TargetFPS int `json:"target_fps"`
	// PointStride is the pixel step used when building point clouds.
	PointStride int `json:"point_stride"`
	// MaxDepthMeters drops points farther than this from clouds. Zero disables the clip.
	MaxDepthMeters float64 `json:"max_depth_m"`
	// PoseFirst applies the pose before the depth frame on each tick.
	PoseFirst bool `json:"pose_first"`
	LogLevel  string `json:"log_level"`
	// DefaultOrientation is used by sources that cannot report a screen orientation.
	DefaultOrientation string `json:"default_orientation"`

	Replay *ReplayConfig `json:"replay,omitempty"`
}

// ReplayConfig names a recorded session to play back.
type ReplayConfig struct {
	DepthFile string `json:"depth_file"`
	TrackFile string `json:"track_file"`
	OutputPCD string `json:"output_pcd"`
	PCDFormat string `json:"pcd_format"`
	// Loop restarts the recording when it runs out.
	Loop bool `json:"loop"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (c *Config) Validate(path string) error {
	if c.TargetFPS < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("target_fps must be positive, got %d", c.TargetFPS))
	}
	if c.TargetFPS == 0 {
		c.TargetFPS = DefaultTargetFPS
	}
	if c.PointStride < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("point_stride must be positive, got %d", c.PointStride))
	}
	if c.PointStride == 0 {
		c.PointStride = DefaultPointStride
	}
	if c.MaxDepthMeters < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("max_depth_m cannot be negative, got %v", c.MaxDepthMeters))
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if _, err := spatialmath.ParseScreenOrientation(c.DefaultOrientation); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if c.Replay != nil {
		if err := c.Replay.Validate(path + ".replay"); err != nil {
			return err
		}
	}
	return nil
}

// Validate ensures the replay names a recording and a known output format.
func (rc *ReplayConfig) Validate(path string) error {
	if rc.DepthFile == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "depth_file")
	}
	if rc.PCDFormat == "" {
		rc.PCDFormat = pointcloud.PCDAscii.String()
	}
	if _, err := pointcloud.ParsePCDType(rc.PCDFormat); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	return nil
}

// TickInterval is the frame controller period for TargetFPS.
func (c *Config) TickInterval() time.Duration {
	fps := c.TargetFPS
	if fps <= 0 {
		fps = DefaultTargetFPS
	}
	return time.Second / time.Duration(fps)
}

// Level is the parsed LogLevel, falling back to INFO.
func (c *Config) Level() logging.Level {
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// Orientation is the parsed DefaultOrientation.
func (c *Config) Orientation() spatialmath.ScreenOrientation {
	o, err := spatialmath.ParseScreenOrientation(c.DefaultOrientation)
	if err != nil {
		return spatialmath.ScreenUnknown
	}
	return o
}
