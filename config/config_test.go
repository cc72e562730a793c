package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/depthar/logging"
	"go.viam.com/depthar/spatialmath"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	test.That(t, cfg.Validate("path"), test.ShouldBeNil)
	test.That(t, cfg.TargetFPS, test.ShouldEqual, DefaultTargetFPS)
	test.That(t, cfg.PointStride, test.ShouldEqual, DefaultPointStride)
	test.That(t, cfg.LogLevel, test.ShouldEqual, DefaultLogLevel)
	test.That(t, cfg.TickInterval(), test.ShouldEqual, time.Second/30)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.INFO)
	test.That(t, cfg.Orientation(), test.ShouldEqual, spatialmath.ScreenUnknown)
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		cfg    Config
		errStr string
	}{
		{Config{TargetFPS: -1}, "target_fps"},
		{Config{PointStride: -2}, "point_stride"},
		{Config{MaxDepthMeters: -0.5}, "max_depth_m"},
		{Config{LogLevel: "loud"}, "log level"},
		{Config{DefaultOrientation: "sideways"}, "screen orientation"},
		{Config{Replay: &ReplayConfig{}}, "depth_file"},
		{Config{Replay: &ReplayConfig{DepthFile: "d.depth", PCDFormat: "zip"}}, "pcd data type"},
	} {
		err := tc.cfg.Validate("path")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		test.That(t, err.Error(), test.ShouldContainSubstring, "path")
	}

	cfg := Config{Replay: &ReplayConfig{DepthFile: "d.depth"}, DefaultOrientation: "landscape_right"}
	test.That(t, cfg.Validate("path"), test.ShouldBeNil)
	test.That(t, cfg.Replay.PCDFormat, test.ShouldEqual, "ascii")
	test.That(t, cfg.Orientation(), test.ShouldEqual, spatialmath.ScreenLandscapeRight)
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("DEPTHAR_TEST_FILE", "session.depth.gz")

	fn := filepath.Join(t.TempDir(), "cfg.json")
	test.That(t, os.WriteFile(fn, []byte(`{
		"target_fps": 60,
		"pose_first": true,
		"log_level": "debug",
		"replay": {"depth_file": "${DEPTHAR_TEST_FILE}", "pcd_format": "binary"}
	}`), 0o600), test.ShouldBeNil)

	cfg, err := Read(fn, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, fn)
	test.That(t, cfg.TargetFPS, test.ShouldEqual, 60)
	test.That(t, cfg.PointStride, test.ShouldEqual, DefaultPointStride)
	test.That(t, cfg.PoseFirst, test.ShouldBeTrue)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.DEBUG)
	test.That(t, cfg.Replay.DepthFile, test.ShouldEqual, "session.depth.gz")

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader("inline", strings.NewReader(`{"target_fps": "fast"}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = FromReader("inline", strings.NewReader(`{"frames_per_second": 3}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromAttributes(t *testing.T) {
	cfg, err := FromAttributes(map[string]interface{}{
		"target_fps":          "15",
		"point_stride":        2,
		"max_depth_m":         4.5,
		"default_orientation": "portrait",
		"replay":              map[string]interface{}{"depth_file": "a.depth", "loop": true},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.TargetFPS, test.ShouldEqual, 15)
	test.That(t, cfg.PointStride, test.ShouldEqual, 2)
	test.That(t, cfg.MaxDepthMeters, test.ShouldEqual, 4.5)
	test.That(t, cfg.Orientation(), test.ShouldEqual, spatialmath.ScreenPortrait)
	test.That(t, cfg.Replay.Loop, test.ShouldBeTrue)

	_, err = FromAttributes(map[string]interface{}{"nope": 1})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = FromAttributes(map[string]interface{}{"point_stride": -1})
	test.That(t, err, test.ShouldNotBeNil)
}
