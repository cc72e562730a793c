package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
	goutils "go.viam.com/utils"

	"go.viam.com/depthar/pointcloud"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"depthreplay"}, args...))
	return out.String(), err
}

func TestSynthInspectReplay(t *testing.T) {
	dir := t.TempDir()
	depthFile := filepath.Join(dir, "session.depth.gz")
	trackFile := filepath.Join(dir, "track.json")
	pcdFile := filepath.Join(dir, "cloud.pcd")

	_, err := runApp(t, "synth", "--depth", depthFile, "--track", trackFile,
		"--frames", "4", "--width", "8", "--height", "6")
	test.That(t, err, test.ShouldBeNil)

	out, err := runApp(t, "inspect", "--depth", depthFile, "--stride", "1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "FORMAT")
	test.That(t, strings.Count(out, "8x6"), test.ShouldEqual, 4)
	test.That(t, strings.Count(out, "float32_m"), test.ShouldEqual, 2)
	test.That(t, strings.Count(out, "uint16_mm"), test.ShouldEqual, 2)
	test.That(t, strings.Count(out, "100.0%"), test.ShouldEqual, 4)
	test.That(t, out, test.ShouldContainSubstring, "2.000")

	out, err = runApp(t, "replay", "--depth", depthFile, "--track", trackFile,
		"--out", pcdFile, "--format", "binary", "--stride", "2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "4 frames, 0 dropped, 4 pose ticks (0 stale)")

	f, err := os.Open(pcdFile)
	test.That(t, err, test.ShouldBeNil)
	defer goutils.UncheckedErrorFunc(f.Close)
	cloud, err := pointcloud.ReadPCD(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldBeGreaterThan, 0)
	test.That(t, cloud.Size(), test.ShouldBeLessThanOrEqualTo, 4*4*3)
}

func TestReplayConfigFile(t *testing.T) {
	dir := t.TempDir()
	depthFile := filepath.Join(dir, "session.depth")
	trackFile := filepath.Join(dir, "track.json")
	_, err := runApp(t, "synth", "--depth", depthFile, "--track", trackFile,
		"--frames", "2", "--width", "4", "--height", "4")
	test.That(t, err, test.ShouldBeNil)

	t.Setenv("DEPTHREPLAY_DIR", dir)
	cfgFile := filepath.Join(dir, "replay.json")
	test.That(t, os.WriteFile(cfgFile, []byte(`{
		"point_stride": 1,
		"replay": {
			"depth_file": "${DEPTHREPLAY_DIR}/session.depth",
			"track_file": "${DEPTHREPLAY_DIR}/track.json",
			"output_pcd": "${DEPTHREPLAY_DIR}/cloud.pcd"
		}
	}`), 0o600), test.ShouldBeNil)

	out, err := runApp(t, "replay", "--config", cfgFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "2 frames")

	data, err := os.ReadFile(filepath.Join(dir, "cloud.pcd"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.HasPrefix(string(data), "VERSION .7\nFIELDS x y z value\n"), test.ShouldBeTrue)
	test.That(t, string(data), test.ShouldContainSubstring, "DATA ascii\n")
}

func TestReplayErrors(t *testing.T) {
	dir := t.TempDir()
	depthFile := filepath.Join(dir, "session.depth")
	trackFile := filepath.Join(dir, "track.json")
	_, err := runApp(t, "synth", "--depth", depthFile, "--track", trackFile, "--frames", "1")
	test.That(t, err, test.ShouldBeNil)

	_, err = runApp(t, "replay", "--depth", depthFile)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "--track")

	_, err = runApp(t, "replay", "--track", trackFile)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "depth_file")

	_, err = runApp(t, "replay", "--depth", depthFile, "--track", trackFile, "--loop")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "replay", "--depth", depthFile, "--track", trackFile,
		"--out", filepath.Join(dir, "cloud.pcd"), "--format", "binary_compressed")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "synth", "--depth", depthFile, "--track", trackFile, "--frames", "0")
	test.That(t, err, test.ShouldNotBeNil)
}
