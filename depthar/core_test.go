package depthar

import (
	"encoding/binary"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/depthar/logging"
	"go.viam.com/depthar/rimage"
	"go.viam.com/depthar/rimage/transform"
	"go.viam.com/depthar/spatialmath"
)

func floatFrame(width, height int, depths ...float32) rimage.DepthFrame {
	data := make([]byte, width*height*4)
	for i, d := range depths {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(d))
	}
	return rimage.DepthFrame{Data: data, Width: width, Height: height, Stride: 4, PlaneCount: 1}
}

func millimeterFrame(width, height int, millis ...uint16) rimage.DepthFrame {
	data := make([]byte, width*height*2)
	for i, m := range millis {
		binary.LittleEndian.PutUint16(data[2*i:], m)
	}
	return rimage.DepthFrame{Data: data, Width: width, Height: height, Stride: 2, PlaneCount: 1}
}

var testRaw = transform.RawIntrinsics{
	FocalLength:    r2.Point{X: 4, Y: 5},
	PrincipalPoint: r2.Point{X: 2, Y: 2},
	Resolution:     image.Point{X: 4, Y: 4},
}

func TestCoreDepth(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	core := NewCore(logger)

	test.That(t, core.GetDepth(0, 0), test.ShouldEqual, rimage.InvalidDepth)
	_, ok := core.DepthAt(0, 0)
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, core.OnDepthFrame(floatFrame(2, 2, 0.5, 0, 1.5, 2)), test.ShouldBeNil)
	test.That(t, core.GetDepth(0, 0), test.ShouldEqual, float32(0.5))
	test.That(t, core.GetDepth(1, 0), test.ShouldEqual, rimage.InvalidDepth)
	test.That(t, core.GetDepth(0, 1), test.ShouldEqual, float32(1.5))
	test.That(t, core.GetDepth(2, 0), test.ShouldEqual, rimage.InvalidDepth)
	test.That(t, core.DepthSize(), test.ShouldResemble, image.Point{2, 2})

	// same byte length but a different encoding reuses storage
	test.That(t, core.OnDepthFrame(millimeterFrame(4, 2, 250)), test.ShouldBeNil)
	test.That(t, core.GetDepth(0, 0), test.ShouldAlmostEqual, 0.25, 1e-6)
	test.That(t, core.Stats().BufferAllocations, test.ShouldEqual, 1)

	test.That(t, core.OnDepthFrame(floatFrame(3, 3)), test.ShouldBeNil)
	test.That(t, core.Stats().BufferAllocations, test.ShouldEqual, 2)

	bad := floatFrame(3, 3, 1)
	bad.Stride = 3
	err := core.OnDepthFrame(bad)
	test.That(t, errors.Is(err, rimage.ErrUnsupportedDepthFormat), test.ShouldBeTrue)
	bad = floatFrame(3, 3, 1)
	bad.PlaneCount = 2
	err = core.OnDepthFrame(bad)
	test.That(t, errors.Is(err, rimage.ErrUnsupportedDepthFormat), test.ShouldBeTrue)

	stats := core.Stats()
	test.That(t, stats.DepthFrames, test.ShouldEqual, 3)
	test.That(t, stats.DroppedFrames, test.ShouldEqual, 2)
	test.That(t, stats.DepthSize, test.ShouldResemble, image.Point{3, 3})
	test.That(t, stats.ID, test.ShouldEqual, core.ID().String())
	test.That(t, logs.FilterMessage("rejecting depth frame").Len(), test.ShouldEqual, 2)

	snapshot := core.DepthSnapshot()
	test.That(t, snapshot.Width(), test.ShouldEqual, 3)
	test.That(t, snapshot.GetDepth(0, 0), test.ShouldEqual, rimage.InvalidDepth)
}

func TestCoreIntrinsics(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	core := NewCore(logger)

	test.That(t, core.ComputeVertex(1, 1, 1), test.ShouldResemble, transform.InvalidVertex)

	// before depth arrives the raw resolution is used
	test.That(t, core.OnIntrinsics(testRaw, true), test.ShouldBeNil)
	k, ok := core.Intrinsics()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, k.Width, test.ShouldEqual, 4)
	test.That(t, k.Fx, test.ShouldEqual, 4.0)
	test.That(t, k.Fy, test.ShouldEqual, 4.0)

	// and rescaled once it does
	test.That(t, core.OnDepthFrame(floatFrame(2, 2, 1, 1, 1, 1)), test.ShouldBeNil)
	k, _ = core.Intrinsics()
	test.That(t, k.Width, test.ShouldEqual, 2)
	test.That(t, k.Fx, test.ShouldEqual, 2.0)
	test.That(t, k.Ppy, test.ShouldEqual, 1.0)
	test.That(t, core.ComputeVertex(1, 1, 3), test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 3})

	// unavailable intrinsics keep the last value and warn once per transition
	for i := 0; i < 3; i++ {
		err := core.OnIntrinsics(transform.RawIntrinsics{}, false)
		test.That(t, errors.Is(err, transform.ErrNoIntrinsics), test.ShouldBeTrue)
	}
	stale, ok := core.Intrinsics()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, stale, test.ShouldResemble, k)
	test.That(t, logs.FilterMessage("intrinsics unavailable, keeping last value").Len(), test.ShouldEqual, 1)

	test.That(t, core.OnIntrinsics(testRaw, true), test.ShouldBeNil)
	test.That(t, logs.FilterMessage("intrinsics available again").Len(), test.ShouldEqual, 1)
	test.That(t, core.Stats().IntrinsicsResolved, test.ShouldBeTrue)
}

func TestCorePoseIdentityGuard(t *testing.T) {
	core := NewCore(logging.NewTestLogger(t))
	test.That(t, core.LocalToWorld(), test.ShouldResemble, mgl64.Ident4())

	pose := spatialmath.NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, spatialmath.NewEulerAnglesFromDegrees(0, 0, 45))
	core.OnPoseTick(pose, spatialmath.ScreenPortrait)
	stored := core.LocalToWorld()
	test.That(t, stored, test.ShouldResemble, spatialmath.LocalToWorld(pose, spatialmath.ScreenPortrait))
	test.That(t, core.Position(), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, core.Rotation().Yaw, test.ShouldAlmostEqual, math.Pi/4)

	core.OnPoseTick(spatialmath.NewZeroPose(), spatialmath.ScreenLandscapeLeft)
	test.That(t, core.LocalToWorld(), test.ShouldResemble, stored)
	test.That(t, core.Position(), test.ShouldResemble, r3.Vector{})

	stats := core.Stats()
	test.That(t, stats.PoseTicks, test.ShouldEqual, 2)
	test.That(t, stats.StaleTicks, test.ShouldEqual, 1)

	invalid := core.TransformToWorld(transform.InvalidVertex)
	test.That(t, transform.IsValidVertex(invalid), test.ShouldBeFalse)
}

// The same inputs applied in any order produce the same world geometry.
func TestCoreOrderIndependence(t *testing.T) {
	pose := spatialmath.NewPose(r3.Vector{X: -1, Y: 0.5, Z: 2}, &spatialmath.R4AA{Theta: 0.7, RX: 1, RY: 1})
	frame := floatFrame(2, 2, 1, 2, 3, 4)

	depthFirst := NewCore(logging.NewTestLogger(t))
	test.That(t, depthFirst.OnDepthFrame(frame), test.ShouldBeNil)
	test.That(t, depthFirst.OnIntrinsics(testRaw, true), test.ShouldBeNil)
	depthFirst.OnPoseTick(pose, spatialmath.ScreenLandscapeRight)

	poseFirst := NewCore(logging.NewTestLogger(t))
	poseFirst.OnPoseTick(pose, spatialmath.ScreenLandscapeRight)
	test.That(t, poseFirst.OnIntrinsics(testRaw, true), test.ShouldBeNil)
	test.That(t, poseFirst.OnDepthFrame(frame), test.ShouldBeNil)

	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			a := depthFirst.TransformToWorld(depthFirst.ComputeVertex(float64(x), float64(y), depthFirst.GetDepth(x, y)))
			b := poseFirst.TransformToWorld(poseFirst.ComputeVertex(float64(x), float64(y), poseFirst.GetDepth(x, y)))
			test.That(t, transform.IsValidVertex(a), test.ShouldBeTrue)
			test.That(t, a, test.ShouldResemble, b)
		}
	}
}

func TestCoreWorldPointCloud(t *testing.T) {
	core := NewCore(logging.NewTestLogger(t), WithMaxDepth(1.5))

	_, err := core.WorldPointCloud(0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = core.WorldPointCloud(1)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, core.OnDepthFrame(floatFrame(2, 2, 1, 0, 1, 1.75)), test.ShouldBeNil)
	_, err = core.WorldPointCloud(1)
	test.That(t, errors.Is(err, transform.ErrNoIntrinsics), test.ShouldBeTrue)

	raw := transform.RawIntrinsics{
		FocalLength:    r2.Point{X: 2, Y: 2},
		PrincipalPoint: r2.Point{X: 1, Y: 1},
		Resolution:     image.Point{X: 2, Y: 2},
	}
	test.That(t, core.OnIntrinsics(raw, true), test.ShouldBeNil)
	core.OnPoseTick(spatialmath.NewPose(r3.Vector{X: 10}, nil), spatialmath.ScreenLandscapeLeft)

	cloud, err := core.WorldPointCloud(1)
	test.That(t, err, test.ShouldBeNil)
	// (1, 0) has no depth and (1, 1) is beyond the clip
	test.That(t, cloud.Size(), test.ShouldEqual, 2)

	d, ok := cloud.At(9.5, 0.5, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 0)
	d, ok = cloud.At(9.5, 0, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 2)

	cloud, err = core.WorldPointCloud(2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 1)
}

func TestCoreStatus(t *testing.T) {
	clk := clock.NewMock()
	core := NewCore(logging.NewTestLogger(t), WithClock(clk))
	test.That(t, core.Status(), test.ShouldEqual, "0\nno depth")

	core.OnPoseTick(spatialmath.NewZeroPose(), spatialmath.ScreenPortrait)
	clk.Add(time.Second / 30)
	core.OnPoseTick(spatialmath.NewZeroPose(), spatialmath.ScreenPortrait)
	test.That(t, core.Status(), test.ShouldEqual, "30\nno depth")

	test.That(t, core.OnDepthFrame(floatFrame(3, 3, 0, 0, 0, 0, 1.5)), test.ShouldBeNil)
	test.That(t, core.Status(), test.ShouldEqual, "30\ncenter: 1.500 m")

	test.That(t, core.OnDepthFrame(floatFrame(3, 3)), test.ShouldBeNil)
	test.That(t, core.Status(), test.ShouldEqual, "30\ncenter: --")

	core.OnColorFrame(1920, 1440)
	test.That(t, core.Stats().ColorSize, test.ShouldResemble, image.Point{1920, 1440})
}

func TestCoreConcurrentAccess(t *testing.T) {
	core := NewCore(logging.NewBlankLogger("concurrent"))
	test.That(t, core.OnIntrinsics(testRaw, true), test.ShouldBeNil)

	core.OnPoseTick(spatialmath.NewPose(r3.Vector{Z: 1}, &spatialmath.R4AA{Theta: 0.7, RX: 1, RY: 1}), spatialmath.ScreenPortrait)
	want := *core.Rotation()

	var wg sync.WaitGroup
	errs := make(chan error, 1)
	rotations := make(chan spatialmath.EulerAngles, 8*50)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				rotations <- *core.Rotation()
			}
		}()
	}
	wg.Wait()
	close(rotations)
	for got := range rotations {
		test.That(t, got, test.ShouldResemble, want)
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := core.OnDepthFrame(floatFrame(4, 4, float32(i%7)+1)); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			core.OnPoseTick(spatialmath.NewPose(r3.Vector{X: float64(i)}, nil), spatialmath.ScreenPortrait)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			core.TransformToWorld(core.ComputeVertex(0, 0, core.GetDepth(0, 0)))
			core.Status()
		}
	}()
	wg.Wait()
	close(errs)
	test.That(t, <-errs, test.ShouldBeNil)

	stats := core.Stats()
	test.That(t, stats.DepthFrames, test.ShouldEqual, 200)
	test.That(t, stats.PoseTicks, test.ShouldEqual, 201)
	test.That(t, stats.BufferAllocations, test.ShouldEqual, 1)
}
