// Package depthar turns a live depth feed and device pose into world space geometry. A Core owns
// the latest depth buffer, the resolved camera intrinsics and the local-to-world transform; hosts
// push data into it and read depths and vertices back out.
package depthar

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/depthar/logging"
	"go.viam.com/depthar/pointcloud"
	"go.viam.com/depthar/rimage"
	"go.viam.com/depthar/rimage/transform"
	"go.viam.com/depthar/spatialmath"
)

// statsStep is the pixel step used for per-frame depth statistics at debug level.
const statsStep = 8

// Option configures a Core.
type Option func(*Core)

// WithClock sets the clock used to time pose ticks. Tests pass a mock.
func WithClock(clk clock.Clock) Option {
	return func(c *Core) {
		c.clk = clk
	}
}

// WithMaxDepth drops points farther than meters from world point clouds. Zero disables the clip.
func WithMaxDepth(meters float64) Option {
	return func(c *Core) {
		c.maxDepth = meters
	}
}

// Core is the single owner of the depth buffer and pose state of a session. OnDepthFrame,
// OnIntrinsics and OnPoseTick may be called in any order and from different goroutines; readers
// always observe a whole frame and a whole matrix.
type Core struct {
	id     uuid.UUID
	logger logging.Logger
	clk    clock.Clock

	mu         sync.RWMutex
	depth      *rimage.DepthBuffer
	intrinsics *transform.IntrinsicsResolver
	pose       *spatialmath.PoseTransform
	colorSize  image.Point
	maxDepth   float64

	lastTick  time.Time
	tickDelta time.Duration

	intrinsicsStale bool
	matrixStale     bool

	depthFrames   atomic.Int64
	droppedFrames atomic.Int64
	poseTicks     atomic.Int64
	staleTicks    atomic.Int64
}

// NewCore returns a Core with no depth, no intrinsics and an identity local-to-world transform.
func NewCore(logger logging.Logger, opts ...Option) *Core {
	c := &Core{
		id:         uuid.New(),
		clk:        clock.New(),
		depth:      rimage.NewEmptyDepthBuffer(),
		intrinsics: transform.NewIntrinsicsResolver(),
		pose:       spatialmath.NewPoseTransform(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Sublogger("core").Sublogger(c.id.String()[:8])
	return c
}

// ID identifies the session this core belongs to.
func (c *Core) ID() uuid.UUID {
	return c.id
}

// OnDepthFrame replaces the depth buffer with frame. A frame with an unsupported layout is
// rejected, logged and leaves the previous buffer in place; callers should treat the error as a
// broken host contract.
func (c *Core) OnDepthFrame(frame rimage.DepthFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevSize := image.Point{c.depth.Width(), c.depth.Height()}
	if err := c.depth.Replace(frame); err != nil {
		c.droppedFrames.Inc()
		c.logger.Errorw("rejecting depth frame", "error", err,
			"width", frame.Width, "height", frame.Height, "stride", frame.Stride, "planes", frame.PlaneCount)
		return errors.Wrap(err, "cannot accept depth frame")
	}
	c.depthFrames.Inc()

	if size := (image.Point{frame.Width, frame.Height}); size != prevSize {
		c.logger.Infow("depth resolution changed", "from", prevSize, "to", size, "format", c.depth.Format())
		if _, ok := c.intrinsics.Raw(); ok {
			if err := c.intrinsics.Rescale(size.X, size.Y); err != nil {
				c.logger.Warnw("cannot rescale intrinsics", "error", err)
			}
		}
	}

	if c.logger.GetLevel() == logging.DEBUG {
		c.logFrameDebug()
	}
	return nil
}

func (c *Core) logFrameDebug() {
	cx, cy := c.depth.Width()/2, c.depth.Height()/2
	ds, err := c.depth.Stats(statsStep)
	if err != nil {
		c.logger.Debugw("depth frame", "center", c.depth.GetDepth(cx, cy), "stats_error", err)
		return
	}
	c.logger.Debugw("depth frame",
		"center", c.depth.GetDepth(cx, cy),
		"valid", ds.ValidFraction(),
		"min", ds.Min,
		"max", ds.Max,
		"median", ds.Median)
}

// OnIntrinsics resolves raw intrinsics against the current depth resolution. Before any depth has
// arrived the raw resolution is used and the result is rescaled once depth shows up. When the
// host has no intrinsics the previous value is kept and an ErrNoIntrinsics error is returned.
func (c *Core) OnIntrinsics(raw transform.RawIntrinsics, ok bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, h := c.depth.Width(), c.depth.Height()
	if !c.depth.HasData() {
		w, h = raw.Resolution.X, raw.Resolution.Y
	}
	if err := c.intrinsics.Update(raw, ok, w, h); err != nil {
		if !c.intrinsicsStale {
			_, have := c.intrinsics.Current()
			c.logger.Warnw("intrinsics unavailable, keeping last value", "error", err, "have_previous", have)
			c.intrinsicsStale = true
		}
		return err
	}
	if c.intrinsicsStale {
		c.logger.Info("intrinsics available again")
		c.intrinsicsStale = false
	}
	return nil
}

// OnPoseTick records the device pose and screen orientation for the current display frame and
// recomputes the local-to-world transform. An exactly identity device transform keeps the
// previous matrix; see spatialmath.PoseTransform.Update.
func (c *Core) OnPoseTick(pose spatialmath.Pose, orientation spatialmath.ScreenOrientation) {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastTick.IsZero() {
		c.tickDelta = now.Sub(c.lastTick)
	}
	c.lastTick = now
	c.poseTicks.Inc()

	if c.pose.Update(pose, orientation) {
		if c.matrixStale {
			c.logger.Debug("device transform available again")
			c.matrixStale = false
		}
		return
	}
	c.staleTicks.Inc()
	if !c.matrixStale {
		c.logger.Debugw("identity device transform, keeping previous local-to-world", "orientation", orientation)
		c.matrixStale = true
	}
}

// OnColorFrame records the size of the latest color frame for status reporting.
func (c *Core) OnColorFrame(width, height int) {
	c.mu.Lock()
	c.colorSize = image.Point{width, height}
	c.mu.Unlock()
}

// GetDepth returns the depth in meters at pixel (x, y) of the current buffer, or
// rimage.InvalidDepth when there is no measurement.
func (c *Core) GetDepth(x, y int) float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.depth.GetDepth(x, y)
}

// DepthAt is GetDepth with a validity flag.
func (c *Core) DepthAt(x, y int) (float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.depth.DepthAt(x, y)
}

// ComputeVertex unprojects pixel (x, y) at depth z meters into camera space with the current
// intrinsics. Without intrinsics, or with non-positive depth, it returns transform.InvalidVertex.
func (c *Core) ComputeVertex(x, y float64, z float32) r3.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.intrinsics.Current()
	if !ok {
		return transform.InvalidVertex
	}
	return k.Unproject(x, y, z)
}

// TransformToWorld applies the current local-to-world transform to a camera space vertex.
func (c *Core) TransformToWorld(v r3.Vector) r3.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose.Apply(v)
}

// Position is the device position from the last pose tick.
func (c *Core) Position() r3.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose.Position()
}

// Rotation is the device rotation from the last pose tick, in radians.
func (c *Core) Rotation() *spatialmath.EulerAngles {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose.Rotation()
}

// LocalToWorld returns the current local-to-world matrix.
func (c *Core) LocalToWorld() mgl64.Mat4 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose.LocalToWorld()
}

// Intrinsics returns the intrinsics resolved for the current depth resolution.
func (c *Core) Intrinsics() (transform.PinholeCameraIntrinsics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.intrinsics.Current()
}

// DepthSize is the resolution of the current depth buffer.
func (c *Core) DepthSize() image.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return image.Point{c.depth.Width(), c.depth.Height()}
}

// DepthSnapshot returns a copy of the current depth buffer.
func (c *Core) DepthSnapshot() *rimage.DepthBuffer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.depth.Clone()
}

// WorldPointCloud unprojects every step-th pixel with a valid depth and places it in the world
// frame. Each point carries its pixel index, y*width+x, as its value.
func (c *Core) WorldPointCloud(step int) (pointcloud.PointCloud, error) {
	if step <= 0 {
		return nil, errors.Errorf("step must be positive, got %d", step)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.depth.HasData() {
		return nil, errors.New("no depth frame received yet")
	}
	k, ok := c.intrinsics.Current()
	if !ok {
		return nil, transform.NewNoIntrinsicsError("cannot build point cloud")
	}
	m := c.pose.LocalToWorld()

	width, height := c.depth.Width(), c.depth.Height()
	cloud := pointcloud.NewWithPrealloc((width/step + 1) * (height/step + 1))
	for y := 0; y < height; y += step {
		for x := 0; x < width; x += step {
			z, valid := c.depth.DepthAt(x, y)
			if !valid {
				continue
			}
			if c.maxDepth > 0 && float64(z) > c.maxDepth {
				continue
			}
			v := k.Unproject(float64(x), float64(y), z)
			if err := cloud.Set(spatialmath.ApplyMatrix(m, v), pointcloud.NewValueData(y*width+x)); err != nil {
				return nil, err
			}
		}
	}
	return cloud, nil
}

// Status is the text a host shows next to the depth image: the display rate on the first line
// and the depth at the center pixel on the second.
func (c *Core) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fps := 0
	if c.tickDelta > 0 {
		fps = int(math.Round(float64(time.Second) / float64(c.tickDelta)))
	}
	if !c.depth.HasData() {
		return fmt.Sprintf("%d\nno depth", fps)
	}
	center := c.depth.GetDepth(c.depth.Width()/2, c.depth.Height()/2)
	if center == rimage.InvalidDepth {
		return fmt.Sprintf("%d\ncenter: --", fps)
	}
	return fmt.Sprintf("%d\ncenter: %.3f m", fps, center)
}

// Stats are counters describing a session so far.
type Stats struct {
	ID                 string
	DepthFrames        int64
	DroppedFrames      int64
	PoseTicks          int64
	StaleTicks         int64
	BufferAllocations  int
	DepthSize          image.Point
	ColorSize          image.Point
	IntrinsicsResolved bool
}

// Stats returns the session counters.
func (c *Core) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, resolved := c.intrinsics.Current()
	return Stats{
		ID:                 c.id.String(),
		DepthFrames:        c.depthFrames.Load(),
		DroppedFrames:      c.droppedFrames.Load(),
		PoseTicks:          c.poseTicks.Load(),
		StaleTicks:         c.staleTicks.Load(),
		BufferAllocations:  c.depth.Reallocations(),
		DepthSize:          image.Point{c.depth.Width(), c.depth.Height()},
		ColorSize:          c.colorSize,
		IntrinsicsResolved: resolved,
	}
}
