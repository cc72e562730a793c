package depthar

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/depthar/config"
	"go.viam.com/depthar/logging"
	"go.viam.com/depthar/utils"
)

// FrameFunc is called at the end of every tick with the updated core. A non-nil error stops the
// controller.
type FrameFunc func(ctx context.Context, tick int64, core *Core) error

// Sources are what a FrameController pulls from each tick. Any of them may be nil.
type Sources struct {
	Depth      DepthSource
	Intrinsics IntrinsicsSource
	Pose       PoseSource
	OnFrame    FrameFunc
}

// FrameController drives a Core at a fixed display rate. Each tick it applies the device pose,
// the latest depth frame and the intrinsics for that frame, then calls OnFrame.
type FrameController struct {
	core      *Core
	sources   Sources
	clk       clock.Clock
	interval  time.Duration
	poseFirst bool
	logger    logging.Logger

	mu      sync.Mutex
	workers utils.StoppableWorkers
	done    chan struct{}
	err     error

	ticks atomic.Int64
}

// NewFrameController returns a controller for core. Start begins ticking.
func NewFrameController(
	core *Core,
	sources Sources,
	cfg *config.Config,
	clk clock.Clock,
	logger logging.Logger,
) *FrameController {
	if clk == nil {
		clk = clock.New()
	}
	return &FrameController{
		core:      core,
		sources:   sources,
		clk:       clk,
		interval:  cfg.TickInterval(),
		poseFirst: cfg.PoseFirst,
		logger:    logger.Sublogger("controller"),
		done:      make(chan struct{}),
	}
}

// Start begins ticking in the background. The controller stops when ctx is done, when Close is
// called, when a source is exhausted or on the first fatal error.
func (fc *FrameController) Start(ctx context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.workers != nil {
		return errors.New("frame controller already started")
	}

	// the ticker exists before Start returns so no tick of a mock clock is missed
	ticker := fc.clk.Ticker(fc.interval)
	fc.logger.Infow("starting", "interval", fc.interval, "pose_first", fc.poseFirst)
	fc.workers = utils.NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		defer close(fc.done)
		defer ticker.Stop()
		fc.run(ctx, ticker.C)
	})
	return nil
}

func (fc *FrameController) run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}
		if err := fc.Tick(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				fc.logger.Infow("depth source exhausted", "ticks", fc.ticks.Load())
			default:
				fc.logger.Errorw("stopping frame controller", "error", err)
				fc.setErr(err)
			}
			return
		}
	}
}

// Tick runs a single frame. io.EOF is returned once the depth source is exhausted. Source
// failures are logged and the stale state is kept; a rejected depth frame or an OnFrame error is
// returned.
func (fc *FrameController) Tick(ctx context.Context) error {
	tick := fc.ticks.Inc()
	if fc.poseFirst {
		fc.applyPose(ctx)
		if err := fc.applyDepth(ctx); err != nil {
			return err
		}
	} else {
		if err := fc.applyDepth(ctx); err != nil {
			return err
		}
		fc.applyPose(ctx)
	}
	if fc.sources.OnFrame != nil {
		if err := fc.sources.OnFrame(ctx, tick, fc.core); err != nil {
			return errors.Wrapf(err, "frame callback failed on tick %d", tick)
		}
	}
	return nil
}

func (fc *FrameController) applyPose(ctx context.Context) {
	if fc.sources.Pose == nil {
		return
	}
	pose, orientation, err := fc.sources.Pose.Pose(ctx)
	if err != nil {
		fc.logger.Warnw("pose unavailable, keeping previous transform", "error", err)
		return
	}
	fc.core.OnPoseTick(pose, orientation)
}

func (fc *FrameController) applyDepth(ctx context.Context) error {
	if fc.sources.Depth != nil {
		frame, ok, err := fc.sources.Depth.NextDepthFrame(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return err
		case err != nil:
			fc.logger.Warnw("depth unavailable, keeping previous frame", "error", err)
		case ok:
			if err := fc.core.OnDepthFrame(frame); err != nil {
				return err
			}
		}
	}
	if fc.sources.Intrinsics != nil {
		raw, ok, err := fc.sources.Intrinsics.Intrinsics(ctx)
		if err != nil {
			fc.logger.Debugw("intrinsics source failed", "error", err)
			ok = false
		}
		// the core keeps the stale value and logs the transition
		_ = fc.core.OnIntrinsics(raw, ok)
	}
	return nil
}

func (fc *FrameController) setErr(err error) {
	fc.mu.Lock()
	fc.err = err
	fc.mu.Unlock()
}

// Ticks is the number of ticks run so far.
func (fc *FrameController) Ticks() int64 {
	return fc.ticks.Load()
}

// Done is closed once the tick loop has exited.
func (fc *FrameController) Done() <-chan struct{} {
	return fc.done
}

// Err returns the error that stopped the tick loop, if any.
func (fc *FrameController) Err() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.err
}

// Close stops the tick loop and closes any source that is an io.Closer. The error that stopped
// the loop, if any, is included in the result.
func (fc *FrameController) Close() error {
	fc.mu.Lock()
	workers := fc.workers
	fc.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}

	var err error
	closed := map[interface{}]bool{}
	for _, src := range []interface{}{fc.sources.Depth, fc.sources.Intrinsics, fc.sources.Pose} {
		c, ok := src.(io.Closer)
		if !ok || closed[c] {
			continue
		}
		closed[c] = true
		err = multierr.Combine(err, c.Close())
	}
	return multierr.Combine(err, fc.Err())
}
