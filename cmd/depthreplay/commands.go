package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os/signal"
	"syscall"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/depthar/config"
	"go.viam.com/depthar/depthar"
	"go.viam.com/depthar/logging"
	"go.viam.com/depthar/pointcloud"
	"go.viam.com/depthar/rimage"
	"go.viam.com/depthar/rimage/transform"
	"go.viam.com/depthar/spatialmath"
	"go.viam.com/depthar/utils"
)

func loadReplayConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	cfg := &config.Config{}
	if fn := c.String(flagConfig); fn != "" {
		var err error
		if cfg, err = config.Read(fn, logger); err != nil {
			return nil, err
		}
	}
	if cfg.Replay == nil {
		cfg.Replay = &config.ReplayConfig{}
	}
	if c.IsSet(flagDepth) {
		cfg.Replay.DepthFile = c.String(flagDepth)
	}
	if c.IsSet(flagTrack) {
		cfg.Replay.TrackFile = c.String(flagTrack)
	}
	if c.IsSet(flagOut) {
		cfg.Replay.OutputPCD = c.String(flagOut)
	}
	if c.IsSet(flagFormat) {
		cfg.Replay.PCDFormat = c.String(flagFormat)
	}
	if c.IsSet(flagLoop) {
		cfg.Replay.Loop = c.Bool(flagLoop)
	}
	if c.IsSet(flagStride) {
		cfg.PointStride = c.Int(flagStride)
	}
	if c.IsSet(flagMaxDepth) {
		cfg.MaxDepthMeters = c.Float64(flagMaxDepth)
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	if cfg.Replay.TrackFile == "" {
		return nil, errors.New("a pose track is required to place depth in the world, pass --track")
	}
	return cfg, nil
}

func replayAction(c *cli.Context, logger logging.Logger) (err error) {
	cfg, err := loadReplayConfig(c, logger)
	if err != nil {
		return err
	}
	if !c.Bool(flagDebug) {
		logger.SetLevel(cfg.Level())
	}
	realtime := c.Bool(flagRealtime)
	if cfg.Replay.Loop && !realtime {
		return errors.New("--loop only makes sense with --realtime")
	}
	outputType, err := pointcloud.ParsePCDType(cfg.Replay.PCDFormat)
	if err != nil {
		return err
	}

	track, err := depthar.ReadTrackFile(cfg.Replay.TrackFile)
	if err != nil {
		return err
	}
	depth, err := depthar.NewReplayDepthSource(cfg.Replay.DepthFile, cfg.Replay.Loop, logger)
	if err != nil {
		return err
	}
	logger.Debugf("pose track\n%s", track)
	poses := depthar.NewTrackSource(track)

	core := depthar.NewCore(logger, depthar.WithMaxDepth(cfg.MaxDepthMeters))
	merged := pointcloud.New()
	onFrame := func(ctx context.Context, tick int64, core *depthar.Core) error {
		cloud, err := core.WorldPointCloud(cfg.PointStride)
		if err != nil {
			if errors.Is(err, transform.ErrNoIntrinsics) {
				logger.Debugw("skipping frame without intrinsics", "tick", tick)
				return nil
			}
			return err
		}
		var setErr error
		cloud.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
			setErr = merged.Set(p, d)
			return setErr == nil
		})
		return setErr
	}

	fc := depthar.NewFrameController(core, depthar.Sources{
		Depth:      depth,
		Intrinsics: poses,
		Pose:       poses,
		OnFrame:    onFrame,
	}, cfg, nil, logger)
	defer func() {
		err = multierr.Combine(err, fc.Close())
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if realtime {
		if err := fc.Start(ctx); err != nil {
			return err
		}
		<-fc.Done()
	} else {
		for ctx.Err() == nil {
			if err := fc.Tick(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return err
			}
		}
	}

	stats := core.Stats()
	meta := merged.MetaData()
	fmt.Fprintf(c.App.Writer, "session %s: %d frames, %d dropped, %d pose ticks (%d stale), %d points\n",
		stats.ID, stats.DepthFrames, stats.DroppedFrames, stats.PoseTicks, stats.StaleTicks, merged.Size())
	if merged.Size() > 0 {
		center := meta.Center()
		fmt.Fprintf(c.App.Writer, "bounds x [%.3f, %.3f] y [%.3f, %.3f] z [%.3f, %.3f] center (%.3f, %.3f, %.3f)\n",
			meta.MinX, meta.MaxX, meta.MinY, meta.MaxY, meta.MinZ, meta.MaxZ, center.X, center.Y, center.Z)
	}

	if out := cfg.Replay.OutputPCD; out != "" {
		if err := pointcloud.WriteToPCDFile(merged, out, outputType); err != nil {
			return errors.Wrapf(err, "cannot write %q", out)
		}
		logger.Infow("wrote point cloud", "file", out, "points", merged.Size(), "format", outputType)
	}
	return nil
}

func inspectAction(c *cli.Context, logger logging.Logger) (err error) {
	reader, err := rimage.OpenDepthFrameFile(c.String(flagDepth))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, reader.Close())
	}()

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"#", "Size", "Format", "Valid", "Min", "Max", "Mean", "Median"})
	db := rimage.NewEmptyDepthBuffer()
	for i := 0; ; i++ {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			logger.Debugw("end of recording", "frames", i, "allocations", db.Reallocations())
			break
		}
		if err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		if err := db.Replace(frame); err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		ds, err := db.Stats(c.Int(flagStride))
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{
			i,
			fmt.Sprintf("%dx%d", db.Width(), db.Height()),
			db.Format(),
			fmt.Sprintf("%.1f%%", 100*ds.ValidFraction()),
			fmt.Sprintf("%.3f", ds.Min),
			fmt.Sprintf("%.3f", ds.Max),
			fmt.Sprintf("%.3f", ds.Mean),
			fmt.Sprintf("%.3f", ds.Median),
		})
	}
	t.Render()
	return nil
}

// synthAction writes a slanted wall two meters ahead seen by a device sliding sideways. Frames
// alternate between float32 meter and uint16 millimeter encodings.
func synthAction(c *cli.Context, logger logging.Logger) error {
	frames, width, height := c.Int(flagFrames), c.Int(flagWidth), c.Int(flagHeight)
	if frames <= 0 || width <= 0 || height <= 0 {
		return errors.Errorf("frames, width and height must be positive, got %d %d %d", frames, width, height)
	}

	const sensorScale = 10
	track := &depthar.Track{
		Intrinsics: transform.RawIntrinsics{
			FocalLength:    r2.Point{X: 0.8 * sensorScale * float64(width), Y: 0.8 * sensorScale * float64(width)},
			PrincipalPoint: r2.Point{X: sensorScale * float64(width) / 2, Y: sensorScale * float64(height) / 2},
			Resolution:     image.Point{X: sensorScale * width, Y: sensorScale * height},
		},
	}

	recording := make([]rimage.DepthFrame, 0, frames)
	for i := 0; i < frames; i++ {
		depths := make([]float32, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				depths[y*width+x] = float32(2 + 0.01*float64(x))
			}
		}
		format := rimage.DepthFloat32Meters
		if i%2 == 1 {
			format = rimage.DepthUint16Millimeters
		}
		recording = append(recording, encodeDepths(depths, width, height, format))
		track.Poses = append(track.Poses, depthar.TrackEntry{
			Position: r3.Vector{X: 0.1 * float64(i+1)},
			Rotation: spatialmath.EulerAngles{Yaw: utils.DegToRad(float64(i))},
			Screen:   spatialmath.ScreenLandscapeLeft,
		})
	}

	if err := rimage.WriteDepthFrameFile(c.String(flagDepth), recording...); err != nil {
		return err
	}
	if err := depthar.WriteTrackFile(c.String(flagTrack), track); err != nil {
		return err
	}
	logger.Infow("wrote synthetic session", "frames", frames, "width", width, "height", height)
	return nil
}

func encodeDepths(depths []float32, width, height int, format rimage.DepthFormat) rimage.DepthFrame {
	stride := format.Stride()
	data := make([]byte, width*height*stride)
	for i, d := range depths {
		switch format {
		case rimage.DepthUint16Millimeters:
			binary.LittleEndian.PutUint16(data[2*i:], uint16(math.Round(float64(d)*1000)))
		case rimage.DepthFloat32Meters, rimage.DepthFormatUnknown:
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(d))
		}
	}
	return rimage.DepthFrame{Data: data, Width: width, Height: height, Stride: stride, PlaneCount: 1}
}
