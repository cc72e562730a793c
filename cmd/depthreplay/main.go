// Package main is the depthreplay command. It replays recorded depth sessions into world space
// point clouds and inspects depth recordings.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/depthar/logging"
)

const (
	// Flags.
	flagConfig   = "config"
	flagDebug    = "debug"
	flagLogFile  = "log-file"
	flagDepth    = "depth"
	flagTrack    = "track"
	flagOut      = "out"
	flagFormat   = "format"
	flagStride   = "stride"
	flagMaxDepth = "max-depth"
	flagRealtime = "realtime"
	flagLoop     = "loop"
	flagFrames   = "frames"
	flagWidth    = "width"
	flagHeight   = "height"

	logFileMaxSizeMB = 10
)

func newApp() *cli.App {
	var logger logging.Logger

	return &cli.App{
		Name:  "depthreplay",
		Usage: "replay recorded depth sessions into world space point clouds",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated at 10MB",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("depthreplay")
			} else {
				logger = logging.NewLogger("depthreplay")
			}
			if fn := c.String(flagLogFile); fn != "" {
				logger.AddAppender(logging.NewFileAppender(fn, logFileMaxSizeMB))
			}
			logging.ReplaceGlobal(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if logger == nil {
				return nil
			}
			goutils.UncheckedError(logger.Sync())
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Usage:     "replay a depth recording and pose track into a PCD file",
				UsageText: "depthreplay replay --depth session.depth.gz --track track.json --out cloud.pcd",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load session configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:  flagDepth,
						Usage: "depth recording `FILE`, gzipped if it ends in .gz",
					},
					&cli.StringFlag{
						Name:  flagTrack,
						Usage: "pose track `FILE` (json)",
					},
					&cli.StringFlag{
						Name:  flagOut,
						Usage: "write the merged world point cloud to `FILE`",
					},
					&cli.StringFlag{
						Name:  flagFormat,
						Usage: "pcd data format: ascii or binary",
					},
					&cli.IntFlag{
						Name:  flagStride,
						Usage: "pixel step when building point clouds",
					},
					&cli.Float64Flag{
						Name:  flagMaxDepth,
						Usage: "drop points farther than this many meters",
					},
					&cli.BoolFlag{
						Name:  flagLoop,
						Usage: "restart the recording when it ends, only with --realtime",
					},
					&cli.BoolFlag{
						Name:  flagRealtime,
						Usage: "tick at the configured frame rate instead of as fast as possible",
					},
				},
				Action: func(c *cli.Context) error {
					return replayAction(c, logger)
				},
			},
			{
				Name:  "inspect",
				Usage: "print per-frame statistics of a depth recording",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagDepth,
						Usage:    "depth recording `FILE`",
						Required: true,
					},
					&cli.IntFlag{
						Name:  flagStride,
						Value: 4,
						Usage: "pixel step when sampling depths",
					},
				},
				Action: func(c *cli.Context) error {
					return inspectAction(c, logger)
				},
			},
			{
				Name:  "synth",
				Usage: "write a synthetic recording of a wall seen while walking past it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagDepth,
						Usage:    "depth recording `FILE` to write",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagTrack,
						Usage:    "pose track `FILE` to write",
						Required: true,
					},
					&cli.IntFlag{
						Name:  flagFrames,
						Value: 10,
						Usage: "number of frames",
					},
					&cli.IntFlag{
						Name:  flagWidth,
						Value: 64,
						Usage: "depth width in pixels",
					},
					&cli.IntFlag{
						Name:  flagHeight,
						Value: 48,
						Usage: "depth height in pixels",
					},
				},
				Action: func(c *cli.Context) error {
					return synthAction(c, logger)
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
