package depthar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/depthar/logging"
	"go.viam.com/depthar/rimage"
	"go.viam.com/depthar/rimage/transform"
	"go.viam.com/depthar/spatialmath"
)

// ReplayDepthSource plays back a depth recording written with rimage.WriteDepthFrameFile. Every
// call returns the next frame.
type ReplayDepthSource struct {
	fn     string
	loop   bool
	logger logging.Logger

	mu     sync.Mutex
	reader *rimage.DepthFrameReader
	frames int
	loops  int
}

// NewReplayDepthSource opens the recording at fn. With loop set the recording restarts from the
// beginning once exhausted instead of reporting io.EOF.
func NewReplayDepthSource(fn string, loop bool, logger logging.Logger) (*ReplayDepthSource, error) {
	reader, err := rimage.OpenDepthFrameFile(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open depth recording %q", fn)
	}
	return &ReplayDepthSource{
		fn:     fn,
		loop:   loop,
		logger: logger.Sublogger("replay"),
		reader: reader,
	}, nil
}

// NextDepthFrame returns the next recorded frame.
func (s *ReplayDepthSource) NextDepthFrame(ctx context.Context) (rimage.DepthFrame, bool, error) {
	if err := ctx.Err(); err != nil {
		return rimage.DepthFrame{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return rimage.DepthFrame{}, false, io.EOF
	}

	frame, err := s.reader.Next()
	if errors.Is(err, io.EOF) && s.loop && s.frames > 0 {
		if err := s.rewind(); err != nil {
			return rimage.DepthFrame{}, false, err
		}
		frame, err = s.reader.Next()
	}
	if err != nil {
		return rimage.DepthFrame{}, false, err
	}
	s.frames++
	return frame, true, nil
}

func (s *ReplayDepthSource) rewind() error {
	err := s.reader.Close()
	s.reader = nil
	if err != nil {
		return err
	}
	reader, err := rimage.OpenDepthFrameFile(s.fn)
	if err != nil {
		return err
	}
	s.reader = reader
	s.loops++
	s.logger.Debugw("looping depth recording", "file", filepath.Base(s.fn), "frames", s.frames, "loops", s.loops)
	return nil
}

// Frames is the number of frames returned so far.
func (s *ReplayDepthSource) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close closes the recording.
func (s *ReplayDepthSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

// TrackEntry is one recorded device pose.
type TrackEntry struct {
	Position r3.Vector `json:"position"`
	// Rotation is in radians.
	Rotation spatialmath.EulerAngles      `json:"rotation"`
	Screen   spatialmath.ScreenOrientation `json:"screen"`
	// NoIntrinsics marks frames for which the host had no intrinsics.
	NoIntrinsics bool `json:"no_intrinsics,omitempty"`
}

// Track is a recorded pose track and the sensor intrinsics of a session.
type Track struct {
	Intrinsics transform.RawIntrinsics `json:"intrinsics"`
	Poses      []TrackEntry            `json:"poses"`
}

// String prints a table of the poses with position in meters and rotation in degrees.
func (t *Track) String() string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"#", "Position", "Rotation", "Screen", "Intrinsics"})
	for i, entry := range t.Poses {
		roll, pitch, yaw := entry.Rotation.Degrees()
		tw.AppendRow(table.Row{
			i,
			fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", entry.Position.X, entry.Position.Y, entry.Position.Z),
			fmt.Sprintf("Roll:%.2f, Pitch:%.2f, Yaw:%.2f", roll, pitch, yaw),
			entry.Screen,
			!entry.NoIntrinsics,
		})
	}
	return tw.Render()
}

// ReadTrackFile reads a JSON track from fn.
func ReadTrackFile(fn string) (*Track, error) {
	//nolint:gosec
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, errors.Wrap(err, "error reading track file")
	}
	var track Track
	if err := json.Unmarshal(data, &track); err != nil {
		return nil, errors.Wrapf(err, "error parsing track file %q", fn)
	}
	return &track, nil
}

// WriteTrackFile writes track to fn as JSON.
func WriteTrackFile(fn string, track *Track) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(track)
}

// TrackSource replays a Track as both the pose and the intrinsics source. Each call steps through
// the poses; after the last one the final entry is repeated.
type TrackSource struct {
	track *Track

	mu            sync.Mutex
	poseIdx       int
	intrinsicsIdx int
}

// NewTrackSource returns a source over track. A track without poses reports an error on every
// Pose call.
func NewTrackSource(track *Track) *TrackSource {
	return &TrackSource{track: track}
}

func (s *TrackSource) entry(idx *int) (TrackEntry, bool) {
	if len(s.track.Poses) == 0 {
		return TrackEntry{}, false
	}
	i := *idx
	if i >= len(s.track.Poses) {
		i = len(s.track.Poses) - 1
	} else {
		*idx++
	}
	return s.track.Poses[i], true
}

// Pose returns the next recorded pose.
func (s *TrackSource) Pose(ctx context.Context) (spatialmath.Pose, spatialmath.ScreenOrientation, error) {
	if err := ctx.Err(); err != nil {
		return spatialmath.Pose{}, spatialmath.ScreenUnknown, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entry(&s.poseIdx)
	if !ok {
		return spatialmath.Pose{}, spatialmath.ScreenUnknown, errors.New("track has no poses")
	}
	rotation := e.Rotation
	return spatialmath.NewPose(e.Position, &rotation), e.Screen, nil
}

// Intrinsics returns the session intrinsics, unavailable for frames marked NoIntrinsics.
func (s *TrackSource) Intrinsics(ctx context.Context) (transform.RawIntrinsics, bool, error) {
	if err := ctx.Err(); err != nil {
		return transform.RawIntrinsics{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entry(&s.intrinsicsIdx)
	if ok && e.NoIntrinsics {
		return transform.RawIntrinsics{}, false, nil
	}
	return s.track.Intrinsics, true, nil
}
