package rimage

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/depthar/utils"
)

// depthFrameMagic prefixes every recorded frame.
var depthFrameMagic = [8]byte{'D', 'E', 'P', 'T', 'H', 'F', 'R', '1'}

const (
	maxRecordedDimension  = 100000
	maxRecordedFrameBytes = 256 << 20
)

// WriteDepthFrame writes a single frame as magic, little-endian uint32 width, height, stride and
// plane count, then the raw pixel bytes.
func WriteDepthFrame(out io.Writer, frame DepthFrame) error {
	if err := frame.CheckValid(); err != nil {
		return err
	}
	if _, err := out.Write(depthFrameMagic[:]); err != nil {
		return err
	}
	header := [4]uint32{uint32(frame.Width), uint32(frame.Height), uint32(frame.Stride), uint32(frame.PlaneCount)}
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return err
	}
	_, err := out.Write(frame.Data)
	return err
}

// ReadDepthFrame reads a frame written by WriteDepthFrame. It returns io.EOF when the stream
// ends cleanly before a new frame.
func ReadDepthFrame(in io.Reader) (DepthFrame, error) {
	var magic [8]byte
	if _, err := io.ReadFull(in, magic[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return DepthFrame{}, io.EOF
		}
		return DepthFrame{}, errors.Wrap(err, "error reading depth frame magic")
	}
	if magic != depthFrameMagic {
		return DepthFrame{}, errors.Errorf("bad depth frame magic %q", magic[:])
	}

	var header [4]uint32
	if err := binary.Read(in, binary.LittleEndian, &header); err != nil {
		return DepthFrame{}, errors.Wrap(err, "error reading depth frame header")
	}
	frame := DepthFrame{
		Width:      int(header[0]),
		Height:     int(header[1]),
		Stride:     int(header[2]),
		PlaneCount: int(header[3]),
	}
	if frame.Width <= 0 || frame.Width >= maxRecordedDimension || frame.Height <= 0 || frame.Height >= maxRecordedDimension {
		return DepthFrame{}, errors.Errorf("bad width or height for depth frame %v %v", frame.Width, frame.Height)
	}
	if _, err := FormatForStride(frame.Stride); err != nil {
		return DepthFrame{}, err
	}

	size := frame.Width * frame.Height * frame.Stride
	if size > maxRecordedFrameBytes {
		return DepthFrame{}, errors.Errorf("depth frame of %dx%d stride %d exceeds %d bytes",
			frame.Width, frame.Height, frame.Stride, maxRecordedFrameBytes)
	}
	frame.Data = make([]byte, size)
	if _, err := io.ReadFull(in, frame.Data); err != nil {
		return DepthFrame{}, errors.Wrap(err, "error reading depth frame data")
	}
	return frame, frame.CheckValid()
}

// DepthFrameReader streams recorded frames.
type DepthFrameReader struct {
	in      *bufio.Reader
	closers []io.Closer
}

// NewDepthFrameReader wraps an uncompressed stream of recorded frames.
func NewDepthFrameReader(in io.Reader) *DepthFrameReader {
	return &DepthFrameReader{in: bufio.NewReader(in)}
}

// OpenDepthFrameFile opens a recording on disk. Files ending in ".gz" are gunzipped.
func OpenDepthFrameFile(fn string) (*DepthFrameReader, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	guard := utils.NewGuard(func() { f.Close() })
	defer guard.OnFail()

	reader := &DepthFrameReader{closers: []io.Closer{f}}
	var in io.Reader = f
	if filepath.Ext(fn) == ".gz" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "error opening gzip depth recording %q", fn)
		}
		reader.closers = append([]io.Closer{gz}, reader.closers...)
		in = gz
	}
	reader.in = bufio.NewReader(in)

	guard.Success()
	return reader, nil
}

// Next returns the next frame, or io.EOF once the recording is exhausted.
func (r *DepthFrameReader) Next() (DepthFrame, error) {
	return ReadDepthFrame(r.in)
}

// Close releases the underlying file, if any.
func (r *DepthFrameReader) Close() error {
	var err error
	for _, c := range r.closers {
		err = multierr.Combine(err, c.Close())
	}
	r.closers = nil
	return err
}

// WriteDepthFrameFile writes the frames to a file, gzipped when the name ends in ".gz".
func WriteDepthFrameFile(fn string, frames ...DepthFrame) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	var out io.Writer = f
	var gz *gzip.Writer
	if filepath.Ext(fn) == ".gz" {
		gz = gzip.NewWriter(f)
		out = gz
	}
	bufOut := bufio.NewWriter(out)
	for _, frame := range frames {
		if err := WriteDepthFrame(bufOut, frame); err != nil {
			return err
		}
	}
	if err := bufOut.Flush(); err != nil {
		return err
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}
