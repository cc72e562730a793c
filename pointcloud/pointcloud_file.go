package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

func (t PCDType) String() string {
	switch t {
	case PCDAscii:
		return "ascii"
	case PCDBinary:
		return "binary"
	case PCDCompressed:
		return "binary_compressed"
	default:
		return fmt.Sprintf("PCDType(%d)", int(t))
	}
}

// ParsePCDType returns the PCDType named by s.
func ParsePCDType(s string) (PCDType, error) {
	switch s {
	case "ascii":
		return PCDAscii, nil
	case "binary":
		return PCDBinary, nil
	case "binary_compressed":
		return PCDCompressed, nil
	default:
		return PCDAscii, errors.Errorf("unknown pcd data type %q", s)
	}
}

// ToPCD writes out a point cloud to a PCD file of the chosen type. Coordinates are written in
// meters. Clouds that carry values get an extra signed integer field named value.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	if outputType == PCDCompressed {
		return errors.New("compressed PCD not yet implemented")
	}
	hasValue := cloud.MetaData().HasValue

	var err error
	_, err = fmt.Fprintf(out, "VERSION .7\n")
	if err != nil {
		return err
	}
	if hasValue {
		_, err = fmt.Fprintf(out, "FIELDS x y z value\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	} else {
		_, err = fmt.Fprintf(out, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		cloud.Size(),
		1,
		cloud.Size(),
		outputType)
	if err != nil {
		return err
	}
	return writePCDData(cloud, out, outputType, hasValue)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType, hasValue bool) error {
	var err error
	buf := make([]byte, 16)
	cloud.Iterate(func(pos r3.Vector, d Data) bool {
		value := 0
		if d != nil {
			value = d.Value()
		}
		switch pcdtype {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(pos.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(pos.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(pos.Z)))
			if hasValue {
				binary.LittleEndian.PutUint32(buf[12:], uint32(int32(value)))
				_, err = out.Write(buf)
			} else {
				_, err = out.Write(buf[:12])
			}
		case PCDAscii, PCDCompressed:
			if hasValue {
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", pos.X, pos.Y, pos.Z, value)
			} else {
				_, err = fmt.Fprintf(out, "%f %f %f\n", pos.X, pos.Y, pos.Z)
			}
		}
		return err == nil
	})
	return err
}

// WriteToPCDFile writes the cloud to fn in the given format.
func WriteToPCDFile(cloud PointCloud, fn string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(filepath.Clean(fn))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPCD(cloud, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

type pcdHeader struct {
	fields []string
	points int
	data   PCDType
}

// ReadPCD reads a PCD stream written by ToPCD.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	in := bufio.NewReader(inRaw)
	header, err := readPCDHeader(in)
	if err != nil {
		return nil, err
	}
	hasValue := len(header.fields) == 4
	cloud := NewWithPrealloc(header.points)

	for i := 0; i < header.points; i++ {
		var (
			p     r3.Vector
			value int
		)
		switch header.data {
		case PCDBinary:
			size := 4 * len(header.fields)
			buf := make([]byte, size)
			if _, err := io.ReadFull(in, buf); err != nil {
				return nil, errors.Wrapf(err, "reading point %d", i)
			}
			p.X = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
			p.Y = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
			p.Z = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[8:])))
			if hasValue {
				value = int(int32(binary.LittleEndian.Uint32(buf[12:])))
			}
		case PCDAscii, PCDCompressed:
			line, err := in.ReadString('\n')
			if err != nil && !(errors.Is(err, io.EOF) && line != "") {
				return nil, errors.Wrapf(err, "reading point %d", i)
			}
			parts := strings.Fields(line)
			if len(parts) != len(header.fields) {
				return nil, errors.Errorf("point %d has %d fields, expected %d", i, len(parts), len(header.fields))
			}
			coords := make([]float64, 3)
			for j := range coords {
				if coords[j], err = strconv.ParseFloat(parts[j], 64); err != nil {
					return nil, errors.Wrapf(err, "point %d", i)
				}
			}
			p = r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]}
			if hasValue {
				if value, err = strconv.Atoi(parts[3]); err != nil {
					return nil, errors.Wrapf(err, "point %d", i)
				}
			}
		}
		d := NewBasicData()
		if hasValue {
			d = NewValueData(value)
		}
		if err := cloud.Set(p, d); err != nil {
			return nil, err
		}
	}
	return cloud, nil
}

func readPCDHeader(in *bufio.Reader) (pcdHeader, error) {
	var header pcdHeader
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return header, errors.Wrap(err, "reading pcd header")
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "FIELDS":
			header.fields = parts[1:]
			if len(header.fields) != 3 && len(header.fields) != 4 {
				return header, errors.Errorf("unsupported pcd fields %v", header.fields)
			}
		case "POINTS":
			if len(parts) != 2 {
				return header, errors.Errorf("malformed pcd header line %q", line)
			}
			if header.points, err = strconv.Atoi(parts[1]); err != nil {
				return header, errors.Wrap(err, "pcd POINTS")
			}
		case "DATA":
			if len(parts) != 2 {
				return header, errors.Errorf("malformed pcd header line %q", line)
			}
			if header.data, err = ParsePCDType(parts[1]); err != nil {
				return header, err
			}
			if header.data == PCDCompressed {
				return header, errors.New("compressed PCD not yet implemented")
			}
			if header.fields == nil {
				return header, errors.New("pcd header is missing FIELDS")
			}
			return header, nil
		}
	}
}
