package pointcloud

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()
	test.That(t, pc.Size(), test.ShouldEqual, 0)
	test.That(t, pc.MetaData().Center(), test.ShouldResemble, r3.Vector{})

	p0 := r3.Vector{X: 0, Y: 0, Z: 0}
	test.That(t, pc.Set(p0, NewBasicData()), test.ShouldBeNil)
	d, got := pc.At(0, 0, 0)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d.HasValue(), test.ShouldBeFalse)

	p1 := r3.Vector{X: 1, Y: -2, Z: 3.5}
	test.That(t, pc.Set(p1, NewValueData(7)), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)

	// same position replaces the data
	test.That(t, pc.Set(p1, NewValueData(8)), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)
	d, got = pc.At(1, -2, 3.5)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 8)

	_, got = pc.At(1, 1, 1)
	test.That(t, got, test.ShouldBeFalse)

	meta := pc.MetaData()
	test.That(t, meta.HasValue, test.ShouldBeTrue)
	test.That(t, meta.MinY, test.ShouldEqual, -2.0)
	test.That(t, meta.MaxZ, test.ShouldEqual, 3.5)
	test.That(t, meta.Center(), test.ShouldResemble, r3.Vector{X: 0.5, Y: -1, Z: 1.75})

	test.That(t, CloudToPoints(pc), test.ShouldResemble, []r3.Vector{p0, p1})

	count := 0
	pc.Iterate(func(p r3.Vector, d Data) bool {
		count++
		return false
	})
	test.That(t, count, test.ShouldEqual, 1)

	test.That(t, pc.Set(r3.Vector{X: math.Inf(-1)}, nil), test.ShouldNotBeNil)
	test.That(t, pc.Set(r3.Vector{Y: math.NaN()}, nil), test.ShouldNotBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)
}

func TestPCDAscii(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(r3.Vector{X: 1, Y: 2, Z: 3}, NewBasicData()), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{X: -1.5, Y: 0.25, Z: 4}, NewBasicData()), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, ToPCD(pc, &buf, PCDAscii), test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	test.That(t, lines, test.ShouldResemble, []string{
		"VERSION .7",
		"FIELDS x y z",
		"SIZE 4 4 4",
		"TYPE F F F",
		"COUNT 1 1 1",
		"WIDTH 2",
		"HEIGHT 1",
		"VIEWPOINT 0 0 0 1 0 0 0",
		"POINTS 2",
		"DATA ascii",
		"1.000000 2.000000 3.000000",
		"-1.500000 0.250000 4.000000",
	})

	back, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, CloudToPoints(back), test.ShouldResemble, CloudToPoints(pc))
}

func TestPCDBinaryWithValues(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(r3.Vector{X: 1, Y: 2, Z: 3}, NewValueData(-4)), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{X: 0.5, Y: 0.25, Z: 0.125}, NewValueData(65535)), test.ShouldBeNil)

	fn := filepath.Join(t.TempDir(), "cloud.pcd")
	test.That(t, WriteToPCDFile(pc, fn, PCDBinary), test.ShouldBeNil)

	data, err := os.ReadFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "FIELDS x y z value\n")
	test.That(t, string(data), test.ShouldContainSubstring, "DATA binary\n")

	back, err := ReadPCD(bytes.NewReader(data))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, 2)
	d, ok := back.At(0.5, 0.25, 0.125)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 65535)
	d, ok = back.At(1, 2, 3)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, -4)
}

func TestPCDErrors(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, ToPCD(New(), &buf, PCDCompressed), test.ShouldNotBeNil)

	_, err := ReadPCD(strings.NewReader("VERSION .7\nFIELDS x y\n"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ReadPCD(strings.NewReader("VERSION .7\nFIELDS x y z\nPOINTS 1\nDATA ascii\n1 2\n"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ReadPCD(strings.NewReader("VERSION .7\nFIELDS x y z\nPOINTS 1\nDATA binary\n\x00\x00"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ReadPCD(strings.NewReader("VERSION .7\nPOINTS 1\nDATA ascii\n"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ParsePCDType("zip")
	test.That(t, err, test.ShouldNotBeNil)
	typ, err := ParsePCDType("binary")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, typ, test.ShouldEqual, PCDBinary)
}
