package rimage

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"go.viam.com/test"
)

func float32Frame(width, height int, depths ...float32) DepthFrame {
	data := make([]byte, width*height*4)
	for i, d := range depths {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(d))
	}
	return DepthFrame{Data: data, Width: width, Height: height, Stride: 4, PlaneCount: 1}
}

func uint16Frame(width, height int, millis ...uint16) DepthFrame {
	data := make([]byte, width*height*2)
	for i, m := range millis {
		binary.LittleEndian.PutUint16(data[2*i:], m)
	}
	return DepthFrame{Data: data, Width: width, Height: height, Stride: 2, PlaneCount: 1}
}

func TestDecodeFloat32(t *testing.T) {
	depths := []float32{0.5, 1.25, 3.75, 0, -2, float32(math.NaN())}
	db, err := NewDepthBufferFromFrame(float32Frame(3, 2, depths...))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, db.Format(), test.ShouldEqual, DepthFloat32Meters)

	test.That(t, db.DecodeDepth(0, 0), test.ShouldEqual, float32(0.5))
	test.That(t, db.DecodeDepth(1, 0), test.ShouldEqual, float32(1.25))
	test.That(t, db.DecodeDepth(2, 0), test.ShouldEqual, float32(3.75))
	// zero, negative and NaN all map to the sentinel
	test.That(t, db.DecodeDepth(0, 1), test.ShouldEqual, InvalidDepth)
	test.That(t, db.DecodeDepth(1, 1), test.ShouldEqual, InvalidDepth)
	test.That(t, db.DecodeDepth(2, 1), test.ShouldEqual, InvalidDepth)
	test.That(t, InvalidDepth, test.ShouldEqual, float32(99999.0))
}

func TestDecodeUint16(t *testing.T) {
	millis := []uint16{1, 1000, 1234, 65535, 0, 42}
	db, err := NewDepthBufferFromFrame(uint16Frame(2, 3, millis...))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, db.Format(), test.ShouldEqual, DepthUint16Millimeters)

	for i, m := range millis {
		x, y := i%2, i/2
		if m == 0 {
			test.That(t, db.DecodeDepth(x, y), test.ShouldEqual, InvalidDepth)
			continue
		}
		test.That(t, db.DecodeDepth(x, y), test.ShouldAlmostEqual, float32(m)*0.001, 1e-6)
	}
	// x past the row end does not wrap onto the next row's 1.234
	test.That(t, db.DecodeDepth(2, 0), test.ShouldEqual, InvalidDepth)
}

func TestDepthAt(t *testing.T) {
	db, err := NewDepthBufferFromFrame(float32Frame(2, 1, 2.5, 0))
	test.That(t, err, test.ShouldBeNil)

	d, ok := db.DepthAt(0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d, test.ShouldEqual, float32(2.5))

	d, ok = db.DepthAt(1, 0)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, d, test.ShouldEqual, InvalidDepth)

	// out of bounds
	test.That(t, db.GetDepth(2, 0), test.ShouldEqual, InvalidDepth)
	test.That(t, db.GetDepth(-1, 0), test.ShouldEqual, InvalidDepth)
	test.That(t, db.GetDepth(0, 1), test.ShouldEqual, InvalidDepth)

	empty := NewEmptyDepthBuffer()
	test.That(t, empty.HasData(), test.ShouldBeFalse)
	test.That(t, empty.GetDepth(0, 0), test.ShouldEqual, InvalidDepth)
}

func TestUnsupportedFormat(t *testing.T) {
	db := NewEmptyDepthBuffer()

	bad := DepthFrame{Data: make([]byte, 12), Width: 2, Height: 2, Stride: 3, PlaneCount: 1}
	err := db.Replace(bad)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrUnsupportedDepthFormat), test.ShouldBeTrue)

	twoPlanes := float32Frame(2, 2)
	twoPlanes.PlaneCount = 2
	err = db.Replace(twoPlanes)
	test.That(t, errors.Is(err, ErrUnsupportedDepthFormat), test.ShouldBeTrue)

	short := float32Frame(2, 2)
	short.Data = short.Data[:10]
	test.That(t, db.Replace(short), test.ShouldNotBeNil)

	test.That(t, db.HasData(), test.ShouldBeFalse)
	test.That(t, db.Reallocations(), test.ShouldEqual, 0)

	_, err = FormatForStride(8)
	test.That(t, errors.Is(err, ErrUnsupportedDepthFormat), test.ShouldBeTrue)
}

func TestReplaceReusesStorage(t *testing.T) {
	db, err := NewDepthBufferFromFrame(float32Frame(4, 2, 1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, db.Reallocations(), test.ShouldEqual, 1)
	before := &db.raw[0]

	// same byte length, different encoding and shape: storage is reused
	test.That(t, db.Replace(uint16Frame(4, 4, 2000)), test.ShouldBeNil)
	test.That(t, db.Reallocations(), test.ShouldEqual, 1)
	test.That(t, &db.raw[0], test.ShouldEqual, before)
	test.That(t, db.Stride(), test.ShouldEqual, 2)
	test.That(t, db.Height(), test.ShouldEqual, 4)
	test.That(t, db.DecodeDepth(0, 0), test.ShouldAlmostEqual, float32(2.0), 1e-6)

	// different byte length: reallocated
	test.That(t, db.Replace(float32Frame(3, 3, 4)), test.ShouldBeNil)
	test.That(t, db.Reallocations(), test.ShouldEqual, 2)
	test.That(t, db.DecodeDepth(0, 0), test.ShouldEqual, float32(4))
}

func TestReplaceCopiesInput(t *testing.T) {
	frame := float32Frame(1, 1, 1.5)
	db, err := NewDepthBufferFromFrame(frame)
	test.That(t, err, test.ShouldBeNil)
	binary.LittleEndian.PutUint32(frame.Data, math.Float32bits(9))
	test.That(t, db.DecodeDepth(0, 0), test.ShouldEqual, float32(1.5))

	clone := db.Clone()
	test.That(t, clone.DecodeDepth(0, 0), test.ShouldEqual, float32(1.5))
	test.That(t, clone.Bounds(), test.ShouldResemble, db.Bounds())
}

func TestStats(t *testing.T) {
	db, err := NewDepthBufferFromFrame(float32Frame(2, 2, 1, 2, 0, 6))
	test.That(t, err, test.ShouldBeNil)

	ds, err := db.Stats(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ds.Samples, test.ShouldEqual, 4)
	test.That(t, ds.Valid, test.ShouldEqual, 3)
	test.That(t, ds.Min, test.ShouldAlmostEqual, 1)
	test.That(t, ds.Max, test.ShouldAlmostEqual, 6)
	test.That(t, ds.Mean, test.ShouldAlmostEqual, 3)
	test.That(t, ds.Median, test.ShouldAlmostEqual, 2)
	test.That(t, ds.ValidFraction(), test.ShouldAlmostEqual, 0.75)

	ds, err = db.Stats(2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ds.Samples, test.ShouldEqual, 1)

	ds, err = NewEmptyDepthBuffer().Stats(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ds.Valid, test.ShouldEqual, 0)

	_, err = db.Stats(0)
	test.That(t, err, test.ShouldNotBeNil)
}
