package rimage

import (
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// DepthStats summarizes the valid measurements of a depth buffer, in meters.
type DepthStats struct {
	Samples int
	Valid   int
	Min     float64
	Max     float64
	Mean    float64
	Median  float64
}

// ValidFraction is the share of sampled pixels that held a measurement.
func (ds DepthStats) ValidFraction() float64 {
	if ds.Samples == 0 {
		return 0
	}
	return float64(ds.Valid) / float64(ds.Samples)
}

// Stats samples every step-th pixel along both axes and summarizes the valid depths. A buffer
// without valid depths yields zeroed statistics.
func (db *DepthBuffer) Stats(step int) (DepthStats, error) {
	if step <= 0 {
		return DepthStats{}, errors.Errorf("step must be positive, got %d", step)
	}
	var ds DepthStats
	data := make(stats.Float64Data, 0, (db.width/step+1)*(db.height/step+1))
	for y := 0; y < db.height; y += step {
		for x := 0; x < db.width; x += step {
			ds.Samples++
			if d, ok := db.DepthAt(x, y); ok {
				data = append(data, float64(d))
			}
		}
	}
	ds.Valid = len(data)
	if ds.Valid == 0 {
		return ds, nil
	}

	var err error
	if ds.Min, err = data.Min(); err != nil {
		return ds, err
	}
	if ds.Max, err = data.Max(); err != nil {
		return ds, err
	}
	if ds.Mean, err = data.Mean(); err != nil {
		return ds, err
	}
	if ds.Median, err = data.Median(); err != nil {
		return ds, err
	}
	return ds, nil
}
