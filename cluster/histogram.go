package cluster

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Histogram is a binned distribution of one feature variable's values over
// a cluster's member points, spanning [min, max].
type Histogram struct {
	Bins     []float64
	Min, Max float64
}

// Histogram returns the (lazily computed, cached) histogram of varIndex
// over [validMin, validMax] using the given bin count. The cache is
// invalidated by any mutation of the cluster's point set.
func (c *Cluster) Histogram(varIndex, bins int, validMin, validMax float64) *Histogram {
	if h, ok := c.histograms[varIndex]; ok && len(h.Bins) == bins && h.Min == validMin && h.Max == validMax {
		return h
	}
	h := c.recomputeHistogram(varIndex, bins, validMin, validMax)
	c.histograms[varIndex] = h
	return h
}

// recomputeHistogram is the pure recompute path, usable directly in tests
// without touching the cache.
func (c *Cluster) recomputeHistogram(varIndex, bins int, validMin, validMax float64) *Histogram {
	h := &Histogram{Bins: make([]float64, bins), Min: validMin, Max: validMax}
	span := validMax - validMin
	for _, p := range c.Points {
		v := p.FeatureValue(c.spatialRank, varIndex)
		if span <= 0 {
			h.Bins[0]++
			continue
		}
		idx := int((v - validMin) / span * float64(bins))
		if idx < 0 {
			idx = 0
		}
		if idx >= bins {
			idx = bins - 1
		}
		h.Bins[idx]++
	}
	return h
}

// Sum is the total point count represented by the histogram.
func (h *Histogram) Sum() float64 {
	var s float64
	for _, b := range h.Bins {
		s += b
	}
	return s
}

// CorrelateKendall computes the Kendall rank correlation (tau-b) between
// this histogram's bin sequence and other's. Both must have the same bin
// count.
func (h *Histogram) CorrelateKendall(other *Histogram) float64 {
	n := len(h.Bins)
	if n == 0 || n != len(other.Bins) {
		return 0
	}
	var concordant, discordant, tiesX, tiesY, tiesXY int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := h.Bins[i] - h.Bins[j]
			dy := other.Bins[i] - other.Bins[j]
			switch {
			case dx == 0 && dy == 0:
				tiesX++
				tiesY++
				tiesXY++
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case (dx > 0) == (dy > 0):
				concordant++
			default:
				discordant++
			}
		}
	}
	total := concordant + discordant + tiesX + tiesY - tiesXY
	denomX := float64(total - tiesX)
	denomY := float64(total - tiesY)
	if denomX <= 0 || denomY <= 0 {
		return 0
	}
	return float64(concordant-discordant) / (math.Sqrt(denomX) * math.Sqrt(denomY))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// coefficientOfVariation returns sigma/mu (sample stddev, n-1 denominator,
// over mean) for values using gonum/stat, returning 0 if the mean is zero.
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := stat.Mean(values, nil)
	if mean == 0 {
		return 0
	}
	sd := stat.StdDev(values, nil)
	return sd / mean
}
