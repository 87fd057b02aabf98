package meanshift_test

import (
	"context"
	"math"
	"testing"

	"gopkg.in/check.v1"

	"github.com/wxtrack/meanie/featurespace"
	"github.com/wxtrack/meanie/kernel"
	"github.com/wxtrack/meanie/meanshift"
	"github.com/wxtrack/meanie/spatialindex"
	"github.com/wxtrack/meanie/store"
	"github.com/wxtrack/meanie/weight"
)

func Test(t *testing.T) { check.TestingT(t) }

type S struct{}

var _ = check.Suite(&S{})

// blobGrid builds a square grid of a single variable with Gaussian bumps
// centered at each of centers, and returns the resulting FeatureSpace.
func blobGrid(c *check.C, n int, centers [][2]int, sigma float64) *featurespace.FeatureSpace {
	ms, err := store.NewMemoryStore([]int{n, n}, []string{"v"}, []float64{-1})
	c.Assert(err, check.IsNil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var val float64
			for _, cen := range centers {
				dx, dy := float64(i-cen[0]), float64(j-cen[1])
				val += math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			}
			ms.Set(0, []int{i, j}, val)
		}
	}
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = float64(i)
	}
	coords, err := featurespace.NewCoordinateSystem([]string{"x", "y"}, [][]float64{axis, axis})
	c.Assert(err, check.IsNil)

	fs, err := featurespace.Build(ms, coords, []featurespace.VariableRange{{Lower: 0.01, Upper: 1e9}})
	c.Assert(err, check.IsNil)
	return fs
}

func runMeanShift(c *check.C, fs *featurespace.FeatureSpace, bandwidth []float64) {
	idx := spatialindex.New(fs.Points)
	terms := []weight.Term{{VarIndex: 0, Min: 0, Max: 2, Multiplier: 1}}
	cfg := meanshift.Config{
		Kernel:    kernel.New(kernel.Gaussian, bandwidth[0], false),
		Weight:    weight.NewComposite(terms, 2, nil, nil),
		Bandwidth: bandwidth,
	}
	err := meanshift.Run(context.Background(), fs, idx, cfg, nil)
	c.Assert(err, check.IsNil)
}

func (s *S) TestSingleBlobConvergesToOneMode(c *check.C) {
	fs := blobGrid(c, 32, [][2]int{{16, 16}}, 4)
	runMeanShift(c, fs, []float64{4, 4})

	agg, err := meanshift.BuildClusters(fs, []float64{1, 1})
	c.Assert(err, check.IsNil)
	c.Assert(agg.Modes, check.HasLen, 1)
	c.Check(math.Abs(agg.Modes[0][0]-16) <= 1, check.Equals, true)
	c.Check(math.Abs(agg.Modes[0][1]-16) <= 1, check.Equals, true)
}

func (s *S) TestTwoSeparatedBlobsYieldTwoClusters(c *check.C) {
	fs := blobGrid(c, 32, [][2]int{{8, 8}, {24, 24}}, 4)
	runMeanShift(c, fs, []float64{4, 4})

	agg, err := meanshift.BuildClusters(fs, []float64{1, 1})
	c.Assert(err, check.IsNil)
	c.Assert(agg.Modes, check.HasLen, 2)
}

func (s *S) TestShiftInvariantIsFinalPositionMinusCoordinate(c *check.C) {
	fs := blobGrid(c, 16, [][2]int{{8, 8}}, 3)
	runMeanShift(c, fs, []float64{3, 3})

	for _, p := range fs.Points {
		final := p.FinalPosition()
		for d := range final {
			c.Check(final[d], check.Equals, p.Coordinate[d]+p.Shift[d])
		}
	}
}

func (s *S) TestNonConvergentPointExcludedFromClusters(c *check.C) {
	// A single point whose own weight is zero (it is its only neighbor in
	// range) has a degenerate kernel-weighted denominator and is excluded.
	p := &featurespace.Point{Gridpoint: []int{0, 0}, Coordinate: []float64{0, 0}, Values: []float64{0, 0, 1}, Shift: []float64{0, 0}}
	fs := &featurespace.FeatureSpace{Coords: mustCoords(c), VariableNames: []string{"v"}, Points: []*featurespace.Point{p}}
	idx := spatialindex.New(fs.Points)
	terms := []weight.Term{{VarIndex: 0, Min: 0, Max: 1, Multiplier: 1}}
	cfg := meanshift.Config{
		Kernel:    kernel.New(kernel.Uniform, 0.001, false),
		Weight:    weight.NewComposite(terms, 2, nil, nil),
		Bandwidth: []float64{0.001, 0.001},
	}
	// force a zero-weight denominator: the point's value 1 lies below the
	// composite term's range [10, 20], so the term clamps negative to zero.
	cfg.Weight = weight.NewComposite([]weight.Term{{VarIndex: 0, Min: 10, Max: 20, Multiplier: 1}}, 2, nil, nil)
	err := meanshift.Run(context.Background(), fs, idx, cfg, nil)
	c.Assert(err, check.IsNil)
	c.Check(p.Converged, check.Equals, false)

	_, err = meanshift.BuildClusters(fs, []float64{1, 1})
	c.Check(err, check.NotNil)
}

func mustCoords(c *check.C) *featurespace.CoordinateSystem {
	cs, err := featurespace.NewCoordinateSystem([]string{"x", "y"}, [][]float64{{0, 1}, {0, 1}})
	c.Assert(err, check.IsNil)
	return cs
}
