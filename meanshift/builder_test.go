package meanshift_test

import (
	"gopkg.in/check.v1"

	"github.com/wxtrack/meanie/featurespace"
	"github.com/wxtrack/meanie/meanshift"
)

// syntheticPoint builds a converged point whose terminal position is
// coordinate+shift, bypassing the mean-shift engine so the graph
// aggregation logic can be tested in isolation.
func syntheticPoint(gp []int, coord, shift []float64) *featurespace.Point {
	return &featurespace.Point{
		Gridpoint:  gp,
		Coordinate: coord,
		Values:     append([]float64(nil), coord...),
		Shift:      shift,
		Converged:  true,
	}
}

func (s *S) TestBuilderChainsToFixedPoint(c *check.C) {
	// Three points whose terminal positions chain: 0 -> 1 -> 2, and 2 is
	// already at its own terminal position (a mode).
	mode := syntheticPoint([]int{2}, []float64{10, 10}, []float64{0, 0})
	mid := syntheticPoint([]int{1}, []float64{5, 5}, []float64{5, 5}) // terminal = (10,10)
	leaf := syntheticPoint([]int{0}, []float64{0, 0}, []float64{5, 5}) // terminal = (5,5)

	fs := &featurespace.FeatureSpace{
		Coords:        mustCoords(c),
		VariableNames: []string{},
		Points:        []*featurespace.Point{leaf, mid, mode},
	}

	agg, err := meanshift.BuildClusters(fs, []float64{0.5, 0.5})
	c.Assert(err, check.IsNil)
	c.Assert(agg.Modes, check.HasLen, 1)
	c.Check(agg.ClusterOf[0], check.Equals, agg.ClusterOf[1])
	c.Check(agg.ClusterOf[1], check.Equals, agg.ClusterOf[2])
}

func (s *S) TestBuilderMergesDuplicateModesWithinResolution(c *check.C) {
	// Two independent fixed points 0.3 apart on one axis: within
	// resolution 0.5 they must merge into a single cluster whose mode is
	// their arithmetic mean.
	a := syntheticPoint([]int{0}, []float64{10.0, 10.0}, []float64{0, 0})
	b := syntheticPoint([]int{1}, []float64{10.3, 10.0}, []float64{0, 0})

	fs := &featurespace.FeatureSpace{
		Coords: mustCoords(c),
		Points: []*featurespace.Point{a, b},
	}

	agg, err := meanshift.BuildClusters(fs, []float64{0.5, 0.5})
	c.Assert(err, check.IsNil)
	c.Assert(agg.Modes, check.HasLen, 1)
	c.Check(agg.Modes[0][0], check.Equals, 10.15)
}

func (s *S) TestBuilderKeepsDistinctModesOutsideResolution(c *check.C) {
	a := syntheticPoint([]int{0}, []float64{0, 0}, []float64{0, 0})
	b := syntheticPoint([]int{1}, []float64{20, 20}, []float64{0, 0})

	fs := &featurespace.FeatureSpace{
		Coords: mustCoords(c),
		Points: []*featurespace.Point{a, b},
	}

	agg, err := meanshift.BuildClusters(fs, []float64{1, 1})
	c.Assert(err, check.IsNil)
	c.Assert(agg.Modes, check.HasLen, 2)
}

func (s *S) TestBuilderTieBreaksByLargerIncomingShift(c *check.C) {
	// Two candidate predecessors equidistant from leaf's terminal
	// position; the one with the larger incoming shift norm wins.
	weak := syntheticPoint([]int{0}, []float64{9, 10}, []float64{1, 0})
	strong := syntheticPoint([]int{1}, []float64{11, 10}, []float64{5, 0})
	// leaf's own coordinate is far from its terminal position (10,10), so
	// it is not itself a tied candidate.
	leaf := syntheticPoint([]int{2}, []float64{10, 5}, []float64{0, 5})

	fs := &featurespace.FeatureSpace{
		Coords: mustCoords(c),
		Points: []*featurespace.Point{weak, strong, leaf},
	}

	agg, err := meanshift.BuildClusters(fs, []float64{2, 2})
	c.Assert(err, check.IsNil)
	// leaf's terminal position is (10,10), equidistant from weak and
	// strong; strong's larger shift norm should win the tie.
	c.Check(agg.ClusterOf[2], check.Equals, agg.ClusterOf[1])
}
