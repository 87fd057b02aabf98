// Package cluster holds the Cluster / ClusterList data model and the
// post-processing stages (size filtering, boundary-driven merging,
// coalescence) that run after mode aggregation.
package cluster

import (
	"fmt"

	"github.com/wxtrack/meanie/errs"
	"github.com/wxtrack/meanie/featurespace"
)

// NoID is the reserved sentinel identifier meaning "not yet assigned".
const NoID uint64 = 0

// Bounds is an axis-aligned bounding box in grid space.
type Bounds struct {
	Min, Max []int
}

// Cluster is a set of feature-space points sharing a convergent mean-shift
// mode.
type Cluster struct {
	ID     uint64
	Mode   []float64 // the convergent mode, in the spatial coordinate space
	Points []*featurespace.Point
	Bounds Bounds

	spatialRank int
	histograms  map[int]*Histogram
}

// New builds a Cluster from its member points, assigning each point's
// back-reference and computing the bounding box. points must be non-empty.
func New(id uint64, mode []float64, points []*featurespace.Point, spatialRank int) (*Cluster, error) {
	if len(points) == 0 {
		return nil, errs.New(errs.InvalidInput, "cluster %d: empty point set", id)
	}
	c := &Cluster{
		ID:          id,
		Mode:        append([]float64(nil), mode...),
		Points:      points,
		spatialRank: spatialRank,
		histograms:  make(map[int]*Histogram),
	}
	c.Bounds = computeBounds(points, spatialRank)
	for _, p := range points {
		p.ClusterID = id
	}
	return c, nil
}

func computeBounds(points []*featurespace.Point, spatialRank int) Bounds {
	min := append([]int(nil), points[0].Gridpoint...)
	max := append([]int(nil), points[0].Gridpoint...)
	for _, p := range points[1:] {
		for d := 0; d < spatialRank; d++ {
			if p.Gridpoint[d] < min[d] {
				min[d] = p.Gridpoint[d]
			}
			if p.Gridpoint[d] > max[d] {
				max[d] = p.Gridpoint[d]
			}
		}
	}
	return Bounds{Min: min, Max: max}
}

// Size is the number of member points.
func (c *Cluster) Size() int { return len(c.Points) }

// MeanFeatureValue returns the arithmetic mean of feature variable varIndex
// over the cluster's member points. Used wherever post-processing or
// tracking needs a representative scalar value for the cluster in a given
// variable (e.g. "the neighboring cluster whose mode has the highest value
// in the chosen variable": a cluster's mode lives in the spatial coordinate
// subspace in this implementation, per the spatial-rank constraint on
// Point.Shift, so the representative feature value is this mean instead).
func (c *Cluster) MeanFeatureValue(varIndex int) float64 {
	var sum float64
	for _, p := range c.Points {
		sum += p.FeatureValue(c.spatialRank, varIndex)
	}
	return sum / float64(len(c.Points))
}

// WeightedCenter returns the spatial center of mass of the cluster,
// weighting each member point by its value in the tracking variable.
func (c *Cluster) WeightedCenter(varIndex int) []float64 {
	center := make([]float64, c.spatialRank)
	var sumW float64
	for _, p := range c.Points {
		w := p.FeatureValue(c.spatialRank, varIndex)
		sumW += w
		for d := 0; d < c.spatialRank; d++ {
			center[d] += w * p.Coordinate[d]
		}
	}
	if sumW == 0 {
		// degenerate: fall back to the unweighted centroid.
		for _, p := range c.Points {
			for d := 0; d < c.spatialRank; d++ {
				center[d] += p.Coordinate[d]
			}
		}
		for d := range center {
			center[d] /= float64(len(c.Points))
		}
		return center
	}
	for d := range center {
		center[d] /= sumW
	}
	return center
}

// gridpointSet returns a set of this cluster's gridpoints, keyed as their
// fmt.Sprint representation.
func (c *Cluster) gridpointSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Points))
	for _, p := range c.Points {
		set[fmt.Sprint(p.Gridpoint)] = struct{}{}
	}
	return set
}

// PercentCoveredBy returns the fraction of c's gridpoints that also lie in
// other's gridpoint set.
func (c *Cluster) PercentCoveredBy(other *Cluster) float64 {
	if len(c.Points) == 0 {
		return 0
	}
	otherSet := other.gridpointSet()
	var covered int
	for _, p := range c.Points {
		if _, ok := otherSet[fmt.Sprint(p.Gridpoint)]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(c.Points))
}

// invalidateHistograms drops the lazily cached histograms; called whenever
// the point set mutates (merge, coalescence).
func (c *Cluster) invalidateHistograms() {
	c.histograms = make(map[int]*Histogram)
}

// List is an ordered sequence of clusters with tracking bookkeeping.
type List struct {
	Clusters          []*Cluster
	TrackedIDs        []uint64
	NewIDs            []uint64
	DroppedIDs        []uint64
	TrackingPerformed bool
	SourceFile        string
}

// ByID returns the cluster with the given id, or nil.
func (l *List) ByID(id uint64) *Cluster {
	for _, c := range l.Clusters {
		if c.ID == id {
			return c
		}
	}
	return nil
}
