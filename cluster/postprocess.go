package cluster

import (
	"math"

	"github.com/golang/glog"

	"github.com/wxtrack/meanie/featurespace"
	"github.com/wxtrack/meanie/spatialindex"
)

// FilterBySize discards clusters with fewer than minSize points, clearing
// the dropped points' back-references to NoID. Returns a new List; the
// input is not mutated.
func FilterBySize(in *List, minSize int) *List {
	out := &List{
		TrackedIDs:        in.TrackedIDs,
		NewIDs:            in.NewIDs,
		DroppedIDs:        in.DroppedIDs,
		TrackingPerformed: in.TrackingPerformed,
		SourceFile:        in.SourceFile,
	}
	var dropped int
	for _, c := range in.Clusters {
		if c.Size() < minSize {
			for _, p := range c.Points {
				p.ClusterID = featurespace.NoCluster
			}
			dropped++
			continue
		}
		out.Clusters = append(out.Clusters, c)
	}
	if dropped > 0 {
		glog.V(1).Infof("postprocess: size threshold dropped %d of %d clusters", dropped, len(in.Clusters))
	}
	return out
}

// BoundaryConfig parameterizes the optional boundary-analysis merge stage.
type BoundaryConfig struct {
	SpatialRank           int
	VarIndex              int
	Resolution            []float64
	CenterRangeScale      float64 // pairs considered only if centers are within CenterRangeScale * |resolution|
	CVThreshold           float64 // merge if sigma/mu over the boundary < this
	DynamicRangeThreshold float64 // merge if span-fraction over the boundary > this
	ValidMin, ValidMax    float64 // the variable's observed range
}

// MergeByBoundary merges neighboring cluster pairs whose shared boundary is
// a smooth crossing rather than a true edge: CV below threshold and
// dynamic-range factor above threshold. The pairwise scan restarts after
// every merge and terminates when a full pass finds nothing to merge.
// Returns a new List; the input List's cluster slice is not mutated, though
// merged clusters' member points are (their ClusterID is repointed).
func MergeByBoundary(in *List, cfg BoundaryConfig) *List {
	clusters := append([]*Cluster(nil), in.Clusters...)

restart:
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			a, b := clusters[i], clusters[j]
			if !centersNear(a.Mode, b.Mode, cfg.Resolution, cfg.CenterRangeScale) {
				continue
			}
			boundary := boundaryPoints(a, b, cfg.Resolution, cfg.SpatialRank)
			if len(boundary) == 0 {
				continue
			}
			values := make([]float64, len(boundary))
			for k, p := range boundary {
				values[k] = p.FeatureValue(cfg.SpatialRank, cfg.VarIndex)
			}
			cv := coefficientOfVariation(values)
			drf := dynamicRangeFactor(values, cfg.ValidMin, cfg.ValidMax)
			if cv < cfg.CVThreshold && drf > cfg.DynamicRangeThreshold {
				merged := mergeTwo(a, b, cfg.SpatialRank)
				clusters = append(clusters[:i], clusters[i+1:]...)
				clusters = replaceCluster(clusters, b, merged)
				glog.V(1).Infof("postprocess: merged cluster %d into %d across a smooth boundary (cv=%.3f drf=%.3f)", a.ID, merged.ID, cv, drf)
				goto restart
			}
		}
	}

	return &List{
		Clusters:          clusters,
		TrackedIDs:        in.TrackedIDs,
		NewIDs:            in.NewIDs,
		DroppedIDs:        in.DroppedIDs,
		TrackingPerformed: in.TrackingPerformed,
		SourceFile:        in.SourceFile,
	}
}

func replaceCluster(clusters []*Cluster, old, replacement *Cluster) []*Cluster {
	out := make([]*Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c == old {
			out = append(out, replacement)
			continue
		}
		out = append(out, c)
	}
	return out
}

func centersNear(a, b, resolution []float64, scale float64) bool {
	var distSq, boundSq float64
	for i := range resolution {
		d := a[i] - b[i]
		distSq += d * d
		boundSq += (scale * resolution[i]) * (scale * resolution[i])
	}
	return distSq <= boundSq
}

// boundaryPoints returns the union of a's points within resolution of any
// of b's points, and b's points within resolution of any of a's points.
func boundaryPoints(a, b *Cluster, resolution []float64, spatialRank int) []*featurespace.Point {
	bIdx := spatialindex.New(b.Points)
	aIdx := spatialindex.New(a.Points)

	var out []*featurespace.Point
	for _, p := range a.Points {
		if len(bIdx.Range(p.Coordinate, resolution)) > 0 {
			out = append(out, p)
		}
	}
	for _, p := range b.Points {
		if len(aIdx.Range(p.Coordinate, resolution)) > 0 {
			out = append(out, p)
		}
	}
	return out
}

func dynamicRangeFactor(values []float64, validMin, validMax float64) float64 {
	if len(values) == 0 || validMax <= validMin {
		return 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return (max - min) / (validMax - validMin)
}

func mergeTwo(a, b *Cluster, spatialRank int) *Cluster {
	points := append(append([]*featurespace.Point(nil), a.Points...), b.Points...)
	mode := make([]float64, spatialRank)
	for i := range mode {
		mode[i] = 0.5 * (a.Mode[i] + b.Mode[i])
	}
	merged, _ := New(a.ID, mode, points, spatialRank)
	return merged
}

// CoalesceConfig parameterizes the optional coalescence-with-strongest-
// neighbor stage.
type CoalesceConfig struct {
	SpatialRank int
	VarIndex    int
	Resolution  []float64
	SizeThreshold int
}

// Coalesce absorbs every cluster below SizeThreshold into its neighboring
// cluster (mode within Resolution) with the highest representative value in
// VarIndex. A small cluster with no qualifying neighbor is left untouched.
func Coalesce(in *List, cfg CoalesceConfig) *List {
	clusters := append([]*Cluster(nil), in.Clusters...)
	absorbed := make(map[*Cluster]bool)

	for _, c := range clusters {
		if absorbed[c] || c.Size() >= cfg.SizeThreshold {
			continue
		}
		var best *Cluster
		var bestVal float64
		for _, n := range clusters {
			if n == c || absorbed[n] {
				continue
			}
			if !withinResolutionVec(c.Mode, n.Mode, cfg.Resolution) {
				continue
			}
			v := n.MeanFeatureValue(cfg.VarIndex)
			if best == nil || v > bestVal {
				best, bestVal = n, v
			}
		}
		if best == nil {
			continue
		}
		merged := mergeTwo(best, c, cfg.SpatialRank)
		merged.ID = best.ID
		replaceInPlace(clusters, best, merged)
		absorbed[c] = true
	}

	out := &List{
		TrackedIDs:        in.TrackedIDs,
		NewIDs:            in.NewIDs,
		DroppedIDs:        in.DroppedIDs,
		TrackingPerformed: in.TrackingPerformed,
		SourceFile:        in.SourceFile,
	}
	for _, c := range clusters {
		if !absorbed[c] {
			out.Clusters = append(out.Clusters, c)
		}
	}
	return out
}

func replaceInPlace(clusters []*Cluster, old, replacement *Cluster) {
	for i, c := range clusters {
		if c == old {
			clusters[i] = replacement
			return
		}
	}
}

func withinResolutionVec(a, b, resolution []float64) bool {
	for i := range resolution {
		if math.Abs(a[i]-b[i]) > resolution[i] {
			return false
		}
	}
	return true
}
