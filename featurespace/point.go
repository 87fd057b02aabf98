package featurespace

// NoCluster is the sentinel cluster back-reference for a point that has not
// (yet) been assigned to a cluster.
const NoCluster = 0

// Point represents one grid cell accepted into the feature space.
//
// Mutated only by the mean-shift engine (Shift) and the cluster builder
// (ClusterID); all other fields are set once at construction. A cluster
// holds pointers to its member Points, not indices into the owning
// FeatureSpace's Points slice; a Point refers back to its cluster only by
// ID (ClusterID), so there is no pointer cycle.
type Point struct {
	Gridpoint  []int     // integer tuple indexing the source grid
	Coordinate []float64 // spatial position, rank == spatial rank
	Values     []float64 // coordinate components followed by feature components
	Shift      []float64 // zero until the mean-shift engine writes it
	ClusterID  uint64    // weak back-reference; NoCluster until assigned
	Converged  bool      // false if the mean-shift iteration failed to converge
}

// FinalPosition returns Coordinate + Shift, the terminal position of the
// mean-shift trajectory starting at this point.
func (p *Point) FinalPosition() []float64 {
	out := make([]float64, len(p.Coordinate))
	for i := range out {
		out[i] = p.Coordinate[i] + p.Shift[i]
	}
	return out
}

// FeatureValue returns the value of feature variable i (0-indexed among the
// feature variables, i.e. after the spatial-rank coordinate prefix).
func (p *Point) FeatureValue(spatialRank, i int) float64 {
	return p.Values[spatialRank+i]
}
