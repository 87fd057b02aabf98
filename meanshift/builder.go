package meanshift

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/wxtrack/meanie/errs"
	"github.com/wxtrack/meanie/featurespace"
	"github.com/wxtrack/meanie/spatialindex"
)

// Aggregation is the result of graph-based mode aggregation: for every
// point in the originating FeatureSpace, either the index of the cluster it
// belongs to, or -1 if it was excluded (non-convergent).
type Aggregation struct {
	ClusterOf []int       // per fs.Points index; -1 if excluded
	Modes     [][]float64 // per cluster, the convergent mode coordinate
	Members   [][]int     // per cluster, fs.Points indices
}

// BuildClusters aggregates converged points into clusters by following each
// point's graph predecessor (the nearest point to p's terminal position, in
// the current resolution's neighborhood, ties broken by steeper incoming
// shift) to a fixed point, then merging modes that land within resolution
// of one another.
func BuildClusters(fs *featurespace.FeatureSpace, resolution []float64) (*Aggregation, error) {
	var convergedIdx []int
	for i, p := range fs.Points {
		if p.Converged {
			convergedIdx = append(convergedIdx, i)
		}
	}
	if len(convergedIdx) == 0 {
		return nil, errs.New(errs.InvalidInput, "cluster builder: no convergent points to aggregate")
	}

	convergedPoints := make([]*featurespace.Point, len(convergedIdx))
	for i, gi := range convergedIdx {
		convergedPoints[i] = fs.Points[gi]
	}
	idx := spatialindex.New(convergedPoints)

	pos := make(map[*featurespace.Point]int, len(convergedPoints))
	for i, p := range convergedPoints {
		pos[p] = i
	}

	predecessor := computePredecessors(convergedPoints, idx, resolution, pos)
	root := resolveFixedPoints(predecessor)

	// Group by (pre-merge) root into provisional clusters, keyed by the
	// root's position in convergedPoints.
	membersByRoot := make(map[int][]int)
	for i, r := range root {
		membersByRoot[r] = append(membersByRoot[r], i)
	}
	var rootList []int
	for r := range membersByRoot {
		rootList = append(rootList, r)
	}

	uf := newUnionFind(len(rootList))
	rootPos := make(map[int]int, len(rootList))
	modeCoord := make([][]float64, len(rootList))
	for i, r := range rootList {
		rootPos[r] = i
		modeCoord[i] = append([]float64(nil), convergedPoints[r].Coordinate...)
	}

	mergeDuplicateModes(uf, modeCoord, resolution)

	finalMembers := make(map[int][]int)
	for i, r := range rootList {
		final := uf.find(i)
		finalMembers[final] = append(finalMembers[final], membersByRoot[r]...)
	}

	agg := &Aggregation{ClusterOf: make([]int, len(fs.Points))}
	for i := range agg.ClusterOf {
		agg.ClusterOf[i] = -1
	}
	var finalRoots []int
	for r := range finalMembers {
		finalRoots = append(finalRoots, r)
	}
	for ci, r := range finalRoots {
		agg.Modes = append(agg.Modes, modeCoord[r])
		var members []int
		for _, localIdx := range finalMembers[r] {
			gi := convergedIdx[localIdx]
			agg.ClusterOf[gi] = ci
			members = append(members, gi)
		}
		agg.Members = append(agg.Members, members)
	}
	return agg, nil
}

// computePredecessors finds, for each converged point, the index (within
// convergedPoints) of the nearest point to its terminal position within the
// resolution neighborhood. Ties are broken by the candidate with the
// steeper incoming shift (larger shift norm). A point with no neighbor in
// range is its own predecessor (it is already a mode).
func computePredecessors(points []*featurespace.Point, idx *spatialindex.Index, resolution []float64, pos map[*featurespace.Point]int) []int {
	predecessor := make([]int, len(points))
	for i, p := range points {
		target := p.FinalPosition()
		candidates := idx.Range(target, resolution)
		if len(candidates) == 0 {
			predecessor[i] = i
			continue
		}
		best := candidates[0]
		bestShiftNorm := floats.Norm(best.Point.Shift, 2)
		for _, c := range candidates[1:] {
			if c.DistSq > best.DistSq {
				break // sorted ascending by distance; no further ties possible
			}
			if sn := floats.Norm(c.Point.Shift, 2); sn > bestShiftNorm {
				best, bestShiftNorm = c, sn
			}
		}
		predecessor[i] = pos[best.Point]
	}
	return predecessor
}

// resolveFixedPoints follows each index's predecessor chain to a fixed
// point (predecessor[r] == r), with path compression and cycle detection
// (a cycle not passing through a true fixed point is treated as converged
// on its first-visited member, to stay robust to floating-point noise).
func resolveFixedPoints(predecessor []int) []int {
	root := make([]int, len(predecessor))
	for i := range root {
		root[i] = -1
	}
	for i := range predecessor {
		if root[i] != -1 {
			continue
		}
		var path []int
		visited := make(map[int]int)
		cur := i
		for {
			if root[cur] != -1 {
				break
			}
			if seenAt, ok := visited[cur]; ok {
				root[cur] = cur
				path = path[:seenAt]
				break
			}
			visited[cur] = len(path)
			path = append(path, cur)
			if predecessor[cur] == cur {
				root[cur] = cur
				break
			}
			cur = predecessor[cur]
		}
		final := root[cur]
		for _, p := range path {
			root[p] = final
		}
	}
	return root
}

// mergeDuplicateModes merges any two modes whose componentwise absolute
// difference is within resolution on every axis, replacing the surviving
// mode with the arithmetic mean. Full pairwise passes repeat until a pass
// finds nothing to merge.
func mergeDuplicateModes(uf *unionFind, modeCoord [][]float64, resolution []float64) {
	changed := true
	for changed {
		changed = false
		for a := 0; a < len(modeCoord); a++ {
			for b := a + 1; b < len(modeCoord); b++ {
				ra, rb := uf.find(a), uf.find(b)
				if ra == rb {
					continue
				}
				if withinResolution(modeCoord[ra], modeCoord[rb], resolution) {
					merged := make([]float64, len(resolution))
					for d := range merged {
						merged[d] = 0.5 * (modeCoord[ra][d] + modeCoord[rb][d])
					}
					uf.union(ra, rb)
					modeCoord[uf.find(ra)] = merged
					changed = true
				}
			}
		}
	}
}

func withinResolution(a, b, resolution []float64) bool {
	for i := range resolution {
		if math.Abs(a[i]-b[i]) > resolution[i] {
			return false
		}
	}
	return true
}

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
