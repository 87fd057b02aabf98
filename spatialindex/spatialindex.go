// Package spatialindex provides a k-d-tree-backed point index supporting
// range and k-NN queries over a FeatureSpace, with an optional
// bandwidth-whitened variant.
package spatialindex

import (
	"sort"

	gokdtree "gonum.org/v1/gonum/spatial/kdtree"

	"github.com/wxtrack/meanie/featurespace"
)

// node adapts a featurespace.Point to gokdtree.Comparable. coord is the
// coordinate actually indexed: the point's raw spatial coordinate for a
// plain Index, or its whitened coordinate for a whitened Index.
type node struct {
	p     *featurespace.Point
	coord []float64
}

func (n *node) Compare(c gokdtree.Comparable, d gokdtree.Dim) float64 {
	return n.coord[d] - c.(*node).coord[d]
}
func (n *node) Dims() int { return len(n.coord) }
func (n *node) Distance(c gokdtree.Comparable) float64 {
	o := c.(*node)
	var sum float64
	for i, v := range n.coord {
		d := v - o.coord[i]
		sum += d * d
	}
	return sum
}

// nodes satisfies gokdtree.Interface.
type nodes []*node

func (ns nodes) Index(i int) gokdtree.Comparable { return ns[i] }
func (ns nodes) Len() int                        { return len(ns) }
func (ns nodes) Pivot(d gokdtree.Dim) int {
	return plane{nodes: ns, Dim: d}.Pivot()
}
func (ns nodes) Slice(start, end int) gokdtree.Interface {
	return ns[start:end]
}

type plane struct {
	gokdtree.Dim
	nodes
}

func (p plane) Less(i, j int) bool { return p.nodes[i].coord[p.Dim] < p.nodes[j].coord[p.Dim] }
func (p plane) Pivot() int {
	return gokdtree.Partition(p, gokdtree.MedianOfRandoms(p, gokdtree.Randoms))
}
func (p plane) Slice(start, end int) gokdtree.SortSlicer {
	p.nodes = p.nodes[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.nodes[i], p.nodes[j] = p.nodes[j], p.nodes[i] }

// Whitening is the diagonal transform Omega = diag(whiteRadius /
// bandwidth[i]) that normalizes an anisotropic per-dimension bandwidth
// search to a fixed-radius search in the whitened space. Per the source
// algorithm notes this is a deliberate performance/accuracy trade-off, not
// mandated for every search.
type Whitening struct {
	Diag        []float64 // Omega's diagonal entries
	WhiteRadius float64
}

// NewWhitening builds Omega from a bandwidth vector and the fixed white
// radius.
func NewWhitening(bandwidth []float64, whiteRadius float64) *Whitening {
	diag := make([]float64, len(bandwidth))
	for i, b := range bandwidth {
		diag[i] = whiteRadius / b
	}
	return &Whitening{Diag: diag, WhiteRadius: whiteRadius}
}

// Transform applies Omega to a coordinate vector.
func (w *Whitening) Transform(coord []float64) []float64 {
	out := make([]float64, len(coord))
	for i, v := range coord {
		out[i] = v * w.Diag[i]
	}
	return out
}

// Index is a k-d-tree-backed spatial index over a set of points, optionally
// pre-whitened per Whitening.
type Index struct {
	tree      *gokdtree.Tree
	whitening *Whitening
}

// New builds a plain (non-whitened) index over points, indexed by their
// spatial Coordinate.
func New(points []*featurespace.Point) *Index {
	return build(points, nil)
}

// NewWhitened builds an index whose indexed coordinates are pre-multiplied
// by Omega (w.Diag), so that a fixed-radius search of radius w.WhiteRadius in the
// whitened space corresponds to an anisotropic bandwidth search in the
// original space.
func NewWhitened(points []*featurespace.Point, w *Whitening) *Index {
	return build(points, w)
}

func build(points []*featurespace.Point, w *Whitening) *Index {
	ns := make(nodes, len(points))
	for i, p := range points {
		coord := p.Coordinate
		if w != nil {
			coord = w.Transform(coord)
		}
		ns[i] = &node{p: p, coord: coord}
	}
	idx := &Index{whitening: w}
	idx.tree = gokdtree.New(ns, false)
	return idx
}

// Insert adds a single point to the index.
func (idx *Index) Insert(p *featurespace.Point) {
	coord := p.Coordinate
	if idx.whitening != nil {
		coord = idx.whitening.Transform(coord)
	}
	idx.tree.Insert(&node{p: p, coord: coord}, false)
}

func (idx *Index) queryCoord(coord []float64) (*node, []float64) {
	indexed := coord
	if idx.whitening != nil {
		indexed = idx.whitening.Transform(coord)
	}
	return &node{coord: indexed}, coord
}

// Result is one hit from a spatial query, carrying the matched point and
// its (unwhitened, original-space) squared Euclidean distance to the query.
type Result struct {
	Point  *featurespace.Point
	DistSq float64
}

// Range returns every point within the per-dimension bandwidth box of the
// query coordinate, filtered down to the Euclidean (or, for a whitened
// index, whitened-radius) neighborhood: a point qualifies if
// sum((d_i/bandwidth[i])^2) <= 1, computed in the index's native space.
//
// For a whitened index, bandwidth is ignored in favor of the index's own
// Omega and a fixed WhiteRadius cutoff in whitened space (the point of
// whitening is reducing this query to a fixed-radius search).
func (idx *Index) Range(queryCoord []float64, bandwidth []float64) []Result {
	q, orig := idx.queryCoord(queryCoord)

	var radiusSq float64
	if idx.whitening != nil {
		radiusSq = idx.whitening.WhiteRadius * idx.whitening.WhiteRadius
	} else {
		maxBW := 0.0
		for _, b := range bandwidth {
			if b > maxBW {
				maxBW = b
			}
		}
		radiusSq = maxBW * maxBW
	}

	keeper := gokdtree.NewDistKeeper(radiusSq)
	idx.tree.NearestSet(keeper, q)

	var out []Result
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		cand := cd.Comparable.(*node)
		if idx.whitening != nil {
			if cd.Dist <= radiusSq {
				out = append(out, Result{Point: cand.p, DistSq: euclideanDistSq(orig, cand.p.Coordinate)})
			}
			continue
		}
		if withinBox(orig, cand.p.Coordinate, bandwidth) &&
			withinNormalizedEllipsoid(orig, cand.p.Coordinate, bandwidth) {
			out = append(out, Result{Point: cand.p, DistSq: euclideanDistSq(orig, cand.p.Coordinate)})
		}
	}
	sortResults(out)
	return out
}

// KNN returns the k nearest points to the query coordinate. Ties are broken
// by ascending gridpoint lexicographic order.
func (idx *Index) KNN(queryCoord []float64, k int) []Result {
	q, orig := idx.queryCoord(queryCoord)
	keeper := gokdtree.NewNKeeper(k)
	idx.tree.NearestSet(keeper, q)

	out := make([]Result, 0, k)
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		cand := cd.Comparable.(*node)
		out = append(out, Result{Point: cand.p, DistSq: euclideanDistSq(orig, cand.p.Coordinate)})
	}
	sortResults(out)
	return out
}

func sortResults(out []Result) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistSq != out[j].DistSq {
			return out[i].DistSq < out[j].DistSq
		}
		return lexLess(out[i].Point.Gridpoint, out[j].Point.Gridpoint)
	})
}

func lexLess(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func euclideanDistSq(a, b []float64) float64 {
	var sum float64
	for i, v := range a {
		d := v - b[i]
		sum += d * d
	}
	return sum
}

func withinBox(a, b, bandwidth []float64) bool {
	for i, bw := range bandwidth {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > bw {
			return false
		}
	}
	return true
}

func withinNormalizedEllipsoid(a, b, bandwidth []float64) bool {
	var sum float64
	for i, bw := range bandwidth {
		if bw == 0 {
			continue
		}
		d := (a[i] - b[i]) / bw
		sum += d * d
	}
	return sum <= 1
}
