// Package weight provides the closed set of weight functions: pure mappings
// from a feature-space point to a non-negative scalar saliency used by the
// mean-shift engine's kernel-weighted sum.
package weight

import (
	"fmt"
	"math"

	"github.com/wxtrack/meanie/featurespace"
	"github.com/wxtrack/meanie/kernel"
)

// Kind enumerates the closed set of supported weight functions.
type Kind int

const (
	// InverseDistance weighs a point by the inverse of its distance to a
	// fixed center (plus a small epsilon, to stay finite at the center).
	InverseDistance Kind = iota
	// Lookup weighs a point via a precomputed per-point multi-array table,
	// keyed by the point's gridpoint.
	Lookup
	// Composite linearly combines per-variable normalized values with fixed
	// multipliers, optionally convolved with a kernel over a spatial
	// neighborhood.
	Composite
)

// NeighborFunc returns the spatial neighborhood of a point, used only by
// Composite when convolution is requested. Implementations typically wrap a
// spatialindex range search; injected here to avoid a package import cycle.
type NeighborFunc func(p *featurespace.Point) []*featurespace.Point

// Term is one summand of a Composite weight function: the index of a
// feature variable (as stored in Point.Values, i.e. offset by spatial
// rank), its normalization range, and its fixed multiplier.
type Term struct {
	VarIndex         int
	Min, Max         float64
	Multiplier       float64
}

// Function is a closed, tagged weight-function variant.
type Function struct {
	Kind Kind

	// InverseDistance
	Center  []float64
	Epsilon float64

	// Lookup
	Table map[string]float64 // keyed by fmt.Sprint(gridpoint)

	// Composite
	Terms        []Term
	ConvKernel   *kernel.Kernel
	Neighbors    NeighborFunc
	SpatialRank  int
}

// NewInverseDistance builds an inverse-distance-to-center weight function.
func NewInverseDistance(center []float64, epsilon float64) Function {
	return Function{Kind: InverseDistance, Center: center, Epsilon: epsilon}
}

// NewLookup builds a precomputed-table weight function.
func NewLookup(table map[string]float64) Function {
	return Function{Kind: Lookup, Table: table}
}

// NewComposite builds a domain-specific composite weight function.
func NewComposite(terms []Term, spatialRank int, convKernel *kernel.Kernel, neighbors NeighborFunc) Function {
	return Function{Kind: Composite, Terms: terms, SpatialRank: spatialRank, ConvKernel: convKernel, Neighbors: neighbors}
}

func gridKey(gp []int) string {
	return fmt.Sprint(gp)
}

func appendInt(b []byte, v int) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	if v >= 10 {
		b = appendInt(b, v/10)
	}
	return append(b, byte('0'+v%10))
}

// Weight evaluates the weight function at point p.
func (f Function) Weight(p *featurespace.Point) float64 {
	switch f.Kind {
	case InverseDistance:
		var sumSq float64
		for i, c := range f.Center {
			d := p.Coordinate[i] - c
			sumSq += d * d
		}
		return 1.0 / (math.Sqrt(sumSq) + f.Epsilon)
	case Lookup:
		if v, ok := f.Table[gridKey(p.Gridpoint)]; ok {
			return v
		}
		return 0
	case Composite:
		return f.compositeWeight(p)
	default:
		return 0
	}
}

func (f Function) compositeWeight(p *featurespace.Point) float64 {
	raw := f.pointwiseComposite(p)
	if f.ConvKernel == nil || f.Neighbors == nil {
		return raw
	}
	neighbors := f.Neighbors(p)
	if len(neighbors) == 0 {
		return raw
	}
	var sumW, sumK float64
	for _, n := range neighbors {
		var distSq float64
		for i := 0; i < f.SpatialRank; i++ {
			d := p.Coordinate[i] - n.Coordinate[i]
			distSq += d * d
		}
		k := f.ConvKernel.Weight(math.Sqrt(distSq))
		sumW += k * f.pointwiseComposite(n)
		sumK += k
	}
	if sumK == 0 {
		return raw
	}
	return sumW / sumK
}

func (f Function) pointwiseComposite(p *featurespace.Point) float64 {
	var sum float64
	for _, t := range f.Terms {
		v := p.FeatureValue(f.SpatialRank, t.VarIndex)
		span := t.Max - t.Min
		var norm float64
		if span != 0 {
			norm = (v - t.Min) / span
		}
		sum += t.Multiplier * norm
	}
	if sum < 0 {
		return 0
	}
	return sum
}
