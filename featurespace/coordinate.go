// Package featurespace holds the in-memory data model: points carrying grid
// coordinates and feature values, and the feature space that owns them.
package featurespace

import (
	"sort"

	"github.com/wxtrack/meanie/errs"
)

// CoordinateSystem is an immutable description of the gridded domain: the
// ordered dimension names, their strictly monotonic axis values, and the
// bijective mapping between grid indices and real coordinates.
type CoordinateSystem struct {
	names []string
	axes  [][]float64
}

// NewCoordinateSystem builds a CoordinateSystem from per-dimension axis
// values. Every axis must be strictly monotonic (increasing or decreasing).
func NewCoordinateSystem(names []string, axes [][]float64) (*CoordinateSystem, error) {
	if len(names) != len(axes) {
		return nil, errs.New(errs.InvalidInput, "coordinate system: %d names but %d axes", len(names), len(axes))
	}
	for d, axis := range axes {
		if len(axis) < 2 {
			continue
		}
		increasing := axis[1] > axis[0]
		for i := 1; i < len(axis); i++ {
			if increasing && axis[i] <= axis[i-1] {
				return nil, errs.New(errs.InvalidInput, "coordinate system: axis %q is not strictly increasing at index %d", names[d], i)
			}
			if !increasing && axis[i] >= axis[i-1] {
				return nil, errs.New(errs.InvalidInput, "coordinate system: axis %q is not strictly decreasing at index %d", names[d], i)
			}
		}
	}
	cs := &CoordinateSystem{
		names: append([]string(nil), names...),
		axes:  make([][]float64, len(axes)),
	}
	for i, axis := range axes {
		cs.axes[i] = append([]float64(nil), axis...)
	}
	return cs, nil
}

// Rank returns the spatial dimensionality of the coordinate system.
func (cs *CoordinateSystem) Rank() int { return len(cs.names) }

// DimensionNames returns the ordered dimension names.
func (cs *CoordinateSystem) DimensionNames() []string { return append([]string(nil), cs.names...) }

// AxisLen returns the number of grid cells along dimension d.
func (cs *CoordinateSystem) AxisLen(d int) int { return len(cs.axes[d]) }

// ToCoordinate maps a gridpoint index tuple to a real-valued coordinate.
func (cs *CoordinateSystem) ToCoordinate(gridpoint []int) ([]float64, error) {
	if len(gridpoint) != cs.Rank() {
		return nil, errs.New(errs.InvalidInput, "gridpoint rank %d does not match coordinate system rank %d", len(gridpoint), cs.Rank())
	}
	coord := make([]float64, cs.Rank())
	for d, idx := range gridpoint {
		if idx < 0 || idx >= len(cs.axes[d]) {
			return nil, errs.New(errs.InvalidInput, "gridpoint index %d out of range for dimension %q (len %d)", idx, cs.names[d], len(cs.axes[d]))
		}
		coord[d] = cs.axes[d][idx]
	}
	return coord, nil
}

// ToGridpoint maps a real-valued coordinate back to the nearest gridpoint
// index tuple, via binary search on each (monotonic) axis.
func (cs *CoordinateSystem) ToGridpoint(coord []float64) ([]int, error) {
	if len(coord) != cs.Rank() {
		return nil, errs.New(errs.InvalidInput, "coordinate rank %d does not match coordinate system rank %d", len(coord), cs.Rank())
	}
	gp := make([]int, cs.Rank())
	for d, v := range coord {
		gp[d] = nearestAxisIndex(cs.axes[d], v)
	}
	return gp, nil
}

func nearestAxisIndex(axis []float64, v float64) int {
	increasing := len(axis) < 2 || axis[1] > axis[0]
	idx := sort.Search(len(axis), func(i int) bool {
		if increasing {
			return axis[i] >= v
		}
		return axis[i] <= v
	})
	switch {
	case idx <= 0:
		return 0
	case idx >= len(axis):
		return len(axis) - 1
	default:
		if abs(axis[idx]-v) < abs(v-axis[idx-1]) {
			return idx
		}
		return idx - 1
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
