package featurespace

import (
	"fmt"
	"math"

	"github.com/golang/glog"
	"github.com/wxtrack/meanie/errs"
)

// DataSource is the subset of the external data store contract that
// FeatureSpace construction needs: a typed, gridded array plus metadata.
// Concrete readers (NetCDF-style or an in-memory test double) satisfy this
// interface structurally; see package store for a reference implementation.
type DataSource interface {
	Rank() int
	Dimensions() []int
	VariableNames() []string
	Min(varIndex int) float64
	Max(varIndex int) float64
	FillValue(varIndex int) float64
	Read(varIndex int, gridpoint []int) (float64, bool)
}

// VariableRange is a per-variable [lower, upper] acceptance threshold used
// when constructing a FeatureSpace. A cell is excluded if any variable's
// value falls outside its threshold, or equals that variable's fill value.
type VariableRange struct {
	Lower, Upper float64
}

// FeatureSpace owns the sequence of accepted Points and a reference to the
// coordinate system they were built from.
type FeatureSpace struct {
	Coords        *CoordinateSystem
	VariableNames []string
	Points        []*Point

	gridIndex map[string]int // gridpoint key -> index into Points, uniqueness check
}

// gridKey renders a gridpoint tuple as a map key.
func gridKey(gp []int) string {
	return fmt.Sprint(gp)
}

// Build constructs a FeatureSpace from a data source, a coordinate system
// describing the same grid, and per-variable acceptance thresholds. Cells
// failing a threshold or equal to a fill value are excluded.
func Build(src DataSource, coords *CoordinateSystem, thresholds []VariableRange) (*FeatureSpace, error) {
	if src.Rank() != coords.Rank() {
		return nil, errs.New(errs.InvalidInput, "data source rank %d does not match coordinate system rank %d", src.Rank(), coords.Rank())
	}
	names := src.VariableNames()
	if len(thresholds) != len(names) {
		return nil, errs.New(errs.InvalidInput, "%d thresholds supplied for %d variables", len(thresholds), len(names))
	}

	fs := &FeatureSpace{
		Coords:        coords,
		VariableNames: append([]string(nil), names...),
		gridIndex:     make(map[string]int),
	}

	rank := coords.Rank()
	dims := src.Dimensions()
	gp := make([]int, rank)

	var accepted, rejected int
	err := iterateGrid(dims, gp, 0, func(gridpoint []int) error {
		values := make([]float64, rank+len(names))
		coord, err := coords.ToCoordinate(gridpoint)
		if err != nil {
			return err
		}
		copy(values, coord)

		for v := range names {
			val, ok := src.Read(v, gridpoint)
			if !ok {
				rejected++
				return nil
			}
			if math.IsNaN(val) || math.IsInf(val, 0) {
				return errs.New(errs.NumericInstability, "non-finite value for variable %q at gridpoint %v", names[v], gridpoint)
			}
			if val == src.FillValue(v) {
				rejected++
				return nil
			}
			if val < thresholds[v].Lower || val > thresholds[v].Upper {
				rejected++
				return nil
			}
			values[rank+v] = val
		}

		key := gridKey(gridpoint)
		if _, dup := fs.gridIndex[key]; dup {
			return errs.New(errs.InvalidInput, "duplicate gridpoint %v", gridpoint)
		}

		p := &Point{
			Gridpoint:  append([]int(nil), gridpoint...),
			Coordinate: coord,
			Values:     values,
			Shift:      make([]float64, rank),
		}
		fs.gridIndex[key] = len(fs.Points)
		fs.Points = append(fs.Points, p)
		accepted++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(fs.Points) == 0 {
		return nil, errs.New(errs.InvalidInput, "feature space construction accepted zero points (out of %d rejected)", rejected)
	}

	glog.V(1).Infof("featurespace: accepted %d points, rejected %d", accepted, rejected)
	return fs, nil
}

// iterateGrid recursively enumerates every gridpoint tuple over dims,
// calling fn for each fully-specified tuple.
func iterateGrid(dims []int, gp []int, d int, fn func([]int) error) error {
	if d == len(dims) {
		return fn(gp)
	}
	for i := 0; i < dims[d]; i++ {
		gp[d] = i
		if err := iterateGrid(dims, gp, d+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Rank is the spatial dimensionality shared by every point's coordinate.
func (fs *FeatureSpace) Rank() int { return fs.Coords.Rank() }

// NumFeatures is the count of feature variables (excluding spatial
// coordinates) carried in each point's Values.
func (fs *FeatureSpace) NumFeatures() int { return len(fs.VariableNames) }

// Len returns the number of accepted points.
func (fs *FeatureSpace) Len() int { return len(fs.Points) }

// IndexOf returns the Points index for a gridpoint, or -1 if absent.
func (fs *FeatureSpace) IndexOf(gridpoint []int) int {
	if i, ok := fs.gridIndex[gridKey(gridpoint)]; ok {
		return i
	}
	return -1
}
