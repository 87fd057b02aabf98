package store

import (
	"encoding/json"
	"os"

	"github.com/wxtrack/meanie/errs"
	"github.com/wxtrack/meanie/featurespace"
)

// GridDocument is a flat JSON stand-in for the real NetCDF-style
// gridded reader, which is an external collaborator this core does not
// implement. It exists only so `cmd/meanie detect` has a concrete file
// format to read in the absence of a production codec.
type GridDocument struct {
	DimensionNames []string    `json:"dimension_names"`
	Axes           [][]float64 `json:"axes"`
	VariableNames  []string    `json:"variable_names"`
	FillValues     []float64   `json:"fill_values"`
	// Data holds one flattened, row-major array per variable, matching the
	// shape implied by Axes.
	Data [][]float64 `json:"data"`
}

// LoadGridFile reads a GridDocument from path.
func LoadGridFile(path string) (*GridDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "reading grid file %q", path)
	}
	var doc GridDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(err, errs.IOError, "parsing grid file %q", path)
	}
	return &doc, nil
}

// ToMemoryStore materializes doc into a MemoryStore and its CoordinateSystem.
func (doc *GridDocument) ToMemoryStore() (*MemoryStore, *featurespace.CoordinateSystem, error) {
	coords, err := featurespace.NewCoordinateSystem(doc.DimensionNames, doc.Axes)
	if err != nil {
		return nil, nil, err
	}
	dims := make([]int, len(doc.Axes))
	for i, axis := range doc.Axes {
		dims[i] = len(axis)
	}
	ms, err := NewMemoryStore(dims, doc.VariableNames, doc.FillValues)
	if err != nil {
		return nil, nil, err
	}
	for v, flat := range doc.Data {
		if err := fillFromFlat(ms, v, dims, flat); err != nil {
			return nil, nil, err
		}
	}
	return ms, coords, nil
}

// fillFromFlat walks every gridpoint in row-major order, matching the
// ordering scalespace.Grid and featurespace's own grid iteration both use,
// assigning ms's cells from successive entries of flat.
func fillFromFlat(ms *MemoryStore, varIndex int, dims []int, flat []float64) error {
	n := 1
	for _, d := range dims {
		n *= d
	}
	if len(flat) != n {
		return errs.New(errs.InvalidInput, "grid file: variable %d has %d values, expected %d for shape %v", varIndex, len(flat), n, dims)
	}

	gp := make([]int, len(dims))
	pos := 0
	var walk func(d int)
	walk = func(d int) {
		if d == len(dims) {
			ms.Set(varIndex, append([]int(nil), gp...), flat[pos])
			pos++
			return
		}
		for i := 0; i < dims[d]; i++ {
			gp[d] = i
			walk(d + 1)
		}
	}
	walk(0)
	return nil
}
