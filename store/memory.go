// Package store provides an implementation of the external data-store
// contract (consumed; the interface is featurespace.DataSource) and the
// ClusterList on-disk document format (produced), per the system's external
// interfaces. The gridded reader/writer itself (NetCDF-style) is an
// external collaborator; this package ships only an in-memory reference
// implementation of the contract, used by tests and by callers that have
// already materialized a grid in memory.
package store

import (
	"fmt"

	"github.com/wxtrack/meanie/errs"
)

// MemoryStore is an in-memory implementation of featurespace.DataSource.
type MemoryStore struct {
	rank       int
	dims       []int
	names      []string
	fillValues []float64
	mins       []float64
	maxs       []float64
	data       []map[string]float64 // per-variable, keyed by fmt.Sprint(gridpoint)
}

// NewMemoryStore builds an empty MemoryStore over the given grid shape and
// variable names, with a fill value per variable.
func NewMemoryStore(dims []int, names []string, fillValues []float64) (*MemoryStore, error) {
	if len(names) != len(fillValues) {
		return nil, errs.New(errs.InvalidInput, "%d variable names but %d fill values", len(names), len(fillValues))
	}
	ms := &MemoryStore{
		rank:       len(dims),
		dims:       append([]int(nil), dims...),
		names:      append([]string(nil), names...),
		fillValues: append([]float64(nil), fillValues...),
		mins:       make([]float64, len(names)),
		maxs:       make([]float64, len(names)),
		data:       make([]map[string]float64, len(names)),
	}
	for i := range ms.data {
		ms.data[i] = make(map[string]float64)
	}
	return ms, nil
}

// Set writes value for variable varIndex at gridpoint, and extends the
// variable's observed min/max.
func (ms *MemoryStore) Set(varIndex int, gridpoint []int, value float64) {
	key := fmt.Sprint(gridpoint)
	if len(ms.data[varIndex]) == 0 {
		ms.mins[varIndex] = value
		ms.maxs[varIndex] = value
	} else {
		if value < ms.mins[varIndex] {
			ms.mins[varIndex] = value
		}
		if value > ms.maxs[varIndex] {
			ms.maxs[varIndex] = value
		}
	}
	ms.data[varIndex][key] = value
}

func (ms *MemoryStore) Rank() int                      { return ms.rank }
func (ms *MemoryStore) Dimensions() []int              { return append([]int(nil), ms.dims...) }
func (ms *MemoryStore) VariableNames() []string        { return append([]string(nil), ms.names...) }
func (ms *MemoryStore) Min(varIndex int) float64       { return ms.mins[varIndex] }
func (ms *MemoryStore) Max(varIndex int) float64       { return ms.maxs[varIndex] }
func (ms *MemoryStore) FillValue(varIndex int) float64 { return ms.fillValues[varIndex] }

// Read returns the value at (varIndex, gridpoint), or the fill value (with
// ok=true still, per the external contract: fill is a valid read outcome
// that FeatureSpace construction then filters) if never explicitly Set.
func (ms *MemoryStore) Read(varIndex int, gridpoint []int) (float64, bool) {
	key := fmt.Sprint(gridpoint)
	if v, ok := ms.data[varIndex][key]; ok {
		return v, true
	}
	return ms.fillValues[varIndex], true
}
