package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxtrack/meanie/store"
)

func writeGridFile(t *testing.T, doc *store.GridDocument) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "grid.json")
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadGridFileAndToMemoryStore(t *testing.T) {
	doc := &store.GridDocument{
		DimensionNames: []string{"x", "y"},
		Axes:           [][]float64{{0, 1}, {0, 1, 2}},
		VariableNames:  []string{"temp"},
		FillValues:     []float64{-999},
		Data:           [][]float64{{1, 2, 3, 4, 5, 6}},
	}
	path := writeGridFile(t, doc)

	loaded, err := store.LoadGridFile(path)
	require.NoError(t, err)
	assert.Equal(t, doc.VariableNames, loaded.VariableNames)

	ms, coords, err := loaded.ToMemoryStore()
	require.NoError(t, err)
	assert.Equal(t, 2, coords.Rank())
	assert.Equal(t, []int{2, 3}, ms.Dimensions())

	// row-major: gridpoint (0,0)->1, (0,1)->2, (0,2)->3, (1,0)->4 ...
	v, ok := ms.Read(0, []int{0, 0})
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = ms.Read(0, []int{1, 0})
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)
	v, ok = ms.Read(0, []int{1, 2})
	assert.True(t, ok)
	assert.Equal(t, 6.0, v)
}

func TestToMemoryStoreRejectsMismatchedDataLength(t *testing.T) {
	doc := &store.GridDocument{
		DimensionNames: []string{"x"},
		Axes:           [][]float64{{0, 1, 2}},
		VariableNames:  []string{"v"},
		FillValues:     []float64{0},
		Data:           [][]float64{{1, 2}}, // should be 3 values
	}
	_, _, err := doc.ToMemoryStore()
	assert.Error(t, err)
}

func TestLoadGridFileRejectsMissingFile(t *testing.T) {
	_, err := store.LoadGridFile("/nonexistent/path/grid.json")
	assert.Error(t, err)
}
