package track_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxtrack/meanie/cluster"
	"github.com/wxtrack/meanie/featurespace"
	"github.com/wxtrack/meanie/track"
)

func trackPoint(gp int, coord float64) *featurespace.Point {
	return &featurespace.Point{
		Gridpoint:  []int{gp},
		Coordinate: []float64{coord},
		Values:     []float64{coord, 1},
	}
}

func mkCluster(t *testing.T, id uint64, points ...*featurespace.Point) *cluster.Cluster {
	mode := []float64{points[0].Coordinate[0]}
	c, err := cluster.New(id, mode, points, 1)
	require.NoError(t, err)
	return c
}

func baseConfig() track.Config {
	return track.Config{
		VarIndex:       0,
		Wd:             0.34,
		Ws:             0.33,
		Wc:             0.33,
		DeltaT:         1,
		MaxDeltaT:      10,
		VMax:           20,
		MergeThreshold: 0.5,
		HistogramBins:  2,
		HistogramMin:   0,
		HistogramMax:   2,
	}
}

func TestTrackRejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := baseConfig()
	cfg.Wd = 0.5
	prev := &cluster.List{Clusters: []*cluster.Cluster{mkCluster(t, 1, trackPoint(0, 0))}}
	curr := &cluster.List{Clusters: []*cluster.Cluster{mkCluster(t, 0, trackPoint(1, 1))}}
	err := track.Track(prev, curr, cfg)
	assert.Error(t, err)
}

func TestTrackRejectsNonPositiveDeltaT(t *testing.T) {
	cfg := baseConfig()
	cfg.DeltaT = 0
	prev := &cluster.List{Clusters: []*cluster.Cluster{mkCluster(t, 1, trackPoint(0, 0))}}
	curr := &cluster.List{Clusters: []*cluster.Cluster{mkCluster(t, 0, trackPoint(1, 1))}}
	err := track.Track(prev, curr, cfg)
	assert.Error(t, err)
}

func TestTrackAbortsAndDropsEverythingWhenDeltaTExceedsMax(t *testing.T) {
	cfg := baseConfig()
	cfg.DeltaT = 20
	prev := &cluster.List{Clusters: []*cluster.Cluster{mkCluster(t, 7, trackPoint(0, 0))}}
	curr := &cluster.List{Clusters: []*cluster.Cluster{mkCluster(t, 0, trackPoint(1, 1))}}

	err := track.Track(prev, curr, cfg)
	require.NoError(t, err)
	assert.True(t, curr.TrackingPerformed)
	assert.Equal(t, uint64(8), curr.Clusters[0].ID)
	assert.Equal(t, []uint64{8}, curr.NewIDs)
	assert.Equal(t, []uint64{7}, curr.DroppedIDs)
	assert.Empty(t, curr.TrackedIDs)
}

func TestTrackSimpleMatchCarriesIDForward(t *testing.T) {
	cfg := baseConfig()
	prev := &cluster.List{Clusters: []*cluster.Cluster{
		mkCluster(t, 5, trackPoint(0, 0), trackPoint(1, 1)),
	}}
	curr := &cluster.List{Clusters: []*cluster.Cluster{
		mkCluster(t, 0, trackPoint(10, 10), trackPoint(11, 11)),
	}}

	err := track.Track(prev, curr, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), curr.Clusters[0].ID)
	assert.Equal(t, []uint64{5}, curr.TrackedIDs)
	assert.Empty(t, curr.NewIDs)
	assert.Empty(t, curr.DroppedIDs)
}

func TestTrackDetectsMergeAndAssignsFreshID(t *testing.T) {
	cfg := baseConfig()
	a := mkCluster(t, 1, trackPoint(0, 0), trackPoint(1, 1))
	b := mkCluster(t, 2, trackPoint(2, 2), trackPoint(3, 3))
	prev := &cluster.List{Clusters: []*cluster.Cluster{a, b}}

	merged := mkCluster(t, 0, trackPoint(0, 0), trackPoint(1, 1), trackPoint(2, 2), trackPoint(3, 3))
	curr := &cluster.List{Clusters: []*cluster.Cluster{merged}}

	err := track.Track(prev, curr, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), curr.Clusters[0].ID)
	assert.Equal(t, []uint64{3}, curr.NewIDs)
	assert.Empty(t, curr.TrackedIDs)
	assert.Equal(t, []uint64{1, 2}, curr.DroppedIDs)
}

func TestTrackDetectsSplitAndDemotesBothPieces(t *testing.T) {
	cfg := baseConfig()
	prev := &cluster.List{Clusters: []*cluster.Cluster{
		mkCluster(t, 1, trackPoint(0, 0), trackPoint(1, 1), trackPoint(2, 2), trackPoint(3, 3)),
	}}
	c1 := mkCluster(t, 0, trackPoint(0, 0), trackPoint(1, 1))
	c2 := mkCluster(t, 0, trackPoint(2, 2), trackPoint(3, 3))
	curr := &cluster.List{Clusters: []*cluster.Cluster{c1, c2}}

	err := track.Track(prev, curr, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), curr.Clusters[0].ID)
	assert.Equal(t, uint64(3), curr.Clusters[1].ID)
	assert.ElementsMatch(t, []uint64{2, 3}, curr.NewIDs)
	assert.Empty(t, curr.TrackedIDs)
	assert.Equal(t, []uint64{1}, curr.DroppedIDs)
}
