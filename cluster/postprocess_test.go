package cluster_test

import (
	"gopkg.in/check.v1"

	"github.com/wxtrack/meanie/cluster"
	"github.com/wxtrack/meanie/featurespace"
)

func newCluster(c *check.C, id uint64, mode []float64, points []*featurespace.Point) *cluster.Cluster {
	cl, err := cluster.New(id, mode, points, 1)
	c.Assert(err, check.IsNil)
	return cl
}

func (s *S) TestMergeByBoundaryMergesSmoothCrossing(c *check.C) {
	a := newCluster(c, 1, []float64{1}, []*featurespace.Point{
		pt([]int{0}, []float64{0}, 1),
		pt([]int{1}, []float64{1}, 1),
		pt([]int{2}, []float64{2}, 10),
	})
	b := newCluster(c, 2, []float64{4}, []*featurespace.Point{
		pt([]int{3}, []float64{3}, 10.2),
		pt([]int{4}, []float64{4}, 1),
		pt([]int{5}, []float64{5}, 1),
	})
	in := &cluster.List{Clusters: []*cluster.Cluster{a, b}}

	cfg := cluster.BoundaryConfig{
		SpatialRank:           1,
		VarIndex:              0,
		Resolution:            []float64{1.5},
		CenterRangeScale:      3,
		CVThreshold:           0.1,
		DynamicRangeThreshold: 0.1,
		ValidMin:              0,
		ValidMax:              1,
	}
	out := cluster.MergeByBoundary(in, cfg)
	c.Assert(out.Clusters, check.HasLen, 1)
	c.Check(out.Clusters[0].Size(), check.Equals, 6)
}

func (s *S) TestMergeByBoundaryIsIdempotentOnceConverged(c *check.C) {
	a := newCluster(c, 1, []float64{1}, []*featurespace.Point{
		pt([]int{0}, []float64{0}, 1),
		pt([]int{1}, []float64{1}, 1),
		pt([]int{2}, []float64{2}, 10),
	})
	b := newCluster(c, 2, []float64{4}, []*featurespace.Point{
		pt([]int{3}, []float64{3}, 10.2),
		pt([]int{4}, []float64{4}, 1),
		pt([]int{5}, []float64{5}, 1),
	})
	in := &cluster.List{Clusters: []*cluster.Cluster{a, b}}
	cfg := cluster.BoundaryConfig{
		SpatialRank:           1,
		VarIndex:              0,
		Resolution:            []float64{1.5},
		CenterRangeScale:      3,
		CVThreshold:           0.1,
		DynamicRangeThreshold: 0.1,
		ValidMin:              0,
		ValidMax:              1,
	}
	first := cluster.MergeByBoundary(in, cfg)
	second := cluster.MergeByBoundary(first, cfg)
	c.Check(second.Clusters, check.HasLen, len(first.Clusters))
}

func (s *S) TestMergeByBoundaryLeavesDistantClustersAlone(c *check.C) {
	a := newCluster(c, 1, []float64{0}, []*featurespace.Point{pt([]int{0}, []float64{0}, 1)})
	b := newCluster(c, 2, []float64{100}, []*featurespace.Point{pt([]int{100}, []float64{100}, 1)})
	in := &cluster.List{Clusters: []*cluster.Cluster{a, b}}
	cfg := cluster.BoundaryConfig{
		SpatialRank:           1,
		VarIndex:              0,
		Resolution:            []float64{1.5},
		CenterRangeScale:      3,
		CVThreshold:           1,
		DynamicRangeThreshold: 0,
		ValidMin:              0,
		ValidMax:              1,
	}
	out := cluster.MergeByBoundary(in, cfg)
	c.Check(out.Clusters, check.HasLen, 2)
}

func (s *S) TestCoalesceAbsorbsSmallClusterIntoStrongestNeighbor(c *check.C) {
	small := newCluster(c, 1, []float64{1}, []*featurespace.Point{pt([]int{1}, []float64{1}, 1)})
	weak := newCluster(c, 2, []float64{0}, []*featurespace.Point{
		pt([]int{0}, []float64{0}, 2),
		pt([]int{0, 1}, []float64{0}, 2),
	})
	strong := newCluster(c, 3, []float64{2}, []*featurespace.Point{
		pt([]int{2}, []float64{2}, 9),
		pt([]int{3}, []float64{2}, 9),
	})
	in := &cluster.List{Clusters: []*cluster.Cluster{small, weak, strong}}

	cfg := cluster.CoalesceConfig{
		SpatialRank:   1,
		VarIndex:      0,
		Resolution:    []float64{2},
		SizeThreshold: 2,
	}
	out := cluster.Coalesce(in, cfg)
	c.Assert(out.Clusters, check.HasLen, 2)
	var found bool
	for _, cl := range out.Clusters {
		if cl.ID == strong.ID {
			found = true
			c.Check(cl.Size(), check.Equals, 3)
		}
	}
	c.Check(found, check.Equals, true)
}

func (s *S) TestCoalesceLeavesUnqualifiedSmallClusterAlone(c *check.C) {
	small := newCluster(c, 1, []float64{1000}, []*featurespace.Point{pt([]int{1000}, []float64{1000}, 1)})
	big := newCluster(c, 2, []float64{0}, []*featurespace.Point{
		pt([]int{0}, []float64{0}, 1),
		pt([]int{1}, []float64{1}, 1),
	})
	in := &cluster.List{Clusters: []*cluster.Cluster{small, big}}
	cfg := cluster.CoalesceConfig{
		SpatialRank:   1,
		VarIndex:      0,
		Resolution:    []float64{1},
		SizeThreshold: 2,
	}
	out := cluster.Coalesce(in, cfg)
	c.Assert(out.Clusters, check.HasLen, 2)
}
