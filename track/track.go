// Package track implements the two-frame correlation-matrix tracker: it
// matches a current ClusterList against the previous frame's, assigning
// stable identifiers and detecting merge/split events.
package track

import (
	"math"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/floats"

	"github.com/wxtrack/meanie/cluster"
	"github.com/wxtrack/meanie/errs"
)

// Config parameterizes one tracking pass.
type Config struct {
	VarIndex int // the tracking variable's index among feature variables

	Wd, Ws, Wc float64 // correlation-matrix weights; must sum to 1

	DeltaT    float64 // time elapsed since the previous frame
	MaxDeltaT float64 // if DeltaT exceeds this, tracking is aborted entirely

	VMax float64 // maximum plausible displacement speed

	// MeanVelocityConstraint, when true, additionally bounds a match's
	// displacement by MeanVelocityFactor times the running mean displacement
	// of matches already accepted this pass, mirroring the source's disabled
	// m_useMeanVelocityConstraint path. Off by default.
	MeanVelocityConstraint bool
	MeanVelocityFactor     float64

	MergeThreshold float64 // coverage fraction above which a pairing counts as merge/split

	HistogramBins         int
	HistogramMin, HistogramMax float64
}

// Track matches curr against prev per Config, mutating curr's clusters' IDs
// in place and populating curr.TrackedIDs, curr.NewIDs and curr.DroppedIDs.
// prev is read-only. curr.TrackingPerformed is set to true on return.
func Track(prev, curr *cluster.List, cfg Config) error {
	if math.Abs(cfg.Wd+cfg.Ws+cfg.Wc-1) > 1e-9 {
		return errs.New(errs.InvalidInput, "tracker weights must sum to 1, got %.6f", cfg.Wd+cfg.Ws+cfg.Wc)
	}
	if cfg.DeltaT <= 0 {
		return errs.New(errs.InvalidInput, "delta-t must be positive, got %v", cfg.DeltaT)
	}

	nextID := nextFreeID(prev)

	if cfg.DeltaT > cfg.MaxDeltaT {
		glog.Warningf("track: delta-t %.3f exceeds max %.3f, assigning fresh ids to all %d clusters", cfg.DeltaT, cfg.MaxDeltaT, len(curr.Clusters))
		for _, c := range curr.Clusters {
			c.ID = nextID
			curr.NewIDs = append(curr.NewIDs, nextID)
			nextID++
		}
		for _, p := range prev.Clusters {
			curr.DroppedIDs = append(curr.DroppedIDs, p.ID)
		}
		curr.TrackingPerformed = true
		return nil
	}

	n, m := len(curr.Clusters), len(prev.Clusters)
	glog.V(1).Infof("track: matching %d current clusters against %d previous, v_max*dt=%.4f", n, m, cfg.VMax*cfg.DeltaT)

	D := make([][]float64, n)
	H := make([][]float64, n)
	tau := make([][]float64, n)
	covON := make([][]float64, n)
	covNO := make([][]float64, n)

	for i, c := range curr.Clusters {
		D[i] = make([]float64, m)
		H[i] = make([]float64, m)
		tau[i] = make([]float64, m)
		covON[i] = make([]float64, m)
		covNO[i] = make([]float64, m)

		cCenter := c.WeightedCenter(cfg.VarIndex)
		cHist := c.Histogram(cfg.VarIndex, cfg.HistogramBins, cfg.HistogramMin, cfg.HistogramMax)

		for j, p := range prev.Clusters {
			pCenter := p.WeightedCenter(cfg.VarIndex)
			D[i][j] = floats.Distance(cCenter, pCenter, 2)

			pHist := p.Histogram(cfg.VarIndex, cfg.HistogramBins, cfg.HistogramMin, cfg.HistogramMax)
			cSum, pSum := cHist.Sum(), pHist.Sum()
			if cSum == 0 && pSum == 0 {
				H[i][j] = 0
			} else {
				H[i][j] = math.Abs(cSum-pSum) / math.Max(cSum, pSum)
			}
			tau[i][j] = cHist.CorrelateKendall(pHist)

			covON[i][j] = p.PercentCoveredBy(c)
			covNO[i][j] = c.PercentCoveredBy(p)

			glog.V(2).Infof("track: pair (cur=%d,prev=%d) D=%.4f H=%.4f tau=%.4f covON=%.3f covNO=%.3f", i, j, D[i][j], H[i][j], tau[i][j], covON[i][j], covNO[i][j])
		}
	}

	maxD := matrixMax(D)
	maxH := matrixMax(H)
	if maxH == 0 {
		maxH = 1
	}
	if maxD == 0 {
		maxD = 1
	}

	P := make([][]float64, n)
	for i := range P {
		P[i] = make([]float64, m)
		for j := range P[i] {
			P[i][j] = cfg.Wd*math.Erfc(D[i][j]/maxD) + cfg.Ws*math.Erfc(H[i][j]/maxH) + cfg.Wc*tau[i][j]
		}
	}

	matched := make([]bool, n)      // curr index -> matched this pass
	consumed := make([]bool, m)     // prev index -> consumed this pass
	assignedFromPrev := make([]int, n)
	for i := range assignedFromPrev {
		assignedFromPrev[i] = -1
	}

	candidates := rankedPairs(P)
	var meanVelocity float64
	var acceptedMatches int

	for _, pr := range candidates {
		i, j := pr.i, pr.j
		if matched[i] || consumed[j] {
			continue
		}
		bound := cfg.VMax * cfg.DeltaT
		if cfg.MeanVelocityConstraint && acceptedMatches > 0 {
			alt := cfg.MeanVelocityFactor * meanVelocity
			if alt < bound {
				bound = alt
			}
		}
		if D[i][j] > bound {
			continue
		}
		matched[i] = true
		consumed[j] = true
		assignedFromPrev[i] = j
		curr.Clusters[i].ID = prev.Clusters[j].ID
		curr.TrackedIDs = append(curr.TrackedIDs, prev.Clusters[j].ID)

		meanVelocity = (meanVelocity*float64(acceptedMatches) + D[i][j]) / float64(acceptedMatches+1)
		acceptedMatches++
	}

	// Merge detection: a current cluster covering more than one previous
	// cluster above threshold is a merge product and is demoted out of
	// tracked_ids regardless of whether it was just matched. Releasing
	// consumed[j] lets the superseded previous cluster fall through to
	// dropped_ids below instead of vanishing from every set.
	for i := range curr.Clusters {
		var qualifying int
		for j := 0; j < m; j++ {
			if covON[i][j] > cfg.MergeThreshold {
				qualifying++
			}
		}
		if qualifying >= 2 {
			if assignedFromPrev[i] >= 0 {
				curr.TrackedIDs = removeID(curr.TrackedIDs, prev.Clusters[assignedFromPrev[i]].ID)
				consumed[assignedFromPrev[i]] = false
				assignedFromPrev[i] = -1
			}
			curr.Clusters[i].ID = nextID
			curr.NewIDs = append(curr.NewIDs, nextID)
			nextID++
			matched[i] = true
			glog.V(1).Infof("track: cluster at index %d is a merge product (%d qualifying predecessors), assigned new id %d", i, qualifying, curr.Clusters[i].ID)
		}
	}

	// Split detection: a previous cluster covered by more than one current
	// cluster above threshold causes each of those current clusters, if
	// merely tracked, to be demoted to a fresh id.
	for j := 0; j < m; j++ {
		var qualifying []int
		for i := range curr.Clusters {
			if covNO[i][j] > cfg.MergeThreshold {
				qualifying = append(qualifying, i)
			}
		}
		if len(qualifying) < 2 {
			continue
		}
		for _, i := range qualifying {
			if assignedFromPrev[i] != j {
				continue
			}
			curr.TrackedIDs = removeID(curr.TrackedIDs, prev.Clusters[j].ID)
			curr.Clusters[i].ID = nextID
			curr.NewIDs = append(curr.NewIDs, nextID)
			nextID++
			assignedFromPrev[i] = -1
			consumed[j] = false
			glog.V(1).Infof("track: previous cluster id %d split into multiple current clusters; index %d reassigned id %d", prev.Clusters[j].ID, i, curr.Clusters[i].ID)
		}
	}

	// Final assignment: anything still lacking an identifier gets the next
	// unused id.
	for _, c := range curr.Clusters {
		if c.ID != cluster.NoID {
			continue
		}
		c.ID = nextID
		curr.NewIDs = append(curr.NewIDs, nextID)
		nextID++
	}

	for j, p := range prev.Clusters {
		if !consumed[j] {
			curr.DroppedIDs = append(curr.DroppedIDs, p.ID)
		}
	}

	curr.TrackingPerformed = true
	return nil
}

func nextFreeID(prev *cluster.List) uint64 {
	var max uint64
	for _, c := range prev.Clusters {
		if c.ID > max {
			max = c.ID
		}
	}
	return max + 1
}

func matrixMax(m [][]float64) float64 {
	var max float64
	for _, row := range m {
		for _, v := range row {
			if v > max {
				max = v
			}
		}
	}
	return max
}

type pair struct {
	i, j int
	p    float64
}

// rankedPairs returns every (i,j) candidate sorted by descending
// probability, ties broken by ascending (i,j) lexicographic order, matching
// the deterministic greedy matching order spec.md §5 requires.
func rankedPairs(P [][]float64) []pair {
	var out []pair
	for i, row := range P {
		for j, v := range row {
			out = append(out, pair{i: i, j: j, p: v})
		}
	}
	for a := 0; a < len(out); a++ {
		best := a
		for b := a + 1; b < len(out); b++ {
			if out[b].p > out[best].p || (out[b].p == out[best].p && lexLess(out[b], out[best])) {
				best = b
			}
		}
		out[a], out[best] = out[best], out[a]
	}
	return out
}

func lexLess(a, b pair) bool {
	if a.i != b.i {
		return a.i < b.i
	}
	return a.j < b.j
}

func removeID(ids []uint64, id uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
