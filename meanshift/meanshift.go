// Package meanshift implements the per-point iterative mode-seeking
// procedure (the engine) and the graph-based aggregation of converged modes
// into clusters (the builder), kept together in one package since shifting
// and center aggregation share the same point and bandwidth model.
package meanshift

import (
	"context"
	"sync/atomic"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/wxtrack/meanie/errs"
	"github.com/wxtrack/meanie/featurespace"
	"github.com/wxtrack/meanie/kernel"
	"github.com/wxtrack/meanie/spatialindex"
	"github.com/wxtrack/meanie/weight"
)

// Config parameterizes one run of the mean-shift engine.
type Config struct {
	Kernel        kernel.Kernel
	Weight        weight.Function
	Bandwidth     []float64 // per-dimension search radius
	EpsilonShift  float64   // convergence threshold; <= 0 selects the default
	MaxIterations int       // <= 0 selects a default cap
	Workers       int       // <= 0 selects a default partition count
}

// defaultEpsilon returns one-tenth of the smallest bandwidth component, the
// spec's default convergence threshold.
func defaultEpsilon(bandwidth []float64) float64 {
	min := bandwidth[0]
	for _, b := range bandwidth[1:] {
		if b < min {
			min = b
		}
	}
	return 0.1 * min
}

// Progress is a shared, atomically-updated counter exposing how many points
// have completed mean-shift.
type Progress struct{ done atomic.Int64 }

// Done returns the number of points processed so far.
func (p *Progress) Done() int64 { return p.done.Load() }

// Run computes the terminal shift for every point in fs, writing
// Point.Shift and Point.Converged in place. It is a pure map over the point
// sequence: iteration order does not affect any point's final result, so
// the work is partitioned statically across a worker pool. Each worker
// writes only to its own assigned points; the only other shared state is
// the atomically-updated progress counter.
func Run(ctx context.Context, fs *featurespace.FeatureSpace, idx *spatialindex.Index, cfg Config, progress *Progress) error {
	if len(cfg.Bandwidth) != fs.Rank() {
		return errs.New(errs.InvalidInput, "bandwidth has %d components, expected rank %d", len(cfg.Bandwidth), fs.Rank())
	}
	eps := cfg.EpsilonShift
	if eps <= 0 {
		eps = defaultEpsilon(cfg.Bandwidth)
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	if workers > len(fs.Points) {
		workers = len(fs.Points)
	}
	if workers < 1 {
		workers = 1
	}

	n := len(fs.Points)
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= n {
			break
		}
		if end > n {
			end = n
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%64 == 0 {
					select {
					case <-gctx.Done():
						return &errs.Error{Kind: errs.Cancelled, Context: "meanshift: cancelled between batches"}
					default:
					}
				}
				shiftOne(fs.Points[i], idx, cfg, eps, maxIter)
				if progress != nil {
					progress.done.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var nonConvergent int
	for _, p := range fs.Points {
		if !p.Converged {
			nonConvergent++
		}
	}
	if nonConvergent > 0 {
		glog.Warningf("meanshift: %d of %d points failed to converge", nonConvergent, len(fs.Points))
	}
	return nil
}

// shiftOne iterates the mean-shift trajectory for a single point and writes
// its terminal Shift and Converged fields. The stored Shift is the vector
// from the point's original coordinate to its terminal position, not the
// last incremental step.
func shiftOne(p *featurespace.Point, idx *spatialindex.Index, cfg Config, eps float64, maxIter int) {
	rank := len(p.Coordinate)
	current := append([]float64(nil), p.Coordinate...)

	for iter := 0; iter < maxIter; iter++ {
		neighbors := idx.Range(current, cfg.Bandwidth)

		var sumW float64
		m := make([]float64, rank)
		for _, r := range neighbors {
			kw := cfg.Kernel.Weight(floats.Distance(current, r.Point.Coordinate, 2))
			w := kw * cfg.Weight.Weight(r.Point)
			if w == 0 {
				continue
			}
			sumW += w
			for d := 0; d < rank; d++ {
				m[d] += w * r.Point.Coordinate[d]
			}
		}

		if sumW == 0 {
			p.Shift = make([]float64, rank)
			p.Converged = false
			return
		}

		var delta float64
		for d := 0; d < rank; d++ {
			m[d] /= sumW
			diff := m[d] - current[d]
			delta += diff * diff
			current[d] = m[d]
		}

		if delta < eps*eps {
			p.Converged = true
			break
		}
		if iter == maxIter-1 {
			p.Converged = true // accept the best-effort terminal position
		}
	}

	shift := make([]float64, rank)
	for d := 0; d < rank; d++ {
		shift[d] = current[d] - p.Coordinate[d]
	}
	p.Shift = shift
}
