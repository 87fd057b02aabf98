// Command meanie runs the mean-shift feature-detection engine (`detect`) and
// the two-frame tracker (`track`) over gridded scientific data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/wxtrack/meanie/cluster"
	"github.com/wxtrack/meanie/errs"
	"github.com/wxtrack/meanie/featurespace"
	"github.com/wxtrack/meanie/kernel"
	"github.com/wxtrack/meanie/meanshift"
	"github.com/wxtrack/meanie/scalespace"
	"github.com/wxtrack/meanie/spatialindex"
	"github.com/wxtrack/meanie/store"
	"github.com/wxtrack/meanie/track"
	"github.com/wxtrack/meanie/weight"
)

func main() {
	if len(os.Args) < 2 {
		glog.Exitf("usage: %s {detect|track} [flags]", os.Args[0])
	}
	sub, rest := os.Args[1], os.Args[2:]

	var err error
	switch sub {
	case "detect":
		err = runDetect(rest)
	case "track":
		err = runTrack(rest)
	default:
		glog.Exitf("usage: %s {detect|track} [flags]", os.Args[0])
	}
	if err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}

func runDetect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	input := fs.String("input", "", "input grid file")
	output := fs.String("output", "", "output cluster file")
	variables := fs.String("variables", "", "comma-separated feature variable names to cluster on")
	bandwidth := fs.String("bandwidth", "", "comma-separated per-dimension bandwidth")
	kernelName := fs.String("kernel", "gaussian", "kernel: gaussian|epanechnikov|uniform")
	weightName := fs.String("weight", "composite", "weight function: inverse-distance|composite")
	minClusterSize := fs.Int("min-cluster-size", 1, "minimum cluster size")
	sigma := fs.Float64("scalespace-sigma", 0, "scale-space pre-filter sigma; <= 0 disables it")
	resolution := fs.String("resolution", "", "comma-separated per-dimension mode-merge resolution; defaults to bandwidth")
	verbosity := fs.Int("verbosity", 0, "glog verbosity level (maps to glog -v)")
	trackPrevious := fs.String("track-previous", "", "previous cluster file; if set, the detected list is tracked against it inline before being written")
	trackVarName := fs.String("track-variable", "", "tracking variable name, required with -track-previous")
	deltaT := fs.Float64("delta-t", 1, "time elapsed since -track-previous, used only with inline tracking")
	maxDeltaT := fs.Float64("max-delta-t", 2, "abort inline tracking if -delta-t exceeds this")
	vMax := fs.Float64("v-max", 1, "maximum plausible displacement speed, used only with inline tracking")
	mergeThreshold := fs.Float64("merge-threshold", 0.33, "coverage fraction for inline merge/split detection")
	fs.Parse(args)
	flag.Set("v", strconv.Itoa(*verbosity))

	if *input == "" || *output == "" {
		return errs.New(errs.InvalidInput, "detect: -input and -output are required")
	}
	if *trackPrevious != "" && *trackVarName == "" {
		return errs.New(errs.InvalidInput, "detect: -track-variable is required with -track-previous")
	}

	doc, err := store.LoadGridFile(*input)
	if err != nil {
		return err
	}
	ms, coords, err := doc.ToMemoryStore()
	if err != nil {
		return err
	}

	varNames := splitCSV(*variables)
	if len(varNames) == 0 {
		varNames = ms.VariableNames()
	}
	bw, err := parseFloats(*bandwidth)
	if err != nil {
		return errs.Wrap(err, errs.InvalidInput, "detect: -bandwidth")
	}
	if len(bw) != coords.Rank() {
		return errs.New(errs.InvalidInput, "detect: -bandwidth has %d components, expected rank %d", len(bw), coords.Rank())
	}
	res := bw
	if *resolution != "" {
		res, err = parseFloats(*resolution)
		if err != nil {
			return errs.Wrap(err, errs.InvalidInput, "detect: -resolution")
		}
	}

	if *sigma > 0 {
		applyScaleSpace(ms, coords, *sigma)
	}

	thresholds := make([]featurespace.VariableRange, len(ms.VariableNames()))
	for i := range thresholds {
		thresholds[i] = featurespace.VariableRange{Lower: ms.Min(i), Upper: ms.Max(i)}
	}

	space, err := featurespace.Build(ms, coords, thresholds)
	if err != nil {
		return err
	}

	k, err := parseKernel(*kernelName, bw[0])
	if err != nil {
		return err
	}
	w, err := parseWeight(*weightName, space, varNames, ms)
	if err != nil {
		return err
	}

	idx := spatialindex.New(space.Points)
	cfg := meanshift.Config{Kernel: k, Weight: w, Bandwidth: bw}
	if err := meanshift.Run(context.Background(), space, idx, cfg, nil); err != nil {
		return err
	}

	agg, err := meanshift.BuildClusters(space, res)
	if err != nil {
		return err
	}

	list := &cluster.List{SourceFile: *input}
	for ci, members := range agg.Members {
		points := make([]*featurespace.Point, len(members))
		for i, pi := range members {
			points[i] = space.Points[pi]
		}
		c, err := cluster.New(uint64(ci+1), agg.Modes[ci], points, coords.Rank())
		if err != nil {
			return err
		}
		list.Clusters = append(list.Clusters, c)
	}

	list = cluster.FilterBySize(list, *minClusterSize)
	glog.Infof("detect: %d clusters after size filtering", len(list.Clusters))

	if *trackPrevious != "" {
		if err := trackInline(list, *trackPrevious, *trackVarName, ms, coords.Rank(), *deltaT, *maxDeltaT, *vMax, *mergeThreshold); err != nil {
			return err
		}
	}

	outDoc := store.ToDocument(list, coords.DimensionNames(), doc.Axes, ms.VariableNames(), strings.Join(os.Args[1:], " "))
	return store.Write(*output, outDoc)
}

// trackInline matches a freshly detected cluster.List against a previous
// frame's on-disk cluster file, per spec.md §6's optional inline-tracking
// flag on `detect`: a caller who already knows the previous frame need not
// run the separate `track` subcommand as a second pass.
func trackInline(curr *cluster.List, prevFile, varName string, ms *store.MemoryStore, spatialRank int, deltaT, maxDeltaT, vMax, mergeThreshold float64) error {
	prevDoc, err := store.Read(prevFile)
	if err != nil {
		return err
	}
	prevList, err := store.ToClusterList(prevDoc, spatialRank)
	if err != nil {
		return err
	}
	varIndex := -1
	for i, n := range ms.VariableNames() {
		if n == varName {
			varIndex = i
			break
		}
	}
	if varIndex < 0 {
		return errs.New(errs.InvalidInput, "detect: -track-variable %q is not a known feature variable", varName)
	}
	cfg := track.Config{
		VarIndex:       varIndex,
		Wd:             0.34,
		Ws:             0.33,
		Wc:             0.33,
		DeltaT:         deltaT,
		MaxDeltaT:      maxDeltaT,
		VMax:           vMax,
		MergeThreshold: mergeThreshold,
		HistogramBins:  10,
		HistogramMin:   ms.Min(varIndex),
		HistogramMax:   ms.Max(varIndex),
	}
	if err := track.Track(prevList, curr, cfg); err != nil {
		return err
	}
	glog.Infof("detect: inline tracking against %q: %d tracked, %d new, %d dropped", prevFile, len(curr.TrackedIDs), len(curr.NewIDs), len(curr.DroppedIDs))
	return nil
}

func runTrack(args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	prevFile := fs.String("previous", "", "previous cluster file")
	currFile := fs.String("current", "", "current cluster file")
	varIndex := fs.Int("variable", 0, "tracking variable index")
	wd := fs.Float64("wd", 0.34, "distance weight")
	ws := fs.Float64("ws", 0.33, "size/histogram-sum weight")
	wc := fs.Float64("wc", 0.33, "Kendall-tau weight")
	deltaT := fs.Float64("delta-t", 1, "time elapsed since previous frame")
	maxDeltaT := fs.Float64("max-delta-t", 2, "abort tracking if delta-t exceeds this")
	vMax := fs.Float64("v-max", 1, "maximum plausible displacement speed")
	mergeThreshold := fs.Float64("merge-threshold", 0.33, "coverage fraction for merge/split detection")
	histBins := fs.Int("hist-bins", 10, "histogram bin count")
	histMin := fs.Float64("hist-min", 0, "histogram lower bound")
	histMax := fs.Float64("hist-max", 1, "histogram upper bound")
	output := fs.String("output", "", "output cluster file (defaults to overwriting -current)")
	fs.Parse(args)

	if *prevFile == "" || *currFile == "" {
		return errs.New(errs.InvalidInput, "track: -previous and -current are required")
	}

	prevDoc, err := store.Read(*prevFile)
	if err != nil {
		return err
	}
	currDoc, err := store.Read(*currFile)
	if err != nil {
		return err
	}
	spatialRank := len(currDoc.DimensionNames)

	prevList, err := store.ToClusterList(prevDoc, spatialRank)
	if err != nil {
		return err
	}
	currList, err := store.ToClusterList(currDoc, spatialRank)
	if err != nil {
		return err
	}

	cfg := track.Config{
		VarIndex:       *varIndex,
		Wd:             *wd,
		Ws:             *ws,
		Wc:             *wc,
		DeltaT:         *deltaT,
		MaxDeltaT:      *maxDeltaT,
		VMax:           *vMax,
		MergeThreshold: *mergeThreshold,
		HistogramBins:  *histBins,
		HistogramMin:   *histMin,
		HistogramMax:   *histMax,
	}
	if err := track.Track(prevList, currList, cfg); err != nil {
		return err
	}

	out := *output
	if out == "" {
		out = *currFile
	}
	outDoc := store.ToDocument(currList, currDoc.DimensionNames, currDoc.Axes, currDoc.VariableNames, strings.Join(os.Args[1:], " "))
	return store.Write(out, outDoc)
}

// applyScaleSpace smooths every variable of ms in place. The filtered range
// that scalespace.Filter returns is only logged: ms.Set never narrows the
// store's Min/Max, so the thresholds and the weight-function normalization
// in runDetect keep using the unfiltered range.
func applyScaleSpace(ms *store.MemoryStore, coords *featurespace.CoordinateSystem, sigma float64) {
	dims := ms.Dimensions()
	for v, name := range ms.VariableNames() {
		grid := scalespace.NewGrid(dims)
		gp := make([]int, len(dims))
		walkGrid(dims, gp, 0, func(gridpoint []int) {
			val, _ := ms.Read(v, gridpoint)
			grid.Set(gridpoint, val)
		})
		min, max := scalespace.Filter(grid, sigma)
		walkGrid(dims, gp, 0, func(gridpoint []int) {
			ms.Set(v, gridpoint, grid.At(gridpoint))
		})
		glog.V(1).Infof("scalespace: filtered %q, new range [%v, %v]", name, min, max)
	}
}

func walkGrid(dims []int, gp []int, d int, fn func([]int)) {
	if d == len(dims) {
		fn(gp)
		return
	}
	for i := 0; i < dims[d]; i++ {
		gp[d] = i
		walkGrid(dims, gp, d+1, fn)
	}
}

func parseKernel(name string, bandwidth float64) (kernel.Kernel, error) {
	switch strings.ToLower(name) {
	case "gaussian":
		return kernel.New(kernel.Gaussian, bandwidth, false), nil
	case "epanechnikov":
		return kernel.New(kernel.Epanechnikov, bandwidth, false), nil
	case "uniform":
		return kernel.New(kernel.Uniform, bandwidth, false), nil
	default:
		return kernel.Kernel{}, errs.New(errs.InvalidInput, "unknown kernel %q", name)
	}
}

func parseWeight(name string, space *featurespace.FeatureSpace, varNames []string, ms *store.MemoryStore) (weight.Function, error) {
	switch strings.ToLower(name) {
	case "inverse-distance":
		center := make([]float64, space.Rank())
		for _, p := range space.Points {
			for d := range center {
				center[d] += p.Coordinate[d]
			}
		}
		for d := range center {
			center[d] /= float64(len(space.Points))
		}
		return weight.NewInverseDistance(center, 1e-6), nil
	case "composite":
		allNames := ms.VariableNames()
		index := make(map[string]int, len(allNames))
		for i, n := range allNames {
			index[n] = i
		}
		var terms []weight.Term
		for _, name := range varNames {
			vi, ok := index[name]
			if !ok {
				return weight.Function{}, errs.New(errs.InvalidInput, "composite weight: unknown variable %q", name)
			}
			terms = append(terms, weight.Term{VarIndex: vi, Min: ms.Min(vi), Max: ms.Max(vi), Multiplier: 1})
		}
		return weight.NewComposite(terms, space.Rank(), nil, nil), nil
	default:
		return weight.Function{}, errs.New(errs.InvalidInput, "unknown weight function %q", name)
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
