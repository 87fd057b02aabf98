package store

import (
	"encoding/json"
	"os"

	"github.com/wxtrack/meanie/cluster"
	"github.com/wxtrack/meanie/errs"
	"github.com/wxtrack/meanie/featurespace"
)

// FileVersion is the current on-disk ClusterList document version.
const FileVersion = 1

// ClusterRecord is one cluster's serialized form.
type ClusterRecord struct {
	ID         uint64      `json:"id"`
	Mode       []float64   `json:"mode"`
	Gridpoints [][]int     `json:"gridpoints"`
	Values     [][]float64 `json:"values"`
	BoundsMin  []int       `json:"bounds_min"`
	BoundsMax  []int       `json:"bounds_max"`
}

// Document is the structured, versioned ClusterList on-disk document. It
// round-trips byte-equivalently (modulo floating-point printing) via
// Write/Read.
type Document struct {
	FileVersion    int             `json:"file_version"`
	SourceFile     string          `json:"source_file"`
	VariableNames  []string        `json:"variable_names"`
	DimensionNames []string        `json:"dimension_names"`
	Axes           [][]float64     `json:"axes"`
	RunParameters  string          `json:"run_parameters"`
	Clusters       []ClusterRecord `json:"clusters"`
	TrackedIDs     []uint64        `json:"tracked_ids"`
	NewIDs         []uint64        `json:"new_ids"`
	DroppedIDs     []uint64        `json:"dropped_ids"`
}

// ToDocument converts a cluster.List plus its coordinate metadata into the
// on-disk Document shape.
func ToDocument(cl *cluster.List, dimensionNames []string, axes [][]float64, variableNames []string, runParameters string) *Document {
	doc := &Document{
		FileVersion:    FileVersion,
		SourceFile:     cl.SourceFile,
		VariableNames:  variableNames,
		DimensionNames: dimensionNames,
		Axes:           axes,
		RunParameters:  runParameters,
		TrackedIDs:     cl.TrackedIDs,
		NewIDs:         cl.NewIDs,
		DroppedIDs:     cl.DroppedIDs,
	}
	for _, c := range cl.Clusters {
		rec := ClusterRecord{
			ID:        c.ID,
			Mode:      c.Mode,
			BoundsMin: c.Bounds.Min,
			BoundsMax: c.Bounds.Max,
		}
		for _, p := range c.Points {
			rec.Gridpoints = append(rec.Gridpoints, p.Gridpoint)
			rec.Values = append(rec.Values, p.Values)
		}
		doc.Clusters = append(doc.Clusters, rec)
	}
	return doc
}

// Write serializes doc to path as indented JSON. On failure, any partially
// written file is removed, per the pipeline's "no output file on fatal
// error" policy.
func Write(path string, doc *Document) (err error) {
	f, createErr := os.Create(path)
	if createErr != nil {
		return errs.Wrap(createErr, errs.IOError, "creating cluster file %q", path)
	}
	defer func() {
		cerr := f.Close()
		if err != nil {
			os.Remove(path)
			return
		}
		if cerr != nil {
			err = errs.Wrap(cerr, errs.IOError, "closing cluster file %q", path)
			os.Remove(path)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(doc); encErr != nil {
		return errs.Wrap(encErr, errs.IOError, "writing cluster file %q", path)
	}
	return nil
}

// Read parses a ClusterList document from path.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "reading cluster file %q", path)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(err, errs.IOError, "parsing cluster file %q", path)
	}
	if doc.FileVersion != FileVersion {
		return nil, errs.New(errs.InvalidInput, "cluster file %q has version %d, expected %d", path, doc.FileVersion, FileVersion)
	}
	return &doc, nil
}

// ToClusterList reconstructs a cluster.List from a Document. spatialRank is
// the number of leading components of each point's Values that are spatial
// coordinates (len(Document.DimensionNames)).
func ToClusterList(doc *Document, spatialRank int) (*cluster.List, error) {
	cl := &cluster.List{
		TrackedIDs: doc.TrackedIDs,
		NewIDs:     doc.NewIDs,
		DroppedIDs: doc.DroppedIDs,
		SourceFile: doc.SourceFile,
	}
	for _, rec := range doc.Clusters {
		points := make([]*featurespace.Point, len(rec.Gridpoints))
		for i, gp := range rec.Gridpoints {
			values := rec.Values[i]
			points[i] = &featurespace.Point{
				Gridpoint:  gp,
				Coordinate: append([]float64(nil), values[:spatialRank]...),
				Values:     values,
				Shift:      make([]float64, spatialRank),
				Converged:  true,
			}
		}
		c, err := cluster.New(rec.ID, rec.Mode, points, spatialRank)
		if err != nil {
			return nil, err
		}
		cl.Clusters = append(cl.Clusters, c)
	}
	return cl, nil
}
