package metrics

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// LabelLoader reads a single-channel label mask from disk.
type LabelLoader func(path string) (*tensor.RawTensor, error)

// Evaluator scores a folder of predicted label canvases against a folder of
// ground-truth canvases. Files pair up by identical relative path; both
// sides can be narrowed to the canvases whose path contains one of the
// configured source identifiers.
type Evaluator struct {
	Loader  LabelLoader
	Names   []string // metric names; empty selects DefaultNames
	Sources []string // source identifier filters; empty keeps every file
}

// EvaluateDirs walks both roots, pairs prediction and ground-truth files by
// relative path, computes the configured metrics per pair, and aggregates
// them per metric name. Unpairable file sets are a fatal setup error.
func (e *Evaluator) EvaluateDirs(predDir, truthDir string) (map[string]Summary, error) {
	names := e.Names
	if len(names) == 0 {
		names = DefaultNames
	}

	predFiles, err := e.listLabels(predDir)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	truthFiles, err := e.listLabels(truthDir)
	if err != nil {
		return nil, fmt.Errorf("listing ground truth: %w", err)
	}

	if len(predFiles) != len(truthFiles) {
		return nil, fmt.Errorf("%w: %d predictions vs %d ground-truth files",
			ErrCountMismatch, len(predFiles), len(truthFiles))
	}

	perPair := make([]map[string]float64, 0, len(truthFiles))
	for i, rel := range truthFiles {
		if predFiles[i] != rel {
			return nil, fmt.Errorf("%w: no prediction for %s", ErrCountMismatch, rel)
		}

		pred, err := e.Loader(filepath.Join(predDir, rel))
		if err != nil {
			return nil, fmt.Errorf("loading prediction %s: %w", rel, err)
		}
		truth, err := e.Loader(filepath.Join(truthDir, rel))
		if err != nil {
			return nil, fmt.Errorf("loading ground truth %s: %w", rel, err)
		}

		pair, err := Compute(pred, truth, names)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		perPair = append(perPair, pair)
	}

	return Aggregate(perPair), nil
}

// listLabels collects the relative paths of label images under root that
// pass the source filter, sorted for deterministic pairing.
func (e *Evaluator) listLabels(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".png") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if e.matchesSource(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (e *Evaluator) matchesSource(rel string) bool {
	if len(e.Sources) == 0 {
		return true
	}
	for _, src := range e.Sources {
		if strings.Contains(rel, src) {
			return true
		}
	}
	return false
}
