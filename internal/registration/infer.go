package registration

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/born-ml/cellwarp/internal/autodiff"
	"github.com/born-ml/cellwarp/internal/metrics"
	"github.com/born-ml/cellwarp/internal/model"
	"github.com/born-ml/cellwarp/internal/patchio"
	"github.com/born-ml/cellwarp/internal/stitch"
	"github.com/born-ml/cellwarp/internal/tensor"
	"github.com/born-ml/cellwarp/internal/warp"
)

// InferencePair matches an unlabeled test patch with its closest annotated
// patch. Label paths follow the dataset convention of mirroring image
// paths with "image" replaced by "label"; the test label may not exist.
type InferencePair struct {
	TestImagePath    string
	ClosestImagePath string
	TestLabelPath    string
	ClosestLabelPath string
	Distance         float64
	Source           string
}

// PairSource yields the pairs an inference run covers.
type PairSource interface {
	Pairs() ([]InferencePair, error)
}

// LabelPathFor derives a label path from an image path.
func LabelPathFor(imagePath string) string {
	return strings.ReplaceAll(imagePath, "image", "label")
}

// CSVPairs reads pairs from a patch matcher's CSV output. The header must
// name test_image_path and closest_image_path; distance and source columns
// are carried through when present.
type CSVPairs struct {
	Path string
}

// Pairs parses the CSV file.
func (c CSVPairs) Pairs() ([]InferencePair, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("matched pairs %s: %w", c.Path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("matched pairs %s has no data rows", c.Path)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, need := range []string{"test_image_path", "closest_image_path"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("matched pairs %s missing column %q", c.Path, need)
		}
	}

	pairs := make([]InferencePair, 0, len(records)-1)
	for row, rec := range records[1:] {
		p := InferencePair{
			TestImagePath:    rec[col["test_image_path"]],
			ClosestImagePath: rec[col["closest_image_path"]],
		}
		if i, ok := col["distance"]; ok {
			if s := strings.TrimSpace(rec[i]); s != "" {
				p.Distance, err = strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("matched pairs %s row %d: distance %q: %w", c.Path, row+2, s, err)
				}
			}
		}
		if i, ok := col["source"]; ok {
			p.Source = rec[i]
		}
		p.TestLabelPath = LabelPathFor(p.TestImagePath)
		p.ClosestLabelPath = LabelPathFor(p.ClosestImagePath)
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// DirPairs pairs same-named patches across two directories, for runs where
// the closest match is known by construction. Label directories default to
// the image directories with "image" replaced by "label".
type DirPairs struct {
	TestDir         string
	ClosestDir      string
	TestLabelDir    string
	ClosestLabelDir string
}

// Pairs lists the test directory and requires a same-named file on the
// closest side for every patch.
func (d DirPairs) Pairs() ([]InferencePair, error) {
	names, err := listImageFiles(d.TestDir)
	if err != nil {
		return nil, err
	}

	testLabelDir := d.TestLabelDir
	if testLabelDir == "" {
		testLabelDir = LabelPathFor(d.TestDir)
	}
	closestLabelDir := d.ClosestLabelDir
	if closestLabelDir == "" {
		closestLabelDir = LabelPathFor(d.ClosestDir)
	}

	pairs := make([]InferencePair, 0, len(names))
	for _, name := range names {
		closest := filepath.Join(d.ClosestDir, name)
		if !fileExists(closest) {
			return nil, fmt.Errorf("no closest patch for %s in %s", name, d.ClosestDir)
		}
		pairs = append(pairs, InferencePair{
			TestImagePath:    filepath.Join(d.TestDir, name),
			ClosestImagePath: closest,
			TestLabelPath:    filepath.Join(testLabelDir, name),
			ClosestLabelPath: filepath.Join(closestLabelDir, name),
			Source:           "dir",
		})
	}
	return pairs, nil
}

// InferConfig tunes an inference run.
type InferConfig struct {
	// PredDir receives the predicted label patches. It is recreated from
	// scratch on every run; stitched canvases land in sibling directories.
	PredDir string

	// Stitcher settings. Zero values select the stitch package defaults.
	CanvasHeight int
	CanvasWidth  int
	PatchSize    int

	// TargetHeight and TargetWidth resize inputs to the model's training
	// resolution when nonzero. Ground-truth patch labels are resized the
	// same way before scoring.
	TargetHeight int
	TargetWidth  int

	// TruthStitchedDir holds ground-truth canvases to score the stitched
	// predictions against. Empty skips the stitched evaluation.
	TruthStitchedDir string
	MetricNames      []string // stitched metric names (default: metrics.DefaultNames)
	Sources          []string // stitched evaluation source filter

	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// Report is the outcome of an inference run. Dice and IoU summarize
// per-patch scores over the WithTruth patches that had a ground-truth
// label; Stitched holds the canvas-level metrics when ground truth was
// configured.
type Report struct {
	Pairs     int
	WithTruth int
	Dice      metrics.Summary
	IoU       metrics.Summary
	Stitched  map[string]metrics.Summary
	Stitch    *stitch.Result
}

// Runner transfers labels from annotated patches to their matched test
// patches with a trained predictor, writes the predicted masks, stitches
// them into canvases and scores the results.
type Runner[B tensor.Backend] struct {
	backend   *autodiff.AutodiffBackend[B]
	predictor model.WarpPredictor[*autodiff.AutodiffBackend[B]]
	cfg       InferConfig
	out       io.Writer
}

// NewRunner wires a trained predictor for inference.
func NewRunner[B tensor.Backend](
	predictor model.WarpPredictor[*autodiff.AutodiffBackend[B]],
	backend *autodiff.AutodiffBackend[B],
	cfg InferConfig,
) (*Runner[B], error) {
	if predictor == nil {
		return nil, errors.New("registration: nil predictor")
	}
	if cfg.PredDir == "" {
		return nil, errors.New("registration: empty prediction dir")
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Runner[B]{backend: backend, predictor: predictor, cfg: cfg, out: cfg.Out}, nil
}

// Run infers every pair from the source, then stitches and evaluates.
func (r *Runner[B]) Run(source PairSource) (*Report, error) {
	pairs, err := source.Pairs()
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, errors.New("registration: no pairs to infer")
	}

	if err := os.RemoveAll(r.cfg.PredDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.cfg.PredDir, 0o755); err != nil {
		return nil, err
	}

	report := &Report{Pairs: len(pairs)}
	var diceVals, iouVals []float64
	for _, pair := range pairs {
		pred, err := r.inferPair(pair)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pair.TestImagePath, err)
		}

		if pair.TestLabelPath == "" || !fileExists(pair.TestLabelPath) {
			continue
		}
		truth, err := r.loadTruthLabel(pair.TestLabelPath)
		if err != nil {
			return nil, err
		}
		dice, err := metrics.Dice(pred, truth)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pair.TestImagePath, err)
		}
		iou, err := metrics.IoU(pred, truth)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pair.TestImagePath, err)
		}
		diceVals = append(diceVals, dice)
		iouVals = append(iouVals, iou)
		report.WithTruth++
	}

	fmt.Fprintf(r.out, "Wrote %d prediction patches to %s\n", len(pairs), r.cfg.PredDir)
	if report.WithTruth > 0 {
		report.Dice = metrics.Summarize(diceVals)
		report.IoU = metrics.Summarize(iouVals)
		fmt.Fprintf(r.out, "Patch metrics over %d labeled patches: Dice=%s, IoU=%s\n",
			report.WithTruth, report.Dice, report.IoU)
	}

	stitcher := &stitch.Stitcher{
		CanvasHeight: r.cfg.CanvasHeight,
		CanvasWidth:  r.cfg.CanvasWidth,
		PatchSize:    r.cfg.PatchSize,
	}
	result, err := stitcher.StitchDir(r.cfg.PredDir)
	if err != nil {
		return nil, fmt.Errorf("stitching: %w", err)
	}
	report.Stitch = result
	fmt.Fprintf(r.out, "Stitched %d canvases to %s\n", len(result.Bases), result.StitchedDir)

	if r.cfg.TruthStitchedDir != "" {
		names := r.cfg.MetricNames
		if len(names) == 0 {
			names = metrics.DefaultNames
		}
		evaluator := &metrics.Evaluator{Loader: patchio.LoadLabel, Names: names, Sources: r.cfg.Sources}
		report.Stitched, err = evaluator.EvaluateDirs(result.StitchedDir, r.cfg.TruthStitchedDir)
		if err != nil {
			return nil, fmt.Errorf("stitched evaluation: %w", err)
		}
		for _, name := range names {
			fmt.Fprintf(r.out, "Stitched %s: %s\n", name, report.Stitched[name])
		}
	}
	return report, nil
}

// inferPair warps the closest patch's label onto the test patch and writes
// the binarized mask named after the test patch. The returned mask is
// uint8 [H,W] with values in {0,1}.
func (r *Runner[B]) inferPair(pair InferencePair) (*tensor.RawTensor, error) {
	testImg, err := patchio.Open(pair.TestImagePath)
	if err != nil {
		return nil, err
	}
	closestImg, err := patchio.Open(pair.ClosestImagePath)
	if err != nil {
		return nil, err
	}
	closestLabelImg, err := patchio.Open(pair.ClosestLabelPath)
	if err != nil {
		return nil, fmt.Errorf("annotated label: %w", err)
	}

	if r.cfg.TargetHeight > 0 && r.cfg.TargetWidth > 0 {
		w, h := r.cfg.TargetWidth, r.cfg.TargetHeight
		testImg = patchio.ResizeExact(testImg, w, h)
		closestImg = patchio.ResizeExact(closestImg, w, h)
		closestLabelImg = patchio.ResizeNearest(closestLabelImg, w, h)
	}

	be := r.backend
	var pred *tensor.RawTensor
	var runErr error
	be.NoGrad(func() {
		annotated := be.Unsqueeze(patchio.ImageToTensor(closestImg), 0)
		unannotated := be.Unsqueeze(patchio.ImageToTensor(testImg), 0)

		label, _, err := ClassifyAndNormalize(patchio.LabelToTensor(closestLabelImg), be)
		if err != nil {
			runErr = err
			return
		}
		label = be.Unsqueeze(be.Unsqueeze(label, 0), 0)

		input := be.Cat([]*tensor.RawTensor{annotated, unannotated}, 1)
		fieldPred := r.predictor.Forward(r.wrap(input))
		_, rev, err := warp.SplitField(fieldPred)
		if err != nil {
			runErr = err
			return
		}

		warped, err := warp.Warp(r.wrap(label), rev)
		if err != nil {
			runErr = err
			return
		}

		mask := be.Cast(be.Threshold(warped.Raw(), 0.5), tensor.Uint8)
		shape := mask.Shape()
		pred = be.Reshape(mask, tensor.Shape{shape[2], shape[3]})
	})
	if runErr != nil {
		return nil, runErr
	}

	name := strings.TrimSuffix(filepath.Base(pair.TestImagePath), filepath.Ext(pair.TestImagePath)) + ".png"
	if err := patchio.SaveLabel(pred, filepath.Join(r.cfg.PredDir, name)); err != nil {
		return nil, err
	}
	return pred, nil
}

// loadTruthLabel reads a ground-truth patch label, resized to the model
// resolution when the run resizes its inputs.
func (r *Runner[B]) loadTruthLabel(path string) (*tensor.RawTensor, error) {
	img, err := patchio.Open(path)
	if err != nil {
		return nil, err
	}
	if r.cfg.TargetHeight > 0 && r.cfg.TargetWidth > 0 {
		img = patchio.ResizeNearest(img, r.cfg.TargetWidth, r.cfg.TargetHeight)
	}
	return patchio.LabelToTensor(img), nil
}

func (r *Runner[B]) wrap(raw *tensor.RawTensor) *tensor.Tensor[float32, *autodiff.AutodiffBackend[B]] {
	return tensor.New[float32, *autodiff.AutodiffBackend[B]](raw, r.backend)
}

// fileExists reports whether path names an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
