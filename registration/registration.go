// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package registration drives cyclic registration training and label
// transfer for microscopy patches.
//
// A warp predictor maps a stacked pair of patch views to forward and
// reverse displacement fields. Training minimizes the cyclic objective
// MSE(warp(unann, fwd), ann) + MSE(warp(warp(unann, fwd), rev), unann);
// label transfer through the reverse field is tracked as a metric only.
// Inference warps annotated labels onto matched test patches, writes the
// predicted masks, stitches them into canvases and scores the results.
//
// Example:
//
//	import (
//	    "github.com/born-ml/cellwarp/autodiff"
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	    "github.com/born-ml/cellwarp/registration"
//	)
//
//	backend := autodiff.New(cpu.New())
//	registry := registration.NewModelRegistry[*autodiff.Backend[*cpu.CPUBackend]]()
//	predictor, err := registry.New(registration.UNetName, registration.ModelConfig{Depth: 4}, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ds, err := registration.OpenFolderDataset(registration.FolderConfig{ImageDir: "data/image"}, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	train, val, _, err := ds.Split(6, 2, 2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	trainer, err := registration.NewTrainer(predictor, backend, registration.TrainConfig{MaxEpochs: 50})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	history, err := trainer.Fit(train, val)
package registration

import (
	"github.com/born-ml/cellwarp/internal/autodiff"
	"github.com/born-ml/cellwarp/internal/model"
	"github.com/born-ml/cellwarp/internal/registration"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Predictor architectures

// Names of the bundled predictors.
const (
	UNetName    = model.UNetName
	ShallowName = model.ShallowName
)

// ErrUnknownModel is returned when a model name has no registered builder.
var ErrUnknownModel = model.ErrUnknownModel

// WarpPredictor is the module contract the registration pipeline drives:
// Forward maps the channel-stacked view pair to the displacement field
// prediction at the same spatial resolution.
type WarpPredictor[B tensor.Backend] = model.WarpPredictor[B]

// ModelConfig sizes a predictor. Zero values select the defaults.
type ModelConfig = model.Config

// ModelRegistry maps model names to builders.
type ModelRegistry[B tensor.Backend] = model.Registry[B]

// NewModelRegistry creates a registry with the bundled predictors
// registered under UNetName and ShallowName.
func NewModelRegistry[B tensor.Backend]() *ModelRegistry[B] {
	return model.NewRegistry[B]()
}

// Datasets

// ViewPair is one training sample: two views of the same subject with
// their labels. Images are float32 [C,H,W] in [-1,1]; labels are [H,W] or
// [1,H,W] in any supported label dtype.
type ViewPair = registration.ViewPair

// Dataset yields view pairs by index.
type Dataset = registration.Dataset

// ErrPairCount reports a sample that does not provide exactly two views
// with labels.
var ErrPairCount = registration.ErrPairCount

// Batch is a stacked mini-batch ready for the predictor.
type Batch = registration.Batch

// AssembleBatch stacks pairs into batch tensors and classifies both label
// stacks. perm redirects the annotated view: sample i takes its annotated
// image and label from pairs[perm[i]]; a nil perm keeps the direct
// weak-mode pairing.
func AssembleBatch(pairs []*ViewPair, perm []int, backend tensor.Backend) (*Batch, error) {
	return registration.AssembleBatch(pairs, perm, backend)
}

// FolderConfig selects the patches a FolderDataset serves.
type FolderConfig = registration.FolderConfig

// FolderDataset reads annotated patches from a directory pair and
// synthesizes the second view of each sample with a deterministic
// dihedral transform.
type FolderDataset[B tensor.Backend] = registration.FolderDataset[B]

// OpenFolderDataset lists and filters the image directory and verifies
// that every kept patch has a label.
func OpenFolderDataset[B tensor.Backend](cfg FolderConfig, backend B) (*FolderDataset[B], error) {
	return registration.OpenFolderDataset(cfg, backend)
}

// Label classification

// LabelKind says how a label tensor is interpreted.
type LabelKind = registration.LabelKind

// Label kinds derived by ClassifyAndNormalize.
const (
	LabelBinary     = registration.LabelBinary
	LabelContinuous = registration.LabelContinuous
)

// ErrLabelRange reports integer label values outside {0,1}.
var ErrLabelRange = registration.ErrLabelRange

// ClassifyAndNormalize derives a label tensor's kind from its element type
// and returns a float32 tensor ready for warping. Integer and bool element
// types are binary and threshold at 0.5; float element types are
// continuous and pass through, with float64 narrowed to float32.
func ClassifyAndNormalize(label *tensor.RawTensor, backend tensor.Backend) (*tensor.RawTensor, LabelKind, error) {
	return registration.ClassifyAndNormalize(label, backend)
}

// Training

// TrainConfig tunes the cyclic-registration training loop. Zero values
// select the defaults.
type TrainConfig = registration.TrainConfig

// PhaseStats aggregates one phase (train or validation) of one epoch.
type PhaseStats = registration.PhaseStats

// EpochStats is one epoch's train and validation results.
type EpochStats = registration.EpochStats

// History is the full training record Fit returns.
type History = registration.History

// Trainer drives cyclic-registration training of a warp predictor.
type Trainer[B tensor.Backend] = registration.Trainer[B]

// NewTrainer wires a predictor to an AdamW optimizer with cosine annealing
// and early stopping. The batch size is clamped so one batch's working set
// fits the memory budget.
func NewTrainer[B tensor.Backend](
	predictor WarpPredictor[*autodiff.AutodiffBackend[B]],
	backend *autodiff.AutodiffBackend[B],
	cfg TrainConfig,
) (*Trainer[B], error) {
	return registration.NewTrainer(predictor, backend, cfg)
}

// EstimateSampleBytes approximates one sample's training working set from
// the patch size and first-level filter width.
func EstimateSampleBytes(height, width, filters int) int64 {
	return registration.EstimateSampleBytes(height, width, filters)
}

// ClampBatchSize caps a requested batch size so the batch working set
// stays inside the memory budget.
func ClampBatchSize(requested int, sampleBytes int64) int {
	return registration.ClampBatchSize(requested, sampleBytes)
}

// Snapshots

// SnapshotData is one validation sample mid-training: the input views, the
// warped and cycled images, and the three labels.
type SnapshotData = registration.SnapshotData

// Snapshotter receives intermediate results during validation. Errors
// abort training.
type Snapshotter = registration.Snapshotter

// GridSnapshotter renders each snapshot as one PNG grid under Dir.
type GridSnapshotter = registration.GridSnapshotter

// Inference

// InferencePair matches an unlabeled test patch with its closest annotated
// patch.
type InferencePair = registration.InferencePair

// PairSource yields the pairs an inference run covers.
type PairSource = registration.PairSource

// LabelPathFor derives a label path from an image path by the dataset
// convention of replacing "image" with "label".
func LabelPathFor(imagePath string) string {
	return registration.LabelPathFor(imagePath)
}

// CSVPairs reads pairs from a patch matcher's CSV output.
type CSVPairs = registration.CSVPairs

// DirPairs pairs same-named patches across two directories.
type DirPairs = registration.DirPairs

// InferConfig tunes an inference run.
type InferConfig = registration.InferConfig

// Report is the outcome of an inference run.
type Report = registration.Report

// Runner transfers labels from annotated patches to their matched test
// patches with a trained predictor.
type Runner[B tensor.Backend] = registration.Runner[B]

// NewRunner wires a trained predictor for inference.
func NewRunner[B tensor.Backend](
	predictor WarpPredictor[*autodiff.AutodiffBackend[B]],
	backend *autodiff.AutodiffBackend[B],
	cfg InferConfig,
) (*Runner[B], error) {
	return registration.NewRunner(predictor, backend, cfg)
}
