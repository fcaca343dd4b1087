// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics scores predicted label maps against ground truth.
//
// The per-pair metrics are plain set-overlap formulas over foreground
// pixels: Dice, IoU, pixel-set F1, mean absolute difference, and the
// instance-aware aggregated Jaccard index. Degenerate pairs (an empty
// union, an empty prediction) produce NaN rather than a guarded zero, so
// a degenerate run stays visible in the report.
//
// Example:
//
//	import "github.com/born-ml/cellwarp/metrics"
//
//	dice, err := metrics.Dice(pred, truth)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("dice %.3f\n", dice)
package metrics

import (
	"github.com/born-ml/cellwarp/internal/metrics"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Metric names understood by Compute.
const (
	MetricPixelF1 = metrics.MetricPixelF1
	MetricAJI     = metrics.MetricAJI
	MetricIoU     = metrics.MetricIoU
	MetricDice    = metrics.MetricDice
	MetricL1      = metrics.MetricL1
)

// DefaultNames is the metric set reported for stitched-canvas evaluation.
var DefaultNames = metrics.DefaultNames

var (
	// ErrShapeMismatch is returned when a predicted and ground-truth label
	// map disagree in shape.
	ErrShapeMismatch = metrics.ErrShapeMismatch
	// ErrCountMismatch is returned when prediction and ground-truth file
	// sets cannot be paired one to one.
	ErrCountMismatch = metrics.ErrCountMismatch
	// ErrUnknownMetric is returned for a metric name Compute does not know.
	ErrUnknownMetric = metrics.ErrUnknownMetric
)

// Dice computes the Dice coefficient over foreground pixels. An empty
// prediction and ground truth yield NaN.
func Dice(pred, truth *tensor.RawTensor) (float64, error) {
	return metrics.Dice(pred, truth)
}

// IoU computes intersection over union of the foreground pixels.
func IoU(pred, truth *tensor.RawTensor) (float64, error) {
	return metrics.IoU(pred, truth)
}

// PixelF1 computes the pixel-set F1 score, which coincides with Dice on
// binary masks.
func PixelF1(pred, truth *tensor.RawTensor) (float64, error) {
	return metrics.PixelF1(pred, truth)
}

// L1 computes the mean absolute difference, the per-sample metric for
// continuous labels.
func L1(pred, truth *tensor.RawTensor) (float64, error) {
	return metrics.L1(pred, truth)
}

// AJI computes the aggregated Jaccard index over connected components,
// the instance-aware overlap score.
func AJI(pred, truth *tensor.RawTensor) (float64, error) {
	return metrics.AJI(pred, truth)
}

// Compute evaluates the named metrics for one prediction pair.
func Compute(pred, truth *tensor.RawTensor, names []string) (map[string]float64, error) {
	return metrics.Compute(pred, truth, names)
}

// Summary holds the mean and population standard deviation of a value list.
type Summary = metrics.Summary

// Summarize reduces a value list to its Summary. An empty list yields NaN.
func Summarize(values []float64) Summary {
	return metrics.Summarize(values)
}

// Aggregate collects per-pair metric maps into one Summary per metric name.
func Aggregate(perPair []map[string]float64) map[string]Summary {
	return metrics.Aggregate(perPair)
}

// LabelLoader reads a single-channel label mask from disk.
type LabelLoader = metrics.LabelLoader

// Evaluator scores a folder of predicted label canvases against a folder
// of ground-truth canvases, pairing files by identical relative path.
type Evaluator = metrics.Evaluator
