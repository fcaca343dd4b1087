// Package metrics scores predicted label maps against ground truth.
//
// The per-pair metrics are plain set-overlap formulas over foreground
// pixels: Dice, IoU, pixel-set F1, mean absolute difference, and the
// instance-aware aggregated Jaccard index. Degenerate pairs (an empty
// union, an empty prediction) produce NaN rather than a guarded zero;
// NaN flows through aggregation untouched so a degenerate run is visible
// in the report instead of silently averaged away.
package metrics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Metric names understood by Compute.
const (
	MetricPixelF1 = "p_F1"
	MetricAJI     = "aji"
	MetricIoU     = "iou"
	MetricDice    = "dice"
	MetricL1      = "l1"
)

// DefaultNames is the metric set reported for stitched-canvas evaluation.
var DefaultNames = []string{MetricPixelF1, MetricAJI, MetricIoU}

var (
	// ErrShapeMismatch is returned when a predicted and ground-truth label
	// map disagree in shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrCountMismatch is returned when prediction and ground-truth file
	// sets cannot be paired one to one.
	ErrCountMismatch = errors.New("count mismatch")
	// ErrUnknownMetric is returned for a metric name Compute does not know.
	ErrUnknownMetric = errors.New("unknown metric")
)

// foreground reports which elements are foreground: float values above 0.5,
// integer and bool values that are nonzero.
func foreground(t *tensor.RawTensor) []bool {
	fg := make([]bool, t.Shape().NumElements())
	switch t.DType() {
	case tensor.Float32:
		for i, v := range t.AsFloat32() {
			fg[i] = v > 0.5
		}
	case tensor.Float64:
		for i, v := range t.AsFloat64() {
			fg[i] = v > 0.5
		}
	case tensor.Int32:
		for i, v := range t.AsInt32() {
			fg[i] = v != 0
		}
	case tensor.Int64:
		for i, v := range t.AsInt64() {
			fg[i] = v != 0
		}
	case tensor.Uint8:
		for i, v := range t.AsUint8() {
			fg[i] = v != 0
		}
	case tensor.Bool:
		copy(fg, t.AsBool())
	default:
		panic(fmt.Sprintf("metrics: unsupported dtype %s", t.DType()))
	}
	return fg
}

// asFloat64 widens any supported dtype to float64 values.
func asFloat64(t *tensor.RawTensor) []float64 {
	out := make([]float64, t.Shape().NumElements())
	switch t.DType() {
	case tensor.Float32:
		for i, v := range t.AsFloat32() {
			out[i] = float64(v)
		}
	case tensor.Float64:
		copy(out, t.AsFloat64())
	case tensor.Int32:
		for i, v := range t.AsInt32() {
			out[i] = float64(v)
		}
	case tensor.Int64:
		for i, v := range t.AsInt64() {
			out[i] = float64(v)
		}
	case tensor.Uint8:
		for i, v := range t.AsUint8() {
			out[i] = float64(v)
		}
	default:
		panic(fmt.Sprintf("metrics: unsupported dtype %s", t.DType()))
	}
	return out
}

// counts tallies the foreground confusion between a prediction and truth.
type counts struct {
	inter     int // foreground in both
	onlyPred  int // foreground in pred only
	onlyTruth int // foreground in truth only
}

func countOverlap(pred, truth *tensor.RawTensor) (counts, error) {
	if !pred.Shape().Equal(truth.Shape()) {
		return counts{}, fmt.Errorf("%w: pred %v vs truth %v", ErrShapeMismatch, pred.Shape(), truth.Shape())
	}
	p := foreground(pred)
	q := foreground(truth)

	var c counts
	for i := range p {
		switch {
		case p[i] && q[i]:
			c.inter++
		case p[i]:
			c.onlyPred++
		case q[i]:
			c.onlyTruth++
		}
	}
	return c, nil
}

// Dice computes 2|A∩B| / (|A|+|B|) over foreground pixels.
func Dice(pred, truth *tensor.RawTensor) (float64, error) {
	c, err := countOverlap(pred, truth)
	if err != nil {
		return 0, err
	}
	return 2 * float64(c.inter) / float64(2*c.inter+c.onlyPred+c.onlyTruth), nil
}

// IoU computes |A∩B| / |A∪B| over foreground pixels.
func IoU(pred, truth *tensor.RawTensor) (float64, error) {
	c, err := countOverlap(pred, truth)
	if err != nil {
		return 0, err
	}
	return float64(c.inter) / float64(c.inter+c.onlyPred+c.onlyTruth), nil
}

// PixelF1 computes the pixel-set F1 score, the harmonic mean of foreground
// precision and recall. On binary masks with a nonempty prediction and truth
// it coincides with Dice.
func PixelF1(pred, truth *tensor.RawTensor) (float64, error) {
	c, err := countOverlap(pred, truth)
	if err != nil {
		return 0, err
	}
	precision := float64(c.inter) / float64(c.inter+c.onlyPred)
	recall := float64(c.inter) / float64(c.inter+c.onlyTruth)
	return 2 * precision * recall / (precision + recall), nil
}

// L1 computes the mean absolute pixel difference.
func L1(pred, truth *tensor.RawTensor) (float64, error) {
	if !pred.Shape().Equal(truth.Shape()) {
		return 0, fmt.Errorf("%w: pred %v vs truth %v", ErrShapeMismatch, pred.Shape(), truth.Shape())
	}
	p := asFloat64(pred)
	q := asFloat64(truth)

	var sum float64
	for i := range p {
		d := p[i] - q[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(p)), nil
}

// Compute evaluates the named metrics on one prediction/truth pair.
func Compute(pred, truth *tensor.RawTensor, names []string) (map[string]float64, error) {
	results := make(map[string]float64, len(names))
	for _, name := range names {
		var v float64
		var err error
		switch name {
		case MetricPixelF1:
			v, err = PixelF1(pred, truth)
		case MetricAJI:
			v, err = AJI(pred, truth)
		case MetricIoU:
			v, err = IoU(pred, truth)
		case MetricDice:
			v, err = Dice(pred, truth)
		case MetricL1:
			v, err = L1(pred, truth)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		results[name] = v
	}
	return results, nil
}

// Summary holds the mean and population standard deviation of a value list.
type Summary struct {
	Mean float64
	Std  float64
}

// String formats the summary as "mean ± std" with three decimals.
func (s Summary) String() string {
	return fmt.Sprintf("%.3f ± %.3f", s.Mean, s.Std)
}

// Summarize reduces a value list to its Summary. An empty list yields NaN.
func Summarize(values []float64) Summary {
	return Summary{
		Mean: stat.Mean(values, nil),
		Std:  stat.PopStdDev(values, nil),
	}
}

// Aggregate collects per-pair metric maps into one Summary per metric name.
func Aggregate(perPair []map[string]float64) map[string]Summary {
	byName := make(map[string][]float64)
	for _, pair := range perPair {
		for name, v := range pair {
			byName[name] = append(byName[name], v)
		}
	}

	out := make(map[string]Summary, len(byName))
	for name, values := range byName {
		out[name] = Summarize(values)
	}
	return out
}
