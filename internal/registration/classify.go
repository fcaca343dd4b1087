package registration

import (
	"errors"
	"fmt"

	"github.com/born-ml/cellwarp/internal/metrics"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// LabelKind says how a label tensor is interpreted.
type LabelKind int

const (
	// LabelBinary marks integer-typed labels carrying {0,1} masks.
	LabelBinary LabelKind = iota

	// LabelContinuous marks float-typed labels, distance-transform-like.
	LabelContinuous
)

func (k LabelKind) String() string {
	if k == LabelBinary {
		return "binary"
	}
	return "continuous"
}

// MetricName returns the per-sample overlap metric for this kind: Dice for
// binary masks, mean absolute difference for continuous labels.
func (k LabelKind) MetricName() string {
	if k == LabelBinary {
		return metrics.MetricDice
	}
	return metrics.MetricL1
}

// ErrLabelRange reports integer label values outside {0,1}.
var ErrLabelRange = errors.New("label values")

// thresholdBackend is the fused threshold capability backends provide.
type thresholdBackend interface {
	Threshold(x *tensor.RawTensor, cutoff float64) *tensor.RawTensor
}

// ClassifyAndNormalize derives a label tensor's kind from its element type
// and returns a float32 tensor ready for warping. Integer and bool element
// types are binary: integer values must be exactly {0,1} (ErrLabelRange
// otherwise) and the converted tensor is thresholded at 0.5. Float element
// types are continuous and pass through unchanged, with float64 narrowed
// to float32. The kind is re-derived on every call, never cached; train,
// validation, and inference all classify through this one function.
func ClassifyAndNormalize(label *tensor.RawTensor, backend tensor.Backend) (*tensor.RawTensor, LabelKind, error) {
	switch label.DType() {
	case tensor.Float32:
		return label, LabelContinuous, nil
	case tensor.Float64:
		return backend.Cast(label, tensor.Float32), LabelContinuous, nil
	case tensor.Uint8:
		for _, v := range label.AsUint8() {
			if v > 1 {
				return nil, 0, fmt.Errorf("%w: binary label contains %d, want {0,1}", ErrLabelRange, v)
			}
		}
	case tensor.Int32:
		for _, v := range label.AsInt32() {
			if v != 0 && v != 1 {
				return nil, 0, fmt.Errorf("%w: binary label contains %d, want {0,1}", ErrLabelRange, v)
			}
		}
	case tensor.Int64:
		for _, v := range label.AsInt64() {
			if v != 0 && v != 1 {
				return nil, 0, fmt.Errorf("%w: binary label contains %d, want {0,1}", ErrLabelRange, v)
			}
		}
	case tensor.Bool:
		// bool carries {0,1} by construction
	default:
		return nil, 0, fmt.Errorf("unsupported label dtype %s", label.DType())
	}

	tb, ok := backend.(thresholdBackend)
	if !ok {
		panic(fmt.Sprintf("registration: backend %s does not implement Threshold", backend.Name()))
	}
	return tb.Threshold(backend.Cast(label, tensor.Float32), 0.5), LabelBinary, nil
}
