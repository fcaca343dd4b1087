package autodiff

import (
	"github.com/born-ml/cellwarp/internal/autodiff/ops"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// GradientTape records operations during the forward pass and replays them
// in reverse to compute gradients.
//
// The tape is the ownership boundary for training state: Clear it between
// steps or the recorded graph grows across iterations.
type GradientTape struct {
	operations []ops.Operation
	recording  bool
}

// NewGradientTape creates a tape with recording off.
func NewGradientTape() *GradientTape {
	return &GradientTape{operations: make([]ops.Operation, 0, 64)}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() { t.recording = true }

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() { t.recording = false }

// IsRecording reports whether operations are currently being recorded.
func (t *GradientTape) IsRecording() bool { return t.recording }

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int { return len(t.operations) }

// Record appends op if the tape is recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear drops all recorded operations. The recording flag is untouched.
func (t *GradientTape) Clear() {
	t.operations = t.operations[:0]
}

// Backward walks the tape in reverse and returns a map from each reachable
// tensor to its accumulated gradient.
//
// outputGrad seeds the gradient of the last recorded operation's output,
// typically ones for a scalar loss. Operations whose outputs never received
// a gradient are skipped: gradient only flows along the recorded graph.
// Tensors consumed by several operations accumulate the sum of their
// per-consumer gradients. Recording is suspended for the duration so the
// backward math does not append to the tape.
func (t *GradientTape) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	if len(t.operations) == 0 {
		return grads
	}

	wasRecording := t.recording
	t.recording = false
	defer func() { t.recording = wasRecording }()

	last := t.operations[len(t.operations)-1]
	grads[last.Output()] = outputGrad

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		inputGrads := opBackward(op, grads, backend)
		if inputGrads == nil {
			continue
		}
		for j, input := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			if existing, ok := grads[input]; ok {
				grads[input] = backend.Add(existing, inputGrads[j])
			} else {
				grads[input] = inputGrads[j]
			}
		}
	}
	return grads
}

// opBackward runs one operation's backward pass, or returns nil when no
// gradient reached any of its outputs.
func opBackward(op ops.Operation, grads map[*tensor.RawTensor]*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	multi, ok := op.(ops.MultiOutputOperation)
	if !ok {
		grad, reached := grads[op.Output()]
		if !reached {
			return nil
		}
		return op.Backward(grad, backend)
	}

	outputs := multi.Outputs()
	outputGrads := make([]*tensor.RawTensor, len(outputs))
	reached := false
	for j, out := range outputs {
		if g, exists := grads[out]; exists {
			outputGrads[j] = g
			reached = true
		}
	}
	if !reached {
		return nil
	}

	// Outputs nothing flowed into still take part in the joint backward
	// pass; they contribute zeros.
	for j, out := range outputs {
		if outputGrads[j] == nil {
			zero, err := tensor.NewRaw(out.Shape(), out.DType(), backend.Device())
			if err != nil {
				panic(err)
			}
			outputGrads[j] = zero
		}
	}
	return multi.BackwardMulti(outputGrads, backend)
}
