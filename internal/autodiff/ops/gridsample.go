package ops

import "github.com/born-ml/cellwarp/internal/tensor"

// GridSampleOp records a dense warp: output = bilinear(input, field).
//
// This op is what makes registration training work. The loss compares warped
// images, so gradients must flow through the sampler into both the image
// being warped and the displacement field the model produced.
//
// Backward is delegated to the backend kernel:
//   - the input gradient scatters each output gradient to the four sampled
//     corners, weighted by the bilinear coefficients
//   - the field gradient is the derivative of those coefficients w.r.t. the
//     displacement, zero where the sample coordinate was clamped
type GridSampleOp struct {
	input  *tensor.RawTensor
	field  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewGridSampleOp creates a grid sampling operation.
func NewGridSampleOp(input, field, output *tensor.RawTensor) *GridSampleOp {
	return &GridSampleOp{input: input, field: field, output: output}
}

// Backward computes gradients for both the sampled image and the field.
func (op *GridSampleOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gradInput, gradField := backend.GridSampleBackward(outputGrad, op.input, op.field)
	return []*tensor.RawTensor{gradInput, gradField}
}

func (op *GridSampleOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.field}
}

func (op *GridSampleOp) Output() *tensor.RawTensor {
	return op.output
}
