package ops

import "github.com/born-ml/cellwarp/internal/tensor"

// ReshapeOp records a shape change. Reshape moves no data, so the backward
// pass carries the gradient back in the input's shape and nothing else.
// Unsqueeze and Squeeze record through this op as well.
type ReshapeOp struct{ unaryOp }

// NewReshapeOp creates a reshape operation.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{unaryOp{input: input, output: output}}
}

// Backward returns the gradient reshaped to the input's shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.input.Shape())}
}
