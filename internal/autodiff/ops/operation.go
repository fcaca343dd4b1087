// Package ops holds the differentiable operations recorded on the gradient
// tape. Forward computation always happens in a backend; each op here only
// remembers its operands and knows how to turn the gradient of its output
// into gradients of its inputs.
//
// The element-wise arithmetic (AddOp, SubOp, MulOp, DivOp), the scalar forms
// (ScaleOp, ShiftOp) and the fused MSEOp cover the loss math. The spatial ops
// (Conv2DOp, MaxPool2DOp, Upsample2DOp, GridSampleOp) wrap backend kernels.
// ReshapeOp, CatOp and ChunkOp are layout plumbing, ReLUOp the activation,
// and SumDimOp/MeanDimOp the axis reductions. ChunkOp is the package's one
// MultiOutputOperation.
package ops

import "github.com/born-ml/cellwarp/internal/tensor"

// Operation is one recorded node of the computation graph.
type Operation interface {
	// Backward turns the gradient of the output into one gradient per
	// input, in the same order as Inputs.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the tensors the operation consumed.
	Inputs() []*tensor.RawTensor

	// Output returns the tensor the operation produced.
	Output() *tensor.RawTensor
}

// MultiOutputOperation is an Operation with several outputs. The tape
// collects gradients for all of them, zero-filling outputs nothing flowed
// into, and calls BackwardMulti instead of Backward.
type MultiOutputOperation interface {
	Operation

	// Outputs returns every tensor the operation produced.
	Outputs() []*tensor.RawTensor

	// BackwardMulti turns per-output gradients, in Outputs order, into
	// one gradient per input.
	BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}

// unaryOp carries the operand and result shared by the single-input ops.
type unaryOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

func (op *unaryOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

func (op *unaryOp) Output() *tensor.RawTensor {
	return op.output
}

// binaryOp carries the operands and result shared by the two-input ops.
type binaryOp struct {
	a, b   *tensor.RawTensor
	output *tensor.RawTensor
}

func (op *binaryOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.a, op.b}
}

func (op *binaryOp) Output() *tensor.RawTensor {
	return op.output
}
