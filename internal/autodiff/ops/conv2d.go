package ops

import "github.com/born-ml/cellwarp/internal/tensor"

// Conv2DOp records a 2D convolution. The backward math lives in the backend
// kernels; this op only remembers the forward arguments and routes between
// them:
//
//   - the input gradient is the output gradient convolved against the
//     flipped kernel (a transposed convolution)
//   - the kernel gradient is the input correlated with the output gradient
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a convolution operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{
		input:   input,
		kernel:  kernel,
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

// Backward delegates both gradients to the backend's backward kernels.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		backend.Conv2DInputBackward(outputGrad, op.kernel, op.input.Shape(), op.stride, op.padding),
		backend.Conv2DKernelBackward(outputGrad, op.input, op.kernel.Shape(), op.stride, op.padding),
	}
}

func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}
