package ops

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// ReLUOp records output = max(input, 0). The gradient passes through where
// the input was positive and is zero elsewhere, including at exactly zero.
type ReLUOp struct{ unaryOp }

// NewReLUOp creates a ReLU operation.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{unaryOp{input: input, output: output}}
}

// Backward masks the gradient with the input's sign.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	mask, err := tensor.NewRaw(op.input.Shape(), op.input.DType(), op.input.Device())
	if err != nil {
		panic(fmt.Sprintf("relu: %v", err))
	}
	switch op.input.DType() {
	case tensor.Float32:
		reluMask(op.input.AsFloat32(), mask.AsFloat32())
	case tensor.Float64:
		reluMask(op.input.AsFloat64(), mask.AsFloat64())
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s", op.input.DType()))
	}
	return []*tensor.RawTensor{backend.Mul(outputGrad, mask)}
}

// reluMask writes 1 where x is positive and leaves 0 elsewhere.
func reluMask[T floatValue](x, mask []T) {
	for i, v := range x {
		if v > 0 {
			mask[i] = 1
		}
	}
}
