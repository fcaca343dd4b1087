package ops

import "github.com/born-ml/cellwarp/internal/tensor"

// ScaleOp records multiplication or division by a constant: output = x * s,
// or output = x / s when invert is set. The scalar is a constant rather than
// a tensor, so only x receives a gradient.
type ScaleOp struct {
	unaryOp
	scalar any
	invert bool
}

// NewScaleOp creates an op for output = x * scalar.
func NewScaleOp(x, output *tensor.RawTensor, scalar any) *ScaleOp {
	return &ScaleOp{unaryOp: unaryOp{input: x, output: output}, scalar: scalar}
}

// NewInverseScaleOp creates an op for output = x / scalar.
func NewInverseScaleOp(x, output *tensor.RawTensor, scalar any) *ScaleOp {
	return &ScaleOp{unaryOp: unaryOp{input: x, output: output}, scalar: scalar, invert: true}
}

// Backward scales the gradient by the constant, d(x*s)/dx = s and
// d(x/s)/dx = 1/s.
func (op *ScaleOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if op.invert {
		return []*tensor.RawTensor{backend.DivScalar(outputGrad, op.scalar)}
	}
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
}

// ShiftOp records addition or subtraction of a constant: output = x +/- s.
// The shift drops out of the derivative entirely.
type ShiftOp struct{ unaryOp }

// NewShiftOp creates an op for output = x +/- scalar.
func NewShiftOp(x, output *tensor.RawTensor) *ShiftOp {
	return &ShiftOp{unaryOp{input: x, output: output}}
}

// Backward passes the gradient through. The clone keeps the stored gradient
// from aliasing the output's entry in the tape's gradient map.
func (op *ShiftOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad.Clone()}
}
