package ops

import "github.com/born-ml/cellwarp/internal/tensor"

// AddOp records output = a + b.
type AddOp struct{ binaryOp }

// NewAddOp creates an add operation.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{binaryOp{a: a, b: b, output: output}}
}

// Backward routes the gradient to both operands unchanged, folded back
// through any broadcast.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, op.a.Shape(), backend),
		reduceBroadcast(outputGrad, op.b.Shape(), backend),
	}
}

// SubOp records output = a - b.
type SubOp struct{ binaryOp }

// NewSubOp creates a subtract operation.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{binaryOp{a: a, b: b, output: output}}
}

// Backward routes the gradient to a unchanged and to b negated.
func (op *SubOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, op.a.Shape(), backend),
		reduceBroadcast(negate(outputGrad, backend), op.b.Shape(), backend),
	}
}

// MulOp records output = a * b.
type MulOp struct{ binaryOp }

// NewMulOp creates a multiply operation.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{binaryOp{a: a, b: b, output: output}}
}

// Backward applies the product rule: each operand's gradient is the incoming
// gradient scaled by the other operand.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(backend.Mul(outputGrad, op.b), op.a.Shape(), backend),
		reduceBroadcast(backend.Mul(outputGrad, op.a), op.b.Shape(), backend),
	}
}

// DivOp records output = a / b.
type DivOp struct{ binaryOp }

// NewDivOp creates a divide operation.
func NewDivOp(a, b, output *tensor.RawTensor) *DivOp {
	return &DivOp{binaryOp{a: a, b: b, output: output}}
}

// Backward applies the quotient rule: d(a/b)/da = 1/b and d(a/b)/db = -a/b².
func (op *DivOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gradA := reduceBroadcast(backend.Div(outputGrad, op.b), op.a.Shape(), backend)

	bSquared := backend.Mul(op.b, op.b)
	gradB := reduceBroadcast(
		negate(backend.Div(backend.Mul(outputGrad, op.a), bSquared), backend),
		op.b.Shape(), backend,
	)
	return []*tensor.RawTensor{gradA, gradB}
}
