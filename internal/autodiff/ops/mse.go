package ops

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// MSEOp records the fused loss output = mean((a-b)^2), a scalar. Keeping it
// fused puts one node on the tape per loss term instead of a sub, mul and
// reduce chain.
//
// The derivative is 2(a-b)/n toward a and its negation toward b, both scaled
// by the incoming scalar gradient so summed loss terms compose.
type MSEOp struct{ binaryOp }

// NewMSEOp creates a mean squared error operation.
func NewMSEOp(a, b, output *tensor.RawTensor) *MSEOp {
	return &MSEOp{binaryOp{a: a, b: b, output: output}}
}

// Backward computes the paired gradients in one pass over the operands.
func (op *MSEOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gradA, err := tensor.NewRaw(op.a.Shape(), op.a.DType(), op.a.Device())
	if err != nil {
		panic(fmt.Sprintf("mse: %v", err))
	}
	gradB, err := tensor.NewRaw(op.b.Shape(), op.b.DType(), op.b.Device())
	if err != nil {
		panic(fmt.Sprintf("mse: %v", err))
	}

	switch op.a.DType() {
	case tensor.Float32:
		mseGrads(op.a.AsFloat32(), op.b.AsFloat32(), gradA.AsFloat32(), gradB.AsFloat32(), outputGrad.AsFloat32()[0])
	case tensor.Float64:
		mseGrads(op.a.AsFloat64(), op.b.AsFloat64(), gradA.AsFloat64(), gradB.AsFloat64(), outputGrad.AsFloat64()[0])
	default:
		panic(fmt.Sprintf("mse: unsupported dtype %s", op.a.DType()))
	}
	return []*tensor.RawTensor{gradA, gradB}
}

func mseGrads[T floatValue](a, b, gradA, gradB []T, outGrad T) {
	scale := 2 * outGrad / T(len(a))
	for i := range a {
		g := scale * (a[i] - b[i])
		gradA[i] = g
		gradB[i] = -g
	}
}
