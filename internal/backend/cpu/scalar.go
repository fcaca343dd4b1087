package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Scalar operations - element-wise arithmetic against a single constant.
// The scalar must carry the tensor's element type; the typed tensor layer
// guarantees this, and a mismatch panics on the type assertion.

// MulScalar multiplies each element of the tensor by a scalar value.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp(x, scalar, opMul)
}

// AddScalar adds a scalar value to each element of the tensor.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp(x, scalar, opAdd)
}

// SubScalar subtracts a scalar value from each element of the tensor.
func (cpu *CPUBackend) SubScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp(x, scalar, opSub)
}

// DivScalar divides each element of the tensor by a scalar value.
func (cpu *CPUBackend) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp(x, scalar, opDiv)
}

func (cpu *CPUBackend) scalarOp(x *tensor.RawTensor, scalar any, op binOp) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%sScalar: failed to create result tensor: %v", op, err))
	}

	switch x.DType() {
	case tensor.Float32:
		scalarLoop(result.AsFloat32(), x.AsFloat32(), scalar.(float32), op)
	case tensor.Float64:
		scalarLoop(result.AsFloat64(), x.AsFloat64(), scalar.(float64), op)
	case tensor.Int32:
		scalarLoop(result.AsInt32(), x.AsInt32(), scalar.(int32), op)
	case tensor.Int64:
		scalarLoop(result.AsInt64(), x.AsInt64(), scalar.(int64), op)
	default:
		panic(fmt.Sprintf("%sScalar: unsupported dtype %v", op, x.DType()))
	}

	return result
}

func scalarLoop[T arith](dst, src []T, scalar T, op binOp) {
	switch op {
	case opAdd:
		for i := range dst {
			dst[i] = src[i] + scalar
		}
	case opSub:
		for i := range dst {
			dst[i] = src[i] - scalar
		}
	case opMul:
		for i := range dst {
			dst[i] = src[i] * scalar
		}
	case opDiv:
		for i := range dst {
			dst[i] = src[i] / scalar
		}
	}
}
