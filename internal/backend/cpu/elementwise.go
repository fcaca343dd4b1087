package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// arith is the element type set the binary arithmetic kernels cover. Uint8
// and Bool tensors hold labels and masks; arithmetic on them goes through
// Cast first.
type arith interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// binOp selects the arithmetic operation inside the generic kernels. The
// switch sits outside the element loops, so each instantiation still
// compiles to four tight loops.
type binOp int

const (
	opAdd binOp = iota
	opSub
	opMul
	opDiv
)

func (op binOp) String() string {
	switch op {
	case opAdd:
		return "add"
	case opSub:
		return "sub"
	case opMul:
		return "mul"
	case opDiv:
		return "div"
	}
	return fmt.Sprintf("binOp(%d)", int(op))
}

// binaryInplace runs a op= b over a's buffer.
// Requires a.Shape().Equal(b.Shape()) and a.IsUnique().
func binaryInplace(a, b *tensor.RawTensor, op binOp) {
	switch a.DType() {
	case tensor.Float32:
		inplaceLoop(a.AsFloat32(), b.AsFloat32(), op)
	case tensor.Float64:
		inplaceLoop(a.AsFloat64(), b.AsFloat64(), op)
	case tensor.Int32:
		inplaceLoop(a.AsInt32(), b.AsInt32(), op)
	case tensor.Int64:
		inplaceLoop(a.AsInt64(), b.AsInt64(), op)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
}

// binaryVectorized runs dst = a op b over equal-shape buffers.
func binaryVectorized(dst, a, b *tensor.RawTensor, op binOp) {
	switch a.DType() {
	case tensor.Float32:
		vectorLoop(dst.AsFloat32(), a.AsFloat32(), b.AsFloat32(), op)
	case tensor.Float64:
		vectorLoop(dst.AsFloat64(), a.AsFloat64(), b.AsFloat64(), op)
	case tensor.Int32:
		vectorLoop(dst.AsInt32(), a.AsInt32(), b.AsInt32(), op)
	case tensor.Int64:
		vectorLoop(dst.AsInt64(), a.AsInt64(), b.AsInt64(), op)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
}

// binaryBroadcast runs dst = a op b with stride-mapped indexing, for
// operand shapes that broadcast to outShape.
func binaryBroadcast(dst, a, b *tensor.RawTensor, outShape tensor.Shape, op binOp) {
	switch a.DType() {
	case tensor.Float32:
		broadcastLoop(dst.AsFloat32(), a.AsFloat32(), b.AsFloat32(), a.Shape(), b.Shape(), outShape, op)
	case tensor.Float64:
		broadcastLoop(dst.AsFloat64(), a.AsFloat64(), b.AsFloat64(), a.Shape(), b.Shape(), outShape, op)
	case tensor.Int32:
		broadcastLoop(dst.AsInt32(), a.AsInt32(), b.AsInt32(), a.Shape(), b.Shape(), outShape, op)
	case tensor.Int64:
		broadcastLoop(dst.AsInt64(), a.AsInt64(), b.AsInt64(), a.Shape(), b.Shape(), outShape, op)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
}

func inplaceLoop[T arith](a, b []T, op binOp) {
	switch op {
	case opAdd:
		for i := range a {
			a[i] += b[i]
		}
	case opSub:
		for i := range a {
			a[i] -= b[i]
		}
	case opMul:
		for i := range a {
			a[i] *= b[i]
		}
	case opDiv:
		for i := range a {
			a[i] /= b[i]
		}
	}
}

func vectorLoop[T arith](dst, a, b []T, op binOp) {
	switch op {
	case opAdd:
		for i := range a {
			dst[i] = a[i] + b[i]
		}
	case opSub:
		for i := range a {
			dst[i] = a[i] - b[i]
		}
	case opMul:
		for i := range a {
			dst[i] = a[i] * b[i]
		}
	case opDiv:
		for i := range a {
			dst[i] = a[i] / b[i]
		}
	}
}

func broadcastLoop[T arith](dst, a, b []T, aShape, bShape, outShape tensor.Shape, op binOp) {
	outStrides := outShape.ComputeStrides()
	aStrides := computeBroadcastStridesForShape(aShape, outShape)
	bStrides := computeBroadcastStridesForShape(bShape, outShape)

	n := outShape.NumElements()
	switch op {
	case opAdd:
		for i := 0; i < n; i++ {
			dst[i] = a[computeFlatIndex(i, outStrides, aStrides)] + b[computeFlatIndex(i, outStrides, bStrides)]
		}
	case opSub:
		for i := 0; i < n; i++ {
			dst[i] = a[computeFlatIndex(i, outStrides, aStrides)] - b[computeFlatIndex(i, outStrides, bStrides)]
		}
	case opMul:
		for i := 0; i < n; i++ {
			dst[i] = a[computeFlatIndex(i, outStrides, aStrides)] * b[computeFlatIndex(i, outStrides, bStrides)]
		}
	case opDiv:
		for i := 0; i < n; i++ {
			dst[i] = a[computeFlatIndex(i, outStrides, aStrides)] / b[computeFlatIndex(i, outStrides, bStrides)]
		}
	}
}
