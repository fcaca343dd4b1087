package ops

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// CatOp records a concatenation along one axis. The backward pass is the
// inverse split: the gradient is cut at the same boundaries and each piece
// goes to the input that contributed it.
type CatOp struct {
	inputs []*tensor.RawTensor
	dim    int   // normalized concat axis
	sizes  []int // per-input extent along dim
	output *tensor.RawTensor
}

// NewCatOp creates a concatenation operation. The dim must already be
// normalized to a non-negative axis and sizes must hold each input's extent
// along it, in input order.
func NewCatOp(inputs []*tensor.RawTensor, dim int, sizes []int, output *tensor.RawTensor) *CatOp {
	return &CatOp{inputs: inputs, dim: dim, sizes: sizes, output: output}
}

// Backward splits the gradient along the concat axis at the recorded
// boundaries.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, size := range op.sizes {
		grads[i] = sliceDim(outputGrad, op.dim, offset, size)
		offset += size
	}
	return grads
}

func (op *CatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

func (op *CatOp) Output() *tensor.RawTensor {
	return op.output
}

// sliceDim copies the [offset, offset+n) range of t along dim into a fresh
// tensor. In row-major layout the slice is one contiguous run per outer
// index, so each run is a single copy.
func sliceDim(t *tensor.RawTensor, dim, offset, n int) *tensor.RawTensor {
	shape := t.Shape()
	outShape := shape.Clone()
	outShape[dim] = n

	out, err := tensor.NewRaw(outShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("sliceDim: %v", err))
	}

	outer, inner := 1, 1
	for _, s := range shape[:dim] {
		outer *= s
	}
	for _, s := range shape[dim+1:] {
		inner *= s
	}

	switch t.DType() {
	case tensor.Float32:
		sliceDimInto(t.AsFloat32(), out.AsFloat32(), outer, shape[dim], inner, offset, n)
	case tensor.Float64:
		sliceDimInto(t.AsFloat64(), out.AsFloat64(), outer, shape[dim], inner, offset, n)
	default:
		panic(fmt.Sprintf("sliceDim: unsupported dtype %s", t.DType()))
	}
	return out
}

func sliceDimInto[T floatValue](src, dst []T, outer, srcN, inner, offset, n int) {
	for o := 0; o < outer; o++ {
		srcStart := (o*srcN + offset) * inner
		copy(dst[o*n*inner:(o+1)*n*inner], src[srcStart:srcStart+n*inner])
	}
}
