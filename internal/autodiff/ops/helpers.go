package ops

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Gradient plumbing shared by the op implementations. Gradients only flow
// through float tensors, so the typed paths cover float32 and float64 and
// everything else panics.

// floatValue constrains the element types gradients can flow through.
type floatValue interface {
	float32 | float64
}

// reduceBroadcast folds grad back onto targetShape, undoing any broadcasting
// from the forward pass. Broadcasting aligns shapes from the right, so
// dimensions missing from the target are summed away entirely and dimensions
// the target holds at size 1 are summed down to 1.
//
//	forward:  bias[1,8,1,1] + feat[2,8,16,16] -> out[2,8,16,16]
//	backward: grad[2,8,16,16] -> gradBias[1,8,1,1]
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		// Clone so the tape's in-place accumulation cannot touch a
		// gradient shared with another input.
		return grad.Clone()
	}
	if len(targetShape) == 0 {
		return sumAll(grad)
	}
	if grad.NumElements() == 1 {
		// A one-element gradient reaching a larger input means the walk
		// was seeded from a fused scalar loss; it applies uniformly.
		return broadcastTo(grad, targetShape)
	}

	// Leading dimensions the target never had are summed away, shrinking
	// the rank one axis per pass.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = sumDim(result, 0, false)
	}

	// Remaining mismatches are axes the target broadcast from size 1.
	for d, want := range targetShape {
		if want == 1 && result.Shape()[d] > 1 {
			result = sumDim(result, d, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// sumAll collapses every element into a scalar tensor.
func sumAll(t *tensor.RawTensor) *tensor.RawTensor {
	out, err := tensor.NewRaw(tensor.Shape{}, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("sumAll: %v", err))
	}
	switch t.DType() {
	case tensor.Float32:
		out.AsFloat32()[0] = sumSlice(t.AsFloat32())
	case tensor.Float64:
		out.AsFloat64()[0] = sumSlice(t.AsFloat64())
	default:
		panic(fmt.Sprintf("sumAll: unsupported dtype %s", t.DType()))
	}
	return out
}

func sumSlice[T floatValue](data []T) T {
	var sum T
	for _, v := range data {
		sum += v
	}
	return sum
}

// sumDim sums t along one axis. With keepDim the summed axis stays as size 1,
// otherwise it is removed from the shape.
func sumDim(t *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := t.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("sumDim: invalid dimension %d for shape %v", dim, shape))
	}

	outShape := make(tensor.Shape, 0, len(shape))
	outShape = append(outShape, shape[:dim]...)
	if keepDim {
		outShape = append(outShape, 1)
	}
	outShape = append(outShape, shape[dim+1:]...)

	out, err := tensor.NewRaw(outShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("sumDim: %v", err))
	}
	switch t.DType() {
	case tensor.Float32:
		sumDimInto(t.AsFloat32(), out.AsFloat32(), shape, dim)
	case tensor.Float64:
		sumDimInto(t.AsFloat64(), out.AsFloat64(), shape, dim)
	default:
		panic(fmt.Sprintf("sumDim: unsupported dtype %s", t.DType()))
	}
	return out
}

// sumDimInto accumulates src into dst with the dim axis collapsed. Row-major
// layout factors as [outer, n, inner] around the summed axis: element
// (o, k, i) lives at (o*n+k)*inner+i and lands in dst at o*inner+i.
func sumDimInto[T floatValue](src, dst []T, shape tensor.Shape, dim int) {
	outer, inner := 1, 1
	for _, s := range shape[:dim] {
		outer *= s
	}
	for _, s := range shape[dim+1:] {
		inner *= s
	}
	n := shape[dim]

	clear(dst)
	for o := 0; o < outer; o++ {
		srcBase := o * n * inner
		dstRow := dst[o*inner : (o+1)*inner]
		for k := 0; k < n; k++ {
			srcRow := src[srcBase+k*inner : srcBase+(k+1)*inner]
			for i, v := range srcRow {
				dstRow[i] += v
			}
		}
	}
}

// negate returns -grad without touching grad itself.
func negate(grad *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	zeros, err := tensor.NewRaw(grad.Shape(), grad.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("negate: %v", err))
	}
	return backend.Sub(zeros, grad)
}
