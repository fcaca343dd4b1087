package tensor

import "fmt"

// Cat concatenates tensors along dim. Shapes must match everywhere
// except the concatenation dimension; negative dims count from the
// back. Channel stacking uses this to join fixed and moving patches
// into one network input:
//
//	pair := tensor.Cat([]*Tensor[float32, B]{fixed, moving}, 1)
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}
	if len(tensors) == 1 {
		return tensors[0].Clone()
	}

	raws := make([]*RawTensor, len(tensors))
	backend := tensors[0].backend
	for i, t := range tensors {
		raws[i] = t.raw
	}
	return New[T, B](backend.Cat(raws, dim), backend)
}

// Chunk splits the tensor into n equal parts along dim. The dimension
// size must be divisible by n; negative dims count from the back.
func (t *Tensor[T, B]) Chunk(n, dim int) []*Tensor[T, B] {
	raws := t.backend.Chunk(t.raw, n, dim)
	parts := make([]*Tensor[T, B], len(raws))
	for i, raw := range raws {
		parts[i] = New[T, B](raw, t.backend)
	}
	return parts
}

// Unsqueeze inserts a size-1 dimension at dim without copying data.
// Turns a single [C,H,W] patch into the [1,C,H,W] batch the network
// layers expect.
func (t *Tensor[T, B]) Unsqueeze(dim int) *Tensor[T, B] {
	return New[T, B](t.backend.Unsqueeze(t.raw, dim), t.backend)
}

// Squeeze removes the size-1 dimension at dim without copying data.
// Panics if that dimension is wider than 1.
func (t *Tensor[T, B]) Squeeze(dim int) *Tensor[T, B] {
	return New[T, B](t.backend.Squeeze(t.raw, dim), t.backend)
}

// Where selects elements from x where cond is true and from y elsewhere.
//
// All three tensors must share one shape. The result is a fresh tensor;
// neither input is modified.
//
// Example:
//
//	mask := tensor.Full[bool](Shape{3}, true, backend)
//	x := tensor.Full[float32](Shape{3}, 1.0, backend)
//	y := tensor.Full[float32](Shape{3}, 0.0, backend)
//	z := tensor.Where(mask, x, y) // [1, 1, 1]
func Where[T DType, B Backend](cond *Tensor[bool, B], x, y *Tensor[T, B]) *Tensor[T, B] {
	if !cond.Shape().Equal(x.Shape()) || !x.Shape().Equal(y.Shape()) {
		panic(fmt.Sprintf("where: shapes %v, %v and %v differ", cond.Shape(), x.Shape(), y.Shape()))
	}

	raw, err := NewRaw(x.Shape(), x.raw.DType(), x.raw.Device())
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}
	out := New[T, B](raw, x.backend)

	dst := out.Data()
	xs := x.Data()
	ys := y.Data()
	for i, keep := range cond.Data() {
		if keep {
			dst[i] = xs[i]
		} else {
			dst[i] = ys[i]
		}
	}
	return out
}
