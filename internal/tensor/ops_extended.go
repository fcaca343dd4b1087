package tensor

// Typed wrappers beyond basic arithmetic: scalar broadcasts, dim
// reductions, and dtype conversion.

// MulScalar multiplies every element by a scalar.
func (t *Tensor[T, B]) MulScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, scalar), t.backend)
}

// AddScalar adds a scalar to every element.
func (t *Tensor[T, B]) AddScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.AddScalar(t.raw, scalar), t.backend)
}

// SubScalar subtracts a scalar from every element.
func (t *Tensor[T, B]) SubScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.SubScalar(t.raw, scalar), t.backend)
}

// DivScalar divides every element by a scalar.
func (t *Tensor[T, B]) DivScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.DivScalar(t.raw, scalar), t.backend)
}

// SumDim sums along dim. With keepDim the reduced dimension stays with
// size 1, which keeps the result broadcastable against the input.
// Negative dims count from the back.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.SumDim(t.raw, dim, keepDim), t.backend)
}

// MeanDim averages along dim. Same keepDim and negative-dim rules as
// SumDim.
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.MeanDim(t.raw, dim, keepDim), t.backend)
}

// Int32 casts to int32, truncating fractional parts.
func (t *Tensor[T, B]) Int32() *Tensor[int32, B] {
	return New[int32, B](t.backend.Cast(t.raw, Int32), t.backend)
}

// Float32 casts to float32. Bool tensors become 0/1 planes, which is
// how loader masks enter the float pipeline.
func (t *Tensor[T, B]) Float32() *Tensor[float32, B] {
	return New[float32, B](t.backend.Cast(t.raw, Float32), t.backend)
}

// Uint8 casts to uint8, truncating rather than rounding. Used to bring
// thresholded masks and image planes back to byte form.
func (t *Tensor[T, B]) Uint8() *Tensor[uint8, B] {
	return New[uint8, B](t.backend.Cast(t.raw, Uint8), t.backend)
}
