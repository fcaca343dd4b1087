package tensor

import (
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	raw, err := NewRaw(shape, inferDataType(dummy), b.Device())
	if err != nil {
		panic(err)
	}
	// Fresh buffers are already zeroed.
	return New[T, B](raw, b)
}

// oneValue returns 1 in the element type, or true for bool.
func oneValue[T DType]() T {
	var dummy T
	var one any
	switch any(dummy).(type) {
	case float32:
		one = float32(1)
	case float64:
		one = float64(1)
	case int32:
		one = int32(1)
	case int64:
		one = int64(1)
	case uint8:
		one = uint8(1)
	case bool:
		one = true
	}
	return one.(T)
}

// Ones creates a tensor filled with ones (true for bool).
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, oneValue[T](), b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor drawn from the standard normal N(0, 1).
// Float types only. math/rand, not crypto/rand: a seeded run must
// reproduce its weights.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	switch data := any(t.Data()).(type) {
	case []float32:
		for i := range data {
			data[i] = float32(rand.NormFloat64()) //nolint:gosec // G404: seeded runs must reproduce
		}
	case []float64:
		for i := range data {
			data[i] = rand.NormFloat64() //nolint:gosec // G404: seeded runs must reproduce
		}
	default:
		panic("Randn only supports float32 and float64 types")
	}
	return t
}

// Rand creates a tensor drawn from the uniform U(0, 1). Float types
// only.
func Rand[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	switch data := any(t.Data()).(type) {
	case []float32:
		for i := range data {
			data[i] = rand.Float32() //nolint:gosec // G404: seeded runs must reproduce
		}
	case []float64:
		for i := range data {
			data[i] = rand.Float64() //nolint:gosec // G404: seeded runs must reproduce
		}
	default:
		panic("Rand only supports float32 and float64 types")
	}
	return t
}

// ramp builds the counting sequence for one concrete element type.
func ramp[N interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8
}](start, end N) []N {
	if end <= start {
		panic("end must be greater than start")
	}
	out := make([]N, int(end-start))
	for i := range out {
		out[i] = start + N(i)
	}
	return out
}

// Arange creates a 1D tensor counting from start to end, exclusive,
// in steps of one. Numeric types only.
func Arange[T DType, B Backend](start, end T, b B) *Tensor[T, B] {
	var vals any
	switch s := any(start).(type) {
	case float32:
		vals = ramp(s, any(end).(float32))
	case float64:
		vals = ramp(s, any(end).(float64))
	case int32:
		vals = ramp(s, any(end).(int32))
	case int64:
		vals = ramp(s, any(end).(int64))
	case uint8:
		vals = ramp(s, any(end).(uint8))
	default:
		panic("Arange not supported for this type")
	}

	data := vals.([]T)
	t := Zeros[T, B](Shape{len(data)}, b)
	copy(t.Data(), data)
	return t
}

// Eye creates an n-by-n identity matrix.
func Eye[T DType, B Backend](n int, b B) *Tensor[T, B] {
	t := Zeros[T, B](Shape{n, n}, b)
	one := oneValue[T]()
	for i := 0; i < n; i++ {
		t.Set(one, i, i)
	}
	return t
}
