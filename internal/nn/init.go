package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Xavier draws weights from U(-b, b) with b = sqrt(6 / (fanIn + fanOut)),
// the Glorot bound that keeps activation variance steady across layers.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	raw, err := tensor.NewRaw(shape, tensor.Float32, backend.Device())
	if err != nil {
		panic(err)
	}
	data := raw.AsFloat32()
	for i := range data {
		data[i] = float32((2*rand.Float64() - 1) * bound) //nolint:gosec // G404: seeded runs must reproduce
	}
	return tensor.New[float32, B](raw, backend)
}

// Zeros returns a zero-filled tensor, the usual bias start.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones returns a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}

// Randn returns a tensor drawn from the standard normal distribution.
func Randn[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Randn[float32](shape, backend)
}
