package autodiff

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// BackwardCapable is the backend surface the Backward helper needs: a full
// tensor backend that also exposes its gradient tape.
type BackwardCapable interface {
	tensor.Backend
	Tape() *GradientTape
}

// Backward seeds t's gradient with ones and runs the tape backwards,
// returning the gradient for every tensor the recorded graph reached.
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.Ones[float32](tensor.Shape{2}, backend)
//	y := x.Mul(x)
//	grads := autodiff.Backward(y, backend)
//	dx := grads[x.Raw()]
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (is the tape recording?)")
	}

	seed, err := tensor.NewRaw(t.Shape(), t.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("backward: %v", err))
	}
	switch t.DType() {
	case tensor.Float32:
		fillOnes(seed.AsFloat32())
	case tensor.Float64:
		fillOnes(seed.AsFloat64())
	default:
		panic(fmt.Sprintf("backward: unsupported dtype %s", t.DType()))
	}
	return tape.Backward(seed, backend)
}

func fillOnes[T floatValue](data []T) {
	for i := range data {
		data[i] = 1
	}
}
