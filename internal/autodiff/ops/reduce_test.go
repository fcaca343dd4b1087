package ops

import (
	"math"
	"testing"

	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/tensor"
)

func TestSumDimBackward(t *testing.T) {
	backend := cpu.New()
	x := seq(t, tensor.Shape{2, 3}, 1)

	// A sum routes each row's seed value to every element of that row,
	// whether or not the forward kept the reduced axis.
	t.Run("KeepDim", func(t *testing.T) {
		output := backend.SumDim(x, 1, true)
		op := NewSumDimOp(x, output, 1, true)

		seed := rawFloat32(t, tensor.Shape{2, 1}, []float32{10, 20})
		grads := op.Backward(seed, backend)

		wantFloat32(t, grads[0], tensor.Shape{2, 3}, []float32{10, 10, 10, 20, 20, 20})
	})

	t.Run("DroppedDim", func(t *testing.T) {
		output := backend.SumDim(x, 1, false)
		op := NewSumDimOp(x, output, 1, false)

		seed := rawFloat32(t, tensor.Shape{2}, []float32{10, 20})
		grads := op.Backward(seed, backend)

		wantFloat32(t, grads[0], tensor.Shape{2, 3}, []float32{10, 10, 10, 20, 20, 20})
	})

	t.Run("EveryAxis", func(t *testing.T) {
		volume := fillRaw(t, tensor.Shape{2, 3, 4}, 1)
		for _, dim := range []int{0, 1, 2, -1, -2} {
			for _, keepDim := range []bool{true, false} {
				output := backend.SumDim(volume, dim, keepDim)
				op := NewSumDimOp(volume, output, dim, keepDim)

				seed := fillRaw(t, output.Shape().Clone(), 1)
				grads := op.Backward(seed, backend)

				if !grads[0].Shape().Equal(volume.Shape()) {
					t.Fatalf("dim %d keepDim %v: grad shape = %v, want %v",
						dim, keepDim, grads[0].Shape(), volume.Shape())
				}
				for i, g := range grads[0].AsFloat32() {
					if g != 1 {
						t.Fatalf("dim %d keepDim %v: element %d = %v, want 1", dim, keepDim, i, g)
					}
				}
			}
		}
	})
}

func TestMeanDimBackward(t *testing.T) {
	backend := cpu.New()
	x := seq(t, tensor.Shape{2, 4}, 1)

	// The mean splits each seed across the four elements it averaged.
	t.Run("KeepDim", func(t *testing.T) {
		output := backend.MeanDim(x, 1, true)
		op := NewMeanDimOp(x, output, 1, true)

		seed := rawFloat32(t, tensor.Shape{2, 1}, []float32{4, 8})
		grads := op.Backward(seed, backend)

		wantFloat32(t, grads[0], tensor.Shape{2, 4}, []float32{1, 1, 1, 1, 2, 2, 2, 2})
	})

	t.Run("DroppedDim", func(t *testing.T) {
		output := backend.MeanDim(x, 1, false)
		op := NewMeanDimOp(x, output, 1, false)

		seed := rawFloat32(t, tensor.Shape{2}, []float32{4, 8})
		grads := op.Backward(seed, backend)

		wantFloat32(t, grads[0], tensor.Shape{2, 4}, []float32{1, 1, 1, 1, 2, 2, 2, 2})
	})

	t.Run("NegativeAxis", func(t *testing.T) {
		output := backend.MeanDim(x, -1, false)
		op := NewMeanDimOp(x, output, -1, false)

		seed := rawFloat32(t, tensor.Shape{2}, []float32{4, 8})
		grads := op.Backward(seed, backend)

		wantFloat32(t, grads[0], tensor.Shape{2, 4}, []float32{1, 1, 1, 1, 2, 2, 2, 2})
	})
}

// TestReduceBackwardNumerical compares reduction gradients against
// central differences of a sum-of-outputs loss.
func TestReduceBackwardNumerical(t *testing.T) {
	backend := cpu.New()
	const eps = 1e-4

	tests := []struct {
		name    string
		forward func(x *tensor.RawTensor, keepDim bool) *tensor.RawTensor
		build   func(x, out *tensor.RawTensor, keepDim bool) Operation
	}{
		{
			"SumDim",
			func(x *tensor.RawTensor, keepDim bool) *tensor.RawTensor {
				return backend.SumDim(x, 1, keepDim)
			},
			func(x, out *tensor.RawTensor, keepDim bool) Operation {
				return NewSumDimOp(x, out, 1, keepDim)
			},
		},
		{
			"MeanDim",
			func(x *tensor.RawTensor, keepDim bool) *tensor.RawTensor {
				return backend.MeanDim(x, 1, keepDim)
			},
			func(x, out *tensor.RawTensor, keepDim bool) Operation {
				return NewMeanDimOp(x, out, 1, keepDim)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, keepDim := range []bool{true, false} {
				x := seq(t, tensor.Shape{3, 4}, 1)
				data := x.AsFloat32()
				for i := range data {
					data[i] *= 0.1
				}

				output := tt.forward(x, keepDim)
				op := tt.build(x, output, keepDim)
				seed := fillRaw(t, output.Shape().Clone(), 1)
				grads := op.Backward(seed, backend)

				analytic := grads[0].AsFloat32()
				for i := range data {
					saved := data[i]
					data[i] = saved + eps
					plus := tt.forward(x, keepDim).AsFloat32()
					data[i] = saved - eps
					minus := tt.forward(x, keepDim).AsFloat32()
					data[i] = saved

					var numeric float32
					for j := range plus {
						numeric += (plus[j] - minus[j]) / (2 * eps)
					}
					if diff := math.Abs(float64(numeric - analytic[i])); diff > 2e-3 {
						t.Errorf("keepDim %v element %d: numeric %v vs analytic %v",
							keepDim, i, numeric, analytic[i])
					}
				}
			}
		})
	}
}
