package ops

import (
	"math"
	"testing"

	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/tensor"
)

func rawFloat32(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw(%v): %v", shape, err)
	}
	copy(r.AsFloat32(), data)
	return r
}

func fillRaw(t *testing.T, shape tensor.Shape, value float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw(%v): %v", shape, err)
	}
	data := r.AsFloat32()
	for i := range data {
		data[i] = value
	}
	return r
}

func wantFloat32(t *testing.T, got *tensor.RawTensor, shape tensor.Shape, data []float32) {
	t.Helper()
	if !got.Shape().Equal(shape) {
		t.Fatalf("shape = %v, want %v", got.Shape(), shape)
	}
	gotData := got.AsFloat32()
	for i, want := range data {
		if gotData[i] != want {
			t.Errorf("element %d = %v, want %v", i, gotData[i], want)
		}
	}
}

func TestReduceBroadcastScalarGradient(t *testing.T) {
	backend := cpu.New()

	// A fused scalar loss seeds the backward walk with a one-element
	// gradient; it must replicate across any input shape.
	tests := []struct {
		name   string
		target tensor.Shape
		value  float32
	}{
		{"To1D", tensor.Shape{5}, 1.0},
		{"To2D", tensor.Shape{3, 4}, 2.5},
		{"To3D", tensor.Shape{2, 3, 4}, 0.5},
		{"To4D", tensor.Shape{2, 3, 4, 5}, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := rawFloat32(t, tensor.Shape{}, []float32{tt.value})

			result := reduceBroadcast(seed, tt.target, backend)

			if !result.Shape().Equal(tt.target) {
				t.Fatalf("shape = %v, want %v", result.Shape(), tt.target)
			}
			for i, v := range result.AsFloat32() {
				if v != tt.value {
					t.Fatalf("element %d = %v, want %v", i, v, tt.value)
				}
			}
		})
	}

	t.Run("Float64", func(t *testing.T) {
		seed, err := tensor.NewRaw(tensor.Shape{}, tensor.Float64, tensor.CPU)
		if err != nil {
			t.Fatal(err)
		}
		seed.AsFloat64()[0] = 3.14159

		result := reduceBroadcast(seed, tensor.Shape{2, 3}, backend)

		for i, v := range result.AsFloat64() {
			if math.Abs(v-3.14159) > 1e-10 {
				t.Errorf("element %d = %v, want 3.14159", i, v)
			}
		}
	})
}

func TestReduceBroadcastMatchingShapes(t *testing.T) {
	backend := cpu.New()
	grad := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	result := reduceBroadcast(grad, tensor.Shape{2, 3}, backend)

	if result == grad {
		t.Fatal("result must not alias the incoming gradient")
	}
	wantFloat32(t, result, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
}

func TestReduceBroadcastToScalar(t *testing.T) {
	backend := cpu.New()
	grad := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	result := reduceBroadcast(grad, tensor.Shape{}, backend)

	wantFloat32(t, result, tensor.Shape{}, []float32{21})
}

func TestReduceBroadcastStretchedAxis(t *testing.T) {
	backend := cpu.New()

	// Forward stretched [3,1] across columns; backward must sum them.
	grad := rawFloat32(t, tensor.Shape{3, 4}, []float32{
		1, 1, 1, 1,
		2, 2, 2, 2,
		3, 3, 3, 3,
	})

	result := reduceBroadcast(grad, tensor.Shape{3, 1}, backend)

	wantFloat32(t, result, tensor.Shape{3, 1}, []float32{4, 8, 12})
}

func TestReduceBroadcastDropsLeadingAxes(t *testing.T) {
	backend := cpu.New()

	t.Run("RankTwoToOne", func(t *testing.T) {
		grad := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 10, 20, 30})
		result := reduceBroadcast(grad, tensor.Shape{3}, backend)
		wantFloat32(t, result, tensor.Shape{3}, []float32{11, 22, 33})
	})

	t.Run("RankThreeToOne", func(t *testing.T) {
		grad := fillRaw(t, tensor.Shape{2, 3, 4}, 1)
		result := reduceBroadcast(grad, tensor.Shape{4}, backend)
		wantFloat32(t, result, tensor.Shape{4}, []float32{6, 6, 6, 6})
	})

	t.Run("BiasPattern", func(t *testing.T) {
		// Conv bias broadcast [1,2,1,1] -> [2,2,2,2] folds back to
		// one sum per channel.
		grad := fillRaw(t, tensor.Shape{2, 2, 2, 2}, 1)
		result := reduceBroadcast(grad, tensor.Shape{1, 2, 1, 1}, backend)
		wantFloat32(t, result, tensor.Shape{1, 2, 1, 1}, []float32{8, 8})
	})
}

func TestSumDim(t *testing.T) {
	grad := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	t.Run("DropDim", func(t *testing.T) {
		result := sumDim(grad, 0, false)
		wantFloat32(t, result, tensor.Shape{3}, []float32{5, 7, 9})
	})

	t.Run("KeepDim", func(t *testing.T) {
		result := sumDim(grad, 1, true)
		wantFloat32(t, result, tensor.Shape{2, 1}, []float32{6, 15})
	})

	t.Run("MiddleAxis", func(t *testing.T) {
		volume := rawFloat32(t, tensor.Shape{2, 2, 2}, []float32{1, 2, 3, 4, 5, 6, 7, 8})
		result := sumDim(volume, 1, false)
		wantFloat32(t, result, tensor.Shape{2, 2}, []float32{4, 6, 12, 14})
	})

	t.Run("InvalidDimPanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("sumDim with out-of-range dim should panic")
			}
		}()
		sumDim(grad, 2, false)
	})
}

func TestSumAll(t *testing.T) {
	t.Run("Float32", func(t *testing.T) {
		grad := rawFloat32(t, tensor.Shape{4}, []float32{1.5, 2.5, 3, 3})
		wantFloat32(t, sumAll(grad), tensor.Shape{}, []float32{10})
	})

	t.Run("Float64", func(t *testing.T) {
		grad, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float64, tensor.CPU)
		if err != nil {
			t.Fatal(err)
		}
		copy(grad.AsFloat64(), []float64{0.25, 0.25, 0.5, 1})

		result := sumAll(grad)
		if got := result.AsFloat64()[0]; got != 2 {
			t.Errorf("sumAll = %v, want 2", got)
		}
	})
}

func TestNegate(t *testing.T) {
	backend := cpu.New()
	grad := rawFloat32(t, tensor.Shape{3}, []float32{1, -2, 0})

	result := negate(grad, backend)

	wantFloat32(t, result, tensor.Shape{3}, []float32{-1, 2, 0})
	wantFloat32(t, grad, tensor.Shape{3}, []float32{1, -2, 0})
}
