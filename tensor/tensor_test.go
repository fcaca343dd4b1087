// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/tensor"
)

func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = (*cpu.CPUBackend)(nil)
}

func TestRawTensorThroughFacade(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}

	if !raw.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("shape = %v, want [2 3]", raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		t.Errorf("dtype = %v, want float32", raw.DType())
	}
	if raw.Device() != tensor.CPU {
		t.Errorf("device = %v, want CPU", raw.Device())
	}
	if raw.NumElements() != 6 {
		t.Errorf("elements = %d, want 6", raw.NumElements())
	}
	if raw.ByteSize() != 24 {
		t.Errorf("bytes = %d, want 24", raw.ByteSize())
	}
	if len(raw.Data()) != 24 {
		t.Errorf("Data length = %d, want 24", len(raw.Data()))
	}
	if len(raw.AsFloat32()) != 6 {
		t.Errorf("AsFloat32 length = %d, want 6", len(raw.AsFloat32()))
	}

	t.Run("CloneSharing", func(t *testing.T) {
		clone := raw.Clone()
		if raw.IsUnique() {
			t.Error("clone should share the buffer")
		}
		clone.Release()
		if !raw.IsUnique() {
			t.Error("release should restore uniqueness")
		}
	})

	t.Run("ForceNonUnique", func(t *testing.T) {
		cleanup := raw.ForceNonUnique()
		if raw.IsUnique() {
			t.Error("pinned tensor should not be unique")
		}
		cleanup()
		if !raw.IsUnique() {
			t.Error("cleanup should restore uniqueness")
		}
	})
}

func TestCreationFunctions(t *testing.T) {
	backend := cpu.New()

	t.Run("ZerosOnesFull", func(t *testing.T) {
		zeros := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
		ones := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
		halves := tensor.Full[float32](tensor.Shape{2, 3}, 0.5, backend)
		for i := 0; i < 6; i++ {
			if zeros.Data()[i] != 0 || ones.Data()[i] != 1 || halves.Data()[i] != 0.5 {
				t.Fatalf("fill values wrong at %d: %v %v %v",
					i, zeros.Data()[i], ones.Data()[i], halves.Data()[i])
			}
		}
	})

	t.Run("Random", func(t *testing.T) {
		randn := tensor.Randn[float32](tensor.Shape{128}, backend)
		rand := tensor.Rand[float32](tensor.Shape{128}, backend)
		for i, v := range rand.Data() {
			if v < 0 || v >= 1 {
				t.Fatalf("Rand[%d] = %v outside [0,1)", i, v)
			}
		}
		varying := false
		for _, v := range randn.Data() {
			if v != randn.Data()[0] {
				varying = true
				break
			}
		}
		if !varying {
			t.Error("Randn produced a constant tensor")
		}
	})

	t.Run("Arange", func(t *testing.T) {
		idx := tensor.Arange[float32](0, 5, backend)
		want := []float32{0, 1, 2, 3, 4}
		for i, v := range idx.Data() {
			if v != want[i] {
				t.Errorf("Arange[%d] = %v, want %v", i, v, want[i])
			}
		}
	})

	t.Run("Eye", func(t *testing.T) {
		id := tensor.Eye[float32](3, backend)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				want := float32(0)
				if i == j {
					want = 1
				}
				if got := id.Data()[i*3+j]; got != want {
					t.Errorf("Eye[%d,%d] = %v, want %v", i, j, got, want)
				}
			}
		}
	})

	t.Run("FromSlice", func(t *testing.T) {
		theta, err := tensor.FromSlice([]float32{1, 0, 0, 0, 1, 0}, tensor.Shape{2, 3}, backend)
		if err != nil {
			t.Fatalf("FromSlice: %v", err)
		}
		if !theta.Shape().Equal(tensor.Shape{2, 3}) {
			t.Errorf("shape = %v, want [2 3]", theta.Shape())
		}
		if _, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2, 3}, backend); err == nil {
			t.Error("expected error for length/shape mismatch")
		}
	})
}

func TestDeviceConstants(t *testing.T) {
	if got := tensor.CPU.String(); got != "CPU" {
		t.Errorf("CPU.String() = %q", got)
	}
	if got := tensor.CUDA.String(); got != "CUDA" {
		t.Errorf("CUDA.String() = %q", got)
	}
}

func TestDataTypeConstants(t *testing.T) {
	cases := []struct {
		dtype tensor.DataType
		name  string
		size  int
	}{
		{tensor.Float32, "float32", 4},
		{tensor.Float64, "float64", 8},
		{tensor.Int32, "int32", 4},
		{tensor.Int64, "int64", 8},
		{tensor.Uint8, "uint8", 1},
		{tensor.Bool, "bool", 1},
	}
	for _, tc := range cases {
		if got := tc.dtype.String(); got != tc.name {
			t.Errorf("%v.String() = %q, want %q", tc.dtype, got, tc.name)
		}
		if got := tc.dtype.Size(); got != tc.size {
			t.Errorf("%s.Size() = %d, want %d", tc.name, got, tc.size)
		}
	}
}

func TestShapeThroughFacade(t *testing.T) {
	shape := tensor.Shape{2, 3, 4}

	if n := shape.NumElements(); n != 24 {
		t.Errorf("NumElements() = %d, want 24", n)
	}
	if !shape.Equal(tensor.Shape{2, 3, 4}) {
		t.Error("Equal() = false for identical shapes")
	}

	clone := shape.Clone()
	clone[0] = 999
	if shape[0] == 999 {
		t.Error("Clone() aliases the original")
	}
}

func TestBroadcastShapes(t *testing.T) {
	cases := []struct {
		name          string
		a, b          tensor.Shape
		want          tensor.Shape
		wantBroadcast bool
		wantErr       bool
	}{
		{"same shape", tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, false, false},
		{"scalar against matrix", tensor.Shape{2, 3}, tensor.Shape{1}, tensor.Shape{2, 3}, true, false},
		{"column against matrix", tensor.Shape{3, 1}, tensor.Shape{3, 4}, tensor.Shape{3, 4}, true, false},
		{"incompatible", tensor.Shape{2, 3}, tensor.Shape{4, 5}, nil, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, gotBroadcast, err := tensor.BroadcastShapes(tc.a, tc.b)
			if (err != nil) != tc.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if !got.Equal(tc.want) {
				t.Errorf("shape = %v, want %v", got, tc.want)
			}
			if gotBroadcast != tc.wantBroadcast {
				t.Errorf("broadcast = %v, want %v", gotBroadcast, tc.wantBroadcast)
			}
		})
	}
}

func TestManipulationFunctions(t *testing.T) {
	backend := cpu.New()

	t.Run("Cat", func(t *testing.T) {
		fixed := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
		moving := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
		stacked := tensor.Cat([]*tensor.Tensor[float32, *cpu.CPUBackend]{fixed, moving}, 0)

		if !stacked.Shape().Equal(tensor.Shape{4, 3}) {
			t.Fatalf("Cat shape = %v, want [4 3]", stacked.Shape())
		}
		data := stacked.Data()
		for i := 0; i < 6; i++ {
			if data[i] != 1 || data[6+i] != 0 {
				t.Fatalf("Cat order wrong at %d: first=%v second=%v", i, data[i], data[6+i])
			}
		}
	})

	t.Run("Where", func(t *testing.T) {
		cond, err := tensor.FromSlice([]bool{true, false, true}, tensor.Shape{3}, backend)
		if err != nil {
			t.Fatal(err)
		}
		x := tensor.Full[float32](tensor.Shape{3}, 1.0, backend)
		y := tensor.Full[float32](tensor.Shape{3}, -1.0, backend)

		picked := tensor.Where(cond, x, y)
		want := []float32{1, -1, 1}
		for i, v := range picked.Data() {
			if v != want[i] {
				t.Errorf("Where[%d] = %v, want %v", i, v, want[i])
			}
		}
	})
}
