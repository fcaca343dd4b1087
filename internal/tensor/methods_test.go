package tensor

import (
	"strings"
	"testing"
)

func TestTensorDType(t *testing.T) {
	backend := NewMockBackend()

	if got := Zeros[float32](Shape{2, 2}, backend).DType(); got != Float32 {
		t.Errorf("DType() = %v, want Float32", got)
	}
	if got := Zeros[float64](Shape{2, 2}, backend).DType(); got != Float64 {
		t.Errorf("DType() = %v, want Float64", got)
	}
	if got := Zeros[int32](Shape{2, 2}, backend).DType(); got != Int32 {
		t.Errorf("DType() = %v, want Int32", got)
	}
	if got := Zeros[int64](Shape{2, 2}, backend).DType(); got != Int64 {
		t.Errorf("DType() = %v, want Int64", got)
	}
	if got := Zeros[uint8](Shape{2, 2}, backend).DType(); got != Uint8 {
		t.Errorf("DType() = %v, want Uint8", got)
	}
	if got := Zeros[bool](Shape{2, 2}, backend).DType(); got != Bool {
		t.Errorf("DType() = %v, want Bool", got)
	}
}

func TestTensorAccessors(t *testing.T) {
	backend := NewMockBackend()
	patch := Zeros[float32](Shape{2, 2}, backend)

	if patch.Device() != CPU {
		t.Errorf("Device() = %v, want CPU", patch.Device())
	}

	raw := patch.Raw()
	if raw == nil {
		t.Fatal("Raw() returned nil")
	}
	if !raw.Shape().Equal(Shape{2, 2}) {
		t.Errorf("Raw().Shape() = %v, want {2, 2}", raw.Shape())
	}
	if raw.DType() != Float32 {
		t.Errorf("Raw().DType() = %v, want Float32", raw.DType())
	}

	if patch.Backend() != backend {
		t.Error("Backend() should return the instance the tensor was built with")
	}
	if name := patch.Backend().Name(); name != "mock" {
		t.Errorf("Backend().Name() = %q, want mock", name)
	}
}

func TestGradLifecycle(t *testing.T) {
	backend := NewMockBackend()
	weight := Zeros[float32](Shape{2, 2}, backend)

	if weight.Grad() != nil {
		t.Error("fresh tensor should have no gradient")
	}

	weight.SetGrad(Ones[float32](Shape{2, 2}, backend))
	grad := weight.Grad()
	if grad == nil {
		t.Fatal("Grad() nil after SetGrad")
	}
	if !grad.Shape().Equal(Shape{2, 2}) {
		t.Errorf("Grad().Shape() = %v, want {2, 2}", grad.Shape())
	}
	for i, v := range grad.Data() {
		if v != 1 {
			t.Errorf("Grad().Data()[%d] = %v, want 1", i, v)
		}
	}

	weight.SetGrad(nil)
	if weight.Grad() != nil {
		t.Error("Grad() should be nil after SetGrad(nil)")
	}
}

func TestDetach(t *testing.T) {
	backend := NewMockBackend()
	field, _ := FromSlice([]float32{0.5, -0.5, 0.25, 0}, Shape{2, 2}, backend)
	field.SetGrad(Ones[float32](Shape{2, 2}, backend))
	field.RequireGrad()

	detached := field.Detach()

	if detached.Grad() != nil {
		t.Error("detached tensor should carry no gradient")
	}
	if detached.RequiresGrad() {
		t.Error("detached tensor should not require grad")
	}
	if field.Grad() == nil {
		t.Error("Detach must not clear the original's gradient")
	}
	if !detached.Shape().Equal(field.Shape()) {
		t.Errorf("Detach changed shape: %v vs %v", detached.Shape(), field.Shape())
	}

	// Storage is shared, not copied.
	detached.Data()[0] = 9
	if field.Data()[0] != 9 {
		t.Error("detached tensor should alias the original's storage")
	}
}

func TestTensorString(t *testing.T) {
	backend := NewMockBackend()

	patch, _ := FromSlice([]float32{1, 2, 3, 4}, Shape{2, 2}, backend)
	if got, want := patch.String(), "Tensor[float32][2 2] on CPU"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	mask := Zeros[bool](Shape{3}, backend)
	if got := mask.String(); !strings.Contains(got, "bool") {
		t.Errorf("String() = %q, should name the dtype", got)
	}
}

func TestRequireGrad(t *testing.T) {
	backend := NewMockBackend()

	weight := Zeros[float32](Shape{2, 2}, backend)
	if weight.RequiresGrad() {
		t.Error("RequiresGrad() should start false")
	}

	// Chains, and repeated calls are harmless.
	same := weight.RequireGrad().RequireGrad()
	if same != weight {
		t.Error("RequireGrad() should return the receiver")
	}
	if !weight.RequiresGrad() {
		t.Error("RequiresGrad() should be true after RequireGrad()")
	}
}

func TestDataRoundTrip(t *testing.T) {
	backend := NewMockBackend()

	t.Run("Float64", func(t *testing.T) {
		data := []float64{1.5, 2.5, 3.5, 4.5}
		tensor, _ := FromSlice(data, Shape{2, 2}, backend)
		for i, want := range data {
			if got := tensor.Data()[i]; got != want {
				t.Errorf("Data()[%d] = %v, want %v", i, got, want)
			}
		}
	})

	t.Run("Int64", func(t *testing.T) {
		data := []int64{1, 2, 3, 4}
		tensor, _ := FromSlice(data, Shape{2, 2}, backend)
		for i, want := range data {
			if got := tensor.Data()[i]; got != want {
				t.Errorf("Data()[%d] = %v, want %v", i, got, want)
			}
		}
	})

	t.Run("Uint8", func(t *testing.T) {
		data := []uint8{1, 2, 3, 4}
		tensor, _ := FromSlice(data, Shape{2, 2}, backend)
		for i, want := range data {
			if got := tensor.Data()[i]; got != want {
				t.Errorf("Data()[%d] = %v, want %v", i, got, want)
			}
		}
	})

	t.Run("Bool", func(t *testing.T) {
		data := []bool{true, false, true, false}
		tensor, _ := FromSlice(data, Shape{2, 2}, backend)
		for i, want := range data {
			if got := tensor.Data()[i]; got != want {
				t.Errorf("Data()[%d] = %v, want %v", i, got, want)
			}
		}
	})
}

func TestItem(t *testing.T) {
	backend := NewMockBackend()

	t.Run("Int32", func(t *testing.T) {
		scalar := Full(Shape{1}, int32(42), backend)
		if got := scalar.Reshape().Item(); got != 42 {
			t.Errorf("Item() = %v, want 42", got)
		}
	})

	t.Run("Float64", func(t *testing.T) {
		scalar := Full(Shape{1}, float64(3.14), backend)
		if got := scalar.Reshape().Item(); got != 3.14 {
			t.Errorf("Item() = %v, want 3.14", got)
		}
	})

	t.Run("Bool", func(t *testing.T) {
		scalar := Full(Shape{1}, true, backend)
		if got := scalar.Reshape().Item(); got != true {
			t.Errorf("Item() = %v, want true", got)
		}
	})

	t.Run("NonScalarPanics", func(t *testing.T) {
		grid := Zeros[float32](Shape{2, 2}, backend)
		mustPanic(t, "Item on 2x2 tensor", func() { grid.Item() })
	})
}

func TestAtSet(t *testing.T) {
	backend := NewMockBackend()

	t.Run("Int64", func(t *testing.T) {
		grid := Zeros[int64](Shape{2, 2}, backend)
		grid.Set(int64(123), 1, 1)
		if got := grid.At(1, 1); got != 123 {
			t.Errorf("At(1, 1) = %v, want 123", got)
		}
	})

	t.Run("Uint8", func(t *testing.T) {
		mask := Zeros[uint8](Shape{2, 2}, backend)
		mask.Set(uint8(255), 0, 1)
		if got := mask.At(0, 1); got != 255 {
			t.Errorf("At(0, 1) = %v, want 255", got)
		}
	})

	t.Run("Bool", func(t *testing.T) {
		mask := Zeros[bool](Shape{2, 2}, backend)
		mask.Set(true, 1, 0)
		if got := mask.At(1, 0); got != true {
			t.Errorf("At(1, 0) = %v, want true", got)
		}
	})

	t.Run("RankMismatchPanics", func(t *testing.T) {
		grid := Zeros[float32](Shape{2, 2}, backend)
		mustPanic(t, "At with one index on a 2D tensor", func() { grid.At(1) })
	})

	t.Run("OutOfRangePanics", func(t *testing.T) {
		grid := Zeros[float32](Shape{2, 2}, backend)
		mustPanic(t, "At(0, 2) on a 2x2 tensor", func() { grid.At(0, 2) })
		mustPanic(t, "Set at negative index", func() { grid.Set(1, -1, 0) })
	})
}
