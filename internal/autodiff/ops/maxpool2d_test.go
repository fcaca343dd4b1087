package ops

import (
	"testing"

	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// TestMaxPool2DBackwardRouting pools a 4x4 sequence with 2x2 windows;
// every window's maximum is its bottom-right corner, so the gradient
// lands there and nowhere else.
func TestMaxPool2DBackwardRouting(t *testing.T) {
	backend := cpu.New()

	input := seq(t, tensor.Shape{1, 1, 4, 4}, 1)
	output := backend.MaxPool2D(input, 2, 2)
	op := NewMaxPool2DOp(input, output, 2, 2)

	seed := rawFloat32(t, tensor.Shape{1, 1, 2, 2}, []float32{1, 2, 3, 4})
	grads := op.Backward(seed, backend)

	if len(grads) != 1 {
		t.Fatalf("got %d gradients, want 1", len(grads))
	}
	wantFloat32(t, grads[0], tensor.Shape{1, 1, 4, 4}, []float32{
		0, 0, 0, 0,
		0, 1, 0, 2,
		0, 0, 0, 0,
		0, 3, 0, 4,
	})
}

// TestMaxPool2DBackwardTies pools a constant image with overlapping
// windows. Ties resolve to the first position scanned, so each window
// routes its gradient to its own top-left corner.
func TestMaxPool2DBackwardTies(t *testing.T) {
	backend := cpu.New()

	input := fillRaw(t, tensor.Shape{1, 1, 5, 5}, 1)
	output := backend.MaxPool2D(input, 3, 1)
	op := NewMaxPool2DOp(input, output, 3, 1)

	if !output.Shape().Equal(tensor.Shape{1, 1, 3, 3}) {
		t.Fatalf("output shape = %v, want [1 1 3 3]", output.Shape())
	}
	seed := fillRaw(t, tensor.Shape{1, 1, 3, 3}, 1)
	grads := op.Backward(seed, backend)

	want := make([]float32, 25)
	for y := range 3 {
		for x := range 3 {
			want[y*5+x] = 1
		}
	}
	wantFloat32(t, grads[0], tensor.Shape{1, 1, 5, 5}, want)
}

// TestMaxPool2DBackwardPlanes checks that routing stays confined to
// each batch element and channel plane.
func TestMaxPool2DBackwardPlanes(t *testing.T) {
	backend := cpu.New()

	// Four planes of ascending values; bottom-right corners win in each.
	input := seq(t, tensor.Shape{2, 2, 4, 4}, 1)
	output := backend.MaxPool2D(input, 2, 2)
	op := NewMaxPool2DOp(input, output, 2, 2)

	seed := fillRaw(t, tensor.Shape{2, 2, 2, 2}, 1)
	grads := op.Backward(seed, backend)

	data := grads[0].AsFloat32()
	for plane := range 4 {
		base := plane * 16
		for i := range 16 {
			want := float32(0)
			switch i {
			case 5, 7, 13, 15:
				want = 1
			}
			if got := data[base+i]; got != want {
				t.Errorf("plane %d element %d = %v, want %v", plane, i, got, want)
			}
		}
	}
}

func TestMaxPool2DBackwardFloat64(t *testing.T) {
	backend := cpu.New()

	input, err := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float64, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	in := input.AsFloat64()
	for i := range in {
		in[i] = float64(i + 1)
	}
	output := backend.MaxPool2D(input, 2, 2)
	op := NewMaxPool2DOp(input, output, 2, 2)

	seed, err := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float64, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	copy(seed.AsFloat64(), []float64{10, 20, 30, 40})

	grads := op.Backward(seed, backend)

	want := []float64{
		0, 0, 0, 0,
		0, 10, 0, 20,
		0, 0, 0, 0,
		0, 30, 0, 40,
	}
	got := grads[0].AsFloat64()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %v, want %v", i, got[i], want[i])
		}
	}
}
