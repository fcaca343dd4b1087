package cpu

import (
	"testing"

	"github.com/born-ml/cellwarp/internal/tensor"
)

func TestUpsample2D_Scale2(t *testing.T) {
	backend := New()

	// [[1, 2],
	//  [3, 4]]
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	inputData[0], inputData[1], inputData[2], inputData[3] = 1, 2, 3, 4

	output := backend.Upsample2D(input, 2)

	if !output.Shape().Equal(tensor.Shape{1, 1, 4, 4}) {
		t.Fatalf("Expected shape [1, 1, 4, 4], got %v", output.Shape())
	}

	// [[1, 1, 2, 2],
	//  [1, 1, 2, 2],
	//  [3, 3, 4, 4],
	//  [3, 3, 4, 4]]
	expected := []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}
	if !float32SliceEqual(output.AsFloat32(), expected) {
		t.Errorf("Upsample2D failed: got %v, expected %v", output.AsFloat32(), expected)
	}
}

func TestUpsample2D_Scale1(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{2, 3, 4, 5}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := range inputData {
		inputData[i] = float32(i % 29)
	}

	output := backend.Upsample2D(input, 1)

	if !output.Shape().Equal(input.Shape()) {
		t.Fatalf("Scale 1 should preserve shape, got %v", output.Shape())
	}
	if !float32SliceEqual(output.AsFloat32(), inputData) {
		t.Error("Scale 1 should copy the input")
	}
}

func TestUpsample2D_MultiChannel(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 2, 1, 2}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	inputData[0], inputData[1] = 1, 2 // channel 0
	inputData[2], inputData[3] = 5, 6 // channel 1

	output := backend.Upsample2D(input, 3)

	if !output.Shape().Equal(tensor.Shape{1, 2, 3, 6}) {
		t.Fatalf("Expected shape [1, 2, 3, 6], got %v", output.Shape())
	}

	expected := []float32{
		1, 1, 1, 2, 2, 2,
		1, 1, 1, 2, 2, 2,
		1, 1, 1, 2, 2, 2,
		5, 5, 5, 6, 6, 6,
		5, 5, 5, 6, 6, 6,
		5, 5, 5, 6, 6, 6,
	}
	if !float32SliceEqual(output.AsFloat32(), expected) {
		t.Errorf("Multi-channel upsample failed: got %v, expected %v", output.AsFloat32(), expected)
	}
}

func TestUpsample2D_Float64(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 1, 2}, tensor.Float64, tensor.CPU)
	inputData := input.AsFloat64()
	inputData[0], inputData[1] = 1.5, 2.5

	output := backend.Upsample2D(input, 2)

	expected := []float64{1.5, 1.5, 2.5, 2.5, 1.5, 1.5, 2.5, 2.5}
	outputData := output.AsFloat64()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Float64 upsample at %d: expected %v, got %v", i, exp, outputData[i])
		}
	}
}
