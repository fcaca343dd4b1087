package cpu

import (
	"testing"

	"github.com/born-ml/cellwarp/internal/tensor"
)

func TestGridSample_IdentityField(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 3}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := range inputData {
		inputData[i] = float32(i + 1)
	}

	// Zero displacement samples each pixel at its own location.
	field, _ := tensor.NewRaw(tensor.Shape{1, 2, 2, 3}, tensor.Float32, tensor.CPU)

	output := backend.GridSample(input, field)

	if !output.Shape().Equal(input.Shape()) {
		t.Fatalf("Expected shape %v, got %v", input.Shape(), output.Shape())
	}
	if !float32SliceEqual(output.AsFloat32(), inputData) {
		t.Errorf("Identity warp changed data: got %v, expected %v", output.AsFloat32(), inputData)
	}
}

func TestGridSample_UnitShift(t *testing.T) {
	backend := New()

	// [[1, 2, 3],
	//  [4, 5, 6]]
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 3}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := range inputData {
		inputData[i] = float32(i + 1)
	}

	// dx=+1 everywhere: each output pixel samples one column to the right,
	// clamped at the border.
	field, _ := tensor.NewRaw(tensor.Shape{1, 2, 2, 3}, tensor.Float32, tensor.CPU)
	fieldData := field.AsFloat32()
	for i := 6; i < 12; i++ {
		fieldData[i] = 1
	}

	output := backend.GridSample(input, field)

	expected := []float32{2, 3, 3, 5, 6, 6}
	if !float32SliceEqual(output.AsFloat32(), expected) {
		t.Errorf("Unit shift failed: got %v, expected %v", output.AsFloat32(), expected)
	}
}

func TestGridSample_BilinearInterpolation(t *testing.T) {
	backend := New()

	// [[0, 2],
	//  [4, 6]]
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	inputData[0], inputData[1], inputData[2], inputData[3] = 0, 2, 4, 6

	// Sample at (0.5, 0.5) from position (0, 0): average of all corners.
	field, _ := tensor.NewRaw(tensor.Shape{1, 2, 2, 2}, tensor.Float32, tensor.CPU)
	fieldData := field.AsFloat32()
	fieldData[0] = 0.5 // dy at (0,0)
	fieldData[4] = 0.5 // dx at (0,0)

	output := backend.GridSample(input, field)

	got := output.AsFloat32()[0]
	if diff := got - 3; diff < -1e-5 || diff > 1e-5 {
		t.Errorf("Bilinear sample at (0.5, 0.5): expected 3, got %v", got)
	}
}

// TestGridSample_MatchesMockBackend verifies CPU implementation matches naive MockBackend.
func TestGridSample_MatchesMockBackend(t *testing.T) {
	cpuBackend := New()
	mockBackend := tensor.NewMockBackend()

	input, _ := tensor.NewRaw(tensor.Shape{2, 3, 5, 7}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := range inputData {
		inputData[i] = float32(i%11) * 0.5
	}

	// Displacements spanning in-bounds, fractional, and out-of-bounds samples.
	field, _ := tensor.NewRaw(tensor.Shape{2, 2, 5, 7}, tensor.Float32, tensor.CPU)
	fieldData := field.AsFloat32()
	for i := range fieldData {
		fieldData[i] = float32(i%13)*0.7 - 4.0
	}

	cpuOutput := cpuBackend.GridSample(input, field)
	mockOutput := mockBackend.GridSample(input, field)

	if !cpuOutput.Shape().Equal(mockOutput.Shape()) {
		t.Fatalf("Shape mismatch: CPU=%v, Mock=%v", cpuOutput.Shape(), mockOutput.Shape())
	}

	cpuData := cpuOutput.AsFloat32()
	mockData := mockOutput.AsFloat32()
	for i := range cpuData {
		diff := cpuData[i] - mockData[i]
		if diff < -0.001 || diff > 0.001 {
			t.Errorf("Value mismatch at index %d: CPU=%.4f, Mock=%.4f", i, cpuData[i], mockData[i])
		}
	}
}

func TestGridSampleBackward_InputScatter(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	inputData[0], inputData[1], inputData[2], inputData[3] = 0, 2, 4, 6

	// Identity field: each output pixel depends only on its own input pixel,
	// so the input gradient equals the output gradient.
	field, _ := tensor.NewRaw(tensor.Shape{1, 2, 2, 2}, tensor.Float32, tensor.CPU)

	gradOutput, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	gradData := gradOutput.AsFloat32()
	gradData[0], gradData[1], gradData[2], gradData[3] = 1, 2, 3, 4

	gradInput, gradField := backend.GridSampleBackward(gradOutput, input, field)

	if !float32SliceEqual(gradInput.AsFloat32(), gradData) {
		t.Errorf("Identity-field input gradient: got %v, expected %v", gradInput.AsFloat32(), gradData)
	}

	// Integer coordinates at the border are treated as clamped, so the field
	// gradient is zero everywhere for an identity field on a 2x2 image.
	for i, g := range gradField.AsFloat32() {
		if g != 0 {
			t.Errorf("Field gradient at %d: expected 0, got %v", i, g)
		}
	}
}

func TestGridSampleBackward_FractionalWeights(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	inputData[0], inputData[1], inputData[2], inputData[3] = 0, 2, 4, 6

	// Output (0,0) samples at (0.5, 0.5): each corner gets weight 0.25.
	field, _ := tensor.NewRaw(tensor.Shape{1, 2, 2, 2}, tensor.Float32, tensor.CPU)
	fieldData := field.AsFloat32()
	fieldData[0] = 0.5
	fieldData[4] = 0.5

	gradOutput, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	gradOutput.AsFloat32()[0] = 1

	gradInput, gradField := backend.GridSampleBackward(gradOutput, input, field)

	gradInputData := gradInput.AsFloat32()
	for i := 0; i < 4; i++ {
		if diff := gradInputData[i] - 0.25; diff < -1e-5 || diff > 1e-5 {
			t.Errorf("Corner %d gradient: expected 0.25, got %v", i, gradInputData[i])
		}
	}

	// d(out)/d(dy) = 0.5*(4-0) + 0.5*(6-2) = 4
	// d(out)/d(dx) = 0.5*(2-0) + 0.5*(6-4) = 2
	gradFieldData := gradField.AsFloat32()
	if diff := gradFieldData[0] - 4; diff < -1e-5 || diff > 1e-5 {
		t.Errorf("dy gradient: expected 4, got %v", gradFieldData[0])
	}
	if diff := gradFieldData[4] - 2; diff < -1e-5 || diff > 1e-5 {
		t.Errorf("dx gradient: expected 2, got %v", gradFieldData[4])
	}
}

func TestGridSampleBackward_ClampedFieldGradZero(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := range inputData {
		inputData[i] = float32(i)
	}

	// Push every sample far past the border.
	field, _ := tensor.NewRaw(tensor.Shape{1, 2, 3, 3}, tensor.Float32, tensor.CPU)
	fieldData := field.AsFloat32()
	for i := range fieldData {
		fieldData[i] = 100
	}

	gradOutput, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	gradOutputData := gradOutput.AsFloat32()
	for i := range gradOutputData {
		gradOutputData[i] = 1
	}

	_, gradField := backend.GridSampleBackward(gradOutput, input, field)

	for i, g := range gradField.AsFloat32() {
		if g != 0 {
			t.Errorf("Clamped field gradient at %d: expected 0, got %v", i, g)
		}
	}
}

// TestGridSampleBackward_MatchesMockBackend verifies CPU gradients match MockBackend.
func TestGridSampleBackward_MatchesMockBackend(t *testing.T) {
	cpuBackend := New()
	mockBackend := tensor.NewMockBackend()

	input, _ := tensor.NewRaw(tensor.Shape{2, 2, 4, 5}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := range inputData {
		inputData[i] = float32(i%9) * 0.3
	}

	field, _ := tensor.NewRaw(tensor.Shape{2, 2, 4, 5}, tensor.Float32, tensor.CPU)
	fieldData := field.AsFloat32()
	for i := range fieldData {
		fieldData[i] = float32(i%7)*0.4 - 1.2
	}

	gradOutput, _ := tensor.NewRaw(tensor.Shape{2, 2, 4, 5}, tensor.Float32, tensor.CPU)
	gradOutputData := gradOutput.AsFloat32()
	for i := range gradOutputData {
		gradOutputData[i] = float32(i%5) * 0.25
	}

	cpuGradInput, cpuGradField := cpuBackend.GridSampleBackward(gradOutput, input, field)
	mockGradInput, mockGradField := mockBackend.GridSampleBackward(gradOutput, input, field)

	compare := func(name string, got, want *tensor.RawTensor) {
		t.Helper()
		gotData := got.AsFloat32()
		wantData := want.AsFloat32()
		for i := range gotData {
			diff := gotData[i] - wantData[i]
			if diff < -0.001 || diff > 0.001 {
				t.Errorf("%s mismatch at index %d: CPU=%.4f, Mock=%.4f", name, i, gotData[i], wantData[i])
			}
		}
	}
	compare("gradInput", cpuGradInput, mockGradInput)
	compare("gradField", cpuGradField, mockGradField)
}
