package nn

import (
	"testing"

	"github.com/born-ml/cellwarp/internal/autodiff"
	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// TestConv2D_Creation tests Conv2D layer creation.
func TestConv2D_Creation(t *testing.T) {
	backend := cpu.New()

	// Create Conv2D: 6 -> 16 channels, 3x3 kernel
	conv := NewConv2D(6, 16, 3, 3, 1, 1, true, backend)

	if conv.InChannels() != 6 {
		t.Errorf("Expected in_channels=6, got %d", conv.InChannels())
	}
	if conv.OutChannels() != 16 {
		t.Errorf("Expected out_channels=16, got %d", conv.OutChannels())
	}

	kernelSize := conv.KernelSize()
	if kernelSize[0] != 3 || kernelSize[1] != 3 {
		t.Errorf("Expected kernel_size=[3,3], got %v", kernelSize)
	}

	// Check weight shape: [16, 6, 3, 3]
	weightShape := conv.weight.Tensor().Shape()
	expectedShape := tensor.Shape{16, 6, 3, 3}
	if !weightShape.Equal(expectedShape) {
		t.Errorf("Weight shape: expected %v, got %v", expectedShape, weightShape)
	}

	// Check bias shape: [16]
	biasShape := conv.bias.Tensor().Shape()
	expectedBiasShape := tensor.Shape{16}
	if !biasShape.Equal(expectedBiasShape) {
		t.Errorf("Bias shape: expected %v, got %v", expectedBiasShape, biasShape)
	}

	// Check parameters
	params := conv.Parameters()
	if len(params) != 2 {
		t.Errorf("Expected 2 parameters (weight, bias), got %d", len(params))
	}
}

// TestConv2D_ForwardShape tests forward pass output shape.
func TestConv2D_ForwardShape(t *testing.T) {
	backend := cpu.New()

	// Conv2D: 6 -> 16 channels, 3x3 kernel, stride=1, padding=1
	conv := NewConv2D(6, 16, 3, 3, 1, 1, true, backend)

	// Input: [2, 6, 32, 32] (batch of 2 concatenated image pairs)
	input := tensor.Zeros[float32](tensor.Shape{2, 6, 32, 32}, backend)

	// Forward
	output := conv.Forward(input)

	// Output shape should be [2, 16, 32, 32]
	// out_h = (32 + 2*1 - 3) / 1 + 1 = 32
	expectedShape := tensor.Shape{2, 16, 32, 32}
	if !output.Shape().Equal(expectedShape) {
		t.Errorf("Output shape: expected %v, got %v", expectedShape, output.Shape())
	}
}

// TestConv2D_ForwardValues tests forward pass with known values.
func TestConv2D_ForwardValues(t *testing.T) {
	backend := cpu.New()

	// Small test case: 1 -> 1 channel, 2x2 kernel
	conv := NewConv2D(1, 1, 2, 2, 1, 0, false, backend) // no bias

	// Set weight to known values
	weightData := conv.weight.Tensor().Raw().AsFloat32()
	weightData[0], weightData[1] = 1.0, 2.0
	weightData[2], weightData[3] = 3.0, 4.0

	// Input: [1, 1, 3, 3] with values 1-9
	input := tensor.Zeros[float32](tensor.Shape{1, 1, 3, 3}, backend)
	inputData := input.Raw().AsFloat32()
	for i := 0; i < 9; i++ {
		inputData[i] = float32(i + 1)
	}

	// Forward
	output := conv.Forward(input)

	// Expected output (manual computation):
	// [0,0]: 1*1 + 2*2 + 3*4 + 4*5 = 1+4+12+20 = 37
	// [0,1]: 1*2 + 2*3 + 3*5 + 4*6 = 2+6+15+24 = 47
	// [1,0]: 1*4 + 2*5 + 3*7 + 4*8 = 4+10+21+32 = 67
	// [1,1]: 1*5 + 2*6 + 3*8 + 4*9 = 5+12+24+36 = 77
	expected := []float32{37, 47, 67, 77}

	outputData := output.Raw().AsFloat32()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, outputData[i])
		}
	}
}

// TestConv2D_WithBias tests forward pass with bias.
func TestConv2D_WithBias(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(1, 2, 2, 2, 1, 0, true, backend)

	// Set weights to ones
	weightData := conv.weight.Tensor().Raw().AsFloat32()
	for i := range weightData {
		weightData[i] = 1.0
	}

	// Set biases to [10, 20]
	biasData := conv.bias.Tensor().Raw().AsFloat32()
	biasData[0], biasData[1] = 10.0, 20.0

	// Input: [1, 1, 2, 2] all ones
	input := tensor.Ones[float32](tensor.Shape{1, 1, 2, 2}, backend)

	// Forward
	output := conv.Forward(input)

	// Without bias: 1+1+1+1 = 4
	// With bias channel 0: 4 + 10 = 14
	// With bias channel 1: 4 + 20 = 24
	outputData := output.Raw().AsFloat32()

	if outputData[0] != 14.0 {
		t.Errorf("Output channel 0: expected 14, got %.1f", outputData[0])
	}
	if outputData[1] != 24.0 {
		t.Errorf("Output channel 1: expected 24, got %.1f", outputData[1])
	}
}

// TestConv2D_ComputeOutputSize tests output size computation.
func TestConv2D_ComputeOutputSize(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		kernelH, kernelW     int
		stride, padding      int
		inputH, inputW       int
		expectedH, expectedW int
	}{
		{3, 3, 1, 1, 32, 32, 32, 32}, // same padding, patch-sized input
		{5, 5, 1, 0, 32, 32, 28, 28}, // valid convolution
		{3, 3, 2, 0, 32, 32, 15, 15}, // stride 2
		{2, 2, 2, 0, 4, 4, 2, 2},     // simple downsample
	}

	for _, tt := range tests {
		conv := NewConv2D(1, 1, tt.kernelH, tt.kernelW, tt.stride, tt.padding, false, backend)
		outSize := conv.ComputeOutputSize(tt.inputH, tt.inputW)

		if outSize[0] != tt.expectedH || outSize[1] != tt.expectedW {
			t.Errorf("ComputeOutputSize(kernel=%dx%d, stride=%d, padding=%d, input=%dx%d): expected [%d,%d], got %v",
				tt.kernelH, tt.kernelW, tt.stride, tt.padding, tt.inputH, tt.inputW,
				tt.expectedH, tt.expectedW, outSize)
		}
	}
}

// TestConv2D_StateDictRoundTrip tests saving and loading parameters by name.
func TestConv2D_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()

	src := NewConv2D(2, 3, 3, 3, 1, 1, true, backend)
	dst := NewConv2D(2, 3, 3, 3, 1, 1, true, backend)

	// Make source weights distinctive
	srcWeight := src.weight.Tensor().Raw().AsFloat32()
	for i := range srcWeight {
		srcWeight[i] = float32(i) * 0.01
	}
	srcBias := src.bias.Tensor().Raw().AsFloat32()
	for i := range srcBias {
		srcBias[i] = float32(i) + 1.0
	}

	stateDict := src.StateDict()
	if len(stateDict) != 2 {
		t.Fatalf("Expected 2 state dict entries, got %d", len(stateDict))
	}

	if err := dst.LoadStateDict(stateDict); err != nil {
		t.Fatalf("LoadStateDict failed: %v", err)
	}

	dstWeight := dst.weight.Tensor().Raw().AsFloat32()
	for i := range srcWeight {
		if dstWeight[i] != srcWeight[i] {
			t.Fatalf("Weight[%d]: expected %v, got %v", i, srcWeight[i], dstWeight[i])
		}
	}
	dstBias := dst.bias.Tensor().Raw().AsFloat32()
	for i := range srcBias {
		if dstBias[i] != srcBias[i] {
			t.Fatalf("Bias[%d]: expected %v, got %v", i, srcBias[i], dstBias[i])
		}
	}

	// Shape mismatch must be rejected
	other := NewConv2D(2, 4, 3, 3, 1, 1, true, backend)
	if err := other.LoadStateDict(stateDict); err == nil {
		t.Error("Expected shape mismatch error, got nil")
	}
}

// TestConv2D_IntegrationWithAutodiff tests Conv2D with autodiff backend.
func TestConv2D_IntegrationWithAutodiff(t *testing.T) {
	cpuBackend := cpu.New()
	backend := autodiff.New(cpuBackend)

	// Start recording
	backend.Tape().StartRecording()

	// Create Conv2D layer
	conv := NewConv2D(1, 2, 3, 3, 1, 0, true, backend)

	// Input: [1, 1, 5, 5]
	input := tensor.Randn[float32](tensor.Shape{1, 1, 5, 5}, backend)

	// Forward
	output := conv.Forward(input)

	// Check output shape: [1, 2, 3, 3]
	expectedShape := tensor.Shape{1, 2, 3, 3}
	if !output.Shape().Equal(expectedShape) {
		t.Errorf("Output shape: expected %v, got %v", expectedShape, output.Shape())
	}

	// Create output gradient (all ones for sum loss)
	outputGrad, _ := tensor.NewRaw(output.Shape(), tensor.Float32, backend.Device())
	outputGradData := outputGrad.AsFloat32()
	for i := range outputGradData {
		outputGradData[i] = 1.0
	}

	// Backward pass
	grads := backend.Tape().Backward(outputGrad, backend)

	// Check that weight and bias gradients exist
	weightGrad, hasWeightGrad := grads[conv.weight.Tensor().Raw()]
	biasGrad, hasBiasGrad := grads[conv.bias.Tensor().Raw()]

	if !hasWeightGrad {
		t.Error("No gradient for weight!")
	}
	if !hasBiasGrad {
		t.Error("No gradient for bias!")
		return
	}

	// Verify gradients are non-zero
	weightGradData := weightGrad.AsFloat32()
	biasGradData := biasGrad.AsFloat32()

	weightNonZero := 0
	for _, g := range weightGradData {
		if g != 0.0 {
			weightNonZero++
		}
	}

	biasNonZero := 0
	for _, g := range biasGradData {
		if g != 0.0 {
			biasNonZero++
		}
	}

	if weightNonZero == 0 {
		t.Error("Weight gradient has all zeros!")
	}
	if biasNonZero == 0 {
		t.Error("Bias gradient has all zeros!")
	}

	t.Logf("Weight gradient: %d/%d non-zero", weightNonZero, len(weightGradData))
	t.Logf("Bias gradient: %d/%d non-zero", biasNonZero, len(biasGradData))
}
