// Package nn implements the neural network building blocks the warp field
// predictors are assembled from.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking
//   - Conv2D, MaxPool2D, Upsample2D: Spatial layers
//   - ReLU activation and MSELoss
//   - Sequential: Container for stacking layers
//   - Checkpoint: Training state snapshots (model + optimizer)
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//   - StateDict / LoadStateDict: Serialize and restore parameters by name
//
// Modules can be composed to build complex architectures:
//
//	encoder := nn.NewSequential(
//	    nn.NewConv2D(6, 16, 3, 3, 1, 1, true, backend),
//	    nn.NewReLU[Backend](),
//	    nn.NewMaxPool2D[Backend](2, 2, backend),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	//
	// The input tensor should have the appropriate shape for this module.
	// The spatial layers (Conv2D, MaxPool2D, Upsample2D) expect
	// [batch, channels, height, width].
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	//
	// This includes weights, biases, and any nested module parameters.
	// Returns an empty slice for modules without trainable parameters
	// (e.g., activation and pooling layers).
	Parameters() []*Parameter[B]

	// StateDict returns a map of parameter names to raw tensors.
	//
	// Container modules prefix nested parameter names so the mapping
	// stays unambiguous (e.g., "0.weight", "2.bias").
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores parameters from a state dictionary.
	//
	// Entries are matched by name; a missing entry or a shape mismatch
	// is an error. Modules without parameters accept any dict.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}
