// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/tensor"
)

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a new 2D convolutional layer with Xavier initialization.
//
// Example:
//
//	backend := cpu.New()
//	conv := nn.NewConv2D(6, 16, 3, 3, 1, 1, true, backend)
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend)
}

// MaxPool2D represents a 2D max pooling layer.
type MaxPool2D[B tensor.Backend] = nn.MaxPool2D[B]

// NewMaxPool2D creates a new 2D max pooling layer.
//
// Example:
//
//	pool := nn.NewMaxPool2D(2, 2, backend)
func NewMaxPool2D[B tensor.Backend](kernelSize, stride int, backend B) *MaxPool2D[B] {
	return nn.NewMaxPool2D(kernelSize, stride, backend)
}

// Upsample2D represents a nearest-neighbor upsampling layer.
type Upsample2D[B tensor.Backend] = nn.Upsample2D[B]

// NewUpsample2D creates a new upsampling layer with an integer scale factor.
//
// Example:
//
//	up := nn.NewUpsample2D(2, backend) // doubles height and width
func NewUpsample2D[B tensor.Backend](scale int, backend B) *Upsample2D[B] {
	return nn.NewUpsample2D(scale, backend)
}

// Activation functions

// ReLU represents a ReLU activation function.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a new ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Loss functions

// MSELoss represents mean squared error loss.
type MSELoss[B tensor.Backend] = nn.MSELoss[B]

// NewMSELoss creates a new MSE loss function.
//
// Example:
//
//	criterion := nn.NewMSELoss(backend)
//	loss := criterion.Forward(warped, target)
func NewMSELoss[B tensor.Backend](backend B) *MSELoss[B] {
	return nn.NewMSELoss(backend)
}

// Sequential

// Sequential represents a sequential container of modules.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a new sequential model.
//
// Example:
//
//	backend := cpu.New()
//	model := nn.NewSequential[*cpu.CPUBackend](
//	    nn.NewConv2D(6, 16, 3, 3, 1, 1, true, backend),
//	    nn.NewReLU[*cpu.CPUBackend](),
//	    nn.NewConv2D(16, 4, 3, 3, 1, 1, true, backend),
//	)
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	converted := make([]nn.Module[B], len(modules))
	for i, m := range modules {
		converted[i] = m
	}
	return nn.NewSequential(converted...)
}

// Initialization functions

// Xavier initializes a tensor using Xavier/Glorot initialization.
//
// Example:
//
//	backend := cpu.New()
//	weights := nn.Xavier(54, 16, tensor.Shape{16, 6, 3, 3}, backend)
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, backend)
}

// Zeros initializes a tensor with zeros (for biases).
//
// Example:
//
//	backend := cpu.New()
//	bias := nn.Zeros(tensor.Shape{16}, backend)
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Zeros(shape, backend)
}

// Ones initializes a tensor with ones.
//
// Example:
//
//	backend := cpu.New()
//	scale := nn.Ones(tensor.Shape{16}, backend)
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Ones(shape, backend)
}

// Randn initializes a tensor with random values from N(0, 1).
//
// Example:
//
//	backend := cpu.New()
//	weights := nn.Randn(tensor.Shape{16, 6, 3, 3}, backend)
func Randn[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Randn(shape, backend)
}

// Checkpointing

// OptimizerState represents an optimizer that can save and load its state.
// Optimizers from the optim package implement this interface.
type OptimizerState = nn.OptimizerState

// Checkpoint represents a complete training state snapshot: model
// parameters, optimizer state, and training metadata.
type Checkpoint[B tensor.Backend] = nn.Checkpoint[B]

// SaveCheckpoint saves model and optimizer state to a .cwpt file.
//
// Example:
//
//	err := nn.SaveCheckpoint("checkpoint.cwpt", model, optimizer, epoch)
func SaveCheckpoint[B tensor.Backend](path string, model Module[B], optimizer OptimizerState, epoch int) error {
	return nn.SaveCheckpoint(path, model, optimizer, epoch)
}

// LoadCheckpoint loads a checkpoint from a .cwpt file into a pre-constructed
// model and optimizer. The model must have the same architecture that was
// saved. Pass a nil optimizer to restore model weights only.
//
// Example:
//
//	checkpoint, err := nn.LoadCheckpoint("checkpoint.cwpt", backend, model, optimizer)
//	startEpoch := checkpoint.Epoch + 1
func LoadCheckpoint[B tensor.Backend](
	path string,
	backend B,
	model Module[B],
	optimizer OptimizerState,
) (*Checkpoint[B], error) {
	return nn.LoadCheckpoint(path, backend, model, optimizer)
}
