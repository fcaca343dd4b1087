// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network layers and building blocks.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, MaxPool2D, Upsample2D
//   - Activations: ReLU
//   - Loss functions: MSELoss
//   - Utilities: Sequential, Module interface, Parameter
//   - Initialization: Xavier, Zeros, Ones, Randn
//   - Checkpointing: Checkpoint, SaveCheckpoint, LoadCheckpoint
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/cellwarp/nn"
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    // Build a small convolutional encoder
//	    model := nn.NewSequential[*cpu.CPUBackend](
//	        nn.NewConv2D(6, 16, 3, 3, 1, 1, true, backend),
//	        nn.NewReLU[*cpu.CPUBackend](),
//	        nn.NewConv2D(16, 4, 3, 3, 1, 1, true, backend),
//	    )
//
//	    // Forward pass on a [batch, channels, height, width] input
//	    output := model.Forward(input)
//	}
//
// # Layers
//
// Conv2D: 2D convolutional layer with im2col algorithm
//
//	conv := nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend)
//
// MaxPool2D: 2D max pooling layer
//
//	pool := nn.NewMaxPool2D(kernelSize, stride, backend)
//
// Upsample2D: nearest-neighbor upsampling layer
//
//	up := nn.NewUpsample2D(scale, backend)
//
// # Loss Functions
//
// MSELoss: Mean squared error, the reconstruction loss used by the
// cyclic registration trainer
//
//	criterion := nn.NewMSELoss(backend)
//	loss := criterion.Forward(warped, target)
//
// # Sequential Models
//
// Build models by composing layers:
//
//	model := nn.NewSequential[*cpu.CPUBackend](
//	    nn.NewConv2D(6, 32, 3, 3, 1, 1, true, backend),
//	    nn.NewReLU[*cpu.CPUBackend](),
//	    nn.NewMaxPool2D(2, 2, backend),
//	    nn.NewConv2D(32, 4, 3, 3, 1, 1, true, backend),
//	    nn.NewUpsample2D(2, backend),
//	)
//
// # Parameter Management
//
// Access model parameters for optimization:
//
//	params := model.Parameters()
//	for _, param := range params {
//	    fmt.Println(param.Name(), param.Tensor().Shape())
//	}
//
// # Checkpointing
//
// Save and restore full training state:
//
//	err := nn.SaveCheckpoint("best.cwpt", model, optimizer, epoch)
//
//	checkpoint, err := nn.LoadCheckpoint("best.cwpt", backend, model, optimizer)
//	startEpoch := checkpoint.Epoch + 1
package nn
