// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training neural networks.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - AdamW: Adam with decoupled weight decay
//   - CosineAnnealingLR: cosine learning rate schedule
//   - EarlyStopping: stop training when validation loss plateaus
//   - Optimizer interface for custom optimizers
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/cellwarp/autodiff"
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	    "github.com/born-ml/cellwarp/nn"
//	    "github.com/born-ml/cellwarp/optim"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//	    model := nn.NewConv2D(6, 16, 3, 3, 1, 1, true, backend)
//
//	    // Create optimizer
//	    optimizer := optim.NewAdamW(
//	        model.Parameters(),
//	        optim.AdamWConfig{LR: 1e-4},
//	        backend,
//	    )
//
//	    // Training loop
//	    for epoch := 0; epoch < 10; epoch++ {
//	        // Forward pass
//	        loss := criterion.Forward(model.Forward(x), y)
//
//	        // Backward pass
//	        optimizer.ZeroGrad()
//	        grads := autodiff.Backward(loss, backend)
//	        optimizer.Step(grads)
//	        backend.Tape().Clear()
//	    }
//	}
//
// # Optimizers
//
// SGD (Stochastic Gradient Descent):
//
//	optimizer := optim.NewSGD(
//	    model.Parameters(),
//	    optim.SGDConfig{
//	        LR:       0.01,
//	        Momentum: 0.9,
//	    },
//	    backend,
//	)
//
// Adam (Adaptive Moment Estimation):
//
//	optimizer := optim.NewAdam(
//	    model.Parameters(),
//	    optim.AdamConfig{
//	        LR:    0.001,
//	        Betas: [2]float32{0.9, 0.999},
//	        Eps:   1e-8,
//	    },
//	    backend,
//	)
//
// AdamW (decoupled weight decay, the registration trainer's default):
//
//	optimizer := optim.NewAdamW(
//	    model.Parameters(),
//	    optim.AdamWConfig{LR: 1e-4, WeightDecay: 0.01},
//	    backend,
//	)
//
// # Scheduling and Stopping
//
// Anneal the learning rate over a run and stop when validation loss stalls:
//
//	scheduler := optim.NewCosineAnnealingLR(optimizer, optim.CosineAnnealingConfig{TMax: 50})
//	stopper := optim.NewEarlyStopping(optim.EarlyStoppingConfig{Patience: 20})
//
//	for epoch := 0; epoch < maxEpochs; epoch++ {
//	    trainEpoch(model, optimizer)
//	    scheduler.Step()
//	    if stopper.Step(validate(model)) {
//	        break
//	    }
//	}
package optim
