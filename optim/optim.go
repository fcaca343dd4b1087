// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/internal/optim"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the base configuration for optimizers.
type Config = optim.Config

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum.
type SGD[B tensor.Backend] = optim.SGD[B]

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	backend := cpu.New()
//	model := nn.NewConv2D(6, 16, 3, 3, 1, 1, true, backend)
//	optimizer := optim.NewSGD(
//	    model.Parameters(),
//	    optim.SGDConfig{
//	        LR:       0.01,
//	        Momentum: 0.9,
//	    },
//	    backend,
//	)
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	return optim.NewSGD(params, config, backend)
}

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam optimizer.
type Adam[B tensor.Backend] = optim.Adam[B]

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
//
// Example:
//
//	backend := cpu.New()
//	model := nn.NewConv2D(6, 16, 3, 3, 1, 1, true, backend)
//	optimizer := optim.NewAdam(
//	    model.Parameters(),
//	    optim.AdamConfig{
//	        LR:    0.001,
//	        Betas: [2]float32{0.9, 0.999},
//	        Eps:   1e-8,
//	    },
//	    backend,
//	)
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	return optim.NewAdam(params, config, backend)
}

// AdamW (Adam with decoupled weight decay)

// AdamW represents the AdamW optimizer.
type AdamW[B tensor.Backend] = optim.AdamW[B]

// AdamWConfig contains configuration for AdamW optimizer.
type AdamWConfig = optim.AdamWConfig

// NewAdamW creates a new AdamW optimizer. This is the optimizer the cyclic
// registration trainer uses by default.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	optimizer := optim.NewAdamW(
//	    model.Parameters(),
//	    optim.AdamWConfig{LR: 1e-4},
//	    backend,
//	)
func NewAdamW[B tensor.Backend](params []*nn.Parameter[B], config AdamWConfig, backend B) *AdamW[B] {
	return optim.NewAdamW(params, config, backend)
}

// Learning rate scheduling

// LROptimizer is the surface a learning rate scheduler drives.
type LROptimizer = optim.LROptimizer

// CosineAnnealingLR anneals the learning rate along a cosine curve.
type CosineAnnealingLR = optim.CosineAnnealingLR

// CosineAnnealingConfig contains configuration for CosineAnnealingLR.
type CosineAnnealingConfig = optim.CosineAnnealingConfig

// NewCosineAnnealingLR creates a cosine annealing scheduler for the given
// optimizer. Step once per epoch, after the optimizer steps for that epoch.
//
// Example:
//
//	scheduler := optim.NewCosineAnnealingLR(optimizer, optim.CosineAnnealingConfig{TMax: 50})
//	for epoch := 0; epoch < epochs; epoch++ {
//	    trainEpoch(model, optimizer)
//	    scheduler.Step()
//	}
func NewCosineAnnealingLR(optimizer LROptimizer, config CosineAnnealingConfig) *CosineAnnealingLR {
	return optim.NewCosineAnnealingLR(optimizer, config)
}

// Early stopping

// EarlyStopping stops training once a monitored metric stops improving.
type EarlyStopping = optim.EarlyStopping

// EarlyStoppingConfig contains configuration for EarlyStopping.
type EarlyStoppingConfig = optim.EarlyStoppingConfig

// NewEarlyStopping creates a new early stopping tracker. Lower metric
// values are treated as better.
//
// Example:
//
//	stopper := optim.NewEarlyStopping(optim.EarlyStoppingConfig{Patience: 20})
//	if stopper.Step(valLoss) {
//	    break
//	}
func NewEarlyStopping(config EarlyStoppingConfig) *EarlyStopping {
	return optim.NewEarlyStopping(config)
}
