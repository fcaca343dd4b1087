package optim

import "math"

// LROptimizer is the surface a learning rate scheduler drives.
//
// All optimizers in this package implement it.
type LROptimizer interface {
	GetLR() float32
	SetLR(lr float32)
}

// CosineAnnealingLR anneals the learning rate along a cosine curve.
//
// After t scheduler steps the learning rate is:
//
//	lr_t = eta_min + (base_lr - eta_min) * (1 + cos(pi * t / t_max)) / 2
//
// where base_lr is the optimizer's learning rate at construction time.
// The rate reaches eta_min after t_max steps and rises back afterwards
// (the curve has period 2 * t_max); this implements only the annealing
// part of SGDR, not the warm restarts.
//
// Step once per epoch, after the optimizer steps for that epoch:
//
//	scheduler := optim.NewCosineAnnealingLR(optimizer, optim.CosineAnnealingConfig{TMax: 5})
//
//	for epoch := range epochs {
//	    trainEpoch(model, optimizer)
//	    scheduler.Step()
//	}
//
// Reference: "SGDR: Stochastic Gradient Descent with Warm Restarts"
// (Loshchilov & Hutter, 2016)
type CosineAnnealingLR struct {
	optimizer LROptimizer
	baseLR    float32
	etaMin    float32
	tMax      int
	lastEpoch int
}

// CosineAnnealingConfig holds configuration for CosineAnnealingLR.
type CosineAnnealingConfig struct {
	TMax   int     // Steps until the rate reaches EtaMin (default: 5)
	EtaMin float32 // Minimum learning rate (default: 0)
}

// NewCosineAnnealingLR creates a cosine annealing scheduler for the given
// optimizer.
//
// The optimizer's learning rate at the time of this call becomes the base
// rate the schedule anneals from.
func NewCosineAnnealingLR(optimizer LROptimizer, config CosineAnnealingConfig) *CosineAnnealingLR {
	// Set defaults
	if config.TMax == 0 {
		config.TMax = 5
	}

	return &CosineAnnealingLR{
		optimizer: optimizer,
		baseLR:    optimizer.GetLR(),
		etaMin:    config.EtaMin,
		tMax:      config.TMax,
		lastEpoch: 0,
	}
}

// Step advances the schedule by one epoch and updates the optimizer's
// learning rate.
func (s *CosineAnnealingLR) Step() {
	s.lastEpoch++

	cosine := math.Cos(math.Pi * float64(s.lastEpoch) / float64(s.tMax))
	lr := s.etaMin + (s.baseLR-s.etaMin)*float32(1.0+cosine)/2.0

	s.optimizer.SetLR(lr)
}

// GetLastLR returns the learning rate set by the most recent Step call,
// or the base rate if Step has not been called yet.
func (s *CosineAnnealingLR) GetLastLR() float32 {
	return s.optimizer.GetLR()
}

// LastEpoch returns the number of Step calls so far.
func (s *CosineAnnealingLR) LastEpoch() int {
	return s.lastEpoch
}
