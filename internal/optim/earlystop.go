package optim

import "math"

// EarlyStopping stops training once a monitored metric stops improving.
//
// Lower is better (the intended metric is validation loss). A metric
// improves when it drops below the best seen value by more than MinDelta;
// after Patience consecutive epochs without improvement, Step reports that
// training should stop. A NaN metric stops immediately.
//
// Example:
//
//	stopper := optim.NewEarlyStopping(optim.EarlyStoppingConfig{Patience: 20})
//
//	for epoch := range epochs {
//	    valLoss := validate(model)
//	    if stopper.Step(valLoss) {
//	        break
//	    }
//	}
type EarlyStopping struct {
	patience  int
	minDelta  float32
	best      float32
	started   bool
	badEpochs int
}

// EarlyStoppingConfig holds configuration for EarlyStopping.
type EarlyStoppingConfig struct {
	Patience int     // Epochs without improvement before stopping (default: 10)
	MinDelta float32 // Minimum drop that counts as improvement (default: 0)
}

// NewEarlyStopping creates a new early stopping tracker.
func NewEarlyStopping(config EarlyStoppingConfig) *EarlyStopping {
	// Set defaults
	if config.Patience == 0 {
		config.Patience = 10
	}

	return &EarlyStopping{
		patience: config.Patience,
		minDelta: config.MinDelta,
	}
}

// Step records one epoch's metric and returns true when training should
// stop.
//
// The first call establishes the baseline and never stops.
func (e *EarlyStopping) Step(metric float32) bool {
	if math.IsNaN(float64(metric)) {
		return true
	}

	if !e.started {
		e.started = true
		e.best = metric
		return false
	}

	if metric < e.best-e.minDelta {
		e.best = metric
		e.badEpochs = 0
	} else {
		e.badEpochs++
	}

	return e.badEpochs >= e.patience
}

// Best returns the best metric seen so far.
//
// The boolean is false before the first Step call.
func (e *EarlyStopping) Best() (float32, bool) {
	return e.best, e.started
}

// BadEpochs returns the number of consecutive epochs without improvement.
func (e *EarlyStopping) BadEpochs() int {
	return e.badEpochs
}
