package nn

import (
	"fmt"
	"strings"
	"time"

	"github.com/born-ml/cellwarp/internal/serialization"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// OptimizerState represents an optimizer that can save/load its state.
//
// This interface is used by checkpoints to serialize optimizer state
// without creating import cycles. Optimizers from the optim package
// implement this interface.
type OptimizerState interface {
	// StateDict returns the optimizer state for serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict loads optimizer state from serialization.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Checkpoint represents a complete training state snapshot.
//
// A checkpoint includes:
//   - Model parameters (weights and biases)
//   - Optimizer state (momentum buffers, Adam moments, etc.)
//   - Training metadata (epoch, step, loss)
//   - Custom metadata
//
// The cyclic registration trainer writes one whenever validation loss
// improves, so the best field predictor can be restored for inference
// and interrupted runs can resume.
//
// Example:
//
//	checkpoint := &nn.Checkpoint[cpu.Backend]{
//	    Model:     model,
//	    Optimizer: optimizer,
//	    Epoch:     10,
//	    Step:      5000,
//	    Loss:      0.123,
//	    Metadata:  map[string]any{"lr": 0.001, "batch_size": 32},
//	}
//	err := checkpoint.Save("checkpoint_epoch_10.cwpt")
//
// To resume training:
//
//	checkpoint, err := nn.LoadCheckpoint[cpu.Backend]("checkpoint.cwpt", backend, model, optimizer)
//	startEpoch := checkpoint.Epoch + 1
//
// Type parameter B must satisfy the tensor.Backend interface.
type Checkpoint[B tensor.Backend] struct {
	Model     Module[B]      // The neural network model
	Optimizer OptimizerState // The optimizer with its state
	Epoch     int            // Training epoch number
	Step      int64          // Training step number
	Loss      float64        // Loss value at this checkpoint
	Metadata  map[string]any // Additional training metadata
	CreatedAt time.Time      // When the checkpoint was created
}

// Save writes the checkpoint to a .cwpt file: model parameters, the
// optimizer state under an "optimizer." prefix, and the training
// metadata. Files are written as format v2, so a truncated or
// bit-flipped checkpoint fails at load instead of resuming a run with
// silently wrong weights.
func (c *Checkpoint[B]) Save(path string) (err error) {
	// Weights-only checkpoints have no optimizer.
	combined := make(map[string]*tensor.RawTensor)
	for name, raw := range c.Model.StateDict() {
		combined[name] = raw
	}
	if c.Optimizer != nil {
		for name, raw := range c.Optimizer.StateDict() {
			combined["optimizer."+name] = raw
		}
	}

	writer, err := serialization.NewCellwarpWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	header := serialization.Header{
		ModelType: "Checkpoint",
		Metadata:  make(map[string]string),
		CheckpointMeta: &serialization.CheckpointMeta{
			IsCheckpoint:    true,
			Epoch:           c.Epoch,
			Step:            c.Step,
			Loss:            c.Loss,
			OptimizerType:   getOptimizerType(c.Optimizer),
			OptimizerConfig: getOptimizerConfig(c.Optimizer),
			TrainingMeta:    c.Metadata,
		},
	}

	if err := writer.WriteStateDictWithHeaderV2(combined, header); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint loads a checkpoint from a .cwpt file.
//
// This restores:
//   - Model parameters into the provided model
//   - Optimizer state into the provided optimizer
//   - Training metadata
//
// The model and optimizer must be pre-constructed with the same architecture
// and configuration as when the checkpoint was saved.
//
// Parameters:
//   - path: File path to read checkpoint from
//   - backend: Backend to use for tensor operations
//   - model: Pre-constructed model (will be loaded into)
//   - optimizer: Pre-constructed optimizer (will be loaded into), or nil
//     to restore model weights only
//
// Returns the checkpoint with restored state, or an error if loading fails.
//
// Example:
//
//	// Create model and optimizer with same architecture
//	model := buildPredictor(backend)
//	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{LR: 0.001}, backend)
//
//	// Load checkpoint
//	checkpoint, err := nn.LoadCheckpoint("checkpoint.cwpt", backend, model, optimizer)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Resume training from checkpoint.Epoch + 1
//	for epoch := checkpoint.Epoch + 1; epoch < totalEpochs; epoch++ {
//	    // Training loop...
//	}
func LoadCheckpoint[B tensor.Backend](
	path string,
	backend B,
	model Module[B],
	optimizer OptimizerState,
) (ckpt *Checkpoint[B], err error) {
	reader, err := serialization.NewCellwarpReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	header := reader.Header()
	if header.CheckpointMeta == nil || !header.CheckpointMeta.IsCheckpoint {
		return nil, fmt.Errorf("file is not a checkpoint")
	}

	stateDict, err := reader.ReadStateDict(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to read state dict: %w", err)
	}

	// Split the combined dict back out by the "optimizer." prefix.
	modelStateDict := make(map[string]*tensor.RawTensor)
	optimizerStateDict := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if rest, ok := strings.CutPrefix(name, "optimizer."); ok {
			optimizerStateDict[rest] = raw
		} else {
			modelStateDict[name] = raw
		}
	}

	if err := model.LoadStateDict(modelStateDict); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	// Optimizer state is skipped for weights-only loads.
	if optimizer != nil {
		if err := optimizer.LoadStateDict(optimizerStateDict); err != nil {
			return nil, fmt.Errorf("failed to load optimizer state: %w", err)
		}
	}

	return &Checkpoint[B]{
		Model:     model,
		Optimizer: optimizer,
		Epoch:     header.CheckpointMeta.Epoch,
		Step:      header.CheckpointMeta.Step,
		Loss:      header.CheckpointMeta.Loss,
		Metadata:  header.CheckpointMeta.TrainingMeta,
		CreatedAt: header.CreatedAt,
	}, nil
}

// SaveCheckpoint is a convenience function to save a checkpoint.
//
// This is equivalent to creating a Checkpoint struct and calling Save(),
// but with a simpler API for common use cases.
//
// Parameters:
//   - path: File path to write checkpoint to
//   - model: The model to save
//   - optimizer: The optimizer to save
//   - epoch: Current training epoch
//
// Returns an error if saving fails.
//
// Example:
//
//	err := nn.SaveCheckpoint("checkpoint.cwpt", model, optimizer, epoch)
func SaveCheckpoint[B tensor.Backend](
	path string,
	model Module[B],
	optimizer OptimizerState,
	epoch int,
) error {
	checkpoint := &Checkpoint[B]{
		Model:     model,
		Optimizer: optimizer,
		Epoch:     epoch,
		Step:      0,
		Loss:      0.0,
		Metadata:  nil,
		CreatedAt: time.Now().UTC(),
	}
	return checkpoint.Save(path)
}

// getOptimizerType returns a string identifier for the optimizer type.
func getOptimizerType(_ OptimizerState) string {
	// We can't determine type without importing optim
	// So we'll just return a generic type
	return "Optimizer"
}

// getOptimizerConfig extracts optimizer configuration.
func getOptimizerConfig(opt OptimizerState) map[string]any {
	if opt == nil {
		return nil
	}
	config := make(map[string]any)
	config["lr"] = opt.GetLR()
	return config
}
