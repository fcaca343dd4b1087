package registration

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pbnjay/memory"
	"github.com/valyala/fastrand"

	"github.com/born-ml/cellwarp/internal/autodiff"
	"github.com/born-ml/cellwarp/internal/metrics"
	"github.com/born-ml/cellwarp/internal/model"
	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/internal/optim"
	"github.com/born-ml/cellwarp/internal/tensor"
	"github.com/born-ml/cellwarp/internal/warp"
)

// TrainConfig tunes the cyclic-registration training loop. Zero values
// select the defaults.
type TrainConfig struct {
	BatchSize    int     // samples per step (default: 8, clamped to memory)
	MaxEpochs    int     // (default: 50)
	Patience     int     // epochs without val improvement before stopping (default: 50)
	LearningRate float32 // AdamW base rate (default: 1e-3)
	CosineTMax   int     // cosine annealing period in epochs (default: 5)

	// Seed drives train-set shuffling and the strong-pairing shuffle. Zero
	// leaves the sequence unseeded.
	Seed int

	// Strong pairs each unannotated view with the annotated view of a
	// randomly drawn batch neighbor instead of its own subject.
	Strong bool

	// CheckpointPath receives the model and optimizer state every time the
	// validation loss improves. Empty disables checkpointing.
	CheckpointPath string

	// Snapshotter receives intermediate warps during validation,
	// SnapshotsPerEpoch times per epoch (default: 2). Nil disables.
	Snapshotter       Snapshotter
	SnapshotsPerEpoch int

	// TargetHeight, TargetWidth and NumFilters size the per-sample memory
	// estimate used to clamp BatchSize (defaults: 32, 32, 16).
	TargetHeight int
	TargetWidth  int
	NumFilters   int

	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// withDefaults fills zero fields with the default loop settings.
func (c TrainConfig) withDefaults() TrainConfig {
	if c.BatchSize == 0 {
		c.BatchSize = 8
	}
	if c.MaxEpochs == 0 {
		c.MaxEpochs = 50
	}
	if c.Patience == 0 {
		c.Patience = 50
	}
	if c.LearningRate == 0 {
		c.LearningRate = 1e-3
	}
	if c.CosineTMax == 0 {
		c.CosineTMax = 5
	}
	if c.SnapshotsPerEpoch == 0 {
		c.SnapshotsPerEpoch = 2
	}
	if c.TargetHeight == 0 {
		c.TargetHeight = 32
	}
	if c.TargetWidth == 0 {
		c.TargetWidth = 32
	}
	if c.NumFilters == 0 {
		c.NumFilters = 16
	}
	if c.Out == nil {
		c.Out = io.Discard
	}
	return c
}

// PhaseStats aggregates one phase (train or validation) of one epoch.
// Metric names the per-sample label metric: dice for binary labels, l1 for
// continuous ones.
type PhaseStats struct {
	Loss   float64
	Ref    metrics.Summary // annotated vs unannotated label, the pre-warp baseline
	Seg    metrics.Summary // predicted vs unannotated label
	Metric string
}

// EpochStats is one epoch's train and validation results. LR is the
// learning rate the epoch ran with.
type EpochStats struct {
	Epoch int
	Train PhaseStats
	Val   PhaseStats
	LR    float32
}

// History is the full training record Fit returns.
type History struct {
	Epochs      []EpochStats
	BestEpoch   int
	BestValLoss float64
}

// Trainer drives cyclic-registration training of a warp predictor.
//
// Each step stacks a batch of view pairs, predicts forward and reverse
// displacement fields, and minimizes MSE(warp(unann, fwd), ann) +
// MSE(warp(warp(unann, fwd), rev), unann). Label transfer through the
// reverse field is tracked as a metric only; no label term enters the loss.
type Trainer[B tensor.Backend] struct {
	backend   *autodiff.AutodiffBackend[B]
	predictor model.WarpPredictor[*autodiff.AutodiffBackend[B]]
	optimizer *optim.AdamW[*autodiff.AutodiffBackend[B]]
	scheduler *optim.CosineAnnealingLR
	stopper   *optim.EarlyStopping
	rng       fastrand.RNG
	cfg       TrainConfig
	out       io.Writer
}

// NewTrainer wires a predictor to an AdamW optimizer with cosine annealing
// and early stopping. The batch size is clamped so one batch's working set
// fits the memory budget.
func NewTrainer[B tensor.Backend](
	predictor model.WarpPredictor[*autodiff.AutodiffBackend[B]],
	backend *autodiff.AutodiffBackend[B],
	cfg TrainConfig,
) (*Trainer[B], error) {
	if predictor == nil {
		return nil, errors.New("registration: nil predictor")
	}
	cfg = cfg.withDefaults()

	sampleBytes := EstimateSampleBytes(cfg.TargetHeight, cfg.TargetWidth, cfg.NumFilters)
	if fit := ClampBatchSize(cfg.BatchSize, sampleBytes); fit < cfg.BatchSize {
		fmt.Fprintf(cfg.Out, "Batch size %d exceeds the memory budget, using %d\n", cfg.BatchSize, fit)
		cfg.BatchSize = fit
	}

	optimizer := optim.NewAdamW(predictor.Parameters(), optim.AdamWConfig{LR: cfg.LearningRate}, backend)
	t := &Trainer[B]{
		backend:   backend,
		predictor: predictor,
		optimizer: optimizer,
		scheduler: optim.NewCosineAnnealingLR(optimizer, optim.CosineAnnealingConfig{TMax: cfg.CosineTMax}),
		stopper:   optim.NewEarlyStopping(optim.EarlyStoppingConfig{Patience: cfg.Patience}),
		cfg:       cfg,
		out:       cfg.Out,
	}
	if cfg.Seed != 0 {
		t.rng.Seed(uint32(cfg.Seed))
	}
	return t, nil
}

// Fit trains until MaxEpochs or early stopping and returns the epoch
// history. The checkpoint at CheckpointPath always holds the best
// validation model seen so far.
func (t *Trainer[B]) Fit(train, val Dataset) (*History, error) {
	if train == nil || train.Len() == 0 {
		return nil, errors.New("registration: empty training set")
	}
	if val == nil || val.Len() == 0 {
		return nil, errors.New("registration: empty validation set")
	}

	fmt.Fprintf(t.out, "Training on %d pairs, validating on %d, batch size %d\n",
		train.Len(), val.Len(), t.cfg.BatchSize)

	t.backend.Tape().StartRecording()
	defer t.backend.Tape().StopRecording()

	history := &History{BestValLoss: math.Inf(1)}
	for epoch := 1; epoch <= t.cfg.MaxEpochs; epoch++ {
		trainStats, err := t.runEpoch(train, epoch, true)
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		valStats, err := t.runEpoch(val, epoch, false)
		if err != nil {
			return history, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}

		lr := t.optimizer.GetLR()
		t.scheduler.Step()

		history.Epochs = append(history.Epochs, EpochStats{Epoch: epoch, Train: trainStats, Val: valStats, LR: lr})
		fmt.Fprintf(t.out, "Epoch %2d/%d: Train Loss=%.4f, Ref %s=%s, Seg %s=%s | Val Loss=%.4f, Ref=%s, Seg=%s, LR=%.6f\n",
			epoch, t.cfg.MaxEpochs,
			trainStats.Loss, trainStats.Metric, trainStats.Ref, trainStats.Metric, trainStats.Seg,
			valStats.Loss, valStats.Ref, valStats.Seg, lr)

		if valStats.Loss < history.BestValLoss {
			history.BestValLoss = valStats.Loss
			history.BestEpoch = epoch
			if t.cfg.CheckpointPath != "" {
				if err := t.saveCheckpoint(epoch, valStats.Loss); err != nil {
					return history, fmt.Errorf("checkpoint: %w", err)
				}
				fmt.Fprintf(t.out, "Validation loss improved to %.4f, checkpoint saved\n", valStats.Loss)
			}
		}

		if t.stopper.Step(float32(valStats.Loss)) {
			fmt.Fprintf(t.out, "Early stopping at epoch %d\n", epoch)
			break
		}
	}
	return history, nil
}

// runEpoch runs one pass over the dataset. The train pass shuffles sample
// order and updates weights; the validation pass runs without gradients
// and feeds the snapshotter.
func (t *Trainer[B]) runEpoch(ds Dataset, epoch int, train bool) (PhaseStats, error) {
	n := ds.Len()
	batchSize := min(t.cfg.BatchSize, n)
	numBatches := (n + batchSize - 1) / batchSize

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if train {
		t.shuffle(order)
	}

	snapshotEvery := 0
	if !train && t.cfg.Snapshotter != nil {
		snapshotEvery = max(1, numBatches/t.cfg.SnapshotsPerEpoch)
	}

	var lossSum float64
	var refVals, segVals []float64
	var metricName string
	for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
		start := batchIdx * batchSize
		end := min(start+batchSize, n)

		// Loading and stacking never contribute gradients; keep dataset ops
		// off the tape.
		var batch *Batch
		var batchErr error
		t.backend.NoGrad(func() {
			pairs := make([]*ViewPair, 0, end-start)
			for _, i := range order[start:end] {
				pair, err := ds.Pair(i)
				if err != nil {
					batchErr = fmt.Errorf("sample %d: %w", i, err)
					return
				}
				pairs = append(pairs, pair)
			}

			var perm []int
			if t.cfg.Strong {
				perm = t.permutation(len(pairs))
			}
			batch, batchErr = AssembleBatch(pairs, perm, t.backend)
		})
		if batchErr != nil {
			return PhaseStats{}, batchErr
		}
		if metricName == "" {
			metricName = batch.Kind.MetricName()
		}

		var out *batchOutputs
		var err error
		if train {
			out, err = t.trainBatch(batch)
		} else {
			out, err = t.evalBatch(batch)
		}
		if err != nil {
			return PhaseStats{}, err
		}

		lossSum += float64(out.loss.AsFloat32()[0])
		ref, seg, err := batchMetrics(batch, out.predLabel)
		if err != nil {
			return PhaseStats{}, err
		}
		refVals = append(refVals, ref...)
		segVals = append(segVals, seg...)

		if snapshotEvery > 0 && batchIdx%snapshotEvery == 0 {
			if err := t.cfg.Snapshotter.Snapshot(snapshotSample(batch, out, epoch, batchIdx)); err != nil {
				return PhaseStats{}, fmt.Errorf("snapshot: %w", err)
			}
		}
	}

	return PhaseStats{
		Loss:   lossSum / float64(numBatches),
		Ref:    metrics.Summarize(refVals),
		Seg:    metrics.Summarize(segVals),
		Metric: metricName,
	}, nil
}

// trainBatch runs forward, backward and one optimizer step, then clears
// the tape for the next batch.
func (t *Trainer[B]) trainBatch(batch *Batch) (*batchOutputs, error) {
	t.optimizer.ZeroGrad()

	out, err := t.forwardBatch(batch)
	if err != nil {
		return nil, err
	}

	outputGrad, err := tensor.NewRaw(tensor.Shape{}, tensor.Float32, t.backend.Device())
	if err != nil {
		return nil, err
	}
	outputGrad.AsFloat32()[0] = 1.0

	grads := t.backend.Tape().Backward(outputGrad, t.backend)
	t.optimizer.Step(grads)
	t.backend.Tape().Clear()
	return out, nil
}

// evalBatch runs the forward pass without recording.
func (t *Trainer[B]) evalBatch(batch *Batch) (*batchOutputs, error) {
	var out *batchOutputs
	var err error
	t.backend.NoGrad(func() {
		out, err = t.forwardBatch(batch)
	})
	return out, err
}

// batchOutputs carries one forward pass's raw results.
type batchOutputs struct {
	loss      *tensor.RawTensor // scalar
	warped    *tensor.RawTensor // [N,C,H,W], unannotated through the forward field
	cycled    *tensor.RawTensor // [N,C,H,W], warped back through the reverse field
	predLabel *tensor.RawTensor // [N,1,H,W], annotated label through the reverse field
}

// forwardBatch predicts the displacement fields and computes the cyclic
// loss. The label warp is metric-only and runs off the tape, so the loss
// Add stays the tape's last recorded op for Backward.
func (t *Trainer[B]) forwardBatch(batch *Batch) (*batchOutputs, error) {
	be := t.backend

	input := be.Cat([]*tensor.RawTensor{batch.Annotated, batch.Unannotated}, 1)
	pred := t.predictor.Forward(t.wrap(input))
	fwd, rev, err := warp.SplitField(pred)
	if err != nil {
		return nil, err
	}

	u2a, err := warp.Warp(t.wrap(batch.Unannotated), fwd)
	if err != nil {
		return nil, err
	}
	u2a2u, err := warp.Warp(u2a, rev)
	if err != nil {
		return nil, err
	}

	var predLabel *tensor.RawTensor
	var labelErr error
	be.NoGrad(func() {
		warpedLabel, werr := warp.Warp(t.wrap(batch.AnnotatedLabel), rev)
		if werr != nil {
			labelErr = werr
			return
		}
		predLabel = warpedLabel.Raw()
		if batch.Kind == LabelBinary {
			predLabel = be.Threshold(predLabel, 0.5)
		}
	})
	if labelErr != nil {
		return nil, labelErr
	}

	loss := be.Add(
		be.MSE(u2a.Raw(), batch.Annotated),
		be.MSE(u2a2u.Raw(), batch.Unannotated),
	)

	return &batchOutputs{
		loss:      loss,
		warped:    u2a.Raw(),
		cycled:    u2a2u.Raw(),
		predLabel: predLabel,
	}, nil
}

// batchMetrics computes the per-sample reference and segmentation metrics:
// dice for binary labels, mean absolute error for continuous ones.
func batchMetrics(batch *Batch, predLabel *tensor.RawTensor) (refVals, segVals []float64, err error) {
	metric := metrics.L1
	if batch.Kind == LabelBinary {
		metric = metrics.Dice
	}

	n := batch.Size()
	refVals = make([]float64, 0, n)
	segVals = make([]float64, 0, n)
	for s := 0; s < n; s++ {
		ann := sliceSample(batch.AnnotatedLabel, s)
		unann := sliceSample(batch.UnannotatedLabel, s)
		pred := sliceSample(predLabel, s)

		ref, err := metric(ann, unann)
		if err != nil {
			return nil, nil, err
		}
		seg, err := metric(pred, unann)
		if err != nil {
			return nil, nil, err
		}
		refVals = append(refVals, ref)
		segVals = append(segVals, seg)
	}
	return refVals, segVals, nil
}

// snapshotSample extracts the first sample of a batch for the snapshotter.
func snapshotSample(batch *Batch, out *batchOutputs, epoch, batchIdx int) SnapshotData {
	return SnapshotData{
		Epoch:            epoch,
		Index:            batchIdx,
		AnnotatedImage:   sliceSample(batch.Annotated, 0),
		UnannotatedImage: sliceSample(batch.Unannotated, 0),
		WarpedImage:      sliceSample(out.warped, 0),
		CycledImage:      sliceSample(out.cycled, 0),
		AnnotatedLabel:   sliceSample(batch.AnnotatedLabel, 0),
		UnannotatedLabel: sliceSample(batch.UnannotatedLabel, 0),
		PredictedLabel:   sliceSample(out.predLabel, 0),
	}
}

// saveCheckpoint writes the model and optimizer state.
func (t *Trainer[B]) saveCheckpoint(epoch int, valLoss float64) error {
	if dir := filepath.Dir(t.cfg.CheckpointPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	ckpt := nn.Checkpoint[*autodiff.AutodiffBackend[B]]{
		Model:     t.predictor,
		Optimizer: t.optimizer,
		Epoch:     epoch,
		Loss:      valLoss,
	}
	return ckpt.Save(t.cfg.CheckpointPath)
}

// wrap lifts a raw tensor into the typed tensor API on the trainer's
// backend.
func (t *Trainer[B]) wrap(raw *tensor.RawTensor) *tensor.Tensor[float32, *autodiff.AutodiffBackend[B]] {
	return tensor.New[float32, *autodiff.AutodiffBackend[B]](raw, t.backend)
}

// shuffle permutes the slice in place.
func (t *Trainer[B]) shuffle(order []int) {
	for i := len(order) - 1; i > 0; i-- {
		j := int(t.rng.Uint32n(uint32(i + 1)))
		order[i], order[j] = order[j], order[i]
	}
}

// permutation returns a random permutation of 0..n-1 for strong pairing.
func (t *Trainer[B]) permutation(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	t.shuffle(perm)
	return perm
}

// EstimateSampleBytes approximates the working-set bytes one sample needs
// during a training step. Encoder activations dominate: the first level
// holds filters feature maps of H*W float32 values, deeper levels halve
// the resolution while doubling the filters, and the backward pass roughly
// doubles the total again.
func EstimateSampleBytes(height, width, filters int) int64 {
	if height < 1 || width < 1 || filters < 1 {
		return 0
	}
	return int64(filters) * int64(height) * int64(width) * 4 * 8
}

// ClampBatchSize caps a requested batch size so one batch stays inside a
// quarter of system memory. The result is at least 1.
func ClampBatchSize(requested int, sampleBytes int64) int {
	if requested < 1 {
		return 1
	}
	if sampleBytes <= 0 {
		return requested
	}
	budget := int64(memory.TotalMemory() / 4)
	if budget <= 0 {
		return requested
	}
	fit := max(1, int(budget/sampleBytes))
	return min(requested, fit)
}
