// Package main provides the cellwarp command line interface.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/born-ml/cellwarp/internal/autodiff"
	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/config"
	"github.com/born-ml/cellwarp/internal/loader"
	"github.com/born-ml/cellwarp/internal/metrics"
	"github.com/born-ml/cellwarp/internal/model"
	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/internal/orient"
	"github.com/born-ml/cellwarp/internal/parallel"
	"github.com/born-ml/cellwarp/internal/patchio"
	"github.com/born-ml/cellwarp/internal/registration"
	"github.com/born-ml/cellwarp/internal/rest"
	"github.com/born-ml/cellwarp/internal/serialization"
	"github.com/born-ml/cellwarp/internal/stitch"
	"github.com/born-ml/cellwarp/internal/tensor"
)

const version = "0.1.0"

type cpuBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

var (
	configPath = flag.String("config", "cellwarp.yaml", "load configuration from `file`")
	logFile    = flag.String("log", "%auto", "tee output to `file`. %auto derives it from the run name for train and infer")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
	memprofile = flag.String("memprofile", "", "write memory profile to `file`")

	dataDir   = flag.String("dataDir", "", "override data.dataDir, the patch dataset root")
	organ     = flag.String("organ", "", "override data.organ, keeping only patches whose name contains it")
	percent   = flag.Float64("percent", 0, "override data.percentage, the few-shot share in (0,100]")
	seed      = flag.Int("seed", 0, "override train.seed")
	epochs    = flag.Int("epochs", 0, "override train.maxEpochs")
	batch     = flag.Int("batch", 0, "override train.batchSize, clamped to the memory budget")
	lr        = flag.Float64("lr", 0, "override train.learningRate")
	strong    = flag.Bool("strong", false, "override train.strongAugmentation, pairing different subjects per batch")
	modelName = flag.String("model", "", "override model.name, one of unet or shallow")
	depth     = flag.Int("depth", 0, "override model.depth, the UNet encoder levels")
	filters   = flag.Int("filters", 0, "override model.numFilters, the first encoder width")
	addr      = flag.String("addr", "", "override serve.addr, the HTTP listen address")

	checkpoint  = flag.String("checkpoint", "", "model checkpoint `file`, default derived from the run name")
	matchedCSV  = flag.String("matched", "", "matched-pairs CSV `file` for infer, default from the config")
	truthDir    = flag.String("truth", "", "ground-truth canvas `dir` to score stitched predictions against")
	outPath     = flag.String("out", "", "output `file` for import, export, or the orient preview strip (default swaps the extension)")
	canvasH     = flag.Int("canvasH", 0, "stitch canvas height in pixels, 0 selects the default")
	canvasW     = flag.Int("canvasW", 0, "stitch canvas width in pixels, 0 selects the default")
	patchSize   = flag.Int("patchSize", 0, "stitch patch edge in pixels, 0 selects the default")
	metricNames = flag.String("metrics", "", "comma-separated metric names for eval, empty selects the defaults")
	sources     = flag.String("sources", "", "comma-separated source filters for eval, empty keeps every canvas")
	window      = flag.Int("window", 0, "correlation window for orient, 0 selects the default")
)

func main() {
	logWriter := io.Writer(os.Stdout)
	start := time.Now()
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fatalf("Could not create CPU profile: %s", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fatalf("Could not start CPU profile: %s", err)
		}
		defer pprof.StopCPUProfile()
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatalf("Error loading configuration: %s", err)
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid configuration: %s", err)
	}

	// Tee output to the run log for the long-running commands.
	if *logFile == "%auto" {
		switch args[0] {
		case "train", "infer":
			*logFile = cfg.LogPath()
		default:
			*logFile = ""
		}
	}
	if *logFile != "" {
		tee, closeLog, err := teeLog(*logFile)
		if err != nil {
			fatalf("Unable to open log file: %s", err)
		}
		defer closeLog()
		logWriter = tee
	}

	switch args[0] {
	case "train", "infer", "serve":
		fmt.Fprintf(logWriter, "cellwarp %s on %s\n", version, parallel.CPUName())
	}

	switch args[0] {
	case "train":
		err = cmdTrain(cfg, logWriter)

	case "infer":
		err = cmdInfer(cfg, logWriter)

	case "stitch":
		err = cmdStitch(args[1:], logWriter)

	case "eval":
		err = cmdEval(args[1:], logWriter)

	case "orient":
		err = cmdOrient(args[1:], logWriter)

	case "import":
		err = cmdImport(args[1:], logWriter)

	case "export":
		err = cmdExport(args[1:], logWriter)

	case "serve":
		err = cmdServe(cfg, logWriter)

	case "config":
		if _, statErr := os.Stat(*configPath); statErr == nil {
			err = fmt.Errorf("configuration file %s already exists", *configPath)
			break
		}
		if err = config.CreateDefaultConfigFile(*configPath); err == nil {
			fmt.Fprintf(logWriter, "Wrote default configuration to %s\n", *configPath)
		}

	case "version":
		fmt.Fprintf(logWriter, "cellwarp %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start).Round(time.Millisecond))

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fatalf("Could not create memory profile: %s", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			fatalf("Could not write allocation profile: %s", err)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `cellwarp %s, a cyclic registration and label transfer toolkit

Usage: %s [-flag value] (train|infer|stitch|eval|orient|import|export|serve|config|version) [args]

Commands:
  train    Train the warp predictor on the annotated patch folder
  infer    Transfer labels across matched pairs, stitch and score them
  stitch   Assemble label patches from a directory onto canvases
  eval     Score predicted label canvases against ground truth: eval <predDir> <truthDir>
  orient   Report the best dihedral pre-alignment: orient <fixed> <moving>
  import   Convert exported SafeTensors weights to a cellwarp checkpoint
  export   Convert a cellwarp checkpoint to SafeTensors weights
  serve    Start the HTTP registration service
  config   Write the default configuration file
  version  Show version information

Flags:
`, version, os.Args[0])
	flag.PrintDefaults()
}

// applyOverrides copies explicitly set flags over the loaded configuration,
// so zero and false remain expressible overrides.
func applyOverrides(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataDir":
			cfg.Data.DataDir = *dataDir
		case "organ":
			cfg.Data.Organ = *organ
		case "percent":
			cfg.Data.Percentage = *percent
		case "seed":
			cfg.Train.Seed = *seed
		case "epochs":
			cfg.Train.MaxEpochs = *epochs
		case "batch":
			cfg.Train.BatchSize = *batch
		case "lr":
			cfg.Train.LearningRate = *lr
		case "strong":
			cfg.Train.StrongAugmentation = *strong
		case "model":
			cfg.Model.Name = *modelName
		case "depth":
			cfg.Model.Depth = *depth
		case "filters":
			cfg.Model.NumFilters = *filters
		case "addr":
			cfg.Serve.Addr = *addr
		}
	})
}

// teeLog mirrors output to stdout and the log file.
func teeLog(path string) (io.Writer, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stdout, f), func() { f.Close() }, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// resolveCheckpoint prefers the -checkpoint flag over the run-derived path.
func resolveCheckpoint(cfg *config.Config) string {
	if *checkpoint != "" {
		return *checkpoint
	}
	return cfg.CheckpointPath()
}

// buildPredictor constructs the configured architecture on a fresh autodiff
// CPU backend.
func buildPredictor(cfg *config.Config) (model.WarpPredictor[cpuBackend], cpuBackend, error) {
	backend := autodiff.New(cpu.New())
	registry := model.NewRegistry[cpuBackend]()
	predictor, err := registry.New(cfg.Model.Name, model.Config{
		Depth:      cfg.Model.Depth,
		NumFilters: cfg.Model.NumFilters,
	}, backend)
	if err != nil {
		return nil, nil, err
	}
	return predictor, backend, nil
}

// cmdTrain runs the cyclic registration loop on the annotated patch folder
// under the dataset root and leaves the best checkpoint at the run path.
func cmdTrain(cfg *config.Config, logWriter io.Writer) error {
	predictor, backend, err := buildPredictor(cfg)
	if err != nil {
		return err
	}

	ds, err := registration.OpenFolderDataset(registration.FolderConfig{
		ImageDir:   filepath.Join(cfg.Data.DataDir, "image"),
		Organ:      cfg.Data.Organ,
		Percentage: cfg.Data.Percentage,
		Seed:       cfg.Train.Seed,
	}, backend)
	if err != nil {
		return err
	}
	train, val, test, err := ds.Split(cfg.Data.TrainRatio, cfg.Data.ValRatio, cfg.Data.TestRatio)
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Dataset %s: %d patches, split %d/%d/%d\n",
		cfg.Data.DatasetName, ds.Len(), train.Len(), val.Len(), test.Len())
	fmt.Fprintf(logWriter, "Model %s with depth %d and %d filters\n",
		cfg.Model.Name, cfg.Model.Depth, cfg.Model.NumFilters)

	trainer, err := registration.NewTrainer(predictor, backend, registration.TrainConfig{
		BatchSize:         cfg.Train.BatchSize,
		MaxEpochs:         cfg.Train.MaxEpochs,
		Patience:          cfg.Train.Patience,
		LearningRate:      float32(cfg.Train.LearningRate),
		Seed:              cfg.Train.Seed,
		Strong:            cfg.Train.StrongAugmentation,
		CheckpointPath:    cfg.CheckpointPath(),
		Snapshotter:       &registration.GridSnapshotter{Dir: cfg.SnapshotDir()},
		SnapshotsPerEpoch: cfg.Train.SnapshotsPerEpoch,
		TargetHeight:      cfg.Data.TargetHeight,
		TargetWidth:       cfg.Data.TargetWidth,
		NumFilters:        cfg.Model.NumFilters,
		Out:               logWriter,
	})
	if err != nil {
		return err
	}

	history, err := trainer.Fit(train, val)
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Best validation loss %.6f at epoch %d, checkpoint %s\n",
		history.BestValLoss, history.BestEpoch, cfg.CheckpointPath())
	return nil
}

// cmdInfer restores the trained predictor and transfers labels over the
// matched pairs, writing, stitching and scoring the predictions.
func cmdInfer(cfg *config.Config, logWriter io.Writer) error {
	predictor, backend, err := buildPredictor(cfg)
	if err != nil {
		return err
	}

	ckptPath := resolveCheckpoint(cfg)
	ckpt, err := nn.LoadCheckpoint(ckptPath, backend, predictor, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Restored %s from %s (epoch %d, val loss %.6f)\n",
		cfg.Model.Name, ckptPath, ckpt.Epoch, ckpt.Loss)

	runner, err := registration.NewRunner(predictor, backend, registration.InferConfig{
		PredDir:          cfg.PredDir(),
		CanvasHeight:     *canvasH,
		CanvasWidth:      *canvasW,
		PatchSize:        *patchSize,
		TargetHeight:     cfg.Data.TargetHeight,
		TargetWidth:      cfg.Data.TargetWidth,
		TruthStitchedDir: *truthDir,
		MetricNames:      splitList(*metricNames),
		Sources:          splitList(*sources),
		Out:              logWriter,
	})
	if err != nil {
		return err
	}

	csvPath := cfg.MatchedCSVPath()
	if *matchedCSV != "" {
		csvPath = *matchedCSV
	}
	fmt.Fprintf(logWriter, "Matched pairs from %s\n", csvPath)

	_, err = runner.Run(registration.CSVPairs{Path: csvPath})
	return err
}

// cmdStitch assembles one directory of label patches onto canvases.
func cmdStitch(args []string, logWriter io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: cellwarp stitch <patchDir>")
	}

	stitcher := &stitch.Stitcher{
		CanvasHeight: *canvasH,
		CanvasWidth:  *canvasW,
		PatchSize:    *patchSize,
	}
	result, err := stitcher.StitchDir(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(logWriter, "Stitched %d canvases\n", len(result.Bases))
	fmt.Fprintf(logWriter, "Labels:  %s\n", result.StitchedDir)
	fmt.Fprintf(logWriter, "Colored: %s\n", result.ColoredDir)
	return nil
}

// cmdEval scores a prediction canvas folder against a ground-truth folder.
func cmdEval(args []string, logWriter io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: cellwarp eval <predDir> <truthDir>")
	}

	names := splitList(*metricNames)
	evaluator := &metrics.Evaluator{
		Loader:  patchio.LoadLabel,
		Names:   names,
		Sources: splitList(*sources),
	}
	summaries, err := evaluator.EvaluateDirs(args[0], args[1])
	if err != nil {
		return err
	}

	if len(names) == 0 {
		names = metrics.DefaultNames
	}
	for _, name := range names {
		fmt.Fprintf(logWriter, "%s: %s\n", name, summaries[name])
	}
	return nil
}

// cmdOrient reports the dihedral transform that best maps the moving patch
// onto the fixed one. With -out it also writes a preview strip showing the
// fixed, moving and re-oriented patches side by side.
func cmdOrient(args []string, logWriter io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: cellwarp orient <fixed> <moving>")
	}

	backend := cpu.New()
	fixed, err := loadImageBatch(args[0], backend)
	if err != nil {
		return err
	}
	moving, err := loadImageBatch(args[1], backend)
	if err != nil {
		return err
	}

	forward, inverse, err := orient.BestAlignment(fixed, moving, *window)
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Best alignment of %s onto %s: %s (inverse %s)\n",
		filepath.Base(args[1]), filepath.Base(args[0]), forward[0], inverse[0])

	if *outPath == "" {
		return nil
	}
	aligned := orient.Apply(forward[0], moving)
	panels := make([]image.Image, 0, 3)
	for _, batch := range []*tensor.RawTensor{fixed.Raw(), moving.Raw(), aligned.Raw()} {
		img, err := patchio.TensorToImage(backend.Squeeze(batch, 0))
		if err != nil {
			return err
		}
		panels = append(panels, img)
	}
	if err := patchio.WriteStrip(*outPath, panels, 128); err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Wrote orientation preview %s\n", *outPath)
	return nil
}

// loadImageBatch reads one patch as a [1,C,H,W] float32 tensor.
func loadImageBatch(path string, backend *cpu.CPUBackend) (*tensor.Tensor[float32, *cpu.CPUBackend], error) {
	raw, err := patchio.LoadImageTensor(path)
	if err != nil {
		return nil, err
	}
	return tensor.New[float32](backend.Unsqueeze(raw, 0), backend), nil
}

// cmdImport converts an exported SafeTensors weight file into the native
// checkpoint container, remapping weight names to cellwarp's layout.
func cmdImport(args []string, logWriter io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: cellwarp import <weights.safetensors>")
	}
	src := args[0]
	dst := *outPath
	if dst == "" {
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".cwpt"
	}

	reader, err := loader.OpenModel(src)
	if err != nil {
		return err
	}
	defer reader.Close()
	fmt.Fprintf(logWriter, "Opened %s export %s with architecture %s\n",
		reader.Format(), filepath.Base(src), reader.Architecture())

	stateDict, err := reader.StateDict(cpu.New())
	if err != nil {
		return err
	}

	writer, err := serialization.NewCellwarpWriter(dst)
	if err != nil {
		return err
	}
	metadata := map[string]string{"source": filepath.Base(src)}
	if err := writer.WriteStateDictV2(stateDict, reader.Architecture(), metadata); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	fmt.Fprintf(logWriter, "Wrote %d weights to %s\n", len(stateDict), dst)
	return nil
}

// cmdExport writes a checkpoint's model weights as a SafeTensors file for
// other toolchains. Optimizer state has no SafeTensors convention and is
// dropped.
func cmdExport(args []string, logWriter io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: cellwarp export <checkpoint.cwpt>")
	}
	src := args[0]
	dst := *outPath
	if dst == "" {
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".safetensors"
	}

	reader, err := serialization.NewMmapReader(src)
	if err != nil {
		return err
	}
	defer reader.Close()

	backend := cpu.New()
	stateDict := make(map[string]*tensor.RawTensor)
	dropped := 0
	for _, name := range reader.TensorNames() {
		if strings.HasPrefix(name, "optimizer.") {
			dropped++
			continue
		}
		raw, err := reader.LoadTensor(name, backend)
		if err != nil {
			return err
		}
		stateDict[name] = raw
	}
	if len(stateDict) == 0 {
		return fmt.Errorf("no model weights in %s", src)
	}

	metadata := map[string]string{
		"format":     "pt",
		"model_type": reader.Header().ModelType,
	}
	if err := serialization.WriteSafeTensors(dst, stateDict, metadata); err != nil {
		return err
	}
	if dropped > 0 {
		fmt.Fprintf(logWriter, "Dropped %d optimizer tensors\n", dropped)
	}
	fmt.Fprintf(logWriter, "Wrote %d weights to %s\n", len(stateDict), dst)
	return nil
}

// cmdServe starts the HTTP registration service. A missing checkpoint is
// downgraded to an untrained predictor so smoke tests can run.
func cmdServe(cfg *config.Config, logWriter io.Writer) error {
	ckptPath := resolveCheckpoint(cfg)
	if _, err := os.Stat(ckptPath); err != nil {
		fmt.Fprintf(logWriter, "No checkpoint at %s, serving an untrained predictor\n", ckptPath)
		ckptPath = ""
	}

	server, err := rest.NewServer(rest.Config{
		Addr:           cfg.Serve.Addr,
		CheckpointPath: ckptPath,
		Arch:           cfg.Model.Name,
		Depth:          cfg.Model.Depth,
		NumFilters:     cfg.Model.NumFilters,
		TargetHeight:   cfg.Data.TargetHeight,
		TargetWidth:    cfg.Data.TargetWidth,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Serving registration API on %s\n", cfg.Serve.Addr)
	return server.Run()
}

// splitList parses a comma-separated flag value into its non-empty parts.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
