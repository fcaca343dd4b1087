// Package rest serves the registration pipeline over HTTP.
//
// The API is a small JSON surface under /api/v1: a health check, the
// model registry listing, and a label-transfer endpoint that takes an
// annotated/unannotated patch pair as multipart form files and answers
// with registration quality metrics plus the transferred mask as an
// inline PNG. Mask pixels use the raw {0,1} values of the on-disk label
// convention.
package rest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"github.com/born-ml/cellwarp/internal/autodiff"
	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/model"
	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/internal/patchio"
	"github.com/born-ml/cellwarp/internal/registration"
	"github.com/born-ml/cellwarp/internal/tensor"
	"github.com/born-ml/cellwarp/internal/warp"
)

type cpuBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// Config wires the HTTP registration service.
type Config struct {
	// Addr is the listen address (default ":8080").
	Addr string

	// CheckpointPath restores trained predictor weights. Empty serves an
	// untrained predictor, which only makes sense for smoke tests.
	CheckpointPath string

	// Arch selects the predictor architecture (default "unet").
	Arch string

	// Predictor sizing, matching the training run of the checkpoint.
	Depth      int
	NumFilters int

	// TargetHeight and TargetWidth resize uploads to the model's training
	// resolution when nonzero.
	TargetHeight int
	TargetWidth  int
}

// Server answers registration requests with one shared predictor. Gin
// runs handlers concurrently but a forward pass mutates backend state,
// so requests serialize on a lock.
type Server struct {
	mu        sync.Mutex
	backend   cpuBackend
	predictor model.WarpPredictor[cpuBackend]
	registry  *model.Registry[cpuBackend]
	cfg       Config
	epoch     int
	loss      float64
}

// NewServer builds the predictor and restores the checkpoint when one
// is configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Arch == "" {
		cfg.Arch = model.UNetName
	}

	backend := autodiff.New(cpu.New())
	registry := model.NewRegistry[cpuBackend]()
	predictor, err := registry.New(cfg.Arch, model.Config{Depth: cfg.Depth, NumFilters: cfg.NumFilters}, backend)
	if err != nil {
		return nil, err
	}

	s := &Server{backend: backend, predictor: predictor, registry: registry, cfg: cfg}
	if cfg.CheckpointPath != "" {
		ckpt, err := nn.LoadCheckpoint(cfg.CheckpointPath, backend, predictor, nil)
		if err != nil {
			return nil, fmt.Errorf("loading checkpoint %s: %w", cfg.CheckpointPath, err)
		}
		s.epoch = ckpt.Epoch
		s.loss = ckpt.Loss
	}
	return s, nil
}

// Router builds the engine with the /api/v1 routes.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", s.getPing)
			v1.GET("/models", s.getModels)
			v1.POST("/register", s.postRegister)
		}
	}
	return r
}

// Run listens and serves on the configured address.
func (s *Server) Run() error {
	return s.Router().Run(s.cfg.Addr)
}

func (s *Server) getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func (s *Server) getModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"architectures": s.registry.Names(),
		"loaded":        s.cfg.Arch,
		"checkpoint":    s.cfg.CheckpointPath,
		"epoch":         s.epoch,
		"loss":          s.loss,
	})
}

// postRegister runs one registration pass over an uploaded pair. Form
// files: "annotated" and "unannotated" are required patch images,
// "label" is the optional mask of the annotated patch. When a label is
// present the response carries the mask transferred onto the
// unannotated patch, base64-encoded as PNG.
func (s *Server) postRegister(c *gin.Context) {
	annotated, err := formImage(c, "annotated")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	unannotated, err := formImage(c, "unannotated")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	label, hasLabel, err := formOptionalImage(c, "label")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.cfg.TargetHeight > 0 && s.cfg.TargetWidth > 0 {
		w, h := s.cfg.TargetWidth, s.cfg.TargetHeight
		annotated = patchio.ResizeExact(annotated, w, h)
		unannotated = patchio.ResizeExact(unannotated, w, h)
		if hasLabel {
			label = patchio.ResizeNearest(label, w, h)
		}
	}
	if !annotated.Bounds().Size().Eq(unannotated.Bounds().Size()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"annotated patch is %v, unannotated is %v", annotated.Bounds().Size(), unannotated.Bounds().Size())})
		return
	}
	if hasLabel && !label.Bounds().Size().Eq(annotated.Bounds().Size()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"label is %v, patches are %v", label.Bounds().Size(), annotated.Bounds().Size())})
		return
	}

	result, err := s.register(annotated, unannotated, label, hasLabel)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"registration": gin.H{
			"mse":      result.mse,
			"cycleMse": result.cycleMSE,
		},
		"height": annotated.Bounds().Dy(),
		"width":  annotated.Bounds().Dx(),
	}
	if hasLabel {
		resp["label"] = gin.H{"png": result.labelPNG}
	}
	c.JSON(http.StatusOK, resp)
}

type registerResult struct {
	mse      float32
	cycleMSE float32
	labelPNG string
}

// register runs the forward pass and, when a label is given, the label
// transfer. Holding the lock keeps backend state off concurrent
// handlers.
func (s *Server) register(annotated, unannotated, label image.Image, hasLabel bool) (*registerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	be := s.backend
	result := &registerResult{}
	var runErr error
	be.NoGrad(func() {
		ann := be.Unsqueeze(patchio.ImageToTensor(annotated), 0)
		unann := be.Unsqueeze(patchio.ImageToTensor(unannotated), 0)

		input := be.Cat([]*tensor.RawTensor{ann, unann}, 1)
		fieldPred := s.predictor.Forward(s.wrap(input))
		fwd, rev, err := warp.SplitField(fieldPred)
		if err != nil {
			runErr = err
			return
		}

		u2a, err := warp.Warp(s.wrap(unann), fwd)
		if err != nil {
			runErr = err
			return
		}
		u2a2u, err := warp.Warp(u2a, rev)
		if err != nil {
			runErr = err
			return
		}
		result.mse = be.MSE(u2a.Raw(), ann).AsFloat32()[0]
		result.cycleMSE = be.MSE(u2a2u.Raw(), unann).AsFloat32()[0]

		if !hasLabel {
			return
		}
		labelRaw, _, err := registration.ClassifyAndNormalize(patchio.LabelToTensor(label), be)
		if err != nil {
			runErr = err
			return
		}
		labelRaw = be.Unsqueeze(be.Unsqueeze(labelRaw, 0), 0)
		warped, err := warp.Warp(s.wrap(labelRaw), rev)
		if err != nil {
			runErr = err
			return
		}
		mask := be.Cast(be.Threshold(warped.Raw(), 0.5), tensor.Uint8)
		shape := mask.Shape()
		result.labelPNG, runErr = encodeMask(be.Reshape(mask, tensor.Shape{shape[2], shape[3]}))
	})
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

func (s *Server) wrap(raw *tensor.RawTensor) *tensor.Tensor[float32, cpuBackend] {
	return tensor.New[float32, cpuBackend](raw, s.backend)
}

// formImage decodes a required multipart file.
func formImage(c *gin.Context, name string) (image.Image, error) {
	header, err := c.FormFile(name)
	if err != nil {
		return nil, fmt.Errorf("form file %q: %w", name, err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("form file %q: %w", name, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", name, err)
	}
	return img, nil
}

// formOptionalImage decodes a multipart file that may be absent.
func formOptionalImage(c *gin.Context, name string) (image.Image, bool, error) {
	header, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("form file %q: %w", name, err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, false, fmt.Errorf("form file %q: %w", name, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, false, fmt.Errorf("decoding %q: %w", name, err)
	}
	return img, true, nil
}

// encodeMask renders a uint8 [H,W] mask as base64 PNG.
func encodeMask(mask *tensor.RawTensor) (string, error) {
	img, err := patchio.LabelToImage(mask)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
