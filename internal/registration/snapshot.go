package registration

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/born-ml/cellwarp/internal/patchio"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// SnapshotData is one validation sample mid-training: the input views, the
// warped and cycled images, and the three labels. Images are [C,H,W]
// float32 in [-1,1]; labels are [1,H,W] float32 after classification.
type SnapshotData struct {
	Epoch int
	Index int

	AnnotatedImage   *tensor.RawTensor
	UnannotatedImage *tensor.RawTensor
	WarpedImage      *tensor.RawTensor
	CycledImage      *tensor.RawTensor

	AnnotatedLabel   *tensor.RawTensor
	UnannotatedLabel *tensor.RawTensor
	PredictedLabel   *tensor.RawTensor
}

// Snapshotter receives intermediate results during validation. Errors
// abort training.
type Snapshotter interface {
	Snapshot(data SnapshotData) error
}

// GridSnapshotter renders each snapshot as one PNG grid under Dir: the
// annotated, unannotated, warped and cycled images on the first row, the
// annotated, unannotated and predicted labels below.
type GridSnapshotter struct {
	Dir  string
	Tile int // panel edge in pixels (default: 128)
}

// Snapshot writes epoch_EEE_sample_SS.png to the snapshot directory.
func (g *GridSnapshotter) Snapshot(data SnapshotData) error {
	panels := make([]image.Image, 0, 7)
	for _, raw := range []*tensor.RawTensor{
		data.AnnotatedImage, data.UnannotatedImage, data.WarpedImage, data.CycledImage,
	} {
		img, err := patchio.TensorToImage(raw)
		if err != nil {
			return fmt.Errorf("snapshot image panel: %w", err)
		}
		panels = append(panels, img)
	}
	for _, raw := range []*tensor.RawTensor{
		data.AnnotatedLabel, data.UnannotatedLabel, data.PredictedLabel,
	} {
		img, err := labelPanel(raw)
		if err != nil {
			return fmt.Errorf("snapshot label panel: %w", err)
		}
		panels = append(panels, img)
	}

	name := fmt.Sprintf("epoch_%03d_sample_%02d.png", data.Epoch, data.Index)
	return patchio.WriteGrid(filepath.Join(g.Dir, name), panels, 4, g.Tile)
}

// labelPanel renders a classified label as grayscale. Values are clamped
// to [0,1] and scaled to the full range, so binary labels come out black
// and white and continuous ones as a ramp.
func labelPanel(raw *tensor.RawTensor) (image.Image, error) {
	if raw.DType() != tensor.Float32 {
		return nil, fmt.Errorf("label panel must be float32, got %s", raw.DType())
	}
	shape := raw.Shape()
	var h, w int
	switch {
	case len(shape) == 3 && shape[0] == 1:
		h, w = shape[1], shape[2]
	case len(shape) == 2:
		h, w = shape[0], shape[1]
	default:
		return nil, fmt.Errorf("label panel must be [1,H,W] or [H,W], got %v", shape)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range raw.AsFloat32() {
		img.Pix[i] = uint8(min(max(v, 0), 1)*255 + 0.5)
	}
	return img, nil
}
