// Package warp applies dense displacement fields to images.
//
// A displacement field is a [N,2,H,W] tensor of per-pixel offsets in pixel
// units: channel 0 holds the row offset, channel 1 the column offset. Warping
// samples the input at (r+dr, c+dc) with bilinear interpolation, clamping
// sample coordinates to the image border. Both operations here are pure:
// they allocate fresh tensors and leave their inputs untouched.
//
// Warping is differentiable through the backend's GridSample op, so losses
// computed on warped images train the field predictor end to end.
package warp

import (
	"errors"
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// ErrShapeMismatch is returned when image and field dimensions disagree.
var ErrShapeMismatch = errors.New("shape mismatch")

// Warp resamples image by the displacement field.
//
// image is [N,C,H,W], field is [N,2,H,W] with matching batch and spatial
// dims. The output has the image's shape. Out-of-bounds sample coordinates
// clamp to the border pixel.
func Warp[B tensor.Backend](image, field *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	imgShape := image.Shape()
	fieldShape := field.Shape()

	if len(imgShape) != 4 {
		return nil, fmt.Errorf("%w: image must be [N,C,H,W], got %v", ErrShapeMismatch, imgShape)
	}
	if len(fieldShape) != 4 || fieldShape[1] != 2 {
		return nil, fmt.Errorf("%w: field must be [N,2,H,W], got %v", ErrShapeMismatch, fieldShape)
	}
	if imgShape[0] != fieldShape[0] || imgShape[2] != fieldShape[2] || imgShape[3] != fieldShape[3] {
		return nil, fmt.Errorf("%w: image %v vs field %v", ErrShapeMismatch, imgShape, fieldShape)
	}

	backend := image.Backend()
	return tensor.New[float32, B](backend.GridSample(image.Raw(), field.Raw()), backend), nil
}

// SplitField splits a predictor output [N,4,H,W] into the forward field
// (channels 0-1) and the reverse field (channels 2-3), each [N,2,H,W].
func SplitField[B tensor.Backend](pred *tensor.Tensor[float32, B]) (forward, reverse *tensor.Tensor[float32, B], err error) {
	shape := pred.Shape()
	if len(shape) != 4 || shape[1] != 4 {
		return nil, nil, fmt.Errorf("%w: predictor output must be [N,4,H,W], got %v", ErrShapeMismatch, shape)
	}

	halves := pred.Chunk(2, 1)
	return halves[0], halves[1], nil
}
