// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package warp applies dense displacement fields to images.
//
// A displacement field is a [N,2,H,W] tensor of per-pixel offsets in pixel
// units: channel 0 holds the row offset, channel 1 the column offset.
// Warping samples the input at (r+dr, c+dc) with bilinear interpolation and
// clamps sample coordinates to the image border. The operation runs through
// the backend's GridSample op, so on an autodiff backend it is recorded and
// losses on warped images train the field predictor end to end.
//
// Example:
//
//	import (
//	    "github.com/born-ml/cellwarp/autodiff"
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	    "github.com/born-ml/cellwarp/warp"
//	)
//
//	backend := autodiff.New(cpu.New())
//	pred := predictor.Forward(stacked)           // [N,4,H,W]
//	fwd, rev, err := warp.SplitField(pred)       // two [N,2,H,W] fields
//	if err != nil {
//	    log.Fatal(err)
//	}
//	warped, err := warp.Warp(moving, fwd)        // [N,C,H,W]
package warp

import (
	"github.com/born-ml/cellwarp/internal/tensor"
	"github.com/born-ml/cellwarp/internal/warp"
)

// ErrShapeMismatch is returned when image and field dimensions disagree.
var ErrShapeMismatch = warp.ErrShapeMismatch

// Warp resamples image by the displacement field.
//
// image is [N,C,H,W], field is [N,2,H,W] with matching batch and spatial
// dims. The output has the image's shape. Out-of-bounds sample coordinates
// clamp to the border pixel.
func Warp[B tensor.Backend](image, field *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	return warp.Warp(image, field)
}

// SplitField splits a predictor output [N,4,H,W] into the forward field
// (channels 0-1) and the reverse field (channels 2-3), each [N,2,H,W].
func SplitField[B tensor.Backend](pred *tensor.Tensor[float32, B]) (forward, reverse *tensor.Tensor[float32, B], err error) {
	return warp.SplitField(pred)
}
