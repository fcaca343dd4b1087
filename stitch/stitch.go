// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package stitch assembles label patches onto whole-slide canvases.
//
// Patch filenames carry their canvas placement in an H{row}_W{col} tag,
// e.g. organ_A28_H416_W672.png. StitchDir groups a directory of patches by
// base name, places each group onto a fixed-size canvas, and writes two
// sibling folders: raw {0,1} label canvases and colored previews with the
// foreground highlighted.
//
// Example:
//
//	import "github.com/born-ml/cellwarp/stitch"
//
//	stitcher := &stitch.Stitcher{PatchSize: 32}
//	result, err := stitcher.StitchDir("results/pred_patches")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("stitched %d canvases to %s\n", len(result.Bases), result.StitchedDir)
package stitch

import (
	"github.com/born-ml/cellwarp/internal/stitch"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Default canvas geometry, sized for the whole-slide exports the patch
// extraction pipeline produces.
const (
	DefaultCanvasHeight = stitch.DefaultCanvasHeight
	DefaultCanvasWidth  = stitch.DefaultCanvasWidth
	DefaultPatchSize    = stitch.DefaultPatchSize
)

// ErrOffsetFormat reports a patch filename whose placement tag is missing,
// malformed, or ambiguous.
var ErrOffsetFormat = stitch.ErrOffsetFormat

// Placement locates one patch on its canvas.
type Placement = stitch.Placement

// ParseName extracts the placement from a patch filename. The name must
// contain exactly one H{row}_W{col} tag; the base is the name with the tag
// and the extension stripped.
func ParseName(name string) (Placement, error) {
	return stitch.ParseName(name)
}

// Stitcher assembles label patches onto fixed-size canvases. Zero fields
// take the package defaults.
type Stitcher = stitch.Stitcher

// Result lists what a stitching run produced.
type Result = stitch.Result

// Place copies a patch onto the canvas at (row, col), clipping to the
// canvas bounds. Overlapping pixels are overwritten.
func Place(canvas, patch *tensor.RawTensor, row, col int) error {
	return stitch.Place(canvas, patch, row, col)
}
