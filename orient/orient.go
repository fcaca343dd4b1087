// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package orient finds the best rigid pre-alignment between two images by
// searching the 8 dihedral transforms of the square: the combinations of
// {no-flip, horizontal-flip} and {0, 90, 180, 270} degree rotations.
//
// The search is deterministic and gradient-free. Each candidate transform
// is applied to the moving image, scored by the maximum of a windowed
// normalized cross-correlation response map against the fixed image, and
// the highest score wins independently per batch element.
//
// Example:
//
//	import (
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	    "github.com/born-ml/cellwarp/orient"
//	)
//
//	backend := cpu.New()
//	forward, inverse, err := orient.BestAlignment(fixed, moving, orient.DefaultWindow)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	aligned := orient.Apply(forward[0], moving)
//	_ = inverse // undoes the transform after registration
package orient

import (
	"github.com/born-ml/cellwarp/internal/orient"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// DefaultWindow is the correlation window used when a caller passes a
// non-positive window size.
const DefaultWindow = orient.DefaultWindow

// ErrShapeMismatch is returned when fixed and moving images cannot be
// compared candidate by candidate.
var ErrShapeMismatch = orient.ErrShapeMismatch

// Dihedral is one of the 8 rigid transforms of a square image: an optional
// horizontal flip followed by Quarter counter-clockwise 90-degree rotations.
type Dihedral = orient.Dihedral

// Enumerate returns the candidate transforms in search order: the four
// unflipped rotations first, then the four flipped ones, quarters
// ascending. The identity transform comes first, so it wins all-tie
// searches.
func Enumerate() [8]Dihedral {
	return orient.Enumerate()
}

// Apply transforms a [N,C,H,W] tensor by d: horizontal flip first when
// set, then Quarter counter-clockwise rotations. Odd rotation counts swap
// the spatial dimensions.
func Apply[T tensor.DType, B tensor.Backend](d Dihedral, t *tensor.Tensor[T, B]) *tensor.Tensor[T, B] {
	return orient.Apply(d, t)
}

// Unapply undoes Apply exactly: Unapply(d, Apply(d, t)) returns a tensor
// equal to t for every d.
func Unapply[T tensor.DType, B tensor.Backend](d Dihedral, t *tensor.Tensor[T, B]) *tensor.Tensor[T, B] {
	return orient.Unapply(d, t)
}

// BestAlignment searches the 8 dihedral candidates for the transform that
// best maps moving onto fixed, independently for each batch element.
//
// Both inputs are [N,C,H,W] with identical shapes and square spatial dims.
// Window sizes below 1 select DefaultWindow. Returns the winning transform
// per element together with its inverse.
func BestAlignment[B tensor.Backend](fixed, moving *tensor.Tensor[float32, B], window int) (forward, inverse []Dihedral, err error) {
	return orient.BestAlignment(fixed, moving, window)
}
