// Package orient finds the best rigid pre-alignment between two images by
// searching the 8 dihedral transforms of the square: the combinations of
// {no-flip, horizontal-flip} and {0, 90, 180, 270} degree rotations.
//
// The search is deterministic and gradient-free. Each candidate transform is
// applied to the moving image, scored by the maximum of a windowed normalized
// cross-correlation response map against the fixed image, and the highest
// score wins independently per batch element. Score ties break by enumeration
// order, so results are reproducible across runs.
package orient

import (
	"errors"
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// DefaultWindow is the correlation window used when a caller passes a
// non-positive window size.
const DefaultWindow = 9

// ErrShapeMismatch is returned when fixed and moving images cannot be
// compared candidate by candidate.
var ErrShapeMismatch = errors.New("shape mismatch")

// Dihedral is one of the 8 rigid transforms of a square image: an optional
// horizontal flip followed by Quarter counter-clockwise 90-degree rotations.
type Dihedral struct {
	Flip    bool
	Quarter int
}

// Enumerate returns the candidate transforms in search order: the four
// unflipped rotations first, then the four flipped ones, quarters ascending.
// The identity transform comes first, so it wins all-tie searches.
func Enumerate() [8]Dihedral {
	return [8]Dihedral{
		{Flip: false, Quarter: 0},
		{Flip: false, Quarter: 1},
		{Flip: false, Quarter: 2},
		{Flip: false, Quarter: 3},
		{Flip: true, Quarter: 0},
		{Flip: true, Quarter: 1},
		{Flip: true, Quarter: 2},
		{Flip: true, Quarter: 3},
	}
}

// quarter normalizes the rotation count into [0,4).
func (d Dihedral) quarter() int {
	return ((d.Quarter % 4) + 4) % 4
}

// Inverse returns the transform that undoes d: the rotation count negates
// while the flip flag carries over, since the flip is its own inverse.
// Unapply applies this pairing with the operation order reversed, which makes
// the round trip exact.
func (d Dihedral) Inverse() Dihedral {
	return Dihedral{Flip: d.Flip, Quarter: (4 - d.quarter()) % 4}
}

// String names the transform for logs and reports, e.g. "identity",
// "rot180", "flip+rot90".
func (d Dihedral) String() string {
	rot := ""
	if q := d.quarter(); q != 0 {
		rot = fmt.Sprintf("rot%d", q*90)
	}
	switch {
	case d.Flip && rot != "":
		return "flip+" + rot
	case d.Flip:
		return "flip"
	case rot != "":
		return rot
	default:
		return "identity"
	}
}

// Apply transforms a [N,C,H,W] tensor by d: horizontal flip first when set,
// then Quarter counter-clockwise rotations. Odd rotation counts swap the
// spatial dimensions.
func Apply[T tensor.DType, B tensor.Backend](d Dihedral, t *tensor.Tensor[T, B]) *tensor.Tensor[T, B] {
	backend := t.Backend()
	raw := t.Raw()
	if d.Flip {
		raw = backend.FlipH(raw)
	}
	if q := d.quarter(); q != 0 {
		raw = backend.Rot90(raw, q)
	}
	return tensor.New[T, B](raw, backend)
}

// Unapply undoes Apply exactly: it rotates by the inverse quarter count
// first, then removes the flip. Unapply(d, Apply(d, t)) returns a tensor
// equal to t for every d.
func Unapply[T tensor.DType, B tensor.Backend](d Dihedral, t *tensor.Tensor[T, B]) *tensor.Tensor[T, B] {
	backend := t.Backend()
	raw := t.Raw()
	if q := d.Inverse().quarter(); q != 0 {
		raw = backend.Rot90(raw, q)
	}
	if d.Flip {
		raw = backend.FlipH(raw)
	}
	return tensor.New[T, B](raw, backend)
}

// BestAlignment searches the 8 dihedral candidates for the transform that
// best maps moving onto fixed, independently for each batch element.
//
// Both inputs are [N,C,H,W] with identical shapes and square spatial dims,
// so every rotated candidate stays comparable. Each candidate is scored by
// the maximum of the windowed normalized cross-correlation response map
// between fixed and the transformed moving image; window sizes below 1
// select DefaultWindow. Ties keep the earlier candidate in Enumerate order.
//
// Returns the winning transform per element together with its inverse.
func BestAlignment[B tensor.Backend](fixed, moving *tensor.Tensor[float32, B], window int) (forward, inverse []Dihedral, err error) {
	fixedShape := fixed.Shape()
	movingShape := moving.Shape()

	if len(fixedShape) != 4 {
		return nil, nil, fmt.Errorf("%w: fixed must be [N,C,H,W], got %v", ErrShapeMismatch, fixedShape)
	}
	if !fixedShape.Equal(movingShape) {
		return nil, nil, fmt.Errorf("%w: fixed %v vs moving %v", ErrShapeMismatch, fixedShape, movingShape)
	}
	if fixedShape[2] != fixedShape[3] {
		return nil, nil, fmt.Errorf("%w: spatial dims must be square for rotation candidates, got %dx%d",
			ErrShapeMismatch, fixedShape[2], fixedShape[3])
	}
	if window < 1 {
		window = DefaultWindow
	}

	backend := fixed.Backend()
	n := fixedShape[0]
	planeSize := fixedShape[2] * fixedShape[3]

	forward = make([]Dihedral, n)
	inverse = make([]Dihedral, n)
	best := make([]float32, n)
	for i := range best {
		best[i] = -2 // below the NCC range [-1,1]
	}

	for _, candidate := range Enumerate() {
		candidateRaw := Apply(candidate, moving).Raw()
		response := backend.WindowedNCC(fixed.Raw(), candidateRaw, window)
		scores := response.AsFloat32()

		for i := 0; i < n; i++ {
			plane := scores[i*planeSize : (i+1)*planeSize]
			score := plane[0]
			for _, v := range plane[1:] {
				if v > score {
					score = v
				}
			}
			if score > best[i] {
				best[i] = score
				forward[i] = candidate
				inverse[i] = candidate.Inverse()
			}
		}
	}

	return forward, inverse, nil
}
