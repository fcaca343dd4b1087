// Package stitch reassembles predicted label patches into whole-slide
// canvases.
//
// Patch files encode their placement in the name: {base}_H{row}_W{col}.png,
// where row and col are the top-left canvas coordinates and may be negative
// for patches that start above or left of the canvas. Patches sharing a base
// land on one canvas; later files overwrite earlier ones where they overlap,
// so processing order is the sorted file order.
package stitch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/born-ml/cellwarp/internal/patchio"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Default canvas geometry, sized for the whole-slide exports the patch
// extraction pipeline produces.
const (
	DefaultCanvasHeight = 1000
	DefaultCanvasWidth  = 1000
	DefaultPatchSize    = 32
)

// Output folder names, siblings of the patch folder.
const (
	stitchedDirName = "stitched_labels"
	coloredDirName  = "colored_stitched_labels"
)

// ErrOffsetFormat reports a patch filename whose placement tag is missing,
// malformed, or ambiguous.
var ErrOffsetFormat = errors.New("offset tag")

var offsetPattern = regexp.MustCompile(`H(-?\d+)_W(-?\d+)`)

// Placement locates one patch on its canvas.
type Placement struct {
	Base string
	Row  int
	Col  int
}

// ParseName extracts the placement from a patch filename. The name must
// contain exactly one H{row}_W{col} tag; the base is the name with the tag
// and the extension stripped.
func ParseName(name string) (Placement, error) {
	matches := offsetPattern.FindAllStringSubmatch(name, -1)
	if len(matches) != 1 {
		return Placement{}, fmt.Errorf("%w: %q has %d placement tags, want 1", ErrOffsetFormat, name, len(matches))
	}

	row, err := strconv.Atoi(matches[0][1])
	if err != nil {
		return Placement{}, fmt.Errorf("%w: %q: %v", ErrOffsetFormat, name, err)
	}
	col, err := strconv.Atoi(matches[0][2])
	if err != nil {
		return Placement{}, fmt.Errorf("%w: %q: %v", ErrOffsetFormat, name, err)
	}

	trimmed := strings.Replace(name, "_"+matches[0][0], "", 1)
	base := strings.TrimSuffix(trimmed, filepath.Ext(trimmed))
	return Placement{Base: base, Row: row, Col: col}, nil
}

// Stitcher assembles label patches onto fixed-size canvases. Zero fields
// take the package defaults.
type Stitcher struct {
	CanvasHeight int
	CanvasWidth  int
	PatchSize    int

	// Highlight is the foreground color of the colored canvases; the zero
	// value selects the standard green.
	Highlight colorful.Color
}

// Result lists what a stitching run produced.
type Result struct {
	StitchedDir string
	ColoredDir  string
	Bases       []string
}

func (s *Stitcher) canvasHeight() int {
	if s.CanvasHeight > 0 {
		return s.CanvasHeight
	}
	return DefaultCanvasHeight
}

func (s *Stitcher) canvasWidth() int {
	if s.CanvasWidth > 0 {
		return s.CanvasWidth
	}
	return DefaultCanvasWidth
}

func (s *Stitcher) patchSize() int {
	if s.PatchSize > 0 {
		return s.PatchSize
	}
	return DefaultPatchSize
}

func (s *Stitcher) highlight() colorful.Color {
	if s.Highlight == (colorful.Color{}) {
		return patchio.HighlightColor()
	}
	return s.Highlight
}

// Place copies a patch onto the canvas at (row, col), clipping to the
// canvas bounds. A patch that starts off-canvas contributes only the rows
// and columns that land inside; one that misses the canvas entirely is a
// no-op. Overlapping pixels are overwritten.
func Place(canvas, patch *tensor.RawTensor, row, col int) error {
	if canvas.DType() != tensor.Uint8 || patch.DType() != tensor.Uint8 {
		return fmt.Errorf("canvas and patch must be uint8, got %s and %s", canvas.DType(), patch.DType())
	}
	if len(canvas.Shape()) != 2 || len(patch.Shape()) != 2 {
		return fmt.Errorf("canvas and patch must be [H,W], got %v and %v", canvas.Shape(), patch.Shape())
	}

	canvasH, canvasW := canvas.Shape()[0], canvas.Shape()[1]
	patchH, patchW := patch.Shape()[0], patch.Shape()[1]

	// Negative coordinates shift the patch origin off-canvas; the offset
	// is how much of the patch hangs outside.
	offsetR := min(0, row)
	offsetC := min(0, col)
	startR := max(0, row)
	startC := max(0, col)
	endR := min(startR+patchH+offsetR, canvasH)
	endC := min(startC+patchW+offsetC, canvasW)
	if endR <= startR || endC <= startC {
		return nil
	}

	dst := canvas.AsUint8()
	src := patch.AsUint8()
	spanC := endC - startC
	for r := startR; r < endR; r++ {
		srcRow := (r - startR - offsetR) * patchW
		dstRow := r*canvasW + startC
		copy(dst[dstRow:dstRow+spanC], src[srcRow-offsetC:srcRow-offsetC+spanC])
	}
	return nil
}

// StitchDir stitches every *.png patch in patchDir and writes one raw and
// one colored canvas per base into sibling folders of patchDir. Files are
// processed in sorted order.
func (s *Stitcher) StitchDir(patchDir string) (*Result, error) {
	names, err := listPatches(patchDir)
	if err != nil {
		return nil, err
	}

	size := s.patchSize()
	canvases := make(map[string]*tensor.RawTensor)
	for _, name := range names {
		placement, err := ParseName(name)
		if err != nil {
			return nil, err
		}

		patch, err := patchio.LoadLabel(filepath.Join(patchDir, name))
		if err != nil {
			return nil, err
		}
		if patch.Shape()[0] != size || patch.Shape()[1] != size {
			return nil, fmt.Errorf("patch %s is %v, want [%d %d]", name, patch.Shape(), size, size)
		}

		canvas, ok := canvases[placement.Base]
		if !ok {
			canvas, err = tensor.NewRaw(tensor.Shape{s.canvasHeight(), s.canvasWidth()}, tensor.Uint8, tensor.CPU)
			if err != nil {
				return nil, err
			}
			canvases[placement.Base] = canvas
		}
		if err := Place(canvas, patch, placement.Row, placement.Col); err != nil {
			return nil, fmt.Errorf("placing %s: %w", name, err)
		}
	}

	result := &Result{
		StitchedDir: filepath.Join(filepath.Dir(patchDir), stitchedDirName),
		ColoredDir:  filepath.Join(filepath.Dir(patchDir), coloredDirName),
	}
	for base := range canvases {
		result.Bases = append(result.Bases, base)
	}
	sort.Strings(result.Bases)

	for _, base := range result.Bases {
		canvas := canvases[base]
		if err := patchio.SaveLabel(canvas, filepath.Join(result.StitchedDir, base+".png")); err != nil {
			return nil, err
		}
		if err := patchio.SaveColoredLabel(canvas, filepath.Join(result.ColoredDir, base+".png"), s.highlight()); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func listPatches(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
