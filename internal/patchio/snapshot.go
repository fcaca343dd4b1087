package patchio

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
)

// gridGutter is the spacing in pixels between snapshot panels.
const gridGutter = 2

// WriteGrid composes panels into a row-major grid and writes it to path.
// Each panel scales to tile x tile pixels, so a 32x32 patch stays legible
// next to larger neighbors. Training snapshots use one row per concern:
// inputs, cycle reconstructions, labels.
func WriteGrid(path string, panels []image.Image, cols, tile int) error {
	if len(panels) == 0 {
		return fmt.Errorf("snapshot grid needs at least one panel")
	}
	if cols < 1 {
		cols = len(panels)
	}
	if tile < 1 {
		tile = 128
	}
	rows := (len(panels) + cols - 1) / cols

	width := cols*tile + (cols+1)*gridGutter
	height := rows*tile + (rows+1)*gridGutter
	canvas := imaging.New(width, height, color.NRGBA{R: 24, G: 24, B: 24, A: 255})

	for i, panel := range panels {
		scaled := transform.Resize(panel, tile, tile, transform.Linear)
		x := gridGutter + (i%cols)*(tile+gridGutter)
		y := gridGutter + (i/cols)*(tile+gridGutter)
		canvas = imaging.Paste(canvas, scaled, image.Pt(x, y))
	}
	return Save(canvas, path)
}

// WriteStrip writes panels as a single horizontal row, the layout used for
// orientation previews (fixed, moving, re-oriented moving).
func WriteStrip(path string, panels []image.Image, tile int) error {
	return WriteGrid(path, panels, len(panels), tile)
}
