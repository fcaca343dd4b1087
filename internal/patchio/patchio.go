// Package patchio moves microscopy patches between disk, image.Image, and
// tensors.
//
// Images travel as float32 [3,H,W] tensors normalized to [-1,1], the range
// the warp predictor trains on. Label masks travel as uint8 [H,W] tensors
// holding raw class values, {0,1} for binary masks. PNG, TIFF, and WebP
// decode transparently; encoding picks the format from the file extension.
package patchio

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Open reads an image from disk. Formats registered with image.Decode
// (PNG, JPEG, TIFF, WebP) load through imaging; WebP files that the
// registered decoder rejects fall back to the dedicated decoder.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err == nil {
		return img, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, ferr := os.Open(path)
		if ferr != nil {
			return nil, ferr
		}
		defer f.Close()
		if img, werr := webp.Decode(f); werr == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("opening %s: %w", path, err)
}

// Save writes an image to disk, picking the encoder from the extension.
// WebP encodes losslessly; everything else goes through imaging.
func Save(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: true})
	}
	return imaging.Save(img, path)
}

// ImageToTensor converts an image to a float32 [3,H,W] tensor with values
// scaled from [0,255] to [-1,1].
func ImageToTensor(img image.Image) *tensor.RawTensor {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	h := b.Dy()
	w := b.Dx()

	rt, err := tensor.NewRaw(tensor.Shape{3, h, w}, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("patchio: %v", err))
	}
	data := rt.AsFloat32()
	plane := h * w

	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			px := y*w + x
			data[px] = float32(row[x*4])/127.5 - 1
			data[plane+px] = float32(row[x*4+1])/127.5 - 1
			data[2*plane+px] = float32(row[x*4+2])/127.5 - 1
		}
	}
	return rt
}

// TensorToImage converts a float tensor back to an image, mapping [-1,1]
// to [0,255] with clipping. Accepts [3,H,W], [1,H,W], and [H,W]; a single
// channel renders as grayscale.
func TensorToImage(rt *tensor.RawTensor) (image.Image, error) {
	channels, h, w, err := imageDims(rt.Shape())
	if err != nil {
		return nil, err
	}
	data, err := floatData(rt)
	if err != nil {
		return nil, err
	}
	plane := h * w

	if channels == 1 {
		gray := image.NewGray(image.Rect(0, 0, w, h))
		for px := 0; px < plane; px++ {
			gray.Pix[px] = denormalize(data[px])
		}
		return gray, nil
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			px := y*w + x
			row[x*4] = denormalize(data[px])
			row[x*4+1] = denormalize(data[plane+px])
			row[x*4+2] = denormalize(data[2*plane+px])
			row[x*4+3] = 255
		}
	}
	return nrgba, nil
}

// LabelToTensor converts an image to a uint8 [H,W] mask, keeping raw pixel
// values. Non-grayscale inputs convert through the standard gray model.
func LabelToTensor(img image.Image) *tensor.RawTensor {
	b := img.Bounds()
	h := b.Dy()
	w := b.Dx()

	rt, err := tensor.NewRaw(tensor.Shape{h, w}, tensor.Uint8, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("patchio: %v", err))
	}
	data := rt.AsUint8()

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			copy(data[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
		}
		return rt
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			data[y*w+x] = g.Y
		}
	}
	return rt
}

// LabelToImage renders a uint8 mask tensor as a grayscale image with raw
// values. Accepts [H,W] and [1,H,W].
func LabelToImage(rt *tensor.RawTensor) (*image.Gray, error) {
	h, w, err := maskDims(rt.Shape())
	if err != nil {
		return nil, err
	}
	if rt.DType() != tensor.Uint8 {
		return nil, fmt.Errorf("label tensor must be uint8, got %s", rt.DType())
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	copy(gray.Pix, rt.AsUint8())
	return gray, nil
}

// LoadImageTensor reads an image file into a normalized [3,H,W] tensor.
func LoadImageTensor(path string) (*tensor.RawTensor, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	return ImageToTensor(img), nil
}

// LoadLabel reads a label mask file into a uint8 [H,W] tensor.
func LoadLabel(path string) (*tensor.RawTensor, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	return LabelToTensor(img), nil
}

// SaveLabel writes a uint8 mask tensor as a grayscale image. Binary masks
// keep their {0,1} values, matching the on-disk patch label convention.
func SaveLabel(rt *tensor.RawTensor, path string) error {
	gray, err := LabelToImage(rt)
	if err != nil {
		return err
	}
	return Save(gray, path)
}

// SaveColoredLabel writes a visualization of a mask: foreground pixels take
// the highlight color, background stays black.
func SaveColoredLabel(rt *tensor.RawTensor, path string, highlight colorful.Color) error {
	h, w, err := maskDims(rt.Shape())
	if err != nil {
		return err
	}
	if rt.DType() != tensor.Uint8 {
		return fmt.Errorf("label tensor must be uint8, got %s", rt.DType())
	}

	r, g, b := highlight.RGB255()
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	data := rt.AsUint8()
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			if data[y*w+x] != 0 {
				row[x*4] = r
				row[x*4+1] = g
				row[x*4+2] = b
			}
			row[x*4+3] = 255
		}
	}
	return Save(nrgba, path)
}

// HighlightColor is the foreground color of colored label canvases.
func HighlightColor() colorful.Color {
	return colorful.Color{R: 0, G: 1, B: 0}
}

// ResizeExact scales an image to exactly w x h with Lanczos resampling,
// the filter used to fit service uploads to the model's input size.
func ResizeExact(img image.Image, w, h int) image.Image {
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// ResizeNearest scales a label mask to exactly w x h with nearest-neighbor
// sampling. Masks must keep their original values, so no interpolation.
func ResizeNearest(img image.Image, w, h int) image.Image {
	return imaging.Resize(img, w, h, imaging.NearestNeighbor)
}

// denormalize maps [-1,1] to [0,255] with clipping.
func denormalize(v float32) uint8 {
	scaled := (v + 1) * 127.5
	if scaled <= 0 {
		return 0
	}
	if scaled >= 255 {
		return 255
	}
	return uint8(scaled + 0.5)
}

// imageDims validates an image tensor shape and returns (C,H,W).
func imageDims(shape tensor.Shape) (c, h, w int, err error) {
	switch len(shape) {
	case 2:
		return 1, shape[0], shape[1], nil
	case 3:
		if shape[0] != 1 && shape[0] != 3 {
			return 0, 0, 0, fmt.Errorf("image tensor must have 1 or 3 channels, got %v", shape)
		}
		return shape[0], shape[1], shape[2], nil
	default:
		return 0, 0, 0, fmt.Errorf("image tensor must be [C,H,W] or [H,W], got %v", shape)
	}
}

// maskDims validates a mask tensor shape and returns (H,W).
func maskDims(shape tensor.Shape) (h, w int, err error) {
	switch {
	case len(shape) == 2:
		return shape[0], shape[1], nil
	case len(shape) == 3 && shape[0] == 1:
		return shape[1], shape[2], nil
	default:
		return 0, 0, fmt.Errorf("mask tensor must be [H,W] or [1,H,W], got %v", shape)
	}
}

// floatData widens a float tensor's elements to a flat float32 view.
func floatData(rt *tensor.RawTensor) ([]float32, error) {
	switch rt.DType() {
	case tensor.Float32:
		return rt.AsFloat32(), nil
	case tensor.Float64:
		out := make([]float32, rt.NumElements())
		for i, v := range rt.AsFloat64() {
			out[i] = float32(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("image tensor must be float, got %s", rt.DType())
	}
}
