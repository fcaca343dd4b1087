package patchio

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cellwarp/internal/tensor"
)

func testImage(t *testing.T, w, h int, c color.NRGBA) *image.NRGBA {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func binaryMask(t *testing.T, h, w int, foreground ...[2]int) *tensor.RawTensor {
	t.Helper()
	rt, err := tensor.NewRaw(tensor.Shape{h, w}, tensor.Uint8, tensor.CPU)
	require.NoError(t, err)
	data := rt.AsUint8()
	for _, p := range foreground {
		data[p[0]*w+p[1]] = 1
	}
	return rt
}

func TestImageToTensor_Normalization(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 255, B: 51, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 0, B: 204, A: 255})

	rt := ImageToTensor(img)
	require.Equal(t, tensor.Shape{3, 1, 2}, rt.Shape())
	require.Equal(t, tensor.Float32, rt.DType())

	data := rt.AsFloat32()
	assert.InDelta(t, -1.0, data[0], 1e-6, "red channel, black pixel")
	assert.InDelta(t, 1.0, data[1], 1e-6, "red channel, full pixel")
	assert.InDelta(t, 1.0, data[2], 1e-6, "green channel")
	assert.InDelta(t, -1.0, data[3], 1e-6)
	assert.InDelta(t, 51.0/127.5-1, data[4], 1e-6, "blue channel")
	assert.InDelta(t, 204.0/127.5-1, data[5], 1e-6)
}

func TestImageTensorRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	values := []uint8{0, 17, 64, 100, 127, 128, 200, 254, 255}
	i := 0
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			src.SetNRGBA(x, y, color.NRGBA{
				R: values[i%len(values)],
				G: values[(i+3)%len(values)],
				B: values[(i+6)%len(values)],
				A: 255,
			})
			i++
		}
	}

	back, err := TensorToImage(ImageToTensor(src))
	require.NoError(t, err)

	out, ok := back.(*image.NRGBA)
	require.True(t, ok)
	require.Equal(t, src.Bounds(), out.Bounds())
	assert.Equal(t, src.Pix, out.Pix, "uint8 values survive the [-1,1] round trip")
}

func TestTensorToImage_SingleChannelGray(t *testing.T) {
	rt, err := tensor.NewRaw(tensor.Shape{1, 2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(rt.AsFloat32(), []float32{-1, -0.5, 0.5, 1})

	img, err := TensorToImage(rt)
	require.NoError(t, err)

	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, []uint8{0, 64, 191, 255}, gray.Pix)
}

func TestTensorToImage_ClipsOutOfRange(t *testing.T) {
	rt, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(rt.AsFloat32(), []float32{-3, -1, 1, 3})

	img, err := TensorToImage(rt)
	require.NoError(t, err)
	gray := img.(*image.Gray)
	assert.Equal(t, []uint8{0, 0, 255, 255}, gray.Pix)
}

func TestTensorToImage_RejectsBadShapes(t *testing.T) {
	rt, err := tensor.NewRaw(tensor.Shape{2, 3, 4, 4}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	_, err = TensorToImage(rt)
	assert.Error(t, err)

	rt, err = tensor.NewRaw(tensor.Shape{2, 4, 4}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	_, err = TensorToImage(rt)
	assert.Error(t, err, "two channels is neither grayscale nor RGB")
}

func TestLabelRoundTripThroughDisk(t *testing.T) {
	mask := binaryMask(t, 4, 5, [2]int{0, 0}, [2]int{2, 3}, [2]int{3, 4})
	path := filepath.Join(t.TempDir(), "labels", "patch_H0_W0.png")

	require.NoError(t, SaveLabel(mask, path))

	back, err := LoadLabel(path)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 5}, back.Shape())
	assert.Equal(t, mask.AsUint8(), back.AsUint8(), "raw {0,1} values survive the PNG round trip")
}

func TestLabelToImage_RejectsFloatTensor(t *testing.T) {
	rt, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	_, err = LabelToImage(rt)
	assert.ErrorContains(t, err, "uint8")
}

func TestLabelToTensor_NonGrayInput(t *testing.T) {
	img := testImage(t, 2, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{A: 255})

	rt := LabelToTensor(img)
	assert.Equal(t, []uint8{255, 255, 255, 0}, rt.AsUint8())
}

func TestSaveColoredLabel(t *testing.T) {
	mask := binaryMask(t, 3, 3, [2]int{1, 1})
	path := filepath.Join(t.TempDir(), "colored.png")

	require.NoError(t, SaveColoredLabel(mask, path, HighlightColor()))

	img, err := Open(path)
	require.NoError(t, err)
	nrgba := imaging.Clone(img)

	assert.Equal(t, color.NRGBA{R: 0, G: 255, B: 0, A: 255}, nrgba.NRGBAAt(1, 1), "foreground turns green")
	assert.Equal(t, color.NRGBA{A: 255}, nrgba.NRGBAAt(0, 0), "background stays black")
}

func TestSaveOpen_WebP(t *testing.T) {
	src := testImage(t, 6, 4, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
	path := filepath.Join(t.TempDir(), "patch.webp")

	require.NoError(t, Save(src, path))

	back, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 6, 4), back.Bounds())

	r, g, b, _ := back.At(2, 2).RGBA()
	assert.Equal(t, uint32(10), r>>8, "lossless encode keeps exact values")
	assert.Equal(t, uint32(200), g>>8)
	assert.Equal(t, uint32(30), b>>8)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.png"))
	assert.Error(t, err)
}

func TestWriteGrid(t *testing.T) {
	panels := []image.Image{
		testImage(t, 8, 8, color.NRGBA{R: 255, A: 255}),
		testImage(t, 8, 8, color.NRGBA{G: 255, A: 255}),
		testImage(t, 8, 8, color.NRGBA{B: 255, A: 255}),
	}
	path := filepath.Join(t.TempDir(), "epoch_003.png")

	require.NoError(t, WriteGrid(path, panels, 3, 16))

	img, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 3*16+4*gridGutter, img.Bounds().Dx())
	assert.Equal(t, 16+2*gridGutter, img.Bounds().Dy())

	r, _, _, _ := img.At(gridGutter+8, gridGutter+8).RGBA()
	assert.Equal(t, uint32(255), r>>8, "first panel lands in the first cell")
}

func TestWriteGrid_NoPanels(t *testing.T) {
	err := WriteGrid(filepath.Join(t.TempDir(), "empty.png"), nil, 2, 16)
	assert.Error(t, err)
}

func TestResizeExact(t *testing.T) {
	img := testImage(t, 10, 6, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	out := ResizeExact(img, 32, 32)
	assert.Equal(t, image.Rect(0, 0, 32, 32), out.Bounds())
}

func TestResizeNearest(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	mask.Pix[5] = 1
	mask.Pix[6] = 1

	out := ResizeNearest(mask, 8, 8)
	assert.Equal(t, image.Rect(0, 0, 8, 8), out.Bounds())

	scaled := LabelToTensor(out)
	for i, v := range scaled.AsUint8() {
		assert.Contains(t, []uint8{0, 1}, v, "pixel %d blended to %d", i, v)
	}
}
