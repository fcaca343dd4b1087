package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// mask builds a [h,w] uint8 mask with the given [y0,y1,x0,x1) rectangles
// set to foreground.
func mask(t *testing.T, h, w int, rects ...[4]int) *tensor.RawTensor {
	t.Helper()
	m, err := tensor.NewRaw(tensor.Shape{h, w}, tensor.Uint8, tensor.CPU)
	require.NoError(t, err)
	data := m.AsUint8()
	for _, r := range rects {
		for y := r[0]; y < r[1]; y++ {
			for x := r[2]; x < r[3]; x++ {
				data[y*w+x] = 1
			}
		}
	}
	return m
}

func TestDiceAndIoU_HalfOverlapScenario(t *testing.T) {
	// Truth covers the left 16 columns of a 32x32 patch, the prediction the
	// inner half of that region: intersection 256, sizes 256 and 512.
	truth := mask(t, 32, 32, [4]int{0, 32, 0, 16})
	pred := mask(t, 32, 32, [4]int{0, 32, 8, 16})

	dice, err := Dice(pred, truth)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, dice, 1e-12)

	iou, err := IoU(pred, truth)
	require.NoError(t, err)
	assert.Equal(t, 0.5, iou)

	f1, err := PixelF1(pred, truth)
	require.NoError(t, err)
	assert.InDelta(t, dice, f1, 1e-12)
}

func TestMetrics_Symmetric(t *testing.T) {
	a := mask(t, 8, 8, [4]int{0, 4, 0, 4}, [4]int{6, 8, 6, 8})
	b := mask(t, 8, 8, [4]int{2, 6, 2, 6})

	diceAB, err := Dice(a, b)
	require.NoError(t, err)
	diceBA, err := Dice(b, a)
	require.NoError(t, err)
	assert.Equal(t, diceAB, diceBA)

	iouAB, err := IoU(a, b)
	require.NoError(t, err)
	iouBA, err := IoU(b, a)
	require.NoError(t, err)
	assert.Equal(t, iouAB, iouBA)

	l1AB, err := L1(a, b)
	require.NoError(t, err)
	l1BA, err := L1(b, a)
	require.NoError(t, err)
	assert.Equal(t, l1AB, l1BA)
}

func TestDice_IdenticalAndDisjoint(t *testing.T) {
	a := mask(t, 4, 4, [4]int{0, 2, 0, 2})
	b := mask(t, 4, 4, [4]int{2, 4, 2, 4})

	same, err := Dice(a, a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, same)

	disjoint, err := Dice(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, disjoint)
}

func TestDice_EmptyPairIsNaN(t *testing.T) {
	empty := mask(t, 4, 4)

	dice, err := Dice(empty, empty)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(dice))

	iou, err := IoU(empty, empty)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(iou))
}

func TestPixelF1_EmptyPredictionIsNaN(t *testing.T) {
	pred := mask(t, 4, 4)
	truth := mask(t, 4, 4, [4]int{0, 2, 0, 2})

	f1, err := PixelF1(pred, truth)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f1))
}

func TestL1_KnownValue(t *testing.T) {
	pred, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	truth, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(pred.AsFloat32(), []float32{0, 1, 0.5, 0.5})
	copy(truth.AsFloat32(), []float32{1, 1, 0, 0.5})

	l1, err := L1(pred, truth)
	require.NoError(t, err)
	assert.InDelta(t, 0.375, l1, 1e-12)
}

func TestThresholdConvention_FloatVsInt(t *testing.T) {
	// Float masks threshold at 0.5, integer masks at nonzero, so a {0,1}
	// float label and its uint8 counterpart describe the same foreground.
	f, err := tensor.NewRaw(tensor.Shape{1, 4}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(f.AsFloat32(), []float32{0, 1, 0, 1})
	u := mask(t, 1, 4, [4]int{0, 1, 1, 2}, [4]int{0, 1, 3, 4})

	dice, err := Dice(f, u)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dice)
}

func TestCompute_AllNames(t *testing.T) {
	truth := mask(t, 8, 8, [4]int{0, 4, 0, 4})
	pred := mask(t, 8, 8, [4]int{0, 4, 0, 4})

	names := append([]string{}, DefaultNames...)
	names = append(names, MetricDice, MetricL1)

	results, err := Compute(pred, truth, names)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, 1.0, results[MetricPixelF1])
	assert.Equal(t, 1.0, results[MetricAJI])
	assert.Equal(t, 1.0, results[MetricIoU])
	assert.Equal(t, 1.0, results[MetricDice])
	assert.Equal(t, 0.0, results[MetricL1])
}

func TestCompute_UnknownMetric(t *testing.T) {
	a := mask(t, 2, 2)

	_, err := Compute(a, a, []string{"hausdorff"})
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestCompute_ShapeMismatch(t *testing.T) {
	a := mask(t, 2, 2)
	b := mask(t, 4, 4)

	_, err := Compute(a, b, []string{MetricIoU})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSummarize_PopulationStd(t *testing.T) {
	s := Summarize([]float64{1, 3})
	assert.Equal(t, 2.0, s.Mean)
	assert.Equal(t, 1.0, s.Std)

	single := Summarize([]float64{5})
	assert.Equal(t, 5.0, single.Mean)
	assert.Equal(t, 0.0, single.Std)
}

func TestSummary_String(t *testing.T) {
	s := Summary{Mean: 0.75, Std: 0.25}
	assert.Equal(t, "0.750 ± 0.250", s.String())
}

func TestAggregate(t *testing.T) {
	perPair := []map[string]float64{
		{MetricIoU: 0.5, MetricDice: 1.0},
		{MetricIoU: 1.0, MetricDice: 1.0},
	}

	agg := Aggregate(perPair)
	require.Len(t, agg, 2)
	assert.Equal(t, 0.75, agg[MetricIoU].Mean)
	assert.Equal(t, 0.25, agg[MetricIoU].Std)
	assert.Equal(t, 1.0, agg[MetricDice].Mean)
	assert.Equal(t, 0.0, agg[MetricDice].Std)
}
