package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/metrics"
	"github.com/born-ml/cellwarp/internal/tensor"
)

func uint8Label(t *testing.T, shape tensor.Shape, values []uint8) *tensor.RawTensor {
	t.Helper()
	rt, err := tensor.NewRaw(shape, tensor.Uint8, tensor.CPU)
	require.NoError(t, err)
	copy(rt.AsUint8(), values)
	return rt
}

func TestClassifyAndNormalize_Uint8Binary(t *testing.T) {
	backend := cpu.New()
	label := uint8Label(t, tensor.Shape{2, 2}, []uint8{0, 1, 1, 0})

	out, kind, err := ClassifyAndNormalize(label, backend)
	require.NoError(t, err)

	assert.Equal(t, LabelBinary, kind)
	assert.Equal(t, tensor.Float32, out.DType())
	assert.Equal(t, []float32{0, 1, 1, 0}, out.AsFloat32())
}

func TestClassifyAndNormalize_RejectsNonBinaryInts(t *testing.T) {
	backend := cpu.New()
	label := uint8Label(t, tensor.Shape{2, 2}, []uint8{0, 1, 2, 0})

	_, _, err := ClassifyAndNormalize(label, backend)
	require.ErrorIs(t, err, ErrLabelRange)
	assert.Contains(t, err.Error(), "2")
}

func TestClassifyAndNormalize_Float32PassesThrough(t *testing.T) {
	backend := cpu.New()
	label, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(label.AsFloat32(), []float32{0.1, 0.9, 0.5, 2.5})

	out, kind, err := ClassifyAndNormalize(label, backend)
	require.NoError(t, err)

	assert.Equal(t, LabelContinuous, kind)
	// continuous labels are not thresholded, values survive untouched
	assert.Equal(t, []float32{0.1, 0.9, 0.5, 2.5}, out.AsFloat32())
}

func TestClassifyAndNormalize_Float64Narrows(t *testing.T) {
	backend := cpu.New()
	label, err := tensor.NewRaw(tensor.Shape{3}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	copy(label.AsFloat64(), []float64{0.25, 1.5, -0.5})

	out, kind, err := ClassifyAndNormalize(label, backend)
	require.NoError(t, err)

	assert.Equal(t, LabelContinuous, kind)
	assert.Equal(t, tensor.Float32, out.DType())
	assert.InDeltaSlice(t, []float32{0.25, 1.5, -0.5}, out.AsFloat32(), 1e-6)
}

func TestClassifyAndNormalize_Bool(t *testing.T) {
	backend := cpu.New()
	label, err := tensor.NewRaw(tensor.Shape{4}, tensor.Bool, tensor.CPU)
	require.NoError(t, err)
	copy(label.AsBool(), []bool{true, false, false, true})

	out, kind, err := ClassifyAndNormalize(label, backend)
	require.NoError(t, err)

	assert.Equal(t, LabelBinary, kind)
	assert.Equal(t, []float32{1, 0, 0, 1}, out.AsFloat32())
}

func TestClassifyAndNormalize_Idempotent(t *testing.T) {
	backend := cpu.New()
	label := uint8Label(t, tensor.Shape{2, 2}, []uint8{0, 1, 1, 1})

	once, kind, err := ClassifyAndNormalize(label, backend)
	require.NoError(t, err)
	require.Equal(t, LabelBinary, kind)

	// a second pass sees float32 {0,1} and keeps it, now as continuous
	twice, kind, err := ClassifyAndNormalize(once, backend)
	require.NoError(t, err)
	assert.Equal(t, LabelContinuous, kind)
	assert.Equal(t, once.AsFloat32(), twice.AsFloat32())
}

func TestLabelKind_Strings(t *testing.T) {
	assert.Equal(t, "binary", LabelBinary.String())
	assert.Equal(t, "continuous", LabelContinuous.String())
	assert.Equal(t, metrics.MetricDice, LabelBinary.MetricName())
	assert.Equal(t, metrics.MetricL1, LabelContinuous.MetricName())
}
