package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/tensor"
)

func floatRaw(t *testing.T, shape tensor.Shape, fill float32) *tensor.RawTensor {
	t.Helper()
	rt, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	data := rt.AsFloat32()
	for i := range data {
		data[i] = fill
	}
	return rt
}

// testPair builds a 2x2 pair whose annotated image is filled with fill and
// unannotated image with fill+100, so stacking order stays checkable.
func testPair(t *testing.T, name string, fill float32) *ViewPair {
	t.Helper()
	return &ViewPair{
		AnnotatedImage:   floatRaw(t, tensor.Shape{3, 2, 2}, fill),
		UnannotatedImage: floatRaw(t, tensor.Shape{3, 2, 2}, fill+100),
		AnnotatedLabel:   uint8Label(t, tensor.Shape{2, 2}, []uint8{1, 0, 0, 1}),
		UnannotatedLabel: uint8Label(t, tensor.Shape{2, 2}, []uint8{0, 1, 1, 0}),
		Name:             name,
	}
}

func TestAssembleBatch_WeakPairing(t *testing.T) {
	backend := cpu.New()
	pairs := []*ViewPair{testPair(t, "a", 1), testPair(t, "b", 2)}

	batch, err := AssembleBatch(pairs, nil, backend)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 3, 2, 2}, batch.Annotated.Shape())
	assert.Equal(t, tensor.Shape{2, 3, 2, 2}, batch.Unannotated.Shape())
	assert.Equal(t, tensor.Shape{2, 1, 2, 2}, batch.AnnotatedLabel.Shape())
	assert.Equal(t, tensor.Shape{2, 1, 2, 2}, batch.UnannotatedLabel.Shape())
	assert.Equal(t, LabelBinary, batch.Kind)
	assert.Equal(t, []string{"a", "b"}, batch.Names)
	assert.Equal(t, 2, batch.Size())

	// sample strides are 12 floats; each sample keeps its own views
	ann := batch.Annotated.AsFloat32()
	unann := batch.Unannotated.AsFloat32()
	assert.Equal(t, float32(1), ann[0])
	assert.Equal(t, float32(2), ann[12])
	assert.Equal(t, float32(101), unann[0])
	assert.Equal(t, float32(102), unann[12])
}

func TestAssembleBatch_StrongPermutation(t *testing.T) {
	backend := cpu.New()
	pairs := []*ViewPair{testPair(t, "a", 1), testPair(t, "b", 2)}
	pairs[1].AnnotatedLabel = uint8Label(t, tensor.Shape{2, 2}, []uint8{1, 1, 1, 1})

	batch, err := AssembleBatch(pairs, []int{1, 0}, backend)
	require.NoError(t, err)

	// sample 0 takes pair b's annotated view and label but keeps its own
	// unannotated side
	ann := batch.Annotated.AsFloat32()
	unann := batch.Unannotated.AsFloat32()
	assert.Equal(t, float32(2), ann[0])
	assert.Equal(t, float32(1), ann[12])
	assert.Equal(t, float32(101), unann[0])
	assert.Equal(t, []float32{1, 1, 1, 1}, batch.AnnotatedLabel.AsFloat32()[:4])
	assert.Equal(t, []float32{0, 1, 1, 0}, batch.UnannotatedLabel.AsFloat32()[:4])
}

func TestAssembleBatch_MissingView(t *testing.T) {
	backend := cpu.New()
	pairs := []*ViewPair{testPair(t, "a", 1), testPair(t, "b", 2)}
	pairs[1].UnannotatedLabel = nil

	_, err := AssembleBatch(pairs, nil, backend)
	require.ErrorIs(t, err, ErrPairCount)
	assert.Contains(t, err.Error(), "sample 1")
}

func TestAssembleBatch_PermutationLength(t *testing.T) {
	backend := cpu.New()
	pairs := []*ViewPair{testPair(t, "a", 1), testPair(t, "b", 2)}

	_, err := AssembleBatch(pairs, []int{0}, backend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permutation")
}

func TestAssembleBatch_Empty(t *testing.T) {
	_, err := AssembleBatch(nil, nil, cpu.New())
	require.Error(t, err)
}

func TestAssembleBatch_ShapeMismatch(t *testing.T) {
	backend := cpu.New()
	pairs := []*ViewPair{testPair(t, "a", 1), testPair(t, "b", 2)}
	pairs[1].AnnotatedImage = floatRaw(t, tensor.Shape{3, 3, 3}, 2)

	_, err := AssembleBatch(pairs, nil, backend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "view 1")
}

func TestAssembleBatch_LabelKindMismatch(t *testing.T) {
	backend := cpu.New()
	pairs := []*ViewPair{testPair(t, "a", 1), testPair(t, "b", 2)}
	for _, p := range pairs {
		p.UnannotatedLabel = floatRaw(t, tensor.Shape{2, 2}, 0.5)
	}

	_, err := AssembleBatch(pairs, nil, backend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kinds disagree")
}

func TestAssembleBatch_ContinuousLabels(t *testing.T) {
	backend := cpu.New()
	pairs := []*ViewPair{testPair(t, "a", 1)}
	pairs[0].AnnotatedLabel = floatRaw(t, tensor.Shape{2, 2}, 0.25)
	pairs[0].UnannotatedLabel = floatRaw(t, tensor.Shape{2, 2}, 0.75)

	batch, err := AssembleBatch(pairs, nil, backend)
	require.NoError(t, err)

	assert.Equal(t, LabelContinuous, batch.Kind)
	assert.Equal(t, []float32{0.25, 0.25, 0.25, 0.25}, batch.AnnotatedLabel.AsFloat32())
}

func TestAssembleBatch_AcceptsChannelLabels(t *testing.T) {
	backend := cpu.New()
	pairs := []*ViewPair{testPair(t, "a", 1)}
	pairs[0].AnnotatedLabel = uint8Label(t, tensor.Shape{1, 2, 2}, []uint8{1, 0, 1, 0})

	batch, err := AssembleBatch(pairs, nil, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, batch.AnnotatedLabel.Shape())
}

func TestSliceSample(t *testing.T) {
	batch, err := tensor.NewRaw(tensor.Shape{2, 1, 2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	data := batch.AsFloat32()
	for i := range data {
		data[i] = float32(i)
	}

	sample := sliceSample(batch, 1)
	assert.Equal(t, tensor.Shape{1, 2, 2}, sample.Shape())
	assert.Equal(t, []float32{4, 5, 6, 7}, sample.AsFloat32())
}
