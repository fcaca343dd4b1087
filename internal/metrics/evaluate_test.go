package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// writeStub creates an empty placeholder file so directory walking finds it;
// the test loader serves tensor content from a map instead of decoding.
func writeStub(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func mapLoader(tensors map[string]*tensor.RawTensor) LabelLoader {
	return func(path string) (*tensor.RawTensor, error) {
		rt, ok := tensors[path]
		if !ok {
			return nil, fmt.Errorf("no stub tensor for %s", path)
		}
		return rt, nil
	}
}

func TestEvaluator_EvaluateDirs(t *testing.T) {
	predDir := t.TempDir()
	truthDir := t.TempDir()

	full := mask(t, 4, 4, [4]int{0, 2, 0, 2})
	half := mask(t, 4, 4, [4]int{0, 1, 0, 2})

	tensors := map[string]*tensor.RawTensor{
		filepath.Join(predDir, "a.png"):  full,
		filepath.Join(truthDir, "a.png"): full,
		filepath.Join(predDir, "b.png"):  half,
		filepath.Join(truthDir, "b.png"): full,
	}
	for path := range tensors {
		writeStub(t, path)
	}

	e := &Evaluator{
		Loader: mapLoader(tensors),
		Names:  []string{MetricIoU},
	}

	results, err := e.EvaluateDirs(predDir, truthDir)
	require.NoError(t, err)
	require.Contains(t, results, MetricIoU)

	// Pair a scores 1.0, pair b scores 0.5.
	assert.InDelta(t, 0.75, results[MetricIoU].Mean, 1e-12)
	assert.InDelta(t, 0.25, results[MetricIoU].Std, 1e-12)
}

func TestEvaluator_CountMismatch(t *testing.T) {
	predDir := t.TempDir()
	truthDir := t.TempDir()

	writeStub(t, filepath.Join(predDir, "a.png"))
	writeStub(t, filepath.Join(predDir, "b.png"))
	writeStub(t, filepath.Join(truthDir, "a.png"))

	e := &Evaluator{Loader: mapLoader(nil), Names: []string{MetricIoU}}

	_, err := e.EvaluateDirs(predDir, truthDir)
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestEvaluator_NameMismatch(t *testing.T) {
	predDir := t.TempDir()
	truthDir := t.TempDir()

	writeStub(t, filepath.Join(predDir, "a.png"))
	writeStub(t, filepath.Join(truthDir, "b.png"))

	e := &Evaluator{Loader: mapLoader(nil), Names: []string{MetricIoU}}

	_, err := e.EvaluateDirs(predDir, truthDir)
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestEvaluator_SourceFilter(t *testing.T) {
	predDir := t.TempDir()
	truthDir := t.TempDir()

	full := mask(t, 4, 4, [4]int{0, 2, 0, 2})
	half := mask(t, 4, 4, [4]int{0, 1, 0, 2})

	tensors := map[string]*tensor.RawTensor{
		filepath.Join(predDir, "colon_1.png"):   full,
		filepath.Join(truthDir, "colon_1.png"):  full,
		filepath.Join(predDir, "breast_1.png"):  half,
		filepath.Join(truthDir, "breast_1.png"): full,
	}
	for path := range tensors {
		writeStub(t, path)
	}

	e := &Evaluator{
		Loader:  mapLoader(tensors),
		Names:   []string{MetricIoU},
		Sources: []string{"colon"},
	}

	results, err := e.EvaluateDirs(predDir, truthDir)
	require.NoError(t, err)

	// Only the colon pair survives the filter and it matches exactly.
	assert.Equal(t, 1.0, results[MetricIoU].Mean)
	assert.Equal(t, 0.0, results[MetricIoU].Std)
}

func TestEvaluator_IgnoresNonPNG(t *testing.T) {
	predDir := t.TempDir()
	truthDir := t.TempDir()

	full := mask(t, 4, 4, [4]int{0, 2, 0, 2})
	tensors := map[string]*tensor.RawTensor{
		filepath.Join(predDir, "a.png"):  full,
		filepath.Join(truthDir, "a.png"): full,
	}
	for path := range tensors {
		writeStub(t, path)
	}
	writeStub(t, filepath.Join(predDir, "notes.txt"))

	e := &Evaluator{Loader: mapLoader(tensors), Names: []string{MetricDice}}

	results, err := e.EvaluateDirs(predDir, truthDir)
	require.NoError(t, err)
	assert.Equal(t, 1.0, results[MetricDice].Mean)
}
