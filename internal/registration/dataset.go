package registration

import (
	"errors"
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// ViewPair is one training sample: two views of the same subject with
// their labels. Images are float32 [C,H,W] in [-1,1]; labels are [H,W] or
// [1,H,W] in any supported label dtype.
type ViewPair struct {
	AnnotatedImage   *tensor.RawTensor
	UnannotatedImage *tensor.RawTensor
	AnnotatedLabel   *tensor.RawTensor
	UnannotatedLabel *tensor.RawTensor
	Name             string
}

// Dataset yields view pairs by index. Implementations own augmentation and
// prefetch; the trainer only sees assembled pairs.
type Dataset interface {
	Len() int
	Pair(i int) (*ViewPair, error)
}

// ErrPairCount reports a sample that does not provide exactly two views
// with labels.
var ErrPairCount = errors.New("view pair")

// Batch is a stacked mini-batch ready for the predictor. Labels are
// classified once per batch, so Kind holds for every sample in it.
type Batch struct {
	Annotated        *tensor.RawTensor // [N,C,H,W] float32
	Unannotated      *tensor.RawTensor // [N,C,H,W] float32
	AnnotatedLabel   *tensor.RawTensor // [N,1,H,W] float32
	UnannotatedLabel *tensor.RawTensor // [N,1,H,W] float32
	Kind             LabelKind
	Names            []string
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	return b.Annotated.Shape()[0]
}

// AssembleBatch stacks pairs into batch tensors and classifies both label
// stacks. perm redirects the annotated view: sample i takes its annotated
// image and label from pairs[perm[i]] (strong mode pairs different
// subjects); a nil perm keeps the direct weak-mode pairing. Label kinds of
// the two stacks must agree.
func AssembleBatch(pairs []*ViewPair, perm []int, backend tensor.Backend) (*Batch, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if perm != nil && len(perm) != len(pairs) {
		return nil, fmt.Errorf("permutation has %d entries for %d pairs", len(perm), len(pairs))
	}
	for i, p := range pairs {
		if p == nil || p.AnnotatedImage == nil || p.UnannotatedImage == nil ||
			p.AnnotatedLabel == nil || p.UnannotatedLabel == nil {
			return nil, fmt.Errorf("%w: sample %d does not provide two views with labels", ErrPairCount, i)
		}
	}

	annAt := func(i int) *ViewPair {
		if perm == nil {
			return pairs[i]
		}
		return pairs[perm[i]]
	}

	annotated := make([]*tensor.RawTensor, len(pairs))
	unannotated := make([]*tensor.RawTensor, len(pairs))
	annotatedLabels := make([]*tensor.RawTensor, len(pairs))
	unannotatedLabels := make([]*tensor.RawTensor, len(pairs))
	names := make([]string, len(pairs))
	for i, p := range pairs {
		annotated[i] = annAt(i).AnnotatedImage
		annotatedLabels[i] = annAt(i).AnnotatedLabel
		unannotated[i] = p.UnannotatedImage
		unannotatedLabels[i] = p.UnannotatedLabel
		names[i] = p.Name
	}

	annStack, err := stackImages(annotated)
	if err != nil {
		return nil, fmt.Errorf("annotated images: %w", err)
	}
	unannStack, err := stackImages(unannotated)
	if err != nil {
		return nil, fmt.Errorf("unannotated images: %w", err)
	}
	if !annStack.Shape().Equal(unannStack.Shape()) {
		return nil, fmt.Errorf("annotated %v and unannotated %v views disagree on shape",
			annStack.Shape(), unannStack.Shape())
	}

	annLabelStack, err := stackLabels(annotatedLabels)
	if err != nil {
		return nil, fmt.Errorf("annotated labels: %w", err)
	}
	unannLabelStack, err := stackLabels(unannotatedLabels)
	if err != nil {
		return nil, fmt.Errorf("unannotated labels: %w", err)
	}
	if annLabelStack.Shape()[2] != annStack.Shape()[2] || annLabelStack.Shape()[3] != annStack.Shape()[3] {
		return nil, fmt.Errorf("labels %v and images %v disagree on spatial dims",
			annLabelStack.Shape(), annStack.Shape())
	}

	annLabels, annKind, err := ClassifyAndNormalize(annLabelStack, backend)
	if err != nil {
		return nil, err
	}
	unannLabels, unannKind, err := ClassifyAndNormalize(unannLabelStack, backend)
	if err != nil {
		return nil, err
	}
	if annKind != unannKind {
		return nil, fmt.Errorf("label kinds disagree within batch: %s vs %s", annKind, unannKind)
	}

	return &Batch{
		Annotated:        annStack,
		Unannotated:      unannStack,
		AnnotatedLabel:   annLabels,
		UnannotatedLabel: unannLabels,
		Kind:             annKind,
		Names:            names,
	}, nil
}

// stackImages stacks [C,H,W] float32 views into one [N,C,H,W] tensor.
func stackImages(items []*tensor.RawTensor) (*tensor.RawTensor, error) {
	first := items[0].Shape()
	if len(first) != 3 {
		return nil, fmt.Errorf("view must be [C,H,W], got %v", first)
	}
	for i, it := range items {
		if it.DType() != tensor.Float32 {
			return nil, fmt.Errorf("view %d must be float32, got %s", i, it.DType())
		}
		if !it.Shape().Equal(first) {
			return nil, fmt.Errorf("view %d is %v, want %v", i, it.Shape(), first)
		}
	}

	out, err := tensor.NewRaw(tensor.Shape{len(items), first[0], first[1], first[2]},
		tensor.Float32, items[0].Device())
	if err != nil {
		return nil, err
	}
	stride := items[0].ByteSize()
	data := out.Data()
	for i, it := range items {
		copy(data[i*stride:(i+1)*stride], it.Data())
	}
	return out, nil
}

// stackLabels stacks [H,W] or [1,H,W] labels of one dtype into [N,1,H,W].
func stackLabels(items []*tensor.RawTensor) (*tensor.RawTensor, error) {
	h, w, err := labelDims(items[0].Shape())
	if err != nil {
		return nil, err
	}
	dtype := items[0].DType()
	for i, it := range items {
		ih, iw, err := labelDims(it.Shape())
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i, err)
		}
		if ih != h || iw != w {
			return nil, fmt.Errorf("label %d is %dx%d, want %dx%d", i, ih, iw, h, w)
		}
		if it.DType() != dtype {
			return nil, fmt.Errorf("label %d is %s, batch started with %s", i, it.DType(), dtype)
		}
	}

	out, err := tensor.NewRaw(tensor.Shape{len(items), 1, h, w}, dtype, items[0].Device())
	if err != nil {
		return nil, err
	}
	stride := items[0].ByteSize()
	data := out.Data()
	for i, it := range items {
		copy(data[i*stride:(i+1)*stride], it.Data())
	}
	return out, nil
}

func labelDims(shape tensor.Shape) (h, w int, err error) {
	switch {
	case len(shape) == 2:
		return shape[0], shape[1], nil
	case len(shape) == 3 && shape[0] == 1:
		return shape[1], shape[2], nil
	default:
		return 0, 0, fmt.Errorf("label must be [H,W] or [1,H,W], got %v", shape)
	}
}

// sliceSample copies sample n of a [N,...] batch into a fresh tensor with
// the leading dim dropped.
func sliceSample(batch *tensor.RawTensor, n int) *tensor.RawTensor {
	shape := batch.Shape()
	sub := make(tensor.Shape, len(shape)-1)
	copy(sub, shape[1:])

	out, err := tensor.NewRaw(sub, batch.DType(), batch.Device())
	if err != nil {
		panic(fmt.Sprintf("registration: %v", err))
	}
	stride := out.ByteSize()
	copy(out.Data(), batch.Data()[n*stride:(n+1)*stride])
	return out
}
