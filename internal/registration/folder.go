package registration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valyala/fastrand"

	"github.com/born-ml/cellwarp/internal/orient"
	"github.com/born-ml/cellwarp/internal/patchio"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// FolderConfig selects the patches a FolderDataset serves.
type FolderConfig struct {
	ImageDir string

	// LabelDir defaults to ImageDir with "image" replaced by "label".
	LabelDir string

	// Organ keeps only patches whose file name contains it. Empty keeps
	// every patch.
	Organ string

	// Percentage is the few-shot share of the patches to keep, drawn by a
	// seeded shuffle. Zero means 100.
	Percentage float64

	// Seed drives the few-shot draw, the split shuffle and the per-patch
	// view transforms.
	Seed int
}

// FolderDataset reads annotated patches from a directory pair and
// synthesizes the second view of each sample with a deterministic dihedral
// transform, so the predictor trains on known rigid misalignments.
//
// The transform is keyed by sample index, not drawn per epoch: every epoch
// sees the same view pair for a given patch.
type FolderDataset[B tensor.Backend] struct {
	// Augment controls the synthesized view. Constructed datasets augment;
	// switching it off serves each patch as both views unchanged.
	Augment bool

	backend  B
	imageDir string
	labelDir string
	names    []string
	seed     int
}

// OpenFolderDataset lists and filters the image directory and verifies
// that every kept patch has a label.
func OpenFolderDataset[B tensor.Backend](cfg FolderConfig, backend B) (*FolderDataset[B], error) {
	if cfg.ImageDir == "" {
		return nil, errors.New("registration: empty image dir")
	}
	labelDir := cfg.LabelDir
	if labelDir == "" {
		labelDir = LabelPathFor(cfg.ImageDir)
	}
	pct := cfg.Percentage
	if pct == 0 {
		pct = 100
	}
	if pct < 0 || pct > 100 {
		return nil, fmt.Errorf("registration: percentage %.1f out of range (0,100]", pct)
	}

	names, err := listImageFiles(cfg.ImageDir)
	if err != nil {
		return nil, err
	}
	if cfg.Organ != "" {
		kept := names[:0]
		for _, name := range names {
			if strings.Contains(name, cfg.Organ) {
				kept = append(kept, name)
			}
		}
		names = kept
	}
	if len(names) == 0 {
		if cfg.Organ != "" {
			return nil, fmt.Errorf("registration: no patches for organ %q in %s", cfg.Organ, cfg.ImageDir)
		}
		return nil, fmt.Errorf("registration: no patches in %s", cfg.ImageDir)
	}
	for _, name := range names {
		if !fileExists(filepath.Join(labelDir, name)) {
			return nil, fmt.Errorf("registration: no label for %s in %s", name, labelDir)
		}
	}

	if pct < 100 {
		shuffleNames(names, cfg.Seed)
		keep := int(float64(len(names)) * pct / 100)
		if keep == 0 {
			return nil, fmt.Errorf("registration: %.1f%% of %d patches leaves no samples", pct, len(names))
		}
		names = names[:keep]
		sort.Strings(names)
	}

	return &FolderDataset[B]{
		Augment:  true,
		backend:  backend,
		imageDir: cfg.ImageDir,
		labelDir: labelDir,
		names:    names,
		seed:     cfg.Seed,
	}, nil
}

// Len returns the number of patches.
func (d *FolderDataset[B]) Len() int {
	return len(d.names)
}

// Names returns the kept patch file names in serving order.
func (d *FolderDataset[B]) Names() []string {
	names := make([]string, len(d.names))
	copy(names, d.names)
	return names
}

// Pair loads patch i and builds its view pair.
func (d *FolderDataset[B]) Pair(i int) (*ViewPair, error) {
	if i < 0 || i >= len(d.names) {
		return nil, fmt.Errorf("registration: index %d out of range [0,%d)", i, len(d.names))
	}
	name := d.names[i]

	annImage, err := patchio.LoadImageTensor(filepath.Join(d.imageDir, name))
	if err != nil {
		return nil, err
	}
	annLabel, err := patchio.LoadLabel(filepath.Join(d.labelDir, name))
	if err != nil {
		return nil, err
	}

	var unannImage, unannLabel *tensor.RawTensor
	if d.Augment {
		shape := annImage.Shape()
		dih := d.viewTransform(i, shape[1] == shape[2])
		unannImage = d.applyTransform(dih, annImage)
		unannLabel = d.applyTransform(dih, annLabel)
	} else {
		unannImage = annImage.Clone()
		unannLabel = annLabel.Clone()
	}

	return &ViewPair{
		AnnotatedImage:   annImage,
		UnannotatedImage: unannImage,
		AnnotatedLabel:   annLabel,
		UnannotatedLabel: unannLabel,
		Name:             name,
	}, nil
}

// Split partitions the dataset by the given ratios after a seeded shuffle.
// Rounding leftovers go to the training split; train and val must come out
// nonempty.
func (d *FolderDataset[B]) Split(trainRatio, valRatio, testRatio int) (train, val, test *FolderDataset[B], err error) {
	if trainRatio < 0 || valRatio < 0 || testRatio < 0 || trainRatio+valRatio+testRatio == 0 {
		return nil, nil, nil, fmt.Errorf("registration: bad split ratios %d:%d:%d", trainRatio, valRatio, testRatio)
	}

	names := d.Names()
	shuffleNames(names, d.seed+1)

	n := len(names)
	total := trainRatio + valRatio + testRatio
	nVal := n * valRatio / total
	nTest := n * testRatio / total
	nTrain := n - nVal - nTest
	if nTrain == 0 || nVal == 0 {
		return nil, nil, nil, fmt.Errorf("registration: split %d:%d:%d of %d patches leaves an empty subset",
			trainRatio, valRatio, testRatio, n)
	}

	return d.subset(names[:nTrain]), d.subset(names[nTrain : nTrain+nVal]), d.subset(names[nTrain+nVal:]), nil
}

// subset clones the dataset over a different name list.
func (d *FolderDataset[B]) subset(names []string) *FolderDataset[B] {
	sub := *d
	sub.names = names
	return &sub
}

// viewTransform draws the dihedral transform for sample i. Non-square
// patches only admit the half-turn subgroup, which preserves H and W.
func (d *FolderDataset[B]) viewTransform(i int, square bool) orient.Dihedral {
	var rng fastrand.RNG
	rng.Seed(uint32(d.seed+i) + 1)

	candidates := orient.Enumerate()
	if square {
		return candidates[rng.Uint32n(8)]
	}
	half := [4]orient.Dihedral{candidates[0], candidates[2], candidates[4], candidates[6]}
	return half[rng.Uint32n(4)]
}

// applyTransform runs a dihedral transform over a [C,H,W] image or [H,W]
// label by lifting it to [N,C,H,W] for the backend's planar ops. Flip
// first, then rotate, the orient.Apply order.
func (d *FolderDataset[B]) applyTransform(dih orient.Dihedral, raw *tensor.RawTensor) *tensor.RawTensor {
	be := d.backend
	dims := len(raw.Shape())
	lifted := raw
	for n := dims; n < 4; n++ {
		lifted = be.Unsqueeze(lifted, 0)
	}
	if dih.Flip {
		lifted = be.FlipH(lifted)
	}
	if dih.Quarter != 0 {
		lifted = be.Rot90(lifted, dih.Quarter)
	}
	for n := dims; n < 4; n++ {
		lifted = be.Squeeze(lifted, 0)
	}
	return lifted
}

// shuffleNames permutes names in place. The +1 keeps seed 0 off the
// generator's self-seeding zero state.
func shuffleNames(names []string, seed int) {
	var rng fastrand.RNG
	rng.Seed(uint32(seed) + 1)
	for i := len(names) - 1; i > 0; i-- {
		j := int(rng.Uint32n(uint32(i + 1)))
		names[i], names[j] = names[j], names[i]
	}
}

// imageExts are the patch formats the loaders decode.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".webp": true,
	".bmp":  true,
}

func isImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// listImageFiles returns the sorted image file names directly under dir.
func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
