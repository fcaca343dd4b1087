package metrics

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// AJI computes the aggregated Jaccard index between the instance sets of a
// predicted and a ground-truth mask.
//
// Instances are connected components of the foreground (8-connectivity),
// numbered in scan order. Each ground-truth instance pairs with the
// prediction of highest IoU when any prediction overlaps it; the matched
// intersections and unions accumulate, unmatched ground-truth pixels and
// the pixels of predictions never matched enlarge the union. The result is
// total intersection over total union.
//
// The mask must be a single 2D plane: trailing dims [H,W] with any leading
// dims equal to 1.
func AJI(pred, truth *tensor.RawTensor) (float64, error) {
	if !pred.Shape().Equal(truth.Shape()) {
		return 0, fmt.Errorf("%w: pred %v vs truth %v", ErrShapeMismatch, pred.Shape(), truth.Shape())
	}
	h, w, err := planeDims(pred.Shape())
	if err != nil {
		return 0, err
	}

	predInstances := components(foreground(pred), h, w)
	truthInstances := components(foreground(truth), h, w)

	// Per-pixel prediction instance id, offset by one so zero is background.
	predID := make([]int32, h*w)
	for id, inst := range predInstances {
		for _, px := range inst {
			predID[px] = int32(id + 1)
		}
	}

	var totalInter, totalUnion int
	matched := make([]bool, len(predInstances))

	for _, gt := range truthInstances {
		// Intersection pixel counts against every overlapping prediction.
		inter := make(map[int32]int)
		for _, px := range gt {
			if id := predID[px]; id != 0 {
				inter[id-1]++
			}
		}

		bestID := -1
		bestIoU := 0.0
		for id := range predInstances {
			in, ok := inter[int32(id)]
			if !ok {
				continue
			}
			iou := float64(in) / float64(len(gt)+len(predInstances[id])-in)
			if iou > bestIoU {
				bestIoU = iou
				bestID = id
			}
		}

		if bestID < 0 {
			totalUnion += len(gt)
			continue
		}
		in := inter[int32(bestID)]
		totalInter += in
		totalUnion += len(gt) + len(predInstances[bestID]) - in
		matched[bestID] = true
	}

	for id, inst := range predInstances {
		if !matched[id] {
			totalUnion += len(inst)
		}
	}

	return float64(totalInter) / float64(totalUnion), nil
}

// planeDims extracts [H,W] from a shape whose leading dims are all 1.
func planeDims(shape tensor.Shape) (h, w int, err error) {
	if len(shape) < 2 {
		return 0, 0, fmt.Errorf("%w: need a 2D label plane, got %v", ErrShapeMismatch, shape)
	}
	for _, dim := range shape[:len(shape)-2] {
		if dim != 1 {
			return 0, 0, fmt.Errorf("%w: need a single 2D label plane, got %v", ErrShapeMismatch, shape)
		}
	}
	return shape[len(shape)-2], shape[len(shape)-1], nil
}

// components labels connected foreground regions with 8-connectivity,
// returning each instance as a list of flat pixel indices in discovery
// (scan) order.
func components(fg []bool, h, w int) [][]int {
	visited := make([]bool, len(fg))
	var instances [][]int
	var stack []int

	for start := range fg {
		if !fg[start] || visited[start] {
			continue
		}

		var inst []int
		visited[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			px := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			inst = append(inst, px)

			y := px / w
			x := px % w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny := y + dy
					nx := x + dx
					if ny < 0 || ny >= h || nx < 0 || nx >= w {
						continue
					}
					np := ny*w + nx
					if fg[np] && !visited[np] {
						visited[np] = true
						stack = append(stack, np)
					}
				}
			}
		}
		instances = append(instances, inst)
	}
	return instances
}
