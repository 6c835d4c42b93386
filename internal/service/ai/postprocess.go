package ai

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// maxNMSCandidates bounds the number of boxes fed into NMS.
const maxNMSCandidates = 30000

// RawOutput is the first output tensor of a forward pass.
type RawOutput struct {
	Data  []float32
	Shape []int
}

// outputLayout describes how boxes are laid out in a YOLO detection head output.
// Channels-first heads are [1, 4+nc, N]; transposed exports are [1, N, 4+nc].
type outputLayout struct {
	channels   int
	anchors    int
	transposed bool
}

func (l outputLayout) numClasses() int {
	return l.channels - 4
}

func (l outputLayout) at(data []float32, anchor, channel int) float32 {
	if l.transposed {
		return data[anchor*l.channels+channel]
	}
	return data[channel*l.anchors+anchor]
}

// parseLayout finds the box/class axis of the output using the known class count.
// When both axes match (a square head) channels-first wins, as it is the default
// export.
func parseLayout(out RawOutput, numClasses int) (outputLayout, error) {
	if numClasses < 1 {
		return outputLayout{}, fmt.Errorf("label table is empty")
	}
	shape := out.Shape
	if len(shape) == 3 {
		if shape[0] != 1 {
			return outputLayout{}, fmt.Errorf("unsupported batch size %d in output shape %v", shape[0], shape)
		}
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return outputLayout{}, fmt.Errorf("unsupported output shape %v", out.Shape)
	}

	channels := 4 + numClasses
	var layout outputLayout
	switch channels {
	case shape[0]:
		layout = outputLayout{channels: shape[0], anchors: shape[1]}
	case shape[1]:
		layout = outputLayout{channels: shape[1], anchors: shape[0], transposed: true}
	default:
		return outputLayout{}, fmt.Errorf("output shape %v does not fit %d classes (no axis of size %d)", out.Shape, numClasses, channels)
	}
	if len(out.Data) != layout.channels*layout.anchors {
		return outputLayout{}, fmt.Errorf("output has %d values, shape %v needs %d", len(out.Data), out.Shape, layout.channels*layout.anchors)
	}
	return layout, nil
}

// candidate is a box in network input coordinates (x1, y1, x2, y2).
type candidate struct {
	classID int
	score   float32
	box     [4]float32
}

// decodeCandidates keeps, for each anchor, the best scoring class when its
// score is strictly above threshold.
func decodeCandidates(out RawOutput, layout outputLayout, threshold float32) []candidate {
	nc := layout.numClasses()
	cands := make([]candidate, 0, 64)

	for i := 0; i < layout.anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < nc; c++ {
			if s := layout.at(out.Data, i, 4+c); best < 0 || s > bestScore {
				best, bestScore = c, s
			}
		}
		if bestScore <= threshold {
			continue
		}

		cx := layout.at(out.Data, i, 0)
		cy := layout.at(out.Data, i, 1)
		w := layout.at(out.Data, i, 2)
		h := layout.at(out.Data, i, 3)
		cands = append(cands, candidate{
			classID: best,
			score:   bestScore,
			box:     [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2},
		})
	}
	return cands
}

// nonMaxSuppression runs class-aware NMS. The result is ordered by descending
// score and holds at most maxDet boxes.
func nonMaxSuppression(cands []candidate, iouThreshold float32, maxDet int) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})
	if len(cands) > maxNMSCandidates {
		cands = cands[:maxNMSCandidates]
	}

	kept := make([]candidate, 0, min(len(cands), maxDet))
	for _, c := range cands {
		if len(kept) >= maxDet {
			break
		}
		suppressed := false
		for _, k := range kept {
			if k.classID == c.classID && iou(k.box, c.box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// letterbox records how a source image was fitted into the square network input.
type letterbox struct {
	size       int
	scale      float64
	padX, padY int
	newW, newH int
	srcW, srcH int
}

func newLetterbox(srcW, srcH, size int) letterbox {
	scale := math.Min(float64(size)/float64(srcH), float64(size)/float64(srcW))
	newW := int(math.RoundToEven(float64(srcW) * scale))
	newH := int(math.RoundToEven(float64(srcH) * scale))
	dw := float64(size-newW) / 2
	dh := float64(size-newH) / 2

	return letterbox{
		size:  size,
		scale: scale,
		padX:  int(math.RoundToEven(dw - 0.1)),
		padY:  int(math.RoundToEven(dh - 0.1)),
		newW:  newW,
		newH:  newH,
		srcW:  srcW,
		srcH:  srcH,
	}
}

// borders returns top, bottom, left, right padding in pixels.
func (lb letterbox) borders() (int, int, int, int) {
	return lb.padY, lb.size - lb.newH - lb.padY, lb.padX, lb.size - lb.newW - lb.padX
}

// toSource maps a box from network input space back onto the source image and clips it.
func (lb letterbox) toSource(box [4]float32) image.Rectangle {
	conv := func(v float32, pad, limit int) int {
		x := (float64(v) - float64(pad)) / lb.scale
		x = math.Max(0, math.Min(float64(limit), x))
		return int(math.Round(x))
	}
	return image.Rect(
		conv(box[0], lb.padX, lb.srcW),
		conv(box[1], lb.padY, lb.srcH),
		conv(box[2], lb.padX, lb.srcW),
		conv(box[3], lb.padY, lb.srcH),
	)
}
