package vision

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MinConfidence is the fixed per-keypoint confidence floor for both
// detection passes.
const MinConfidence = 0.5

// netInputSize is the square input resolution the OpenPose-family
// models were trained on.
var netInputSize = image.Pt(368, 368)

// cocoPosePairs connects the 18 COCO body keypoints.
var cocoPosePairs = [][2]int{
	{1, 2}, {1, 5}, {2, 3}, {3, 4}, {5, 6}, {6, 7},
	{1, 8}, {8, 9}, {9, 10}, {1, 11}, {11, 12}, {12, 13},
	{1, 0}, {0, 14}, {14, 15}, {0, 16}, {16, 17},
}

// handPairs connects the 21 hand keypoints, thumb to pinky.
var handPairs = [][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 4},
	{0, 5}, {5, 6}, {6, 7}, {7, 8},
	{0, 9}, {9, 10}, {10, 11}, {11, 12},
	{0, 13}, {13, 14}, {14, 15}, {15, 16},
	{0, 17}, {17, 18}, {18, 19}, {19, 20},
}

// NetDetector runs a heatmap-producing landmark network through the
// OpenCV DNN module. One instance is private to one annotator.
type NetDetector struct {
	net       gocv.Net
	parts     int
	pairs     [][2]int
	closeOnce sync.Once
	closeErr  error
}

// NewPoseDetector loads the COCO body-pose network.
func NewPoseDetector(proto, weights string) (*NetDetector, error) {
	return newNetDetector(proto, weights, 18, cocoPosePairs)
}

// NewHandDetector loads the hand-landmark network.
func NewHandDetector(proto, weights string) (*NetDetector, error) {
	return newNetDetector(proto, weights, 21, handPairs)
}

func newNetDetector(proto, weights string, parts int, pairs [][2]int) (*NetDetector, error) {
	net := gocv.ReadNet(weights, proto)
	if net.Empty() {
		return nil, fmt.Errorf("read landmark network: model %q, config %q", weights, proto)
	}
	return &NetDetector{net: net, parts: parts, pairs: pairs}, nil
}

// Detect runs one forward pass over the whole frame and extracts the
// strongest location per part from the heatmap output. Returns no sets
// when every part is below the confidence floor.
func (d *NetDetector) Detect(img gocv.Mat) ([]Set, error) {
	blob := gocv.BlobFromImage(img, 1.0/255.0, netInputSize, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sz := out.Size()
	if len(sz) != 4 || sz[1] < d.parts {
		return nil, fmt.Errorf("unexpected network output shape %v", sz)
	}
	mapH, mapW := sz[2], sz[3]

	// Flatten [1,C,H,W] to C rows of H*W scores.
	heatmaps := out.Reshape(1, sz[1])
	defer heatmaps.Close()

	set := Set{
		Landmarks: make([]Landmark, d.parts),
		Pairs:     d.pairs,
	}
	detected := false

	for part := 0; part < d.parts; part++ {
		row := heatmaps.RowRange(part, part+1)
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(row)
		row.Close()

		set.Landmarks[part].Score = maxVal
		if maxVal < MinConfidence {
			continue
		}

		flat := maxLoc.X
		set.Landmarks[part].At = image.Pt(
			(flat%mapW)*img.Cols()/mapW,
			(flat/mapW)*img.Rows()/mapH,
		)
		set.Landmarks[part].Visible = true
		detected = true
	}

	if !detected {
		return nil, nil
	}
	return []Set{set}, nil
}

// Close releases the network exactly once.
func (d *NetDetector) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.net.Close()
	})
	return d.closeErr
}
