// Package vision runs landmark detection on camera frames and draws
// the resulting skeleton overlays.
package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Landmark is one detected keypoint in frame coordinates. Keypoints
// below the confidence floor keep their slot in the set but are not
// Visible, so connection indices stay stable.
type Landmark struct {
	At      image.Point
	Score   float32
	Visible bool
}

// Set is one detected skeleton: the keypoints plus the index pairs
// that connect them.
type Set struct {
	Landmarks []Landmark
	Pairs     [][2]int
}

// Detector produces zero or more landmark sets for a frame. The input
// Mat is in the colour order the detector was built for and must not
// be retained past the call.
type Detector interface {
	Detect(img gocv.Mat) ([]Set, error)
	Close() error
}

// Style controls how one detector's output is rendered. Joint and bone
// colours are distinct per detector so overlapping skeletons stay
// readable.
type Style struct {
	Joint     color.RGBA
	Bone      color.RGBA
	Radius    int
	Thickness int
}

func drawSet(dst *gocv.Mat, set Set, style Style) {
	for _, pair := range set.Pairs {
		a, b := pair[0], pair[1]
		if a >= len(set.Landmarks) || b >= len(set.Landmarks) {
			continue
		}
		if !set.Landmarks[a].Visible || !set.Landmarks[b].Visible {
			continue
		}
		gocv.Line(dst, set.Landmarks[a].At, set.Landmarks[b].At, style.Bone, style.Thickness)
	}
	for _, lm := range set.Landmarks {
		if !lm.Visible {
			continue
		}
		gocv.Circle(dst, lm.At, style.Radius, style.Joint, -1)
	}
}
