package vision

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"webcam-streamer/configs"
	"webcam-streamer/internal/metrics"
)

var (
	poseStyle = Style{
		Joint:     color.RGBA{0, 255, 0, 0},
		Bone:      color.RGBA{255, 0, 0, 0},
		Radius:    3,
		Thickness: 2,
	}
	handStyle = Style{
		Joint:     color.RGBA{0, 0, 255, 0},
		Bone:      color.RGBA{255, 255, 0, 0},
		Radius:    3,
		Thickness: 2,
	}
)

// Annotator draws pose and hand skeletons onto frames. The two
// detection passes are independent: a frame with no detections passes
// through untouched.
type Annotator struct {
	pose      Detector
	hands     Detector
	rgb       gocv.Mat
	closeOnce sync.Once
	closeErr  error
	logger    *slog.Logger
}

// NewAnnotator builds an annotator from already-constructed detectors.
func NewAnnotator(pose, hands Detector, logger *slog.Logger) *Annotator {
	return &Annotator{
		pose:   pose,
		hands:  hands,
		rgb:    gocv.NewMat(),
		logger: logger,
	}
}

// NewOpenPoseAnnotator loads both landmark networks from the
// configured model paths. Either network failing to load is fatal for
// the session that asked for annotation.
func NewOpenPoseAnnotator(envs *configs.DetectorEnvs, logger *slog.Logger) (*Annotator, error) {
	pose, err := NewPoseDetector(envs.PoseProto, envs.PoseWeights)
	if err != nil {
		return nil, fmt.Errorf("load pose detector: %w", err)
	}
	hands, err := NewHandDetector(envs.HandProto, envs.HandWeights)
	if err != nil {
		_ = pose.Close()
		return nil, fmt.Errorf("load hand detector: %w", err)
	}
	logger.Info("landmark detectors loaded",
		"pose_model", envs.PoseWeights, "hand_model", envs.HandWeights)
	return NewAnnotator(pose, hands, logger), nil
}

// Annotate mutates the BGR frame in place, drawing every detected
// landmark set. Detection failures are returned, not swallowed; the
// caller decides whether to drop the frame.
func (a *Annotator) Annotate(frame *gocv.Mat) error {
	started := time.Now()

	// The models expect RGB input; the overlay is drawn on the
	// original BGR frame.
	gocv.CvtColor(*frame, &a.rgb, gocv.ColorBGRToRGB)

	poseSets, err := a.pose.Detect(a.rgb)
	if err != nil {
		return fmt.Errorf("pose pass: %w", err)
	}
	for _, set := range poseSets {
		drawSet(frame, set, poseStyle)
	}

	handSets, err := a.hands.Detect(a.rgb)
	if err != nil {
		return fmt.Errorf("hand pass: %w", err)
	}
	for _, set := range handSets {
		drawSet(frame, set, handStyle)
	}

	metrics.FramesAnnotated.Inc()
	metrics.AnnotateDuration.Observe(time.Since(started).Seconds())
	return nil
}

// Close releases both detectors exactly once.
func (a *Annotator) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = errors.Join(a.pose.Close(), a.hands.Close(), a.rgb.Close())
		a.logger.Info("landmark detectors released")
	})
	return a.closeErr
}
