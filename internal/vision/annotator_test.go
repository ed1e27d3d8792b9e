package vision

import (
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type stubDetector struct {
	sets   []Set
	calls  int
	closed int
}

func (s *stubDetector) Detect(gocv.Mat) ([]Set, error) {
	s.calls++
	return s.sets, nil
}

func (s *stubDetector) Close() error {
	s.closed++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFrame(t *testing.T) gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { _ = mat.Close() })
	return mat
}

func visibleSet() Set {
	return Set{
		Landmarks: []Landmark{
			{At: image.Pt(100, 100), Score: 0.9, Visible: true},
			{At: image.Pt(200, 200), Score: 0.8, Visible: true},
		},
		Pairs: [][2]int{{0, 1}},
	}
}

func TestAnnotatePassesFrameThroughWithoutDetections(t *testing.T) {
	annotator := NewAnnotator(&stubDetector{}, &stubDetector{}, discardLogger())
	defer annotator.Close()

	frame := newTestFrame(t)
	before, err := frame.ToBytes()
	require.NoError(t, err)

	require.NoError(t, annotator.Annotate(&frame))

	after, err := frame.ToBytes()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAnnotateDrawsDetectedLandmarks(t *testing.T) {
	pose := &stubDetector{sets: []Set{visibleSet()}}
	annotator := NewAnnotator(pose, &stubDetector{}, discardLogger())
	defer annotator.Close()

	frame := newTestFrame(t)
	before, err := frame.ToBytes()
	require.NoError(t, err)

	require.NoError(t, annotator.Annotate(&frame))

	after, err := frame.ToBytes()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestAnnotateRunsBothPassesIndependently(t *testing.T) {
	pose := &stubDetector{}
	hands := &stubDetector{sets: []Set{visibleSet(), visibleSet()}}
	annotator := NewAnnotator(pose, hands, discardLogger())
	defer annotator.Close()

	frame := newTestFrame(t)
	require.NoError(t, annotator.Annotate(&frame))

	assert.Equal(t, 1, pose.calls)
	assert.Equal(t, 1, hands.calls)
}

func TestCloseReleasesDetectorsExactlyOnce(t *testing.T) {
	pose := &stubDetector{}
	hands := &stubDetector{}
	annotator := NewAnnotator(pose, hands, discardLogger())

	require.NoError(t, annotator.Close())
	require.NoError(t, annotator.Close())

	assert.Equal(t, 1, pose.closed)
	assert.Equal(t, 1, hands.closed)
}

func TestDrawSetSkipsHiddenLandmarks(t *testing.T) {
	frame := newTestFrame(t)
	before, err := frame.ToBytes()
	require.NoError(t, err)

	hidden := Set{
		Landmarks: []Landmark{
			{At: image.Pt(100, 100), Score: 0.2},
			{At: image.Pt(200, 200), Score: 0.1},
		},
		Pairs: [][2]int{{0, 1}},
	}
	drawSet(&frame, hidden, poseStyle)

	after, err := frame.ToBytes()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
