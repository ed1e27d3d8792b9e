package track

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeSource struct {
	mat    gocv.Mat
	fail   bool
	closed int
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	src := &fakeSource{mat: gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)}
	t.Cleanup(func() {
		if src.closed == 0 {
			_ = src.Close()
		}
	})
	return src
}

func (f *fakeSource) Read() (gocv.Mat, error) {
	if f.fail {
		return gocv.Mat{}, ErrNoFrame
	}
	return f.mat, nil
}

func (f *fakeSource) Close() error {
	f.closed++
	if f.closed == 1 {
		return f.mat.Close()
	}
	return nil
}

type fakeAnnotator struct {
	annotated int
	closed    int
}

func (f *fakeAnnotator) Annotate(*gocv.Mat) error {
	f.annotated++
	return nil
}

func (f *fakeAnnotator) Close() error {
	f.closed++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextFrameSequencesFromZero(t *testing.T) {
	adapter := NewAdapter(newFakeSource(t), nil, 30, discardLogger())
	defer adapter.Close()

	for want := int64(0); want < 3; want++ {
		frame, err := adapter.NextFrame()
		require.NoError(t, err)
		assert.Equal(t, want, frame.PTS)
		assert.Equal(t, time.Second/30, frame.TimeBase)
		require.NotNil(t, frame.Image)
		assert.Equal(t, 640, frame.Image.Bounds().Dx())
		assert.Equal(t, 480, frame.Image.Bounds().Dy())
	}
}

func TestUnavailableTickConsumesNoSequenceNumber(t *testing.T) {
	source := newFakeSource(t)
	adapter := NewAdapter(source, nil, 30, discardLogger())
	defer adapter.Close()

	frame, err := adapter.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, int64(0), frame.PTS)

	source.fail = true
	_, err = adapter.NextFrame()
	require.ErrorIs(t, err, ErrNoFrame)

	source.fail = false
	frame, err = adapter.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, int64(1), frame.PTS)
}

func TestAnnotatorRunsOncePerFrame(t *testing.T) {
	annotator := &fakeAnnotator{}
	adapter := NewAdapter(newFakeSource(t), annotator, 30, discardLogger())
	defer adapter.Close()

	for i := 0; i < 5; i++ {
		_, err := adapter.NextFrame()
		require.NoError(t, err)
	}
	assert.Equal(t, 5, annotator.annotated)
}

func TestCloseReleasesSourceAndAnnotatorExactlyOnce(t *testing.T) {
	source := newFakeSource(t)
	annotator := &fakeAnnotator{}
	adapter := NewAdapter(source, annotator, 30, discardLogger())

	_, err := adapter.NextFrame()
	require.NoError(t, err)

	require.NoError(t, adapter.Close())
	require.NoError(t, adapter.Close())

	assert.Equal(t, 1, source.closed)
	assert.Equal(t, 1, annotator.closed)
}

func TestCloseWithoutReadLeaksNothing(t *testing.T) {
	source := newFakeSource(t)
	annotator := &fakeAnnotator{}
	adapter := NewAdapter(source, annotator, 30, discardLogger())

	require.NoError(t, adapter.Close())

	assert.Equal(t, 1, source.closed)
	assert.Equal(t, 1, annotator.closed)
	assert.Equal(t, 0, annotator.annotated)
}

func TestReadImplementsVideoSourceContract(t *testing.T) {
	source := newFakeSource(t)
	adapter := NewAdapter(source, nil, 30, discardLogger())
	defer adapter.Close()

	img, release, err := adapter.Read()
	require.NoError(t, err)
	require.NotNil(t, img)
	require.NotNil(t, release)
	release()

	source.fail = true
	_, release, err = adapter.Read()
	require.ErrorIs(t, err, ErrNoFrame)
	require.NotNil(t, release)

	assert.NotEmpty(t, adapter.ID())
}
