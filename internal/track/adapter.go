// Package track adapts a frame source (plus optional annotator) to the
// media pipeline's frame-producer contract.
package track

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"webcam-streamer/internal/capture"
	"webcam-streamer/internal/metrics"
)

// ErrNoFrame is surfaced when the source has nothing for this tick.
// The encoder loop treats it as "skip", not as end of stream.
var ErrNoFrame = capture.ErrNoFrame

// Source is what the adapter pulls raw BGR frames from. The returned
// Mat is only valid until the next Read.
type Source interface {
	Read() (gocv.Mat, error)
	Close() error
}

// Annotator mutates a frame in place before it is handed downstream.
type Annotator interface {
	Annotate(*gocv.Mat) error
	Close() error
}

// Frame is one timestamped frame ready for the encoder: the image in
// the downstream colour format, its sequence number, and the fixed
// per-tick duration.
type Frame struct {
	Image    image.Image
	PTS      int64
	TimeBase time.Duration
}

// Adapter produces timestamped frames on demand. Each call to
// NextFrame is driven by the media pipeline's own scheduler; the
// adapter never retries or paces internally. Not safe for concurrent
// use: it is private to one encoder goroutine.
type Adapter struct {
	id        string
	source    Source
	annotator Annotator // nil for the raw variant
	timeBase  time.Duration
	pts       int64
	closeOnce sync.Once
	closeErr  error
	logger    *slog.Logger
}

// NewAdapter wraps source (and, when non-nil, annotator) behind the
// frame-producer contract. fps fixes the time base: one tick per
// 1/fps second, regardless of actual wall-clock spacing.
func NewAdapter(source Source, annotator Annotator, fps int, logger *slog.Logger) *Adapter {
	return &Adapter{
		id:        "webcam-" + uuid.NewString(),
		source:    source,
		annotator: annotator,
		timeBase:  time.Second / time.Duration(fps),
		logger:    logger,
	}
}

// NextFrame acquires, annotates and timestamps one frame. On
// ErrNoFrame the sequence counter is not consumed. The counter starts
// at 0 and increments by exactly 1 per successful emission.
func (a *Adapter) NextFrame() (Frame, error) {
	mat, err := a.source.Read()
	if err != nil {
		if errors.Is(err, ErrNoFrame) {
			metrics.FramesUnavailable.Inc()
		}
		return Frame{}, err
	}

	if a.annotator != nil {
		if err := a.annotator.Annotate(&mat); err != nil {
			return Frame{}, fmt.Errorf("annotate frame: %w", err)
		}
	}

	img, err := mat.ToImage()
	if err != nil {
		return Frame{}, fmt.Errorf("convert frame: %w", err)
	}

	frame := Frame{
		Image:    img,
		PTS:      a.pts,
		TimeBase: a.timeBase,
	}
	a.pts++
	metrics.FramesCaptured.Inc()
	return frame, nil
}

// ID identifies the adapter as a video source.
func (a *Adapter) ID() string {
	return a.id
}

// Read implements the mediadevices video source contract on top of
// NextFrame. The release callback is a no-op: ToImage already copied
// the pixels out of the capture buffer.
func (a *Adapter) Read() (image.Image, func(), error) {
	frame, err := a.NextFrame()
	if err != nil {
		return nil, func() {}, err
	}
	return frame.Image, func() {}, nil
}

// Close releases the annotator and the source exactly once, in that
// order. Idempotent.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.annotator != nil {
			errs = append(errs, a.annotator.Close())
		}
		errs = append(errs, a.source.Close())
		a.closeErr = errors.Join(errs...)
		a.logger.Info("track adapter closed", "track_id", a.id, "frames_emitted", a.pts)
	})
	return a.closeErr
}
