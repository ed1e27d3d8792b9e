// Package capture owns the camera handle and hands out raw BGR frames.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoFrame means the device produced nothing for this tick. Callers
// skip the tick; the device stays open.
var ErrNoFrame = errors.New("no frame available from capture device")

// Webcam reads fixed-geometry frames from a local capture device.
// It is private to a single track adapter and is not safe for
// concurrent use.
type Webcam struct {
	cap       *gocv.VideoCapture
	mat       gocv.Mat
	closeOnce sync.Once
	closeErr  error
	logger    *slog.Logger
}

// Open opens the capture device and configures it for the requested
// geometry and framerate. Failure here is fatal for the session that
// asked for the camera; there is no retry.
func Open(device int, width, height, fps int, logger *slog.Logger) (*Webcam, error) {
	cap, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open capture device %d: %w", device, err)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(height))
	cap.Set(gocv.VideoCaptureFPS, float64(fps))

	if !cap.IsOpened() {
		_ = cap.Close()
		return nil, fmt.Errorf("capture device %d is not opened", device)
	}

	logger.Info("capture device opened", "device", device, "width", width, "height", height, "fps", fps)

	return &Webcam{
		cap:    cap,
		mat:    gocv.NewMat(),
		logger: logger,
	}, nil
}

// Read pulls the next frame from the device. The returned Mat is owned
// by the Webcam and is only valid until the next Read or Close.
func (w *Webcam) Read() (gocv.Mat, error) {
	if ok := w.cap.Read(&w.mat); !ok || w.mat.Empty() {
		return gocv.Mat{}, ErrNoFrame
	}
	return w.mat, nil
}

// Close releases the device handle. Safe to call more than once; the
// device is released exactly once.
func (w *Webcam) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = errors.Join(w.mat.Close(), w.cap.Close())
		w.logger.Info("capture device released")
	})
	return w.closeErr
}
