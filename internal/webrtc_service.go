package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4"

	"webcam-streamer/configs"
	"webcam-streamer/internal/capture"
	"webcam-streamer/internal/metrics"
	"webcam-streamer/internal/session"
	"webcam-streamer/internal/track"
	"webcam-streamer/internal/vision"
)

// mediaSource bundles an outgoing track with the codec registration it
// needs on the media engine and the closer that releases its
// resources.
type mediaSource struct {
	track     webrtc.TrackLocal
	closer    io.Closer
	configure func(*webrtc.MediaEngine) error
}

// TrackFactory builds one media source per session. Construction
// failure is fatal for the requesting session only.
type TrackFactory func() (*mediaSource, error)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// CameraSource builds VP8-encoded webcam tracks relaying raw frames.
func CameraSource(envs *configs.EnvVariables, logger *slog.Logger) TrackFactory {
	return cameraFactory(envs, nil, logger)
}

// PoseCameraSource builds VP8-encoded webcam tracks with pose and hand
// overlays drawn onto every frame before encoding.
func PoseCameraSource(envs *configs.EnvVariables, detectors *configs.DetectorEnvs, logger *slog.Logger) TrackFactory {
	return cameraFactory(envs, detectors, logger)
}

func cameraFactory(envs *configs.EnvVariables, detectors *configs.DetectorEnvs, logger *slog.Logger) TrackFactory {
	return func() (*mediaSource, error) {
		cam, err := capture.Open(envs.CameraDevice, envs.FrameWidth, envs.FrameHeight, envs.Framerate, logger)
		if err != nil {
			return nil, err
		}

		var annotator track.Annotator
		if detectors != nil {
			a, err := vision.NewOpenPoseAnnotator(detectors, logger)
			if err != nil {
				_ = cam.Close()
				return nil, err
			}
			annotator = a
		}

		adapter := track.NewAdapter(cam, annotator, envs.Framerate, logger)

		params, err := vpx.NewVP8Params()
		if err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("create VP8 encoder params: %w", err)
		}
		params.BitRate = envs.VideoBitrate

		selector := mediadevices.NewCodecSelector(mediadevices.WithVideoEncoders(&params))
		videoTrack := mediadevices.NewVideoTrack(adapter, selector)

		return &mediaSource{
			track: videoTrack,
			closer: closerFunc(func() error {
				return errors.Join(videoTrack.Close(), adapter.Close())
			}),
			configure: func(engine *webrtc.MediaEngine) error {
				selector.Populate(engine)
				return nil
			},
		}, nil
	}
}

type StreamerService struct {
	envs      *configs.EnvVariables
	registry  *session.Registry
	newSource TrackFactory
	logger    *slog.Logger
}

func NewStreamerService(envs *configs.EnvVariables, registry *session.Registry, factory TrackFactory, logger *slog.Logger) *StreamerService {
	return &StreamerService{
		envs:      envs,
		registry:  registry,
		newSource: factory,
		logger:    logger,
	}
}

// NegotiateOptions adjust the offer/answer exchange per signaling
// transport. HTTP waits for ICE gathering to finish; the websocket
// transport trickles candidates through OnICECandidate instead.
type NegotiateOptions struct {
	Trickle        bool
	OnICECandidate func(*webrtc.ICECandidate)
}

// Negotiate builds a peer session around one media source, applies the
// remote offer and produces the local answer. The session enters the
// live registry only after the whole sequence succeeds; on any failure
// everything constructed so far is released and an error is returned.
func (s *StreamerService) Negotiate(offer webrtc.SessionDescription, opts NegotiateOptions) (*session.Session, *webrtc.SessionDescription, error) {
	src, err := s.newSource()
	if err != nil {
		metrics.NegotiationFailures.Inc()
		return nil, nil, fmt.Errorf("create media source: %w", err)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if src.configure != nil {
		err = src.configure(mediaEngine)
	} else {
		err = mediaEngine.RegisterDefaultCodecs()
	}
	if err != nil {
		metrics.NegotiationFailures.Inc()
		_ = src.closer.Close()
		return nil, nil, fmt.Errorf("configure media engine: %w", err)
	}

	config := webrtc.Configuration{}
	if s.envs.StunServer != "" {
		config.ICEServers = []webrtc.ICEServer{{URLs: []string{s.envs.StunServer}}}
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		metrics.NegotiationFailures.Inc()
		_ = src.closer.Close()
		return nil, nil, fmt.Errorf("create peer connection: %w", err)
	}

	sess := session.New(pc, src.closer)

	if opts.OnICECandidate != nil {
		pc.OnICECandidate(opts.OnICECandidate)
	}

	transceiver, err := pc.AddTransceiverFromTrack(src.track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		return nil, nil, s.abort(sess, err, "attach track")
	}
	go drainRTCP(transceiver.Sender())

	if err := pc.SetRemoteDescription(offer); err != nil {
		return nil, nil, s.abort(sess, err, "apply remote description")
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, nil, s.abort(sess, err, "create answer")
	}

	var gatherComplete <-chan struct{}
	if !opts.Trickle {
		gatherComplete = webrtc.GatheringCompletePromise(pc)
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, nil, s.abort(sess, err, "apply local description")
	}
	if gatherComplete != nil {
		<-gatherComplete
	}

	s.registry.Add(sess)
	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	go s.watch(sess)

	s.logger.Info("peer session negotiated",
		"session_id", sess.ID(), "trickle", opts.Trickle, "live_sessions", s.registry.Len())

	return sess, pc.LocalDescription(), nil
}

func (s *StreamerService) abort(sess *session.Session, err error, stage string) error {
	metrics.NegotiationFailures.Inc()
	if cerr := sess.Close(); cerr != nil {
		s.logger.Error("releasing failed session", "err", cerr)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// watch consumes the session's state subscription and tears the
// session down on the first terminal state. The transport has already
// answered the peer by now, so failures here are only logged.
func (s *StreamerService) watch(sess *session.Session) {
	for state := range sess.States() {
		s.logger.Info("connection state changed", "session_id", sess.ID(), "state", state.String())
		if !session.Terminal(state) {
			continue
		}
		if s.registry.Remove(sess.ID()) {
			metrics.SessionsActive.Dec()
		}
		if err := sess.Close(); err != nil {
			s.logger.Error("closing terminal session", "session_id", sess.ID(), "err", err)
		}
		return
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
