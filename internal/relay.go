package internal

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"webcam-streamer/configs"
)

// RelaySource builds tracks that restream a network camera: RTP from
// the configured RTSP endpoint is written straight into an H264 track,
// no decode or re-encode.
func RelaySource(envs *configs.EnvVariables, logger *slog.Logger) TrackFactory {
	return func() (*mediaSource, error) {
		rtpTrack, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
			"relay-"+uuid.NewString(),
			"webcam-relay",
		)
		if err != nil {
			return nil, fmt.Errorf("create relay track: %w", err)
		}

		consumer, err := startRelayConsumer(envs.RelayRtspUrl, rtpTrack, logger)
		if err != nil {
			return nil, err
		}

		return &mediaSource{
			track:  rtpTrack,
			closer: consumer,
		}, nil
	}
}

// relayConsumer owns one RTSP client session feeding one track.
type relayConsumer struct {
	client    *gortsplib.Client
	closeOnce sync.Once
	logger    *slog.Logger
}

func startRelayConsumer(rtspURL string, rtpTrack *webrtc.TrackLocalStaticRTP, logger *slog.Logger) (*relayConsumer, error) {
	u, err := base.ParseURL(rtspURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url %q: %w", rtspURL, err)
	}

	client := &gortsplib.Client{}
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return nil, fmt.Errorf("connect to relay source: %w", err)
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("describe relay source: %w", err)
	}

	if err := client.SetupAll(desc.BaseURL, desc.Medias); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup relay medias: %w", err)
	}

	client.OnPacketRTPAny(func(medi *description.Media, forma format.Format, pkt *rtp.Packet) {
		if err := rtpTrack.WriteRTP(pkt); err != nil {
			logger.Debug("dropping relay packet", "err", err)
		}
	})

	client.OnPacketRTCPAny(func(medi *description.Media, pkt rtcp.Packet) {
		logger.Debug("relay RTCP packet", "type", fmt.Sprintf("%T", pkt))
	})

	if _, err := client.Play(nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("play relay source: %w", err)
	}

	consumer := &relayConsumer{client: client, logger: logger}

	go func() {
		if err := client.Wait(); err != nil {
			logger.Error("relay source terminated", "url", rtspURL, "err", err)
		}
	}()

	return consumer, nil
}

// Close tears the RTSP session down exactly once. Closing also unblocks
// the Wait goroutine.
func (c *relayConsumer) Close() error {
	c.closeOnce.Do(func() {
		c.client.Close()
	})
	return nil
}
