package session

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	closed int
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func newTestSession(t *testing.T) (*Session, *countingCloser) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)

	media := &countingCloser{}
	return New(pc, media), media
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	sess, media := newTestSession(t)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	assert.Equal(t, 1, media.closed)
}

func TestSessionCloseReleasesNeverStartedMedia(t *testing.T) {
	sess, media := newTestSession(t)

	require.NoError(t, sess.Close())
	assert.Equal(t, 1, media.closed)
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, Terminal(webrtc.PeerConnectionStateFailed))
	assert.True(t, Terminal(webrtc.PeerConnectionStateClosed))

	assert.False(t, Terminal(webrtc.PeerConnectionStateNew))
	assert.False(t, Terminal(webrtc.PeerConnectionStateConnecting))
	assert.False(t, Terminal(webrtc.PeerConnectionStateConnected))
	assert.False(t, Terminal(webrtc.PeerConnectionStateDisconnected))
}
