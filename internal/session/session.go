// Package session ties one peer connection to the media resources it
// owns and tracks all live sessions for bulk teardown.
package session

import (
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Session is one live WebRTC connection holding exactly one outgoing
// media source. Closing it releases the peer connection and the media
// resources exactly once.
type Session struct {
	id        uuid.UUID
	pc        *webrtc.PeerConnection
	media     io.Closer
	states    chan webrtc.PeerConnectionState
	closeOnce sync.Once
	closeErr  error
}

// New wires the connection's state callback into a buffered channel
// the owner polls, instead of letting the callback re-enter shared
// state.
func New(pc *webrtc.PeerConnection, media io.Closer) *Session {
	s := &Session{
		id:     uuid.New(),
		pc:     pc,
		media:  media,
		states: make(chan webrtc.PeerConnectionState, 8),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		select {
		case s.states <- state:
		default:
			// The buffer covers the longest possible state
			// sequence; an overflow means the owner stopped
			// watching and the state is dropped.
		}
	})

	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// PeerConnection exposes the underlying connection for signaling
// (remote description, candidates).
func (s *Session) PeerConnection() *webrtc.PeerConnection {
	return s.pc
}

// States is the subscription for connection state transitions. The
// owner watches it for terminal states.
func (s *Session) States() <-chan webrtc.PeerConnectionState {
	return s.states
}

// AddICECandidate applies a remote candidate trickled in after the
// initial exchange.
func (s *Session) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return s.pc.AddICECandidate(candidate)
}

// Close shuts the peer connection and releases the media source.
// Exactly once; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.pc != nil {
			errs = append(errs, s.pc.Close())
		}
		if s.media != nil {
			errs = append(errs, s.media.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Terminal reports whether a state ends the session. Disconnected is
// not terminal: ICE can restart from it.
func Terminal(state webrtc.PeerConnectionState) bool {
	return state == webrtc.PeerConnectionStateFailed ||
		state == webrtc.PeerConnectionStateClosed
}
