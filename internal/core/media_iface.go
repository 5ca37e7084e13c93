package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// LinkState is the health of a single peer media link as reported by the
// underlying transport.
type LinkState int

const (
	LinkConnecting LinkState = iota
	LinkConnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// MediaLink wraps one negotiation endpoint toward a single remote peer.
// Callbacks may fire from transport goroutines after the owning registry
// has torn the peer down; implementations only report, the owner decides.
type MediaLink interface {
	// CreateOffer generates and installs a local offer. With iceRestart the
	// link renegotiates in place instead of being torn down.
	CreateOffer(iceRestart bool) (sdp string, err error)
	// CreateAnswerFor applies a remote offer and produces the local answer.
	CreateAnswerFor(offerSDP string) (sdp string, err error)
	// ApplyAnswer applies a remote answer to a previously sent offer.
	ApplyAnswer(sdp string) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnStateChange(func(LinkState))
	OnRemoteTrack(func(*webrtc.TrackRemote))
	// Close releases the underlying connection. Idempotent, never reports
	// teardown errors to the caller.
	Close()
}

// CaptureDevice produces raw PCM frames from the local microphone source.
type CaptureDevice interface {
	Start(ctx context.Context) error
	Frames() <-chan []int16
	Stop()
}

// AudioSink is the playback handle owned per remote peer. It must be
// released exactly once during peer teardown.
type AudioSink interface {
	Play(ctx context.Context, track *webrtc.TrackRemote)
	Close()
}
