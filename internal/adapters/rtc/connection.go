package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rtcmesh/voice/internal/core"
	"github.com/rtcmesh/voice/internal/domain"
)

// Configuration builds the pion config from deployment-supplied ICE server
// URLs (STUN/TURN). Nothing is hardcoded here.
func Configuration(urls []string) webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: urls},
		},
	}
}

// Link implements core.MediaLink over a pion PeerConnection toward one
// remote peer. Trickle ICE: gathered candidates are surfaced through the
// OnICECandidate callback instead of blocking on gathering completion.
type Link struct {
	pc   *webrtc.PeerConnection
	peer domain.SessionID

	onICE   func(webrtc.ICECandidateInit)
	onState func(core.LinkState)
	onTrack func(*webrtc.TrackRemote)

	mu     sync.Mutex
	closed bool
}

// NewLink creates the PeerConnection and attaches the shared local track.
// The track is read-only from the link's point of view; mute is handled
// upstream by the capture gate, never by renegotiation.
func NewLink(cfg webrtc.Configuration, peer domain.SessionID, local *webrtc.TrackLocalStaticSample) (*Link, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	l := &Link{pc: pc, peer: peer}

	if local != nil {
		if _, err := pc.AddTrack(local); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && l.onICE != nil {
			l.onICE(cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(l.peer)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if l.onState == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			l.onState(core.LinkConnected)
		case webrtc.PeerConnectionStateFailed:
			l.onState(core.LinkFailed)
		case webrtc.PeerConnectionStateClosed:
			l.onState(core.LinkClosed)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", string(l.peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if l.onTrack != nil {
			l.onTrack(track)
		}
	})

	return l, nil
}

func (l *Link) CreateOffer(iceRestart bool) (string, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := l.pc.CreateOffer(opts)
	if err != nil {
		return "", err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (l *Link) CreateAnswerFor(offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (l *Link) ApplyAnswer(sdp string) error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (l *Link) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

func (l *Link) OnICECandidate(fn func(webrtc.ICECandidateInit)) { l.onICE = fn }

func (l *Link) OnStateChange(fn func(core.LinkState)) { l.onState = fn }

func (l *Link) OnRemoteTrack(fn func(*webrtc.TrackRemote)) { l.onTrack = fn }

// Close is idempotent; teardown errors are logged and swallowed.
func (l *Link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", string(l.peer)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("peer", string(l.peer)).Msg("closed")
	}
}
