// Package voice composes media capture, speaking detection, signaling and
// per-peer negotiation into the join/leave/mute lifecycle.
package voice

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rtcmesh/voice/internal/adapters/signal"
	"github.com/rtcmesh/voice/internal/audio"
	"github.com/rtcmesh/voice/internal/core"
	"github.com/rtcmesh/voice/internal/domain"
)

// LinkBuilder creates a media link toward peer carrying the shared local
// track. Wired to the pion adapter in main, to fakes in tests.
type LinkBuilder func(peer domain.SessionID, local *webrtc.TrackLocalStaticSample) (core.MediaLink, error)

type Options struct {
	Local   *domain.LocalSession
	Adapter *signal.Adapter
	Device  core.CaptureDevice
	Links   LinkBuilder
	Sinks   SinkFactory

	VADThreshold float64
	VADInterval  time.Duration

	// Listener receives peersChanged/speakingChanged/error events. Optional.
	Listener core.Listener
}

// VoiceChat is the orchestrator. It exclusively owns the local session, the
// media manager, the detector and the peer registry; consumers only see the
// Listener events and the public lifecycle calls.
type VoiceChat struct {
	local    *domain.LocalSession
	adapter  *signal.Adapter
	media    *audio.Manager
	detector *audio.Detector
	registry *Registry
	listener core.Listener

	mu     sync.Mutex
	joined bool
}

// New wires the orchestrator and binds it as the adapter's inbound handler.
// ctx bounds the lifetime of peer playback.
func New(ctx context.Context, opts Options) *VoiceChat {
	listener := opts.Listener
	if listener == nil {
		listener = core.NopListener{}
	}
	vc := &VoiceChat{
		local:    opts.Local,
		adapter:  opts.Adapter,
		listener: listener,
	}
	vc.media = audio.NewManager(opts.Device)
	vc.detector = audio.NewDetector(vc.media, opts.VADThreshold, opts.VADInterval, vc.onLocalSpeaking)

	links := func(peer domain.SessionID) (core.MediaLink, error) {
		return opts.Links(peer, vc.media.Track())
	}
	vc.registry = NewRegistry(ctx, opts.Adapter, links, opts.Sinks, vc.emitPeers)

	opts.Adapter.Bind(vc)
	return vc
}

// Join acquires media, starts the detector, marks the session joined and
// announces presence. Idempotent. A media failure aborts before the
// announce and leaves nothing joined.
func (vc *VoiceChat) Join(ctx context.Context) error {
	vc.mu.Lock()
	if vc.joined {
		vc.mu.Unlock()
		return nil
	}
	if err := vc.media.Acquire(ctx); err != nil {
		vc.mu.Unlock()
		log.Error().Err(err).Str("module", "voice").Msg("join aborted")
		vc.listener.Error(err)
		return err
	}
	vc.detector.Start(ctx)
	vc.joined = true
	vc.mu.Unlock()

	vc.adapter.SendJoin()
	log.Info().Str("module", "voice").Str("sid", string(vc.local.ID)).Msg("joined")
	return nil
}

// Leave announces departure, tears down every peer connection and releases
// media. Idempotent, and tolerates a partially failed Join.
func (vc *VoiceChat) Leave() {
	vc.mu.Lock()
	wasJoined := vc.joined
	vc.joined = false
	vc.mu.Unlock()

	if wasJoined {
		vc.adapter.SendLeave()
	}
	vc.registry.CloseAll()
	vc.detector.Stop()
	vc.media.Release()
	if wasJoined {
		log.Info().Str("module", "voice").Str("sid", string(vc.local.ID)).Msg("left")
	}
}

// Mute gates the outbound track. Never triggers renegotiation.
func (vc *VoiceChat) Mute() { vc.media.SetEnabled(false) }

// Unmute re-enables the outbound track. Never triggers renegotiation.
func (vc *VoiceChat) Unmute() { vc.media.SetEnabled(true) }

func (vc *VoiceChat) Muted() bool { return !vc.media.Enabled() }

// Peers returns the current sorted peer snapshot.
func (vc *VoiceChat) Peers() []domain.Peer { return vc.registry.Snapshot() }

func (vc *VoiceChat) isJoined() bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.joined
}

// OnRoster handles the relay's full participant list at join time: the
// newcomer offers to everyone already present.
func (vc *VoiceChat) OnRoster(peers []signal.PeerInfo) {
	if !vc.isJoined() {
		return
	}
	for _, p := range peers {
		id := domain.SessionID(p.SessionID)
		if id == vc.local.ID {
			continue
		}
		vc.registry.AddPeer(id, p.DisplayName, true)
	}
}

// OnPeerJoined pre-creates the link for a later arrival but does not offer:
// the newcomer offers first.
func (vc *VoiceChat) OnPeerJoined(p signal.PeerInfo) {
	if !vc.isJoined() {
		return
	}
	id := domain.SessionID(p.SessionID)
	if id == vc.local.ID {
		return
	}
	vc.registry.AddPeer(id, p.DisplayName, false)
}

func (vc *VoiceChat) OnPeerLeft(id domain.SessionID) {
	if !vc.isJoined() {
		return
	}
	vc.registry.ClosePeer(id)
}

func (vc *VoiceChat) OnOffer(from domain.SessionID, sdp string) {
	if !vc.isJoined() {
		return
	}
	vc.registry.HandleOffer(from, sdp)
}

func (vc *VoiceChat) OnAnswer(from domain.SessionID, sdp string) {
	if !vc.isJoined() {
		return
	}
	vc.registry.HandleAnswer(from, sdp)
}

func (vc *VoiceChat) OnCandidate(from domain.SessionID, cand webrtc.ICECandidateInit) {
	if !vc.isJoined() {
		return
	}
	vc.registry.HandleCandidate(from, cand)
}

func (vc *VoiceChat) OnSpeaking(id domain.SessionID, speaking bool) {
	if !vc.isJoined() {
		return
	}
	if vc.registry.SetSpeaking(id, speaking) {
		vc.listener.SpeakingChanged(id, speaking)
	}
}

func (vc *VoiceChat) onLocalSpeaking(speaking bool) {
	if !vc.isJoined() {
		return
	}
	vc.adapter.SendSpeaking(speaking)
	vc.listener.SpeakingChanged(vc.local.ID, speaking)
}

func (vc *VoiceChat) emitPeers() {
	vc.listener.PeersChanged(vc.registry.Snapshot())
}
