package voice

import (
	"context"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rtcmesh/voice/internal/core"
	"github.com/rtcmesh/voice/internal/domain"
)

// Signaler is the outbound surface the registry needs from the signaling
// adapter.
type Signaler interface {
	SendOffer(to domain.SessionID, sdp string)
	SendAnswer(to domain.SessionID, sdp string)
	SendCandidate(to domain.SessionID, cand webrtc.ICECandidateInit)
}

// LinkFactory creates the media link toward one peer.
type LinkFactory func(peer domain.SessionID) (core.MediaLink, error)

// SinkFactory creates the playback handle for one peer.
type SinkFactory func(peer domain.SessionID) core.AudioSink

type phase int

const (
	phaseCreated phase = iota
	phaseOffering
	phaseAnswering
	phaseConnected
	phaseFailed
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseCreated:
		return "created"
	case phaseOffering:
		return "offering"
	case phaseAnswering:
		return "answering"
	case phaseConnected:
		return "connected"
	case phaseFailed:
		return "failed"
	case phaseClosed:
		return "closed"
	}
	return "unknown"
}

// peerEntry is one negotiation state machine. pending buffers remote ICE
// candidates that arrived before the remote description; they are applied
// strictly in arrival order once remoteDescSet flips, never earlier.
type peerEntry struct {
	info          domain.Peer
	link          core.MediaLink
	sink          core.AudioSink
	phase         phase
	pending       []webrtc.ICECandidateInit
	remoteDescSet bool
	restarted     bool
}

// Registry holds one entry per remote session. Invariant: at most one live
// entry per id; re-creation only after the previous one is fully closed.
// There is no wall-clock negotiation timeout: recovery relies on the link
// reporting failed, which grants a single ICE restart.
type Registry struct {
	ctx      context.Context
	signals  Signaler
	newLink  LinkFactory
	newSink  SinkFactory
	onChange func()

	mu    sync.Mutex
	peers map[domain.SessionID]*peerEntry
}

func NewRegistry(ctx context.Context, signals Signaler, newLink LinkFactory, newSink SinkFactory, onChange func()) *Registry {
	if onChange == nil {
		onChange = func() {}
	}
	return &Registry{
		ctx:      ctx,
		signals:  signals,
		newLink:  newLink,
		newSink:  newSink,
		onChange: onChange,
		peers:    make(map[domain.SessionID]*peerEntry),
	}
}

// AddPeer registers a remote participant. With sendOffer the local side
// starts negotiating immediately (the newcomer offers to the existing
// roster); without it the link is pre-created and waits for the remote
// offer, which keeps a pair from offering to each other simultaneously.
func (r *Registry) AddPeer(id domain.SessionID, name string, sendOffer bool) {
	r.mu.Lock()
	e, err := r.getOrCreateLocked(id, name)
	if err != nil {
		r.mu.Unlock()
		log.Error().Err(err).Str("module", "voice.registry").Str("peer", string(id)).Msg("create link")
		return
	}

	var offerSDP string
	offered := false
	if sendOffer && e.phase == phaseCreated {
		sdp, err := e.link.CreateOffer(false)
		if err != nil {
			r.failLocked(id, err)
			r.mu.Unlock()
			r.onChange()
			return
		}
		e.phase = phaseOffering
		offerSDP = sdp
		offered = true
	}
	r.mu.Unlock()

	if offered {
		r.signals.SendOffer(id, offerSDP)
	}
	r.onChange()
}

// HandleOffer answers a remote offer, creating the entry when the offer is
// the first thing we hear from the peer.
func (r *Registry) HandleOffer(from domain.SessionID, sdp string) {
	r.mu.Lock()
	e, err := r.getOrCreateLocked(from, "")
	if err != nil {
		r.mu.Unlock()
		log.Error().Err(err).Str("module", "voice.registry").Str("peer", string(from)).Msg("create link for offer")
		return
	}
	e.phase = phaseAnswering
	answer, err := e.link.CreateAnswerFor(sdp)
	if err != nil {
		r.failLocked(from, err)
		r.mu.Unlock()
		r.onChange()
		return
	}
	e.remoteDescSet = true
	r.flushLocked(from, e)
	r.mu.Unlock()

	r.signals.SendAnswer(from, answer)
	r.onChange()
}

// HandleAnswer applies a remote answer to the pending offer.
func (r *Registry) HandleAnswer(from domain.SessionID, sdp string) {
	r.mu.Lock()
	e, ok := r.peers[from]
	if !ok {
		r.mu.Unlock()
		log.Warn().Str("module", "voice.registry").Str("peer", string(from)).Msg("answer for unknown peer")
		return
	}
	if err := e.link.ApplyAnswer(sdp); err != nil {
		r.failLocked(from, err)
		r.mu.Unlock()
		r.onChange()
		return
	}
	e.remoteDescSet = true
	r.flushLocked(from, e)
	r.mu.Unlock()
}

// HandleCandidate applies a remote ICE candidate, or buffers it while the
// remote description is still unset.
func (r *Registry) HandleCandidate(from domain.SessionID, ci webrtc.ICECandidateInit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[from]
	if !ok {
		log.Debug().Str("module", "voice.registry").Str("peer", string(from)).Msg("candidate for unknown peer")
		return
	}
	if !e.remoteDescSet {
		e.pending = append(e.pending, ci)
		return
	}
	if err := e.link.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "voice.registry").Str("peer", string(from)).Msg("apply candidate")
	}
}

// ClosePeer tears one peer down. Idempotent for unknown or already-closed
// ids.
func (r *Registry) ClosePeer(id domain.SessionID) {
	r.mu.Lock()
	removed := r.closePeerLocked(id)
	r.mu.Unlock()
	if removed {
		r.onChange()
	}
}

// CloseAll tears down every registered peer.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	n := len(r.peers)
	for id := range r.peers {
		r.closePeerLocked(id)
	}
	r.mu.Unlock()
	if n > 0 {
		r.onChange()
	}
}

// SetSpeaking updates a remote peer's speaking flag. Reports whether the
// flag actually changed.
func (r *Registry) SetSpeaking(id domain.SessionID, speaking bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok || e.info.Speaking == speaking {
		return false
	}
	e.info.Speaking = speaking
	return true
}

// Snapshot returns a sorted copy of the current peer list.
func (r *Registry) Snapshot() []domain.Peer {
	r.mu.Lock()
	out := make([]domain.Peer, 0, len(r.peers))
	for _, e := range r.peers {
		out = append(out, e.info)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *Registry) getOrCreateLocked(id domain.SessionID, name string) (*peerEntry, error) {
	if e, ok := r.peers[id]; ok {
		if name != "" {
			e.info.DisplayName = name
		}
		return e, nil
	}
	link, err := r.newLink(id)
	if err != nil {
		return nil, err
	}
	e := &peerEntry{
		info:  domain.Peer{SessionID: id, DisplayName: name},
		link:  link,
		phase: phaseCreated,
	}
	r.peers[id] = e

	// Callbacks carry the peer id only. They must not retain the entry,
	// which may be long gone by the time the transport fires them.
	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		r.signals.SendCandidate(id, ci)
	})
	link.OnStateChange(func(s core.LinkState) {
		r.handleState(id, s)
	})
	link.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		r.attachSink(id, track)
	})

	log.Info().Str("module", "voice.registry").Str("peer", string(id)).Msg("peer link created")
	return e, nil
}

func (r *Registry) handleState(id domain.SessionID, s core.LinkState) {
	r.mu.Lock()
	e, ok := r.peers[id]
	if !ok {
		// Completion after teardown is a no-op.
		r.mu.Unlock()
		return
	}

	switch s {
	case core.LinkConnected:
		e.phase = phaseConnected
		e.restarted = false
		r.mu.Unlock()
		log.Info().Str("module", "voice.registry").Str("peer", string(id)).Msg("peer connected")
	case core.LinkFailed:
		if !e.restarted {
			e.restarted = true
			sdp, err := e.link.CreateOffer(true)
			if err != nil {
				r.failLocked(id, err)
				r.mu.Unlock()
				r.onChange()
				return
			}
			e.phase = phaseOffering
			r.mu.Unlock()
			log.Warn().Str("module", "voice.registry").Str("peer", string(id)).Msg("ICE failed, restarting")
			r.signals.SendOffer(id, sdp)
			return
		}
		r.closePeerLocked(id)
		r.mu.Unlock()
		r.onChange()
	case core.LinkClosed:
		r.closePeerLocked(id)
		r.mu.Unlock()
		r.onChange()
	default:
		r.mu.Unlock()
	}
}

func (r *Registry) attachSink(id domain.SessionID, track *webrtc.TrackRemote) {
	r.mu.Lock()
	e, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if e.sink == nil {
		e.sink = r.newSink(id)
	}
	sink := e.sink
	r.mu.Unlock()

	sink.Play(r.ctx, track)
}

// flushLocked drains the candidate buffer in FIFO order. Candidates that
// became stale are logged and discarded, never reordered.
func (r *Registry) flushLocked(id domain.SessionID, e *peerEntry) {
	for _, ci := range e.pending {
		if err := e.link.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "voice.registry").Str("peer", string(id)).Msg("stale candidate discarded")
		}
	}
	e.pending = nil
}

// failLocked marks a peer failed after a negotiation error and tears it
// down. Only that peer is affected.
func (r *Registry) failLocked(id domain.SessionID, err error) {
	if e, ok := r.peers[id]; ok {
		e.phase = phaseFailed
	}
	log.Error().Err(err).Str("module", "voice.registry").Str("peer", string(id)).Msg("negotiation failed")
	r.closePeerLocked(id)
}

func (r *Registry) closePeerLocked(id domain.SessionID) bool {
	e, ok := r.peers[id]
	if !ok {
		return false
	}
	e.phase = phaseClosed
	e.link.Close()
	if e.sink != nil {
		e.sink.Close()
		e.sink = nil
	}
	e.pending = nil
	e.remoteDescSet = false
	delete(r.peers, id)
	log.Info().Str("module", "voice.registry").Str("peer", string(id)).Msg("peer closed")
	return true
}
