package core

import "github.com/rtcmesh/voice/internal/domain"

// Listener is the subscribe-only event surface for consumers (UI, game
// logic). It is owned per VoiceChat instance; there is no global registry.
type Listener interface {
	// PeersChanged delivers a snapshot of the current peer list.
	PeersChanged([]domain.Peer)
	// SpeakingChanged fires on threshold-crossing transitions only,
	// for remote peers and for the local session.
	SpeakingChanged(id domain.SessionID, speaking bool)
	// Error surfaces non-fatal failures such as denied media access.
	Error(err error)
}

// NopListener discards every event.
type NopListener struct{}

func (NopListener) PeersChanged([]domain.Peer)             {}
func (NopListener) SpeakingChanged(domain.SessionID, bool) {}
func (NopListener) Error(error)                            {}
