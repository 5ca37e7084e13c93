// Package signal translates typed voice events to and from the session
// relay's message schema. The relay only forwards; media never passes
// through it.
package signal

// Message types carried over the session channel. Outbound targeted
// messages carry "to"; the relay rewrites the sender into "from" on
// delivery.
const (
	TypeJoin     = "voice_join"
	TypeLeave    = "voice_leave"
	TypeOffer    = "voice_offer"
	TypeAnswer   = "voice_answer"
	TypeICE      = "voice_ice"
	TypeSpeaking = "voice_speaking"

	TypePeers  = "voice_peers"
	TypeJoined = "voice_joined"
	TypeLeft   = "voice_left"
)

// PeerInfo mirrors the relay's participant bookkeeping records.
type PeerInfo struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
}
