package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rtcmesh/voice/internal/core"
	"github.com/rtcmesh/voice/internal/domain"
)

// Handler receives inbound relay messages already decoded into typed calls.
type Handler interface {
	OnRoster(peers []PeerInfo)
	OnPeerJoined(p PeerInfo)
	OnPeerLeft(id domain.SessionID)
	OnOffer(from domain.SessionID, sdp string)
	OnAnswer(from domain.SessionID, sdp string)
	OnCandidate(from domain.SessionID, cand webrtc.ICECandidateInit)
	OnSpeaking(id domain.SessionID, speaking bool)
}

// Adapter owns the outbound message contract. Every send is best-effort: a
// closed channel only happens during a session transition, so the error is
// logged and swallowed, never raised to the caller.
type Adapter struct {
	conn    core.SignalConnection
	handler Handler
}

func NewAdapter(conn core.SignalConnection) *Adapter {
	return &Adapter{conn: conn}
}

// Bind sets the inbound handler. Must be called before Dispatch.
func (a *Adapter) Bind(h Handler) { a.handler = h }

func (a *Adapter) SendJoin() {
	a.sendJSON(struct {
		Type string `json:"type"`
	}{TypeJoin})
}

func (a *Adapter) SendLeave() {
	a.sendJSON(struct {
		Type string `json:"type"`
	}{TypeLeave})
}

func (a *Adapter) SendOffer(to domain.SessionID, sdp string) {
	a.sendJSON(struct {
		Type string           `json:"type"`
		To   domain.SessionID `json:"to"`
		SDP  string           `json:"sdp"`
	}{TypeOffer, to, sdp})
}

func (a *Adapter) SendAnswer(to domain.SessionID, sdp string) {
	a.sendJSON(struct {
		Type string           `json:"type"`
		To   domain.SessionID `json:"to"`
		SDP  string           `json:"sdp"`
	}{TypeAnswer, to, sdp})
}

func (a *Adapter) SendCandidate(to domain.SessionID, cand webrtc.ICECandidateInit) {
	a.sendJSON(struct {
		Type      string                  `json:"type"`
		To        domain.SessionID        `json:"to"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}{TypeICE, to, cand})
}

func (a *Adapter) SendSpeaking(speaking bool) {
	a.sendJSON(struct {
		Type     string `json:"type"`
		Speaking bool   `json:"speaking"`
	}{TypeSpeaking, speaking})
}

func (a *Adapter) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := a.conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("send dropped")
	}
}

// Dispatch decodes one inbound relay frame and routes it to the bound
// handler. Unknown types are ignored.
func (a *Adapter) Dispatch(data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	if a.handler == nil {
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("no handler bound")
		return
	}

	switch env.Type {
	case TypePeers:
		a.handlePeers(data)
	case TypeJoined:
		a.handleJoined(data)
	case TypeLeft:
		a.handleLeft(data)
	case TypeOffer:
		a.handleDescription(data, a.handler.OnOffer)
	case TypeAnswer:
		a.handleDescription(data, a.handler.OnAnswer)
	case TypeICE:
		a.handleCandidate(data)
	case TypeSpeaking:
		a.handleSpeaking(data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (a *Adapter) handlePeers(data []byte) {
	var p struct {
		Peers []PeerInfo `json:"peers"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad peers payload")
		return
	}
	a.handler.OnRoster(p.Peers)
}

func (a *Adapter) handleJoined(data []byte) {
	var p PeerInfo
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad joined payload")
		return
	}
	a.handler.OnPeerJoined(p)
}

func (a *Adapter) handleLeft(data []byte) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad left payload")
		return
	}
	a.handler.OnPeerLeft(domain.SessionID(p.SessionID))
}

func (a *Adapter) handleDescription(data []byte, fn func(domain.SessionID, string)) {
	var p struct {
		From string `json:"from"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad description payload")
		return
	}
	fn(domain.SessionID(p.From), p.SDP)
}

func (a *Adapter) handleCandidate(data []byte) {
	var p struct {
		From      string                  `json:"from"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	a.handler.OnCandidate(domain.SessionID(p.From), p.Candidate)
}

func (a *Adapter) handleSpeaking(data []byte) {
	var p struct {
		SessionID string `json:"sessionId"`
		Speaking  bool   `json:"speaking"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad speaking payload")
		return
	}
	a.handler.OnSpeaking(domain.SessionID(p.SessionID), p.Speaking)
}
