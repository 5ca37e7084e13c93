package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtcmesh/voice/internal/adapters/signal"
	"github.com/rtcmesh/voice/internal/audio"
	"github.com/rtcmesh/voice/internal/core"
	"github.com/rtcmesh/voice/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *fakeConn) Close() {}

// sentOfType counts outbound frames carrying the given envelope type.
func (c *fakeConn) sentOfType(msgType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(f, &env) == nil && env.Type == msgType {
			n++
		}
	}
	return n
}

type fakeDevice struct {
	mu       sync.Mutex
	frames   chan []int16
	startErr error
	starts   int
	stops    int
}

func (d *fakeDevice) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.starts++
	d.frames = make(chan []int16, 4)
	return nil
}

func (d *fakeDevice) Frames() <-chan []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

func (d *fakeDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
}

type speakEvent struct {
	ID       domain.SessionID
	Speaking bool
}

type recorder struct {
	mu        sync.Mutex
	peerLists [][]domain.Peer
	speaking  []speakEvent
	errs      []error
}

func (r *recorder) PeersChanged(peers []domain.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peerLists = append(r.peerLists, peers)
}

func (r *recorder) SpeakingChanged(id domain.SessionID, speaking bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaking = append(r.speaking, speakEvent{id, speaking})
}

func (r *recorder) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) speakEvents() []speakEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]speakEvent(nil), r.speaking...)
}

type chatHarness struct {
	vc      *VoiceChat
	adapter *signal.Adapter
	conn    *fakeConn
	device  *fakeDevice
	links   map[domain.SessionID]*fakeLink
	rec     *recorder
	local   *domain.LocalSession
}

func newChatHarness(t *testing.T) *chatHarness {
	t.Helper()
	h := &chatHarness{
		conn:   &fakeConn{},
		device: &fakeDevice{},
		links:  make(map[domain.SessionID]*fakeLink),
		rec:    &recorder{},
	}
	local, err := domain.NewLocalSession("alice")
	require.NoError(t, err)
	h.local = local
	h.adapter = signal.NewAdapter(h.conn)
	h.vc = New(context.Background(), Options{
		Local:   local,
		Adapter: h.adapter,
		Device:  h.device,
		Links: func(peer domain.SessionID, _ *webrtc.TrackLocalStaticSample) (core.MediaLink, error) {
			l := &fakeLink{peer: peer}
			h.links[peer] = l
			return l, nil
		},
		Sinks:    func(domain.SessionID) core.AudioSink { return &fakeSink{} },
		Listener: h.rec,
	})
	return h
}

func (h *chatHarness) dispatch(format string, args ...any) {
	h.adapter.Dispatch([]byte(fmt.Sprintf(format, args...)))
}

func TestJoinIdempotent(t *testing.T) {
	h := newChatHarness(t)

	require.NoError(t, h.vc.Join(context.Background()))
	require.NoError(t, h.vc.Join(context.Background()))

	assert.Equal(t, 1, h.conn.sentOfType(signal.TypeJoin))
	assert.Equal(t, 1, h.device.starts, "at most one capture stream")
}

func TestJoinAbortsBeforeAnnounceOnMediaFailure(t *testing.T) {
	h := newChatHarness(t)
	h.device.startErr = fmt.Errorf("device busy")

	err := h.vc.Join(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrMediaAccess)
	assert.Equal(t, 0, h.conn.sentOfType(signal.TypeJoin), "presence must not be announced")
	require.Len(t, h.rec.errors(), 1)

	// Leaving after a failed join is harmless.
	h.vc.Leave()
	assert.Equal(t, 0, h.conn.sentOfType(signal.TypeLeave))
}

func TestLeaveIdempotent(t *testing.T) {
	h := newChatHarness(t)
	require.NoError(t, h.vc.Join(context.Background()))
	h.dispatch(`{"type":"voice_peers","peers":[{"sessionId":"A","displayName":"Ann"}]}`)
	require.Len(t, h.vc.Peers(), 1)

	h.vc.Leave()
	h.vc.Leave()

	assert.Equal(t, 1, h.conn.sentOfType(signal.TypeLeave))
	assert.Empty(t, h.vc.Peers())
	assert.Equal(t, 1, h.links["A"].closed)
}

func TestLeaveBeforeJoinIsNoop(t *testing.T) {
	h := newChatHarness(t)

	h.vc.Leave()

	assert.Equal(t, 0, h.conn.sentOfType(signal.TypeLeave))
	assert.Empty(t, h.vc.Peers())
}

func TestRejoinRestartsCapture(t *testing.T) {
	h := newChatHarness(t)

	require.NoError(t, h.vc.Join(context.Background()))
	h.vc.Leave()
	require.NoError(t, h.vc.Join(context.Background()))

	assert.Equal(t, 2, h.device.starts)
	assert.Equal(t, 2, h.conn.sentOfType(signal.TypeJoin))
}

func TestRosterTriggersOfferToEveryoneButSelf(t *testing.T) {
	h := newChatHarness(t)
	require.NoError(t, h.vc.Join(context.Background()))

	h.dispatch(`{"type":"voice_peers","peers":[`+
		`{"sessionId":"A","displayName":"Ann"},`+
		`{"sessionId":"B","displayName":"Ben"},`+
		`{"sessionId":"%s","displayName":"alice"}]}`, h.local.ID)

	assert.Equal(t, 2, h.conn.sentOfType(signal.TypeOffer))
	assert.Len(t, h.vc.Peers(), 2)
	assert.NotContains(t, h.links, h.local.ID)
}

func TestLaterArrivalGetsNoOffer(t *testing.T) {
	h := newChatHarness(t)
	require.NoError(t, h.vc.Join(context.Background()))

	h.dispatch(`{"type":"voice_joined","sessionId":"D","displayName":"Dan"}`)

	assert.Equal(t, 0, h.conn.sentOfType(signal.TypeOffer), "the newcomer offers, not us")
	require.Len(t, h.vc.Peers(), 1)

	h.dispatch(`{"type":"voice_offer","from":"D","sdp":"offer-from-d"}`)

	assert.Equal(t, 1, h.conn.sentOfType(signal.TypeAnswer))
	assert.Equal(t, 1, h.links["D"].answers)
}

func TestPeerLeftTearsDownEvenMidNegotiation(t *testing.T) {
	h := newChatHarness(t)
	require.NoError(t, h.vc.Join(context.Background()))
	h.dispatch(`{"type":"voice_peers","peers":[{"sessionId":"A","displayName":"Ann"}]}`)

	h.dispatch(`{"type":"voice_left","sessionId":"A"}`)

	assert.Empty(t, h.vc.Peers())
	assert.Equal(t, 1, h.links["A"].closed)
}

func TestInboundIgnoredWhileNotJoined(t *testing.T) {
	h := newChatHarness(t)

	h.dispatch(`{"type":"voice_peers","peers":[{"sessionId":"A","displayName":"Ann"}]}`)
	h.dispatch(`{"type":"voice_offer","from":"B","sdp":"x"}`)
	h.dispatch(`{"type":"voice_speaking","sessionId":"A","speaking":true}`)

	assert.Empty(t, h.vc.Peers())
	assert.Empty(t, h.links)
	assert.Equal(t, 0, h.conn.sentOfType(signal.TypeOffer))
}

func TestMuteNeverRenegotiates(t *testing.T) {
	h := newChatHarness(t)
	require.NoError(t, h.vc.Join(context.Background()))
	h.dispatch(`{"type":"voice_peers","peers":[{"sessionId":"A","displayName":"Ann"}]}`)
	offersBefore := h.conn.sentOfType(signal.TypeOffer)

	h.vc.Mute()
	assert.True(t, h.vc.Muted())
	h.vc.Unmute()
	assert.False(t, h.vc.Muted())

	assert.Equal(t, offersBefore, h.conn.sentOfType(signal.TypeOffer))
	assert.Equal(t, 1, h.links["A"].offers)
}

func TestRemoteSpeakingTransitions(t *testing.T) {
	h := newChatHarness(t)
	require.NoError(t, h.vc.Join(context.Background()))
	h.dispatch(`{"type":"voice_peers","peers":[{"sessionId":"A","displayName":"Ann"}]}`)

	h.dispatch(`{"type":"voice_speaking","sessionId":"A","speaking":true}`)
	h.dispatch(`{"type":"voice_speaking","sessionId":"A","speaking":true}`)
	h.dispatch(`{"type":"voice_speaking","sessionId":"A","speaking":false}`)

	assert.Equal(t, []speakEvent{{"A", true}, {"A", false}}, h.rec.speakEvents())

	peers := h.vc.Peers()
	require.Len(t, peers, 1)
	assert.False(t, peers[0].Speaking)
}

func TestLocalSpeakingAnnounced(t *testing.T) {
	h := newChatHarness(t)
	require.NoError(t, h.vc.Join(context.Background()))

	h.vc.onLocalSpeaking(true)
	h.vc.onLocalSpeaking(false)

	assert.Equal(t, 2, h.conn.sentOfType(signal.TypeSpeaking))
	assert.Equal(t, []speakEvent{{h.local.ID, true}, {h.local.ID, false}}, h.rec.speakEvents())
}

func TestCandidateRoutedThroughRegistry(t *testing.T) {
	h := newChatHarness(t)
	require.NoError(t, h.vc.Join(context.Background()))
	h.dispatch(`{"type":"voice_joined","sessionId":"D","displayName":"Dan"}`)

	// Buffered while the remote description is unset.
	h.dispatch(`{"type":"voice_ice","from":"D","candidate":{"candidate":"c1"}}`)
	assert.Empty(t, h.links["D"].applied)

	h.dispatch(`{"type":"voice_offer","from":"D","sdp":"offer-from-d"}`)
	require.Len(t, h.links["D"].applied, 1)
	assert.Equal(t, "c1", h.links["D"].applied[0].Candidate)
}
