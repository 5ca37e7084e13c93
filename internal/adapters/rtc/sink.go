package rtc

import (
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rtcmesh/voice/internal/audio"
	"github.com/rtcmesh/voice/internal/domain"
)

// Sink plays one remote peer's audio: it reads RTP from the remote track,
// decodes the PCMU payload and writes s16le PCM to the playback writer.
// The registry owns it and releases it exactly once on peer teardown.
type Sink struct {
	peer domain.SessionID
	out  io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func NewSink(out io.Writer, peer domain.SessionID) *Sink {
	return &Sink{peer: peer, out: out}
}

func (s *Sink) Play(ctx context.Context, track *webrtc.TrackRemote) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	logger := log.With().
		Str("module", "playback").
		Str("peer", string(s.peer)).
		Logger()

	go s.loop(ctx, track, &logger)
}

func (s *Sink) loop(ctx context.Context, track *webrtc.TrackRemote, logger *zerolog.Logger) {
	logger.Info().Msg("playback started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("playback ctx done")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("playback read RTP ended")
			return
		}
		s.write(pkt, logger)
	}
}

func (s *Sink) write(pkt *rtp.Packet, logger *zerolog.Logger) {
	if len(pkt.Payload) == 0 {
		return
	}
	pcm := audio.MulawDecode(pkt.Payload)
	buf := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	if _, err := s.out.Write(buf); err != nil {
		logger.Error().Err(err).Msg("playback write error")
	}
}

// Close stops the playback loop. Idempotent and safe before Play.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
