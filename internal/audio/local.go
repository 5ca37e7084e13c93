// Package audio owns the local capture stream, the μ-law codec and the
// speaking detector.
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/rtcmesh/voice/internal/core"
)

// ErrMediaAccess reports that the capture source could not be opened
// (permission denied or no device).
var ErrMediaAccess = errors.New("media access denied")

// Manager owns the single local capture stream and the shared outbound
// track. The track is handed read-only to every peer link; mute only flips
// the enabled gate and never renegotiates.
type Manager struct {
	dev core.CaptureDevice

	mu       sync.Mutex
	track    *webrtc.TrackLocalStaticSample
	cancel   context.CancelFunc
	acquired bool

	enabled atomic.Bool
	level   atomic.Uint64 // float64 bits of the latest frame RMS
}

func NewManager(dev core.CaptureDevice) *Manager {
	m := &Manager{dev: dev}
	m.enabled.Store(true)
	return m
}

// Acquire opens the capture source and starts the encode pump. No-op when
// already acquired, so at most one stream is ever live.
func (m *Manager) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquired {
		return nil
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: SampleRate, Channels: 1},
		"audio", "voice",
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}
	if err := m.dev.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	m.track = track
	m.cancel = cancel
	m.acquired = true
	m.enabled.Store(true)
	go m.pump(ctx, track, m.dev.Frames())

	log.Info().Str("module", "audio").Msg("capture acquired")
	return nil
}

func (m *Manager) pump(ctx context.Context, track *webrtc.TrackLocalStaticSample, frames <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			m.level.Store(math.Float64bits(RMS(frame)))
			if !m.enabled.Load() {
				continue
			}
			sample := media.Sample{Data: MulawEncode(frame), Duration: frameDuration}
			if err := track.WriteSample(sample); err != nil {
				log.Error().Err(err).Str("module", "audio").Msg("write sample")
			}
		}
	}
}

// Release stops capture and drops the track. Idempotent.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.acquired {
		return
	}
	m.cancel()
	m.dev.Stop()
	m.track = nil
	m.cancel = nil
	m.acquired = false
	m.level.Store(0)
	log.Info().Str("module", "audio").Msg("capture released")
}

// SetEnabled is the mute gate. The track stays attached to every link.
func (m *Manager) SetEnabled(enabled bool) { m.enabled.Store(enabled) }

func (m *Manager) Enabled() bool { return m.enabled.Load() }

func (m *Manager) Acquired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

// Track returns the shared local track, nil while not acquired.
func (m *Manager) Track() *webrtc.TrackLocalStaticSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track
}

// Level is the RMS amplitude of the most recent frame, normalized to 0..1.
func (m *Manager) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// RMS returns the root-mean-square amplitude of a frame, normalized to 0..1.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
