package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLevel struct {
	mu sync.Mutex
	v  float64
}

func (s *stubLevel) set(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
}

func (s *stubLevel) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// startDetector uses an interval long enough that the ticker never fires
// during the test; transitions are driven through sample directly.
func startDetector(t *testing.T, src *stubLevel, threshold float64, events *[]bool) *Detector {
	t.Helper()
	d := NewDetector(src, threshold, time.Hour, func(speaking bool) {
		*events = append(*events, speaking)
	})
	d.Start(context.Background())
	t.Cleanup(d.Stop)
	return d
}

func TestDetectorEmitsTransitionsOnly(t *testing.T) {
	src := &stubLevel{}
	var events []bool
	d := startDetector(t, src, 0.5, &events)

	src.set(0.9)
	d.sample()
	d.sample()
	d.sample()
	src.set(0.1)
	d.sample()
	d.sample()

	assert.Equal(t, []bool{true, false}, events)
}

func TestDetectorThresholdIsStrict(t *testing.T) {
	src := &stubLevel{}
	var events []bool
	d := startDetector(t, src, 0.5, &events)

	src.set(0.5)
	d.sample()

	assert.Empty(t, events, "level equal to threshold is silence")
}

func TestDetectorSilentWhileStopped(t *testing.T) {
	src := &stubLevel{}
	var events []bool
	d := startDetector(t, src, 0.5, &events)
	d.Stop()

	src.set(0.9)
	d.sample()

	assert.Empty(t, events)
}

func TestDetectorRestartsFresh(t *testing.T) {
	src := &stubLevel{}
	var events []bool
	d := startDetector(t, src, 0.5, &events)

	src.set(0.9)
	d.sample()
	d.Stop()
	d.Stop()
	d.Start(context.Background())
	d.sample()

	// Speaking again right after restart is a fresh transition.
	assert.Equal(t, []bool{true, true}, events)
}

func TestDetectorDefaults(t *testing.T) {
	src := &stubLevel{}
	d := NewDetector(src, 0, 0, func(bool) {})

	require.InDelta(t, 0.015, d.threshold, 1e-9)
	require.Equal(t, 80*time.Millisecond, d.interval)
}
