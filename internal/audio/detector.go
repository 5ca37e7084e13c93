package audio

import (
	"context"
	"sync"
	"time"
)

// LevelSource exposes the current capture energy level.
type LevelSource interface {
	Level() float64
}

// Detector samples the capture level on a fixed interval and classifies
// speaking as level > threshold. It reports transitions only, never
// per-tick state, so signaling traffic is bounded by speech boundaries.
type Detector struct {
	src       LevelSource
	threshold float64
	interval  time.Duration
	onChange  func(speaking bool)

	mu       sync.Mutex
	cancel   context.CancelFunc
	speaking bool
	running  bool
}

func NewDetector(src LevelSource, threshold float64, interval time.Duration, onChange func(speaking bool)) *Detector {
	if threshold <= 0 {
		threshold = 0.015
	}
	if interval <= 0 {
		interval = 80 * time.Millisecond
	}
	return &Detector{src: src, threshold: threshold, interval: interval, onChange: onChange}
}

// Start launches the sampling loop. No-op when already running.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.speaking = false
	go d.loop(ctx)
}

// Stop halts sampling and resets state. Idempotent.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.cancel()
	d.cancel = nil
	d.running = false
	d.speaking = false
}

func (d *Detector) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sample()
		}
	}
}

func (d *Detector) sample() {
	speaking := d.src.Level() > d.threshold
	d.mu.Lock()
	if !d.running || speaking == d.speaking {
		d.mu.Unlock()
		return
	}
	d.speaking = speaking
	d.mu.Unlock()
	d.onChange(speaking)
}
