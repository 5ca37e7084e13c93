package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	SampleRate = 8000
	// FrameSize is samples per 20 ms frame.
	FrameSize     = SampleRate / 50
	frameDuration = 20 * time.Millisecond
)

var ErrNoCaptureSource = errors.New("no capture source")

// ReaderDevice adapts any s16le mono PCM byte stream (a FIFO fed by the OS
// capture pipeline, or stdin) into fixed 20 ms frames. When the consumer
// falls behind, frames are dropped so live capture never backs up.
type ReaderDevice struct {
	r io.Reader

	mu      sync.Mutex
	frames  chan []int16
	cancel  context.CancelFunc
	started bool
}

func NewReaderDevice(r io.Reader) *ReaderDevice {
	return &ReaderDevice{r: r}
}

func (d *ReaderDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.r == nil {
		return ErrNoCaptureSource
	}
	if d.started {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	d.frames = make(chan []int16, 4)
	d.cancel = cancel
	d.started = true
	go d.loop(ctx, d.frames)
	return nil
}

func (d *ReaderDevice) Frames() <-chan []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

func (d *ReaderDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return
	}
	d.cancel()
	d.cancel = nil
	d.started = false
}

func (d *ReaderDevice) loop(ctx context.Context, frames chan<- []int16) {
	defer close(frames)
	buf := make([]byte, FrameSize*2)
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := io.ReadFull(d.r, buf); err != nil {
			log.Info().Err(err).Str("module", "capture").Msg("capture stream ended")
			return
		}
		frame := make([]int16, FrameSize)
		for i := range frame {
			frame[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		default:
		}
	}
}
