package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rtcmesh/voice/internal/adapters/rtc"
	relay "github.com/rtcmesh/voice/internal/adapters/signal"
	"github.com/rtcmesh/voice/internal/audio"
	"github.com/rtcmesh/voice/internal/config"
	"github.com/rtcmesh/voice/internal/core"
	"github.com/rtcmesh/voice/internal/domain"
	"github.com/rtcmesh/voice/internal/voice"
)

// eventLog is the default consumer: it just logs the event surface that a
// UI would subscribe to.
type eventLog struct{}

func (eventLog) PeersChanged(peers []domain.Peer) {
	log.Info().Int("count", len(peers)).Msg("peers changed")
}

func (eventLog) SpeakingChanged(id domain.SessionID, speaking bool) {
	log.Info().Str("sid", string(id)).Bool("speaking", speaking).Msg("speaking changed")
}

func (eventLog) Error(err error) {
	log.Error().Err(err).Msg("voice error")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	local, err := domain.NewLocalSession(cfg.DisplayName)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid display name")
	}

	capture, err := openCapture(cfg.CapturePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CapturePath).Msg("open capture source")
	}
	playback, err := openPlayback(cfg.PlaybackPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.PlaybackPath).Msg("open playback target")
	}

	conn, err := relay.Dial(ctx, cfg.RelayURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.RelayURL).Msg("relay dial")
	}
	defer conn.Close()

	adapter := relay.NewAdapter(conn)
	rtcCfg := rtc.Configuration(cfg.ICEServers)

	vc := voice.New(ctx, voice.Options{
		Local:   local,
		Adapter: adapter,
		Device:  audio.NewReaderDevice(capture),
		Links: func(peer domain.SessionID, track *webrtc.TrackLocalStaticSample) (core.MediaLink, error) {
			return rtc.NewLink(rtcCfg, peer, track)
		},
		Sinks: func(peer domain.SessionID) core.AudioSink {
			return rtc.NewSink(playback, peer)
		},
		VADThreshold: cfg.VADThreshold,
		VADInterval:  cfg.VADInterval,
		Listener:     eventLog{},
	})

	conn.Run(ctx, adapter.Dispatch)

	if err := vc.Join(ctx); err != nil {
		log.Error().Err(err).Msg("join failed")
	} else {
		log.Info().Str("sid", string(local.ID)).Str("relay", cfg.RelayURL).Msg("voice client started")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	vc.Leave()
	conn.Close()
	log.Info().Msg("Client exited gracefully")
}

func openCapture(path string) (io.Reader, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

func openPlayback(path string) (io.Writer, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}
