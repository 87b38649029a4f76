package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxline/animus/internal/audio"
	"github.com/voxline/animus/internal/bus"
	"github.com/voxline/animus/internal/config"
	"github.com/voxline/animus/internal/discovery"
	"github.com/voxline/animus/internal/engine"
	"github.com/voxline/animus/internal/gesture"
	"github.com/voxline/animus/internal/lipsync"
	"github.com/voxline/animus/internal/logging"
	"github.com/voxline/animus/internal/schedule"
	"github.com/voxline/animus/internal/transport"
)

func main() {
	rigFile := flag.String("rig", "", "file listing the character's parameter names, one per line")
	noAudio := flag.Bool("no-audio", false, "disable audio output (clock-only playback)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(&logging.Config{
		LogDir:  cfg.Logging.Dir,
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	logger.Info().Msg("Starting animus")

	events := bus.NewEventBus()
	defer events.Clear()

	library := gesture.NewLibrary(cfg.Gesture.ClipDir, logger)
	if err := library.LoadAll(); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.Gesture.ClipDir).Msg("Gesture library unavailable")
	}
	if cfg.Gesture.WatchClips {
		if err := library.Watch(); err != nil {
			logger.Warn().Err(err).Msg("Clip watching disabled")
		}
	}
	defer library.Close()

	gestures := gesture.NewManager(library, gesture.Config{
		IdleVariety:     cfg.Gesture.IdleVariety,
		IdleMinInterval: cfg.Gesture.IdleMinInterval,
		IdleMaxInterval: cfg.Gesture.IdleMaxInterval,
	}, logger)

	lips := lipsync.NewManager(lipsync.Config{
		Smoothing: float32(cfg.LipSync.Smoothing),
		Spectral: lipsync.SpectralConfig{
			AmplitudeGate:  cfg.LipSync.AmplitudeGate,
			AmplitudeScale: cfg.LipSync.AmplitudeScale,
			CentroidLow:    cfg.LipSync.CentroidLowBand,
			CentroidMid:    cfg.LipSync.CentroidMidBand,
			WindowSize:     cfg.LipSync.WindowSize,
		},
	}, logger)

	sched := schedule.NewScheduler(logger)

	rig := engine.NewRig(loadRigParams(*rigFile, logger))

	eng := engine.New(engine.Config{
		MaxFrameDelta: cfg.Engine.MaxFrameDelta,
		Procedural: engine.ProceduralConfig{
			BlinkMinGap:     cfg.Engine.BlinkMinGap,
			BlinkMaxGap:     cfg.Engine.BlinkMaxGap,
			BlinkDuration:   cfg.Engine.BlinkDuration,
			DoubleBlinkOdds: float32(cfg.Engine.DoubleBlinkOdds),
			HeadTurnRange:   float32(cfg.Engine.HeadTurnRange),
			TorsoSwayRange:  float32(cfg.Engine.TorsoSwayRange),
			GazeDownBias:    float32(cfg.Engine.GazeDownBias),
			TalkingBoost:    float32(cfg.Engine.TalkingBoost),
		},
		TalkGesture:  "talk_idle",
		ThinkGesture: "think_idle",
		TalkFade:     cfg.Gesture.TalkFade,
		ThinkFade:    cfg.Gesture.ThinkFade,
		RestFade:     cfg.Gesture.TalkFade,
	}, sched, lips, gestures, rig, events, sinkFactory(*noAudio, logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverURL := cfg.Transport.ServerURL
	if serverURL == "" || serverURL == "auto" {
		prober := discovery.NewProber(discovery.DefaultConfig(), logger)
		if srv, err := prober.First(ctx); err != nil {
			logger.Warn().Err(err).Msg("No conversation server discovered, will keep retrying default")
			serverURL = "ws://localhost:8080/events"
		} else {
			logger.Info().Str("server", srv.Name).Str("url", srv.EventsURL).Msg("Discovered conversation server")
			serverURL = srv.EventsURL
		}
	}

	client := transport.NewClient(transport.Config{
		ServerURL:      serverURL,
		ReconnectDelay: cfg.Transport.ReconnectDelay,
		MaxReconnects:  cfg.Transport.MaxReconnects,
	}, eng, events, logger)
	client.Connect(ctx)
	defer client.Disconnect()

	feed := transport.NewFrameFeed(cfg.Transport.FrameFeedAddr, logger)
	feed.Start()
	defer feed.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	frameRate := cfg.Engine.FrameRate
	if frameRate <= 0 {
		frameRate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(frameRate))
	defer ticker.Stop()

	logger.Info().Int("fps", frameRate).Msg("Frame loop running")

	last := time.Now()
	for {
		select {
		case <-sigChan:
			logger.Info().Msg("Shutdown signal received")
			lips.Stop()
			return
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			frame := eng.Update(dt)
			feed.Broadcast(frame)
		}
	}
}

// sinkFactory selects the playback backend. With audio disabled, or if
// the device cannot be opened, playback degrades to a silent clock so
// animation still runs.
func sinkFactory(noAudio bool, logger zerolog.Logger) func() audio.Sink {
	if noAudio {
		return func() audio.Sink { return audio.NullSink{} }
	}
	return func() audio.Sink {
		sink, err := audio.NewPortAudioSink()
		if err != nil {
			logger.Warn().Err(err).Msg("Audio device unavailable, using silent playback")
			return audio.NullSink{}
		}
		return sink
	}
}

// loadRigParams reads the character's parameter names from a file, one
// per line. An empty path yields the identity rig, which passes logical
// names straight through.
func loadRigParams(path string, logger zerolog.Logger) []string {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Rig file unavailable, using identity rig")
		return nil
	}
	defer f.Close()

	var params []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		params = append(params, line)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Rig file read failed, using identity rig")
		return nil
	}

	logger.Info().Int("params", len(params)).Str("path", path).Msg("Rig parameters loaded")
	return params
}
