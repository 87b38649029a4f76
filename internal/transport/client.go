package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxline/animus/internal/audio"
	"github.com/voxline/animus/internal/bus"
	"github.com/voxline/animus/internal/engine"
	"github.com/voxline/animus/internal/lipsync"
	"github.com/voxline/animus/internal/schedule"
)

// Config tunes the upstream connection.
type Config struct {
	ServerURL     string
	ReconnectDelay time.Duration
	MaxReconnects  int
}

// Client maintains the WebSocket connection to the conversation server
// and dispatches inbound events into the engine.
type Client struct {
	cfg    Config
	logger zerolog.Logger
	events *bus.EventBus
	engine *engine.Engine
	http   *http.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
}

// NewClient creates a transport client over the given engine.
func NewClient(cfg Config, eng *engine.Engine, events *bus.EventBus, logger zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With().Str("component", "transport").Logger(),
		events: events,
		engine: eng,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Connect starts the connection loop in the background.
func (c *Client) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.connectLoop(ctx)
}

// Disconnect tears down the connection and stops reconnecting.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()
}

// IsConnected returns connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// connectLoop maintains the connection with bounded reconnection.
// MaxReconnects <= 0 retries forever.
func (c *Client) connectLoop(ctx context.Context) {
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.runConnection(ctx)
		if ctx.Err() != nil {
			return
		}

		failures++
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.events.Publish(bus.Event{
			Type: bus.EventTypeDisconnected,
			Data: map[string]any{"failures": failures},
		})

		if c.cfg.MaxReconnects > 0 && failures >= c.cfg.MaxReconnects {
			c.logger.Error().Err(err).Int("failures", failures).Msg("Giving up on server connection")
			return
		}

		c.logger.Warn().Err(err).Int("failures", failures).Msg("Connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// runConnection dials and reads until the connection drops.
func (c *Client) runConnection(ctx context.Context) error {
	c.logger.Info().Str("url", c.cfg.ServerURL).Msg("Connecting to server")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.events.Publish(bus.Event{Type: bus.EventTypeConnected})
	c.logger.Info().Msg("Connected to server")

	defer func() {
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.handleMessage(raw)
	}
}

// handleMessage decodes the envelope and dispatches by type. A bad
// message is logged and skipped, never fatal to the connection.
func (c *Client) handleMessage(raw json.RawMessage) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Unparseable message")
		return
	}

	switch env.Type {
	case "segment":
		var msg SegmentMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Bad segment message")
			return
		}
		if err := c.handleSegment(msg); err != nil {
			c.logger.Warn().Err(err).Int("index", msg.SequenceIndex).Msg("Segment rejected")
			c.events.Publish(bus.Event{
				Type: bus.EventTypeError,
				Data: map[string]any{"error": err.Error()},
			})
		}

	case "emotion":
		var msg EmotionMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Bad emotion message")
			return
		}
		c.engine.HandleEmotion(engine.EmotionSignal{
			Emotion:   engine.Emotion(msg.Emotion),
			Intensity: engine.Intensity(msg.Intensity),
			Gesture:   msg.Gesture,
		})

	case "state":
		var msg StateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Bad state message")
			return
		}
		c.engine.RequestState(engine.State(msg.State))

	case "command":
		var msg CommandMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Bad command message")
			return
		}
		if err := c.handleCommand(msg); err != nil {
			c.logger.Warn().Err(err).Str("command", msg.Command).Msg("Command failed")
		}

	default:
		c.logger.Debug().Str("type", env.Type).Msg("Unknown message type")
	}
}

// handleSegment decodes the audio payload and queues the segment.
func (c *Client) handleSegment(msg SegmentMessage) error {
	utterance, err := uuid.Parse(msg.UtteranceID)
	if err != nil {
		return fmt.Errorf("utterance id: %w", err)
	}
	if msg.SequenceIndex < 0 {
		return fmt.Errorf("negative sequence index %d", msg.SequenceIndex)
	}

	buf, err := c.resolveAudio(msg.Audio, msg.AudioURL)
	if err != nil {
		return fmt.Errorf("segment audio: %w", err)
	}

	c.engine.Scheduler().Add(&schedule.Segment{
		Utterance: utterance,
		Index:     msg.SequenceIndex,
		Audio:     buf,
		Timeline:  cuesFromWire(msg.Timeline),
	})

	c.events.Publish(bus.Event{
		Type: bus.EventTypeSegmentQueued,
		Data: map[string]any{"index": msg.SequenceIndex, "utterance": msg.UtteranceID},
	})
	return nil
}

// handleCommand runs one manual QA command against the engine.
func (c *Client) handleCommand(msg CommandMessage) error {
	switch msg.Command {
	case CommandPlayGesture:
		fade := 300 * time.Millisecond
		if msg.FadeMs > 0 {
			fade = time.Duration(msg.FadeMs) * time.Millisecond
		}
		return c.engine.PlayGesture(msg.Name, fade)

	case CommandStopGesture:
		c.engine.StopGesture()
		return nil

	case CommandSetExpression:
		if msg.Name == "" {
			return fmt.Errorf("expression name required")
		}
		c.engine.SetExpression(msg.Name, msg.Weight)
		return nil

	case CommandClearExpressions:
		c.engine.ClearExpressions()
		return nil

	case CommandSpeak:
		buf, err := c.resolveAudio(msg.Audio, msg.AudioURL)
		if err != nil {
			return fmt.Errorf("speak audio: %w", err)
		}
		return c.engine.Speak(buf, cuesFromWire(msg.Timeline))

	default:
		return fmt.Errorf("unknown command %q", msg.Command)
	}
}

// resolveAudio returns a decoded buffer from an inline base64 payload
// or a fetchable URL.
func (c *Client) resolveAudio(inline, rawURL string) (*audio.Buffer, error) {
	var data []byte
	switch {
	case inline != "":
		decoded, err := base64.StdEncoding.DecodeString(inline)
		if err != nil {
			return nil, fmt.Errorf("base64: %w", err)
		}
		data = decoded

	case rawURL != "":
		resp, err := c.http.Get(rawURL)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("fetch body: %w", err)
		}

	default:
		return nil, fmt.Errorf("no audio payload")
	}

	return audio.Decode(data)
}

func cuesFromWire(wire []CueWire) []lipsync.Cue {
	if len(wire) == 0 {
		return nil
	}
	cues := make([]lipsync.Cue, len(wire))
	for i, w := range wire {
		cues[i] = lipsync.Cue{
			Start: w.Start,
			End:   w.End,
			Weights: lipsync.PhonemeWeights{
				AA: w.Weights.AA,
				EE: w.Weights.EE,
				IH: w.Weights.IH,
				OH: w.Weights.OH,
				OU: w.Weights.OU,
			},
		}
	}
	return cues
}
