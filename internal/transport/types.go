// Package transport connects the animation engine to its upstream
// conversation server over WebSocket and publishes rendered frames to
// attached renderer clients.
package transport

// Envelope wraps every inbound message with a type discriminator.
type Envelope struct {
	Type string `json:"type"`
}

// CueWire is one lip-sync cue as sent by the server.
type CueWire struct {
	Start   float64           `json:"start"`
	End     float64           `json:"end"`
	Weights PhonemeWeightWire `json:"weights"`
}

// PhonemeWeightWire carries the five vowel weights.
type PhonemeWeightWire struct {
	AA float32 `json:"aa"`
	EE float32 `json:"ee"`
	IH float32 `json:"ih"`
	OH float32 `json:"oh"`
	OU float32 `json:"ou"`
}

// SegmentMessage delivers one chunk of synthesized speech. Audio is
// either inlined base64 or referenced by URL; exactly one must be set.
type SegmentMessage struct {
	Type          string    `json:"type"`
	UtteranceID   string    `json:"utteranceId"`
	SequenceIndex int       `json:"sequenceIndex"`
	Audio         string    `json:"audio,omitempty"`
	AudioURL      string    `json:"audioUrl,omitempty"`
	Timeline      []CueWire `json:"lipSyncTimeline,omitempty"`
}

// EmotionMessage updates the avatar's emotional coloring.
type EmotionMessage struct {
	Type      string `json:"type"`
	Emotion   string `json:"emotion"`
	Intensity string `json:"intensity"`
	Gesture   string `json:"gesture,omitempty"`
}

// StateMessage requests a base avatar state (idle, listening,
// thinking). Talking is inferred from playback and rejected here.
type StateMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// CommandMessage carries a manual QA command that bypasses the
// scheduler and drives the managers directly.
type CommandMessage struct {
	Type     string    `json:"type"`
	Command  string    `json:"command"`
	Name     string    `json:"name,omitempty"`
	Weight   float32   `json:"weight,omitempty"`
	FadeMs   int       `json:"fadeMs,omitempty"`
	Audio    string    `json:"audio,omitempty"`
	AudioURL string    `json:"audioUrl,omitempty"`
	Timeline []CueWire `json:"lipSyncTimeline,omitempty"`
}

// FrameMessage is one rendered parameter frame published on the feed.
type FrameMessage struct {
	Type    string             `json:"type"`
	Params  map[string]float32 `json:"params"`
	Talking bool               `json:"talking"`
	Gesture string             `json:"gesture,omitempty"`
}

// Manual QA commands accepted in CommandMessage.Command.
const (
	CommandPlayGesture      = "play-gesture"
	CommandStopGesture      = "stop-gesture"
	CommandSetExpression    = "set-expression"
	CommandClearExpressions = "clear-expressions"
	CommandSpeak            = "speak"
)
