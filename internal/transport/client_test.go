package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxline/animus/internal/bus"
	"github.com/voxline/animus/internal/engine"
	"github.com/voxline/animus/internal/gesture"
	"github.com/voxline/animus/internal/lipsync"
	"github.com/voxline/animus/internal/schedule"
)

func testEngine(t *testing.T) (*engine.Engine, *schedule.Scheduler) {
	t.Helper()
	logger := zerolog.Nop()

	library := gesture.NewLibrary("", logger)
	library.Register(&gesture.Clip{Name: "wave", Priority: gesture.PriorityEmphasis, Duration: 1})

	gestures := gesture.NewManager(library, gesture.Config{}, logger)
	lips := lipsync.NewManager(lipsync.DefaultConfig(), logger)
	sched := schedule.NewScheduler(logger)
	events := bus.NewEventBus()
	t.Cleanup(events.Clear)

	eng := engine.New(engine.DefaultConfig(), sched, lips, gestures, engine.NewRig(nil), events, nil, logger)
	return eng, sched
}

func testClient(t *testing.T) (*Client, *schedule.Scheduler) {
	t.Helper()
	eng, sched := testEngine(t)
	events := bus.NewEventBus()
	t.Cleanup(events.Clear)
	return NewClient(Config{}, eng, events, zerolog.Nop()), sched
}

// wavBase64 builds a small PCM16 mono WAV and encodes it for the wire.
func wavBase64(samples int) string {
	pcmLen := samples * 2
	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(36+pcmLen))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(16))
	binary.Write(&out, binary.LittleEndian, uint16(1))
	binary.Write(&out, binary.LittleEndian, uint16(1))
	binary.Write(&out, binary.LittleEndian, uint32(24000))
	binary.Write(&out, binary.LittleEndian, uint32(48000))
	binary.Write(&out, binary.LittleEndian, uint16(2))
	binary.Write(&out, binary.LittleEndian, uint16(16))
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(pcmLen))
	out.Write(make([]byte, pcmLen))
	return base64.StdEncoding.EncodeToString(out.Bytes())
}

func TestCuesFromWire(t *testing.T) {
	cues := cuesFromWire([]CueWire{
		{Start: 0, End: 0.3, Weights: PhonemeWeightWire{AA: 1}},
		{Start: 0.3, End: 0.6, Weights: PhonemeWeightWire{OH: 0.5, OU: 0.2}},
	})

	require.Len(t, cues, 2)
	assert.Equal(t, lipsync.Cue{Start: 0, End: 0.3, Weights: lipsync.PhonemeWeights{AA: 1}}, cues[0])
	assert.Equal(t, float32(0.5), cues[1].Weights.OH)
	assert.Equal(t, float32(0.2), cues[1].Weights.OU)

	assert.Nil(t, cuesFromWire(nil))
}

func TestHandleSegment_QueuesDecodedAudio(t *testing.T) {
	c, sched := testClient(t)

	err := c.handleSegment(SegmentMessage{
		UtteranceID:   uuid.NewString(),
		SequenceIndex: 0,
		Audio:         wavBase64(2400),
		Timeline:      []CueWire{{Start: 0, End: 0.1, Weights: PhonemeWeightWire{AA: 1}}},
	})
	require.NoError(t, err)

	seg := sched.Next()
	require.NotNil(t, seg)
	assert.Equal(t, 0, seg.Index)
	assert.Equal(t, 24000, seg.Audio.SampleRate)
	assert.Len(t, seg.Audio.Samples, 2400)
	assert.Len(t, seg.Timeline, 1)
}

func TestHandleSegment_Rejections(t *testing.T) {
	c, sched := testClient(t)

	tests := []struct {
		name string
		msg  SegmentMessage
	}{
		{"bad utterance id", SegmentMessage{UtteranceID: "not-a-uuid", Audio: wavBase64(100)}},
		{"negative index", SegmentMessage{UtteranceID: uuid.NewString(), SequenceIndex: -1, Audio: wavBase64(100)}},
		{"no payload", SegmentMessage{UtteranceID: uuid.NewString()}},
		{"bad base64", SegmentMessage{UtteranceID: uuid.NewString(), Audio: "!!!not base64!!!"}},
		{"undecodable audio", SegmentMessage{
			UtteranceID: uuid.NewString(),
			Audio:       base64.StdEncoding.EncodeToString([]byte("garbage bytes here")),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, c.handleSegment(tt.msg))
		})
	}
	assert.Equal(t, 0, sched.Pending(), "rejected segments never reach the scheduler")
}

func TestHandleMessage_DispatchesByType(t *testing.T) {
	c, sched := testClient(t)

	msg, _ := json.Marshal(SegmentMessage{
		Type:          "segment",
		UtteranceID:   uuid.NewString(),
		SequenceIndex: 0,
		Audio:         wavBase64(240),
	})
	c.handleMessage(msg)
	assert.Equal(t, 1, sched.Pending())

	// Unknown and malformed messages are skipped without panicking.
	c.handleMessage(json.RawMessage(`{"type":"mystery"}`))
	c.handleMessage(json.RawMessage(`not even json`))
	assert.Equal(t, 1, sched.Pending())
}

func TestHandleCommand_GestureAndExpressions(t *testing.T) {
	c, _ := testClient(t)

	require.NoError(t, c.handleCommand(CommandMessage{Command: CommandPlayGesture, Name: "wave"}))
	assert.Error(t, c.handleCommand(CommandMessage{Command: CommandPlayGesture, Name: "missing"}))

	require.NoError(t, c.handleCommand(CommandMessage{Command: CommandSetExpression, Name: "smile", Weight: 0.7}))
	assert.Error(t, c.handleCommand(CommandMessage{Command: CommandSetExpression}))

	require.NoError(t, c.handleCommand(CommandMessage{Command: CommandClearExpressions}))
	require.NoError(t, c.handleCommand(CommandMessage{Command: CommandStopGesture}))

	assert.Error(t, c.handleCommand(CommandMessage{Command: "bogus"}))
}

func TestHandleCommand_Speak(t *testing.T) {
	c, sched := testClient(t)

	err := c.handleCommand(CommandMessage{
		Command: CommandSpeak,
		Audio:   wavBase64(2400),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sched.Pending(), "speak bypasses the scheduler")
}
