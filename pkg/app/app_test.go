package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/voice-client/pkg/audio"
	"github.com/realtime-ai/voice-client/pkg/codec"
	"github.com/realtime-ai/voice-client/pkg/device"
	"github.com/realtime-ai/voice-client/pkg/ota"
	"github.com/realtime-ai/voice-client/pkg/protocol"
	"github.com/realtime-ai/voice-client/pkg/talk"
	"github.com/realtime-ai/voice-client/pkg/vad"
	"github.com/realtime-ai/voice-client/pkg/wake"
)

const frameDt = 30 * time.Millisecond

type testEnv struct {
	app     *App
	dev     *fakeDevice
	proto   *protocol.MockProtocol
	display *fakeDisplay
	clock   *fakeClock
	encoder *fakeEncoder
	decoder *fakeDecoder
}

type envOption func(*Config, *Deps)

func withBreakMode(m BreakMode) envOption {
	return func(c *Config, _ *Deps) { c.BreakMode = m }
}

// withWake adds a wake service whose detector scores any non-zero window
// as speech. Its poll loop never fires; tests drive the callbacks.
func withWake(t *testing.T, spotter wake.KeywordSpotter) envOption {
	return func(_ *Config, d *Deps) {
		cfg := wake.DefaultConfig(16000)
		cfg.PollInterval = time.Hour
		s, err := wake.New(cfg, vad.NewMockDetectorByLevel(), spotter)
		require.NoError(t, err)
		d.Wake = s
	}
}

func withDances(dances map[string]string, load func(string) (*audio.Clip, error)) envOption {
	return func(c *Config, d *Deps) {
		c.Dances = dances
		d.LoadClip = load
	}
}

func newEnv(t *testing.T, dev *fakeDevice, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		dev:     dev,
		proto:   protocol.NewMockProtocol(),
		display: &fakeDisplay{},
		clock:   &fakeClock{now: time.Unix(1700000000, 0)},
	}
	cfg := Config{ServerInputSampleRate: 16000, FrameDurationMs: 60}
	deps := Deps{
		Device:   dev,
		Protocol: env.proto,
		Display:  env.display,
		NewEncoder: func(c codec.Config) (codec.Encoder, error) {
			env.encoder = &fakeEncoder{frame: c.FrameSize()}
			return env.encoder, nil
		},
		NewDecoder: func(c codec.Config) (codec.Decoder, error) {
			env.decoder = &fakeDecoder{cfg: c}
			return env.decoder, nil
		},
		Now: env.clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	a, err := New(cfg, deps)
	require.NoError(t, err)
	env.app = a
	t.Cleanup(a.release)
	return env
}

func startEnv(t *testing.T, dev *fakeDevice, opts ...envOption) *testEnv {
	t.Helper()
	env := newEnv(t, dev, opts...)
	require.NoError(t, env.app.startup(context.Background()))
	require.Equal(t, talk.StateIdle, env.app.Talk().State())
	return env
}

func (e *testEnv) step() {
	e.app.tick(context.Background(), frameDt)
}

// stepUntil ticks until cond holds.
func (e *testEnv) stepUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, state %s", e.app.Talk().State())
		}
		e.step()
		time.Sleep(time.Millisecond)
	}
}

func (e *testEnv) waitState(t *testing.T, s talk.State) {
	t.Helper()
	e.stepUntil(t, func() bool { return e.app.Talk().State() == s })
}

func (e *testEnv) emit(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, e.proto.EmitJSON(raw))
	e.step()
}

func (e *testEnv) listen(t *testing.T) {
	t.Helper()
	e.app.ToggleChatState()
	e.waitState(t, talk.StateListening)
}

func (e *testEnv) speak(t *testing.T) {
	t.Helper()
	e.listen(t)
	e.emit(t, `{"type":"tts","state":"start"}`)
	require.Equal(t, talk.StateSpeaking, e.app.Talk().State())
}

func count(msgs []string, want string) int {
	n := 0
	for _, m := range msgs {
		if m == want {
			n++
		}
	}
	return n
}

func indexOf(msgs []string, prefix string) int {
	for i, m := range msgs {
		if strings.HasPrefix(m, prefix) {
			return i
		}
	}
	return -1
}

func TestParseBreakMode(t *testing.T) {
	tests := []struct {
		in      string
		want    BreakMode
		wantErr bool
	}{
		{"", BreakNone, false},
		{"none", BreakNone, false},
		{"Keyword", BreakKeyword, false},
		{" vad ", BreakVAD, false},
		{"free", BreakFree, false},
		{"loud", BreakNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBreakMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RequiresDeviceAndProtocol(t *testing.T) {
	_, err := New(Config{}, Deps{Protocol: protocol.NewMockProtocol()})
	assert.ErrorIs(t, err, ErrMissingDevice)

	_, err = New(Config{}, Deps{Device: newFakeDevice(16000, 24000)})
	assert.ErrorIs(t, err, ErrMissingProtocol)
}

func TestStartup(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))

	assert.True(t, env.dev.started)
	assert.NotNil(t, env.app.things.Thing("Speaker"))
	assert.NotNil(t, env.app.things.Thing("Dance Controller"))
	assert.Nil(t, env.app.inputResampler, "input already at the server rate")
	assert.NotNil(t, env.app.clipResampler)
	assert.Equal(t, 24000, env.app.decodeRate)
}

func TestStartup_MicrophoneNotFound(t *testing.T) {
	dev := newFakeDevice(16000, 24000)
	dev.hasInput = false
	env := newEnv(t, dev)

	err := env.app.startup(context.Background())
	assert.ErrorIs(t, err, device.ErrNoInputDevice)
	assert.Equal(t, talk.StateError, env.app.Talk().State())
	assert.Equal(t, MsgMicNotFound, env.app.Talk().Info())
}

func TestStartup_Activation(t *testing.T) {
	checker := &fakeChecker{
		results: []*ota.Result{
			nil,
			{ActivationCode: "123456", ActivationMessage: "请在后台输入 123456"},
			{FirmwareVersion: "1.0.0"},
		},
		errs: []error{errCheckFailed, nil, nil},
	}
	var states []talk.State
	env := newEnv(t, newFakeDevice(16000, 24000), func(c *Config, d *Deps) {
		d.OTA = checker
		c.OTARetryInterval = time.Millisecond
	})
	env.app.Talk().OnStateUpdate(func(s talk.State) { states = append(states, s) })

	require.NoError(t, env.app.startup(context.Background()))
	assert.Equal(t, 3, checker.calls)
	assert.Equal(t, []talk.State{talk.StateStarting, talk.StateActivating, talk.StateIdle}, states)
	assert.Equal(t, "请在后台输入 123456", env.app.Talk().Chat())
	assert.Equal(t, MsgActivationCode, env.display.last())
}

func TestStartup_ActivationFailed(t *testing.T) {
	checker := &fakeChecker{results: []*ota.Result{nil}, errs: []error{errCheckFailed}}
	env := newEnv(t, newFakeDevice(16000, 24000), func(c *Config, d *Deps) {
		d.OTA = checker
		c.OTAMaxRetries = 3
		c.OTARetryInterval = time.Millisecond
	})

	err := env.app.startup(context.Background())
	assert.ErrorIs(t, err, ErrActivationFailed)
	assert.Equal(t, 3, checker.calls)
	assert.Equal(t, talk.StateError, env.app.Talk().State())
	assert.Equal(t, MsgActivationFailed, env.app.Talk().Info())
}

func TestToggle_OpensChannelBeforeListening(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))

	env.app.ToggleChatState()
	assert.Equal(t, talk.StateConnecting, env.app.Talk().State())
	env.waitState(t, talk.StateListening)

	sent := env.proto.SentMessages()
	descriptors := indexOf(sent, "iot:descriptors:")
	start := indexOf(sent, "listen:start:auto")
	require.GreaterOrEqual(t, descriptors, 0)
	require.Greater(t, start, descriptors)
	assert.Contains(t, sent[descriptors], `"name":"Speaker"`)
	assert.Equal(t, 0, env.proto.AudioCount())

	// 480-sample frames at 16 kHz; two of them make one 60 ms packet
	env.dev.push(100)
	env.dev.push(100)
	env.step()
	assert.Equal(t, 0, env.proto.AudioCount())
	env.step()
	assert.Equal(t, 1, env.proto.AudioCount())

	// listening again hangs up
	env.app.ToggleChatState()
	assert.Equal(t, talk.StateIdle, env.app.Talk().State())
	assert.False(t, env.proto.IsAudioChannelOpened())
}

func TestToggle_FailingOpenEndsIdle(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))
	env.proto.OpenResult = false

	env.app.ToggleChatState()
	env.waitState(t, talk.StateIdle)

	assert.Equal(t, 1, env.proto.OpenCalls)
	assert.Equal(t, MsgConnectFailed, env.display.last())
	assert.Empty(t, env.proto.SentMessages())
}

func TestTTS_TurnTaking(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))
	env.speak(t)

	// reply audio is decoded at the server rate, which matches the device
	env.proto.EmitAudio([]byte{0x01})
	env.step()
	assert.Equal(t, 24000/1000*60, env.dev.played())

	env.emit(t, `{"type":"tts","state":"sentence_start","text":"今天天气不错"}`)
	assert.Equal(t, "今天天气不错", env.app.Talk().Chat())

	env.emit(t, `{"type":"tts","state":"stop"}`)
	assert.Equal(t, talk.StateListening, env.app.Talk().State())
	assert.Equal(t, 2, count(env.proto.SentMessages(), "listen:start:auto"))

	// audio outside Speaking is dropped
	env.proto.EmitAudio([]byte{0x01})
	env.step()
	assert.Equal(t, 24000/1000*60, env.dev.played())
}

func TestTTS_StartFromIdle(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))

	env.app.handleMessage(&protocol.Message{Type: protocol.TypeTTS, State: protocol.TTSStart})
	assert.Equal(t, talk.StateSpeaking, env.app.Talk().State())

	// stop without a manual turn goes back to listening
	env.app.handleMessage(&protocol.Message{Type: protocol.TypeTTS, State: protocol.TTSStop})
	assert.Equal(t, talk.StateListening, env.app.Talk().State())
}

func TestAbortSpeaking_Idempotent(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))
	env.speak(t)

	env.app.ToggleChatState()
	env.app.AbortSpeaking(talk.AbortNone)
	env.app.AbortSpeaking(talk.AbortWakeWordDetected)
	assert.Equal(t, 1, count(env.proto.SentMessages(), "abort:"))
	assert.Equal(t, 0, count(env.proto.SentMessages(), "abort:wake_word_detected"))

	// the rest of the aborted reply is not played
	env.proto.EmitAudio([]byte{0x01})
	env.step()
	assert.Equal(t, 0, env.dev.played())

	// the next reply re-arms abort
	env.emit(t, `{"type":"tts","state":"start"}`)
	env.app.AbortSpeaking(talk.AbortNone)
	assert.Equal(t, 2, count(env.proto.SentMessages(), "abort:"))
}

func TestManualListening(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))

	env.app.StartListening()
	env.waitState(t, talk.StateListening)
	assert.Equal(t, 1, count(env.proto.SentMessages(), "listen:start:manual"))

	env.app.StopListening()
	assert.Equal(t, 1, count(env.proto.SentMessages(), "listen:stop"))
	assert.Equal(t, talk.StateListening, env.app.Talk().State())

	env.emit(t, `{"type":"tts","state":"start"}`)
	env.emit(t, `{"type":"tts","state":"stop"}`)
	assert.Equal(t, talk.StateIdle, env.app.Talk().State())
}

func TestChannelClosed(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))
	env.listen(t)
	env.emit(t, `{"type":"stt","text":"你好"}`)
	require.Equal(t, "你好", env.app.Talk().Chat())

	env.proto.EmitClosed()
	env.step()
	assert.Equal(t, talk.StateIdle, env.app.Talk().State())
	assert.Empty(t, env.app.Talk().Chat())
}

func TestCheckProtocol_DropsTurn(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))
	env.listen(t)

	env.proto.SetOpen(false)
	env.step()
	assert.Equal(t, talk.StateIdle, env.app.Talk().State())
	assert.Equal(t, MsgConnectionClosed, env.display.last())
}

func TestNetworkErrorIsShown(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))

	protocolHandler{env.app}.OnNetworkError(protocol.ErrHandshakeTimeout)
	env.step()
	assert.Equal(t, protocol.ErrHandshakeTimeout.Error(), env.display.last())
}

func TestInboundText(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))

	env.emit(t, `{"type":"llm","emotion":"happy"}`)
	assert.Equal(t, "happy", env.app.Talk().Emotion())

	// incomplete alerts are ignored
	env.emit(t, `{"type":"alert","status":"错误","message":"服务不可用"}`)
	assert.Empty(t, env.app.Talk().Chat())

	env.emit(t, `{"type":"alert","status":"错误","message":"服务不可用","emotion":"sad"}`)
	assert.Equal(t, "sad", env.app.Talk().Emotion())
	assert.Equal(t, "错误: 服务不可用", env.app.Talk().Chat())
}

func TestIotCommand_SetVolume(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))

	env.emit(t, `{"type":"iot","commands":[{"name":"Speaker","method":"SetVolume","parameters":{"volume":130}}]}`)
	assert.Equal(t, 100, env.dev.OutputVolume())

	// unknown things are logged and skipped
	env.emit(t, `{"type":"iot","commands":[{"name":"Lamp","method":"TurnOn"},{"name":"Speaker","method":"SetVolume","parameters":{"volume":20}}]}`)
	assert.Equal(t, 20, env.dev.OutputVolume())
}

func TestOutputAudio_ResamplesServerRate(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 16000))
	env.speak(t)

	require.Equal(t, 24000, env.app.decodeRate)
	require.NotNil(t, env.app.outputResampler)

	env.proto.EmitAudio([]byte{0x01})
	env.step()
	assert.Equal(t, 16000/1000*60, env.dev.played())

	// malformed packets are dropped
	env.proto.EmitAudio(nil)
	env.step()
	assert.Equal(t, 16000/1000*60, env.dev.played())
}

func TestKeywordBreak(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000), withBreakMode(BreakKeyword), withWake(t, nil))

	env.app.onWakeWordDetected("你好小智")
	env.waitState(t, talk.StateListening)
	sent := env.proto.SentMessages()
	detect := indexOf(sent, "listen:detect:你好小智")
	require.GreaterOrEqual(t, detect, 0)
	assert.Greater(t, indexOf(sent, "listen:start:auto"), detect)

	env.emit(t, `{"type":"tts","state":"start"}`)
	env.app.onWakeWordDetected("你好小智")
	assert.Equal(t, 1, count(env.proto.SentMessages(), "abort:wake_word_detected"))
}

func TestKeywordIgnoredInOtherModes(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000), withBreakMode(BreakVAD), withWake(t, nil))
	env.speak(t)

	env.app.onWakeWordDetected("你好小智")
	assert.Equal(t, -1, indexOf(env.proto.SentMessages(), "abort:"))
}

func TestVADBreak_MutesCapture(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000), withBreakMode(BreakVAD), withWake(t, nil))
	env.speak(t)

	// onset without enough speech behind it is not a barge-in
	env.app.onVadStateChanged(true)
	env.app.onVadStateChanged(false)
	assert.Equal(t, -1, indexOf(env.proto.SentMessages(), "abort:"))

	env.app.wake.Feed(level(12*512, 1000))
	env.app.onVadStateChanged(true)
	assert.Equal(t, 1, count(env.proto.SentMessages(), "abort:wake_word_detected"))
	assert.Equal(t, 0, env.app.freeBuffer.Count())

	env.emit(t, `{"type":"tts","state":"stop"}`)
	require.Equal(t, talk.StateListening, env.app.Talk().State())

	// capture is muted for a second after the break
	env.dev.push(100)
	env.dev.push(100)
	env.step()
	env.step()
	assert.Equal(t, 0, env.proto.AudioCount())

	env.clock.Advance(1100 * time.Millisecond)
	env.dev.push(100)
	env.dev.push(100)
	env.step()
	env.step()
	assert.Equal(t, 1, env.proto.AudioCount())
}

func TestFreeBreak_FlushesBufferedSpeech(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000), withBreakMode(BreakFree), withWake(t, nil))
	env.speak(t)

	env.app.wake.Feed(level(12*512, 1000))
	env.app.onVadStateChanged(true)
	assert.Equal(t, 1, count(env.proto.SentMessages(), "abort:wake_word_detected"))
	require.Equal(t, 12*512, env.app.freeBuffer.Count())

	// capture after the break keeps accumulating
	env.dev.push(500)
	env.step()
	require.Equal(t, 12*512+480, env.app.freeBuffer.Count())
	assert.Equal(t, 0, env.proto.AudioCount())

	// tts stop: listen start first, then the buffered speech in 960-sample frames
	env.emit(t, `{"type":"tts","state":"stop"}`)
	assert.Equal(t, talk.StateListening, env.app.Talk().State())
	assert.Equal(t, 2, count(env.proto.SentMessages(), "listen:start:auto"))
	assert.Equal(t, (12*512+480)/960, env.proto.AudioCount())
	assert.Equal(t, 0, env.app.freeBuffer.Count())
}

func TestFreeBreak_DroppedWhenTurnEnds(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000), withBreakMode(BreakFree), withWake(t, nil))
	env.app.StartListening()
	env.waitState(t, talk.StateListening)
	env.emit(t, `{"type":"tts","state":"start"}`)
	require.Equal(t, talk.StateSpeaking, env.app.Talk().State())

	env.app.wake.Feed(level(12*512, 1000))
	env.app.onVadStateChanged(true)
	require.Equal(t, 12*512, env.app.freeBuffer.Count())

	// a manual turn ends with the reply: there is no next turn to join
	env.emit(t, `{"type":"tts","state":"stop"}`)
	require.Equal(t, talk.StateIdle, env.app.Talk().State())
	assert.Equal(t, 0, env.app.freeBuffer.Count())
	assert.False(t, env.app.aborted)

	// idle capture is not held back
	env.dev.push(500)
	env.step()
	assert.Equal(t, 0, env.app.freeBuffer.Count())

	env.app.StartListening()
	env.waitState(t, talk.StateListening)
	env.dev.push(100)
	env.dev.push(100)
	env.step()
	env.step()
	assert.Equal(t, 1, env.proto.AudioCount())
}

func TestFreeBreak_BufferLimit(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000), withBreakMode(BreakFree), withWake(t, nil))
	env.speak(t)

	env.app.wake.Feed(level(12*512, 1000))
	env.app.onVadStateChanged(true)
	require.Equal(t, 12*512, env.app.freeBuffer.Count())

	// 10 s at the server rate
	limit := env.app.freeBufferLimit()
	require.Equal(t, 16000*10, limit)
	env.app.freeBuffer.Write(make([]int16, limit-12*512-100))

	env.dev.push(500)
	env.step()
	assert.Equal(t, 0, env.app.freeBuffer.Count())
	env.dev.push(500)
	env.step()
	assert.Equal(t, 0, env.app.freeBuffer.Count())

	env.emit(t, `{"type":"tts","state":"stop"}`)
	assert.Equal(t, talk.StateListening, env.app.Talk().State())
	assert.Equal(t, 0, env.proto.AudioCount())
}

func TestVADBreak_MuteEndsWithTurn(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000), withBreakMode(BreakVAD), withWake(t, nil))
	env.app.StartListening()
	env.waitState(t, talk.StateListening)
	env.emit(t, `{"type":"tts","state":"start"}`)

	env.app.wake.Feed(level(12*512, 1000))
	env.app.onVadStateChanged(true)
	require.Equal(t, 1, count(env.proto.SentMessages(), "abort:wake_word_detected"))

	env.emit(t, `{"type":"tts","state":"stop"}`)
	require.Equal(t, talk.StateIdle, env.app.Talk().State())

	// no clock advance: the next turn is not muted
	env.app.StartListening()
	env.waitState(t, talk.StateListening)
	env.dev.push(100)
	env.dev.push(100)
	env.step()
	env.step()
	assert.Equal(t, 1, env.proto.AudioCount())
}

func TestTurnBoundaries_ResetCodecs(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000), withWake(t, nil))
	require.Equal(t, 0, env.encoder.resets)
	require.Equal(t, 0, env.decoder.resets)

	env.listen(t)
	assert.Equal(t, 1, env.encoder.resets)
	assert.Equal(t, 1, env.decoder.resets)

	env.dev.push(100)
	env.dev.push(100)
	env.step()
	env.step()
	require.Equal(t, 1, env.proto.AudioCount())
	assert.Equal(t, 1, env.encoder.firstReset, "encoder reset before the first packet")

	// speech heard while listening is not a barge-in on the reply
	env.app.wake.Feed(level(12*512, 1000))
	env.emit(t, `{"type":"tts","state":"start"}`)
	require.Equal(t, talk.StateSpeaking, env.app.Talk().State())
	assert.Equal(t, 2, env.decoder.resets)
	assert.Equal(t, 1, env.encoder.resets)
	assert.Equal(t, 0, env.app.wake.ReadVadBuffer(audio.NewScratchBuffer[int16](0)))

	env.proto.EmitAudio([]byte{0x01})
	env.step()
	require.Equal(t, 1, env.decoder.decoded)
	assert.Equal(t, 2, env.decoder.firstReset, "decoder reset before the first reply packet")
}

func TestListening_EncoderResetErrorKeepsTurn(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 24000))
	env.encoder.resetErr = codec.ErrClosed

	env.listen(t)
	assert.Equal(t, 1, env.encoder.resets)
	assert.Equal(t, 1, count(env.proto.SentMessages(), "listen:start:auto"))

	env.dev.push(100)
	env.dev.push(100)
	env.step()
	env.step()
	assert.Equal(t, 1, env.proto.AudioCount())
}

func TestDance(t *testing.T) {
	clip := toneClip(16000 / 10)
	env := startEnv(t, newFakeDevice(16000, 16000), withDances(
		map[string]string{"hip": "hip.wav"},
		func(path string) (*audio.Clip, error) {
			if path != "hip.wav" {
				return nil, errCheckFailed
			}
			return clip, nil
		},
	))

	env.app.Dance("nope")
	env.step()
	assert.Equal(t, talk.StateIdle, env.app.Talk().State())
	assert.Empty(t, env.proto.SentMessages())

	// the IoT thing starts the dance
	env.emit(t, `{"type":"iot","commands":[{"name":"Dance Controller","method":"Dance","parameters":{"name":"hip"}}]}`)
	env.waitState(t, talk.StateDancing)
	assert.True(t, env.app.IsDancing())
	assert.Equal(t, talk.EmotionHappy, env.app.Talk().Emotion())

	// nothing to interrupt while the channel is closed
	sent := env.proto.SentMessages()
	assert.False(t, env.proto.IsAudioChannelOpened())
	assert.Equal(t, -1, indexOf(sent, "abort:"))
	states := indexOf(sent, "iot:states:")
	require.GreaterOrEqual(t, states, 0)
	assert.Contains(t, sent[states], `"IsDancing":true`)

	// one 60 ms fragment per two ticks
	env.step()
	env.step()
	assert.Equal(t, 960, env.dev.played())

	// the clip is 100 ms: the dance ends by itself and a turn starts
	env.waitState(t, talk.StateListening)
	assert.False(t, env.app.IsDancing())
	assert.False(t, env.app.clipReader.IsReady())
}

func TestDance_CancelledByToggle(t *testing.T) {
	env := startEnv(t, newFakeDevice(16000, 16000), withDances(
		map[string]string{"hip": "hip.wav"},
		func(string) (*audio.Clip, error) { return toneClip(16000 * 10), nil },
	))
	env.listen(t)

	env.app.Dance("hip")
	env.waitState(t, talk.StateDancing)
	assert.Equal(t, 1, count(env.proto.SentMessages(), "abort:"))

	env.app.ToggleChatState()
	assert.Equal(t, talk.StateListening, env.app.Talk().State())
	assert.Nil(t, env.app.danceCancel)
	assert.False(t, env.app.clipReader.IsReady())
}

func TestRun_StopsOnCancel(t *testing.T) {
	dev := newFakeDevice(16000, 24000)
	env := newEnv(t, dev, func(c *Config, _ *Deps) { c.TickInterval = 5 * time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return env.app.Talk().State() == talk.StateIdle && dev.processCalls() > 2
	}, 2*time.Second, 5*time.Millisecond)

	env.app.Post(func() { env.app.ToggleChatState() })
	require.Eventually(t, func() bool {
		return env.app.Talk().State() == talk.StateListening
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	dev.mu.Lock()
	assert.True(t, dev.closed)
	dev.mu.Unlock()
	env.display.mu.Lock()
	assert.True(t, env.display.closed)
	env.display.mu.Unlock()
}

func level(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}
