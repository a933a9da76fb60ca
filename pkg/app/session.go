package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/protocol"
	"github.com/realtime-ai/voice-client/pkg/talk"
	"github.com/realtime-ai/voice-client/pkg/trace"
)

// protocolHandler moves every protocol callback onto the tick.
type protocolHandler struct {
	a *App
}

func (h protocolHandler) OnIncomingAudio(packet []byte) {
	h.a.metrics.PacketsReceived.Add(h.a.ctx, 1)
	h.a.Post(func() { h.a.outputAudio(packet) })
}

func (h protocolHandler) OnIncomingJSON(msg *protocol.Message) {
	h.a.Post(func() { h.a.handleMessage(msg) })
}

func (h protocolHandler) OnAudioChannelOpened() { h.a.Post(h.a.onChannelOpened) }
func (h protocolHandler) OnAudioChannelClosed() { h.a.Post(h.a.onChannelClosed) }

func (h protocolHandler) OnNetworkError(err error) {
	h.a.Post(func() {
		h.a.log.Warn("network error", zap.Error(err))
		h.a.notify(err.Error())
	})
}

// openAudioChannel runs then once the channel is open. Opening happens off
// the tick in Connecting; a failure falls back to Idle with a notification
// and then never runs. Calls made while an open is in flight are dropped.
func (a *App) openAudioChannel(then func()) {
	if a.proto.IsAudioChannelOpened() {
		then()
		return
	}
	if a.opening {
		return
	}
	a.opening = true
	a.talk.SetState(talk.StateConnecting)

	ctx := a.ctx
	go func() {
		spanCtx, span := trace.InstrumentOpenChannel(ctx, a.cfg.ProtocolURL)
		ok := a.proto.OpenAudioChannel(spanCtx)
		if !ok {
			trace.RecordError(span, protocol.ErrNotConnected)
		}
		span.End()

		a.Post(func() {
			a.opening = false
			a.metrics.RecordChannelOpen(ctx, ok)
			if !ok {
				a.talk.SetState(talk.StateIdle)
				a.notify(MsgConnectFailed)
				return
			}
			then()
		})
	}()
}

func (a *App) onChannelOpened() {
	rate := a.proto.ServerSampleRate()
	if rate != a.dev.OutputSampleRate() {
		a.log.Info("server sample rate differs from device output, resampling",
			zap.Int("server", rate), zap.Int("device", a.dev.OutputSampleRate()))
	}
	a.setDecodeSampleRate(rate)

	descriptors, err := a.things.DescriptorsJSON()
	if err != nil {
		a.log.Error("iot descriptors", zap.Error(err))
		return
	}
	if err := a.proto.SendIotDescriptors(descriptors); err != nil {
		a.log.Warn("send iot descriptors", zap.Error(err))
	}
	a.updateIotStates()
}

func (a *App) onChannelClosed() {
	switch a.talk.State() {
	case talk.StateSpeaking, talk.StateListening:
		a.talk.SetChat("")
		a.talk.SetState(talk.StateIdle)
	}
}

// checkProtocol drops an active turn whose channel went away.
func (a *App) checkProtocol() {
	switch a.talk.State() {
	case talk.StateListening, talk.StateSpeaking:
		if !a.proto.IsAudioChannelOpened() {
			a.talk.SetState(talk.StateIdle)
			a.notify(MsgConnectionClosed)
		}
	}
}

// updateIotStates sends the thing states that changed since the last call.
func (a *App) updateIotStates() {
	states, changed, err := a.things.StatesJSON(true)
	if err != nil {
		a.log.Error("iot states", zap.Error(err))
		return
	}
	if !changed {
		return
	}
	if err := a.proto.SendIotStates(states); err != nil {
		a.log.Warn("send iot states", zap.Error(err))
	}
}

func (a *App) setListeningMode(mode talk.ListeningMode) {
	a.listeningMode = mode
	a.talk.SetState(talk.StateListening)
}

// ToggleChatState is the single push-to-talk button: Idle starts an
// AutoStop turn, Speaking interrupts the reply, Listening hangs up and
// Dancing stops the dance.
func (a *App) ToggleChatState() {
	switch a.talk.State() {
	case talk.StateIdle:
		a.openAudioChannel(func() { a.setListeningMode(talk.AutoStop) })
	case talk.StateSpeaking:
		a.AbortSpeaking(talk.AbortNone)
	case talk.StateListening:
		a.proto.CloseAudioChannel()
		a.talk.SetState(talk.StateIdle)
	case talk.StateDancing:
		a.CancelDance()
	}
}

// StartListening starts a ManualStop turn, interrupting a reply in progress.
func (a *App) StartListening() {
	switch a.talk.State() {
	case talk.StateIdle:
		a.openAudioChannel(func() { a.setListeningMode(talk.ManualStop) })
	case talk.StateSpeaking:
		a.AbortSpeaking(talk.AbortNone)
		a.setListeningMode(talk.ManualStop)
	}
}

// StopListening ends a ManualStop turn. The state stays Listening until the
// server answers with tts start.
func (a *App) StopListening() {
	if a.talk.State() != talk.StateListening {
		return
	}
	if err := a.proto.SendStopListening(); err != nil {
		a.log.Warn("send listen stop", zap.Error(err))
	}
}

// AbortSpeaking asks the server to stop the reply. Only the first call per
// reply sends anything; tts start re-arms it.
func (a *App) AbortSpeaking(reason talk.AbortReason) {
	if a.aborted {
		return
	}
	a.aborted = true

	ctx, span := trace.InstrumentAbort(a.ctx, a.proto.SessionID(), reason.String(), a.cfg.BreakMode.String())
	defer span.End()
	a.log.Info("abort speaking", append(trace.LogFields(ctx), zap.String("reason", reason.String()))...)
	a.metrics.RecordAbort(ctx, reason.String())
	if err := a.proto.SendAbortSpeaking(reason); err != nil {
		trace.RecordError(span, err)
		a.log.Warn("send abort", zap.Error(err))
	}
}

// onStateUpdate runs the entry actions of each state, synchronously, before
// any audio of the new state is produced or consumed.
func (a *App) onStateUpdate(state talk.State) {
	a.log.Info("talk state", zap.Stringer("state", state))
	a.metrics.RecordState(a.ctx, state.String())

	switch state {
	case talk.StateListening:
		a.updateIotStates()
		if err := a.proto.SendStartListening(a.listeningMode); err != nil {
			a.log.Warn("send listen start", zap.Error(err))
		}
		a.resetDecoder()
		if a.encoder != nil {
			if err := a.encoder.ResetState(); err != nil {
				a.log.Warn("reset encoder", zap.Error(err))
			}
		}
		a.startTurn()
	case talk.StateSpeaking:
		a.resetDecoder()
		if a.wake != nil && a.wake.IsRunning() {
			a.wake.ClearVadBuffer()
		}
	case talk.StateIdle, talk.StateError:
		// 回合结束，丢弃未发送的打断语音
		a.freeBuffer.Clear()
		a.aborted = false
		a.vadSilenceUntil = time.Time{}
		a.endTurn()
	}
}

func (a *App) resetDecoder() {
	if a.decoder == nil {
		return
	}
	if err := a.decoder.ResetState(); err != nil {
		a.log.Warn("reset decoder", zap.Error(err))
	}
}

func (a *App) startTurn() {
	a.endTurn()
	ctx, span := trace.InstrumentTurn(a.ctx, a.proto.SessionID(), a.listeningMode.String(),
		trace.AudioAttrs(a.cfg.ServerInputSampleRate, a.dev.InputChannels(), a.cfg.FrameDurationMs)...)
	a.turnSpan = span
	a.log.Debug("turn started", append(trace.LogFields(ctx), zap.String("mode", a.listeningMode.String()))...)
}

func (a *App) endTurn() {
	if a.turnSpan != nil {
		a.turnSpan.End()
		a.turnSpan = nil
	}
}

// handleMessage applies one inbound JSON message.
func (a *App) handleMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeTTS:
		a.handleTTS(msg)
	case protocol.TypeSTT:
		if msg.Text != "" {
			a.talk.SetChat(msg.Text)
		}
	case protocol.TypeLLM:
		if msg.Emotion != "" {
			a.talk.SetEmotion(msg.Emotion)
		}
	case protocol.TypeIoT:
		for _, cmd := range msg.Commands {
			if err := a.things.Invoke(cmd); err != nil {
				a.log.Warn("iot command", zap.ByteString("command", cmd), zap.Error(err))
			}
		}
	case protocol.TypeAlert:
		if msg.Status != "" && msg.Message != "" && msg.Emotion != "" {
			a.talk.SetEmotion(msg.Emotion)
			a.talk.SetChat(msg.Status + ": " + msg.Message)
		}
	}
}

func (a *App) handleTTS(msg *protocol.Message) {
	switch msg.State {
	case protocol.TTSStart:
		a.aborted = false
		switch a.talk.State() {
		case talk.StateIdle, talk.StateListening:
			a.talk.SetState(talk.StateSpeaking)
		}
	case protocol.TTSStop:
		if a.talk.State() != talk.StateSpeaking {
			return
		}
		if a.listeningMode == talk.ManualStop {
			a.talk.SetState(talk.StateIdle)
			return
		}
		a.talk.SetState(talk.StateListening)
		// 打断时缓存的语音作为下一轮的开头发送
		if a.aborted && a.freeBuffer.Count() > 0 {
			a.sendFreeBuffer()
			a.freeBuffer.Clear()
		}
	case protocol.TTSSentenceStart:
		if msg.Text != "" {
			a.talk.SetChat(msg.Text)
		}
	}
}
