package app

import (
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/talk"
)

// onVadStateChanged handles a voice edge. Voice onset while Speaking is a
// barge-in in the VAD and Free break modes; speech too short to count is
// ignored.
func (a *App) onVadStateChanged(speaking bool) {
	if a.voiceDetected == speaking {
		return
	}
	a.voiceDetected = speaking
	if !speaking || a.talk.State() != talk.StateSpeaking || a.wake == nil {
		return
	}

	switch a.cfg.BreakMode {
	case BreakVAD:
		n := a.wake.ReadVadBuffer(a.vadBuffer)
		a.vadBuffer.Clear()
		if n == 0 {
			return
		}
		a.log.Info("break by vad", zap.Int("samples", n))
		a.vadSilenceUntil = a.now().Add(vadAbortSilence)
		a.AbortSpeaking(talk.AbortWakeWordDetected)
	case BreakFree:
		n := a.wake.ReadVadBuffer(a.freeBuffer)
		if n == 0 {
			return
		}
		a.freeBuffer.SetCount(n)
		a.log.Info("break by free", zap.Int("samples", n))
		a.AbortSpeaking(talk.AbortWakeWordDetected)
	}
}

// onWakeWordDetected starts a turn from Idle, interrupts a reply in the
// keyword break mode, and stops a dance.
func (a *App) onWakeWordDetected(word string) {
	a.metrics.WakeWords.Add(a.ctx, 1)

	switch a.talk.State() {
	case talk.StateIdle:
		a.openAudioChannel(func() {
			if err := a.proto.SendWakeWordDetected(word); err != nil {
				a.log.Warn("send wake word", zap.Error(err))
			}
			a.setListeningMode(talk.AutoStop)
		})
	case talk.StateSpeaking:
		if a.cfg.BreakMode == BreakKeyword {
			a.log.Info("break by keyword", zap.String("keyword", word))
			a.AbortSpeaking(talk.AbortWakeWordDetected)
		}
	case talk.StateDancing:
		a.CancelDance()
	}
}
