package app

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/audio"
	"github.com/realtime-ai/voice-client/pkg/talk"
	"github.com/realtime-ai/voice-client/pkg/trace"
)

func (a *App) danceNames() []string {
	names := make([]string, 0, len(a.cfg.Dances))
	for name := range a.cfg.Dances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsDancing reports whether a dance clip is playing.
func (a *App) IsDancing() bool {
	return a.talk.State() == talk.StateDancing
}

// Dance plays the named dance clip. A reply in progress is aborted silently
// and the clip is loaded off the tick; the dance ends by itself after the clip or
// on CancelDance. Unknown names are ignored.
func (a *App) Dance(name string) {
	if a.talk.State() == talk.StateDancing {
		return
	}
	path, ok := a.cfg.Dances[name]
	if !ok {
		a.log.Warn("unknown dance", zap.String("name", name))
		return
	}

	a.CancelDance()
	ctx, cancel := context.WithCancel(a.ctx)
	a.danceCancel = cancel
	// 通道未打开时没有回复可打断
	if a.talk.State() == talk.StateSpeaking || a.proto.IsAudioChannelOpened() {
		a.AbortSpeaking(talk.AbortNone)
	}

	go func() {
		clip, err := a.loadDanceClip(path)
		a.Post(func() { a.startDance(ctx, name, clip, err) })
	}()
}

// loadDanceClip decodes the clip and brings it to the 16 kHz clip rate.
func (a *App) loadDanceClip(path string) (*audio.Clip, error) {
	clip, err := a.loadClip(path)
	if err != nil || clip.SampleRate == clipSampleRate {
		return clip, err
	}
	r, err := a.newResampler(clip.SampleRate, clipSampleRate)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	samples, err := r.Process(clip.Samples)
	if err != nil {
		return nil, err
	}
	// samples alias the resampler's buffer
	return &audio.Clip{Name: clip.Name, Samples: append([]int16(nil), samples...), SampleRate: clipSampleRate}, nil
}

func (a *App) startDance(ctx context.Context, name string, clip *audio.Clip, err error) {
	if ctx.Err() != nil {
		// cancelled while loading
		return
	}
	if err != nil {
		a.log.Error("load dance", zap.String("name", name), zap.Error(err))
		a.danceCancel()
		a.danceCancel = nil
		return
	}

	a.clipReader.Setup(clip, clipFrameMs*clipSampleRate/1000)
	a.clipReadTime = 0
	a.talk.SetState(talk.StateDancing)
	a.updateIotStates()

	_, a.danceSpan = trace.InstrumentDance(ctx, name)
	a.log.Info("dance", zap.String("name", name), zap.Duration("duration", clip.Duration()))

	a.danceTimer = time.AfterFunc(clip.Duration(), func() {
		a.Post(func() {
			if ctx.Err() == nil {
				a.CancelDance()
			}
		})
	})
}

// CancelDance stops the dance, if any, and returns to an AutoStop turn,
// reopening the channel when needed.
func (a *App) CancelDance() {
	if a.danceCancel == nil {
		return
	}
	a.danceCancel()
	a.danceCancel = nil
	if a.danceTimer != nil {
		a.danceTimer.Stop()
		a.danceTimer = nil
	}
	if a.danceSpan != nil {
		a.danceSpan.End()
		a.danceSpan = nil
	}
	a.clipReader.Clear()

	a.openAudioChannel(func() {
		if a.talk.State() != talk.StateListening {
			a.setListeningMode(talk.AutoStop)
			return
		}
		a.updateIotStates()
	})
}
