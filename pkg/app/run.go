package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/voice-client/pkg/audio"
	"github.com/realtime-ai/voice-client/pkg/device"
	"github.com/realtime-ai/voice-client/pkg/iot"
	"github.com/realtime-ai/voice-client/pkg/talk"
)

// Run starts every component, then runs the frame tick and the device
// worker until ctx is done. Startup failures leave the conversation in
// StateError and are returned.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.ctx = ctx
	defer a.release()

	if err := a.startup(ctx); err != nil {
		return err
	}

	a.work = make(chan struct{}, 1)
	a.workDone = make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.runWorker(gctx)
		return nil
	})
	g.Go(func() error {
		return a.loop(gctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startup brings components up in dependency order: version check, wake
// service, audio, things, protocol, display.
func (a *App) startup(ctx context.Context) error {
	a.talk.SetState(talk.StateStarting)

	if err := a.checkNewVersion(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		a.talk.SetState(talk.StateError)
		a.talk.SetInfo(MsgActivationFailed)
		return err
	}

	if a.wake != nil {
		a.wake.OnVadStateChanged(func(speaking bool) {
			a.Post(func() { a.onVadStateChanged(speaking) })
		})
		a.wake.OnWakeWordDetected(func(word string) {
			a.Post(func() { a.onWakeWordDetected(word) })
		})
		if err := a.wake.Start(ctx); err != nil {
			return err
		}
	}

	if err := a.initAudio(ctx); err != nil {
		a.talk.SetState(talk.StateError)
		if errors.Is(err, device.ErrNoInputDevice) {
			a.talk.SetInfo(MsgMicNotFound)
		}
		return err
	}

	a.things.AddThing(iot.NewSpeaker(a.dev))
	a.things.AddThing(iot.NewDanceController(a, a.danceNames()))

	a.proto.SetHandler(protocolHandler{a})
	a.proto.Start()

	if err := a.display.Start(ctx); err != nil {
		a.log.Warn("start display", zap.Error(err))
	}

	a.talk.SetState(talk.StateIdle)
	a.log.Info("voice client ready",
		zap.Stringer("break_mode", a.cfg.BreakMode),
		zap.Int("input_rate", a.dev.InputSampleRate()),
		zap.Int("output_rate", a.dev.OutputSampleRate()),
	)
	return nil
}

func (a *App) loop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	last := a.now()
	for {
		select {
		case <-ctx.Done():
			a.joinWorker(ctx)
			return ctx.Err()
		case <-ticker.C:
			now := a.now()
			a.tick(ctx, now.Sub(last))
			last = now
		}
	}
}

// tick runs one frame: posted events, worker join, channel health, capture,
// clip playback, display, device. Process is handed to the worker last so
// it overlaps the wait for the next tick.
func (a *App) tick(ctx context.Context, dt time.Duration) {
	start := time.Now()

	a.drainPosted()
	a.joinWorker(ctx)
	a.checkProtocol()
	a.inputAudio(dt)
	a.outputClip(dt)
	a.display.Update(dt)
	a.dev.Update()
	a.submitWorker()

	a.metrics.TickDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000)
}

func (a *App) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.work:
			a.dev.Process()
			a.workDone <- struct{}{}
		}
	}
}

func (a *App) submitWorker() {
	if a.work == nil {
		a.dev.Process()
		return
	}
	a.work <- struct{}{}
	a.workPending = true
}

func (a *App) joinWorker(ctx context.Context) {
	if !a.workPending {
		return
	}
	select {
	case <-a.workDone:
	case <-ctx.Done():
	}
	a.workPending = false
}

// release closes every dependency. Codec and resampler handles go last,
// after nothing can call into them.
func (a *App) release() {
	a.endTurn()
	if a.danceCancel != nil {
		a.danceCancel()
		a.danceCancel = nil
	}
	if a.danceTimer != nil {
		a.danceTimer.Stop()
	}

	if err := a.display.Close(); err != nil {
		a.log.Warn("close display", zap.Error(err))
	}
	if err := a.proto.Close(); err != nil {
		a.log.Warn("close protocol", zap.Error(err))
	}
	if a.wake != nil {
		if err := a.wake.Close(); err != nil {
			a.log.Warn("close wake service", zap.Error(err))
		}
	}
	if err := a.dev.Close(); err != nil {
		a.log.Warn("close device", zap.Error(err))
	}

	if a.encoder != nil {
		a.encoder.Close()
	}
	if a.decoder != nil {
		a.decoder.Close()
	}
	for _, r := range []*audio.Resampler{&a.inputResampler, &a.outputResampler, &a.clipResampler} {
		if *r != nil {
			(*r).Close()
			*r = nil
		}
	}
	a.log.Info("voice client stopped")
}
