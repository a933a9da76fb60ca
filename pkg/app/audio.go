package app

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/audio"
	"github.com/realtime-ai/voice-client/pkg/codec"
	"github.com/realtime-ai/voice-client/pkg/device"
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
	"github.com/realtime-ai/voice-client/pkg/talk"
)

// initAudio creates the codec pair and resamplers, then starts the device.
// The decoder starts at the device output rate until the server hello says
// otherwise.
func (a *App) initAudio(ctx context.Context) error {
	frameMs := a.cfg.FrameDurationMs

	enc, err := a.newEncoder(codec.Config{SampleRate: a.cfg.ServerInputSampleRate, Channels: 1, FrameDurationMs: frameMs})
	if err != nil {
		return verrors.Wrap(verrors.KindCodec, "app.init_audio", "create encoder", err)
	}
	a.encoder = enc

	a.decodeRate = a.dev.OutputSampleRate()
	dec, err := a.newDecoder(codec.Config{SampleRate: a.decodeRate, Channels: 1, FrameDurationMs: frameMs})
	if err != nil {
		return verrors.Wrap(verrors.KindCodec, "app.init_audio", "create decoder", err)
	}
	a.decoder = dec

	if err := a.configureResampler(&a.inputResampler, a.dev.InputSampleRate(), a.cfg.ServerInputSampleRate); err != nil {
		return err
	}
	if err := a.configureResampler(&a.clipResampler, clipSampleRate, a.dev.OutputSampleRate()); err != nil {
		return err
	}
	a.inputFrame = make([]int16, a.dev.InputFrameSize())

	if err := a.dev.Start(ctx); err != nil {
		return err
	}
	if _, ok := a.dev.GetInputDevice(); !ok {
		return device.ErrNoInputDevice
	}
	return nil
}

// configureResampler points *r at inRate → outRate, creating it on first
// use. Equal rates need no resampler and leave *r untouched.
func (a *App) configureResampler(r *audio.Resampler, inRate, outRate int) error {
	if inRate == outRate {
		return nil
	}
	if *r == nil {
		res, err := a.newResampler(inRate, outRate)
		if err != nil {
			return verrors.Wrap(verrors.KindConfig, "app.resampler", "create resampler", err)
		}
		*r = res
		return nil
	}
	return (*r).Configure(inRate, outRate)
}

// frames returns how many 30 ms capture frames dt covers, rounded up.
func frames(dt time.Duration) int {
	return int(math.Ceil(float64(dt) / float64(device.InputFrameSizeMs*time.Millisecond)))
}

// inputAudio drains the capture frames that arrived during dt. Each frame
// is resampled to the server rate, then encoded and sent while Listening
// and fed to the wake service. After a barge-in the frames are muted for a
// moment (VAD) or appended to the free buffer (Free) instead.
func (a *App) inputAudio(dt time.Duration) {
	n := frames(dt)
	for i := 0; i < n; i++ {
		if !a.dev.InputData(a.inputFrame) {
			break
		}
		if a.aborted && a.now().Before(a.vadSilenceUntil) {
			continue
		}

		data := a.inputFrame
		if a.inputResampler != nil && a.dev.InputSampleRate() != a.cfg.ServerInputSampleRate {
			out, err := a.inputResampler.Process(data)
			if err != nil {
				a.logError("resample input", err)
				continue
			}
			data = out
		}

		if a.aborted && a.freeBuffer.Count() > 0 {
			if a.freeBuffer.Count()+len(data) <= a.freeBufferLimit() {
				a.freeBuffer.Write(data)
				continue
			}
			a.log.Warn("free buffer full, dropping barge-in speech", zap.Int("samples", a.freeBuffer.Count()))
			a.freeBuffer.Clear()
		}

		if a.talk.State() == talk.StateListening {
			a.encode(data)
		}
		if a.wake != nil && a.wake.IsRunning() {
			a.wake.Feed(data)
		}
	}
}

func (a *App) encode(pcm []int16) {
	err := a.encoder.Encode(pcm, func(packet []byte) {
		if err := a.proto.SendAudio(packet); err != nil {
			a.logError("send audio", err)
			return
		}
		a.metrics.PacketsSent.Add(a.ctx, 1)
	})
	if err != nil {
		a.logError("encode audio", err)
	}
}

func (a *App) freeBufferLimit() int {
	return a.cfg.ServerInputSampleRate * a.dev.InputChannels() * int(maxFreeBuffer/time.Millisecond) / 1000
}

// sendFreeBuffer re-chunks buffered barge-in speech into server frames.
func (a *App) sendFreeBuffer() {
	data := a.freeBuffer.Read()
	frameSize := a.cfg.ServerInputSampleRate / 1000 * a.cfg.FrameDurationMs * a.dev.InputChannels()
	a.log.Debug("send free buffer", zap.Int("samples", len(data)))
	for i := 0; i < len(data); i += frameSize {
		a.encode(data[i:min(i+frameSize, len(data))])
	}
}

// outputAudio plays one packet of the reply. Packets are dropped unless
// Speaking, and after an abort until the next tts start.
func (a *App) outputAudio(packet []byte) {
	if a.talk.State() != talk.StateSpeaking || a.aborted {
		return
	}
	pcm, err := a.decoder.Decode(packet)
	if err != nil {
		a.metrics.DecodeErrors.Add(a.ctx, 1)
		a.logError("decode audio", err)
		return
	}
	if a.decodeRate != a.dev.OutputSampleRate() && a.outputResampler != nil {
		if pcm, err = a.outputResampler.Process(pcm); err != nil {
			a.logError("resample output", err)
			return
		}
	}
	a.dev.OutputData(pcm)
}

// setDecodeSampleRate switches the decoder to the server's rate. The
// decoder is recreated only when the rate changes.
func (a *App) setDecodeSampleRate(rate int) {
	if rate != a.decodeRate {
		dec, err := a.newDecoder(codec.Config{SampleRate: rate, Channels: 1, FrameDurationMs: a.cfg.FrameDurationMs})
		if err != nil {
			a.log.Error("create decoder", zap.Int("sample_rate", rate), zap.Error(err))
			return
		}
		if a.decoder != nil {
			a.decoder.Close()
		}
		a.decoder = dec
		a.decodeRate = rate
	}

	out := a.dev.OutputSampleRate()
	if a.decodeRate != out {
		a.log.Info("resampling reply audio", zap.Int("from", a.decodeRate), zap.Int("to", out))
		if err := a.configureResampler(&a.outputResampler, a.decodeRate, out); err != nil {
			a.log.Error("configure output resampler", zap.Error(err))
		}
	}
	if err := a.configureResampler(&a.clipResampler, clipSampleRate, out); err != nil {
		a.log.Error("configure clip resampler", zap.Error(err))
	}
}

// outputClip plays the dance clip one fragment per 60 ms of tick time,
// keeping at most two fragments queued in the player.
func (a *App) outputClip(dt time.Duration) {
	a.clipReadTime += int(math.Ceil(float64(dt) / float64(time.Millisecond)))
	if a.clipReadTime < clipFrameMs {
		return
	}
	a.clipReadTime -= clipFrameMs

	if !a.clipReader.IsReady() || a.dev.GetOutputLeftBuffer() > a.clipReader.Fragment()*2 {
		return
	}
	data, ok := a.clipReader.Read()
	if !ok {
		return
	}
	if a.clipResampler != nil && a.dev.OutputSampleRate() != clipSampleRate {
		out, err := a.clipResampler.Process(data)
		if err != nil {
			a.logError("resample clip", err)
			return
		}
		data = out
	}
	a.dev.OutputData(data)
}
