// Command voice-client runs the full-duplex voice conversation client
// against a websocket voice server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/aec"
	"github.com/realtime-ai/voice-client/pkg/app"
	"github.com/realtime-ai/voice-client/pkg/audio"
	"github.com/realtime-ai/voice-client/pkg/config"
	"github.com/realtime-ai/voice-client/pkg/device"
	"github.com/realtime-ai/voice-client/pkg/display"
	"github.com/realtime-ai/voice-client/pkg/logger"
	"github.com/realtime-ai/voice-client/pkg/metrics"
	"github.com/realtime-ai/voice-client/pkg/ota"
	"github.com/realtime-ai/voice-client/pkg/protocol"
	"github.com/realtime-ai/voice-client/pkg/trace"
	"github.com/realtime-ai/voice-client/pkg/vad"
	"github.com/realtime-ai/voice-client/pkg/wake"
)

const (
	serviceName    = "voice-client"
	shutdownBudget = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, "voice-client:", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := trace.Setup(ctx, cfg.Trace, trace.Identity{
		ServiceName:    serviceName,
		ServiceVersion: cfg.OTA.Version,
		DeviceID:       cfg.Protocol.DeviceID,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	provider, err := metrics.InitProvider(ctx, metrics.ProviderConfig{
		ServiceName:    serviceName,
		ServiceVersion: cfg.OTA.Version,
		Addr:           cfg.Metrics.Addr,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	met, err := metrics.New(provider.MeterProvider)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown metrics", zap.Error(err))
		}
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown tracing", zap.Error(err))
		}
	}()

	dev, err := newDevice(cfg, log)
	if err != nil {
		return err
	}
	if err := met.ObserveDevice(dev.Underruns, dev.DroppedSamples); err != nil {
		log.Warn("observe device", zap.Error(err))
	}

	breakMode, err := app.ParseBreakMode(cfg.Wake.BreakMode)
	if err != nil {
		return err
	}

	var wakeSvc *wake.Service
	if cfg.Wake.Enabled {
		if wakeSvc, err = newWakeService(cfg, log); err != nil {
			return err
		}
	}

	var checker ota.Checker
	if cfg.OTA.URL != "" {
		checker = ota.NewClient(ota.Config{
			URL:       cfg.OTA.URL,
			DeviceID:  cfg.Protocol.DeviceID,
			ClientID:  cfg.Protocol.ClientID,
			BoardName: cfg.OTA.BoardName,
			Version:   cfg.OTA.Version,
			Logger:    log,
		})
	}

	proto := protocol.NewWebSocket(protocol.WebSocketConfig{
		URL:             cfg.Protocol.URL,
		AccessToken:     cfg.Protocol.AccessToken,
		DeviceID:        cfg.Protocol.DeviceID,
		ClientID:        cfg.Protocol.ClientID,
		FrameDurationMs: cfg.Audio.FrameDurationMs,
		HelloTimeout:    cfg.Protocol.HandshakeTimeout,
		ChannelTimeout:  cfg.Protocol.ChannelTimeout,
		Logger:          log,
	})

	bus := evbus.New()
	var disp display.Display = display.Nop{}
	if cfg.Display.Kind == "console" {
		disp = display.NewConsole(os.Stdout, bus, log)
	}

	dances := make(map[string]string, len(cfg.Dances))
	for _, d := range cfg.Dances {
		dances[d.Name] = d.Path
	}

	deps := app.Deps{
		Device:   dev,
		Protocol: proto,
		Wake:     wakeSvc,
		OTA:      checker,
		Display:  disp,
		Metrics:  met,
		Bus:      bus,
	}
	if cfg.Audio.Resampler == "linear" {
		deps.NewResampler = func(in, out int) (audio.Resampler, error) {
			return audio.NewLinearResampler(in, out)
		}
	}

	a, err := app.New(app.Config{
		ServerInputSampleRate: cfg.Audio.ServerInputSampleRate,
		FrameDurationMs:       cfg.Audio.FrameDurationMs,
		BreakMode:             breakMode,
		TickInterval:          cfg.TickInterval,
		Dances:                dances,
		OTAMaxRetries:         cfg.OTA.MaxRetries,
		OTARetryInterval:      cfg.OTA.RetryInterval,
		ProtocolURL:           cfg.Protocol.URL,
		OTAURL:                cfg.OTA.URL,
		Logger:                log,
	}, deps)
	if err != nil {
		return err
	}

	log.Info("starting voice client",
		zap.String("url", cfg.Protocol.URL),
		zap.String("device_id", cfg.Protocol.DeviceID),
		zap.String("backend", cfg.Audio.Backend),
	)
	return a.Run(ctx)
}

func newDevice(cfg *config.Config, log *zap.Logger) (*device.Duplex, error) {
	var backend device.Backend
	switch cfg.Audio.Backend {
	case "manual":
		backend = device.NewManualBackend()
	default:
		b, err := device.NewMalgoBackend(log)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	ns, err := aec.ParseNoiseSuppressionLevel(cfg.Audio.NoiseSuppression)
	if err != nil {
		return nil, err
	}
	opts := aec.DefaultOptions()
	opts.NoiseSuppression = ns

	return device.NewDuplex(device.Config{
		InputSampleRate:  cfg.Audio.InputSampleRate,
		InputChannels:    cfg.Audio.InputChannels,
		OutputSampleRate: cfg.Audio.OutputSampleRate,
		OutputChannels:   cfg.Audio.OutputChannels,
		Volume:           cfg.Audio.Volume,
		EchoCancellation: cfg.Audio.EchoCancellation,
		AEC:              opts,
		Logger:           log,
	}, backend)
}

// newWakeService builds the VAD detector and, when a keyword model is
// configured, the keyword spotter. Both run on server-rate audio.
func newWakeService(cfg *config.Config, log *zap.Logger) (*wake.Service, error) {
	w := cfg.Wake
	rate := cfg.Audio.ServerInputSampleRate

	engine, err := vad.ParseEngine(w.VADEngine)
	if err != nil {
		return nil, err
	}
	if engine != vad.EngineEnergy && w.ONNXRuntimePath != "" {
		if err := vad.InitRuntime(w.ONNXRuntimePath); err != nil {
			return nil, err
		}
	}
	detector, err := vad.NewEngine(engine, vad.DetectorConfig{
		ModelPath:            w.VADModelPath,
		SampleRate:           rate,
		Threshold:            w.VADThreshold,
		MinSilenceDurationMs: w.MinSilenceMs,
		Logger:               log,
	})
	if err != nil {
		return nil, err
	}

	var spotter wake.KeywordSpotter
	if w.Keywords.Encoder != "" {
		kws := w.Keywords
		kws.SampleRate = rate
		if spotter, err = wake.NewSherpaSpotter(kws); err != nil {
			return nil, err
		}
	}

	wcfg := wake.DefaultConfig(rate)
	wcfg.Segmenter.Threshold = w.VADThreshold
	wcfg.Segmenter.MinSpeechDuration = float64(w.MinSpeechMs) / 1000
	wcfg.Segmenter.MinSilenceDuration = float64(w.MinSilenceMs) / 1000
	wcfg.TrimThreshold = w.TrimThreshold
	wcfg.Logger = log
	return wake.New(wcfg, detector, spotter)
}
