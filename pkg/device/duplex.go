package device

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/aec"
	"github.com/realtime-ai/voice-client/pkg/audio"
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
	"github.com/realtime-ai/voice-client/pkg/logger"
)

// 播放暂停标志
const (
	PauseEnabled  int32 = 1 << iota // output disabled by the caller
	PauseOverflow                   // playback caught up with the writer
)

const errorLogInterval = time.Second

// Config configures a Duplex.
type Config struct {
	InputSampleRate  int
	InputChannels    int
	OutputSampleRate int
	OutputChannels   int
	// PeriodMs is the backend callback period.
	PeriodMs int
	Volume   int

	// EchoCancellation enables the aec stage in Process.
	EchoCancellation bool
	AEC              aec.Options

	Logger *zap.Logger
}

// Duplex is a Device over a Backend.
//
// Buffers and their single writer / single reader:
//
//	recorder   loop buffer   capture callback → worker (Process)
//	input      RingBuffer    worker → tick (InputData), Bounded: overflow drops the chunk
//	player     loop buffer   tick (OutputData) → playback callback, overwrite on lap
//	reference  loop buffer   playback callback → worker (AEC reverse) and spectrum tap
//
// The playback callback clears what it consumes, so the player holds silence
// everywhere outside [playPos, writePos).
type Duplex struct {
	cfg     Config
	backend Backend
	log     *zap.Logger

	inFrame  int // samples per 10ms input chunk
	outFrame int // samples per 10ms output chunk

	recorder []int16
	recPos   atomic.Int64
	apsPos   int

	input *audio.RingBuffer[int16]

	player    []int16
	reference []int16
	playPos   atomic.Int64
	writePos  atomic.Int64
	pause     atomic.Int32

	volume       atomic.Int32
	inputEnabled atomic.Bool
	started      atomic.Bool
	underruns    atomic.Uint64
	dropped      atomic.Uint64

	aec        *aec.Processor
	captureBuf *audio.ScratchBuffer[int16]
	reverseBuf *audio.ScratchBuffer[int16]
	lastErrLog time.Time

	analyzer        *audio.SpectrumAnalyzer
	window          []int16
	windowF         []float32
	lastInputPos    int
	lastOutputPos   int
	inputDevice     InputDevice
	haveInputDevice bool
}

var _ Device = (*Duplex)(nil)

// NewDuplex allocates every buffer up front. The backend is not started
// until Start.
func NewDuplex(cfg Config, backend Backend) (*Duplex, error) {
	if cfg.InputSampleRate <= 0 || cfg.OutputSampleRate <= 0 {
		return nil, verrors.New(verrors.KindConfig, "device.new", fmt.Sprintf("invalid sample rates %d/%d", cfg.InputSampleRate, cfg.OutputSampleRate))
	}
	if cfg.InputChannels <= 0 {
		cfg.InputChannels = 1
	}
	if cfg.OutputChannels <= 0 {
		cfg.OutputChannels = 1
	}
	if cfg.PeriodMs <= 0 {
		cfg.PeriodMs = 20
	}

	d := &Duplex{
		cfg:        cfg,
		backend:    backend,
		log:        logger.Or(cfg.Logger, "device"),
		inFrame:    cfg.InputSampleRate / 100 * cfg.InputChannels,
		outFrame:   cfg.OutputSampleRate / 100 * cfg.OutputChannels,
		recorder:   make([]int16, cfg.InputSampleRate*cfg.InputChannels*RecorderBufferSec),
		input:      audio.NewRingBuffer[int16](cfg.InputSampleRate*cfg.InputChannels*InputBufferSec, audio.Bounded),
		player:     make([]int16, cfg.OutputSampleRate*cfg.OutputChannels*PlayerBufferSec),
		reference:  make([]int16, cfg.OutputSampleRate*cfg.OutputChannels*PlayerBufferSec),
		captureBuf: audio.NewScratchBuffer[int16](cfg.InputSampleRate / 10),
		reverseBuf: audio.NewScratchBuffer[int16](cfg.OutputSampleRate / 10),
		analyzer:   audio.NewSpectrumAnalyzer(SpectrumWindowSize),
		window:     make([]int16, SpectrumWindowSize),
		windowF:    make([]float32, SpectrumWindowSize),
	}
	d.lastInputPos, d.lastOutputPos = -1, -1

	volume := cfg.Volume
	if volume <= 0 {
		volume = DefaultVolume
	}
	d.volume.Store(int32(min(volume, 100)))
	// 播放器初始处于 Overflow 暂停状态，直到第一次写入
	d.pause.Store(PauseOverflow)

	if cfg.EchoCancellation {
		p, err := aec.New(
			aec.StreamConfig{SampleRate: cfg.InputSampleRate, Channels: cfg.InputChannels},
			aec.StreamConfig{SampleRate: cfg.OutputSampleRate, Channels: cfg.OutputChannels},
			cfg.AEC,
		)
		if err != nil {
			return nil, err
		}
		d.aec = p
	}
	return d, nil
}

// Start selects the input device and starts the backend with both
// directions enabled.
func (d *Duplex) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.started.Load() {
		return nil
	}

	input, ok := d.GetInputDevice()
	if !ok {
		return ErrNoInputDevice
	}

	format := Format{
		InputSampleRate:  d.cfg.InputSampleRate,
		InputChannels:    d.cfg.InputChannels,
		OutputSampleRate: d.cfg.OutputSampleRate,
		OutputChannels:   d.cfg.OutputChannels,
		PeriodMs:         d.cfg.PeriodMs,
	}
	if err := d.backend.Start(format, input, d.onCapture, d.onPlayback); err != nil {
		return verrors.Wrap(verrors.KindIO, "device.start", "start backend", err)
	}

	d.inputEnabled.Store(true)
	d.pause.And(^PauseEnabled)
	d.started.Store(true)
	d.log.Info("audio device started",
		zap.String("input", input.Name),
		zap.Int("inputRate", d.cfg.InputSampleRate),
		zap.Int("outputRate", d.cfg.OutputSampleRate),
		zap.Bool("aec", d.aec != nil))
	return nil
}

// Close stops the backend and releases the echo canceller.
func (d *Duplex) Close() error {
	d.started.Store(false)
	err := d.backend.Close()
	if d.aec != nil {
		d.aec.Close()
	}
	return err
}

// ---------------------------------------------------------------- callbacks

func (d *Duplex) onCapture(samples []int16) {
	if !d.inputEnabled.Load() {
		return
	}
	pos := int(d.recPos.Load())
	writeLoop(d.recorder, pos, samples)
	d.recPos.Store(int64(audio.Repeat(pos+len(samples), len(d.recorder))))
}

func (d *Duplex) onPlayback(out []int16) {
	if d.pause.Load() != 0 {
		clear(out)
		return
	}

	n := len(out)
	play := int(d.playPos.Load())
	avail := audio.Repeat(int(d.writePos.Load())-play, len(d.player))
	take := min(avail, n)

	readLoop(d.player, play, out[:take])
	clearLoop(d.player, play, take)
	clear(out[take:])
	audio.ApplyVolume(out, int(d.volume.Load()))

	writeLoop(d.reference, play, out)
	d.playPos.Store(int64(audio.Repeat(play+n, len(d.player))))
}

// ---------------------------------------------------------------- tick side

// Update detects a playback underrun: once the player has run past the
// writer it is paused and the writer resynchronised to the play position.
func (d *Duplex) Update() {
	d.detectIfPlayToEnd()
}

func (d *Duplex) detectIfPlayToEnd() {
	if d.pause.Load() != 0 {
		return
	}
	play := int(d.playPos.Load())
	write := int(d.writePos.Load())
	if play >= write && play-write <= len(d.player)/2 {
		// 区域已被播放回调清零，只需暂停并同步写指针
		d.pause.Or(PauseOverflow)
		d.writePos.Store(d.playPos.Load())
		d.underruns.Add(1)
	}
}

// OutputData appends playback samples. The player is an overwrite buffer:
// a write that does not fit keeps only its newest len(player)-1 samples, so
// the writer never lands back on the play position.
func (d *Duplex) OutputData(src []int16) {
	if d.pause.Load()&PauseEnabled != 0 || len(src) == 0 {
		return
	}
	d.detectIfPlayToEnd()

	if len(src) >= len(d.player) {
		src = src[len(src)-len(d.player)+1:]
	}
	write := int(d.writePos.Load())
	writeLoop(d.player, write, src)
	d.writePos.Store(int64(audio.Repeat(write+len(src), len(d.player))))
	d.pause.And(^PauseOverflow)
}

// GetOutputLeftBuffer returns the samples written but not yet played.
func (d *Duplex) GetOutputLeftBuffer() int {
	if d.pause.Load()&PauseOverflow != 0 {
		return 0
	}
	return audio.Repeat(int(d.writePos.Load()-d.playPos.Load()), len(d.player))
}

func (d *Duplex) InputData(dst []int16) bool {
	if d.started.Load() && d.inputEnabled.Load() && d.input.Read(dst) {
		return true
	}
	clear(dst)
	return false
}

// ---------------------------------------------------------------- worker side

// Process moves whole 10ms chunks from the recorder into the input ring,
// running echo cancellation on the way when enabled.
func (d *Duplex) Process() {
	if !d.started.Load() || !d.inputEnabled.Load() {
		return
	}

	rec := int(d.recPos.Load())
	numFrames := audio.Repeat(rec-d.apsPos, len(d.recorder)) / d.inFrame
	if numFrames <= 0 {
		return
	}
	capture := d.captureBuf.Ensure(numFrames * d.inFrame)
	readLoop(d.recorder, d.apsPos, capture)

	if d.aec != nil {
		d.cancelEcho(capture, numFrames)
	}

	if !d.input.Write(capture) {
		d.dropped.Add(uint64(len(capture)))
	}
	d.apsPos = audio.Repeat(d.apsPos+numFrames*d.inFrame, len(d.recorder))
}

func (d *Duplex) cancelEcho(capture []int16, numFrames int) {
	playing := d.pause.Load() == 0
	var reverse []int16
	if playing {
		play := int(d.playPos.Load())
		reversePos := audio.Repeat((play/d.outFrame-numFrames)*d.outFrame, len(d.reference))
		reverse = d.reverseBuf.Ensure(numFrames * d.outFrame)
		readLoop(d.reference, reversePos, reverse)
	}

	for i := 0; i < numFrames; i++ {
		if playing {
			if err := d.aec.ProcessReverseStream(reverse[i*d.outFrame : (i+1)*d.outFrame]); err != nil {
				d.logProcessError("process reverse stream", err)
				return
			}
		}
		d.aec.SetStreamDelayMs(0)
		if err := d.aec.ProcessStream(capture[i*d.inFrame : (i+1)*d.inFrame]); err != nil {
			d.logProcessError("process stream", err)
			return
		}
	}
}

func (d *Duplex) logProcessError(msg string, err error) {
	if time.Since(d.lastErrLog) < errorLogInterval {
		return
	}
	d.lastErrLog = time.Now()
	d.log.Warn(msg, zap.Error(err))
}

// ---------------------------------------------------------------- spectrum

// GetInputSpectrum analyses the most recent complete window of the input
// ring. It returns false when that window has not moved since the last call.
func (d *Duplex) GetInputSpectrum(fft bool) ([]float32, bool) {
	if !d.started.Load() || !d.inputEnabled.Load() {
		return nil, false
	}
	pos := max((d.input.WritePosition()/SpectrumWindowSize-1)*SpectrumWindowSize, 0)
	if pos == d.lastInputPos {
		return nil, false
	}
	d.lastInputPos = pos
	if !d.input.ReadAt(pos, d.window) {
		return nil, false
	}
	return d.spectrum(fft)
}

// GetOutputSpectrum analyses the most recently played window.
func (d *Duplex) GetOutputSpectrum(fft bool) ([]float32, bool) {
	if d.pause.Load()&PauseEnabled != 0 {
		return nil, false
	}
	pos := max((int(d.playPos.Load())/SpectrumWindowSize-1)*SpectrumWindowSize, 0)
	if pos == d.lastOutputPos {
		return nil, false
	}
	d.lastOutputPos = pos
	readLoop(d.reference, pos, d.window)
	return d.spectrum(fft)
}

func (d *Duplex) spectrum(fft bool) ([]float32, bool) {
	if fft {
		return d.analyzer.Analyze(d.window)
	}
	audio.Int16ToFloat32(d.window, d.windowF)
	return d.windowF, true
}

// ---------------------------------------------------------------- controls

func (d *Duplex) SetOutputVolume(volume int) {
	d.volume.Store(int32(min(max(volume, 0), 100)))
}

func (d *Duplex) OutputVolume() int {
	return int(d.volume.Load())
}

func (d *Duplex) EnableInput(enable bool) {
	d.inputEnabled.Store(enable)
}

func (d *Duplex) EnableOutput(enable bool) {
	if enable {
		d.pause.And(^PauseEnabled)
	} else {
		d.pause.Or(PauseEnabled)
	}
}

// GetInputDevice returns the selected capture endpoint, enumerating once.
func (d *Duplex) GetInputDevice() (InputDevice, bool) {
	if d.haveInputDevice {
		return d.inputDevice, true
	}
	devices, err := d.backend.InputDevices()
	if err != nil {
		d.log.Warn("enumerate input devices", zap.Error(err))
		return InputDevice{}, false
	}
	d.inputDevice, d.haveInputDevice = SelectInputDevice(devices)
	return d.inputDevice, d.haveInputDevice
}

func (d *Duplex) InputSampleRate() int  { return d.cfg.InputSampleRate }
func (d *Duplex) OutputSampleRate() int { return d.cfg.OutputSampleRate }
func (d *Duplex) InputChannels() int    { return d.cfg.InputChannels }
func (d *Duplex) OutputChannels() int   { return d.cfg.OutputChannels }

func (d *Duplex) InputFrameSize() int {
	return audio.FrameSamples(d.cfg.InputSampleRate, InputFrameSizeMs, d.cfg.InputChannels)
}

// Underruns counts playback underruns since construction.
func (d *Duplex) Underruns() uint64 {
	return d.underruns.Load()
}

// DroppedSamples counts capture samples lost to a full input ring.
func (d *Duplex) DroppedSamples() uint64 {
	return d.dropped.Load()
}

// ---------------------------------------------------------------- loop buffers

func writeLoop(buf []int16, pos int, src []int16) {
	n := copy(buf[pos:], src)
	if n < len(src) {
		copy(buf, src[n:])
	}
}

func readLoop(buf []int16, pos int, dst []int16) {
	n := copy(dst, buf[pos:])
	if n < len(dst) {
		copy(dst[n:], buf)
	}
}

func clearLoop(buf []int16, pos, count int) {
	end := pos + count
	if end <= len(buf) {
		clear(buf[pos:end])
		return
	}
	clear(buf[pos:])
	clear(buf[:end-len(buf)])
}
