//go:build vad

package vad

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/logger"
)

// LSTM state shape (2, 1, 128)
const stateLen = 2 * 1 * 128

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime initialises the onnxruntime environment once per process.
// An empty libraryPath searches the usual install locations.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}
	if libraryPath == "" {
		libraryPath = findONNXRuntimeLibrary()
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	runtimeInitialized = true
	return nil
}

// DestroyRuntime tears the onnxruntime environment down at shutdown.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("destroy onnxruntime: %w", err)
	}
	runtimeInitialized = false
	return nil
}

func findONNXRuntimeLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, env := range []struct{ name, lib string }{
		{"LD_LIBRARY_PATH", "libonnxruntime.so"},
		{"DYLD_LIBRARY_PATH", "libonnxruntime.dylib"},
	} {
		for _, dir := range filepath.SplitList(os.Getenv(env.name)) {
			paths = append(paths, filepath.Join(dir, env.lib))
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Detector scores windows with the Silero model through onnxruntime.
//
// All tensors are allocated once in NewDetector. Each call feeds the last
// context samples of the previous window in front of the new one (zeros
// after Reset) and carries the LSTM state forward.
type Detector struct {
	cfg     DetectorConfig
	log     *zap.Logger
	session *ort.AdvancedSession

	window  int
	context int

	input  *ort.Tensor[float32]
	state  *ort.Tensor[float32]
	sr     *ort.Tensor[int64]
	output *ort.Tensor[float32]
	stateN *ort.Tensor[float32]
}

var _ DetectorInterface = (*Detector)(nil)

// NewDetector loads the model. The runtime is initialised on first use.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}
	if err := InitRuntime(""); err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:     cfg,
		log:     logger.Or(cfg.Logger, "vad"),
		window:  cfg.WindowSize(),
		context: cfg.contextSize(),
	}
	if err := d.allocate(); err != nil {
		d.Destroy()
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		d.Destroy()
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(1); err != nil {
		d.Destroy()
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		d.Destroy()
		return nil, fmt.Errorf("set inter-op threads: %w", err)
	}

	d.session, err = ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{d.input, d.state, d.sr},
		[]ort.Value{d.output, d.stateN},
		options)
	if err != nil {
		d.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	d.log.Info("silero detector loaded", zap.String("model", cfg.ModelPath), zap.Int("sampleRate", cfg.SampleRate))
	return d, nil
}

func (d *Detector) allocate() error {
	var err error
	if d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(d.context+d.window))); err != nil {
		return fmt.Errorf("create input tensor: %w", err)
	}
	if d.state, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		return fmt.Errorf("create state tensor: %w", err)
	}
	if d.sr, err = ort.NewTensor(ort.NewShape(1), []int64{int64(d.cfg.SampleRate)}); err != nil {
		return fmt.Errorf("create sr tensor: %w", err)
	}
	if d.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return fmt.Errorf("create output tensor: %w", err)
	}
	if d.stateN, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		return fmt.Errorf("create stateN tensor: %w", err)
	}
	return nil
}

// Infer scores exactly one window.
func (d *Detector) Infer(samples []float32) (float32, error) {
	if d.session == nil {
		return 0, ErrDestroyed
	}
	if len(samples) != d.window {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrWindowSize, len(samples), d.window)
	}

	in := d.input.GetData()
	// 前 context 个样本是上一窗口的尾部
	copy(in, in[d.window:])
	copy(in[d.context:], samples)

	if err := d.session.Run(); err != nil {
		return 0, fmt.Errorf("run silero: %w", err)
	}
	copy(d.state.GetData(), d.stateN.GetData())
	return d.output.GetData()[0], nil
}

// Reset zeroes the recurrent state and the context.
func (d *Detector) Reset() error {
	if d.session == nil {
		return ErrDestroyed
	}
	clear(d.input.GetData())
	clear(d.state.GetData())
	return nil
}

// Destroy releases the session and tensors. Safe to call twice.
func (d *Detector) Destroy() error {
	var err error
	if d.session != nil {
		err = d.session.Destroy()
		d.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{d.input, d.state, d.output, d.stateN} {
		if t != nil {
			t.Destroy()
		}
	}
	if d.sr != nil {
		d.sr.Destroy()
	}
	d.input, d.state, d.sr, d.output, d.stateN = nil, nil, nil, nil, nil
	if err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}
